package dict

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// CreateTable 新建表登记项，id 或 table_code 已存在时返回 ErrDuplicateKey；
// WithUpdateOnConflict 时对已存在的 table_code 按更新处理
func (c *catalog) CreateTable(ctx context.Context, entry *TableEntry, opts ...CreateOption) error {
	if entry == nil {
		return errors.New("entry is nil")
	}
	if err := validate.Struct(entry); err != nil {
		return errors.WithMessage(err, "invalid table entry")
	}

	options := &CreateOptions{}
	for _, opt := range opts {
		opt(options)
	}

	return c.transaction(ctx, func(tx *gorm.DB) error {
		var existing TableEntry
		err := tx.Table(tableInfoTable).Where("table_code = ?", entry.TableCode).First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.WithMessage(err, "failed to query table registry")
		}
		if err == nil {
			if !options.UpdateOnConflict {
				return errors.WithMessagef(ErrDuplicateKey, "table_code %s already exists", entry.TableCode)
			}
			return updateTableTx(tx, &existing, entry)
		}

		var count int64
		if err := tx.Table(tableInfoTable).Where("id = ?", entry.ID).Count(&count).Error; err != nil {
			return errors.WithMessage(err, "failed to query table registry")
		}
		if count > 0 {
			return errors.WithMessagef(ErrDuplicateKey, "table id %d already exists", entry.ID)
		}

		entry.touchOnCreate(time.Now())
		if err := tx.Table(tableInfoTable).Create(entry).Error; err != nil {
			return errors.WithMessagef(err, "failed to create table entry %s", entry.TableCode)
		}
		return nil
	})
}

// GetTable 按 table_code 读取登记项，不存在时返回 ErrNotFound
func (c *catalog) GetTable(ctx context.Context, tableCode string) (*TableEntry, error) {
	var entry TableEntry
	err := c.db.WithContext(ctx).Table(tableInfoTable).Where("table_code = ?", tableCode).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.WithMessagef(ErrNotFound, "table %s", tableCode)
	}
	if err != nil {
		return nil, errors.WithMessage(err, "failed to query table registry")
	}
	return &entry, nil
}

// UpdateTable 以 patch 的内容整体替换非键属性并套用时间戳策略；
// patch.TableCode 与现值不同的话先在同一事务内完成级联重命名
func (c *catalog) UpdateTable(ctx context.Context, tableCode string, patch *TableEntry) error {
	if patch == nil {
		return errors.New("patch is nil")
	}

	return c.transaction(ctx, func(tx *gorm.DB) error {
		var existing TableEntry
		err := tx.Table(tableInfoTable).Where("table_code = ?", tableCode).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.WithMessagef(ErrNotFound, "table %s", tableCode)
		}
		if err != nil {
			return errors.WithMessage(err, "failed to query table registry")
		}

		code := tableCode
		if patch.TableCode != "" && patch.TableCode != tableCode {
			if err := renameTableTx(tx, tableCode, patch.TableCode); err != nil {
				return err
			}
			code = patch.TableCode
			existing.TableCode = code
		}
		return updateTableTxAs(tx, code, &existing, patch)
	})
}

// updateTableTx 在事务内按策略更新一条已存在的表登记项
func updateTableTx(tx *gorm.DB, existing *TableEntry, patch *TableEntry) error {
	return updateTableTxAs(tx, existing.TableCode, existing, patch)
}

func updateTableTxAs(tx *gorm.DB, tableCode string, existing *TableEntry, patch *TableEntry) error {
	merged := *patch
	merged.TableCode = tableCode
	if merged.ID == 0 {
		merged.ID = existing.ID
	}
	if merged.ID != existing.ID {
		var count int64
		if err := tx.Table(tableInfoTable).Where("id = ?", merged.ID).Count(&count).Error; err != nil {
			return errors.WithMessage(err, "failed to query table registry")
		}
		if count > 0 {
			return errors.WithMessagef(ErrDuplicateKey, "table id %d already exists", merged.ID)
		}
	}
	merged.touchOnUpdate(&existing.Meta, time.Now())

	if err := tx.Table(tableInfoTable).Where("table_code = ?", tableCode).
		Updates(merged.updateColumns()).Error; err != nil {
		return errors.WithMessagef(err, "failed to update table entry %s", tableCode)
	}
	return nil
}

// RenameTable 修改 table_code 并级联到所有依赖行，整个级联在一个事务里，
// 部分失败时回滚到操作前的状态
func (c *catalog) RenameTable(ctx context.Context, oldCode string, newCode string) error {
	if newCode == "" || newCode == FkRefToNone {
		return errors.Errorf("invalid new table_code: %q", newCode)
	}
	if oldCode == newCode {
		return nil
	}
	return c.transaction(ctx, func(tx *gorm.DB) error {
		if err := renameTableTx(tx, oldCode, newCode); err != nil {
			return err
		}
		// 重命名也是一次写入，update_at 按策略自动填充
		now := time.Now()
		if err := tx.Table(tableInfoTable).Where("table_code = ?", newCode).
			Update("update_at", now).Error; err != nil {
			return errors.WithMessage(err, "failed to touch renamed table entry")
		}
		return nil
	})
}

// renameTableTx 级联更新新旧 table_code：表登记、字段、来源、
// 约束的所属表与外键目标表，全部成功或全部回滚。
// 占位值不能作为 table_code，否则级联会把外键行的 fk_ref_to
// 改写成占位值，破坏约束标识
func renameTableTx(tx *gorm.DB, oldCode string, newCode string) error {
	if newCode == "" || newCode == FkRefToNone {
		return errors.Errorf("invalid new table_code: %q", newCode)
	}
	exists, err := tableExists(tx, oldCode)
	if err != nil {
		return err
	}
	if !exists {
		return errors.WithMessagef(ErrNotFound, "table %s", oldCode)
	}
	taken, err := tableExists(tx, newCode)
	if err != nil {
		return err
	}
	if taken {
		return errors.WithMessagef(ErrDuplicateKey, "table_code %s already exists", newCode)
	}

	if err := tx.Table(tableInfoTable).Where("table_code = ?", oldCode).
		Update("table_code", newCode).Error; err != nil {
		return errors.WithMessage(err, "failed to rename table entry")
	}
	if err := tx.Table(fieldInfoTable).Where("table_code = ?", oldCode).
		Update("table_code", newCode).Error; err != nil {
		return errors.WithMessage(err, "failed to cascade rename into field registry")
	}
	if err := tx.Table(fieldSourceTable).Where("table_code = ?", oldCode).
		Update("table_code", newCode).Error; err != nil {
		return errors.WithMessage(err, "failed to cascade rename into field sources")
	}
	if err := tx.Table(tableConstraintsTable).Where("owner_table = ?", oldCode).
		Update("owner_table", newCode).Error; err != nil {
		return errors.WithMessage(err, "failed to cascade rename into constraint owners")
	}
	if err := tx.Table(tableConstraintsTable).Where("fk_ref_to = ?", oldCode).
		Update("fk_ref_to", newCode).Error; err != nil {
		return errors.WithMessage(err, "failed to cascade rename into constraint fk targets")
	}
	return nil
}

// DeleteTable 删除表登记项，仍被字段或约束（所属或外键目标）引用时返回 ErrConflict
func (c *catalog) DeleteTable(ctx context.Context, tableCode string) error {
	return c.transaction(ctx, func(tx *gorm.DB) error {
		var fieldCount int64
		if err := tx.Table(fieldInfoTable).Where("table_code = ?", tableCode).
			Count(&fieldCount).Error; err != nil {
			return errors.WithMessage(err, "failed to query field registry")
		}
		if fieldCount > 0 {
			return errors.WithMessagef(ErrConflict, "table %s is referenced by %d field(s)", tableCode, fieldCount)
		}

		var constraintCount int64
		if err := tx.Table(tableConstraintsTable).
			Where("owner_table = ? OR fk_ref_to = ?", tableCode, tableCode).
			Count(&constraintCount).Error; err != nil {
			return errors.WithMessage(err, "failed to query constraint registry")
		}
		if constraintCount > 0 {
			return errors.WithMessagef(ErrConflict, "table %s is referenced by %d constraint(s)", tableCode, constraintCount)
		}

		result := tx.Table(tableInfoTable).Where("table_code = ?", tableCode).Delete(&TableEntry{})
		if result.Error != nil {
			return errors.WithMessagef(result.Error, "failed to delete table entry %s", tableCode)
		}
		if result.RowsAffected == 0 {
			return errors.WithMessagef(ErrNotFound, "table %s", tableCode)
		}
		return nil
	})
}

// ListTables 按 id 升序给出表清单，可按库段、分组层级与资产类别过滤
func (c *catalog) ListTables(ctx context.Context, opts ...ListTablesOption) ([]*TableEntry, error) {
	options := &ListTablesOptions{}
	for _, opt := range opts {
		opt(options)
	}

	db := c.db.WithContext(ctx).Table(tableInfoTable)
	if options.DBSegment != "" {
		db = db.Where("db_segment = ?", options.DBSegment)
	}
	if options.GroupLevel1 != "" {
		db = db.Where("group_level1 = ?", options.GroupLevel1)
	}
	if options.GroupLevel2 != "" {
		db = db.Where("group_level2 = ?", options.GroupLevel2)
	}
	if options.GroupLevel3 != "" {
		db = db.Where("group_level3 = ?", options.GroupLevel3)
	}
	if options.EquityOnly {
		db = db.Where("is_equity = ?", true)
	}
	if options.BondOnly {
		db = db.Where("is_bond = ?", true)
	}
	if options.HKEquityOnly {
		db = db.Where("is_hk_equity = ?", true)
	}
	if options.NEEQOnly {
		db = db.Where("is_neeq = ?", true)
	}

	var entries []*TableEntry
	if err := db.Order("id ASC").Find(&entries).Error; err != nil {
		return nil, errors.WithMessage(err, "failed to list table registry")
	}
	return entries, nil
}
