package dict

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// CreateField 新建字段登记项，所属表未注册时返回 ErrUnknownTable，
// (table_code, field_code) 已存在时返回 ErrDuplicateKey
func (c *catalog) CreateField(ctx context.Context, entry *FieldEntry, opts ...CreateOption) error {
	if entry == nil {
		return errors.New("entry is nil")
	}
	if err := validate.Struct(entry); err != nil {
		return errors.WithMessage(err, "invalid field entry")
	}

	options := &CreateOptions{}
	for _, opt := range opts {
		opt(options)
	}

	return c.transaction(ctx, func(tx *gorm.DB) error {
		exists, err := tableExists(tx, entry.TableCode)
		if err != nil {
			return err
		}
		if !exists {
			return errors.WithMessagef(ErrUnknownTable, "table %s", entry.TableCode)
		}

		var existing FieldEntry
		err = tx.Table(fieldInfoTable).
			Where("table_code = ? AND field_code = ?", entry.TableCode, entry.FieldCode).
			First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.WithMessage(err, "failed to query field registry")
		}
		if err == nil {
			if !options.UpdateOnConflict {
				return errors.WithMessagef(ErrDuplicateKey, "field %s.%s already exists", entry.TableCode, entry.FieldCode)
			}
			return updateFieldTx(tx, &existing, entry)
		}

		entry.touchOnCreate(time.Now())
		if err := tx.Table(fieldInfoTable).Create(entry).Error; err != nil {
			return errors.WithMessagef(err, "failed to create field entry %s.%s", entry.TableCode, entry.FieldCode)
		}
		return nil
	})
}

// GetField 按复合标识读取字段登记项，不存在时返回 ErrNotFound
func (c *catalog) GetField(ctx context.Context, tableCode string, fieldCode string) (*FieldEntry, error) {
	var entry FieldEntry
	err := c.db.WithContext(ctx).Table(fieldInfoTable).
		Where("table_code = ? AND field_code = ?", tableCode, fieldCode).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.WithMessagef(ErrNotFound, "field %s.%s", tableCode, fieldCode)
	}
	if err != nil {
		return nil, errors.WithMessage(err, "failed to query field registry")
	}
	return &entry, nil
}

// UpdateField 以 patch 的内容整体替换非键属性并套用时间戳策略；
// patch.FieldCode 与现值不同的话先在同一事务内完成级联重命名
func (c *catalog) UpdateField(ctx context.Context, tableCode string, fieldCode string, patch *FieldEntry) error {
	if patch == nil {
		return errors.New("patch is nil")
	}

	return c.transaction(ctx, func(tx *gorm.DB) error {
		var existing FieldEntry
		err := tx.Table(fieldInfoTable).
			Where("table_code = ? AND field_code = ?", tableCode, fieldCode).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.WithMessagef(ErrNotFound, "field %s.%s", tableCode, fieldCode)
		}
		if err != nil {
			return errors.WithMessage(err, "failed to query field registry")
		}

		if patch.FieldCode != "" && patch.FieldCode != fieldCode {
			if err := renameFieldTx(tx, tableCode, fieldCode, patch.FieldCode); err != nil {
				return err
			}
			existing.FieldCode = patch.FieldCode
		}
		return updateFieldTx(tx, &existing, patch)
	})
}

// updateFieldTx 在事务内按策略更新一条已存在的字段登记项
func updateFieldTx(tx *gorm.DB, existing *FieldEntry, patch *FieldEntry) error {
	merged := *patch
	merged.TableCode = existing.TableCode
	merged.FieldCode = existing.FieldCode
	merged.touchOnUpdate(&existing.Meta, time.Now())

	if err := tx.Table(fieldInfoTable).
		Where("table_code = ? AND field_code = ?", existing.TableCode, existing.FieldCode).
		Updates(merged.updateColumns()).Error; err != nil {
		return errors.WithMessagef(err, "failed to update field entry %s.%s", existing.TableCode, existing.FieldCode)
	}
	return nil
}

// RenameField 修改 field_code 并级联到来源登记，镜像表重命名的级联语义
func (c *catalog) RenameField(ctx context.Context, tableCode string, oldCode string, newCode string) error {
	if newCode == "" {
		return errors.New("new field_code is empty")
	}
	if oldCode == newCode {
		return nil
	}
	return c.transaction(ctx, func(tx *gorm.DB) error {
		if err := renameFieldTx(tx, tableCode, oldCode, newCode); err != nil {
			return err
		}
		now := time.Now()
		if err := tx.Table(fieldInfoTable).
			Where("table_code = ? AND field_code = ?", tableCode, newCode).
			Update("update_at", now).Error; err != nil {
			return errors.WithMessage(err, "failed to touch renamed field entry")
		}
		return nil
	})
}

func renameFieldTx(tx *gorm.DB, tableCode string, oldCode string, newCode string) error {
	exists, err := fieldExists(tx, tableCode, oldCode)
	if err != nil {
		return err
	}
	if !exists {
		return errors.WithMessagef(ErrNotFound, "field %s.%s", tableCode, oldCode)
	}
	taken, err := fieldExists(tx, tableCode, newCode)
	if err != nil {
		return err
	}
	if taken {
		return errors.WithMessagef(ErrDuplicateKey, "field %s.%s already exists", tableCode, newCode)
	}

	if err := tx.Table(fieldInfoTable).
		Where("table_code = ? AND field_code = ?", tableCode, oldCode).
		Update("field_code", newCode).Error; err != nil {
		return errors.WithMessage(err, "failed to rename field entry")
	}
	if err := tx.Table(fieldSourceTable).
		Where("table_code = ? AND field_code = ?", tableCode, oldCode).
		Update("field_code", newCode).Error; err != nil {
		return errors.WithMessage(err, "failed to cascade rename into field sources")
	}
	return nil
}

// DeleteField 删除字段登记项，仍被来源登记引用时返回 ErrConflict
func (c *catalog) DeleteField(ctx context.Context, tableCode string, fieldCode string) error {
	return c.transaction(ctx, func(tx *gorm.DB) error {
		var sourceCount int64
		if err := tx.Table(fieldSourceTable).
			Where("table_code = ? AND field_code = ?", tableCode, fieldCode).
			Count(&sourceCount).Error; err != nil {
			return errors.WithMessage(err, "failed to query field sources")
		}
		if sourceCount > 0 {
			return errors.WithMessagef(ErrConflict, "field %s.%s is referenced by %d source(s)", tableCode, fieldCode, sourceCount)
		}

		result := tx.Table(fieldInfoTable).
			Where("table_code = ? AND field_code = ?", tableCode, fieldCode).
			Delete(&FieldEntry{})
		if result.Error != nil {
			return errors.WithMessagef(result.Error, "failed to delete field entry %s.%s", tableCode, fieldCode)
		}
		if result.RowsAffected == 0 {
			return errors.WithMessagef(ErrNotFound, "field %s.%s", tableCode, fieldCode)
		}
		return nil
	})
}

// ListFields 按 field_order 升序给出一张表的字段清单
func (c *catalog) ListFields(ctx context.Context, tableCode string) ([]*FieldEntry, error) {
	var entries []*FieldEntry
	if err := c.db.WithContext(ctx).Table(fieldInfoTable).
		Where("table_code = ?", tableCode).
		Order("field_order ASC, field_code ASC").
		Find(&entries).Error; err != nil {
		return nil, errors.WithMessage(err, "failed to list field registry")
	}
	return entries, nil
}
