package dict

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// AddSource 登记一条字段来源，字段未注册时返回 ErrUnknownField，
// (table_code, field_code, source_order) 已存在时返回 ErrDuplicateKey
func (c *catalog) AddSource(ctx context.Context, entry *FieldSourceEntry, opts ...CreateOption) error {
	if entry == nil {
		return errors.New("entry is nil")
	}
	if err := validate.Struct(entry); err != nil {
		return errors.WithMessage(err, "invalid source entry")
	}
	if !entry.IsNeedTransform && entry.TransformRule != "" {
		return errors.New("transform_rule given but is_need_transform is false")
	}

	options := &CreateOptions{}
	for _, opt := range opts {
		opt(options)
	}

	return c.transaction(ctx, func(tx *gorm.DB) error {
		exists, err := fieldExists(tx, entry.TableCode, entry.FieldCode)
		if err != nil {
			return err
		}
		if !exists {
			return errors.WithMessagef(ErrUnknownField, "field %s.%s", entry.TableCode, entry.FieldCode)
		}

		var existing FieldSourceEntry
		err = tx.Table(fieldSourceTable).
			Where("table_code = ? AND field_code = ? AND source_order = ?",
				entry.TableCode, entry.FieldCode, entry.SourceOrder).
			First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.WithMessage(err, "failed to query field sources")
		}
		if err == nil {
			if !options.UpdateOnConflict {
				return errors.WithMessagef(ErrDuplicateKey, "source %s.%s#%d already exists",
					entry.TableCode, entry.FieldCode, entry.SourceOrder)
			}
			return updateSourceTx(tx, &existing, entry)
		}

		entry.touchOnCreate(time.Now())
		if err := tx.Table(fieldSourceTable).Create(entry).Error; err != nil {
			return errors.WithMessagef(err, "failed to create source entry %s.%s#%d",
				entry.TableCode, entry.FieldCode, entry.SourceOrder)
		}
		return nil
	})
}

// GetSource 按复合标识读取来源登记项，不存在时返回 ErrNotFound
func (c *catalog) GetSource(ctx context.Context, tableCode string, fieldCode string, sourceOrder int) (*FieldSourceEntry, error) {
	var entry FieldSourceEntry
	err := c.db.WithContext(ctx).Table(fieldSourceTable).
		Where("table_code = ? AND field_code = ? AND source_order = ?", tableCode, fieldCode, sourceOrder).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.WithMessagef(ErrNotFound, "source %s.%s#%d", tableCode, fieldCode, sourceOrder)
	}
	if err != nil {
		return nil, errors.WithMessage(err, "failed to query field sources")
	}
	return &entry, nil
}

// UpdateSource 以 patch 的内容整体替换非键属性并套用时间戳策略
func (c *catalog) UpdateSource(ctx context.Context, tableCode string, fieldCode string, sourceOrder int, patch *FieldSourceEntry) error {
	if patch == nil {
		return errors.New("patch is nil")
	}
	if !patch.IsNeedTransform && patch.TransformRule != "" {
		return errors.New("transform_rule given but is_need_transform is false")
	}

	return c.transaction(ctx, func(tx *gorm.DB) error {
		var existing FieldSourceEntry
		err := tx.Table(fieldSourceTable).
			Where("table_code = ? AND field_code = ? AND source_order = ?", tableCode, fieldCode, sourceOrder).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.WithMessagef(ErrNotFound, "source %s.%s#%d", tableCode, fieldCode, sourceOrder)
		}
		if err != nil {
			return errors.WithMessage(err, "failed to query field sources")
		}
		return updateSourceTx(tx, &existing, patch)
	})
}

func updateSourceTx(tx *gorm.DB, existing *FieldSourceEntry, patch *FieldSourceEntry) error {
	merged := *patch
	merged.TableCode = existing.TableCode
	merged.FieldCode = existing.FieldCode
	merged.SourceOrder = existing.SourceOrder
	merged.touchOnUpdate(&existing.Meta, time.Now())

	if err := tx.Table(fieldSourceTable).
		Where("table_code = ? AND field_code = ? AND source_order = ?",
			existing.TableCode, existing.FieldCode, existing.SourceOrder).
		Updates(merged.updateColumns()).Error; err != nil {
		return errors.WithMessagef(err, "failed to update source entry %s.%s#%d",
			existing.TableCode, existing.FieldCode, existing.SourceOrder)
	}
	return nil
}

// ReorderSource 调整一条来源的优先级序号；单条 UPDATE 在一个事务内完成，
// 序号唯一性在任意外部可见的时点都保持成立
func (c *catalog) ReorderSource(ctx context.Context, tableCode string, fieldCode string, oldOrder int, newOrder int) error {
	if oldOrder == newOrder {
		return nil
	}
	return c.transaction(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Table(fieldSourceTable).
			Where("table_code = ? AND field_code = ? AND source_order = ?", tableCode, fieldCode, newOrder).
			Count(&count).Error; err != nil {
			return errors.WithMessage(err, "failed to query field sources")
		}
		if count > 0 {
			return errors.WithMessagef(ErrDuplicateKey, "source %s.%s#%d already exists", tableCode, fieldCode, newOrder)
		}

		result := tx.Table(fieldSourceTable).
			Where("table_code = ? AND field_code = ? AND source_order = ?", tableCode, fieldCode, oldOrder).
			Updates(map[string]any{
				"source_order": newOrder,
				"update_at":    time.Now(),
			})
		if result.Error != nil {
			return errors.WithMessage(result.Error, "failed to reorder source entry")
		}
		if result.RowsAffected == 0 {
			return errors.WithMessagef(ErrNotFound, "source %s.%s#%d", tableCode, fieldCode, oldOrder)
		}
		return nil
	})
}

// DeleteSource 删除一条来源登记，没有其他实体引用来源，无级联
func (c *catalog) DeleteSource(ctx context.Context, tableCode string, fieldCode string, sourceOrder int) error {
	return c.transaction(ctx, func(tx *gorm.DB) error {
		result := tx.Table(fieldSourceTable).
			Where("table_code = ? AND field_code = ? AND source_order = ?", tableCode, fieldCode, sourceOrder).
			Delete(&FieldSourceEntry{})
		if result.Error != nil {
			return errors.WithMessage(result.Error, "failed to delete source entry")
		}
		if result.RowsAffected == 0 {
			return errors.WithMessagef(ErrNotFound, "source %s.%s#%d", tableCode, fieldCode, sourceOrder)
		}
		return nil
	})
}

// ListSources 按 source_order 升序给出一个字段的来源清单，
// 这一顺序就是声明的取数优先级：序号小的渠道优先，下游 ETL 以此
// 确定主来源与备选来源
func (c *catalog) ListSources(ctx context.Context, tableCode string, fieldCode string) ([]*FieldSourceEntry, error) {
	var entries []*FieldSourceEntry
	if err := c.db.WithContext(ctx).Table(fieldSourceTable).
		Where("table_code = ? AND field_code = ?", tableCode, fieldCode).
		Order("source_order ASC").
		Find(&entries).Error; err != nil {
		return nil, errors.WithMessage(err, "failed to list field sources")
	}
	return entries, nil
}

// Lineage 一张表的只读血缘遍历：table_code → 字段 → 有序来源，
// 供下游血缘消费方解析一个逻辑字段由哪个物理来源供数。
// 整个遍历在一个事务内完成，与并发的级联重命名之间不会读到
// 半新半旧的快照
func (c *catalog) Lineage(ctx context.Context, tableCode string) (*TableLineage, error) {
	var lineage *TableLineage
	err := c.transaction(ctx, func(tx *gorm.DB) error {
		var table TableEntry
		err := tx.Table(tableInfoTable).Where("table_code = ?", tableCode).First(&table).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.WithMessagef(ErrNotFound, "table %s", tableCode)
		}
		if err != nil {
			return errors.WithMessage(err, "failed to query table registry")
		}

		var fields []*FieldEntry
		if err := tx.Table(fieldInfoTable).
			Where("table_code = ?", tableCode).
			Order("field_order ASC, field_code ASC").
			Find(&fields).Error; err != nil {
			return errors.WithMessage(err, "failed to list field registry")
		}

		lineage = &TableLineage{Table: &table}
		for _, field := range fields {
			var sources []*FieldSourceEntry
			if err := tx.Table(fieldSourceTable).
				Where("table_code = ? AND field_code = ?", tableCode, field.FieldCode).
				Order("source_order ASC").
				Find(&sources).Error; err != nil {
				return errors.WithMessage(err, "failed to list field sources")
			}
			lineage.Fields = append(lineage.Fields, &FieldLineage{
				Field:   field,
				Sources: sources,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lineage, nil
}
