package dict

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// validateConstraint 约束声明的类型/外键/列清单校验
//
// ErrInvalidArity：非 fk 类型带 fk_limit 或带真实 fk_ref_to，
// fk 类型缺 fk_limit 或缺目标表；
// ErrInvalidColumnList：列清单为空、超过 MaxConstraintColumns
// 或含空列名（空列名落盘即是槽位空洞）。
func validateConstraint(entry *TableConstraintEntry) error {
	if err := validate.Struct(entry); err != nil {
		return errors.WithMessage(err, "invalid constraint entry")
	}

	if entry.ConstraintType == ConstraintTypeFK {
		if entry.FkLimit == "" {
			return errors.WithMessagef(ErrInvalidArity, "fk constraint %s requires fk_limit", entry.ConstraintName)
		}
		if entry.FkRefTo == "" || entry.FkRefTo == FkRefToNone {
			return errors.WithMessagef(ErrInvalidArity, "fk constraint %s requires a target table", entry.ConstraintName)
		}
	} else {
		if entry.FkLimit != "" {
			return errors.WithMessagef(ErrInvalidArity, "%s constraint %s must not carry fk_limit",
				entry.ConstraintType, entry.ConstraintName)
		}
		if entry.FkRefTo != "" && entry.FkRefTo != FkRefToNone {
			return errors.WithMessagef(ErrInvalidArity, "%s constraint %s must not reference table %s",
				entry.ConstraintType, entry.ConstraintName, entry.FkRefTo)
		}
	}

	if len(entry.Columns) == 0 {
		return errors.WithMessagef(ErrInvalidColumnList, "constraint %s has no columns", entry.ConstraintName)
	}
	if len(entry.Columns) > MaxConstraintColumns {
		return errors.WithMessagef(ErrInvalidColumnList, "constraint %s has %d columns, max %d",
			entry.ConstraintName, len(entry.Columns), MaxConstraintColumns)
	}
	for i, column := range entry.Columns {
		if column == "" {
			return errors.WithMessagef(ErrInvalidColumnList, "constraint %s has empty column at position %d",
				entry.ConstraintName, i+1)
		}
	}
	return nil
}

// DeclareConstraint 声明一条结构约束
//
// 所属表与外键目标表是对表登记处的两个独立引用，分别检查，
// 任一未注册返回 ErrUnknownTable；标识三元组已存在返回 ErrDuplicateKey。
func (c *catalog) DeclareConstraint(ctx context.Context, entry *TableConstraintEntry) error {
	if entry == nil {
		return errors.New("entry is nil")
	}
	declared := *entry
	if declared.ConstraintType != ConstraintTypeFK && declared.FkRefTo == "" {
		declared.FkRefTo = FkRefToNone
	}
	if err := validateConstraint(&declared); err != nil {
		return err
	}

	return c.transaction(ctx, func(tx *gorm.DB) error {
		exists, err := tableExists(tx, declared.OwnerTable)
		if err != nil {
			return err
		}
		if !exists {
			return errors.WithMessagef(ErrUnknownTable, "owner table %s", declared.OwnerTable)
		}
		if declared.ConstraintType == ConstraintTypeFK {
			exists, err := tableExists(tx, declared.FkRefTo)
			if err != nil {
				return err
			}
			if !exists {
				return errors.WithMessagef(ErrUnknownTable, "fk target table %s", declared.FkRefTo)
			}
		}

		var count int64
		if err := tx.Table(tableConstraintsTable).
			Where("owner_table = ? AND constraint_name = ? AND fk_ref_to = ?",
				declared.OwnerTable, declared.ConstraintName, declared.FkRefTo).
			Count(&count).Error; err != nil {
			return errors.WithMessage(err, "failed to query constraint registry")
		}
		if count > 0 {
			return errors.WithMessagef(ErrDuplicateKey, "constraint (%s, %s, %s) already exists",
				declared.OwnerTable, declared.ConstraintName, declared.FkRefTo)
		}

		declared.touchOnCreate(time.Now())
		if err := tx.Table(tableConstraintsTable).Create(encodeConstraint(&declared)).Error; err != nil {
			return errors.WithMessagef(err, "failed to create constraint (%s, %s, %s)",
				declared.OwnerTable, declared.ConstraintName, declared.FkRefTo)
		}
		return nil
	})
}

// GetConstraint 按标识三元组读取约束，fkRefTo 传空串等价于占位值
func (c *catalog) GetConstraint(ctx context.Context, ownerTable string, constraintName string, fkRefTo string) (*TableConstraintEntry, error) {
	if fkRefTo == "" {
		fkRefTo = FkRefToNone
	}
	var row constraintRow
	err := c.db.WithContext(ctx).Table(tableConstraintsTable).
		Where("owner_table = ? AND constraint_name = ? AND fk_ref_to = ?", ownerTable, constraintName, fkRefTo).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.WithMessagef(ErrNotFound, "constraint (%s, %s, %s)", ownerTable, constraintName, fkRefTo)
	}
	if err != nil {
		return nil, errors.WithMessage(err, "failed to query constraint registry")
	}
	return decodeConstraint(&row), nil
}

// DeleteConstraint 删除一条约束声明，没有其他实体引用约束，无级联
func (c *catalog) DeleteConstraint(ctx context.Context, ownerTable string, constraintName string, fkRefTo string) error {
	if fkRefTo == "" {
		fkRefTo = FkRefToNone
	}
	return c.transaction(ctx, func(tx *gorm.DB) error {
		result := tx.Table(tableConstraintsTable).
			Where("owner_table = ? AND constraint_name = ? AND fk_ref_to = ?", ownerTable, constraintName, fkRefTo).
			Delete(&constraintRow{})
		if result.Error != nil {
			return errors.WithMessage(result.Error, "failed to delete constraint")
		}
		if result.RowsAffected == 0 {
			return errors.WithMessagef(ErrNotFound, "constraint (%s, %s, %s)", ownerTable, constraintName, fkRefTo)
		}
		return nil
	})
}

// ListConstraints 给出一张表上声明的约束清单，可按约束类型过滤，
// 供结构校验/报表工具遍历
func (c *catalog) ListConstraints(ctx context.Context, ownerTable string, opts ...ListConstraintsOption) ([]*TableConstraintEntry, error) {
	options := &ListConstraintsOptions{}
	for _, opt := range opts {
		opt(options)
	}

	db := c.db.WithContext(ctx).Table(tableConstraintsTable).Where("owner_table = ?", ownerTable)
	if options.Type != "" {
		db = db.Where("constraint_type = ?", string(options.Type))
	}

	var rows []*constraintRow
	if err := db.Order("constraint_name ASC, fk_ref_to ASC").Find(&rows).Error; err != nil {
		return nil, errors.WithMessage(err, "failed to list constraint registry")
	}

	entries := make([]*TableConstraintEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, decodeConstraint(row))
	}
	return entries, nil
}
