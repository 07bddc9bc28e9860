package dict

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrDuplicateKey 创建时标识冲突
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNotFound 操作的标识不存在
	ErrNotFound = errors.New("not found")
	// ErrUnknownTable 引用的表未在表登记处注册
	ErrUnknownTable = errors.New("unknown table")
	// ErrUnknownField 引用的字段未在字段登记处注册
	ErrUnknownField = errors.New("unknown field")
	// ErrConflict 删除被现存引用阻止
	ErrConflict = errors.New("conflict")
	// ErrInvalidArity 约束类型与外键属性不匹配
	ErrInvalidArity = errors.New("invalid arity")
	// ErrInvalidColumnList 约束列清单为空、超长或存在空洞
	ErrInvalidColumnList = errors.New("invalid column list")
)

// ConstraintType 结构约束类型
type ConstraintType string

const (
	ConstraintTypePK  ConstraintType = "pk"
	ConstraintTypeUQ  ConstraintType = "uq"
	ConstraintTypeFK  ConstraintType = "fk"
	ConstraintTypeIdx ConstraintType = "idx"
)

// FkRefToNone 非外键约束行在 fk_ref_to 列上使用的占位值，与数仓原有布局保持一致
const FkRefToNone = "-"

// MaxConstraintColumns 一条约束至多登记的列数，对应持久化布局的 pos01..pos10
const MaxConstraintColumns = 10

// CreateOptions 创建登记项时的选项
type CreateOptions struct {
	// UpdateOnConflict 标识冲突时按更新处理而不是返回 ErrDuplicateKey
	UpdateOnConflict bool
}

type CreateOption func(*CreateOptions)

func WithUpdateOnConflict() CreateOption {
	return func(options *CreateOptions) {
		options.UpdateOnConflict = true
	}
}

// ListTablesOptions 表清单的过滤条件
type ListTablesOptions struct {
	DBSegment   string
	GroupLevel1 string
	GroupLevel2 string
	GroupLevel3 string

	EquityOnly   bool
	BondOnly     bool
	HKEquityOnly bool
	NEEQOnly     bool
}

type ListTablesOption func(*ListTablesOptions)

func WithDBSegment(segment string) ListTablesOption {
	return func(options *ListTablesOptions) {
		options.DBSegment = segment
	}
}

// WithGroupLevels 按分组层级过滤，至多三级，空串表示该级不限
func WithGroupLevels(levels ...string) ListTablesOption {
	return func(options *ListTablesOptions) {
		if len(levels) > 0 {
			options.GroupLevel1 = levels[0]
		}
		if len(levels) > 1 {
			options.GroupLevel2 = levels[1]
		}
		if len(levels) > 2 {
			options.GroupLevel3 = levels[2]
		}
	}
}

func WithEquityOnly() ListTablesOption {
	return func(options *ListTablesOptions) {
		options.EquityOnly = true
	}
}

func WithBondOnly() ListTablesOption {
	return func(options *ListTablesOptions) {
		options.BondOnly = true
	}
}

func WithHKEquityOnly() ListTablesOption {
	return func(options *ListTablesOptions) {
		options.HKEquityOnly = true
	}
}

func WithNEEQOnly() ListTablesOption {
	return func(options *ListTablesOptions) {
		options.NEEQOnly = true
	}
}

// ListConstraintsOptions 约束清单的过滤条件
type ListConstraintsOptions struct {
	Type ConstraintType
}

type ListConstraintsOption func(*ListConstraintsOptions)

func WithConstraintType(t ConstraintType) ListConstraintsOption {
	return func(options *ListConstraintsOptions) {
		options.Type = t
	}
}

// Catalog 元数据字典的公共契约
//
// 四个登记处共享一个关系型存储：表登记处是叶子，字段登记处依赖表，
// 字段来源（血缘）依赖字段，约束登记处两次依赖表（所属表与外键目标表）。
// 创建按 表 → 字段 → 来源/约束 的顺序进行，删除按相反方向进行，
// 仍被引用的登记项的删除会被拒绝；table_code / field_code 的重命名
// 在同一事务内级联到全部依赖行。
type Catalog interface {
	// Migrate 建立/更新持久化布局
	Migrate(ctx context.Context) error
	Close() error

	// 表登记处
	CreateTable(ctx context.Context, entry *TableEntry, opts ...CreateOption) error
	GetTable(ctx context.Context, tableCode string) (*TableEntry, error)
	UpdateTable(ctx context.Context, tableCode string, patch *TableEntry) error
	RenameTable(ctx context.Context, oldCode string, newCode string) error
	DeleteTable(ctx context.Context, tableCode string) error
	ListTables(ctx context.Context, opts ...ListTablesOption) ([]*TableEntry, error)

	// 字段登记处
	CreateField(ctx context.Context, entry *FieldEntry, opts ...CreateOption) error
	GetField(ctx context.Context, tableCode string, fieldCode string) (*FieldEntry, error)
	UpdateField(ctx context.Context, tableCode string, fieldCode string, patch *FieldEntry) error
	RenameField(ctx context.Context, tableCode string, oldCode string, newCode string) error
	DeleteField(ctx context.Context, tableCode string, fieldCode string) error
	ListFields(ctx context.Context, tableCode string) ([]*FieldEntry, error)

	// 字段来源（血缘）
	AddSource(ctx context.Context, entry *FieldSourceEntry, opts ...CreateOption) error
	GetSource(ctx context.Context, tableCode string, fieldCode string, sourceOrder int) (*FieldSourceEntry, error)
	UpdateSource(ctx context.Context, tableCode string, fieldCode string, sourceOrder int, patch *FieldSourceEntry) error
	ReorderSource(ctx context.Context, tableCode string, fieldCode string, oldOrder int, newOrder int) error
	DeleteSource(ctx context.Context, tableCode string, fieldCode string, sourceOrder int) error
	ListSources(ctx context.Context, tableCode string, fieldCode string) ([]*FieldSourceEntry, error)
	Lineage(ctx context.Context, tableCode string) (*TableLineage, error)

	// 约束登记处
	DeclareConstraint(ctx context.Context, entry *TableConstraintEntry) error
	GetConstraint(ctx context.Context, ownerTable string, constraintName string, fkRefTo string) (*TableConstraintEntry, error)
	DeleteConstraint(ctx context.Context, ownerTable string, constraintName string, fkRefTo string) error
	ListConstraints(ctx context.Context, ownerTable string, opts ...ListConstraintsOption) ([]*TableConstraintEntry, error)
}
