package dict

import (
	"time"
)

// 持久化表名沿用数仓字典的原有命名
const (
	tableInfoTable        = "r_dict_table_info"
	fieldInfoTable        = "r_dict_field_info"
	fieldSourceTable      = "r_dict_field_source"
	tableConstraintsTable = "r_dict_table_constraints"
)

// Meta 所有登记项共有的时间戳属性对
type Meta struct {
	CreateAt time.Time `gorm:"column:create_at" json:"create_at"`
	UpdateAt time.Time `gorm:"column:update_at" json:"update_at"`
}

// touchOnCreate 创建时 create_at 与 update_at 均为当前时间
func (m *Meta) touchOnCreate(now time.Time) {
	m.CreateAt = now
	m.UpdateAt = now
}

// touchOnUpdate 更新时间戳策略，作为存储层写路径上的统一拦截逻辑：
// create_at 保持库中旧值不可修改；update_at 在调用方未给出（零值）
// 或与库中旧值相同时取当前时间，否则保留调用方给出的值。
// 「调用方没碰这个字段」和「调用方原样重新提交」在这里不可区分，
// 都按未给出处理。
func (m *Meta) touchOnUpdate(prev *Meta, now time.Time) {
	m.CreateAt = prev.CreateAt
	if m.UpdateAt.IsZero() || m.UpdateAt.Equal(prev.UpdateAt) {
		m.UpdateAt = now
	}
}

// TableEntry 一张逻辑表的登记项
//
// id 是展示顺序上的主键，table_code 才是其他实体引用关系中真正的键：
// 字段、来源、约束都以 table_code 指回本登记处。
type TableEntry struct {
	ID          int    `gorm:"column:id;primaryKey;autoIncrement:false" json:"id" validate:"required"`
	TableCode   string `gorm:"column:table_code;size:64;uniqueIndex:uk_rdti_table_code" json:"table_code" validate:"required,ne=-"`
	TableName   string `gorm:"column:table_name;size:128" json:"table_name"`
	DBSegment   string `gorm:"column:db_segment;size:32" json:"db_segment"`
	GroupLevel1 string `gorm:"column:group_level1;size:64" json:"group_level1"`
	GroupLevel2 string `gorm:"column:group_level2;size:64" json:"group_level2"`
	GroupLevel3 string `gorm:"column:group_level3;size:64" json:"group_level3"`

	// 各资产类别的适用标记
	IsEquity   bool `gorm:"column:is_equity" json:"is_equity"`
	IsBond     bool `gorm:"column:is_bond" json:"is_bond"`
	IsHKEquity bool `gorm:"column:is_hk_equity" json:"is_hk_equity"`
	IsNEEQ     bool `gorm:"column:is_neeq" json:"is_neeq"`

	DataNature string `gorm:"column:data_nature;size:32" json:"data_nature"`
	UpdateFreq string `gorm:"column:update_freq;size:32" json:"update_freq"`
	Remarks    string `gorm:"column:remarks" json:"remarks"`

	Meta
}

// updateColumns 非键属性的列值集合，更新路径用 map 避免 gorm 跳过零值
func (e *TableEntry) updateColumns() map[string]any {
	return map[string]any{
		"id":           e.ID,
		"table_name":   e.TableName,
		"db_segment":   e.DBSegment,
		"group_level1": e.GroupLevel1,
		"group_level2": e.GroupLevel2,
		"group_level3": e.GroupLevel3,
		"is_equity":    e.IsEquity,
		"is_bond":      e.IsBond,
		"is_hk_equity": e.IsHKEquity,
		"is_neeq":      e.IsNEEQ,
		"data_nature":  e.DataNature,
		"update_freq":  e.UpdateFreq,
		"remarks":      e.Remarks,
		"create_at":    e.CreateAt,
		"update_at":    e.UpdateAt,
	}
}

// FieldEntry 属于一张逻辑表的一个字段
//
// 复合标识 (table_code, field_code)，也是来源登记引用的键。
// field_order 仅用于展示排序，不要求唯一。
type FieldEntry struct {
	TableCode  string `gorm:"column:table_code;size:64;primaryKey" json:"table_code" validate:"required"`
	FieldCode  string `gorm:"column:field_code;size:64;primaryKey" json:"field_code" validate:"required"`
	FieldOrder int    `gorm:"column:field_order" json:"field_order"`
	FieldName  string `gorm:"column:field_name;size:128" json:"field_name"`

	DataType       string `gorm:"column:data_type;size:32" json:"data_type"`
	DataTypePara   string `gorm:"column:data_type_para;size:64" json:"data_type_para"`
	DefaultValue   string `gorm:"column:default_value;size:64" json:"default_value"`
	IsNotNull      bool   `gorm:"column:is_not_null" json:"is_not_null"`
	FieldHierarchy string `gorm:"column:field_hierarchy;size:32" json:"field_hierarchy"`
	EnableStatus   string `gorm:"column:enable_status;size:16" json:"enable_status"`

	// 旧口径代码的交叉引用
	SyncFieldCode string `gorm:"column:sync_field_code;size:64" json:"sync_field_code"`
	HistoryCode   string `gorm:"column:history_code;size:64" json:"history_code"`

	Remarks string `gorm:"column:remarks" json:"remarks"`

	Meta
}

func (e *FieldEntry) updateColumns() map[string]any {
	return map[string]any{
		"field_order":     e.FieldOrder,
		"field_name":      e.FieldName,
		"data_type":       e.DataType,
		"data_type_para":  e.DataTypePara,
		"default_value":   e.DefaultValue,
		"is_not_null":     e.IsNotNull,
		"field_hierarchy": e.FieldHierarchy,
		"enable_status":   e.EnableStatus,
		"sync_field_code": e.SyncFieldCode,
		"history_code":    e.HistoryCode,
		"remarks":         e.Remarks,
		"create_at":       e.CreateAt,
		"update_at":       e.UpdateAt,
	}
}

// FieldSourceEntry 一个字段的一条上游来源登记
//
// 复合标识 (table_code, field_code, source_order)；同一字段的多条来源
// 显式建模并排序，序号小的渠道优先，序号不要求连续但必须唯一。
type FieldSourceEntry struct {
	TableCode   string `gorm:"column:table_code;size:64;primaryKey" json:"table_code" validate:"required"`
	FieldCode   string `gorm:"column:field_code;size:64;primaryKey" json:"field_code" validate:"required"`
	SourceOrder int    `gorm:"column:source_order;primaryKey;autoIncrement:false" json:"source_order"`

	SourceChannel string `gorm:"column:source_channel;size:64" json:"source_channel"`
	SourceTable   string `gorm:"column:source_table;size:64" json:"source_table"`
	SourceField   string `gorm:"column:source_field;size:64" json:"source_field"`
	ChannelStatus string `gorm:"column:channel_status;size:16" json:"channel_status"`

	// IsNeedTransform 为真时 transform_rule 描述取数的过滤/转换规则
	IsNeedTransform bool   `gorm:"column:is_need_transform" json:"is_need_transform"`
	TransformRule   string `gorm:"column:transform_rule" json:"transform_rule"`

	SourceDataType string `gorm:"column:source_data_type;size:32" json:"source_data_type"`
	SourceFormat   string `gorm:"column:source_format;size:64" json:"source_format"`
	SourceUnit     string `gorm:"column:source_unit;size:32" json:"source_unit"`
	MissingValue   string `gorm:"column:missing_value;size:32" json:"missing_value"`

	Remarks string `gorm:"column:remarks" json:"remarks"`

	Meta
}

func (e *FieldSourceEntry) updateColumns() map[string]any {
	return map[string]any{
		"source_channel":    e.SourceChannel,
		"source_table":      e.SourceTable,
		"source_field":      e.SourceField,
		"channel_status":    e.ChannelStatus,
		"is_need_transform": e.IsNeedTransform,
		"transform_rule":    e.TransformRule,
		"source_data_type":  e.SourceDataType,
		"source_format":     e.SourceFormat,
		"source_unit":       e.SourceUnit,
		"missing_value":     e.MissingValue,
		"remarks":           e.Remarks,
		"create_at":         e.CreateAt,
		"update_at":         e.UpdateAt,
	}
}

// TableConstraintEntry 一张表上的一条结构约束声明
//
// 统一建模 pk / uq / fk / idx 四类约束，列清单是有序切片，
// 持久化层的 pos01..pos10 定宽编码只在存储边界出现。
// 标识为 (owner_table, constraint_name, fk_ref_to)，非外键行的
// fk_ref_to 固定为占位值 FkRefToNone。
type TableConstraintEntry struct {
	OwnerTable     string         `json:"owner_table" validate:"required"`
	ConstraintName string         `json:"constraint_name" validate:"required"`
	ConstraintType ConstraintType `json:"constraint_type" validate:"required,oneof=pk uq fk idx"`

	// FkRefTo 外键的目标表；所属表与目标表是对表登记处的两个独立引用
	FkRefTo string `json:"fk_ref_to"`

	// Columns 参与约束的列名，按声明顺序，至多 MaxConstraintColumns 个
	Columns []string `json:"columns"`

	// FkLimit 外键的删除/更新动作描述，如 ON DELETE RESTRICT ON UPDATE CASCADE，
	// 仅 fk 类型要求且允许非空
	FkLimit string `json:"fk_limit"`

	Meta
}

// SameColumns 列清单相等性：非空槽位按序构成的元组相等；
// 相同列不同顺序视为不同声明
func (e *TableConstraintEntry) SameColumns(other *TableConstraintEntry) bool {
	if len(e.Columns) != len(other.Columns) {
		return false
	}
	for i := range e.Columns {
		if e.Columns[i] != other.Columns[i] {
			return false
		}
	}
	return true
}

// constraintRow 约束的持久化行，pos01..pos10 是列清单的定宽编码
type constraintRow struct {
	OwnerTable     string `gorm:"column:owner_table;size:64;primaryKey"`
	ConstraintName string `gorm:"column:constraint_name;size:64;primaryKey"`
	FkRefTo        string `gorm:"column:fk_ref_to;size:64;primaryKey"`
	ConstraintType string `gorm:"column:constraint_type;size:8"`

	Pos01 string `gorm:"column:pos01;size:64"`
	Pos02 string `gorm:"column:pos02;size:64"`
	Pos03 string `gorm:"column:pos03;size:64"`
	Pos04 string `gorm:"column:pos04;size:64"`
	Pos05 string `gorm:"column:pos05;size:64"`
	Pos06 string `gorm:"column:pos06;size:64"`
	Pos07 string `gorm:"column:pos07;size:64"`
	Pos08 string `gorm:"column:pos08;size:64"`
	Pos09 string `gorm:"column:pos09;size:64"`
	Pos10 string `gorm:"column:pos10;size:64"`

	FkLimit string `gorm:"column:fk_limit;size:128"`

	Meta
}

func (r *constraintRow) slots() []*string {
	return []*string{
		&r.Pos01, &r.Pos02, &r.Pos03, &r.Pos04, &r.Pos05,
		&r.Pos06, &r.Pos07, &r.Pos08, &r.Pos09, &r.Pos10,
	}
}

// encodeConstraint 域对象编码为持久化行，列清单从左到右填入槽位，不留空洞
func encodeConstraint(entry *TableConstraintEntry) *constraintRow {
	row := &constraintRow{
		OwnerTable:     entry.OwnerTable,
		ConstraintName: entry.ConstraintName,
		FkRefTo:        entry.FkRefTo,
		ConstraintType: string(entry.ConstraintType),
		FkLimit:        entry.FkLimit,
		Meta:           entry.Meta,
	}
	slots := row.slots()
	for i, column := range entry.Columns {
		*slots[i] = column
	}
	return row
}

// decodeConstraint 持久化行解码为域对象，遇到第一个空槽位即止
func decodeConstraint(row *constraintRow) *TableConstraintEntry {
	entry := &TableConstraintEntry{
		OwnerTable:     row.OwnerTable,
		ConstraintName: row.ConstraintName,
		FkRefTo:        row.FkRefTo,
		ConstraintType: ConstraintType(row.ConstraintType),
		FkLimit:        row.FkLimit,
		Meta:           row.Meta,
	}
	for _, slot := range row.slots() {
		if *slot == "" {
			break
		}
		entry.Columns = append(entry.Columns, *slot)
	}
	return entry
}

func (r *constraintRow) updateColumns() map[string]any {
	return map[string]any{
		"constraint_type": r.ConstraintType,
		"pos01":           r.Pos01,
		"pos02":           r.Pos02,
		"pos03":           r.Pos03,
		"pos04":           r.Pos04,
		"pos05":           r.Pos05,
		"pos06":           r.Pos06,
		"pos07":           r.Pos07,
		"pos08":           r.Pos08,
		"pos09":           r.Pos09,
		"pos10":           r.Pos10,
		"fk_limit":        r.FkLimit,
		"create_at":       r.CreateAt,
		"update_at":       r.UpdateAt,
	}
}

// TableLineage 一张表的只读血缘遍历结果：表 → 字段 → 有序来源
type TableLineage struct {
	Table  *TableEntry     `json:"table"`
	Fields []*FieldLineage `json:"fields"`
}

// FieldLineage 一个字段及其按优先级排序的上游来源
type FieldLineage struct {
	Field   *FieldEntry         `json:"field"`
	Sources []*FieldSourceEntry `json:"sources"`
}
