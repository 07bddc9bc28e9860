// Package ddl 依据字典登记内容生成数仓物理表的建表语句、注释语句
// 与更新时间触发器，供结构校验/报表工具核对物理库与登记口径。
package ddl

import (
	"context"
	"fmt"
	"strings"

	"github.com/hatlonely/dictx/dict"
	"github.com/pkg/errors"
)

// GeneratorOptions DDL 生成选项
type GeneratorOptions struct {
	// 目标 schema，默认 public
	Schema string

	// 字段与约束定义行的缩进空格数，默认 4
	SpaceIndent int

	// 更新触发器的名称后缀与触发函数，默认 update / set_update_at
	TriggerSuffix   string
	TriggerFunction string
}

// Generator 把四类登记项拼装为物理表 DDL
type Generator struct {
	catalog dict.Catalog

	schema          string
	indent          string
	triggerSuffix   string
	triggerFunction string
}

func NewGeneratorWithOptions(catalog dict.Catalog, options *GeneratorOptions) (*Generator, error) {
	if catalog == nil {
		return nil, errors.New("catalog is nil")
	}
	if options == nil {
		options = &GeneratorOptions{}
	}
	if options.Schema == "" {
		options.Schema = "public"
	}
	if options.SpaceIndent == 0 {
		options.SpaceIndent = 4
	}
	if options.TriggerSuffix == "" {
		options.TriggerSuffix = "update"
	}
	if options.TriggerFunction == "" {
		options.TriggerFunction = "set_update_at"
	}

	return &Generator{
		catalog:         catalog,
		schema:          options.Schema,
		indent:          strings.Repeat(" ", options.SpaceIndent),
		triggerSuffix:   options.TriggerSuffix,
		triggerFunction: options.TriggerFunction,
	}, nil
}

// fieldDef 拼接一行字段定义
//
// 有默认值且允许为空时不写 NULL/NOT NULL，其余情况显式给出
func (g *Generator) fieldDef(field *dict.FieldEntry) string {
	typeText := field.DataType
	if field.DataTypePara != "" {
		typeText = fmt.Sprintf("%s(%s)", field.DataType, field.DataTypePara)
	}

	defaultText := ""
	if field.DefaultValue != "" {
		defaultText = " DEFAULT " + field.DefaultValue
	}

	nullable := " NULL"
	if field.IsNotNull {
		nullable = " NOT NULL"
	}
	if defaultText != "" && !field.IsNotNull {
		nullable = ""
	}

	return fmt.Sprintf("%s%s %s%s%s", g.indent, field.FieldCode, typeText, defaultText, nullable)
}

// constraintDef 拼接一行约束定义
func (g *Generator) constraintDef(ctx context.Context, constraint *dict.TableConstraintEntry) (string, error) {
	columns := strings.Join(constraint.Columns, ", ")

	switch constraint.ConstraintType {
	case dict.ConstraintTypePK:
		return fmt.Sprintf("%sCONSTRAINT %s PRIMARY KEY (%s)", g.indent, constraint.ConstraintName, columns), nil
	case dict.ConstraintTypeUQ:
		return fmt.Sprintf("%sCONSTRAINT %s UNIQUE (%s)", g.indent, constraint.ConstraintName, columns), nil
	case dict.ConstraintTypeIdx:
		return fmt.Sprintf("%sCONSTRAINT %s INDEX (%s)", g.indent, constraint.ConstraintName, columns), nil
	case dict.ConstraintTypeFK:
		refColumns, err := g.fkRefColumns(ctx, constraint)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%sCONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s.%s(%s) %s",
			g.indent, constraint.ConstraintName, columns,
			g.schema, constraint.FkRefTo, strings.Join(refColumns, ", "), constraint.FkLimit), nil
	default:
		return "", errors.Errorf("%s: unsupported constraint type: %s", constraint.OwnerTable, constraint.ConstraintType)
	}
}

// fkRefColumns 外键引用的目标列：目标表声明了主键时取主键列，
// 否则按同名列引用本约束的列清单
func (g *Generator) fkRefColumns(ctx context.Context, constraint *dict.TableConstraintEntry) ([]string, error) {
	pks, err := g.catalog.ListConstraints(ctx, constraint.FkRefTo, dict.WithConstraintType(dict.ConstraintTypePK))
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to resolve pk of fk target %s", constraint.FkRefTo)
	}
	if len(pks) > 0 {
		return pks[0].Columns, nil
	}
	return constraint.Columns, nil
}

// CreateTableSQL 生成一张表的建表语句，字段按 field_order 排序
func (g *Generator) CreateTableSQL(ctx context.Context, tableCode string) (string, error) {
	if _, err := g.catalog.GetTable(ctx, tableCode); err != nil {
		return "", err
	}
	fields, err := g.catalog.ListFields(ctx, tableCode)
	if err != nil {
		return "", err
	}
	if len(fields) == 0 {
		return "", errors.Errorf("table %s has no fields registered", tableCode)
	}
	constraints, err := g.catalog.ListConstraints(ctx, tableCode)
	if err != nil {
		return "", err
	}

	var lines []string
	for _, field := range fields {
		lines = append(lines, g.fieldDef(field))
	}
	for _, constraint := range constraints {
		line, err := g.constraintDef(ctx, constraint)
		if err != nil {
			return "", err
		}
		lines = append(lines, line)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (\n%s\n);", g.schema, tableCode, strings.Join(lines, ",\n")), nil
}

// CommentSQL 生成表注释与逐字段注释语句
//
// 字段注释由字段名拼接旧口径代码与备注组成，与物理库中现存注释的
// 拼法保持一致
func (g *Generator) CommentSQL(ctx context.Context, tableCode string) ([]string, error) {
	table, err := g.catalog.GetTable(ctx, tableCode)
	if err != nil {
		return nil, err
	}
	fields, err := g.catalog.ListFields(ctx, tableCode)
	if err != nil {
		return nil, err
	}

	var statements []string
	if table.TableName != "" {
		statements = append(statements, fmt.Sprintf("COMMENT ON TABLE %s.%s IS '%s';",
			g.schema, tableCode, quote(table.TableName)))
	}
	for _, field := range fields {
		comment := field.FieldName
		if field.SyncFieldCode != "" {
			comment += ", " + field.SyncFieldCode
		}
		if field.HistoryCode != "" {
			comment += ", " + field.HistoryCode
		}
		if field.Remarks != "" {
			comment += ": " + field.Remarks
		}
		statements = append(statements, fmt.Sprintf("COMMENT ON COLUMN %s.%s.%s IS '%s';",
			g.schema, tableCode, field.FieldCode, quote(comment)))
	}
	return statements, nil
}

// UpdateTriggerSQL 生成更新时间戳触发器语句，触发函数由数仓侧统一提供
func (g *Generator) UpdateTriggerSQL(tableCode string) string {
	return fmt.Sprintf(`CREATE TRIGGER %s_%s BEFORE
%sUPDATE ON %s.%s
%sFOR EACH ROW EXECUTE FUNCTION %s();`,
		tableCode, g.triggerSuffix, g.indent, g.schema, tableCode, g.indent, g.triggerFunction)
}

// TableDDL 一张表的完整 DDL：建表语句、注释语句、更新触发器
func (g *Generator) TableDDL(ctx context.Context, tableCode string) (string, error) {
	createSQL, err := g.CreateTableSQL(ctx, tableCode)
	if err != nil {
		return "", err
	}
	comments, err := g.CommentSQL(ctx, tableCode)
	if err != nil {
		return "", err
	}

	parts := append([]string{createSQL}, comments...)
	parts = append(parts, g.UpdateTriggerSQL(tableCode))
	return strings.Join(parts, "\n"), nil
}

func quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
