package ddl

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"

	"github.com/hatlonely/dictx/dict"
)

func newTestGenerator(t *testing.T) (*Generator, dict.Catalog) {
	t.Helper()
	catalog, err := dict.NewCatalogWithOptions(&dict.CatalogOptions{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "dict.db"),
	})
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	if err := catalog.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate catalog: %v", err)
	}
	generator, err := NewGeneratorWithOptions(catalog, nil)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}
	return generator, catalog
}

// registerIncomeTable 登记一张利润表及其字段、约束
func registerIncomeTable(t *testing.T, catalog dict.Catalog) {
	t.Helper()
	ctx := context.Background()

	for _, err := range []error{
		catalog.CreateTable(ctx, &dict.TableEntry{
			ID: 1, TableCode: "fin_base_income", TableName: "利润表", DBSegment: "fin",
		}),
		catalog.CreateTable(ctx, &dict.TableEntry{
			ID: 2, TableCode: "mkt_stock_basic", TableName: "股票基本信息", DBSegment: "mkt",
		}),
		catalog.CreateField(ctx, &dict.FieldEntry{
			TableCode: "fin_base_income", FieldCode: "stock_code", FieldOrder: 1,
			FieldName: "股票代码", DataType: "varchar", DataTypePara: "16", IsNotNull: true,
		}),
		catalog.CreateField(ctx, &dict.FieldEntry{
			TableCode: "fin_base_income", FieldCode: "report_date", FieldOrder: 2,
			FieldName: "报告期", DataType: "date", IsNotNull: true,
		}),
		catalog.CreateField(ctx, &dict.FieldEntry{
			TableCode: "fin_base_income", FieldCode: "oper_rev", FieldOrder: 3,
			FieldName: "营业收入", DataType: "numeric", DataTypePara: "18,2",
			DefaultValue: "0", SyncFieldCode: "or001", Remarks: "合并报表口径",
		}),
		catalog.CreateField(ctx, &dict.FieldEntry{
			TableCode: "mkt_stock_basic", FieldCode: "stock_code", FieldOrder: 1,
			FieldName: "股票代码", DataType: "varchar", DataTypePara: "16", IsNotNull: true,
		}),
		catalog.DeclareConstraint(ctx, &dict.TableConstraintEntry{
			OwnerTable: "fin_base_income", ConstraintName: "pk_fin_base_income",
			ConstraintType: dict.ConstraintTypePK, Columns: []string{"stock_code", "report_date"},
		}),
		catalog.DeclareConstraint(ctx, &dict.TableConstraintEntry{
			OwnerTable: "mkt_stock_basic", ConstraintName: "pk_mkt_stock_basic",
			ConstraintType: dict.ConstraintTypePK, Columns: []string{"stock_code"},
		}),
		catalog.DeclareConstraint(ctx, &dict.TableConstraintEntry{
			OwnerTable: "fin_base_income", ConstraintName: "fk_stock_code",
			ConstraintType: dict.ConstraintTypeFK, FkRefTo: "mkt_stock_basic",
			Columns: []string{"stock_code"}, FkLimit: "ON DELETE RESTRICT ON UPDATE CASCADE",
		}),
	} {
		if err != nil {
			t.Fatalf("failed to register fixture: %v", err)
		}
	}
}

func TestCreateTableSQL(t *testing.T) {
	Convey("测试 CreateTableSQL 方法", t, func() {
		generator, catalog := newTestGenerator(t)
		defer catalog.Close()
		ctx := context.Background()
		registerIncomeTable(t, catalog)

		Convey("字段按登记顺序给出，类型、默认值与约束齐全", func() {
			sql, err := generator.CreateTableSQL(ctx, "fin_base_income")
			So(err, ShouldBeNil)

			So(sql, ShouldStartWith, "CREATE TABLE IF NOT EXISTS public.fin_base_income (")
			So(sql, ShouldEndWith, ");")
			So(sql, ShouldContainSubstring, "    stock_code varchar(16) NOT NULL,")
			So(sql, ShouldContainSubstring, "    report_date date NOT NULL,")
			// 有默认值且允许为空时不写 NULL/NOT NULL
			So(sql, ShouldContainSubstring, "    oper_rev numeric(18,2) DEFAULT 0,")
			So(sql, ShouldContainSubstring, "CONSTRAINT pk_fin_base_income PRIMARY KEY (stock_code, report_date)")
			So(sql, ShouldContainSubstring,
				"CONSTRAINT fk_stock_code FOREIGN KEY (stock_code) REFERENCES public.mkt_stock_basic(stock_code) ON DELETE RESTRICT ON UPDATE CASCADE")

			// 字段顺序与 field_order 一致
			So(strings.Index(sql, "stock_code varchar"), ShouldBeLessThan, strings.Index(sql, "report_date date"))
			So(strings.Index(sql, "report_date date"), ShouldBeLessThan, strings.Index(sql, "oper_rev numeric"))
		})

		Convey("未登记字段的表报错", func() {
			So(catalog.CreateTable(ctx, &dict.TableEntry{ID: 9, TableCode: "fin_base_empty"}), ShouldBeNil)
			_, err := generator.CreateTableSQL(ctx, "fin_base_empty")
			So(err, ShouldNotBeNil)
		})

		Convey("未注册的表返回 ErrNotFound", func() {
			_, err := generator.CreateTableSQL(ctx, "no_such_table")
			So(err, ShouldNotBeNil)
		})

		Convey("自定义 schema 与缩进", func() {
			custom, err := NewGeneratorWithOptions(catalog, &GeneratorOptions{Schema: "dw", SpaceIndent: 2})
			So(err, ShouldBeNil)

			sql, err := custom.CreateTableSQL(ctx, "mkt_stock_basic")
			So(err, ShouldBeNil)
			So(sql, ShouldStartWith, "CREATE TABLE IF NOT EXISTS dw.mkt_stock_basic (")
			So(sql, ShouldContainSubstring, "\n  stock_code varchar(16) NOT NULL,")
		})
	})
}

func TestCommentSQL(t *testing.T) {
	Convey("测试 CommentSQL 方法", t, func() {
		generator, catalog := newTestGenerator(t)
		defer catalog.Close()
		ctx := context.Background()
		registerIncomeTable(t, catalog)

		Convey("表注释在前，字段注释按登记顺序", func() {
			statements, err := generator.CommentSQL(ctx, "fin_base_income")
			So(err, ShouldBeNil)
			So(len(statements), ShouldEqual, 4)
			So(statements[0], ShouldEqual, "COMMENT ON TABLE public.fin_base_income IS '利润表';")
			So(statements[1], ShouldEqual, "COMMENT ON COLUMN public.fin_base_income.stock_code IS '股票代码';")
			// 旧口径代码与备注拼进字段注释
			So(statements[3], ShouldEqual, "COMMENT ON COLUMN public.fin_base_income.oper_rev IS '营业收入, or001: 合并报表口径';")
		})

		Convey("注释中的单引号转义", func() {
			So(catalog.CreateField(ctx, &dict.FieldEntry{
				TableCode: "mkt_stock_basic", FieldCode: "list_board", FieldOrder: 2,
				FieldName: "上市板块", DataType: "varchar", DataTypePara: "32", Remarks: "含'北交所'",
			}), ShouldBeNil)

			statements, err := generator.CommentSQL(ctx, "mkt_stock_basic")
			So(err, ShouldBeNil)
			So(statements[2], ShouldContainSubstring, "IS '上市板块: 含''北交所''';")
		})
	})
}

func TestUpdateTriggerSQL(t *testing.T) {
	generator, catalog := newTestGenerator(t)
	defer catalog.Close()

	sql := generator.UpdateTriggerSQL("fin_base_income")
	assert.Equal(t, `CREATE TRIGGER fin_base_income_update BEFORE
    UPDATE ON public.fin_base_income
    FOR EACH ROW EXECUTE FUNCTION set_update_at();`, sql)
}

func TestTableDDL(t *testing.T) {
	Convey("测试 TableDDL 方法", t, func() {
		generator, catalog := newTestGenerator(t)
		defer catalog.Close()
		ctx := context.Background()
		registerIncomeTable(t, catalog)

		Convey("建表、注释、触发器依次拼接", func() {
			sql, err := generator.TableDDL(ctx, "fin_base_income")
			So(err, ShouldBeNil)
			So(strings.Index(sql, "CREATE TABLE"), ShouldBeLessThan, strings.Index(sql, "COMMENT ON TABLE"))
			So(strings.Index(sql, "COMMENT ON TABLE"), ShouldBeLessThan, strings.Index(sql, "COMMENT ON COLUMN"))
			So(strings.Index(sql, "COMMENT ON COLUMN"), ShouldBeLessThan, strings.Index(sql, "CREATE TRIGGER"))
			So(sql, ShouldContainSubstring, "EXECUTE FUNCTION set_update_at();")
		})
	})
}

func TestNewGeneratorWithOptions(t *testing.T) {
	_, catalog := newTestGenerator(t)
	defer catalog.Close()

	generator, err := NewGeneratorWithOptions(nil, nil)
	assert.Error(t, err)
	assert.Nil(t, generator)
}
