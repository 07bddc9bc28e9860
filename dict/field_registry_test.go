package dict

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCreateField(t *testing.T) {
	Convey("测试 CreateField 方法", t, func() {
		catalog := newTestCatalog(t)
		defer catalog.Close()
		ctx := context.Background()

		So(catalog.CreateTable(ctx, testTableEntry(1, "fin_base_income")), ShouldBeNil)

		Convey("创建后可按复合标识读回", func() {
			entry := testFieldEntry("fin_base_income", "oper_rev", 1)
			entry.DefaultValue = "0"
			entry.SyncFieldCode = "oper_rev_sync"
			So(catalog.CreateField(ctx, entry), ShouldBeNil)

			got, err := catalog.GetField(ctx, "fin_base_income", "oper_rev")
			So(err, ShouldBeNil)
			So(got.FieldOrder, ShouldEqual, 1)
			So(got.FieldName, ShouldEqual, "营业收入")
			So(got.DataType, ShouldEqual, "numeric")
			So(got.DataTypePara, ShouldEqual, "18,2")
			So(got.DefaultValue, ShouldEqual, "0")
			So(got.SyncFieldCode, ShouldEqual, "oper_rev_sync")
			So(got.UpdateAt.Equal(got.CreateAt), ShouldBeTrue)
		})

		Convey("所属表未注册时返回 ErrUnknownTable", func() {
			err := catalog.CreateField(ctx, testFieldEntry("no_such_table", "oper_rev", 1))
			So(errors.Is(err, ErrUnknownTable), ShouldBeTrue)
		})

		Convey("复合标识重复时返回 ErrDuplicateKey", func() {
			So(catalog.CreateField(ctx, testFieldEntry("fin_base_income", "oper_rev", 1)), ShouldBeNil)
			err := catalog.CreateField(ctx, testFieldEntry("fin_base_income", "oper_rev", 2))
			So(errors.Is(err, ErrDuplicateKey), ShouldBeTrue)
		})

		Convey("WithUpdateOnConflict 时按更新处理", func() {
			So(catalog.CreateField(ctx, testFieldEntry("fin_base_income", "oper_rev", 1)), ShouldBeNil)

			entry := testFieldEntry("fin_base_income", "oper_rev", 5)
			entry.FieldName = "营业总收入"
			So(catalog.CreateField(ctx, entry, WithUpdateOnConflict()), ShouldBeNil)

			got, err := catalog.GetField(ctx, "fin_base_income", "oper_rev")
			So(err, ShouldBeNil)
			So(got.FieldOrder, ShouldEqual, 5)
			So(got.FieldName, ShouldEqual, "营业总收入")
		})

		Convey("不同表允许同名字段", func() {
			So(catalog.CreateTable(ctx, testTableEntry(2, "fin_base_balance")), ShouldBeNil)
			So(catalog.CreateField(ctx, testFieldEntry("fin_base_income", "oper_rev", 1)), ShouldBeNil)
			So(catalog.CreateField(ctx, testFieldEntry("fin_base_balance", "oper_rev", 1)), ShouldBeNil)
		})
	})
}

func TestUpdateField(t *testing.T) {
	Convey("测试 UpdateField 方法", t, func() {
		catalog := newTestCatalog(t)
		defer catalog.Close()
		ctx := context.Background()

		So(catalog.CreateTable(ctx, testTableEntry(1, "fin_base_income")), ShouldBeNil)
		So(catalog.CreateField(ctx, testFieldEntry("fin_base_income", "oper_rev", 1)), ShouldBeNil)

		Convey("不存在的字段返回 ErrNotFound", func() {
			err := catalog.UpdateField(ctx, "fin_base_income", "no_such_field", testFieldEntry("fin_base_income", "no_such_field", 1))
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("整体替换非键属性", func() {
			patch := testFieldEntry("fin_base_income", "oper_rev", 2)
			patch.IsNotNull = true
			patch.EnableStatus = "disabled"
			patch.DataTypePara = ""
			So(catalog.UpdateField(ctx, "fin_base_income", "oper_rev", patch), ShouldBeNil)

			got, err := catalog.GetField(ctx, "fin_base_income", "oper_rev")
			So(err, ShouldBeNil)
			So(got.FieldOrder, ShouldEqual, 2)
			So(got.IsNotNull, ShouldBeTrue)
			So(got.EnableStatus, ShouldEqual, "disabled")
			So(got.DataTypePara, ShouldEqual, "")
		})

		Convey("patch 携带新 field_code 时先级联重命名", func() {
			So(catalog.AddSource(ctx, testSourceEntry("fin_base_income", "oper_rev", 1)), ShouldBeNil)

			patch := testFieldEntry("fin_base_income", "total_oper_rev", 1)
			So(catalog.UpdateField(ctx, "fin_base_income", "oper_rev", patch), ShouldBeNil)

			_, err := catalog.GetField(ctx, "fin_base_income", "oper_rev")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)

			sources, err := catalog.ListSources(ctx, "fin_base_income", "total_oper_rev")
			So(err, ShouldBeNil)
			So(len(sources), ShouldEqual, 1)
		})
	})
}

func TestRenameField(t *testing.T) {
	Convey("测试 RenameField 方法", t, func() {
		catalog := newTestCatalog(t)
		defer catalog.Close()
		ctx := context.Background()

		So(catalog.CreateTable(ctx, testTableEntry(1, "fin_base_income")), ShouldBeNil)
		So(catalog.CreateField(ctx, testFieldEntry("fin_base_income", "oper_rev", 1)), ShouldBeNil)
		So(catalog.CreateField(ctx, testFieldEntry("fin_base_income", "net_profit", 2)), ShouldBeNil)
		So(catalog.AddSource(ctx, testSourceEntry("fin_base_income", "oper_rev", 1)), ShouldBeNil)
		So(catalog.AddSource(ctx, testSourceEntry("fin_base_income", "oper_rev", 2)), ShouldBeNil)

		Convey("级联到来源登记，非键属性不变", func() {
			So(catalog.RenameField(ctx, "fin_base_income", "oper_rev", "total_oper_rev"), ShouldBeNil)

			_, err := catalog.GetField(ctx, "fin_base_income", "oper_rev")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)

			got, err := catalog.GetField(ctx, "fin_base_income", "total_oper_rev")
			So(err, ShouldBeNil)
			So(got.FieldName, ShouldEqual, "营业收入")

			sources, err := catalog.ListSources(ctx, "fin_base_income", "total_oper_rev")
			So(err, ShouldBeNil)
			So(len(sources), ShouldEqual, 2)

			orphans, err := catalog.ListSources(ctx, "fin_base_income", "oper_rev")
			So(err, ShouldBeNil)
			So(len(orphans), ShouldEqual, 0)
		})

		Convey("重命名到已存在的 field_code 返回 ErrDuplicateKey", func() {
			err := catalog.RenameField(ctx, "fin_base_income", "oper_rev", "net_profit")
			So(errors.Is(err, ErrDuplicateKey), ShouldBeTrue)
		})

		Convey("不存在的旧 field_code 返回 ErrNotFound", func() {
			err := catalog.RenameField(ctx, "fin_base_income", "no_such_field", "whatever")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestDeleteField(t *testing.T) {
	Convey("测试 DeleteField 方法", t, func() {
		catalog := newTestCatalog(t)
		defer catalog.Close()
		ctx := context.Background()

		So(catalog.CreateTable(ctx, testTableEntry(1, "fin_base_income")), ShouldBeNil)
		So(catalog.CreateField(ctx, testFieldEntry("fin_base_income", "oper_rev", 1)), ShouldBeNil)

		Convey("被来源登记引用时返回 ErrConflict", func() {
			So(catalog.AddSource(ctx, testSourceEntry("fin_base_income", "oper_rev", 1)), ShouldBeNil)

			err := catalog.DeleteField(ctx, "fin_base_income", "oper_rev")
			So(errors.Is(err, ErrConflict), ShouldBeTrue)

			So(catalog.DeleteSource(ctx, "fin_base_income", "oper_rev", 1), ShouldBeNil)
			So(catalog.DeleteField(ctx, "fin_base_income", "oper_rev"), ShouldBeNil)
		})

		Convey("不存在的字段返回 ErrNotFound", func() {
			err := catalog.DeleteField(ctx, "fin_base_income", "no_such_field")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestListFields(t *testing.T) {
	Convey("测试 ListFields 方法", t, func() {
		catalog := newTestCatalog(t)
		defer catalog.Close()
		ctx := context.Background()

		So(catalog.CreateTable(ctx, testTableEntry(1, "fin_base_income")), ShouldBeNil)
		So(catalog.CreateField(ctx, testFieldEntry("fin_base_income", "net_profit", 3)), ShouldBeNil)
		So(catalog.CreateField(ctx, testFieldEntry("fin_base_income", "oper_rev", 1)), ShouldBeNil)
		So(catalog.CreateField(ctx, testFieldEntry("fin_base_income", "oper_cost", 2)), ShouldBeNil)

		Convey("按 field_order 升序返回", func() {
			fields, err := catalog.ListFields(ctx, "fin_base_income")
			So(err, ShouldBeNil)
			So(len(fields), ShouldEqual, 3)
			So(fields[0].FieldCode, ShouldEqual, "oper_rev")
			So(fields[1].FieldCode, ShouldEqual, "oper_cost")
			So(fields[2].FieldCode, ShouldEqual, "net_profit")
		})

		Convey("没有字段时返回空清单", func() {
			fields, err := catalog.ListFields(ctx, "no_such_table")
			So(err, ShouldBeNil)
			So(len(fields), ShouldEqual, 0)
		})
	})
}
