package dict

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// CatalogOptions 目录存储的连接配置
type CatalogOptions struct {
	// 数据库驱动：sqlite, mysql
	Driver string `json:"driver" yaml:"driver" toml:"driver" ini:"driver" validate:"omitempty,oneof=sqlite mysql"`

	// 数据源名称，直接给出时忽略下面的拼装字段
	DSN string `json:"dsn" yaml:"dsn" toml:"dsn" ini:"dsn"`

	Host     string `json:"host" yaml:"host" toml:"host" ini:"host"`
	Port     string `json:"port" yaml:"port" toml:"port" ini:"port"`
	Database string `json:"database" yaml:"database" toml:"database" ini:"database"`
	Username string `json:"username" yaml:"username" toml:"username" ini:"username"`
	Password string `json:"password" yaml:"password" toml:"password" ini:"password"`
	Charset  string `json:"charset" yaml:"charset" toml:"charset" ini:"charset"`

	MaxConns int `json:"maxConns" yaml:"maxConns" toml:"maxConns" ini:"maxConns"`
	MaxIdle  int `json:"maxIdle" yaml:"maxIdle" toml:"maxIdle" ini:"maxIdle"`

	// GORM 配置，默认关闭 SQL 日志
	GormConfig *gorm.Config `json:"-" yaml:"-" toml:"-" ini:"-"`
}

var validate = validator.New()

// catalog Catalog 的 GORM 实现，四个登记处共享同一个连接
type catalog struct {
	db *gorm.DB
}

// NewCatalogWithOptions 打开目录存储
func NewCatalogWithOptions(options *CatalogOptions) (Catalog, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if err := validate.Struct(options); err != nil {
		return nil, errors.WithMessage(err, "invalid options")
	}

	// 设置默认值
	if options.Driver == "" {
		options.Driver = "sqlite"
	}
	if options.Host == "" {
		options.Host = "localhost"
	}
	if options.Port == "" {
		options.Port = "3306"
	}
	if options.Charset == "" {
		options.Charset = "utf8mb4"
	}
	if options.MaxConns == 0 {
		options.MaxConns = 10
	}
	if options.MaxIdle == 0 {
		options.MaxIdle = 5
	}
	if options.GormConfig == nil {
		options.GormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		}
	}

	dsn := options.DSN
	if dsn == "" {
		switch options.Driver {
		case "sqlite":
			dsn = options.Database
		case "mysql":
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=Local",
				options.Username, options.Password, options.Host, options.Port, options.Database, options.Charset)
		}
	}

	var db *gorm.DB
	var err error
	switch options.Driver {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(dsn), options.GormConfig)
	case "mysql":
		db, err = gorm.Open(mysql.Open(dsn), options.GormConfig)
	default:
		return nil, errors.Errorf("unsupported driver: %s", options.Driver)
	}
	if err != nil {
		return nil, errors.WithMessage(err, "failed to connect database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.WithMessage(err, "failed to get underlying sql.DB")
	}
	sqlDB.SetMaxOpenConns(options.MaxConns)
	sqlDB.SetMaxIdleConns(options.MaxIdle)

	return &catalog{db: db}, nil
}

// Migrate 建立/更新四张字典表的持久化布局
func (c *catalog) Migrate(ctx context.Context) error {
	db := c.db.WithContext(ctx)
	if err := db.Table(tableInfoTable).AutoMigrate(&TableEntry{}); err != nil {
		return errors.WithMessagef(err, "failed to migrate %s", tableInfoTable)
	}
	if err := db.Table(fieldInfoTable).AutoMigrate(&FieldEntry{}); err != nil {
		return errors.WithMessagef(err, "failed to migrate %s", fieldInfoTable)
	}
	if err := db.Table(fieldSourceTable).AutoMigrate(&FieldSourceEntry{}); err != nil {
		return errors.WithMessagef(err, "failed to migrate %s", fieldSourceTable)
	}
	if err := db.Table(tableConstraintsTable).AutoMigrate(&constraintRow{}); err != nil {
		return errors.WithMessagef(err, "failed to migrate %s", tableConstraintsTable)
	}
	return nil
}

func (c *catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return errors.WithMessage(err, "failed to get underlying sql.DB")
	}
	return sqlDB.Close()
}

// transaction 每个操作都是对存储的一个事务，级联失败时整体回滚
func (c *catalog) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.db.WithContext(ctx).Transaction(fn)
}

// tableExists 指定 table_code 是否已在表登记处注册
func tableExists(tx *gorm.DB, tableCode string) (bool, error) {
	var count int64
	if err := tx.Table(tableInfoTable).Where("table_code = ?", tableCode).Count(&count).Error; err != nil {
		return false, errors.WithMessage(err, "failed to query table registry")
	}
	return count > 0, nil
}

// fieldExists 指定 (table_code, field_code) 是否已在字段登记处注册
func fieldExists(tx *gorm.DB, tableCode string, fieldCode string) (bool, error) {
	var count int64
	if err := tx.Table(fieldInfoTable).
		Where("table_code = ? AND field_code = ?", tableCode, fieldCode).
		Count(&count).Error; err != nil {
		return false, errors.WithMessage(err, "failed to query field registry")
	}
	return count > 0, nil
}
