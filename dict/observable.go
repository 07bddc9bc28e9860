package dict

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ObservableCatalogOptions 观测装饰器的配置
type ObservableCatalogOptions struct {
	// EnableMetrics 是否启用指标收集
	EnableMetrics bool

	// EnableLogging 是否启用日志记录
	EnableLogging bool

	// EnableTracing 是否启用分布式追踪
	EnableTracing bool

	// Logger 日志记录器，EnableLogging 且为空时使用 slog.Default
	Logger *slog.Logger

	// Name 组件名称标识，作为指标名前缀、日志 component 字段与 span 属性
	Name string
}

// ObservableMetrics 封装 prometheus 指标
type ObservableMetrics struct {
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	activeOperations  *prometheus.GaugeVec
}

// NewObservableMetrics 创建指标收集器，同名收集器重复注册时返回错误
func NewObservableMetrics(name string) (*ObservableMetrics, error) {
	metrics := &ObservableMetrics{
		operationCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_operations_total",
				Help: "Total number of catalog operations",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_operation_duration_seconds",
				Help:    "Duration of catalog operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"operation"},
		),
		activeOperations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: name + "_active_operations",
				Help: "Number of active catalog operations",
			},
			[]string{"operation"},
		),
	}

	for _, collector := range []prometheus.Collector{
		metrics.operationCounter,
		metrics.operationDuration,
		metrics.activeOperations,
	} {
		if err := prometheus.Register(collector); err != nil {
			return nil, errors.WithMessagef(err, "failed to register metrics for %s", name)
		}
	}

	return metrics, nil
}

// ObservableCatalog 装饰器，为 Catalog 添加观测能力
type ObservableCatalog struct {
	catalog Catalog

	logger        *slog.Logger
	metrics       *ObservableMetrics
	tracer        trace.Tracer
	name          string
	enableMetrics bool
	enableLogging bool
	enableTracing bool
}

func NewObservableCatalogWithOptions(catalog Catalog, options *ObservableCatalogOptions) (*ObservableCatalog, error) {
	if catalog == nil {
		return nil, errors.New("catalog is nil")
	}
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if options.Name == "" {
		options.Name = "dict"
	}

	obs := &ObservableCatalog{
		catalog:       catalog,
		name:          options.Name,
		enableMetrics: options.EnableMetrics,
		enableLogging: options.EnableLogging,
		enableTracing: options.EnableTracing,
	}

	if options.EnableLogging {
		logger := options.Logger
		if logger == nil {
			logger = slog.Default()
		}
		obs.logger = logger.WithGroup("observableCatalog")
	}

	if options.EnableMetrics {
		metrics, err := NewObservableMetrics(options.Name)
		if err != nil {
			return nil, err
		}
		obs.metrics = metrics
	}

	if options.EnableTracing {
		obs.tracer = otel.Tracer(fmt.Sprintf("catalog.%s", options.Name))
	}

	return obs, nil
}

// observeOperation 统一的操作观测逻辑
func (obs *ObservableCatalog) observeOperation(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := time.Now()

	var span trace.Span
	if obs.enableTracing && obs.tracer != nil {
		ctx, span = obs.tracer.Start(ctx, fmt.Sprintf("catalog.%s", operation),
			trace.WithAttributes(
				attribute.String("component", obs.name),
				attribute.String("operation", operation),
			),
		)
		defer span.End()
	}

	if obs.enableMetrics && obs.metrics != nil {
		obs.metrics.activeOperations.WithLabelValues(operation).Inc()
		defer obs.metrics.activeOperations.WithLabelValues(operation).Dec()
	}

	err := fn(ctx)
	duration := time.Since(start)

	if obs.enableTracing && span != nil {
		span.SetAttributes(
			attribute.Int64("duration_ms", duration.Milliseconds()),
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if obs.enableMetrics && obs.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		obs.metrics.operationCounter.WithLabelValues(operation, status).Inc()
		obs.metrics.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}

	if obs.enableLogging && obs.logger != nil {
		if err != nil {
			obs.logger.ErrorContext(ctx, "catalog operation failed",
				"component", obs.name,
				"operation", operation,
				"duration_ms", duration.Milliseconds(),
				"error", err.Error(),
			)
		} else {
			obs.logger.InfoContext(ctx, "catalog operation completed",
				"component", obs.name,
				"operation", operation,
				"duration_ms", duration.Milliseconds(),
			)
		}
	}

	return err
}

func (obs *ObservableCatalog) Migrate(ctx context.Context) error {
	return obs.observeOperation(ctx, "Migrate", func(ctx context.Context) error {
		return obs.catalog.Migrate(ctx)
	})
}

func (obs *ObservableCatalog) Close() error {
	return obs.catalog.Close()
}

func (obs *ObservableCatalog) CreateTable(ctx context.Context, entry *TableEntry, opts ...CreateOption) error {
	return obs.observeOperation(ctx, "CreateTable", func(ctx context.Context) error {
		return obs.catalog.CreateTable(ctx, entry, opts...)
	})
}

func (obs *ObservableCatalog) GetTable(ctx context.Context, tableCode string) (*TableEntry, error) {
	var entry *TableEntry
	err := obs.observeOperation(ctx, "GetTable", func(ctx context.Context) error {
		var err error
		entry, err = obs.catalog.GetTable(ctx, tableCode)
		return err
	})
	return entry, err
}

func (obs *ObservableCatalog) UpdateTable(ctx context.Context, tableCode string, patch *TableEntry) error {
	return obs.observeOperation(ctx, "UpdateTable", func(ctx context.Context) error {
		return obs.catalog.UpdateTable(ctx, tableCode, patch)
	})
}

func (obs *ObservableCatalog) RenameTable(ctx context.Context, oldCode string, newCode string) error {
	return obs.observeOperation(ctx, "RenameTable", func(ctx context.Context) error {
		return obs.catalog.RenameTable(ctx, oldCode, newCode)
	})
}

func (obs *ObservableCatalog) DeleteTable(ctx context.Context, tableCode string) error {
	return obs.observeOperation(ctx, "DeleteTable", func(ctx context.Context) error {
		return obs.catalog.DeleteTable(ctx, tableCode)
	})
}

func (obs *ObservableCatalog) ListTables(ctx context.Context, opts ...ListTablesOption) ([]*TableEntry, error) {
	var entries []*TableEntry
	err := obs.observeOperation(ctx, "ListTables", func(ctx context.Context) error {
		var err error
		entries, err = obs.catalog.ListTables(ctx, opts...)
		return err
	})
	return entries, err
}

func (obs *ObservableCatalog) CreateField(ctx context.Context, entry *FieldEntry, opts ...CreateOption) error {
	return obs.observeOperation(ctx, "CreateField", func(ctx context.Context) error {
		return obs.catalog.CreateField(ctx, entry, opts...)
	})
}

func (obs *ObservableCatalog) GetField(ctx context.Context, tableCode string, fieldCode string) (*FieldEntry, error) {
	var entry *FieldEntry
	err := obs.observeOperation(ctx, "GetField", func(ctx context.Context) error {
		var err error
		entry, err = obs.catalog.GetField(ctx, tableCode, fieldCode)
		return err
	})
	return entry, err
}

func (obs *ObservableCatalog) UpdateField(ctx context.Context, tableCode string, fieldCode string, patch *FieldEntry) error {
	return obs.observeOperation(ctx, "UpdateField", func(ctx context.Context) error {
		return obs.catalog.UpdateField(ctx, tableCode, fieldCode, patch)
	})
}

func (obs *ObservableCatalog) RenameField(ctx context.Context, tableCode string, oldCode string, newCode string) error {
	return obs.observeOperation(ctx, "RenameField", func(ctx context.Context) error {
		return obs.catalog.RenameField(ctx, tableCode, oldCode, newCode)
	})
}

func (obs *ObservableCatalog) DeleteField(ctx context.Context, tableCode string, fieldCode string) error {
	return obs.observeOperation(ctx, "DeleteField", func(ctx context.Context) error {
		return obs.catalog.DeleteField(ctx, tableCode, fieldCode)
	})
}

func (obs *ObservableCatalog) ListFields(ctx context.Context, tableCode string) ([]*FieldEntry, error) {
	var entries []*FieldEntry
	err := obs.observeOperation(ctx, "ListFields", func(ctx context.Context) error {
		var err error
		entries, err = obs.catalog.ListFields(ctx, tableCode)
		return err
	})
	return entries, err
}

func (obs *ObservableCatalog) AddSource(ctx context.Context, entry *FieldSourceEntry, opts ...CreateOption) error {
	return obs.observeOperation(ctx, "AddSource", func(ctx context.Context) error {
		return obs.catalog.AddSource(ctx, entry, opts...)
	})
}

func (obs *ObservableCatalog) GetSource(ctx context.Context, tableCode string, fieldCode string, sourceOrder int) (*FieldSourceEntry, error) {
	var entry *FieldSourceEntry
	err := obs.observeOperation(ctx, "GetSource", func(ctx context.Context) error {
		var err error
		entry, err = obs.catalog.GetSource(ctx, tableCode, fieldCode, sourceOrder)
		return err
	})
	return entry, err
}

func (obs *ObservableCatalog) UpdateSource(ctx context.Context, tableCode string, fieldCode string, sourceOrder int, patch *FieldSourceEntry) error {
	return obs.observeOperation(ctx, "UpdateSource", func(ctx context.Context) error {
		return obs.catalog.UpdateSource(ctx, tableCode, fieldCode, sourceOrder, patch)
	})
}

func (obs *ObservableCatalog) ReorderSource(ctx context.Context, tableCode string, fieldCode string, oldOrder int, newOrder int) error {
	return obs.observeOperation(ctx, "ReorderSource", func(ctx context.Context) error {
		return obs.catalog.ReorderSource(ctx, tableCode, fieldCode, oldOrder, newOrder)
	})
}

func (obs *ObservableCatalog) DeleteSource(ctx context.Context, tableCode string, fieldCode string, sourceOrder int) error {
	return obs.observeOperation(ctx, "DeleteSource", func(ctx context.Context) error {
		return obs.catalog.DeleteSource(ctx, tableCode, fieldCode, sourceOrder)
	})
}

func (obs *ObservableCatalog) ListSources(ctx context.Context, tableCode string, fieldCode string) ([]*FieldSourceEntry, error) {
	var entries []*FieldSourceEntry
	err := obs.observeOperation(ctx, "ListSources", func(ctx context.Context) error {
		var err error
		entries, err = obs.catalog.ListSources(ctx, tableCode, fieldCode)
		return err
	})
	return entries, err
}

func (obs *ObservableCatalog) Lineage(ctx context.Context, tableCode string) (*TableLineage, error) {
	var lineage *TableLineage
	err := obs.observeOperation(ctx, "Lineage", func(ctx context.Context) error {
		var err error
		lineage, err = obs.catalog.Lineage(ctx, tableCode)
		return err
	})
	return lineage, err
}

func (obs *ObservableCatalog) DeclareConstraint(ctx context.Context, entry *TableConstraintEntry) error {
	return obs.observeOperation(ctx, "DeclareConstraint", func(ctx context.Context) error {
		return obs.catalog.DeclareConstraint(ctx, entry)
	})
}

func (obs *ObservableCatalog) GetConstraint(ctx context.Context, ownerTable string, constraintName string, fkRefTo string) (*TableConstraintEntry, error) {
	var entry *TableConstraintEntry
	err := obs.observeOperation(ctx, "GetConstraint", func(ctx context.Context) error {
		var err error
		entry, err = obs.catalog.GetConstraint(ctx, ownerTable, constraintName, fkRefTo)
		return err
	})
	return entry, err
}

func (obs *ObservableCatalog) DeleteConstraint(ctx context.Context, ownerTable string, constraintName string, fkRefTo string) error {
	return obs.observeOperation(ctx, "DeleteConstraint", func(ctx context.Context) error {
		return obs.catalog.DeleteConstraint(ctx, ownerTable, constraintName, fkRefTo)
	})
}

func (obs *ObservableCatalog) ListConstraints(ctx context.Context, ownerTable string, opts ...ListConstraintsOption) ([]*TableConstraintEntry, error) {
	var entries []*TableConstraintEntry
	err := obs.observeOperation(ctx, "ListConstraints", func(ctx context.Context) error {
		var err error
		entries, err = obs.catalog.ListConstraints(ctx, ownerTable, opts...)
		return err
	})
	return entries, err
}
