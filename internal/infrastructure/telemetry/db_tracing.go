package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool // include query variables in spans, dev only
	SlowQueryThresh time.Duration
	DBSystem        string
}

// DefaultDBTracingConfig returns default configuration for database tracing.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}
}

type dbContextKey string

const queryStartTimeKey dbContextKey = "db_query_start"

// RegisterDBTracing installs otelgorm on db plus callbacks that flag slow queries
// on the active span and log them.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = DefaultDBTracingConfig().SlowQueryThresh
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	before := func(tx *gorm.DB) {
		if tx.Statement.Context != nil {
			tx.Statement.Context = context.WithValue(tx.Statement.Context, queryStartTimeKey, time.Now())
		}
	}
	after := func(tx *gorm.DB) { markQuery(tx, cfg.SlowQueryThresh, logger) }

	cb := db.Callback()
	steps := []error{
		cb.Create().Before("gorm:create").Register("vitrine_timing:before_create", before),
		cb.Query().Before("gorm:query").Register("vitrine_timing:before_query", before),
		cb.Update().Before("gorm:update").Register("vitrine_timing:before_update", before),
		cb.Delete().Before("gorm:delete").Register("vitrine_timing:before_delete", before),
		cb.Row().Before("gorm:row").Register("vitrine_timing:before_row", before),
		cb.Raw().Before("gorm:raw").Register("vitrine_timing:before_raw", before),
		cb.Create().After("gorm:create").Register("vitrine_timing:after_create", after),
		cb.Query().After("gorm:query").Register("vitrine_timing:after_query", after),
		cb.Update().After("gorm:update").Register("vitrine_timing:after_update", after),
		cb.Delete().After("gorm:delete").Register("vitrine_timing:after_delete", after),
		cb.Row().After("gorm:row").Register("vitrine_timing:after_row", after),
		cb.Raw().After("gorm:raw").Register("vitrine_timing:after_raw", after),
	}
	if err := errors.Join(steps...); err != nil {
		return err
	}

	logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
	)
	return nil
}

func markQuery(tx *gorm.DB, thresh time.Duration, logger *zap.Logger) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	start, ok := ctx.Value(queryStartTimeKey).(time.Time)
	if !ok {
		return
	}
	elapsed := time.Since(start)
	if elapsed <= thresh {
		return
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			attribute.String("db.sql.table", tx.Statement.Table),
		)
	}
	logger.Warn("Slow query",
		zap.String("table", tx.Statement.Table),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", tx.Statement.RowsAffected),
	)
}
