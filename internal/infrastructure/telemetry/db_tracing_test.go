package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type tracedRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:100"`
	CreatedAt time.Time
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedRecord{}))
	return db
}

func setupRecorder() (*trace.TracerProvider, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	return trace.NewTracerProvider(trace.WithSpanProcessor(recorder)), recorder
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := DefaultDBTracingConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
	assert.Equal(t, "postgresql", cfg.DBSystem)
	assert.True(t, cfg.WithoutVariables)
}

func TestDBTracingPlugin_RegisterDisabled(t *testing.T) {
	db := setupTestDB(t)

	cfg := DefaultDBTracingConfig()
	plugin := NewDBTracingPlugin(cfg, zap.NewNop())

	assert.NoError(t, plugin.Register(db))
}

func TestDBTracingPlugin_RecordsQuerySpans(t *testing.T) {
	db := setupTestDB(t)
	tp, recorder := setupRecorder()

	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	plugin := NewDBTracingPlugin(cfg, zap.NewNop())
	require.NoError(t, plugin.Register(db))

	ctx, parent := tp.Tracer("test").Start(context.Background(), "parent")
	require.NoError(t, db.WithContext(ctx).Create(&tracedRecord{Name: "exam-room-3"}).Error)

	var out tracedRecord
	require.NoError(t, db.WithContext(ctx).First(&out, "name = ?", "exam-room-3").Error)
	parent.End()

	spans := recorder.Ended()
	require.NotEmpty(t, spans)

	var sawTable bool
	for _, span := range spans {
		for _, attr := range span.Attributes() {
			if string(attr.Key) == "db.sql.table" && attr.Value.AsString() == "traced_records" {
				sawTable = true
			}
		}
	}
	assert.True(t, sawTable, "expected a span carrying the table attribute")
}

func TestDBTracingPlugin_MarksSlowQueries(t *testing.T) {
	db := setupTestDB(t)
	tp, recorder := setupRecorder()

	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	cfg.SlowQueryThresh = 0 // every query counts as slow
	plugin := NewDBTracingPlugin(cfg, zap.NewNop())
	require.NoError(t, plugin.Register(db))

	ctx, parent := tp.Tracer("test").Start(context.Background(), "parent")
	require.NoError(t, db.WithContext(ctx).Create(&tracedRecord{Name: "tablet-7"}).Error)
	parent.End()

	var sawSlow bool
	for _, span := range recorder.Ended() {
		for _, attr := range span.Attributes() {
			if string(attr.Key) == "db.slow_query" && attr.Value.AsBool() {
				sawSlow = true
			}
		}
	}
	assert.True(t, sawSlow, "expected the slow query attribute")
}
