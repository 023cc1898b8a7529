package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"

	"github.com/smallbiznis/billingcore/internal/auditcontext"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	assert.Error(t, err)

	log, err := New(nil, Config{Level: "warn", Format: "console"})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
}

func TestWithContextAddsActorAndRequest(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := auditcontext.WithActor(context.Background(), snowflake.ID(99))
	ctx = auditcontext.WithRequestID(ctx, "req-7")

	WithContext(ctx, zap.New(core)).Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "99", fields["actor_id"])
	assert.Equal(t, "req-7", fields["request_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestGormLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), GormLoggerConfig{Level: gormlogger.Warn, SlowThreshold: 100 * time.Millisecond})

	query := func() (string, int64) { return "UPDATE invoices SET paid_amount = ?", 1 }

	gl.Trace(context.Background(), time.Now(), query, nil)
	assert.Equal(t, 0, logs.Len())

	gl.Trace(context.Background(), time.Now().Add(-time.Second), query, nil)
	gl.Trace(context.Background(), time.Now(), query, errors.New("boom"))
	gl.Trace(context.Background(), time.Now(), query, gormlogger.ErrRecordNotFound)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "UPDATE", entries[0].ContextMap()["operation"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)

	silent := gl.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), query, errors.New("boom"))
	assert.Equal(t, 2, logs.Len())
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.Equal(t, "INSERT", operationFromSQL("  insert into payments values (1)"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}
