package logger

import (
	"context"
	"os"
	"sync"
)

type contextKey struct{}

var (
	defaultLogger   = build(&Config{Level: "info", Format: "json"}, os.Stdout)
	defaultLoggerMu sync.RWMutex
)

// GetDefault returns the logger used when a context carries none.
func GetDefault() *Logger {
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// SetDefaultLogger replaces the fallback logger. Nil is ignored.
func SetDefaultLogger(l *Logger) {
	if l == nil {
		return
	}
	defaultLoggerMu.Lock()
	defaultLogger = l
	defaultLoggerMu.Unlock()
}

// WithContext attaches l to ctx.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger attached to ctx, or the default.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(contextKey{}).(*Logger); ok {
			return l
		}
	}
	return GetDefault()
}

func withFields(ctx context.Context, fields Fields) context.Context {
	return FromContext(ctx).WithFields(fields).WithContext(ctx)
}

// SetRunID tags every later line logged through ctx with the ledger run.
func SetRunID(ctx context.Context, id string) context.Context {
	return withFields(ctx, Fields{FieldRunID: id})
}

// SetArchive tags ctx with the source archive being processed.
func SetArchive(ctx context.Context, name string) context.Context {
	return withFields(ctx, Fields{FieldArchive: name})
}

// SetTable tags ctx with the table and its ledger kind.
func SetTable(ctx context.Context, table, syncType string) context.Context {
	return withFields(ctx, Fields{FieldTable: table, FieldSyncType: syncType})
}
