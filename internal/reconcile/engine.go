package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/parlsync/internal/domain"
	"github.com/timmy/parlsync/internal/logger"
	"github.com/timmy/parlsync/internal/unl"
)

// Tracker wraps work in one ledger run. Implementations begin the run before
// fn and finish it exactly once afterwards, whatever fn does.
type Tracker interface {
	Track(ctx context.Context, kind, label string, fn func(ctx context.Context) (domain.Counters, error)) (domain.RunResult, error)
}

// Engine applies policies to projected records.
type Engine struct {
	store Store
	now   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the timestamp source for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{store: store, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ReconcileTable reconciles records under one ledger run labelled label.
// The run completes even when individual records fail; it fails only on an
// EngineFailure.
func (e *Engine) ReconcileTable(ctx context.Context, tracker Tracker, label string, records []unl.Record, p Policy) (domain.RunResult, error) {
	return tracker.Track(ctx, p.Kind, label, func(ctx context.Context) (domain.Counters, error) {
		return e.Reconcile(ctx, records, p)
	})
}

// Reconcile upserts records in order: update when the key exists, insert
// otherwise. Record-level failures are counted, logged and skipped. The
// returned error is always an *EngineFailure; counters reflect the work done
// up to that point.
func (e *Engine) Reconcile(ctx context.Context, records []unl.Record, p Policy) (domain.Counters, error) {
	var counters domain.Counters
	ctx = logger.SetTable(ctx, p.Table, p.Kind)
	start := time.Now()

	acquired := false
	err := e.store.Session(ctx, func(s Session) error {
		acquired = true
		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				return &EngineFailure{Table: p.Table, Op: "cancelled", Err: err}
			}
			counters.Processed++

			inserted, err := e.apply(ctx, s, p, rec)
			switch {
			case err != nil:
				counters.Failed++
				logger.FromContext(ctx).WithError(err).
					WithField("record", rec.String()).
					Warn("Record failed")
				if ctxErr := ctx.Err(); ctxErr != nil {
					return &EngineFailure{Table: p.Table, Op: "cancelled", Err: ctxErr}
				}
			case inserted:
				counters.Inserted++
			default:
				counters.Updated++
			}
		}
		return nil
	})

	if err != nil {
		var ef *EngineFailure
		if !errors.As(err, &ef) {
			op := "session"
			if !acquired {
				op = "acquire"
			}
			err = &EngineFailure{Table: p.Table, Op: op, Err: err}
		}
	}

	entry := logger.With(logger.Fields{
		logger.FieldCount:    counters.Processed,
		logger.FieldInserted: counters.Inserted,
		logger.FieldUpdated:  counters.Updated,
		logger.FieldFailed:   counters.Failed,
	}).WithSince(start)
	if err != nil {
		entry.Error(ctx, "Reconcile %s aborted: %v", p.Table, err)
	} else {
		entry.Info(ctx, "Reconciled %s", p.Table)
	}
	return counters, err
}

// apply reconciles one record. Panics are converted into record errors.
func (e *Engine) apply(ctx context.Context, s Session, p Policy, rec unl.Record) (inserted bool, err error) {
	stage := "key"
	var key Key
	defer func() {
		if r := recover(); r != nil {
			perr := fmt.Errorf("panic: %v", r)
			if stage == "store" {
				err = &PersistError{Table: p.Table, Op: "upsert", Key: key, Err: perr}
			} else {
				err = &CoercionError{Table: p.Table, Line: rec.Line(), Err: perr}
			}
		}
	}()

	key, err = p.Key(rec)
	if err != nil {
		return false, coercion(p.Table, rec, err)
	}
	stage = "columns"
	cols, err := p.Columns(rec)
	if err != nil {
		return false, coercion(p.Table, rec, err)
	}

	stage = "store"
	exists, err := s.Exists(ctx, p.Table, key)
	if err != nil {
		return false, &PersistError{Table: p.Table, Op: "exists", Key: key, Err: err}
	}

	now := e.now()
	if exists {
		values := make(map[string]interface{}, len(cols)+1)
		for k, v := range cols {
			values[k] = v
		}
		values["updated_at"] = now
		if err := s.Update(ctx, p.Table, key, values); err != nil {
			return false, &PersistError{Table: p.Table, Op: "update", Key: key, Err: err}
		}
		return false, nil
	}

	values := make(map[string]interface{}, len(p.InsertDefaults)+len(cols)+len(key)+2)
	for k, v := range p.InsertDefaults {
		values[k] = v
	}
	for k, v := range cols {
		values[k] = v
	}
	for _, c := range key {
		values[c.Name] = c.Value
	}
	values["created_at"] = now
	values["updated_at"] = now
	if err := s.Insert(ctx, p.Table, values); err != nil {
		return false, &PersistError{Table: p.Table, Op: "insert", Key: key, Err: err}
	}
	return true, nil
}

func coercion(table string, rec unl.Record, err error) error {
	ce := &CoercionError{Table: table, Line: rec.Line(), Err: err}
	var fe *FieldError
	if errors.As(err, &fe) {
		ce.Field = fe.Field
	}
	return ce
}
