package logstore

import (
	"context"
	"time"

	"github.com/sensormesh/fabric/pkg/log"
)

type ctxKey string

const ctxKeyBegin ctxKey = "begin"

// queryLogHook satisfies sqlhooks.Hooks, logging every query sqlite3WithHooks
// runs along with its elapsed time.
type queryLogHook struct{}

func (h *queryLogHook) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("logstore query: %s %q", query, args)
	return context.WithValue(ctx, ctxKeyBegin, time.Now()), nil
}

func (h *queryLogHook) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(ctxKeyBegin).(time.Time); ok {
		log.Debugf("logstore query took %s", time.Since(begin))
	}
	return ctx, nil
}
