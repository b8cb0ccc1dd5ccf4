package service

import (
	"context"

	"github.com/crf-paris15/crf.tools/internal/lockcrf/store"
)

// LogPublisher receives every log row created or settled by the services.
// Implementations must not block for long and must swallow their own
// failures.
type LogPublisher interface {
	PublishLog(ctx context.Context, rec store.LogRecord)
}

type nopPublisher struct{}

func (nopPublisher) PublishLog(context.Context, store.LogRecord) {}

func orNop(p LogPublisher) LogPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}
