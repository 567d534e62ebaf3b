package middleware

import (
	"context"
	"log/slog"

	"github.com/S1riyS/hfs/pkg/logging"
)

// RequestContext prepares the context of one kernel callback: it carries the
// process logger and a request id. An id already present in ctx is kept.
func RequestContext(ctx context.Context, logger *slog.Logger) context.Context {
	if logger != nil {
		ctx = logging.MakeContextWithLogger(ctx, logger)
	}

	if requestID := logging.GetRequestIDFromCtx(ctx); requestID != "" {
		return ctx
	}

	return logging.MakeContextWithNewRequestID(ctx)
}
