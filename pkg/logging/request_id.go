package logging

import (
	"context"

	"github.com/google/uuid"
)

// GetRequestIDFromCtx returns the id of the kernel callback being served, or
// "" outside of one.
func GetRequestIDFromCtx(ctx context.Context) string {
	requestID, _ := ctx.Value(reqKey).(string)
	return requestID
}

func MakeContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, reqKey, requestID)
}

// MakeContextWithNewRequestID tags ctx with a fresh random id.
func MakeContextWithNewRequestID(ctx context.Context) context.Context {
	return MakeContextWithRequestID(ctx, uuid.NewString())
}
