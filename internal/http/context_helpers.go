package httpx

import "context"

// Unexported context key types avoid collisions across packages.
type (
	userKey   struct{}
	workerKey struct{}
)

// UserIDHeader carries the end-user identity asserted by the authenticating proxy.
const UserIDHeader = "X-User-ID"

// WithUserID returns a child context carrying the requesting user's id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserIDFromContext returns the requesting user's id and whether one is present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey{}).(string)
	return id, ok && id != ""
}

// WithWorkerID returns a child context carrying the authenticated worker identity.
func WithWorkerID(ctx context.Context, workerID string) context.Context {
	return context.WithValue(ctx, workerKey{}, workerID)
}

// WorkerIDFromContext returns the authenticated worker identity.
func WorkerIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(workerKey{}).(string)
	return id, ok && id != ""
}
