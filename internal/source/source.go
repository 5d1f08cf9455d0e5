// Package source wraps the external places contacts come from behind one
// capability: given a brief, return raw contacts or fail.
package source

import (
	"context"

	"github.com/octobees/leads-discovery/internal/entity"
)

// Request is the input handed to an adapter for one tier.
type Request struct {
	Brief entity.SearchBrief
	// Seeds are copies of the best contacts found so far. Adapters may read
	// them freely; they are never shared with the caller's canonical set.
	Seeds []entity.Contact
}

// Adapter discovers raw contacts from one source. Implementations must
// honour ctx cancellation and keep no state shared with other adapters.
type Adapter interface {
	Name() string
	Discover(ctx context.Context, req Request) ([]entity.RawContact, error)
}

type requestIDKey struct{}

// WithRequestID attaches the caller's request identifier for outbound provider calls.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the identifier set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}
