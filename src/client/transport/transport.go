// Package transport performs the raw resource calls behind the request cache.
package transport

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrUnknownResource indicates a resource name no route is registered for.
	ErrUnknownResource = errors.New("transport: unknown resource")
	// ErrInvalidParams indicates params that cannot be mapped onto a request.
	ErrInvalidParams = errors.New("transport: invalid params")
	// ErrStatus indicates a non-success HTTP status.
	ErrStatus = errors.New("transport: unexpected status")
	// ErrInvalidBody indicates a response body that is not JSON.
	ErrInvalidBody = errors.New("transport: response is not valid JSON")
)

// Params is the parameter set of one resource call.
type Params map[string]any

// Transport performs one uncached call for a named resource.
type Transport interface {
	Call(ctx context.Context, resource string, params Params) (json.RawMessage, error)
}

// Func adapts a plain function to Transport.
type Func func(ctx context.Context, resource string, params Params) (json.RawMessage, error)

func (f Func) Call(ctx context.Context, resource string, params Params) (json.RawMessage, error) {
	return f(ctx, resource, params)
}
