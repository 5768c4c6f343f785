package services

import (
	"context"

	"stackhut-runner/models"
)

// Handler implements the methods of one interface. method is fully qualified
// (interface.method).
type Handler interface {
	Call(ctx context.Context, method string, params []interface{}) (interface{}, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, method string, params []interface{}) (interface{}, error)

func (f HandlerFunc) Call(ctx context.Context, method string, params []interface{}) (interface{}, error) {
	return f(ctx, method, params)
}

// MethodFunc implements a single method
type MethodFunc func(ctx context.Context, params []interface{}) (interface{}, error)

// MethodTable maps unqualified method names to their implementation
type MethodTable map[string]MethodFunc

func (t MethodTable) Call(ctx context.Context, method string, params []interface{}) (interface{}, error) {
	_, name := splitMethod(method)
	fn, ok := t[name]
	if !ok {
		return nil, models.NewMethodNotFoundError(method)
	}
	return fn(ctx, params)
}
