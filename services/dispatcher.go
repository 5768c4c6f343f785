package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"stackhut-runner/models"
)

// Dispatcher routes normalized calls to the handler registered for their interface
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *zap.Logger
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// AddHandler registers impl for interface iname, replacing any previous one
func (d *Dispatcher) AddHandler(iname string, impl Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[iname] = impl
}

// Interfaces lists registered interface names
func (d *Dispatcher) Interfaces() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	return names
}

// Dispatch runs every call in order. One call failing never stops the others.
func (d *Dispatcher) Dispatch(ctx context.Context, batch *models.Batch) *models.ResultSet {
	set := &models.ResultSet{
		Results: make([]models.RPCResult, 0, len(batch.Calls)),
		Single:  batch.Single,
	}
	for _, call := range batch.Calls {
		set.Results = append(set.Results, d.Call(ctx, call))
	}
	return set
}

// Call executes one call and converts any failure into an error result
func (d *Dispatcher) Call(ctx context.Context, call models.RPCCall) models.RPCResult {
	iface, _ := splitMethod(call.Method)

	d.mu.RLock()
	handler, ok := d.handlers[iface]
	d.mu.RUnlock()
	if !ok {
		d.logger.Warn("No handler for interface", zap.String("id", call.ID), zap.String("method", call.Method))
		return models.RPCResult{ID: call.ID, Error: models.NewMethodNotFoundError(call.Method)}
	}

	d.logger.Info("Calling method", zap.String("id", call.ID), zap.String("method", call.Method))
	result, err := d.invoke(ctx, handler, call)
	if err != nil {
		rpcErr, ok := models.AsRPCError(err)
		if !ok {
			rpcErr = models.NewInternalError(map[string]interface{}{"error": err.Error()}).WithCause(err)
		}
		d.logger.Error("Method failed",
			zap.String("id", call.ID),
			zap.String("method", call.Method),
			zap.Int("code", rpcErr.Code),
			zap.Error(err))
		return models.RPCResult{ID: call.ID, Error: rpcErr}
	}
	return models.RPCResult{ID: call.ID, Result: result}
}

func (d *Dispatcher) invoke(ctx context.Context, handler Handler, call models.RPCCall) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.Call(ctx, call.Method, call.Params)
}

// splitMethod splits interface.method at the first dot
func splitMethod(method string) (string, string) {
	iface, name, found := strings.Cut(method, ".")
	if !found {
		return "", method
	}
	return iface, name
}
