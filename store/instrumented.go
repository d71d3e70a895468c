package store

import (
	"context"
	"errors"
	"time"

	"github.com/ipfs/go-cid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// InstrumentedStore records metrics and trace spans for every call to Inner.
type InstrumentedStore struct {
	Inner Store
}

// NewInstrumentedStore wraps inner. The returned store implements Swapper if inner does.
func NewInstrumentedStore(inner Store) Store {
	is := &InstrumentedStore{Inner: inner}
	if sw, ok := inner.(Swapper); ok {
		return &instrumentedSwapStore{InstrumentedStore: is, swapper: sw}
	}
	return is
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}

func observe(ctx context.Context, op string, key cid.Cid, fn func(ctx context.Context) error) error {
	ctx, span := otel.Tracer("store").Start(ctx, "Store."+op)
	defer span.End()
	span.SetAttributes(attribute.String("cid", key.String()))

	start := time.Now()
	err := fn(ctx)
	result := resultLabel(err)
	storeOps.WithLabelValues(op, result).Inc()
	storeOpDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())

	span.SetAttributes(attribute.String("result", result))
	if result == "error" || result == "timeout" {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *InstrumentedStore) Get(ctx context.Context, key cid.Cid) ([]byte, error) {
	var out []byte
	err := observe(ctx, "Get", key, func(ctx context.Context) error {
		var err error
		out, err = s.Inner.Get(ctx, key)
		return err
	})
	return out, err
}

func (s *InstrumentedStore) Put(ctx context.Context, key cid.Cid, val []byte) error {
	return observe(ctx, "Put", key, func(ctx context.Context) error {
		return s.Inner.Put(ctx, key, val)
	})
}

func (s *InstrumentedStore) Provide(ctx context.Context, key cid.Cid) error {
	return observe(ctx, "Provide", key, func(ctx context.Context) error {
		return s.Inner.Provide(ctx, key)
	})
}

type instrumentedSwapStore struct {
	*InstrumentedStore
	swapper Swapper
}

func (s *instrumentedSwapStore) CompareAndSwap(ctx context.Context, key cid.Cid, old, val []byte) error {
	return observe(ctx, "CompareAndSwap", key, func(ctx context.Context) error {
		return s.swapper.CompareAndSwap(ctx, key, old, val)
	})
}
