// Package records reads and writes User, Post and Topic records against a
// store.Store, JSON encoded.
//
// Writes are read-modify-write. If the store can compare-and-swap, a write
// that lost a race is retried against the fresh value; otherwise the last
// writer wins and the loser's change is silently lost.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/timelinesocial/timeline/models"
	"github.com/timelinesocial/timeline/store"

	"github.com/ipfs/go-cid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultMaxSwapAttempts = 5
	DefaultConcurrency     = 16
)

type Repository struct {
	Store  store.Store
	Logger *slog.Logger

	// conditional write attempts per Mutate, when the store supports them
	MaxSwapAttempts int
	// bound on concurrent store calls in fan-out reads and topic indexing
	Concurrency int
}

func NewRepository(st store.Store, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		Store:           st,
		Logger:          logger.With("system", "records"),
		MaxSwapAttempts: DefaultMaxSwapAttempts,
		Concurrency:     DefaultConcurrency,
	}
}

// translates store errors into the shared taxonomy
func storeErr(op string, key cid.Cid, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", models.ErrNotFound, key)
	}
	return fmt.Errorf("%w: %s %s: %w", models.ErrStoreFailure, op, key, err)
}

func (r *Repository) getRaw(ctx context.Context, key cid.Cid) ([]byte, error) {
	raw, err := r.Store.Get(ctx, key)
	if err != nil {
		return nil, storeErr("get", key, err)
	}
	return raw, nil
}

func decode[T any](key cid.Cid, raw []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: decoding record %s: %w", models.ErrStoreFailure, key, err)
	}
	return &v, nil
}

// announce is independent of the write that preceded it: failures are logged, never returned
func (r *Repository) announce(ctx context.Context, key cid.Cid) {
	if err := r.Store.Provide(ctx, key); err != nil {
		provideFailures.Inc()
		r.Logger.Warn("failed to announce record", "cid", key, "err", err)
	}
}

// Load fetches and decodes the record at key. Returns models.ErrNotFound if absent.
func Load[T any](ctx context.Context, r *Repository, key cid.Cid) (*T, error) {
	ctx, span := otel.Tracer("records").Start(ctx, "Load")
	defer span.End()
	span.SetAttributes(attribute.String("cid", key.String()))

	raw, err := r.getRaw(ctx, key)
	if err != nil {
		return nil, err
	}
	return decode[T](key, raw)
}

// Create writes a new record. When the store can do conditional writes, a record that already exists yields models.ErrAlreadyExists; otherwise the write is unconditional.
func Create[T any](ctx context.Context, r *Repository, key cid.Cid, val *T) error {
	ctx, span := otel.Tracer("records").Start(ctx, "Create")
	defer span.End()
	span.SetAttributes(attribute.String("cid", key.String()))

	out, err := json.Marshal(val)
	if err != nil {
		return err
	}

	if sw, ok := r.Store.(store.Swapper); ok {
		err = sw.CompareAndSwap(ctx, key, nil, out)
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("%w: %s", models.ErrAlreadyExists, key)
		}
	} else {
		err = r.Store.Put(ctx, key, out)
	}
	if err != nil {
		return storeErr("create", key, err)
	}
	r.announce(ctx, key)
	return nil
}

// Mutate loads the record at key, applies fn, and writes the result. An error from fn aborts without writing.
//
// fn may be called more than once, each time on a freshly loaded value.
func Mutate[T any](ctx context.Context, r *Repository, key cid.Cid, fn func(*T) error) error {
	ctx, span := otel.Tracer("records").Start(ctx, "Mutate")
	defer span.End()
	span.SetAttributes(attribute.String("cid", key.String()))

	sw, canSwap := r.Store.(store.Swapper)
	maxAttempts := max(r.MaxSwapAttempts, 1)

	for attempt := 1; ; attempt++ {
		raw, err := r.getRaw(ctx, key)
		if err != nil {
			return err
		}
		v, err := decode[T](key, raw)
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
		out, err := json.Marshal(v)
		if err != nil {
			return err
		}

		if !canSwap {
			if err := r.Store.Put(ctx, key, out); err != nil {
				return storeErr("put", key, err)
			}
			break
		}

		err = sw.CompareAndSwap(ctx, key, raw, out)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConflict) {
			return storeErr("swap", key, err)
		}
		swapConflicts.Inc()
		if attempt >= maxAttempts {
			span.SetAttributes(attribute.Int("attempts", attempt))
			return fmt.Errorf("%w: %s: gave up after %d attempts: %w", models.ErrStoreFailure, key, attempt, err)
		}
		r.Logger.Debug("write conflict, reloading", "cid", key, "attempt", attempt)
	}

	r.announce(ctx, key)
	return nil
}
