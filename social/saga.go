package social

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// PartialFailure reports a multi-record write where some steps were applied and others were not.
type PartialFailure struct {
	Op        string
	Succeeded []string
	Failed    []string
	// steps whose effect was undone, if compensation is enabled
	Compensated []string
	Err         error
}

func (e *PartialFailure) Error() string {
	msg := fmt.Sprintf("%s partially applied (ok: %s; failed: %s)", e.Op, strings.Join(e.Succeeded, ","), strings.Join(e.Failed, ","))
	if len(e.Compensated) > 0 {
		msg += fmt.Sprintf(" (undone: %s)", strings.Join(e.Compensated, ","))
	}
	return msg + ": " + e.Err.Error()
}

func (e *PartialFailure) Unwrap() error {
	return e.Err
}

type sagaStep struct {
	name string
	do   func(ctx context.Context) error
	// may be nil when a step can't be undone
	undo func(ctx context.Context) error
}

// saga records which named writes of a multi-record operation took effect.
type saga struct {
	op         string
	logger     *slog.Logger
	compensate bool
	steps      []sagaStep
}

func (s *Service) newSaga(op, actor string) *saga {
	return &saga{
		op:         op,
		logger:     s.logger.With("op", op, "actor", actor),
		compensate: s.config.Compensate,
	}
}

func (sg *saga) add(name string, do, undo func(ctx context.Context) error) {
	sg.steps = append(sg.steps, sagaStep{name: name, do: do, undo: undo})
}

// runConcurrent runs every step at once. The first failure cancels the others.
func (sg *saga) runConcurrent(ctx context.Context) error {
	errs := make([]error, len(sg.steps))
	eg, gctx := errgroup.WithContext(ctx)
	for i, st := range sg.steps {
		eg.Go(func() error {
			errs[i] = st.do(gctx)
			return errs[i]
		})
	}
	first := eg.Wait()
	return sg.finish(ctx, errs, first)
}

// runSequential runs steps in order, stopping at the first failure. Steps after it count as failed.
func (sg *saga) runSequential(ctx context.Context) error {
	errs := make([]error, len(sg.steps))
	var first error
	for i, st := range sg.steps {
		if first != nil {
			errs[i] = first
			continue
		}
		errs[i] = st.do(ctx)
		first = errs[i]
	}
	return sg.finish(ctx, errs, first)
}

func (sg *saga) finish(ctx context.Context, errs []error, first error) error {
	if first == nil {
		return nil
	}
	pf := &PartialFailure{Op: sg.op, Err: first}
	for i, st := range sg.steps {
		if errs[i] == nil {
			pf.Succeeded = append(pf.Succeeded, st.name)
		} else {
			pf.Failed = append(pf.Failed, st.name)
		}
	}
	if len(pf.Succeeded) == 0 {
		// nothing was applied
		return first
	}

	partialWrites.WithLabelValues(sg.op).Inc()
	if sg.compensate {
		// the request context may already be cancelled by the failed step
		cctx := context.WithoutCancel(ctx)
		for i, st := range sg.steps {
			if errs[i] != nil || st.undo == nil {
				continue
			}
			if err := st.undo(cctx); err != nil {
				sg.logger.Error("failed to undo step", "step", st.name, "err", err)
				continue
			}
			pf.Compensated = append(pf.Compensated, st.name)
		}
	}
	sg.logger.Warn("multi-record write partially applied", "succeeded", pf.Succeeded, "failed", pf.Failed, "compensated", pf.Compensated, "err", first)
	return pf
}
