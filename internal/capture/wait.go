package capture

import (
	"context"
	"time"
)

// WaitPolicy bounds how long a consumer waits for a generation to settle:
// the outcome is checked every Interval and the generation fails with a
// timeout after MaxAttempts intervals.
type WaitPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

func DefaultWaitPolicy() WaitPolicy {
	return WaitPolicy{Interval: 500 * time.Millisecond, MaxAttempts: 20}
}

// Budget is the total time Await may block.
func (p WaitPolicy) Budget() time.Duration {
	return p.Interval * time.Duration(p.MaxAttempts)
}

// Await blocks until gen settles and returns its state. The outcome is
// delivered directly by the pipeline; the policy only decides when to give
// up. When the budget runs out the generation is failed with a timeout,
// which also clears loading, and its background task is cancelled.
//
// Await returns ErrSuperseded if a newer capture replaces gen while waiting.
func (o *Orchestrator) Await(ctx context.Context, gen uint64, policy WaitPolicy) (State, error) {
	if policy.Interval <= 0 || policy.MaxAttempts <= 0 {
		policy = DefaultWaitPolicy()
	}

	o.mu.Lock()
	current := o.state.Generation
	fl := o.flight
	o.mu.Unlock()

	switch {
	case gen > current:
		return State{}, ErrUnknownGeneration
	case gen < current:
		return o.Snapshot(), ErrSuperseded
	}

	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-fl.done:
			return o.resolve(gen)
		case <-ctx.Done():
			return State{}, ctx.Err()
		case <-ticker.C:
			if attempt < policy.MaxAttempts {
				continue
			}
			if ok, task := o.fail(gen, ErrTimeout); ok {
				o.cancelTask(task)
			}
			return o.resolve(gen)
		}
	}
}

func (o *Orchestrator) resolve(gen uint64) (State, error) {
	st := o.Snapshot()
	if st.Generation != gen {
		return st, ErrSuperseded
	}
	return st, nil
}
