// Package capture runs the capture-to-result pipeline: it takes a picture,
// translates it in the background, publishes the outcome and records
// successful translations in history.
//
// Every Start bumps a generation counter. Completions carry the generation
// they were dispatched for and are dropped when it is no longer current, so
// only the latest capture's outcome is ever observable.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/snaplate/backend/internal/dispatch"
	"github.com/snaplate/backend/internal/history"
	"github.com/snaplate/backend/internal/imaging"
	"github.com/snaplate/backend/internal/logging"
	"github.com/snaplate/backend/internal/translate"
)

// Dispatcher runs translation calls off the caller's goroutine.
type Dispatcher interface {
	Enqueue(taskType dispatch.TaskType, label string, fn dispatch.TaskFunc, opts ...dispatch.EnqueueOption) (*dispatch.Task, error)
	CancelTask(id string) error
}

type Options struct {
	Translator     translate.Translator
	Store          history.Store
	Dispatcher     Dispatcher
	Image          imaging.Options
	TargetLanguage string
	Logger         *zap.SugaredLogger
	Now            func() time.Time
}

// flight tracks one generation until it settles or is superseded.
type flight struct {
	gen  uint64
	done chan struct{}
	once sync.Once

	// prepared is the compressed picture sent for translation, set under
	// Orchestrator.mu once the task has compressed it.
	prepared []byte
}

func newFlight(gen uint64) *flight {
	return &flight{gen: gen, done: make(chan struct{})}
}

func (f *flight) finish() {
	f.once.Do(func() { close(f.done) })
}

type Orchestrator struct {
	translator     translate.Translator
	store          history.Store
	dispatcher     Dispatcher
	image          imaging.Options
	targetLanguage string
	logger         *zap.SugaredLogger
	now            func() time.Time

	// owned is the queue New created because no Dispatcher was given.
	owned *dispatch.Queue

	mu      sync.Mutex
	state   State
	flight  *flight
	taskID  string
	subs    map[int]chan State
	nextSub int
	closed  bool
}

func New(opts Options) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	o := &Orchestrator{
		translator:     opts.Translator,
		store:          opts.Store,
		dispatcher:     opts.Dispatcher,
		image:          opts.Image,
		targetLanguage: opts.TargetLanguage,
		logger:         logging.OrNop(opts.Logger),
		now:            now,
		state:          State{Phase: PhaseIdle},
		flight:         newFlight(0),
		subs:           make(map[int]chan State),
	}
	o.flight.finish()
	if o.dispatcher == nil {
		o.owned = dispatch.NewQueue(1, o.logger.Named("dispatch"))
		o.dispatcher = o.owned
	}
	return o
}

// Snapshot returns a consistent copy of the current state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Subscribe delivers state changes to the caller. Delivery never blocks the
// pipeline: a slow subscriber only sees the latest state. The returned func
// unsubscribes and closes the channel.
func (o *Orchestrator) Subscribe() (<-chan State, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan State, 1)
	if o.closed {
		close(ch)
		return ch, func() {}
	}
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	ch <- o.state.clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if c, ok := o.subs[id]; ok {
				delete(o.subs, id)
				close(c)
			}
		})
	}
}

// Capture acquires an image from src and submits it. A source failure is
// reported as a failed generation rather than returned.
func (o *Orchestrator) Capture(ctx context.Context, src ImageSource, targetLanguage string) (uint64, error) {
	image, err := acquire(ctx, src)
	if err != nil {
		gen, serr := o.Start(nil, targetLanguage)
		if serr != nil {
			return 0, serr
		}
		o.Fail(gen, err)
		return gen, nil
	}
	return o.Submit(image, targetLanguage)
}

// Submit starts a new generation for image and dispatches its translation.
// An empty targetLanguage selects the configured default.
func (o *Orchestrator) Submit(image []byte, targetLanguage string) (uint64, error) {
	lang := o.language(targetLanguage)
	gen, err := o.Start(image, lang)
	if err != nil {
		return 0, err
	}

	task, err := o.dispatcher.Enqueue(dispatch.TaskTranslate, fmt.Sprintf("capture %d", gen), func(ctx context.Context) error {
		// Compressed once; the translator and the history record see the
		// same bytes.
		prepared, err := imaging.Compress(image, o.image)
		if err != nil {
			err = &translate.Error{Kind: translate.KindInvalidImage, Err: err}
			o.Fail(gen, err)
			return err
		}
		o.mu.Lock()
		if o.flight.gen == gen {
			o.flight.prepared = prepared
		}
		o.mu.Unlock()

		res, err := o.translator.Translate(ctx, prepared, lang)
		if err != nil {
			o.Fail(gen, err)
			return err
		}
		o.Succeed(ctx, gen, res)
		return nil
	}, dispatch.WithOnCancel(func() {
		o.Fail(gen, ErrCancelled)
	}))
	if err != nil {
		o.Fail(gen, fmt.Errorf("dispatch: %w", err))
		return gen, nil
	}

	o.mu.Lock()
	if o.state.Generation == gen && o.state.Phase == PhaseLoading {
		o.taskID = task.ID
	}
	o.mu.Unlock()
	return gen, nil
}

// Start opens a new generation: the result and error are cleared and
// loading is set in one step, so no reader sees loading alongside a stale
// result. Any in-flight work of the previous generation is abandoned.
func (o *Orchestrator) Start(image []byte, targetLanguage string) (uint64, error) {
	targetLanguage = o.language(targetLanguage)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return 0, ErrClosed
	}
	abandoned := o.advanceLocked()
	gen := o.state.Generation
	o.state = State{
		Generation:     gen,
		Phase:          PhaseLoading,
		Loading:        true,
		TargetLanguage: targetLanguage,
		Image:          image,
	}
	o.publishLocked()
	o.mu.Unlock()

	o.cancelTask(abandoned)
	o.logger.Debugw("capture started", "generation", gen, "target_language", targetLanguage, "image_bytes", len(image))
	return gen, nil
}

// Reset abandons the current generation and returns to Idle.
func (o *Orchestrator) Reset() uint64 {
	o.mu.Lock()
	if o.closed {
		gen := o.state.Generation
		o.mu.Unlock()
		return gen
	}
	abandoned := o.advanceLocked()
	gen := o.state.Generation
	o.state = State{Generation: gen, Phase: PhaseIdle}
	o.flight.finish()
	o.publishLocked()
	o.mu.Unlock()

	o.cancelTask(abandoned)
	return gen
}

// Acknowledge moves a settled generation back to Idle once the user has
// seen its outcome. It reports false for stale or unsettled generations.
func (o *Orchestrator) Acknowledge(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.state.Generation {
		return false
	}
	if o.state.Phase != PhaseSucceeded && o.state.Phase != PhaseFailed {
		return false
	}
	o.state = State{Generation: gen, Phase: PhaseIdle}
	o.publishLocked()
	return true
}

// Succeed commits res for gen and writes exactly one history record. It
// reports false, and does nothing, when gen is stale or already settled.
func (o *Orchestrator) Succeed(ctx context.Context, gen uint64, res translate.Result) bool {
	o.mu.Lock()
	if gen != o.state.Generation || o.state.Phase != PhaseLoading {
		o.mu.Unlock()
		o.logger.Debugw("dropping stale success", "generation", gen)
		return false
	}
	o.state.Phase = PhaseSucceeded
	o.state.Loading = false
	o.state.Result = &res
	o.taskID = ""
	fl := o.flight
	image := fl.prepared
	raw := o.state.Image
	o.publishLocked()
	o.mu.Unlock()

	if image == nil {
		image = o.storedImage(gen, raw)
	}
	// The write belongs to a result that is already visible; it must not be
	// lost because the dispatching task was cancelled afterwards.
	rec := history.NewRecord(res, image, o.now())
	err := o.store.Insert(context.WithoutCancel(ctx), rec)

	o.mu.Lock()
	if gen == o.state.Generation && o.state.Phase == PhaseSucceeded {
		if err != nil {
			o.state.PersistError = string(KindStorage)
		} else {
			id := rec.ID
			o.state.RecordID = &id
		}
		o.publishLocked()
	}
	fl.finish()
	o.mu.Unlock()

	if err != nil {
		o.logger.Errorw("history insert failed", "generation", gen, "record", rec.ID, "error", err)
	} else {
		o.logger.Infow("translation recorded", "generation", gen, "record", rec.ID,
			"detected_language", res.DetectedLanguage)
	}
	return true
}

// Fail settles gen with err. Like Succeed it ignores stale and settled
// generations.
func (o *Orchestrator) Fail(gen uint64, err error) bool {
	ok, _ := o.fail(gen, err)
	return ok
}

func (o *Orchestrator) fail(gen uint64, err error) (bool, string) {
	kind := Classify(err)
	alert := AlertFor(err)

	o.mu.Lock()
	if gen != o.state.Generation || o.state.Phase != PhaseLoading {
		o.mu.Unlock()
		return false, ""
	}
	task := o.taskID
	o.taskID = ""
	o.state.Phase = PhaseFailed
	o.state.Loading = false
	o.state.Result = nil
	o.state.Error = &Failure{Kind: kind, Message: alert.Message}
	o.state.Alert = &alert
	o.flight.finish()
	o.publishLocked()
	o.mu.Unlock()

	o.logger.Warnw("capture failed", "generation", gen, "kind", kind, "error", err)
	return true, task
}

// Close abandons in-flight work and closes every subscription.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	abandoned := o.advanceLocked()
	o.state = State{Generation: o.state.Generation, Phase: PhaseIdle}
	o.flight.finish()
	o.closed = true
	for id, ch := range o.subs {
		delete(o.subs, id)
		close(ch)
	}
	o.mu.Unlock()

	o.cancelTask(abandoned)
	if o.owned != nil {
		o.owned.Stop()
	}
}

// advanceLocked bumps the generation, releases waiters on the previous one
// and returns the task to cancel.
func (o *Orchestrator) advanceLocked() string {
	o.flight.finish()
	o.state.Generation++
	o.flight = newFlight(o.state.Generation)
	task := o.taskID
	o.taskID = ""
	return task
}

func (o *Orchestrator) language(requested string) string {
	if requested != "" {
		return requested
	}
	return o.targetLanguage
}

func (o *Orchestrator) cancelTask(id string) {
	if id == "" || o.dispatcher == nil {
		return
	}
	if err := o.dispatcher.CancelTask(id); err != nil && !errors.Is(err, dispatch.ErrTaskNotFound) {
		o.logger.Warnw("cancel task", "task", id, "error", err)
	}
}

// storedImage compresses raw for a record whose generation was settled
// without going through Submit. It returns nil when raw cannot be encoded.
func (o *Orchestrator) storedImage(gen uint64, raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	data, err := imaging.Compress(raw, o.image)
	if err != nil {
		o.logger.Warnw("storing record without image", "generation", gen, "error", err)
		return nil
	}
	return data
}

// publishLocked must be called with o.mu held so subscribers observe
// changes in the order they were made.
func (o *Orchestrator) publishLocked() {
	snap := o.state.clone()
	for _, ch := range o.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
