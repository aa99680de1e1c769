// Package conversation drives one booking conversation: it owns the state
// machine, the selection context and the message timeline, and turns user
// events into backend calls and bot replies.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"consultbot/internal/domain"
	"consultbot/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrClosed       = errors.New("conversation closed")
	ErrInvalidEvent = errors.New("invalid event")
)

// Recorder receives orchestrator telemetry. All methods are called from the
// event loop goroutine.
type Recorder interface {
	RecordTransition(from, to models.ConversationState)
	RecordEvent(kind models.EventKind, d time.Duration)
	RecordBackendError(op string)
}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(models.ConversationState, models.ConversationState) {}
func (nopRecorder) RecordEvent(models.EventKind, time.Duration) {}
func (nopRecorder) RecordBackendError(string) {}

// Deps are the backends a conversation talks to. Snapshots and Recorder are optional.
type Deps struct {
	Store        domain.AppointmentStore
	Scheduling   domain.SchedulingService
	Verification domain.VerificationService
	Payment      domain.PaymentService
	Classifier   domain.IntentClassifier
	Snapshots    domain.ConversationRepository
	Catalog      models.Catalog
	Recorder     Recorder
	Logger       *zerolog.Logger
	Clock        func() time.Time
}

type Options struct {
	QuiescenceInterval time.Duration
	QueueSize          int
	Currency           string
	// OTPHint is appended to the "code sent" prompt when non-empty.
	OTPHint string
}

type envelopeKind int

const (
	envUser envelopeKind = iota
	envReset
	envGreet
)

type envelope struct {
	kind envelopeKind
	ev   models.UserEvent
	gen  uint64
	done chan struct{}
	// span receives the timeline bounds [start, end) written while processing.
	span *[2]int
}

// Orchestrator processes the events of one conversation strictly one at a
// time. Everything except the timeline and the published view is owned by the
// Run goroutine.
type Orchestrator struct {
	id     string
	deps   Deps
	opts   Options
	logger zerolog.Logger

	queue   chan envelope
	done    chan struct{}
	running atomic.Bool

	timeline *Timeline
	view     atomic.Pointer[models.ConversationSnapshot]

	state   models.ConversationState
	sel     models.SelectionContext
	retries *retryRegistry

	timerMu    sync.Mutex
	resetTimer *time.Timer
	resetGen   uint64
}

func New(id string, deps Deps, opts Options) *Orchestrator {
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		nop := zerolog.Nop()
		deps.Logger = &nop
	}
	if opts.QuiescenceInterval <= 0 {
		opts.QuiescenceInterval = models.DefaultQuiescenceInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = models.DefaultQueueSize
	}
	if opts.Currency == "" {
		opts.Currency = models.DefaultCurrency
	}

	o := &Orchestrator{
		id:       id,
		deps:     deps,
		opts:     opts,
		logger:   deps.Logger.With().Str("conversation_id", id).Logger(),
		queue:    make(chan envelope, opts.QueueSize),
		done:     make(chan struct{}),
		timeline: NewTimeline(),
		state:    models.StateIdle,
		retries:  newRetryRegistry(),
	}
	o.publishView()
	return o
}

func (o *Orchestrator) ID() string {
	return o.id
}

func (o *Orchestrator) Timeline() *Timeline {
	return o.timeline
}

// State returns the state as of the last fully processed event.
func (o *Orchestrator) State() models.ConversationState {
	return o.view.Load().State
}

// Snapshot returns a copy of the state and selection context as of the last
// fully processed event.
func (o *Orchestrator) Snapshot() models.ConversationSnapshot {
	v := o.view.Load()
	out := *v
	out.Context = v.Context.Clone()
	return out
}

// Restore loads a persisted snapshot. It must be called before Run.
func (o *Orchestrator) Restore(ctx context.Context) (bool, error) {
	if o.deps.Snapshots == nil {
		return false, nil
	}
	snap, err := o.deps.Snapshots.GetSnapshot(ctx, o.id)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}

	o.state = snap.State
	o.sel = snap.Context.Clone()
	switch o.state {
	case "", models.StateConfirmed:
		// таймер сброса не переживает рестарт
		o.state = models.StateIdle
		o.sel.Reset()
	case models.StateFetchingSlots:
		if o.sel.BookingBeingModified != nil {
			o.state = models.StateSelectingRescheduleDate
		} else {
			o.state = models.StateSelectingDate
		}
	}
	o.publishView()

	o.logger.Info().Str("state", o.state.String()).Msg("Conversation restored")
	return true, nil
}

// Run consumes the event queue until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return errors.New("conversation already running")
	}
	defer close(o.done)
	defer o.stopResetTimer()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-o.queue:
			if env.span != nil {
				env.span[0] = o.timeline.Len()
			}
			o.process(ctx, env)
			if env.span != nil {
				env.span[1] = o.timeline.Len()
			}
			if env.done != nil {
				close(env.done)
			}
		}
	}
}

// Dispatch enqueues ev and waits until it has been fully processed.
func (o *Orchestrator) Dispatch(ctx context.Context, ev models.UserEvent) error {
	if err := ValidateEvent(ev); err != nil {
		return err
	}
	return o.enqueueAndWait(ctx, envelope{kind: envUser, ev: ev, done: make(chan struct{})})
}

// Exchange dispatches ev and returns the messages appended while it was processed.
func (o *Orchestrator) Exchange(ctx context.Context, ev models.UserEvent) ([]models.Message, error) {
	if err := ValidateEvent(ev); err != nil {
		return nil, err
	}
	env := envelope{kind: envUser, ev: ev, done: make(chan struct{}), span: new([2]int)}
	if err := o.enqueueAndWait(ctx, env); err != nil {
		return nil, err
	}
	return o.timeline.Range(env.span[0], env.span[1]), nil
}

// Greet posts the opening message if the timeline is still empty.
func (o *Orchestrator) Greet(ctx context.Context) error {
	return o.enqueueAndWait(ctx, envelope{kind: envGreet, done: make(chan struct{})})
}

func (o *Orchestrator) enqueueAndWait(ctx context.Context, env envelope) error {
	select {
	case o.queue <- env:
	case <-o.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-env.done:
		return nil
	case <-o.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ValidateEvent checks that ev carries the field its kind requires.
func ValidateEvent(ev models.UserEvent) error {
	var ok bool
	switch ev.Kind {
	case models.EventText:
		ok = ev.Text != ""
	case models.EventSelectService:
		ok = ev.ServiceID != ""
	case models.EventSelectConsultant:
		ok = ev.ConsultantID != ""
	case models.EventSelectDate:
		ok = ev.Date != nil && !ev.Date.IsZero()
	case models.EventSelectSlot:
		ok = ev.SlotID != ""
	case models.EventChoice:
		ok = ev.Choice != ""
	case models.EventPay:
		ok = true
	case models.EventRetry:
		ok = ev.RetryID != ""
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidEvent, ev.Kind)
	}
	return nil
}

func (o *Orchestrator) process(ctx context.Context, env envelope) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Interface("panic", r).Str("state", o.state.String()).Msg("Panic while handling event")
			o.failFlow(msgBookingIncomplete)
		}
		o.publishView()
		o.saveSnapshot(ctx)
	}()

	switch env.kind {
	case envGreet:
		if o.timeline.Len() == 0 {
			o.bot(msgGreeting, chipsWidget(greetingChips))
		}
	case envReset:
		o.handleQuiescence(env.gen)
	case envUser:
		o.handleUser(ctx, env.ev)
		o.deps.Recorder.RecordEvent(env.ev.Kind, time.Since(start))
	}
}

func (o *Orchestrator) publishView() {
	o.view.Store(&models.ConversationSnapshot{
		ConversationID: o.id,
		State:          o.state,
		Context:        o.sel.Clone(),
		UpdatedAt:      o.deps.Clock().UTC(),
	})
}

func (o *Orchestrator) saveSnapshot(ctx context.Context) {
	if o.deps.Snapshots == nil {
		return
	}
	snap := o.Snapshot()
	if err := o.deps.Snapshots.SaveSnapshot(ctx, &snap); err != nil {
		o.logger.Warn().Err(err).Msg("Failed to save conversation snapshot")
	}
}

func (o *Orchestrator) transition(to models.ConversationState) {
	from := o.state
	if from == to {
		return
	}
	o.state = to
	o.retries.clear()
	o.deps.Recorder.RecordTransition(from, to)
	o.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("State transition")
}

// resetToIdle clears the flow atomically: context (pending charge included),
// pending retries and any armed quiescence timer.
func (o *Orchestrator) resetToIdle() {
	o.sel.Reset()
	o.retries.clear()
	o.stopResetTimer()
	o.transition(models.StateIdle)
}

// failFlow moves to Errored. The context is kept until the next input.
func (o *Orchestrator) failFlow(text string) {
	o.sel.PaymentID = ""
	o.transition(models.StateErrored)
	o.bot(text, nil)
}

func (o *Orchestrator) scheduleReset() {
	o.timerMu.Lock()
	defer o.timerMu.Unlock()

	if o.resetTimer != nil {
		o.resetTimer.Stop()
	}
	o.resetGen++
	gen := o.resetGen
	o.resetTimer = time.AfterFunc(o.opts.QuiescenceInterval, func() {
		select {
		case o.queue <- envelope{kind: envReset, gen: gen}:
		case <-o.done:
		}
	})
}

func (o *Orchestrator) stopResetTimer() {
	o.timerMu.Lock()
	defer o.timerMu.Unlock()

	o.resetGen++
	if o.resetTimer != nil {
		o.resetTimer.Stop()
		o.resetTimer = nil
	}
}

func (o *Orchestrator) handleQuiescence(gen uint64) {
	o.timerMu.Lock()
	current := o.resetGen
	o.timerMu.Unlock()

	if gen != current || o.state != models.StateConfirmed {
		return
	}
	o.resetToIdle()
	o.bot(msgAnythingElse, nil)
}

func (o *Orchestrator) append(sender models.Sender, text string, widget *models.WidgetIntent) {
	o.timeline.append(models.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Widget:    widget,
		Timestamp: o.deps.Clock().UTC(),
	})
}

func (o *Orchestrator) bot(text string, widget *models.WidgetIntent) {
	o.append(models.SenderBot, text, widget)
}

func (o *Orchestrator) hint() {
	o.bot(msgUseOptions, nil)
}

// offerRetry reports a transient backend failure and registers fn under a new
// retry id bound to the current state.
func (o *Orchestrator) offerRetry(op string, err error, text string, fn func(ctx context.Context)) {
	o.deps.Recorder.RecordBackendError(op)
	o.logger.Warn().Err(err).Str("op", op).Str("state", o.state.String()).Msg("Backend call failed")

	id := o.retries.register(op, o.state, fn)
	o.bot(text, retryWidget(id))
}

func (o *Orchestrator) runRetry(ctx context.Context, id string) {
	entry, ok := o.retries.take(id)
	if !ok || entry.state != o.state {
		o.bot(msgRetryExpired, nil)
		return
	}
	o.logger.Debug().Str("op", entry.op).Msg("Retrying")
	entry.run(ctx)
}
