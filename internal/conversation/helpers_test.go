package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"consultbot/internal/classifier"
	"consultbot/internal/config"
	"consultbot/internal/domain"
	"consultbot/internal/models"
	"consultbot/internal/payment"
	"consultbot/internal/scheduling"
	"consultbot/internal/store"
	"consultbot/internal/verification"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

// Wednesday
var testNow = time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)

var (
	monday   = time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)
	tuesday  = time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	saturday = time.Date(2026, time.March, 7, 0, 0, 0, 0, time.UTC)
)

type flakyStore struct {
	*store.MemoryStore

	mu              sync.Mutex
	failCreate      int
	failGet         int
	failCancel      int
	failReschedule  int
	createCalls     int
	rescheduleCalls int
	cancelCalls     int
}

func (s *flakyStore) fail(counter *int) bool {
	if *counter > 0 {
		*counter--
		return true
	}
	return false
}

func (s *flakyStore) CreateBooking(ctx context.Context, draft models.BookingDraft) (*models.Booking, error) {
	s.mu.Lock()
	s.createCalls++
	failed := s.fail(&s.failCreate)
	s.mu.Unlock()
	if failed {
		return nil, errBackend
	}
	return s.MemoryStore.CreateBooking(ctx, draft)
}

func (s *flakyStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	s.mu.Lock()
	failed := s.fail(&s.failGet)
	s.mu.Unlock()
	if failed {
		return nil, errBackend
	}
	return s.MemoryStore.GetBooking(ctx, id)
}

func (s *flakyStore) CancelBooking(ctx context.Context, id string) (*models.Booking, error) {
	s.mu.Lock()
	s.cancelCalls++
	failed := s.fail(&s.failCancel)
	s.mu.Unlock()
	if failed {
		return nil, errBackend
	}
	return s.MemoryStore.CancelBooking(ctx, id)
}

func (s *flakyStore) RescheduleBooking(ctx context.Context, id string, date time.Time, slot models.TimeSlot) (*models.Booking, error) {
	s.mu.Lock()
	s.rescheduleCalls++
	failed := s.fail(&s.failReschedule)
	s.mu.Unlock()
	if failed {
		return nil, errBackend
	}
	return s.MemoryStore.RescheduleBooking(ctx, id, date, slot)
}

type countingScheduling struct {
	inner domain.SchedulingService

	mu    sync.Mutex
	fail  int
	calls int
	dates []time.Time
}

func (s *countingScheduling) GetAvailableSlots(ctx context.Context, consultantID string, date time.Time) ([]models.TimeSlot, error) {
	s.mu.Lock()
	s.calls++
	s.dates = append(s.dates, date)
	failed := s.fail > 0
	if failed {
		s.fail--
	}
	s.mu.Unlock()
	if failed {
		return nil, errBackend
	}
	return s.inner.GetAvailableSlots(ctx, consultantID, date)
}

type countingVerification struct {
	inner domain.VerificationService

	mu          sync.Mutex
	failSend    int
	failVerify  int
	sendCalls   int
	verifyCalls int
}

func (v *countingVerification) SendOTP(ctx context.Context, phone string) error {
	v.mu.Lock()
	v.sendCalls++
	failed := v.failSend > 0
	if failed {
		v.failSend--
	}
	v.mu.Unlock()
	if failed {
		return domain.ErrOTPDeliveryFailed
	}
	return v.inner.SendOTP(ctx, phone)
}

func (v *countingVerification) VerifyOTP(ctx context.Context, phone, code string) (bool, error) {
	v.mu.Lock()
	v.verifyCalls++
	failed := v.failVerify > 0
	if failed {
		v.failVerify--
	}
	v.mu.Unlock()
	if failed {
		return false, errBackend
	}
	return v.inner.VerifyOTP(ctx, phone, code)
}

type countingPayment struct {
	inner domain.PaymentService

	mu     sync.Mutex
	calls  int
	tokens []string
}

func (p *countingPayment) Charge(ctx context.Context, amount float64, token string) (*domain.ChargeResult, error) {
	p.mu.Lock()
	p.calls++
	p.tokens = append(p.tokens, token)
	p.mu.Unlock()
	return p.inner.Charge(ctx, amount, token)
}

type stubClassifier struct {
	mu      sync.Mutex
	results []*models.IntentResult
	errs    []error
	texts   []string
}

func (c *stubClassifier) Classify(_ context.Context, text string) (*models.IntentResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(c.results) == 0 {
		return &models.IntentResult{Intent: models.IntentUnknown}, nil
	}
	r := c.results[0]
	if len(c.results) > 1 {
		c.results = c.results[1:]
	}
	return r, nil
}

type memorySnapshots struct {
	mu    sync.Mutex
	snaps map[string]models.ConversationSnapshot
	saves int
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{snaps: make(map[string]models.ConversationSnapshot)}
}

func (m *memorySnapshots) GetSnapshot(_ context.Context, id string) (*models.ConversationSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[id]
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	return &s, nil
}

func (m *memorySnapshots) SaveSnapshot(_ context.Context, s *models.ConversationSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.snaps[s.ConversationID] = *s
	return nil
}

func (m *memorySnapshots) DeleteSnapshot(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, id)
	return nil
}

func (m *memorySnapshots) CheckRateLimit(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

type recordingRecorder struct {
	mu          sync.Mutex
	transitions []models.ConversationState
	errors      []string
}

func (r *recordingRecorder) RecordTransition(_, to models.ConversationState) {
	r.mu.Lock()
	r.transitions = append(r.transitions, to)
	r.mu.Unlock()
}

func (r *recordingRecorder) RecordEvent(models.EventKind, time.Duration) {}

func (r *recordingRecorder) RecordBackendError(op string) {
	r.mu.Lock()
	r.errors = append(r.errors, op)
	r.mu.Unlock()
}

type harness struct {
	t          *testing.T
	orch       *Orchestrator
	store      *flakyStore
	scheduling *countingScheduling
	verifier   *countingVerification
	payments   *countingPayment
	classifier domain.IntentClassifier
	snapshots  *memorySnapshots
	recorder   *recordingRecorder
	deps       Deps
}

type harnessOption func(*harness)

func withClassifier(c domain.IntentClassifier) harnessOption {
	return func(h *harness) { h.classifier = c }
}

func newDeps(t *testing.T) (Deps, *harness) {
	t.Helper()
	logger := zerolog.Nop()
	catalog := models.Catalog{Services: config.DefaultServices(), Consultants: config.DefaultConsultants()}

	mem := store.NewMemoryStore()
	fs := &flakyStore{MemoryStore: mem}

	sched, err := scheduling.NewService(config.SchedulingConfig{
		ClosedWeekdays: []string{"Saturday", "Sunday"},
		Seed:           1,
	}, fs, &logger)
	require.NoError(t, err)

	ver := verification.NewService(config.VerificationConfig{FixedCode: models.FixedOTPCode},
		verification.NewMemoryCodeStore(), verification.NewLogSender(&logger), &logger)

	h := &harness{
		t:          t,
		store:      fs,
		scheduling: &countingScheduling{inner: sched},
		verifier:   &countingVerification{inner: ver},
		payments:   &countingPayment{inner: payment.NewGateway(config.PaymentConfig{DeclineToken: "fail", Currency: "USD"}, &logger)},
		classifier: classifier.NewKeywordClassifier(catalog),
		snapshots:  newMemorySnapshots(),
		recorder:   &recordingRecorder{},
	}
	deps := Deps{
		Store:        h.store,
		Scheduling:   h.scheduling,
		Verification: h.verifier,
		Payment:      h.payments,
		Snapshots:    h.snapshots,
		Catalog:      catalog,
		Recorder:     h.recorder,
		Logger:       &logger,
		Clock:        func() time.Time { return testNow },
	}
	return deps, h
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	deps, h := newDeps(t)
	for _, opt := range opts {
		opt(h)
	}
	deps.Classifier = h.classifier
	h.deps = deps

	h.orch = New("test", deps, Options{QuiescenceInterval: 50 * time.Millisecond, OTPHint: models.FixedOTPCode})
	h.start()
	require.NoError(t, h.orch.Greet(context.Background()))
	return h
}

// peer runs another conversation against the same backends.
func (h *harness) peer(id string) *harness {
	h.t.Helper()
	p := *h
	p.orch = New(id, h.deps, Options{QuiescenceInterval: 50 * time.Millisecond, OTPHint: models.FixedOTPCode})
	p.start()
	require.NoError(h.t, p.orch.Greet(context.Background()))
	return &p
}

func (h *harness) start() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.orch.Run(ctx)
	}()
	h.t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (h *harness) send(ev models.UserEvent) {
	h.t.Helper()
	require.NoError(h.t, h.orch.Dispatch(context.Background(), ev))
}

func (h *harness) say(text string) {
	h.t.Helper()
	h.send(models.TextEvent(text))
}

func (h *harness) lastBot() models.Message {
	h.t.Helper()
	msgs := h.orch.Timeline().Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Sender == models.SenderBot {
			return msgs[i]
		}
	}
	h.t.Fatal("no bot messages")
	return models.Message{}
}

func (h *harness) botTexts() []string {
	var out []string
	for _, m := range h.orch.Timeline().Messages() {
		if m.Sender == models.SenderBot {
			out = append(out, m.Text)
		}
	}
	return out
}

func (h *harness) lastRetryID() string {
	h.t.Helper()
	m := h.lastBot()
	require.NotNil(h.t, m.Widget)
	require.Equal(h.t, models.WidgetRetry, m.Widget.Kind)
	return m.Widget.Payload.(models.RetryPayload).RetryID
}

func (h *harness) state() models.ConversationState {
	return h.orch.State()
}

// toSlotSelection walks the booking flow up to the slot grid for Alice on Monday.
func (h *harness) toSlotSelection() {
	h.t.Helper()
	h.say("I need tax filing help")
	h.send(models.ChoiceEvent(models.ChoiceAccept))
	h.send(models.ConsultantEvent("c1"))
	h.send(models.DateEvent(monday))
	require.Equal(h.t, models.StateSelectingSlot, h.state())
}

func (h *harness) toPayment() {
	h.t.Helper()
	h.toSlotSelection()
	h.send(models.SlotEvent("s1"))
	h.say("Wade Wilson, wade@xforce.com, 555-0100")
	h.say("1234")
	require.Equal(h.t, models.StateProcessingPayment, h.state())
}

func (h *harness) seedBooking() *models.Booking {
	h.t.Helper()
	svc, _ := h.deps.Catalog.Service("financial")
	cons, _ := h.deps.Catalog.Consultant("c1")
	b, err := h.store.MemoryStore.CreateBooking(context.Background(), models.BookingDraft{
		Service:        svc,
		Consultant:     cons,
		Date:           monday,
		Slot:           models.TimeSlot{ID: "s1", Time: "09:00", Available: true},
		ContactDetails: models.ContactDetails{Name: "Wade Wilson", Email: "wade@xforce.com", Phone: "555-0100"},
		PaymentID:      "txn_seed",
	})
	require.NoError(h.t, err)
	return b
}
