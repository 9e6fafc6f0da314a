package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertrelay/internal/broker"
	"alertrelay/internal/classification"
	"alertrelay/internal/constants"
	"alertrelay/internal/deduplication"
	"alertrelay/internal/extraction"
	"alertrelay/internal/logger"
	"alertrelay/internal/mailbox"
	apperrors "alertrelay/pkg/errors"
)

var lima = time.FixedZone("PET", -5*3600)

type fakeMailbox struct {
	mu         sync.Mutex
	messages   map[mailbox.UID]*mailbox.RawMessage
	order      []mailbox.UID
	connectErr error
	searchErr  error
	fetchErr   map[mailbox.UID]error
	handled    []mailbox.UID
	closed     int
	onFetch    func(uid mailbox.UID)
}

func newFakeMailbox(msgs ...*mailbox.RawMessage) *fakeMailbox {
	m := &fakeMailbox{messages: map[mailbox.UID]*mailbox.RawMessage{}, fetchErr: map[mailbox.UID]error{}}
	for _, msg := range msgs {
		m.messages[msg.UID] = msg
		m.order = append(m.order, msg.UID)
	}
	return m
}

func (m *fakeMailbox) Connect(context.Context) (mailbox.Session, error) {
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	return &fakeSession{m: m}, nil
}

type fakeSession struct{ m *fakeMailbox }

func (s *fakeSession) Search(context.Context, mailbox.Criteria) ([]mailbox.UID, error) {
	if s.m.searchErr != nil {
		return nil, s.m.searchErr
	}
	return append([]mailbox.UID(nil), s.m.order...), nil
}

func (s *fakeSession) Fetch(_ context.Context, uid mailbox.UID) (*mailbox.RawMessage, error) {
	if s.m.onFetch != nil {
		s.m.onFetch(uid)
	}
	if err := s.m.fetchErr[uid]; err != nil {
		return nil, err
	}
	return s.m.messages[uid], nil
}

func (s *fakeSession) MarkHandled(_ context.Context, uid mailbox.UID) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.handled = append(s.m.handled, uid)
	return nil
}

func (s *fakeSession) Close() error {
	s.m.closed++
	return nil
}

type fakeSink struct {
	delivered []classification.EventRecord
	failNext  int
	panicOn   string
}

func (s *fakeSink) Deliver(_ context.Context, rec classification.EventRecord) error {
	if s.panicOn != "" && rec.VehicleCode == s.panicOn {
		panic("boom")
	}
	if s.failNext > 0 {
		s.failNext--
		return apperrors.ErrDelivery.WithCause(errors.New("collector returned status 503"))
	}
	s.delivered = append(s.delivered, rec)
	return nil
}

type fakeProducer struct {
	events []broker.OutcomeEvent
}

func (p *fakeProducer) Publish(_ context.Context, e broker.OutcomeEvent) error {
	p.events = append(p.events, e)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func alarm(uid mailbox.UID, id, subject, body string) *mailbox.RawMessage {
	return &mailbox.RawMessage{
		UID:       uid,
		MessageID: id,
		Subject:   subject,
		Body:      body,
		Arrival:   time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC),
	}
}

type harness struct {
	mailbox  *fakeMailbox
	sink     *fakeSink
	producer *fakeProducer
	store    *deduplication.Store
	driver   *Driver
	now      time.Time
}

func newHarness(t *testing.T, mb *fakeMailbox, rules ...string) *harness {
	t.Helper()

	ex, err := extraction.New(lima)
	require.NoError(t, err)
	rf, err := classification.NewRuleFilter(rules)
	require.NoError(t, err)
	repo, err := deduplication.NewFileRepository(t.TempDir(), constants.NamespaceAlerts)
	require.NoError(t, err)

	h := &harness{
		mailbox:  mb,
		sink:     &fakeSink{},
		producer: &fakeProducer{},
		store:    deduplication.NewStore(repo, lima, logger.NopLogger()),
		now:      time.Date(2024, 3, 5, 12, 0, 0, 0, lima),
	}
	h.driver, err = NewDriver(Deps{
		Mailbox:           mb,
		Extractor:         ex,
		Classifier:        classification.New(nil),
		Rules:             rf,
		Store:             h.store,
		Sink:              h.sink,
		Producer:          h.producer,
		Logger:            logger.NopLogger(),
		WindowPaddingDays: 1,
		Now:               func() time.Time { return h.now },
	})
	require.NoError(t, err)
	return h
}

func (h *harness) cycle(t *testing.T) CycleSummary {
	t.Helper()
	s, err := h.driver.RunCycle(context.Background(), mailbox.Criteria{Since: h.now.AddDate(0, 0, -1)})
	require.NoError(t, err)
	return s
}

func TestRunCycle_DeliversOnceAcrossCycles(t *testing.T) {
	h := newHarness(t, newFakeMailbox(
		alarm(1, "<a@mail>", "Alarma - IMPACTO - MG069 (308FG25-3)", "Planta: Norte"),
	))

	first := h.cycle(t)
	assert.Equal(t, 1, first.Found)
	assert.Equal(t, 1, first.Delivered)
	require.Len(t, h.sink.delivered, 1)
	assert.Equal(t, classification.TypeImpact, h.sink.delivered[0].Type)

	second := h.cycle(t)
	assert.Equal(t, 0, second.Delivered)
	assert.Equal(t, 1, second.Duplicates)
	assert.Len(t, h.sink.delivered, 1)

	keys, err := h.store.Members(context.Background(), "20240305")
	require.NoError(t, err)
	assert.Equal(t, []string{"<a@mail>"}, keys)
	assert.Equal(t, []mailbox.UID{1}, h.mailbox.handled)
	assert.Equal(t, 2, h.mailbox.closed)
}

func TestRunCycle_FailedDeliveryIsRetried(t *testing.T) {
	h := newHarness(t, newFakeMailbox(
		alarm(1, "<a@mail>", "Alarma - FRENADA - MG001", ""),
	))
	h.sink.failNext = 1

	first := h.cycle(t)
	assert.Equal(t, 1, first.DeliveryFailed)
	keys, err := h.store.Members(context.Background(), "20240305")
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Empty(t, h.mailbox.handled)

	second := h.cycle(t)
	assert.Equal(t, 1, second.Delivered)
	assert.Len(t, h.sink.delivered, 1)
}

func TestRunCycle_SuppressedAreCommittedWithoutDelivery(t *testing.T) {
	h := newHarness(t, newFakeMailbox(
		alarm(1, "<check@mail>", "CheckList - IMPACTO - MG001", ""),
		alarm(2, "<other@mail>", "Alarma - EXCESO VELOCIDAD - MG002", ""),
		alarm(3, "<rule@mail>", "Alarma - FRENADA - TEST9", ""),
	), `record.vehicleCode.startsWith("TEST")`)

	s := h.cycle(t)
	assert.Equal(t, 3, s.Suppressed)
	assert.Empty(t, h.sink.delivered)
	assert.Empty(t, h.mailbox.handled, "undelivered mail stays unread")

	keys, err := h.store.Members(context.Background(), "20240305")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"<check@mail>", "<other@mail>", "<rule@mail>"}, keys)

	reasons := map[string]bool{}
	for _, e := range h.producer.events {
		assert.Equal(t, broker.OutcomeSuppressed, e.Outcome)
		reasons[e.SuppressReason] = true
	}
	assert.Equal(t, map[string]bool{"checklist": true, "type_not_allowed": true, "rule": true}, reasons)

	again := h.cycle(t)
	assert.Equal(t, 3, again.Duplicates)
}

func TestRunCycle_RepeatedKeyInOneSearch(t *testing.T) {
	h := newHarness(t, newFakeMailbox(
		alarm(1, "<same@mail>", "Alarma - IMPACTO - MG001", ""),
		alarm(2, "<same@mail>", "Alarma - IMPACTO - MG001", ""),
	))

	s := h.cycle(t)
	assert.Equal(t, 1, s.Delivered)
	assert.Equal(t, 1, s.Duplicates)
}

func TestRunCycle_MissingMessageIDUsesSubjectAndArrival(t *testing.T) {
	h := newHarness(t, newFakeMailbox(
		alarm(1, "", "Alarma  -  IMPACTO - MG001", ""),
	))
	h.cycle(t)

	keys, err := h.store.Members(context.Background(), "20240305")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alarma - IMPACTO - MG001|2024-03-05T15:00:00+00:00"}, keys)
}

func TestRunCycle_PerMessageFailuresAreSkipped(t *testing.T) {
	mb := newFakeMailbox(
		alarm(1, "<a@mail>", "Alarma - IMPACTO - MG001", ""),
		alarm(2, "<b@mail>", "Alarma - IMPACTO - PANIC", ""),
		alarm(3, "<c@mail>", "Alarma - IMPACTO - MG003", ""),
	)
	mb.fetchErr[1] = errors.New("fetch timeout")
	h := newHarness(t, mb)
	h.sink.panicOn = "PANIC"

	s := h.cycle(t)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 1, s.Delivered)
	require.Len(t, h.sink.delivered, 1)
	assert.Equal(t, "MG003", h.sink.delivered[0].VehicleCode)

	keys, err := h.store.Members(context.Background(), "20240305")
	require.NoError(t, err)
	assert.Equal(t, []string{"<c@mail>"}, keys)
}

func TestRunCycle_TransportFailuresAbort(t *testing.T) {
	t.Run("connect", func(t *testing.T) {
		mb := newFakeMailbox()
		mb.connectErr = apperrors.Wrap(errors.New("dial tcp: refused"), apperrors.ErrMailboxTransport)
		h := newHarness(t, mb)

		_, err := h.driver.RunCycle(context.Background(), mailbox.Criteria{Since: h.now})
		require.Error(t, err)
		assert.True(t, apperrors.IsMailboxTransport(err))

		last, ok := h.driver.LastSummary()
		require.True(t, ok)
		assert.NotEmpty(t, last.Error)
	})

	t.Run("search", func(t *testing.T) {
		mb := newFakeMailbox()
		mb.searchErr = errors.New("connection reset")
		h := newHarness(t, mb)

		_, err := h.driver.RunCycle(context.Background(), mailbox.Criteria{Since: h.now})
		require.Error(t, err)
		assert.True(t, apperrors.IsMailboxTransport(err))
		assert.Equal(t, 1, mb.closed)
	})
}

func TestRunCycle_StopsWhenContextCancelled(t *testing.T) {
	mb := newFakeMailbox(
		alarm(1, "<a@mail>", "Alarma - IMPACTO - MG001", ""),
		alarm(2, "<b@mail>", "Alarma - IMPACTO - MG002", ""),
	)
	h := newHarness(t, mb)

	ctx, cancel := context.WithCancel(context.Background())
	mb.onFetch = func(mailbox.UID) { cancel() }

	s, err := h.driver.RunCycle(ctx, mailbox.Criteria{Since: h.now})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, s.Found)
	assert.Equal(t, 1, s.Visited())
}

func TestRunCycle_PublishesOutcomeEvents(t *testing.T) {
	h := newHarness(t, newFakeMailbox(
		alarm(7, "<a@mail>", "Alarma - ACELERACION - MG001", "Alarma Fecha: 05-mar-2024 Hora: 10:30"),
	))
	s := h.cycle(t)

	require.Len(t, h.producer.events, 1)
	e := h.producer.events[0]
	assert.Equal(t, broker.OutcomeDelivered, e.Outcome)
	assert.Equal(t, s.CycleID, e.CycleID)
	assert.Equal(t, TargetAlerts, e.Target)
	assert.Equal(t, "<a@mail>", e.IdentityKey)
	assert.Equal(t, uint32(7), e.UID)
	assert.Equal(t, "ACELERACION", e.AlertType)
	assert.NotEmpty(t, e.EventID)

	require.Len(t, h.sink.delivered, 1)
	assert.Equal(t, time.Date(2024, 3, 5, 15, 30, 0, 0, time.UTC), h.sink.delivered[0].EventTime)
}

func TestNewDriver_RequiresCollaborators(t *testing.T) {
	_, err := NewDriver(Deps{})
	assert.Error(t, err)
}
