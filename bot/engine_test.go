package bot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
)

type fakeStore struct {
	mu    sync.Mutex
	convs map[string]*Conversation

	updateErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{convs: make(map[string]*Conversation)}
}

func (s *fakeStore) Get(_ context.Context, phone string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[phone]
	if !ok {
		return nil, nil
	}
	copied := *conv
	return &copied, nil
}

func (s *fakeStore) Create(_ context.Context, phone string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := &Conversation{PhoneNumber: phone, CurrentState: StateWelcome, Context: []byte("{}")}
	s.convs[phone] = conv
	copied := *conv
	return &copied, nil
}

func (s *fakeStore) Update(_ context.Context, phone string, state State, contextJSON []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.convs[phone] = &Conversation{PhoneNumber: phone, CurrentState: state, Context: contextJSON}
	return nil
}

func (s *fakeStore) seed(phone string, state State, cc convContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[phone] = &Conversation{PhoneNumber: phone, CurrentState: state, Context: encodeContext(cc)}
}

func (s *fakeStore) state(t *testing.T, phone string) State {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[phone]
	if !ok {
		t.Fatalf("no conversation for %s", phone)
	}
	return conv.CurrentState
}

func (s *fakeStore) context(t *testing.T, phone string) convContext {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[phone]
	if !ok {
		t.Fatalf("no conversation for %s", phone)
	}
	var cc convContext
	if err := json.Unmarshal(conv.Context, &cc); err != nil {
		t.Fatalf("stored context is not valid JSON: %v", err)
	}
	return cc
}

type fakeCatalog struct {
	byLocation map[string][]Hotel
	byName     map[string][]Hotel
	err        error
}

func (c *fakeCatalog) SearchByLocation(_ context.Context, location string) ([]Hotel, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.byLocation[location], nil
}

func (c *fakeCatalog) SearchByName(_ context.Context, name string) ([]Hotel, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.byName[name], nil
}

func (c *fakeCatalog) GetByID(_ context.Context, id int64) (*Hotel, error) {
	for _, hotels := range c.byLocation {
		for _, h := range hotels {
			if h.ID == id {
				return &h, nil
			}
		}
	}
	return nil, nil
}

type fakeLedger struct {
	mu       sync.Mutex
	nextID   int64
	bookings map[int64]*Booking

	createErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{bookings: make(map[int64]*Booking)}
}

func (l *fakeLedger) Create(_ context.Context, b *Booking) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.createErr != nil {
		return 0, l.createErr
	}
	l.nextID++
	copied := *b
	copied.ID = l.nextID
	l.bookings[l.nextID] = &copied
	return l.nextID, nil
}

func (l *fakeLedger) UpdateStatus(_ context.Context, id int64, status BookingStatus, txRef string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bookings[id]
	if !ok {
		return errors.New("no such booking")
	}
	b.Status = status
	b.TransactionRef = txRef
	return nil
}

func (l *fakeLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.bookings)
}

func (l *fakeLedger) booking(t *testing.T, id int64) Booking {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bookings[id]
	if !ok {
		t.Fatalf("no booking with id %d", id)
	}
	return *b
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (n *fakeNotifier) SendText(_ context.Context, _, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, body)
	return nil
}

func (n *fakeNotifier) last(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatal("no messages sent")
	}
	return n.sent[len(n.sent)-1]
}

func (n *fakeNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
}

type fakePayments struct {
	mu        sync.Mutex
	initiated []int64
	err       error
}

func (p *fakePayments) Initiate(_ context.Context, _ string, bookingID int64, _ float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.initiated = append(p.initiated, bookingID)
	return nil
}

const testPhone = "254700000001"

var nairobiHotels = []Hotel{
	{ID: 1, Name: "Nairobi Serena Hotel", Location: "Nairobi", PricePerNight: 12000, Rating: 4.8, Amenities: []string{"WiFi", "Pool"}},
	{ID: 2, Name: "Sarova Stanley", Location: "Nairobi", PricePerNight: 9500, Rating: 4.5},
}

func newTestEngine() (*Engine, *fakeStore, *fakeLedger, *fakeNotifier, *fakePayments) {
	store := newFakeStore()
	ledger := newFakeLedger()
	notifier := &fakeNotifier{}
	payments := &fakePayments{}
	catalog := &fakeCatalog{
		byLocation: map[string][]Hotel{"nairobi": nairobiHotels},
		byName:     map[string][]Hotel{"serena": nairobiHotels[:1]},
	}
	engine := NewEngine(Deps{
		Conversations: store,
		Catalog:       catalog,
		Bookings:      ledger,
		Notifier:      notifier,
		Payments:      payments,
	})
	return engine, store, ledger, notifier, payments
}

func handle(t *testing.T, e *Engine, text string) {
	t.Helper()
	if err := e.HandleMessage(context.Background(), testPhone, text); err != nil {
		t.Fatalf("HandleMessage(%q): %v", text, err)
	}
}

func TestBookingFlowEndToEnd(t *testing.T) {
	engine, store, ledger, notifier, payments := newTestEngine()

	handle(t, engine, "hi")
	if got := store.state(t, testPhone); got != StateBrowseHotels {
		t.Fatalf("after greeting state = %s", got)
	}
	if !strings.Contains(notifier.last(t), "Welcome to Hotel Booking Bot") {
		t.Fatalf("expected welcome menu, got %q", notifier.last(t))
	}

	handle(t, engine, "1")
	if got := store.state(t, testPhone); got != StateSelectHotel {
		t.Fatalf("after menu choice state = %s", got)
	}
	if got := store.context(t, testPhone).Step; got != stepLocation {
		t.Fatalf("step = %q", got)
	}

	handle(t, engine, "1") // Nairobi
	if got := store.state(t, testPhone); got != StateSelectDates {
		t.Fatalf("after location state = %s", got)
	}
	cc := store.context(t, testPhone)
	if len(cc.Hotels) != 2 || cc.Query != "nairobi" || cc.PreviousStep != stepLocation {
		t.Fatalf("unexpected context: %+v", cc)
	}
	if !strings.Contains(notifier.last(t), "Nairobi Serena Hotel") {
		t.Fatalf("hotel list missing hotel name: %q", notifier.last(t))
	}

	handle(t, engine, "1")
	if got := store.state(t, testPhone); got != StateConfirmBooking {
		t.Fatalf("after hotel pick state = %s", got)
	}
	if got := store.context(t, testPhone).SelectedHotel; got == nil || got.ID != 1 {
		t.Fatalf("selected hotel = %+v", got)
	}

	handle(t, engine, "check-in date: 15/08/2024\ncheck-out date: 17/08/2024\nnumber of guests: 2")
	if got := store.state(t, testPhone); got != StatePayment {
		t.Fatalf("after details state = %s", got)
	}
	cc = store.context(t, testPhone)
	if cc.Nights != 2 || cc.TotalAmount != 24000 {
		t.Fatalf("quote = %d nights, %v total", cc.Nights, cc.TotalAmount)
	}
	if !strings.Contains(notifier.last(t), "Total: KSh 24000") {
		t.Fatalf("summary missing total: %q", notifier.last(t))
	}

	handle(t, engine, "confirm")
	if ledger.count() != 1 {
		t.Fatalf("bookings = %d, want 1", ledger.count())
	}
	b := ledger.booking(t, 1)
	if b.Status != StatusPending || b.HotelID != 1 || b.Guests != 2 {
		t.Fatalf("unexpected booking: %+v", b)
	}
	if len(payments.initiated) != 1 || payments.initiated[0] != 1 {
		t.Fatalf("payments initiated = %v", payments.initiated)
	}
	if got := store.context(t, testPhone).BookingID; got != 1 {
		t.Fatalf("context bookingId = %d", got)
	}

	if err := engine.CompletePayment(context.Background(), testPhone, 1, StatusPaid, "MPABC123"); err != nil {
		t.Fatalf("CompletePayment: %v", err)
	}
	b = ledger.booking(t, 1)
	if b.Status != StatusPaid || b.TransactionRef != "MPABC123" {
		t.Fatalf("booking after resolution: %+v", b)
	}
	if got := store.state(t, testPhone); got != StateCompleted {
		t.Fatalf("state after resolution = %s", got)
	}
	if !strings.Contains(notifier.last(t), "Payment successful") {
		t.Fatalf("expected payment confirmation, got %q", notifier.last(t))
	}

	// A completed conversation restarts from the top.
	handle(t, engine, "hello again")
	if got := store.state(t, testPhone); got != StateBrowseHotels {
		t.Fatalf("state after restart = %s", got)
	}
}

func TestUnrecognizedMenuInputKeepsState(t *testing.T) {
	engine, store, _, notifier, _ := newTestEngine()
	store.seed(testPhone, StateBrowseHotels, convContext{})

	handle(t, engine, "9")
	if got := store.state(t, testPhone); got != StateBrowseHotels {
		t.Fatalf("state = %s, want unchanged", got)
	}
	if got := notifier.last(t); got != menuRetryMessage {
		t.Fatalf("reply = %q", got)
	}
}

func TestNoResultsReturnsToWelcome(t *testing.T) {
	engine, store, ledger, notifier, _ := newTestEngine()
	store.seed(testPhone, StateSelectHotel, convContext{Step: stepSearch})

	handle(t, engine, "nonexistent palace")
	if got := store.state(t, testPhone); got != StateWelcome {
		t.Fatalf("state = %s, want welcome", got)
	}
	if ledger.count() != 0 {
		t.Fatalf("bookings = %d, want 0", ledger.count())
	}
	if !strings.Contains(notifier.last(t), "no hotels found") {
		t.Fatalf("reply = %q", notifier.last(t))
	}
}

func TestInvalidHotelNumberKeepsContext(t *testing.T) {
	engine, store, _, notifier, _ := newTestEngine()
	store.seed(testPhone, StateSelectDates, convContext{Hotels: nairobiHotels, Query: "nairobi", PreviousStep: stepLocation})

	handle(t, engine, "7")
	if got := store.state(t, testPhone); got != StateSelectDates {
		t.Fatalf("state = %s, want unchanged", got)
	}
	if got := store.context(t, testPhone); len(got.Hotels) != 2 {
		t.Fatalf("hotel list lost: %+v", got)
	}
	if got := notifier.last(t); got != invalidHotelMessage {
		t.Fatalf("reply = %q", got)
	}
}

func TestBadDateRangeStaysInConfirm(t *testing.T) {
	engine, store, _, notifier, _ := newTestEngine()
	hotel := nairobiHotels[0]
	store.seed(testPhone, StateConfirmBooking, convContext{SelectedHotel: &hotel, Step: stepDatesInput})

	handle(t, engine, "check-in date: 17/08/2024\ncheck-out date: 15/08/2024\nnumber of guests: 2")
	if got := store.state(t, testPhone); got != StateConfirmBooking {
		t.Fatalf("state = %s, want unchanged", got)
	}
	if got := notifier.last(t); got != badDateRangeMessage {
		t.Fatalf("reply = %q", got)
	}
}

func TestDuplicateConfirmCreatesSingleBooking(t *testing.T) {
	engine, store, ledger, notifier, payments := newTestEngine()
	hotel := nairobiHotels[0]
	details := BookingDetails{Valid: true, CheckIn: "15/08/2024", CheckOut: "17/08/2024", Guests: 2}
	store.seed(testPhone, StatePayment, convContext{
		SelectedHotel:  &hotel,
		BookingDetails: &details,
		TotalAmount:    24000,
		Nights:         2,
	})

	handle(t, engine, "confirm")
	handle(t, engine, "confirm")

	if ledger.count() != 1 {
		t.Fatalf("bookings = %d, want 1", ledger.count())
	}
	if len(payments.initiated) != 1 {
		t.Fatalf("payments initiated = %v", payments.initiated)
	}
	if got := notifier.last(t); got != paymentPendingMessage {
		t.Fatalf("reply = %q", got)
	}
}

func TestCancelBeforeResolutionDoesNotCompleteConversation(t *testing.T) {
	engine, store, ledger, _, _ := newTestEngine()
	hotel := nairobiHotels[0]
	details := BookingDetails{Valid: true, CheckIn: "15/08/2024", CheckOut: "17/08/2024", Guests: 2}
	store.seed(testPhone, StatePayment, convContext{
		SelectedHotel:  &hotel,
		BookingDetails: &details,
		TotalAmount:    24000,
		Nights:         2,
	})

	handle(t, engine, "confirm")
	handle(t, engine, "cancel")
	if got := store.state(t, testPhone); got != StateWelcome {
		t.Fatalf("state after cancel = %s", got)
	}

	// The continuation still resolves the booking it was given, but the
	// conversation has moved on and must not be yanked to COMPLETED.
	if err := engine.CompletePayment(context.Background(), testPhone, 1, StatusPaid, "MPXYZ"); err != nil {
		t.Fatalf("CompletePayment: %v", err)
	}
	if got := ledger.booking(t, 1).Status; got != StatusPaid {
		t.Fatalf("booking status = %s, want paid", got)
	}
	if got := store.state(t, testPhone); got != StateWelcome {
		t.Fatalf("state after resolution = %s, want welcome", got)
	}
}

func TestConcurrentCancelAndResolutionIsNotLost(t *testing.T) {
	engine, store, ledger, _, _ := newTestEngine()
	hotel := nairobiHotels[0]
	details := BookingDetails{Valid: true, CheckIn: "15/08/2024", CheckOut: "17/08/2024", Guests: 2}
	store.seed(testPhone, StatePayment, convContext{
		SelectedHotel:  &hotel,
		BookingDetails: &details,
		TotalAmount:    24000,
		Nights:         2,
	})
	handle(t, engine, "confirm")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = engine.HandleMessage(context.Background(), testPhone, "cancel")
	}()
	go func() {
		defer wg.Done()
		_ = engine.CompletePayment(context.Background(), testPhone, 1, StatusPaid, "MPRACE")
	}()
	wg.Wait()

	// Whichever order the lock grants, the payment lands on the booking
	// and the conversation ends in a coherent state, never a lost update.
	if got := ledger.booking(t, 1).Status; got != StatusPaid {
		t.Fatalf("booking status = %s, want paid", got)
	}
	switch got := store.state(t, testPhone); got {
	case StateWelcome, StateCompleted, StateBrowseHotels:
	default:
		t.Fatalf("final state = %s", got)
	}
}

func TestMalformedContextRecovers(t *testing.T) {
	engine, store, _, _, _ := newTestEngine()
	store.mu.Lock()
	store.convs[testPhone] = &Conversation{
		PhoneNumber:  testPhone,
		CurrentState: StateSelectHotel,
		Context:      []byte("{not json"),
	}
	store.mu.Unlock()

	handle(t, engine, "nairobi")
	// The repaired context has no step marker, so the dialog restarts.
	if got := store.state(t, testPhone); got != StateBrowseHotels {
		t.Fatalf("state = %s, want restart", got)
	}
}

func TestCatalogFailureRepliesApology(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	engine := NewEngine(Deps{
		Conversations: store,
		Catalog:       &fakeCatalog{err: errors.New("db down")},
		Bookings:      newFakeLedger(),
		Notifier:      notifier,
		Payments:      &fakePayments{},
	})
	store.seed(testPhone, StateSelectHotel, convContext{Step: stepLocation})

	err := engine.HandleMessage(context.Background(), testPhone, "nairobi")
	if err == nil {
		t.Fatal("expected error from catalog failure")
	}
	if got := notifier.last(t); got != catalogErrorMessage {
		t.Fatalf("reply = %q", got)
	}
	if got := store.state(t, testPhone); got != StateSelectHotel {
		t.Fatalf("state = %s, want unchanged", got)
	}
}

func TestPaymentInitiationFailureMarksBookingFailed(t *testing.T) {
	engine, store, ledger, notifier, payments := newTestEngine()
	payments.err = errors.New("gateway unreachable")
	hotel := nairobiHotels[0]
	details := BookingDetails{Valid: true, CheckIn: "15/08/2024", CheckOut: "17/08/2024", Guests: 2}
	store.seed(testPhone, StatePayment, convContext{
		SelectedHotel:  &hotel,
		BookingDetails: &details,
		TotalAmount:    24000,
		Nights:         2,
	})

	handle(t, engine, "confirm")

	if got := ledger.booking(t, 1).Status; got != StatusFailed {
		t.Fatalf("booking status = %s, want failed", got)
	}
	if got := notifier.last(t); got != paymentInitFailMessage {
		t.Fatalf("reply = %q", got)
	}
	// The stale booking id is cleared so the user can confirm again.
	if got := store.context(t, testPhone).BookingID; got != 0 {
		t.Fatalf("context bookingId = %d, want 0", got)
	}
}

func TestHandoffReturnsToWelcome(t *testing.T) {
	engine, store, _, notifier, _ := newTestEngine()
	store.seed(testPhone, StateBrowseHotels, convContext{})

	handle(t, engine, "3")
	if got := store.state(t, testPhone); got != StateWelcome {
		t.Fatalf("state = %s, want welcome", got)
	}
	if got := notifier.last(t); got != handoffMessage {
		t.Fatalf("reply = %q", got)
	}
}

func TestFreeTextLocationQuery(t *testing.T) {
	engine, store, _, notifier, _ := newTestEngine()
	store.seed(testPhone, StateSelectHotel, convContext{Step: stepLocation})
	notifier.reset()

	handle(t, engine, "Nairobi")
	if got := store.state(t, testPhone); got != StateSelectDates {
		t.Fatalf("state = %s", got)
	}
	if got := store.context(t, testPhone).Query; got != "nairobi" {
		t.Fatalf("query = %q", got)
	}
}
