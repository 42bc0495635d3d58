//go:build integration

package test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/joao-fontenele/storefront-payments/internal/biteship"
	"github.com/joao-fontenele/storefront-payments/internal/catalog"
	"github.com/joao-fontenele/storefront-payments/internal/checkout"
	"github.com/joao-fontenele/storefront-payments/internal/config"
	"github.com/joao-fontenele/storefront-payments/internal/domain"
	"github.com/joao-fontenele/storefront-payments/internal/messaging"
	"github.com/joao-fontenele/storefront-payments/internal/notify"
	"github.com/joao-fontenele/storefront-payments/internal/orders"
	"github.com/joao-fontenele/storefront-payments/internal/payments"
	"github.com/joao-fontenele/storefront-payments/internal/returns"
	"github.com/joao-fontenele/storefront-payments/internal/shipping"
	"github.com/joao-fontenele/storefront-payments/internal/signature"
	"github.com/joao-fontenele/storefront-payments/internal/worker"
)

const callbackSecret = "integration-secret"

// aggregatorStub answers Biteship order creation. While failing is set it
// returns 500. While shortWaybill is set it accepts the order with a waybill
// too short to be real.
type aggregatorStub struct {
	calls        atomic.Int32
	failing      atomic.Bool
	shortWaybill atomic.Bool
}

func (a *aggregatorStub) handler(w http.ResponseWriter, r *http.Request) {
	a.calls.Add(1)
	w.Header().Set("Content-Type", "application/json")
	if a.failing.Load() {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"success":false,"error":"courier unavailable"}`)
		return
	}
	if a.shortWaybill.Load() {
		_, _ = io.WriteString(w, `{"success":true,"data":{"id":"bs-int-2","courier":{"company":"jne","type":"reg","waybill_id":"JX1"}}}`)
		return
	}
	_, _ = io.WriteString(w, `{"success":true,"data":{"id":"bs-int-1","courier":{"company":"jne","type":"reg","waybill_id":"JNE00123456789","link":"https://track.example/JNE00123456789"}}}`)
}

type emailCapture struct {
	mu     sync.Mutex
	emails []notify.Email
}

func (e *emailCapture) handler(w http.ResponseWriter, r *http.Request) {
	var email notify.Email
	if err := json.NewDecoder(r.Body).Decode(&email); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	e.mu.Lock()
	e.emails = append(e.emails, email)
	e.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"id":"em-1"}`)
}

func (e *emailCapture) getEmails() []notify.Email {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]notify.Email, len(e.emails))
	copy(result, e.emails)
	return result
}

type stack struct {
	submissions *checkout.SubmissionRepository
	orders      *orders.OrderRepository
	shipper     *shipping.Orchestrator
	dispatcher  *notify.Dispatcher
	aggregator  *aggregatorStub
	mail        *emailCapture
	cfg         *config.Config
	logger      *slog.Logger
}

func newStack(t *testing.T, pg *PostgresSetup) *stack {
	t.Helper()

	ctx := context.Background()
	db := OpenDB(ctx, t, pg.ConnStr)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := &stack{
		submissions: checkout.NewSubmissionRepository(db),
		orders:      orders.NewOrderRepository(db),
		aggregator:  &aggregatorStub{},
		mail:        &emailCapture{},
		logger:      logger,
		cfg: &config.Config{
			Warehouse: config.Warehouse{Name: "Gudang Toko", Phone: "0221234567", Address: "Jl. Gudang 9", PostalCode: "40111"},
			Parcel:    config.Parcel{DefaultWeight: 700, MinItemWeight: 100, Length: 30, Width: 20, Height: 12},
		},
	}

	biteshipServer := httptest.NewServer(http.HandlerFunc(s.aggregator.handler))
	t.Cleanup(biteshipServer.Close)

	mailMux := http.NewServeMux()
	mailMux.HandleFunc("POST /emails", s.mail.handler)
	mailServer := httptest.NewServer(mailMux)
	t.Cleanup(mailServer.Close)

	httpClient := &http.Client{Timeout: 10 * time.Second}
	s.shipper = shipping.NewOrchestrator(
		biteship.NewClient(biteshipServer.URL, "test-key", httpClient),
		s.orders, catalog.NewProductRepository(db), s.cfg, logger,
	)
	s.dispatcher = notify.NewDispatcher(
		notify.NewMailer(mailServer.URL, "test-key", "toko@example.com", httpClient),
		s.orders, notify.NewAccountRepository(db), "Toko", logger,
	)

	return s
}

func (s *stack) reconciler(publisher payments.EventPublisher) *payments.Reconciler {
	return payments.NewReconciler(payments.ReconcilerDeps{
		Verifier:     signature.NewVerifier(callbackSecret),
		Resolver:     checkout.NewResolver(s.submissions),
		Materializer: orders.NewMaterializer(s.submissions, s.orders),
		Orders:       s.orders,
		Shipper:      s.shipper,
		Notifier:     s.dispatcher,
		Publisher:    publisher,
	}, s.logger)
}

func paidSubmission(id, reference string) *domain.CheckoutSubmission {
	return &domain.CheckoutSubmission{
		ID:     id,
		UserID: "user-" + id,
		Total:  500000,
		Items: []domain.SubmissionItem{
			{ProductID: "P-" + id, Name: "Sandal Kulit", UnitPrice: 250000, Quantity: 2, Size: "42"},
		},
		ShippingMethod: "JNE",
		ShippingAddress: &domain.ShippingAddress{
			Name:       "Budi",
			Phone:      "081234567890",
			Street:     "Jl. Braga No. 1",
			City:       "Bandung",
			PostalCode: "40123",
		},
		Status:           domain.SubmissionStatusSubmitted,
		PaymentReference: &reference,
	}
}

func postCallback(t *testing.T, handler *payments.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/payments/callback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(payments.SignatureHeader, signature.NewVerifier(callbackSecret).Sign(body))
	rec := httptest.NewRecorder()
	handler.HandleCallback(rec, req)
	return rec
}

func TestPaidCallbackFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	s := newStack(t, pg)
	sub := paidSubmission("S100", "T100")
	SeedSubmission(ctx, t, OpenDB(ctx, t, pg.ConnStr), sub, "budi@example.com")

	handler := payments.NewHandler(s.reconciler(nil), nil, s.logger)
	body := `{"reference":"T100","merchant_ref":"S100","status":"PAID","payment_method":"QRIS"}`

	for i := 0; i < 2; i++ {
		rec := postCallback(t, handler, body)
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected status %d, got %d: %s", i+1, http.StatusOK, rec.Code, rec.Body.String())
		}
	}

	stored, err := s.submissions.GetByID(ctx, "S100")
	if err != nil {
		t.Fatalf("failed to load submission: %v", err)
	}
	if stored.Status != domain.SubmissionStatusPaid {
		t.Fatalf("expected submission paid, got %s", stored.Status)
	}

	list, err := s.orders.List(ctx, 10)
	if err != nil {
		t.Fatalf("failed to list orders: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 order after two deliveries, got %d", len(list))
	}

	order, err := s.orders.GetByID(ctx, list[0].ID)
	if err != nil {
		t.Fatalf("failed to load order: %v", err)
	}
	if order.PaymentReference != "T100" {
		t.Errorf("expected payment reference T100, got %s", order.PaymentReference)
	}
	if order.TotalAmount != 500000 {
		t.Errorf("expected total 500000, got %d", order.TotalAmount)
	}
	if order.PaymentMethod != "QRIS" {
		t.Errorf("expected payment method QRIS, got %s", order.PaymentMethod)
	}
	if len(order.Items) != 1 || order.Items[0].Quantity != 2 {
		t.Errorf("expected one item line with quantity 2, got %+v", order.Items)
	}
	if order.Resi() != "JNE00123456789" {
		t.Errorf("expected waybill JNE00123456789, got %q", order.Resi())
	}
	if order.ShippingAddress.Biteship == nil || order.ShippingAddress.Biteship.OrderID != "bs-int-1" {
		t.Errorf("expected shipment metadata on the address, got %+v", order.ShippingAddress.Biteship)
	}

	if calls := s.aggregator.calls.Load(); calls != 1 {
		t.Errorf("expected 1 shipment request, got %d", calls)
	}

	emails := s.mail.getEmails()
	if len(emails) != 1 {
		t.Fatalf("expected 1 invoice email, got %d", len(emails))
	}
	if len(emails[0].To) != 1 || emails[0].To[0] != "budi@example.com" {
		t.Errorf("expected invoice to budi@example.com, got %v", emails[0].To)
	}
	if !strings.Contains(emails[0].Subject, order.OrderNumber) {
		t.Errorf("expected subject to contain %s, got %s", order.OrderNumber, emails[0].Subject)
	}
	if !notify.InvoiceSent(order.PaymentDetails) {
		t.Error("expected invoice marker on the order")
	}
}

func TestShortWaybillIsNotShippedTwice(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	s := newStack(t, pg)
	SeedSubmission(ctx, t, OpenDB(ctx, t, pg.ConnStr), paidSubmission("S110", "T110"), "rina@example.com")
	s.aggregator.shortWaybill.Store(true)

	handler := payments.NewHandler(s.reconciler(nil), nil, s.logger)
	body := `{"reference":"T110","merchant_ref":"S110","status":"PAID"}`
	for i := 0; i < 3; i++ {
		if rec := postCallback(t, handler, body); rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected status %d, got %d: %s", i+1, http.StatusOK, rec.Code, rec.Body.String())
		}
	}

	if calls := s.aggregator.calls.Load(); calls != 1 {
		t.Errorf("expected 1 shipment request, got %d", calls)
	}

	list, err := s.orders.List(ctx, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected 1 order, got %d (err %v)", len(list), err)
	}
	claimed, err := s.orders.ClaimShipment(ctx, list[0].ID, time.Minute)
	if err != nil {
		t.Fatalf("failed to claim shipment: %v", err)
	}
	if claimed {
		t.Error("expected recorded shipment to block a new claim")
	}
}

func TestLateExpiryKeepsPaidSubmission(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	s := newStack(t, pg)
	SeedSubmission(ctx, t, OpenDB(ctx, t, pg.ConnStr), paidSubmission("S210", "T210"), "sari@example.com")

	handler := payments.NewHandler(s.reconciler(nil), nil, s.logger)
	for _, body := range []string{
		`{"reference":"T210","merchant_ref":"S210","status":"PAID"}`,
		`{"reference":"T210","merchant_ref":"S210","status":"EXPIRED"}`,
	} {
		if rec := postCallback(t, handler, body); rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
		}
	}

	stored, err := s.submissions.GetByID(ctx, "S210")
	if err != nil {
		t.Fatalf("failed to load submission: %v", err)
	}
	if stored.Status != domain.SubmissionStatusPaid {
		t.Errorf("expected status paid, got %s", stored.Status)
	}

	if _, err := s.submissions.UpdateStatus(ctx, "missing", domain.SubmissionStatusFailed); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected no rows for unknown submission, got %v", err)
	}

	list, err := s.orders.List(ctx, 10)
	if err != nil || len(list) != 1 {
		t.Errorf("expected paid order kept, got %d (err %v)", len(list), err)
	}
}

func TestUnpaidCallbackCreatesNoOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	s := newStack(t, pg)
	SeedSubmission(ctx, t, OpenDB(ctx, t, pg.ConnStr), paidSubmission("S200", "T200"), "sari@example.com")

	handler := payments.NewHandler(s.reconciler(nil), nil, s.logger)
	rec := postCallback(t, handler, `{"reference":"T200","merchant_ref":"S200","status":"EXPIRED"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	stored, err := s.submissions.GetByID(ctx, "S200")
	if err != nil {
		t.Fatalf("failed to load submission: %v", err)
	}
	if stored.Status != "expired" {
		t.Errorf("expected status expired, got %s", stored.Status)
	}

	list, err := s.orders.List(ctx, 10)
	if err != nil {
		t.Fatalf("failed to list orders: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected no orders, got %d", len(list))
	}
	if calls := s.aggregator.calls.Load(); calls != 0 {
		t.Errorf("expected no shipment requests, got %d", calls)
	}
}

func TestOrderPaidFollowUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	brokers, cleanupKafka := SetupKafka(ctx, t)
	defer cleanupKafka()

	s := newStack(t, pg)
	SeedSubmission(ctx, t, OpenDB(ctx, t, pg.ConnStr), paidSubmission("S300", "T300"), "dewi@example.com")

	producer := messaging.NewProducer(brokers, messaging.TopicOrderPaid)
	defer func() { _ = producer.Close() }()

	// The aggregator is down while the callback runs, so the order is
	// created without a waybill and the worker has to ship it.
	s.aggregator.failing.Store(true)

	handler := payments.NewHandler(s.reconciler(producer), nil, s.logger)
	rec := postCallback(t, handler, `{"reference":"T300","merchant_ref":"S300","status":"PAID"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	list, err := s.orders.List(ctx, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected 1 order, got %d (err %v)", len(list), err)
	}
	orderID := list[0].ID

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		t.Fatalf("failed to load order: %v", err)
	}
	if order.Resi() != "" {
		t.Fatalf("expected no waybill yet, got %q", order.Resi())
	}

	s.aggregator.failing.Store(false)

	followUp := worker.NewFollowUpHandler(s.submissions, s.orders, s.shipper, s.dispatcher, s.logger)
	consumer := messaging.NewConsumer(brokers, messaging.TopicOrderPaid, "follow-up-test", s.logger,
		messaging.WithStartOffset(kafka.FirstOffset),
		messaging.WithRetry(3, 100*time.Millisecond),
	)
	defer func() { _ = consumer.Close() }()

	consumeCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	go func() { _ = consumer.Consume(consumeCtx, followUp.Handle) }()

	deadline := time.Now().Add(90 * time.Second)
	for time.Now().Before(deadline) {
		order, err = s.orders.GetByID(ctx, orderID)
		if err != nil {
			t.Fatalf("failed to load order: %v", err)
		}
		if order.Resi() == "JNE00123456789" {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	if order.Resi() != "JNE00123456789" {
		t.Fatalf("expected worker to ship the order, waybill is %q", order.Resi())
	}
	if emails := s.mail.getEmails(); len(emails) != 1 {
		t.Errorf("expected 1 invoice email, got %d", len(emails))
	}
}

func TestReturnApproval(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db := OpenDB(ctx, t, pg.ConnStr)
	s := newStack(t, pg)
	sub := paidSubmission("S400", "T400")
	SeedSubmission(ctx, t, db, sub, "andi@example.com")

	handler := payments.NewHandler(s.reconciler(nil), nil, s.logger)
	if rec := postCallback(t, handler, `{"reference":"T400","merchant_ref":"S400","status":"PAID"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	list, err := s.orders.List(ctx, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected 1 order, got %d (err %v)", len(list), err)
	}

	returnID := uuid.NewString()
	if _, err := db.ExecContext(ctx, `
		INSERT INTO returns (id, order_id, user_id, reason, status)
		VALUES ($1, $2, $3, 'ukuran tidak pas', 'requested')
	`, returnID, list[0].ID, sub.UserID); err != nil {
		t.Fatalf("failed to insert return: %v", err)
	}

	service := shipping.NewReturnService(s.shipper, returns.NewReturnRepository(db), s.orders, s.logger)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /returns/{id}/approve", returns.NewHandler(service, s.logger).HandleApprove)
	server := httptest.NewServer(mux)
	defer server.Close()

	before := s.aggregator.calls.Load()

	for i := 0; i < 2; i++ {
		resp, err := http.Post(server.URL+"/returns/"+returnID+"/approve", "application/json", nil)
		if err != nil {
			t.Fatalf("approve request failed: %v", err)
		}
		var approved domain.Return
		err = json.NewDecoder(resp.Body).Decode(&approved)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("approval %d: expected status %d, got %d", i+1, http.StatusOK, resp.StatusCode)
		}
		if err != nil {
			t.Fatalf("failed to decode return: %v", err)
		}
		if approved.Status != domain.ReturnStatusApproved {
			t.Errorf("expected status approved, got %s", approved.Status)
		}
		if approved.ReturnWaybill == nil || *approved.ReturnWaybill != "JNE00123456789" {
			t.Errorf("expected return waybill, got %v", approved.ReturnWaybill)
		}
	}

	if calls := s.aggregator.calls.Load() - before; calls != 1 {
		t.Errorf("expected 1 return shipment request, got %d", calls)
	}

	resp, err := http.Post(server.URL+"/returns/"+uuid.NewString()+"/approve", "application/json", nil)
	if err != nil {
		t.Fatalf("approve request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected status %d for unknown return, got %d", http.StatusNotFound, resp.StatusCode)
	}
}
