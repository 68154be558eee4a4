package services_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kauan1020/payments-microservice/gateways"
	"github.com/kauan1020/payments-microservice/models"
	"github.com/kauan1020/payments-microservice/providers"
	"github.com/kauan1020/payments-microservice/repository"
	"github.com/shopspring/decimal"
)

// ---- in-memory repository ----

type memRepo struct {
	mu        sync.Mutex
	payments  map[int64]models.Payment
	nextID    uint
	addErr    error
	updateErr error
	// honourCtx makes writes fail once the caller's context is done.
	honourCtx bool
	adds      int
	gets      int
	updates   int
}

func newMemRepo(existing ...models.Payment) *memRepo {
	r := &memRepo{payments: make(map[int64]models.Payment)}
	for _, p := range existing {
		r.nextID++
		p.ID = r.nextID
		r.payments[p.OrderID] = p
	}
	return r
}

func (r *memRepo) Add(_ context.Context, p *models.Payment) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adds++
	if r.addErr != nil {
		return nil, r.addErr
	}
	if _, ok := r.payments[p.OrderID]; ok {
		return nil, repository.ErrDuplicatePayment
	}
	r.nextID++
	stored := *p
	stored.ID = r.nextID
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.payments[p.OrderID] = stored
	return &stored, nil
}

func (r *memRepo) GetByOrderID(_ context.Context, orderID int64) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	p, ok := r.payments[orderID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *memRepo) Update(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	if r.honourCtx && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	stored, ok := r.payments[p.OrderID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	stored.Status = p.Status
	stored.TransactionID = p.TransactionID
	stored.ErrorMessage = p.ErrorMessage
	stored.PaymentMethod = p.PaymentMethod
	stored.LastRequestID = p.LastRequestID
	stored.UpdatedAt = time.Now()
	r.payments[p.OrderID] = stored
	return &stored, nil
}

func (r *memRepo) get(orderID int64) (models.Payment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[orderID]
	return p, ok
}

// ---- order gateway ----

type stubGateway struct {
	order *models.Order
	err   error
}

func (g *stubGateway) GetOrder(_ context.Context, orderID int64) (*models.Order, error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.order == nil {
		return nil, gateways.ErrOrderNotFound
	}
	return g.order, nil
}

func orderWithTotal(id int64, total string) *models.Order {
	price := decimal.RequireFromString(total)
	return &models.Order{ID: id, TotalPrice: &price, Status: "RECEIVED"}
}

// ---- provider ----

type stubProvider struct {
	mu         sync.Mutex
	result     *providers.TransactionResult
	err        error
	panicWith  interface{}
	calls      int
	lastAmount decimal.Decimal
	lastMethod string
	attempts   []string
	// block waits for the call context to end before returning its error.
	block      bool

	refund       *providers.RefundResult
	refundErr    error
	refundCalls  int
	refundAmount *decimal.Decimal
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) ProcessPayment(ctx context.Context, _ int64, amount decimal.Decimal, method, attemptID string) (*providers.TransactionResult, error) {
	p.mu.Lock()
	p.calls++
	p.lastAmount = amount
	p.lastMethod = method
	p.attempts = append(p.attempts, attemptID)
	p.mu.Unlock()
	if p.panicWith != nil {
		panic(p.panicWith)
	}
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return p.result, p.err
}

func (p *stubProvider) RefundPayment(_ context.Context, transactionID string, amount *decimal.Decimal) (*providers.RefundResult, error) {
	p.refundCalls++
	p.refundAmount = amount
	if p.refundErr != nil {
		return nil, p.refundErr
	}
	r := *p.refund
	r.TransactionID = transactionID
	return &r, nil
}

func approved(txID string) *providers.TransactionResult {
	return &providers.TransactionResult{TransactionID: txID, Status: providers.StatusApproved, Currency: "BRL"}
}

// ---- publisher ----

type recordingPublisher struct {
	mu       sync.Mutex
	keys     []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.payloads = append(p.payloads, payload)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads)
}

// ---- locker ----

type busyLocker struct{ err error }

func (l busyLocker) TryLock(context.Context, int64) (func(), bool, error) {
	return nil, false, l.err
}

var errBoom = errors.New("boom")
