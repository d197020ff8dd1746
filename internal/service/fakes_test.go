package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/infinitedim/skyvix/internal/gateway"
	"github.com/infinitedim/skyvix/internal/model"
	"github.com/infinitedim/skyvix/internal/repository"
)

// In-memory stores mirroring the repository semantics closely enough
// for the service rules under test: guarded transitions report
// repository.ErrConflict on a zero-row match, seat reservation is a
// compare-and-set, and one pending payment per order is enforced.

type memPayments struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]*model.Payment
}

func newMemPayments() *memPayments {
	return &memPayments{nextID: 1, rows: map[uint64]*model.Payment{}}
}

func (m *memPayments) Create(_ context.Context, p *model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.OrderID == p.OrderID && row.Status == model.PaymentPending {
			return repository.ErrActivePaymentExists
		}
	}
	p.ID = m.nextID
	m.nextID++
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.rows[p.ID] = &cp
	return nil
}

func (m *memPayments) GetByID(_ context.Context, id uint64) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memPayments) GetByReference(_ context.Context, ref string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Reference == ref {
			cp := *row
			return &cp, nil
		}
	}
	return nil, repository.ErrPaymentNotFound
}

func (m *memPayments) SetInvoice(_ context.Context, id uint64, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		u := url
		row.InvoiceURL = &u
	}
	return nil
}

func (m *memPayments) MarkFailed(_ context.Context, id uint64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok && row.Status == model.PaymentPending {
		row.Status = model.PaymentFailed
		r := reason
		row.FailureReason = &r
	}
	return nil
}

func (m *memPayments) ApplyStatus(_ context.Context, id uint64, status model.PaymentStatus, raw []byte, paidAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Status != model.PaymentPending {
		return false, nil
	}
	row.Status = status
	row.ExternalResponse = raw
	row.PaidAt = paidAt
	return true, nil
}

func (m *memPayments) UpdateMethod(_ context.Context, id uint64, method string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return repository.ErrPaymentNotFound
	}
	if row.Status != model.PaymentPending {
		return repository.ErrConflict
	}
	mv := method
	row.Method = &mv
	return nil
}

func (m *memPayments) UpdateStatus(_ context.Context, id uint64, to model.PaymentStatus, clearFailure bool, from ...model.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return repository.ErrPaymentNotFound
	}
	for _, f := range from {
		if row.Status == f {
			row.Status = to
			if clearFailure {
				row.FailureReason = nil
			}
			return nil
		}
	}
	return repository.ErrConflict
}

func (m *memPayments) List(_ context.Context, f repository.PaymentFilter) ([]model.Payment, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Payment{}
	for _, row := range m.rows {
		if f.UserID != 0 && row.UserID != f.UserID {
			continue
		}
		if f.Status != "" && string(row.Status) != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(row.Reference), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, *row)
	}
	return out, int64(len(out)), nil
}

func (m *memPayments) Stats(_ context.Context, _, _ *time.Time) (*repository.PaymentStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s repository.PaymentStats
	for _, row := range m.rows {
		s.Total++
		switch row.Status {
		case model.PaymentCompleted:
			s.Completed++
			s.CompletedSumCents += row.AmountCents
		case model.PaymentPending:
			s.Pending++
		case model.PaymentFailed:
			s.Failed++
		}
	}
	return &s, nil
}

type memOrders struct {
	rows map[uint64]*model.Order
}

func (m *memOrders) GetByID(_ context.Context, id, userID uint64) (*model.Order, error) {
	row, ok := m.rows[id]
	if !ok || (userID != 0 && row.UserID != userID) {
		return nil, repository.ErrOrderNotFound
	}
	cp := *row
	return &cp, nil
}

type memBookings struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]*model.TrainBooking
	seats  *memSeats // optional; reserves on create, releases on cancel

	failOnce func(code string) bool // scripted code collision
}

func newMemBookings(seats *memSeats) *memBookings {
	return &memBookings{nextID: 1, rows: map[uint64]*model.TrainBooking{}, seats: seats}
}

func (m *memBookings) Create(_ context.Context, b *model.TrainBooking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOnce != nil && m.failOnce(b.BookingCode) {
		return repository.ErrDuplicateBookingCode
	}
	for _, row := range m.rows {
		if row.BookingCode == b.BookingCode {
			return repository.ErrDuplicateBookingCode
		}
	}
	if b.SeatID != nil && m.seats != nil {
		if err := m.seats.reserve(*b.SeatID, b.ScheduleID); err != nil {
			return err
		}
	}
	b.ID = m.nextID
	m.nextID++
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	m.rows[b.ID] = &cp
	return nil
}

func (m *memBookings) GetByID(_ context.Context, id uint64) (*model.TrainBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrBookingNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memBookings) GetByCode(_ context.Context, code string) (*model.TrainBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.BookingCode == strings.ToUpper(code) {
			cp := *row
			return &cp, nil
		}
	}
	return nil, repository.ErrBookingNotFound
}

func (m *memBookings) List(_ context.Context, f repository.BookingFilter) ([]model.TrainBooking, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.TrainBooking{}
	for _, row := range m.rows {
		if f.UserID != 0 && row.UserID != f.UserID {
			continue
		}
		if f.ScheduleID != 0 && row.ScheduleID != f.ScheduleID {
			continue
		}
		if f.Status != "" && string(row.Status) != f.Status {
			continue
		}
		out = append(out, *row)
	}
	return out, int64(len(out)), nil
}

func (m *memBookings) UpdateStatus(_ context.Context, id uint64, to model.BookingStatus, from ...model.BookingStatus) (*model.TrainBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrBookingNotFound
	}
	matched := false
	for _, f := range from {
		if row.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return nil, repository.ErrConflict
	}
	row.Status = to
	if to == model.BookingCancelled {
		now := time.Now().UTC()
		row.CancelledAt = &now
		if row.SeatID != nil && m.seats != nil {
			m.seats.release(*row.SeatID)
		}
	}
	cp := *row
	return &cp, nil
}

type memSchedules struct {
	rows map[uint64]*model.TrainSchedule
}

func (m *memSchedules) GetByID(_ context.Context, id uint64) (*model.TrainSchedule, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrScheduleNotFound
	}
	cp := *row
	return &cp, nil
}

type memSeats struct {
	mu   sync.Mutex
	rows map[uint64]*model.TrainSeat
}

func (m *memSeats) GetByID(_ context.Context, id uint64) (*model.TrainSeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrSeatNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memSeats) reserve(id, scheduleID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.ScheduleID != scheduleID {
		return repository.ErrSeatNotFound
	}
	if !row.IsAvailable {
		return repository.ErrSeatUnavailable
	}
	row.IsAvailable = false
	return nil
}

func (m *memSeats) release(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.IsAvailable = true
	}
}

// fakeGateway scripts the gateway responses per call.
type fakeGateway struct {
	invoice *gateway.Invoice
	err     error
	calls   int
	lastReq gateway.InvoiceRequest

	getInvoice *gateway.Invoice
	getErr     error
	getCalls   int
	lastGetID  string
}

func (g *fakeGateway) CreateInvoice(_ context.Context, req gateway.InvoiceRequest) (*gateway.Invoice, error) {
	g.calls++
	g.lastReq = req
	if g.err != nil {
		return nil, g.err
	}
	inv := *g.invoice
	inv.ExternalID = req.ExternalID
	return &inv, nil
}

func (g *fakeGateway) GetInvoice(_ context.Context, invoiceID string) (*gateway.Invoice, error) {
	g.getCalls++
	g.lastGetID = invoiceID
	if g.getErr != nil {
		return nil, g.getErr
	}
	inv := *g.getInvoice
	inv.ExternalID = invoiceID
	return &inv, nil
}

// capturePublisher records published events.
type capturePublisher struct {
	queues []string
	events []any
}

func (c *capturePublisher) publish(_ context.Context, queueName string, event any) error {
	c.queues = append(c.queues, queueName)
	c.events = append(c.events, event)
	return nil
}

// timeoutErr satisfies net.Error so gateway.IsTimeout treats it as a
// timeout.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "request timed out" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
