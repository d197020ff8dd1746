package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/infinitedim/skyvix/internal/model"
	"github.com/infinitedim/skyvix/internal/queue"
	"github.com/infinitedim/skyvix/internal/repository"
	"github.com/infinitedim/skyvix/internal/utils"
)

// bookingCodeAttempts bounds the retry loop on booking code collisions.
const bookingCodeAttempts = 3

// BookingStore is the persistence surface BookingService needs.  It is
// satisfied by *repository.BookingRepo.
type BookingStore interface {
	Create(ctx context.Context, b *model.TrainBooking) error
	GetByID(ctx context.Context, id uint64) (*model.TrainBooking, error)
	GetByCode(ctx context.Context, code string) (*model.TrainBooking, error)
	List(ctx context.Context, f repository.BookingFilter) ([]model.TrainBooking, int64, error)
	UpdateStatus(ctx context.Context, id uint64, to model.BookingStatus, fromStatuses ...model.BookingStatus) (*model.TrainBooking, error)
}

// ScheduleStore resolves schedules for booking validation.
type ScheduleStore interface {
	GetByID(ctx context.Context, id uint64) (*model.TrainSchedule, error)
}

// SeatStore resolves seats for booking validation.  Reservation itself
// happens inside the booking store's transaction, not here.
type SeatStore interface {
	GetByID(ctx context.Context, id uint64) (*model.TrainSeat, error)
}

// BookingService implements the train booking lifecycle.
type BookingService struct {
	bookings  BookingStore
	schedules ScheduleStore
	seats     SeatStore
	publish   EventPublisher
}

// NewBookingService wires a BookingService.  publish may be nil, in
// which case events are dropped.
func NewBookingService(bookings BookingStore, schedules ScheduleStore, seats SeatStore, publish EventPublisher) *BookingService {
	if publish == nil {
		publish = func(context.Context, string, any) error { return nil }
	}
	return &BookingService{bookings: bookings, schedules: schedules, seats: seats, publish: publish}
}

// CreateBookingInput carries the caller-supplied fields for a booking.
type CreateBookingInput struct {
	ScheduleID      uint64
	SeatID          *uint64
	PassengerName   string
	PassengerIDCard string
	PassengerPhone  string
	PassengerEmail  string
	DepartureDate   time.Time
}

// Create validates the request and inserts the booking.  Rules:
//
//   - the schedule must exist and be active;
//   - the departure date must fall inside the schedule's validity
//     window and on one of its operating days;
//   - when a seat is requested it must belong to the schedule; the
//     price is taken from the seat, never from the client;
//   - the booking code is regenerated and the insert retried a bounded
//     number of times if it collides with an existing code.
//
// Seat exclusivity is enforced by the store: the insert and the seat
// compare-and-set share one transaction, and a lost race surfaces as
// repository.ErrSeatUnavailable.
func (s *BookingService) Create(ctx context.Context, userID uint64, in CreateBookingInput) (*model.TrainBooking, error) {
	sched, err := s.schedules.GetByID(ctx, in.ScheduleID)
	if err != nil {
		return nil, err
	}
	if !sched.IsActive {
		return nil, ErrScheduleInactive
	}
	if err := checkDeparture(sched, in.DepartureDate); err != nil {
		return nil, err
	}

	var price int64
	if in.SeatID != nil {
		seat, err := s.seats.GetByID(ctx, *in.SeatID)
		if err != nil {
			return nil, err
		}
		if seat.ScheduleID != sched.ID {
			return nil, repository.ErrSeatNotFound
		}
		if !seat.IsAvailable {
			return nil, repository.ErrSeatUnavailable
		}
		price = seat.PriceCents
	}

	b := &model.TrainBooking{
		UserID:          userID,
		ScheduleID:      sched.ID,
		SeatID:          in.SeatID,
		PassengerName:   in.PassengerName,
		PassengerIDCard: in.PassengerIDCard,
		PassengerPhone:  in.PassengerPhone,
		PassengerEmail:  in.PassengerEmail,
		DepartureDate:   in.DepartureDate,
		TotalPriceCents: price,
		Status:          model.BookingPending,
	}
	for attempt := 0; ; attempt++ {
		code, codeErr := utils.NewBookingCode()
		if codeErr != nil {
			return nil, codeErr
		}
		b.BookingCode = code
		err = s.bookings.Create(ctx, b)
		if errors.Is(err, repository.ErrDuplicateBookingCode) && attempt < bookingCodeAttempts-1 {
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	ev := queue.BookingCreatedEvent{
		BookingID:       b.ID,
		UserID:          b.UserID,
		ScheduleID:      b.ScheduleID,
		SeatID:          b.SeatID,
		BookingCode:     b.BookingCode,
		PassengerName:   b.PassengerName,
		DepartureDate:   b.DepartureDate.Format("2006-01-02"),
		TotalPriceCents: b.TotalPriceCents,
		CreatedAt:       b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if pubErr := s.publish(ctx, queue.BookingCreatedQueue, ev); pubErr != nil {
		log.Printf("publish booking.created for %s: %v", b.BookingCode, pubErr)
	}
	return b, nil
}

// checkDeparture verifies the travel date against the schedule's
// validity window and operating days.
func checkDeparture(sched *model.TrainSchedule, date time.Time) error {
	day := date.Truncate(24 * time.Hour)
	if day.Before(sched.ValidFrom.Truncate(24*time.Hour)) ||
		day.After(sched.ValidUntil.Truncate(24*time.Hour)) {
		return ErrDepartureOutsideSchedule
	}
	weekday := strings.ToUpper(date.Weekday().String())
	for _, d := range sched.OperatingDays {
		if d == weekday {
			return nil
		}
	}
	return ErrDepartureOutsideSchedule
}

// Get returns a booking, enforcing ownership for non-admin callers.
func (s *BookingService) Get(ctx context.Context, id, userID uint64, admin bool) (*model.TrainBooking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !admin && b.UserID != userID {
		return nil, repository.ErrForbidden
	}
	return b, nil
}

// GetByCode resolves a booking by its code with the same ownership
// rule as Get.
func (s *BookingService) GetByCode(ctx context.Context, code string, userID uint64, admin bool) (*model.TrainBooking, error) {
	b, err := s.bookings.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !admin && b.UserID != userID {
		return nil, repository.ErrForbidden
	}
	return b, nil
}

// List returns bookings matching the filter.  Non-admin callers are
// always scoped to their own bookings.
func (s *BookingService) List(ctx context.Context, f repository.BookingFilter, userID uint64, admin bool) ([]model.TrainBooking, int64, error) {
	if !admin {
		f.UserID = userID
	}
	return s.bookings.List(ctx, f)
}

// UpdateStatus applies an explicit state transition.  The state machine
// is checked against the booking's current status, then the store
// re-checks it transactionally; losing that race yields ErrInvalidState.
func (s *BookingService) UpdateStatus(ctx context.Context, id uint64, to model.BookingStatus, userID uint64, admin bool) (*model.TrainBooking, error) {
	b, err := s.Get(ctx, id, userID, admin)
	if err != nil {
		return nil, err
	}
	if !b.Status.CanTransitionTo(to) {
		return nil, ErrInvalidState
	}
	updated, err := s.bookings.UpdateStatus(ctx, id, to, b.Status)
	if errors.Is(err, repository.ErrConflict) {
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Cancel cancels a PENDING or CONFIRMED booking and releases its seat.
func (s *BookingService) Cancel(ctx context.Context, id, userID uint64, admin bool) (*model.TrainBooking, error) {
	b, err := s.Get(ctx, id, userID, admin)
	if err != nil {
		return nil, err
	}
	if !b.Status.Cancellable() {
		return nil, ErrInvalidState
	}
	updated, err := s.bookings.UpdateStatus(ctx, id, model.BookingCancelled,
		model.BookingPending, model.BookingConfirmed)
	if errors.Is(err, repository.ErrConflict) {
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}
