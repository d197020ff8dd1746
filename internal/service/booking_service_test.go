package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infinitedim/skyvix/internal/model"
	"github.com/infinitedim/skyvix/internal/queue"
	"github.com/infinitedim/skyvix/internal/repository"
)

// A Monday inside the fixture schedule's validity window.
var monday = time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

func newBookingFixture() (*BookingService, *memBookings, *memSeats, *capturePublisher) {
	schedules := &memSchedules{rows: map[uint64]*model.TrainSchedule{
		1: {
			ID:            1,
			RouteID:       1,
			TrainID:       1,
			DepartureTime: "08:00",
			ArrivalTime:   "12:30",
			ValidFrom:     time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
			ValidUntil:    time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
			OperatingDays: []string{"MONDAY"},
			IsActive:      true,
		},
		2: {
			ID:            2,
			OperatingDays: []string{"MONDAY"},
			ValidFrom:     time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
			ValidUntil:    time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
			IsActive:      false,
		},
	}}
	seats := &memSeats{rows: map[uint64]*model.TrainSeat{
		10: {ID: 10, ScheduleID: 1, CarNumber: "EKS-1", SeatNumber: "12A", SeatClass: "EXECUTIVE", PriceCents: 350000, IsAvailable: true},
		11: {ID: 11, ScheduleID: 1, CarNumber: "EKS-1", SeatNumber: "12B", SeatClass: "EXECUTIVE", PriceCents: 350000, IsAvailable: true},
		20: {ID: 20, ScheduleID: 2, CarNumber: "EKO-1", SeatNumber: "1A", SeatClass: "ECONOMY", PriceCents: 150000, IsAvailable: true},
	}}
	bookings := newMemBookings(seats)
	pub := &capturePublisher{}
	svc := NewBookingService(bookings, schedules, seats, pub.publish)
	return svc, bookings, seats, pub
}

func seatID(id uint64) *uint64 { return &id }

func TestCreateBooking(t *testing.T) {
	svc, _, seats, pub := newBookingFixture()

	b, err := svc.Create(context.Background(), 7, CreateBookingInput{
		ScheduleID:      1,
		SeatID:          seatID(10),
		PassengerName:   "Andi Wijaya",
		PassengerIDCard: "3174012345678901",
		PassengerPhone:  "+628123456789",
		PassengerEmail:  "andi@example.com",
		DepartureDate:   monday,
	})
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, b.Status)
	assert.Equal(t, int64(350000), b.TotalPriceCents, "price must come from the seat")
	assert.True(t, strings.HasPrefix(b.BookingCode, "BK"))

	seat, err := seats.GetByID(context.Background(), 10)
	require.NoError(t, err)
	assert.False(t, seat.IsAvailable, "creating the booking must take the seat")

	require.Len(t, pub.events, 1)
	assert.Equal(t, queue.BookingCreatedQueue, pub.queues[0])
	ev := pub.events[0].(queue.BookingCreatedEvent)
	assert.Equal(t, b.BookingCode, ev.BookingCode)
	assert.Equal(t, "2026-09-07", ev.DepartureDate)
}

func TestCreateBookingWithoutSeat(t *testing.T) {
	svc, _, _, _ := newBookingFixture()

	b, err := svc.Create(context.Background(), 7, CreateBookingInput{
		ScheduleID:    1,
		PassengerName: "Andi Wijaya",
		DepartureDate: monday,
	})
	require.NoError(t, err)
	assert.Nil(t, b.SeatID)
	assert.Zero(t, b.TotalPriceCents)
}

func TestCreateBookingInactiveSchedule(t *testing.T) {
	svc, _, _, _ := newBookingFixture()

	_, err := svc.Create(context.Background(), 7, CreateBookingInput{
		ScheduleID:    2,
		DepartureDate: monday,
	})
	assert.ErrorIs(t, err, ErrScheduleInactive)
}

func TestCreateBookingDepartureValidation(t *testing.T) {
	svc, _, _, _ := newBookingFixture()
	ctx := context.Background()

	// Tuesday is not an operating day.
	_, err := svc.Create(ctx, 7, CreateBookingInput{
		ScheduleID:    1,
		DepartureDate: monday.AddDate(0, 0, 1),
	})
	assert.ErrorIs(t, err, ErrDepartureOutsideSchedule)

	// Monday after the validity window.
	_, err = svc.Create(ctx, 7, CreateBookingInput{
		ScheduleID:    1,
		DepartureDate: time.Date(2027, 1, 4, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ErrDepartureOutsideSchedule)
}

func TestCreateBookingSeatFromOtherSchedule(t *testing.T) {
	svc, _, _, _ := newBookingFixture()

	_, err := svc.Create(context.Background(), 7, CreateBookingInput{
		ScheduleID:    1,
		SeatID:        seatID(20),
		DepartureDate: monday,
	})
	assert.ErrorIs(t, err, repository.ErrSeatNotFound)
}

func TestCreateBookingSeatTakenOnce(t *testing.T) {
	svc, _, _, _ := newBookingFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, 7, CreateBookingInput{
		ScheduleID:    1,
		SeatID:        seatID(10),
		DepartureDate: monday,
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, 8, CreateBookingInput{
		ScheduleID:    1,
		SeatID:        seatID(10),
		DepartureDate: monday,
	})
	assert.ErrorIs(t, err, repository.ErrSeatUnavailable)
}

func TestCreateBookingRetriesCodeCollision(t *testing.T) {
	svc, bookings, _, _ := newBookingFixture()
	// The first generated code collides, the second succeeds.
	collided := false
	bookings.failOnce = func(code string) bool {
		if !collided {
			collided = true
			return true
		}
		return false
	}

	b, err := svc.Create(context.Background(), 7, CreateBookingInput{
		ScheduleID:    1,
		DepartureDate: monday,
	})
	require.NoError(t, err)
	assert.True(t, collided, "first insert should have collided")
	assert.NotEmpty(t, b.BookingCode)
}

func TestCancelBookingReleasesSeat(t *testing.T) {
	svc, _, seats, _ := newBookingFixture()
	ctx := context.Background()

	b, err := svc.Create(ctx, 7, CreateBookingInput{
		ScheduleID:    1,
		SeatID:        seatID(11),
		DepartureDate: monday,
	})
	require.NoError(t, err)

	got, err := svc.Cancel(ctx, b.ID, 7, false)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)

	seat, err := seats.GetByID(ctx, 11)
	require.NoError(t, err)
	assert.True(t, seat.IsAvailable, "cancelling must release the seat")
}

func TestCancelBookingTwice(t *testing.T) {
	svc, _, seats, _ := newBookingFixture()
	ctx := context.Background()

	b, err := svc.Create(ctx, 7, CreateBookingInput{
		ScheduleID:    1,
		SeatID:        seatID(10),
		DepartureDate: monday,
	})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, b.ID, 7, false)
	require.NoError(t, err)

	// A second cancel must be rejected and leave the seat untouched.
	_, err = svc.Cancel(ctx, b.ID, 7, false)
	assert.ErrorIs(t, err, ErrInvalidState)

	seat, err := seats.GetByID(ctx, 10)
	require.NoError(t, err)
	assert.True(t, seat.IsAvailable, "repeated cancel must not flip the seat back")
}

func TestCancelBookingRules(t *testing.T) {
	svc, _, _, _ := newBookingFixture()
	ctx := context.Background()

	b, err := svc.Create(ctx, 7, CreateBookingInput{ScheduleID: 1, DepartureDate: monday})
	require.NoError(t, err)

	// Another customer may not cancel it.
	_, err = svc.Cancel(ctx, b.ID, 8, false)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	// A paid booking may not be cancelled.
	_, err = svc.UpdateStatus(ctx, b.ID, model.BookingPaid, 7, false)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, b.ID, 7, false)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestUpdateBookingStatusTransitions(t *testing.T) {
	svc, _, _, _ := newBookingFixture()
	ctx := context.Background()

	b, err := svc.Create(ctx, 7, CreateBookingInput{ScheduleID: 1, DepartureDate: monday})
	require.NoError(t, err)

	got, err := svc.UpdateStatus(ctx, b.ID, model.BookingConfirmed, 7, false)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, got.Status)

	got, err = svc.UpdateStatus(ctx, b.ID, model.BookingPaid, 7, false)
	require.NoError(t, err)
	assert.Equal(t, model.BookingPaid, got.Status)

	// PAID is terminal.
	_, err = svc.UpdateStatus(ctx, b.ID, model.BookingConfirmed, 7, false)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestGetBookingByCode(t *testing.T) {
	svc, _, _, _ := newBookingFixture()
	ctx := context.Background()

	b, err := svc.Create(ctx, 7, CreateBookingInput{ScheduleID: 1, DepartureDate: monday})
	require.NoError(t, err)

	got, err := svc.GetByCode(ctx, strings.ToLower(b.BookingCode), 7, false)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = svc.GetByCode(ctx, b.BookingCode, 8, false)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	_, err = svc.GetByCode(ctx, "BK00000000XXXX", 7, false)
	assert.ErrorIs(t, err, repository.ErrBookingNotFound)
}

func TestListBookingsScopesNonAdmin(t *testing.T) {
	svc, _, _, _ := newBookingFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, 7, CreateBookingInput{ScheduleID: 1, DepartureDate: monday})
	require.NoError(t, err)
	_, err = svc.Create(ctx, 8, CreateBookingInput{ScheduleID: 1, DepartureDate: monday})
	require.NoError(t, err)

	rows, total, err := svc.List(ctx, repository.BookingFilter{}, 7, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 7, rows[0].UserID)

	_, total, err = svc.List(ctx, repository.BookingFilter{}, 7, true)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}
