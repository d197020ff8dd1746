package model

import "time"

// Train is a physical train operated on one or more routes.
//
// Fields:
//  ID        – primary key identifier.
//  Name      – display name of the train.
//  Type      – service class, e.g. EXECUTIVE, ECONOMY.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Train struct {
	ID        uint64    // trains.id
	Name      string    // trains.name
	Type      string    // trains.type
	CreatedAt time.Time // trains.created_at
	UpdatedAt time.Time // trains.updated_at
}

// Station is a boarding or destination point referenced by routes.
// The Code is a short unique identifier such as "GMR" for Gambir.
type Station struct {
	ID        uint64    // stations.id
	Code      string    // stations.code
	Name      string    // stations.name
	City      string    // stations.city
	CreatedAt time.Time // stations.created_at
	UpdatedAt time.Time // stations.updated_at
}

// TrainRoute connects a departure station to an arrival station for a
// given train.  Schedules reference a route and inherit its endpoints.
//
// Fields:
//  ID                 – primary key identifier.
//  TrainID            – train operating this route.
//  DepartureStationID – station where the route begins.
//  ArrivalStationID   – station where the route ends.
//  DistanceKM         – route length in kilometres (nullable).
//  IsActive           – whether the route is bookable.
//  CreatedAt          – creation timestamp.
//  UpdatedAt          – last update timestamp.
type TrainRoute struct {
	ID                 uint64    // train_routes.id
	TrainID            uint64    // train_routes.train_id
	DepartureStationID uint64    // train_routes.departure_station_id
	ArrivalStationID   uint64    // train_routes.arrival_station_id
	DistanceKM         *uint32   // train_routes.distance_km (nullable)
	IsActive           bool      // train_routes.is_active
	CreatedAt          time.Time // train_routes.created_at
	UpdatedAt          time.Time // train_routes.updated_at
}

// TrainSchedule is a specific recurring run of a route.  Departure and
// arrival times are wall-clock strings in "HH:MM" form; the validity
// window and operating days determine the concrete dates on which the
// run exists.  Schedules are immutable after creation except for the
// IsActive toggle, and may only be deleted while no active bookings
// reference them.
//
// Fields:
//  ID            – primary key identifier.
//  RouteID       – route being operated.
//  TrainID       – train operating the run (denormalized from the route).
//  DepartureTime – departure wall-clock time, "HH:MM".
//  ArrivalTime   – arrival wall-clock time, "HH:MM".
//  ValidFrom     – first date on which the run operates.
//  ValidUntil    – last date on which the run operates.
//  OperatingDays – upper-case weekday names, e.g. MONDAY.
//  IsActive      – whether the schedule accepts bookings.
//  CreatedAt     – creation timestamp.
//  UpdatedAt     – last update timestamp.
type TrainSchedule struct {
	ID            uint64    // train_schedules.id
	RouteID       uint64    // train_schedules.route_id
	TrainID       uint64    // train_schedules.train_id
	DepartureTime string    // train_schedules.departure_time
	ArrivalTime   string    // train_schedules.arrival_time
	ValidFrom     time.Time // train_schedules.valid_from
	ValidUntil    time.Time // train_schedules.valid_until
	OperatingDays []string  // train_schedules.operating_days (CSV column)
	IsActive      bool      // train_schedules.is_active
	CreatedAt     time.Time // train_schedules.created_at
	UpdatedAt     time.Time // train_schedules.updated_at
}

// TrainSeat belongs to exactly one schedule.  IsAvailable is false if
// and only if a non-cancelled booking currently holds the seat; the
// flag is flipped inside the same transaction that creates or cancels
// the booking.
//
// Fields:
//  ID          – primary key identifier.
//  ScheduleID  – schedule the seat belongs to.
//  CarNumber   – car designation, e.g. "EKS-1".
//  SeatNumber  – seat designation within the car, e.g. "12A".
//  SeatClass   – class of service, e.g. EXECUTIVE, ECONOMY.
//  PriceCents  – seat price in cents.
//  IsAvailable – availability flag, see above.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type TrainSeat struct {
	ID          uint64    // train_seats.id
	ScheduleID  uint64    // train_seats.schedule_id
	CarNumber   string    // train_seats.car_number
	SeatNumber  string    // train_seats.seat_number
	SeatClass   string    // train_seats.seat_class
	PriceCents  int64     // train_seats.price_cents
	IsAvailable bool      // train_seats.is_available
	CreatedAt   time.Time // train_seats.created_at
	UpdatedAt   time.Time // train_seats.updated_at
}
