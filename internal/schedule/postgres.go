package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads concrete-dated flights from Postgres: one row per
// dated departure. This is the fast path; the (departure_airport,
// departure_dt) index makes FlightsDeparting a range scan.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool and verifies connectivity.
func OpenPostgres(ctx context.Context, connStr string) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStore wraps an existing pool; the caller keeps ownership.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Pool returns the underlying connection pool so other stores can share it.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// CreateSchema creates the schedule tables.
func (s *PostgresStore) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS airports (
		code        TEXT PRIMARY KEY,
		longitude   DOUBLE PRECISION,
		latitude    DOUBLE PRECISION
	);

	-- Concrete-dated flights, one row per dated departure.
	CREATE TABLE IF NOT EXISTS flights (
		id                  BIGSERIAL PRIMARY KEY,
		departure_airport   TEXT NOT NULL,
		arrival_airport     TEXT NOT NULL,
		departure_dt        TIMESTAMPTZ NOT NULL,
		arrival_dt          TIMESTAMPTZ NOT NULL,
		total_seats         INTEGER NOT NULL,
		CHECK (arrival_dt > departure_dt)
	);

	CREATE INDEX IF NOT EXISTS idx_flights_departure ON flights(departure_airport, departure_dt);

	-- Recurrent legs: effective window, day-of-week flags, times-of-day.
	CREATE TABLE IF NOT EXISTS flight_legs (
		id                  BIGSERIAL PRIMARY KEY,
		departure_airport   TEXT NOT NULL,
		arrival_airport     TEXT NOT NULL,
		effective_date      DATE NOT NULL,
		discontinued_date   DATE NOT NULL,
		day1 BOOLEAN NOT NULL DEFAULT FALSE,
		day2 BOOLEAN NOT NULL DEFAULT FALSE,
		day3 BOOLEAN NOT NULL DEFAULT FALSE,
		day4 BOOLEAN NOT NULL DEFAULT FALSE,
		day5 BOOLEAN NOT NULL DEFAULT FALSE,
		day6 BOOLEAN NOT NULL DEFAULT FALSE,
		day7 BOOLEAN NOT NULL DEFAULT FALSE,
		departure_time      TEXT NOT NULL,
		arrival_time        TEXT NOT NULL,
		total_seats         INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_flight_legs_departure ON flight_legs(departure_airport, effective_date, discontinued_date);
	`

	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Airports loads the whole airport table. Airports with NULL coordinates
// are returned with HasLocation false.
func (s *PostgresStore) Airports(ctx context.Context) ([]Airport, error) {
	rows, err := s.pool.Query(ctx, `SELECT code, longitude, latitude FROM airports`)
	if err != nil {
		return nil, fmt.Errorf("query airports: %w", err)
	}
	defer rows.Close()

	var airports []Airport
	for rows.Next() {
		var a Airport
		var lon, lat *float64
		if err := rows.Scan(&a.Code, &lon, &lat); err != nil {
			return nil, fmt.Errorf("scan airport: %w", err)
		}
		if lon != nil && lat != nil {
			a.Longitude = *lon
			a.Latitude = *lat
			a.HasLocation = true
		}
		airports = append(airports, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate airports: %w", err)
	}
	return airports, nil
}

// FlightsDeparting returns flights leaving the airport on the given UTC
// calendar day with seats available.
func (s *PostgresStore) FlightsDeparting(ctx context.Context, airport string, day time.Time) ([]LightFlight, error) {
	day = DayOf(day)
	rows, err := s.pool.Query(ctx, `
		SELECT total_seats, departure_dt, arrival_dt, arrival_airport
		FROM flights
		WHERE departure_airport = $1
		  AND departure_dt >= $2 AND departure_dt < $3
		  AND total_seats > 0
		ORDER BY departure_dt, arrival_airport
	`, airport, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("query flights: %w", err)
	}
	defer rows.Close()

	var flights []LightFlight
	for rows.Next() {
		var f LightFlight
		if err := rows.Scan(&f.TotalSeats, &f.DepartureUTC, &f.ArrivalUTC, &f.ArrivalAirport); err != nil {
			return nil, fmt.Errorf("scan flight: %w", err)
		}
		f.DepartureUTC = f.DepartureUTC.UTC()
		f.ArrivalUTC = f.ArrivalUTC.UTC()
		flights = append(flights, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flights: %w", err)
	}
	return flights, nil
}

// DirectSeatFlows aggregates seats per (origin, destination) over
// departures in [start, end).
func (s *PostgresStore) DirectSeatFlows(ctx context.Context, start, end time.Time) (map[string]map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT departure_airport, arrival_airport, SUM(total_seats)
		FROM flights
		WHERE departure_dt >= $1 AND departure_dt < $2
		GROUP BY departure_airport, arrival_airport
		HAVING SUM(total_seats) > 0
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("aggregate seat flows: %w", err)
	}
	defer rows.Close()

	flows := make(map[string]map[string]int)
	for rows.Next() {
		var origin, dest string
		var seats int64
		if err := rows.Scan(&origin, &dest, &seats); err != nil {
			return nil, fmt.Errorf("scan seat flow: %w", err)
		}
		if flows[origin] == nil {
			flows[origin] = make(map[string]int)
		}
		flows[origin][dest] = int(seats)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seat flows: %w", err)
	}
	return flows, nil
}

// InsertAirport adds or replaces an airport row. Pass hasLocation false to
// store an airport with an unknown location.
func (s *PostgresStore) InsertAirport(ctx context.Context, a Airport) error {
	var lon, lat *float64
	if a.HasLocation {
		lon, lat = &a.Longitude, &a.Latitude
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO airports (code, longitude, latitude)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET
			longitude = EXCLUDED.longitude,
			latitude = EXCLUDED.latitude
	`, a.Code, lon, lat)
	return err
}

// InsertFlight adds one concrete-dated flight.
func (s *PostgresStore) InsertFlight(ctx context.Context, departure string, f LightFlight) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO flights (departure_airport, arrival_airport, departure_dt, arrival_dt, total_seats)
		VALUES ($1, $2, $3, $4, $5)
	`, departure, f.ArrivalAirport, f.DepartureUTC, f.ArrivalUTC, f.TotalSeats)
	return err
}

// PostgresRecurrentStore reads recurrent legs and expands them into
// concrete-dated flights on the fly. Slower than the concrete store but
// matches sources that only publish weekly schedules.
type PostgresRecurrentStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRecurrentStore wraps an existing pool.
func NewPostgresRecurrentStore(pool *pgxpool.Pool) *PostgresRecurrentStore {
	return &PostgresRecurrentStore{pool: pool}
}

// Airports loads the airport table; identical to the concrete store.
func (s *PostgresRecurrentStore) Airports(ctx context.Context) ([]Airport, error) {
	return (&PostgresStore{pool: s.pool}).Airports(ctx)
}

func (s *PostgresRecurrentStore) legsFor(ctx context.Context, airport string, from, until time.Time) ([]RecurrentLeg, error) {
	q := `
		SELECT departure_airport, arrival_airport, effective_date, discontinued_date,
		       day1, day2, day3, day4, day5, day6, day7,
		       departure_time, arrival_time, total_seats
		FROM flight_legs
		WHERE effective_date <= $1 AND discontinued_date >= $2
		  AND total_seats > 0`
	args := []any{until, from}
	if airport != "" {
		q += ` AND departure_airport = $3`
		args = append(args, airport)
	}
	// Stable order keeps fixed-seed runs reproducible.
	q += ` ORDER BY departure_time, arrival_airport, id`
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query flight legs: %w", err)
	}
	defer rows.Close()

	var legs []RecurrentLeg
	for rows.Next() {
		var l RecurrentLeg
		if err := rows.Scan(&l.DepartureAirport, &l.ArrivalAirport, &l.EffectiveDate, &l.DiscontinuedDate,
			&l.Days[0], &l.Days[1], &l.Days[2], &l.Days[3], &l.Days[4], &l.Days[5], &l.Days[6],
			&l.DepartureTime, &l.ArrivalTime, &l.TotalSeats); err != nil {
			return nil, fmt.Errorf("scan flight leg: %w", err)
		}
		legs = append(legs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flight legs: %w", err)
	}
	return legs, nil
}

// FlightsDeparting expands every leg operating on the given day.
func (s *PostgresRecurrentStore) FlightsDeparting(ctx context.Context, airport string, day time.Time) ([]LightFlight, error) {
	day = DayOf(day)
	legs, err := s.legsFor(ctx, airport, day, day)
	if err != nil {
		return nil, err
	}
	var flights []LightFlight
	for i := range legs {
		if f, ok := legs[i].Expand(day); ok {
			flights = append(flights, f)
		}
	}
	return flights, nil
}

// DirectSeatFlows sums seats over the window without materialising every
// dated flight: per leg, seats times the number of operating days.
func (s *PostgresRecurrentStore) DirectSeatFlows(ctx context.Context, start, end time.Time) (map[string]map[string]int, error) {
	legs, err := s.legsFor(ctx, "", start, end)
	if err != nil {
		return nil, err
	}
	flows := make(map[string]map[string]int)
	for i := range legs {
		days := legs[i].OperatingDays(start, end)
		if days == 0 {
			continue
		}
		if flows[legs[i].DepartureAirport] == nil {
			flows[legs[i].DepartureAirport] = make(map[string]int)
		}
		flows[legs[i].DepartureAirport][legs[i].ArrivalAirport] += days * legs[i].TotalSeats
	}
	return flows, nil
}

// InsertLeg adds one recurrent leg.
func (s *PostgresRecurrentStore) InsertLeg(ctx context.Context, l RecurrentLeg) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO flight_legs (departure_airport, arrival_airport, effective_date, discontinued_date,
			day1, day2, day3, day4, day5, day6, day7, departure_time, arrival_time, total_seats)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, l.DepartureAirport, l.ArrivalAirport, l.EffectiveDate, l.DiscontinuedDate,
		l.Days[0], l.Days[1], l.Days[2], l.Days[3], l.Days[4], l.Days[5], l.Days[6],
		l.DepartureTime, l.ArrivalTime, l.TotalSeats)
	return err
}
