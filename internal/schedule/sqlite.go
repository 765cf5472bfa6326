package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is how instants are stored in SQLite text columns.
const timeLayout = "2006-01-02 15:04:05"

// SQLiteStore is a file or in-memory schedule store with the concrete-dated
// layout. Used for local runs and hermetic store tests; the simulator never
// notices the difference.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite schedule store. An empty path or
// ":memory:" gives an in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS airports (
		code        TEXT PRIMARY KEY,
		longitude   REAL,
		latitude    REAL
	);

	CREATE TABLE IF NOT EXISTS flights (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		departure_airport   TEXT NOT NULL,
		arrival_airport     TEXT NOT NULL,
		departure_dt        TEXT NOT NULL,
		arrival_dt          TEXT NOT NULL,
		total_seats         INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_flights_departure ON flights(departure_airport, departure_dt);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Airports loads the airport table.
func (s *SQLiteStore) Airports(ctx context.Context) ([]Airport, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code, longitude, latitude FROM airports`)
	if err != nil {
		return nil, fmt.Errorf("query airports: %w", err)
	}
	defer rows.Close()

	var airports []Airport
	for rows.Next() {
		var a Airport
		var lon, lat sql.NullFloat64
		if err := rows.Scan(&a.Code, &lon, &lat); err != nil {
			return nil, fmt.Errorf("scan airport: %w", err)
		}
		if lon.Valid && lat.Valid {
			a.Longitude = lon.Float64
			a.Latitude = lat.Float64
			a.HasLocation = true
		}
		airports = append(airports, a)
	}
	return airports, rows.Err()
}

// FlightsDeparting returns flights leaving the airport on the given UTC day.
func (s *SQLiteStore) FlightsDeparting(ctx context.Context, airport string, day time.Time) ([]LightFlight, error) {
	day = DayOf(day)
	rows, err := s.db.QueryContext(ctx, `
		SELECT total_seats, departure_dt, arrival_dt, arrival_airport
		FROM flights
		WHERE departure_airport = ?
		  AND departure_dt >= ? AND departure_dt < ?
		  AND total_seats > 0
		ORDER BY departure_dt, arrival_airport
	`, airport, day.Format(timeLayout), day.Add(24*time.Hour).Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("query flights: %w", err)
	}
	defer rows.Close()

	var flights []LightFlight
	for rows.Next() {
		var f LightFlight
		var dep, arr string
		if err := rows.Scan(&f.TotalSeats, &dep, &arr, &f.ArrivalAirport); err != nil {
			return nil, fmt.Errorf("scan flight: %w", err)
		}
		if f.DepartureUTC, err = time.ParseInLocation(timeLayout, dep, time.UTC); err != nil {
			return nil, fmt.Errorf("parse departure time: %w", err)
		}
		if f.ArrivalUTC, err = time.ParseInLocation(timeLayout, arr, time.UTC); err != nil {
			return nil, fmt.Errorf("parse arrival time: %w", err)
		}
		flights = append(flights, f)
	}
	return flights, rows.Err()
}

// DirectSeatFlows aggregates seats per (origin, destination) over the window.
func (s *SQLiteStore) DirectSeatFlows(ctx context.Context, start, end time.Time) (map[string]map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT departure_airport, arrival_airport, SUM(total_seats)
		FROM flights
		WHERE departure_dt >= ? AND departure_dt < ?
		GROUP BY departure_airport, arrival_airport
		HAVING SUM(total_seats) > 0
	`, start.UTC().Format(timeLayout), end.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("aggregate seat flows: %w", err)
	}
	defer rows.Close()

	flows := make(map[string]map[string]int)
	for rows.Next() {
		var origin, dest string
		var seats int
		if err := rows.Scan(&origin, &dest, &seats); err != nil {
			return nil, fmt.Errorf("scan seat flow: %w", err)
		}
		if flows[origin] == nil {
			flows[origin] = make(map[string]int)
		}
		flows[origin][dest] = seats
	}
	return flows, rows.Err()
}

// InsertAirport adds or replaces an airport row.
func (s *SQLiteStore) InsertAirport(ctx context.Context, a Airport) error {
	var lon, lat any
	if a.HasLocation {
		lon, lat = a.Longitude, a.Latitude
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO airports (code, longitude, latitude) VALUES (?, ?, ?)
	`, a.Code, lon, lat)
	return err
}

// InsertFlight adds one concrete-dated flight.
func (s *SQLiteStore) InsertFlight(ctx context.Context, departure string, f LightFlight) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flights (departure_airport, arrival_airport, departure_dt, arrival_dt, total_seats)
		VALUES (?, ?, ?, ?, ?)
	`, departure, f.ArrivalAirport,
		f.DepartureUTC.UTC().Format(timeLayout), f.ArrivalUTC.UTC().Format(timeLayout), f.TotalSeats)
	return err
}
