package results

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore writes flow records and simulation submissions.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool; the caller keeps ownership.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CreateSchema creates the result tables.
func (s *PostgresStore) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS passenger_flows (
		id                      BIGSERIAL PRIMARY KEY,
		departure_airport       TEXT NOT NULL,
		arrival_airport         TEXT NOT NULL,
		estimated_passengers    DOUBLE PRECISION NOT NULL,
		average_distance_km     DOUBLE PRECISION NOT NULL,
		record_date             TIMESTAMPTZ NOT NULL,
		start_date              TIMESTAMPTZ NOT NULL,
		end_date                TIMESTAMPTZ NOT NULL,
		period_days             INTEGER NOT NULL,
		sim_group               TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_passenger_flows_origin_group
		ON passenger_flows(departure_airport, sim_group);

	CREATE TABLE IF NOT EXISTS simulations (
		id                  BIGSERIAL PRIMARY KEY,
		sim_id              TEXT NOT NULL UNIQUE,
		departure_nodes     TEXT[] NOT NULL,
		number_passengers   INTEGER NOT NULL,
		start_date          TIMESTAMPTZ NOT NULL,
		end_date            TIMESTAMPTZ NOT NULL,
		submitted_by        TEXT NOT NULL,
		submitted_time      TIMESTAMPTZ NOT NULL,
		task_ids            TEXT[] NOT NULL DEFAULT '{}'
	);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ReplaceFlows deletes prior records for (origin, simGroup) and inserts the
// new ones in a single transaction, so a re-run never leaves a mix of old
// and new rows.
func (s *PostgresStore) ReplaceFlows(ctx context.Context, origin, simGroup string, records []FlowRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM passenger_flows WHERE departure_airport = $1 AND sim_group = $2
	`, origin, simGroup); err != nil {
		return fmt.Errorf("delete prior flows: %w", err)
	}

	for _, r := range records {
		if _, err := tx.Exec(ctx, `
			INSERT INTO passenger_flows (departure_airport, arrival_airport, estimated_passengers,
				average_distance_km, record_date, start_date, end_date, period_days, sim_group)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, r.DepartureAirport, r.ArrivalAirport, r.EstimatedPassengers, r.AverageDistanceKm,
			r.RecordDate, r.Start, r.End, r.PeriodDays, r.SimGroup); err != nil {
			return fmt.Errorf("insert flow: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Simulation is a submitted simulation request, deduplicated by SimID.
type Simulation struct {
	SimID            string
	DepartureNodes   []string
	NumberPassengers int
	StartDate        time.Time
	EndDate          time.Time
	SubmittedBy      string
	SubmittedTime    time.Time
	TaskIDs          []string
}

// InsertSimulation records a new submission.
func (s *PostgresStore) InsertSimulation(ctx context.Context, sim Simulation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO simulations (sim_id, departure_nodes, number_passengers, start_date, end_date,
			submitted_by, submitted_time, task_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sim.SimID, sim.DepartureNodes, sim.NumberPassengers, sim.StartDate, sim.EndDate,
		sim.SubmittedBy, sim.SubmittedTime, sim.TaskIDs)
	if err != nil {
		return fmt.Errorf("insert simulation: %w", err)
	}
	return nil
}

// GetSimulation retrieves a submission by sim id, or nil if absent.
func (s *PostgresStore) GetSimulation(ctx context.Context, simID string) (*Simulation, error) {
	var sim Simulation
	err := s.pool.QueryRow(ctx, `
		SELECT sim_id, departure_nodes, number_passengers, start_date, end_date,
			submitted_by, submitted_time, task_ids
		FROM simulations WHERE sim_id = $1
	`, simID).Scan(&sim.SimID, &sim.DepartureNodes, &sim.NumberPassengers, &sim.StartDate,
		&sim.EndDate, &sim.SubmittedBy, &sim.SubmittedTime, &sim.TaskIDs)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sim, nil
}
