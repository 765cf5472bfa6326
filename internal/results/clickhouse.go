package results

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ItineraryArchive stores every simulated itinerary. Simulations write tens
// of thousands of small rows per job, which is what the batch insert path
// is for; the Postgres side only keeps the aggregates.
type ItineraryArchive struct {
	conn driver.Conn
}

// OpenItineraryArchive opens a connection to ClickHouse.
func OpenItineraryArchive(ctx context.Context, cfg ClickHouseConfig) (*ItineraryArchive, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ItineraryArchive{conn: conn}, nil
}

// Close closes the connection.
func (a *ItineraryArchive) Close() error {
	return a.conn.Close()
}

// CreateSchema creates the itinerary table.
func (a *ItineraryArchive) CreateSchema(ctx context.Context) error {
	err := a.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS simulated_itineraries (
			simulation_id   LowCardinality(String),
			origin          LowCardinality(String),
			destination     LowCardinality(String),
			stops           Array(String),
			recorded_at     DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(recorded_at)
		ORDER BY (simulation_id, origin, recorded_at)
	`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// InsertItineraries archives sampled itineraries for one simulation in a
// single batch. Each itinerary is a sequence of airport codes, origin
// first. includeStops controls whether intermediate stops are stored or
// only the endpoints.
func (a *ItineraryArchive) InsertItineraries(ctx context.Context, simulationID string, itineraries [][]string, includeStops bool) error {
	if len(itineraries) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO simulated_itineraries (simulation_id, origin, destination, stops, recorded_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	now := time.Now().UTC()
	for _, itinerary := range itineraries {
		if len(itinerary) == 0 {
			continue
		}
		var stops []string
		if includeStops {
			stops = itinerary
		}
		err := batch.Append(simulationID, itinerary[0], itinerary[len(itinerary)-1], stops, now)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// CountItineraries returns the number of archived itineraries for one
// simulation.
func (a *ItineraryArchive) CountItineraries(ctx context.Context, simulationID string) (uint64, error) {
	var count uint64
	row := a.conn.QueryRow(ctx, `
		SELECT count() FROM simulated_itineraries WHERE simulation_id = ?
	`, simulationID)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
