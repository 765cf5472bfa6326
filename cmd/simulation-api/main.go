// Command simulation-api serves the simulation submission endpoint.
//
// Usage:
//
//	simulation-api [options]
//
// Options:
//
//	-port N          HTTP port (default: 45000, env: SIM_PORT)
//	-broker URL      NATS broker URL (env: BROKER_URL)
//	-database URL    Postgres connection string (env: DATABASE_URL)
//
// Endpoints:
//
//	GET /
//	    Version banner.
//
//	POST /simulator
//	    Submit a simulation. Body:
//	    {"departureNodes": ["JFK"], "numberPassengers": 1000,
//	     "startDate": "2016-01-01", "endDate": "2016-02-01",
//	     "submittedBy": "someone@example.com"}
//	    Identical submissions return the existing simId.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"flowsim/internal/api"
	"flowsim/internal/config"
	"flowsim/internal/jobs"
	"flowsim/internal/results"
	"flowsim/internal/schedule"
)

func main() {
	cfg := config.FromEnv()

	port := flag.Int("port", cfg.APIPort, "HTTP port for the submission API")
	brokerURL := flag.String("broker", cfg.BrokerURL, "NATS broker URL")
	databaseURL := flag.String("database", cfg.DatabaseURL, "Postgres connection string")
	flag.Parse()

	ctx := context.Background()

	pg, err := schedule.OpenPostgres(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening Postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	queue, err := jobs.Connect(*brokerURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to broker: %v\n", err)
		os.Exit(1)
	}
	defer queue.Close()

	server, err := api.NewServer(ctx, pg, results.NewPostgresStore(pg.Pool()), queue, *port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting server: %v\n", err)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
