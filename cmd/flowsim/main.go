// Command-line entry point for the passenger flow simulator.
//
// The same binary drives every mode of operation:
//
//	init       - create the Postgres and ClickHouse schemas
//	calculate  - run one flow calculation and print (or persist) the result
//	worker     - consume simulation jobs from the broker
//	enqueue    - enqueue periodic calculate-flows jobs for every airport
//	compare    - run scheduled vs aggregated mode and write per-origin CSVs
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"flowsim/internal/config"
	"flowsim/internal/flightcache"
	"flowsim/internal/flows"
	"flowsim/internal/jobs"
	"flowsim/internal/notify"
	"flowsim/internal/results"
	"flowsim/internal/schedule"
	"flowsim/internal/sim"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "flowsim - airport passenger flow simulator:")
	fmt.Fprintln(w, "  init       - create the Postgres and ClickHouse schemas")
	fmt.Fprintln(w, "  calculate  - simulate flows from one origin and print them")
	fmt.Fprintln(w, "  worker     - consume simulation jobs from the broker")
	fmt.Fprintln(w, "  enqueue    - enqueue periodic calculate-flows jobs")
	fmt.Fprintln(w, "  compare    - compare scheduled and aggregated modes")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  flowsim calculate -origin JFK -start 2016-01-01 -end 2016-02-01 [-passengers 1000] [-mode scheduled] [-seed N] [-persist -group G]")
	fmt.Fprintln(w, "  flowsim worker [-concurrency 4] [-passengers 1000] [-cache 25000] [-start D -end D]")
	fmt.Fprintln(w, "  flowsim enqueue -start 2016-01-01 -months 12 [-airports JFK,LHR]")
	fmt.Fprintln(w, "  flowsim compare -origins JFK,LHR -start 2016-01-01 -end 2016-02-01 [-out .]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Connection settings come from the environment (DATABASE_URL, BROKER_URL,")
	fmt.Fprintln(w, "CLICKHOUSE_*, SMTP_*); -sqlite PATH substitutes a local SQLite schedule.")
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd := strings.ToLower(os.Args[1])
	switch cmd {
	case "init":
		runInit(os.Args[2:])
	case "calculate":
		runCalculate(os.Args[2:])
	case "worker":
		runWorker(os.Args[2:])
	case "enqueue":
		runEnqueue(os.Args[2:])
	case "compare":
		runCompare(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func parseDate(fs *flag.FlagSet, name, value string) time.Time {
	t, err := time.ParseInLocation(jobs.DateLayout, value, time.UTC)
	if err != nil {
		fatalf("-%s: %q is not a date in YYYY-MM-DD format", name, value)
	}
	return t
}

func parseMode(value string) sim.Mode {
	switch strings.ToLower(value) {
	case "scheduled":
		return sim.ModeScheduled
	case "aggregated":
		return sim.ModeAggregated
	}
	fatalf("-mode: %q is not scheduled or aggregated", value)
	return sim.ModeScheduled
}

// openSchedule opens the schedule store: SQLite when a path is given,
// Postgres otherwise. The returned closer tears down whichever was opened.
func openSchedule(ctx context.Context, cfg config.Config, sqlitePath string) (schedule.Store, func(), error) {
	if sqlitePath != "" {
		s, err := schedule.OpenSQLite(sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
	s, err := schedule.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

// buildEnv loads the window's seat flows and the shared simulation
// environment over a cached store.
func buildEnv(ctx context.Context, store schedule.Store, cacheSize int, start, end time.Time) (*sim.Env, *flightcache.Cache, error) {
	cache, err := flightcache.New(store, cacheSize)
	if err != nil {
		return nil, nil, err
	}
	seatFlows, err := flows.ComputeDirectSeatFlows(ctx, cache, start, end)
	if err != nil {
		return nil, nil, err
	}
	env, err := sim.NewEnv(ctx, cache, seatFlows)
	if err != nil {
		return nil, nil, err
	}
	return env, cache, nil
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	fs.Parse(args)

	cfg := config.FromEnv()
	ctx := context.Background()

	pg, err := schedule.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		fatalf("Error opening Postgres: %v", err)
	}
	defer pg.Close()
	if err := pg.CreateSchema(ctx); err != nil {
		fatalf("Error creating schedule schema: %v", err)
	}
	if err := results.NewPostgresStore(pg.Pool()).CreateSchema(ctx); err != nil {
		fatalf("Error creating result schema: %v", err)
	}
	log.Printf("init: Postgres schema ready")

	archive, err := results.OpenItineraryArchive(ctx, results.ClickHouseConfig{
		Host:     cfg.ClickHouseHost,
		Port:     cfg.ClickHousePort,
		Database: cfg.ClickHouseDatabase,
		User:     cfg.ClickHouseUser,
		Password: cfg.ClickHousePassword,
	})
	if err != nil {
		fatalf("Error opening ClickHouse: %v", err)
	}
	defer archive.Close()
	if err := archive.CreateSchema(ctx); err != nil {
		fatalf("Error creating itinerary schema: %v", err)
	}
	log.Printf("init: ClickHouse schema ready")
}

func runCalculate(args []string) {
	fs := flag.NewFlagSet("calculate", flag.ExitOnError)
	origin := fs.String("origin", "", "departure airport code (required)")
	startStr := fs.String("start", "", "window start date YYYY-MM-DD (required)")
	endStr := fs.String("end", "", "window end date YYYY-MM-DD (required)")
	passengers := fs.Int("passengers", jobs.DefaultPassengers, "number of passengers to simulate")
	modeStr := fs.String("mode", "scheduled", "sampling mode: scheduled or aggregated")
	seed := fs.Int64("seed", 0, "fixed RNG seed (0 = time-seeded)")
	cacheSize := fs.Int("cache", flightcache.DefaultCapacity, "flight cache capacity")
	sqlitePath := fs.String("sqlite", "", "use a SQLite schedule at this path instead of Postgres")
	persist := fs.Bool("persist", false, "write flow records to Postgres instead of stdout")
	group := fs.String("group", "", "sim_group for persisted records (required with -persist)")
	fs.Parse(args)

	if *origin == "" || *startStr == "" || *endStr == "" {
		fs.Usage()
		os.Exit(2)
	}
	if *persist && *group == "" {
		fatalf("-persist requires -group")
	}
	start := parseDate(fs, "start", *startStr)
	end := parseDate(fs, "end", *endStr)

	cfg := config.FromEnv()
	ctx := context.Background()

	store, closeStore, err := openSchedule(ctx, cfg, *sqlitePath)
	if err != nil {
		fatalf("Error opening schedule store: %v", err)
	}
	defer closeStore()

	env, cache, err := buildEnv(ctx, store, *cacheSize, start, end)
	if err != nil {
		fatalf("Error building environment: %v", err)
	}

	var opts []sim.Option
	if *seed != 0 {
		opts = append(opts, sim.WithSeed(*seed))
	}
	calc := env.NewCalculator(parseMode(*modeStr), opts...)

	began := time.Now()
	stats, err := calc.Calculate(ctx, *origin, *passengers, start, end)
	if err != nil {
		fatalf("Error calculating flows: %v", err)
	}
	hits, misses := cache.Stats()
	log.Printf("calculate: %s -> %d terminals in %s (cache %d hits / %d misses)",
		*origin, len(stats), time.Since(began).Round(time.Millisecond), hits, misses)

	if *persist {
		pg, ok := store.(*schedule.PostgresStore)
		if !ok {
			fatalf("-persist requires the Postgres schedule store")
		}
		records := results.BuildFlowRecords(*origin, stats,
			env.PassengerFlows().TotalFrom(*origin), start, end, *group)
		if err := results.NewPostgresStore(pg.Pool()).ReplaceFlows(ctx, *origin, *group, records); err != nil {
			fatalf("Error persisting flows: %v", err)
		}
		log.Printf("calculate: persisted %d records under group %s", len(records), *group)
		return
	}

	writeStatsCSV(os.Stdout, stats)
}

// writeStatsCSV prints terminal statistics sorted by descending flow.
func writeStatsCSV(w io.Writer, stats map[string]sim.DestinationStats) {
	terminals := make([]string, 0, len(stats))
	for t := range stats {
		terminals = append(terminals, t)
	}
	sort.Slice(terminals, func(i, j int) bool {
		if stats[terminals[i]].TerminalFlow != stats[terminals[j]].TerminalFlow {
			return stats[terminals[i]].TerminalFlow > stats[terminals[j]].TerminalFlow
		}
		return terminals[i] < terminals[j]
	})

	cw := csv.NewWriter(w)
	cw.Write([]string{"terminal", "flow", "average_legs", "average_distance_km"})
	for _, t := range terminals {
		s := stats[t]
		cw.Write([]string{
			t,
			strconv.FormatFloat(s.TerminalFlow, 'f', 6, 64),
			strconv.FormatFloat(s.AverageLegs, 'f', 3, 64),
			strconv.FormatFloat(s.AverageDistanceKm, 'f', 1, 64),
		})
	}
	cw.Flush()
}

func runWorker(args []string) {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	concurrency := fs.Int("concurrency", 4, "jobs processed in parallel")
	passengers := fs.Int("passengers", jobs.DefaultPassengers, "sample size for calculate-flows jobs")
	cacheSize := fs.Int("cache", flightcache.DefaultCapacity, "flight cache capacity")
	startStr := fs.String("start", "", "aggregate window start (default: one year ago)")
	endStr := fs.String("end", "", "aggregate window end (default: today)")
	fs.Parse(args)

	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(-1, 0, 0)
	if *startStr != "" {
		start = parseDate(fs, "start", *startStr)
	}
	if *endStr != "" {
		end = parseDate(fs, "end", *endStr)
	}

	cfg := config.FromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := schedule.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		fatalf("Error opening Postgres: %v", err)
	}
	defer pg.Close()

	env, _, err := buildEnv(ctx, pg, *cacheSize, start, end)
	if err != nil {
		fatalf("Error building environment: %v", err)
	}
	log.Printf("worker: environment loaded over [%s, %s)",
		start.Format(jobs.DateLayout), end.Format(jobs.DateLayout))

	archive, err := results.OpenItineraryArchive(ctx, results.ClickHouseConfig{
		Host:     cfg.ClickHouseHost,
		Port:     cfg.ClickHousePort,
		Database: cfg.ClickHouseDatabase,
		User:     cfg.ClickHouseUser,
		Password: cfg.ClickHousePassword,
	})
	if err != nil {
		fatalf("Error opening ClickHouse: %v", err)
	}
	defer archive.Close()

	queue, err := jobs.Connect(cfg.BrokerURL)
	if err != nil {
		fatalf("Error connecting to broker: %v", err)
	}
	defer queue.Close()

	var notifier jobs.Notifier
	if cfg.SMTPUser != "" {
		notifier = &notify.Mailer{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			User:      cfg.SMTPUser,
			Password:  cfg.SMTPPassword,
			FlirtBase: cfg.FlirtBase,
		}
	}

	worker := &jobs.Worker{
		Env:         env,
		Flows:       results.NewPostgresStore(pg.Pool()),
		Itineraries: archive,
		Notify:      notifier,
		Passengers:  *passengers,
		Concurrency: *concurrency,
	}
	if err := worker.Run(ctx, queue); err != nil && err != context.Canceled {
		fatalf("Worker error: %v", err)
	}
	log.Printf("worker: shut down")
}

func runEnqueue(args []string) {
	fs := flag.NewFlagSet("enqueue", flag.ExitOnError)
	startStr := fs.String("start", "", "first period start date YYYY-MM-DD (required)")
	months := fs.Int("months", 1, "number of monthly periods to enqueue")
	airportsStr := fs.String("airports", "", "comma-separated airport codes (default: all)")
	seed := fs.Int64("seed", 0, "fixed RNG seed carried on every job (0 = none)")
	fs.Parse(args)

	if *startStr == "" {
		fs.Usage()
		os.Exit(2)
	}
	start := parseDate(fs, "start", *startStr)

	cfg := config.FromEnv()
	ctx := context.Background()

	var codes []string
	if *airportsStr != "" {
		for _, c := range strings.Split(*airportsStr, ",") {
			codes = append(codes, strings.ToUpper(strings.TrimSpace(c)))
		}
	} else {
		pg, err := schedule.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			fatalf("Error opening Postgres: %v", err)
		}
		airports, err := pg.Airports(ctx)
		pg.Close()
		if err != nil {
			fatalf("Error loading airports: %v", err)
		}
		for _, a := range airports {
			codes = append(codes, a.Code)
		}
	}

	queue, err := jobs.Connect(cfg.BrokerURL)
	if err != nil {
		fatalf("Error connecting to broker: %v", err)
	}
	defer queue.Close()

	var seedOpt *int64
	if *seed != 0 {
		seedOpt = seed
	}

	enqueued := 0
	for m := 0; m < *months; m++ {
		periodStart := start.AddDate(0, m, 0)
		periodEnd := start.AddDate(0, m+1, 0)
		simGroup := "cache-" + periodStart.Format("2006-01")
		for _, code := range codes {
			_, err := queue.EnqueueCalculateFlows(jobs.CalculateFlowsJob{
				Origin:    code,
				StartDate: periodStart.Format(jobs.DateLayout),
				EndDate:   periodEnd.Format(jobs.DateLayout),
				SimGroup:  simGroup,
				Seed:      seedOpt,
			})
			if err != nil {
				fatalf("Error enqueueing %s for %s: %v", code, simGroup, err)
			}
			enqueued++
		}
		log.Printf("enqueue: %s queued for %d airports", simGroup, len(codes))
	}
	log.Printf("enqueue: %d jobs total", enqueued)
}

func runCompare(args []string) {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	originsStr := fs.String("origins", "", "comma-separated origin airports (required)")
	startStr := fs.String("start", "", "window start date YYYY-MM-DD (required)")
	endStr := fs.String("end", "", "window end date YYYY-MM-DD (required)")
	passengers := fs.Int("passengers", jobs.DefaultPassengers, "passengers per origin per mode")
	seed := fs.Int64("seed", 1, "RNG seed shared by both modes")
	cacheSize := fs.Int("cache", flightcache.DefaultCapacity, "flight cache capacity")
	sqlitePath := fs.String("sqlite", "", "use a SQLite schedule at this path instead of Postgres")
	outDir := fs.String("out", ".", "directory for per-origin CSV files")
	fs.Parse(args)

	if *originsStr == "" || *startStr == "" || *endStr == "" {
		fs.Usage()
		os.Exit(2)
	}
	start := parseDate(fs, "start", *startStr)
	end := parseDate(fs, "end", *endStr)

	cfg := config.FromEnv()
	ctx := context.Background()

	store, closeStore, err := openSchedule(ctx, cfg, *sqlitePath)
	if err != nil {
		fatalf("Error opening schedule store: %v", err)
	}
	defer closeStore()

	env, _, err := buildEnv(ctx, store, *cacheSize, start, end)
	if err != nil {
		fatalf("Error building environment: %v", err)
	}

	for _, raw := range strings.Split(*originsStr, ",") {
		origin := strings.ToUpper(strings.TrimSpace(raw))
		if origin == "" {
			continue
		}

		scheduled, err := env.NewCalculator(sim.ModeScheduled, sim.WithSeed(*seed)).
			Calculate(ctx, origin, *passengers, start, end)
		if err != nil {
			fatalf("Error in scheduled mode for %s: %v", origin, err)
		}
		aggregated, err := env.NewCalculator(sim.ModeAggregated, sim.WithSeed(*seed)).
			Calculate(ctx, origin, *passengers, start, end)
		if err != nil {
			fatalf("Error in aggregated mode for %s: %v", origin, err)
		}

		path := fmt.Sprintf("%s/compare_%s.csv", strings.TrimRight(*outDir, "/"), origin)
		if err := writeComparison(path, scheduled, aggregated); err != nil {
			fatalf("Error writing %s: %v", path, err)
		}
		log.Printf("compare: %s scheduled=%d aggregated=%d terminals -> %s",
			origin, len(scheduled), len(aggregated), path)
	}
}

// writeComparison writes the union of both modes' terminals with their flows
// side by side.
func writeComparison(path string, scheduled, aggregated map[string]sim.DestinationStats) error {
	terminals := make(map[string]bool, len(scheduled)+len(aggregated))
	for t := range scheduled {
		terminals[t] = true
	}
	for t := range aggregated {
		terminals[t] = true
	}
	sorted := make([]string, 0, len(terminals))
	for t := range terminals {
		sorted = append(sorted, t)
	}
	sort.Strings(sorted)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	cw.Write([]string{"terminal", "scheduled_flow", "aggregated_flow", "scheduled_avg_legs", "aggregated_avg_legs"})
	for _, t := range sorted {
		s := scheduled[t]
		a := aggregated[t]
		cw.Write([]string{
			t,
			strconv.FormatFloat(s.TerminalFlow, 'f', 6, 64),
			strconv.FormatFloat(a.TerminalFlow, 'f', 6, 64),
			strconv.FormatFloat(s.AverageLegs, 'f', 3, 64),
			strconv.FormatFloat(a.AverageLegs, 'f', 3, 64),
		})
	}
	cw.Flush()
	return cw.Error()
}
