package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"flowsim/internal/results"
	"flowsim/internal/sim"
)

// DefaultPassengers is the sample size for calculate-flows jobs, which do
// not carry their own count.
const DefaultPassengers = 1000

// FlowWriter persists per-destination flow records.
type FlowWriter interface {
	ReplaceFlows(ctx context.Context, origin, simGroup string, records []results.FlowRecord) error
}

// ItineraryWriter archives raw itineraries.
type ItineraryWriter interface {
	InsertItineraries(ctx context.Context, simulationID string, itineraries [][]string, includeStops bool) error
}

// Notifier sends completion notifications.
type Notifier interface {
	SimulationComplete(to, simulationID string) error
}

// Worker consumes simulation jobs. The Env is shared and immutable; each
// job gets its own calculator (and so its own RNG).
type Worker struct {
	Env         *sim.Env
	Flows       FlowWriter
	Itineraries ItineraryWriter
	Notify      Notifier // optional

	// Passengers overrides DefaultPassengers for calculate-flows jobs.
	Passengers int

	// Concurrency is the number of jobs processed in parallel. The cache
	// footprint grows with it; keep it small enough that the flight cache
	// stays resident.
	Concurrency int
}

// Run subscribes to both job subjects in the shared queue group and
// processes jobs until the context is cancelled.
func (w *Worker) Run(ctx context.Context, q *Queue) error {
	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	msgs := make(chan *nats.Msg, concurrency*2)
	subCalc, err := q.Conn().ChanQueueSubscribe(SubjectCalculateFlows, QueueGroup, msgs)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectCalculateFlows, err)
	}
	defer subCalc.Unsubscribe()

	subSim, err := q.Conn().ChanQueueSubscribe(SubjectSimulatePassengers, QueueGroup, msgs)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectSimulatePassengers, err)
	}
	defer subSim.Unsubscribe()

	log.Printf("worker: consuming %s and %s with %d slots", SubjectCalculateFlows, SubjectSimulatePassengers, concurrency)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case m := <-msgs:
					w.dispatch(ctx, m)
				}
			}
		})
	}
	return g.Wait()
}

// dispatch runs one job and reports the outcome on the reply subject when
// one is set. Job errors are logged, not fatal to the worker: retries are
// the queue's concern.
func (w *Worker) dispatch(ctx context.Context, m *nats.Msg) {
	var err error
	switch m.Subject {
	case SubjectCalculateFlows:
		var job CalculateFlowsJob
		if err = json.Unmarshal(m.Data, &job); err == nil {
			err = w.HandleCalculateFlows(ctx, job)
		}
	case SubjectSimulatePassengers:
		var job SimulatePassengersJob
		if err = json.Unmarshal(m.Data, &job); err == nil {
			err = w.HandleSimulatePassengers(ctx, job)
		}
	default:
		err = fmt.Errorf("unknown subject %s", m.Subject)
	}

	if err != nil {
		log.Printf("worker: job on %s failed: %v", m.Subject, err)
	}
	if m.Reply != "" {
		status := map[string]string{"status": "ok"}
		if err != nil {
			status = map[string]string{"status": "error", "error": err.Error()}
		}
		payload, _ := json.Marshal(status)
		_ = m.Respond(payload)
	}
}

func calculatorOptions(seed *int64) []sim.Option {
	if seed == nil {
		return nil
	}
	return []sim.Option{sim.WithSeed(*seed)}
}

// HandleCalculateFlows simulates flows from one origin and replaces its
// records in the result store.
func (w *Worker) HandleCalculateFlows(ctx context.Context, job CalculateFlowsJob) error {
	start, end, err := ParseWindow(job.StartDate, job.EndDate)
	if err != nil {
		return err
	}

	passengers := w.Passengers
	if passengers <= 0 {
		passengers = DefaultPassengers
	}

	calc := w.Env.NewCalculator(sim.ModeScheduled, calculatorOptions(job.Seed)...)
	stats, err := calc.Calculate(ctx, job.Origin, passengers, start, end)
	if err != nil {
		return fmt.Errorf("calculate flows for %s: %w", job.Origin, err)
	}

	records := results.BuildFlowRecords(job.Origin, stats,
		w.Env.PassengerFlows().TotalFrom(job.Origin), start, end, job.SimGroup)
	if err := w.Flows.ReplaceFlows(ctx, job.Origin, job.SimGroup, records); err != nil {
		return fmt.Errorf("persist flows for %s: %w", job.Origin, err)
	}

	log.Printf("worker: %s calculated %d destinations (group %s)", job.Origin, len(records), job.SimGroup)
	return nil
}

// HandleSimulatePassengers samples itineraries from one origin and archives
// them. Producing zero productive itineraries is a job failure: the origin
// has traffic according to the submission, so an empty result means the
// schedule window and the request disagree.
func (w *Worker) HandleSimulatePassengers(ctx context.Context, job SimulatePassengersJob) error {
	start, end, err := ParseWindow(job.StartDate, job.EndDate)
	if err != nil {
		return err
	}

	calc := w.Env.NewCalculator(sim.ModeScheduled, calculatorOptions(job.Seed)...)
	itineraries, err := calc.CalculateItineraries(ctx, job.Origin, job.Passengers, start, end)
	if err != nil {
		return fmt.Errorf("simulate passengers from %s: %w", job.Origin, err)
	}
	if len(itineraries) == 0 {
		return fmt.Errorf("no itineraries generated for %s", job.Origin)
	}

	if err := w.Itineraries.InsertItineraries(ctx, job.SimulationID, itineraries, job.IncludeStops); err != nil {
		return fmt.Errorf("archive itineraries for %s: %w", job.SimulationID, err)
	}

	log.Printf("worker: simulation %s archived %d itineraries from %s", job.SimulationID, len(itineraries), job.Origin)

	if w.Notify != nil && job.NotifyEmail != "" {
		if err := w.Notify.SimulationComplete(job.NotifyEmail, job.SimulationID); err != nil {
			// Notification failure does not fail the job; the data is in.
			log.Printf("worker: notify %s for %s: %v", job.NotifyEmail, job.SimulationID, err)
		}
	}
	return nil
}
