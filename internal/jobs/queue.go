package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Enqueuer is the producer side of the job queue. The HTTP API and the
// enqueue command depend on this rather than on NATS directly, which keeps
// handler tests broker-free.
type Enqueuer interface {
	EnqueueCalculateFlows(job CalculateFlowsJob) (string, error)
	EnqueueSimulatePassengers(job SimulatePassengersJob) (string, error)
}

// Queue is a NATS connection carrying simulation jobs.
type Queue struct {
	nc *nats.Conn
}

// Connect dials the broker.
func Connect(url string) (*Queue, error) {
	nc, err := nats.Connect(url, nats.Name("flowsim"))
	if err != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", url, err)
	}
	return &Queue{nc: nc}, nil
}

// Close drains and closes the connection.
func (q *Queue) Close() {
	if err := q.nc.Drain(); err != nil {
		q.nc.Close()
	}
}

// Conn exposes the underlying connection for subscribers.
func (q *Queue) Conn() *nats.Conn {
	return q.nc
}

func (q *Queue) publish(subject string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// EnqueueCalculateFlows publishes a calculate-flows job, assigning an id if
// the caller left it empty, and returns the id.
func (q *Queue) EnqueueCalculateFlows(job CalculateFlowsJob) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if err := q.publish(SubjectCalculateFlows, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// EnqueueSimulatePassengers publishes a simulate-passengers job and returns
// its id.
func (q *Queue) EnqueueSimulatePassengers(job SimulatePassengersJob) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if err := q.publish(SubjectSimulatePassengers, job); err != nil {
		return "", err
	}
	return job.ID, nil
}
