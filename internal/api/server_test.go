package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"flowsim/internal/jobs"
	"flowsim/internal/results"
	"flowsim/internal/schedule"
)

type fakeEnqueuer struct {
	simulate []jobs.SimulatePassengersJob
	ids      int
}

func (q *fakeEnqueuer) EnqueueCalculateFlows(job jobs.CalculateFlowsJob) (string, error) {
	return "", nil
}

func (q *fakeEnqueuer) EnqueueSimulatePassengers(job jobs.SimulatePassengersJob) (string, error) {
	q.simulate = append(q.simulate, job)
	q.ids++
	return "task-" + string(rune('a'+q.ids-1)), nil
}

type fakeSimStore struct {
	existing *results.Simulation
	inserted *results.Simulation
}

func (s *fakeSimStore) GetSimulation(ctx context.Context, simID string) (*results.Simulation, error) {
	if s.existing != nil && s.existing.SimID == simID {
		return s.existing, nil
	}
	return nil, nil
}

func (s *fakeSimStore) InsertSimulation(ctx context.Context, sim results.Simulation) error {
	s.inserted = &sim
	return nil
}

// testServer serves JFK with 300 outgoing seats and LHR with 100 in the
// test window.
func testServer(t *testing.T, sims *fakeSimStore, queue *fakeEnqueuer) *Server {
	t.Helper()
	store := schedule.NewMemoryStore()
	store.AddAirport("JFK", -73.7781, 40.6413)
	store.AddAirport("LHR", -0.4543, 51.4700)
	store.AddAirport("CDG", 2.5479, 49.0097)

	day := time.Date(2016, 1, 4, 9, 0, 0, 0, time.UTC)
	store.AddFlight("JFK", schedule.LightFlight{
		TotalSeats: 300, DepartureUTC: day, ArrivalUTC: day.Add(7 * time.Hour), ArrivalAirport: "LHR",
	})
	store.AddFlight("LHR", schedule.LightFlight{
		TotalSeats: 100, DepartureUTC: day, ArrivalUTC: day.Add(1 * time.Hour), ArrivalAirport: "CDG",
	})

	server, err := NewServer(context.Background(), store, sims, queue, 0)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return server
}

func postSimulation(t *testing.T, server *Server, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/simulator", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func validRequest() SubmitRequest {
	return SubmitRequest{
		DepartureNodes:   []string{"JFK", "LHR"},
		NumberPassengers: 1000,
		StartDate:        "2016-01-01",
		EndDate:          "2016-02-01",
		SubmittedBy:      "someone@example.com",
	}
}

func TestHomeVersion(t *testing.T) {
	server := testServer(t, &fakeSimStore{}, &fakeEnqueuer{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["version"] != Version {
		t.Errorf("version = %q, want %q", body["version"], Version)
	}
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*SubmitRequest)
		failedField string
	}{
		{"no nodes", func(r *SubmitRequest) { r.DepartureNodes = nil }, "departureNodes"},
		{"unknown airport", func(r *SubmitRequest) { r.DepartureNodes = []string{"JFK", "XXX"} }, "departureNodes"},
		{"zero passengers", func(r *SubmitRequest) { r.NumberPassengers = 0 }, "numberPassengers"},
		{"negative passengers", func(r *SubmitRequest) { r.NumberPassengers = -5 }, "numberPassengers"},
		{"bad start date", func(r *SubmitRequest) { r.StartDate = "01/01/2016" }, "startDate"},
		{"bad end date", func(r *SubmitRequest) { r.EndDate = "soon" }, "endDate"},
		{"inverted window", func(r *SubmitRequest) { r.StartDate, r.EndDate = r.EndDate, r.StartDate }, "endDate"},
		{"bad email", func(r *SubmitRequest) { r.SubmittedBy = "not-an-email" }, "submittedBy"},
		{"empty email", func(r *SubmitRequest) { r.SubmittedBy = "" }, "submittedBy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := &fakeEnqueuer{}
			server := testServer(t, &fakeSimStore{}, queue)

			req := validRequest()
			tt.mutate(&req)
			rec := postSimulation(t, server, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var body struct {
				Error   bool              `json:"error"`
				Message string            `json:"message"`
				Details map[string]string `json:"details"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !body.Error || body.Message != "invalid parameters" {
				t.Errorf("body = %+v, want invalid-parameters error", body)
			}
			if _, ok := body.Details[tt.failedField]; !ok {
				t.Errorf("details = %v, want a message for %s", body.Details, tt.failedField)
			}
			if len(queue.simulate) != 0 {
				t.Errorf("%d jobs enqueued for an invalid request", len(queue.simulate))
			}
		})
	}
}

func TestSubmitFanOut(t *testing.T) {
	queue := &fakeEnqueuer{}
	sims := &fakeSimStore{}
	server := testServer(t, sims, queue)

	rec := postSimulation(t, server, validRequest())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	if len(queue.simulate) != 2 {
		t.Fatalf("enqueued %d jobs, want 2", len(queue.simulate))
	}
	byOrigin := make(map[string]jobs.SimulatePassengersJob)
	for _, job := range queue.simulate {
		byOrigin[job.Origin] = job
	}
	// JFK has 300 of 400 outgoing seats, LHR the other 100.
	if got := byOrigin["JFK"].Passengers; got != 750 {
		t.Errorf("JFK passengers = %d, want 750", got)
	}
	if got := byOrigin["LHR"].Passengers; got != 250 {
		t.Errorf("LHR passengers = %d, want 250", got)
	}
	if byOrigin["JFK"].NotifyEmail != "someone@example.com" {
		t.Errorf("NotifyEmail = %q", byOrigin["JFK"].NotifyEmail)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["simId"] == "" {
		t.Fatal("response missing simId")
	}
	if sims.inserted == nil {
		t.Fatal("simulation not persisted")
	}
	if sims.inserted.SimID != body["simId"] {
		t.Errorf("persisted simId %q != returned %q", sims.inserted.SimID, body["simId"])
	}
	if len(sims.inserted.TaskIDs) != 2 {
		t.Errorf("persisted %d task ids, want 2", len(sims.inserted.TaskIDs))
	}
	if byOrigin["JFK"].SimulationID != body["simId"] {
		t.Errorf("job simulation id %q != %q", byOrigin["JFK"].SimulationID, body["simId"])
	}
}

func TestSubmitDeduplicates(t *testing.T) {
	req := validRequest()
	id := simID(&req)

	queue := &fakeEnqueuer{}
	sims := &fakeSimStore{existing: &results.Simulation{SimID: id}}
	server := testServer(t, sims, queue)

	rec := postSimulation(t, server, validRequest())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["simId"] != id {
		t.Errorf("simId = %q, want existing %q", body["simId"], id)
	}
	if len(queue.simulate) != 0 {
		t.Errorf("%d jobs enqueued for a duplicate submission", len(queue.simulate))
	}
	if sims.inserted != nil {
		t.Error("duplicate submission was re-inserted")
	}
}

func TestSimIDIgnoresNodeOrder(t *testing.T) {
	a := validRequest()
	b := validRequest()
	b.DepartureNodes = []string{"LHR", "JFK"}
	if simID(&a) != simID(&b) {
		t.Error("node order changed the simulation id")
	}

	c := validRequest()
	c.NumberPassengers = 999
	if simID(&a) == simID(&c) {
		t.Error("different passenger counts share a simulation id")
	}
}
