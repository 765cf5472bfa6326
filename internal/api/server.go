// Package api provides the REST endpoint for submitting passenger flow
// simulations.
package api

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"flowsim/internal/jobs"
	"flowsim/internal/results"
	"flowsim/internal/schedule"
)

// Version participates in the submission key, so a deploy that changes
// simulation behaviour re-runs otherwise identical requests.
const Version = "0.0.1"

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)

// SimulationStore persists submissions and answers dedup lookups.
type SimulationStore interface {
	GetSimulation(ctx context.Context, simID string) (*results.Simulation, error)
	InsertSimulation(ctx context.Context, sim results.Simulation) error
}

// Server accepts simulation submissions, deduplicates them, and fans the
// requested passengers out into per-origin jobs.
type Server struct {
	schedule schedule.Store
	sims     SimulationStore
	queue    jobs.Enqueuer
	port     int

	// known is the set of airport codes loaded at startup; departure
	// nodes outside it are rejected up front rather than failing in a
	// worker.
	known map[string]bool
}

// NewServer loads the known airports and returns a configured server.
func NewServer(ctx context.Context, store schedule.Store, sims SimulationStore, queue jobs.Enqueuer, port int) (*Server, error) {
	airports, err := store.Airports(ctx)
	if err != nil {
		return nil, fmt.Errorf("load airports: %w", err)
	}
	known := make(map[string]bool, len(airports))
	for _, a := range airports {
		known[a.Code] = true
	}
	log.Printf("api: ready to simulate %d nodes", len(known))

	return &Server{
		schedule: store,
		sims:     sims,
		queue:    queue,
		port:     port,
		known:    known,
	}, nil
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	addr := ":" + strconv.Itoa(s.port)
	log.Printf("api: listening at http://localhost%s", addr)
	return http.ListenAndServe(addr, s.Router())
}

// Router returns the configured chi router for embedding in tests.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/", s.handleHome)
	r.Post("/simulator", s.handleSubmit)

	return r
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": Version})
}

// SubmitRequest is the submission body.
type SubmitRequest struct {
	DepartureNodes   []string `json:"departureNodes"`
	NumberPassengers int      `json:"numberPassengers"`
	StartDate        string   `json:"startDate"`
	EndDate          string   `json:"endDate"`
	SubmittedBy      string   `json:"submittedBy"`
	IncludeStops     bool     `json:"includeStops,omitempty"`
}

// validate checks the request and returns per-field messages.
func (s *Server) validate(req *SubmitRequest) map[string]string {
	details := make(map[string]string)

	if len(req.DepartureNodes) == 0 {
		details["departureNodes"] = "at least one departure node is required"
	} else {
		for i, node := range req.DepartureNodes {
			req.DepartureNodes[i] = strings.ToUpper(strings.TrimSpace(node))
		}
		for _, node := range req.DepartureNodes {
			if !s.known[node] {
				details["departureNodes"] = fmt.Sprintf("unknown airport %q", node)
				break
			}
		}
	}

	if req.NumberPassengers <= 0 {
		details["numberPassengers"] = "must be a positive integer"
	}

	if _, err := time.ParseInLocation(jobs.DateLayout, req.StartDate, time.UTC); err != nil {
		details["startDate"] = "must be a date in YYYY-MM-DD format"
	}
	if _, err := time.ParseInLocation(jobs.DateLayout, req.EndDate, time.UTC); err != nil {
		details["endDate"] = "must be a date in YYYY-MM-DD format"
	}
	if _, ok := details["startDate"]; !ok {
		if _, ok := details["endDate"]; !ok {
			if _, _, err := jobs.ParseWindow(req.StartDate, req.EndDate); err != nil {
				details["endDate"] = "must not be before startDate"
			}
		}
	}

	if !emailPattern.MatchString(req.SubmittedBy) {
		details["submittedBy"] = "value is not a valid e-mail address"
	}

	if len(details) == 0 {
		return nil
	}
	return details
}

// simID derives the dedup key for a submission. Node order does not matter.
func simID(req *SubmitRequest) string {
	nodes := append([]string(nil), req.DepartureNodes...)
	sort.Strings(nodes)

	h := md5.New()
	fmt.Fprintf(h, "%v", nodes)
	fmt.Fprintf(h, "%d", req.NumberPassengers)
	fmt.Fprint(h, req.StartDate)
	fmt.Fprint(h, req.EndDate)
	fmt.Fprint(h, Version)
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   true,
			"message": "invalid JSON: " + err.Error(),
		})
		return
	}

	if details := s.validate(&req); details != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   true,
			"message": "invalid parameters",
			"details": details,
		})
		return
	}

	ctx := r.Context()
	id := simID(&req)

	existing, err := s.sims.GetSimulation(ctx, id)
	if err != nil {
		log.Printf("api: lookup simulation %s: %v", id, err)
		writeDatabaseError(w)
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusOK, map[string]string{"simId": existing.SimID})
		return
	}

	taskIDs, err := s.queueSimulation(ctx, &req, id)
	if err != nil {
		log.Printf("api: queue simulation %s: %v", id, err)
		writeDatabaseError(w)
		return
	}

	start, end, _ := jobs.ParseWindow(req.StartDate, req.EndDate)
	err = s.sims.InsertSimulation(ctx, results.Simulation{
		SimID:            id,
		DepartureNodes:   req.DepartureNodes,
		NumberPassengers: req.NumberPassengers,
		StartDate:        start,
		EndDate:          end,
		SubmittedBy:      req.SubmittedBy,
		SubmittedTime:    time.Now().UTC(),
		TaskIDs:          taskIDs,
	})
	if err != nil {
		log.Printf("api: insert simulation %s: %v", id, err)
		writeDatabaseError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"simId": id})
}

// queueSimulation splits the requested passengers across the departure
// nodes in proportion to each node's outgoing seats in the window and
// enqueues one job per node. Nodes without any outgoing seats get zero
// passengers and no job.
func (s *Server) queueSimulation(ctx context.Context, req *SubmitRequest, id string) ([]string, error) {
	start, end, err := jobs.ParseWindow(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	seatFlows, err := s.schedule.DirectSeatFlows(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load seat flows: %w", err)
	}

	seats := make(map[string]int, len(req.DepartureNodes))
	total := 0
	for _, node := range req.DepartureNodes {
		for _, n := range seatFlows[node] {
			seats[node] += n
		}
		total += seats[node]
	}
	if total == 0 {
		return nil, fmt.Errorf("no outgoing seats from %v between %s and %s",
			req.DepartureNodes, req.StartDate, req.EndDate)
	}

	taskIDs := make([]string, 0, len(req.DepartureNodes))
	for _, node := range req.DepartureNodes {
		passengers := int(math.Round(float64(req.NumberPassengers*seats[node]) / float64(total)))
		if passengers == 0 {
			continue
		}
		taskID, err := s.queue.EnqueueSimulatePassengers(jobs.SimulatePassengersJob{
			SimulationID: id,
			Origin:       node,
			Passengers:   passengers,
			StartDate:    req.StartDate,
			EndDate:      req.EndDate,
			IncludeStops: req.IncludeStops,
			NotifyEmail:  req.SubmittedBy,
		})
		if err != nil {
			return nil, fmt.Errorf("enqueue %s: %w", node, err)
		}
		taskIDs = append(taskIDs, taskID)
	}

	log.Printf("api: simId %s queued %d tasks", id, len(taskIDs))
	return taskIDs, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeDatabaseError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error":   true,
		"message": "database error",
	})
}
