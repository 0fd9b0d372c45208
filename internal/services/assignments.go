package services

import (
	"context"
	"time"

	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/cache"
	"example.com/backstage/dairy/internal/metrics"
	"example.com/backstage/dairy/internal/models"
	"example.com/backstage/dairy/internal/repository"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// AssignmentQuery asks which deliveries are relevant, optionally for one agent
type AssignmentQuery struct {
	From    *time.Time
	To      *time.Time
	AgentID string
}

func (q AssignmentQuery) dates() repository.DateRange {
	var r repository.DateRange
	if q.From != nil {
		r.From = *q.From
	}
	if q.To != nil {
		r.To = *q.To
	}
	return r
}

func dateParam(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return models.FormatDate(*t)
}

// Policy decides what a failing strategy does to the resolution
type Policy int

const (
	// Swallow records the error and moves on to the next strategy
	Swallow Policy = iota
	// Propagate stops the resolution and returns the error
	Propagate
)

// Strategy is one way of fetching assignments
type Strategy struct {
	Name   string
	Policy Policy
	Fetch  func(ctx context.Context, q AssignmentQuery) ([]models.Assignment, error)
}

// Outcome records what one strategy produced
type Outcome struct {
	Strategy string
	Rows     int
	Err      error
}

// Resolution is the result of running a strategy list
type Resolution struct {
	Assignments []models.Assignment
	Source      string
	Outcomes    []Outcome
}

// Failed reports whether strategies ran and every one of them errored
func (r Resolution) Failed() bool {
	if len(r.Outcomes) == 0 {
		return false
	}
	for _, o := range r.Outcomes {
		if o.Err == nil {
			return false
		}
	}
	return true
}

// Degraded reports whether nothing was found while some strategy errored,
// so an empty result cannot be trusted
func (r Resolution) Degraded() bool {
	if len(r.Assignments) > 0 {
		return false
	}
	for _, o := range r.Outcomes {
		if o.Err != nil {
			return true
		}
	}
	return false
}

// Resolve runs strategies in order. The first one returning rows wins.
// When none do the result is empty, unless a Propagate strategy failed.
func Resolve(ctx context.Context, q AssignmentQuery, strategies []Strategy) (Resolution, error) {
	var res Resolution
	for _, s := range strategies {
		rows, err := s.Fetch(ctx, q)
		res.Outcomes = append(res.Outcomes, Outcome{Strategy: s.Name, Rows: len(rows), Err: err})
		if err != nil {
			if s.Policy == Propagate {
				return res, err
			}
			log.Debug().Err(err).Str("strategy", s.Name).Msg("Assignment source failed, trying next")
			continue
		}
		if len(rows) > 0 {
			res.Assignments = Dedupe(rows)
			res.Source = s.Name
			return res, nil
		}
	}
	res.Assignments = []models.Assignment{}
	return res, nil
}

// Dedupe keeps one assignment per (customer, shift). A later row replaces
// an earlier one but keeps the earlier row's position.
func Dedupe(rows []models.Assignment) []models.Assignment {
	index := make(map[string]int, len(rows))
	out := make([]models.Assignment, 0, len(rows))
	for _, a := range rows {
		key := a.Key()
		if i, ok := index[key]; ok {
			out[i] = a
			continue
		}
		index[key] = len(out)
		out = append(out, a)
	}
	return out
}

// AssignmentService answers "what does this agent deliver"
type AssignmentService struct {
	client  backend.Client
	repos   *repository.Repositories
	cache   cache.Cache
	metrics *metrics.Metrics
	trips   *TripTracker
	now     func() time.Time
}

// NewAssignmentService creates a new assignment service
func NewAssignmentService(client backend.Client, repos *repository.Repositories, deps Deps) *AssignmentService {
	deps = deps.withDefaults()
	return &AssignmentService{
		client:  client,
		repos:   repos,
		cache:   deps.Cache,
		metrics: deps.Metrics,
		trips:   deps.Trips,
		now:     deps.Now,
	}
}

const (
	StrategyRPC    = "rpc:" + models.RPCAgentAssignments
	StrategyDirect = "read:" + models.TableAssignments
)

// Strategies returns the resolution order for q. With an agent the
// procedure (which bypasses row-level security) goes first and failures
// are tolerated; without one a direct read is the only source and its
// errors surface.
func (s *AssignmentService) Strategies(q AssignmentQuery) []Strategy {
	if q.AgentID == "" {
		return []Strategy{{Name: StrategyDirect, Policy: Propagate, Fetch: s.fetchDirect}}
	}
	return []Strategy{
		{Name: StrategyRPC, Policy: Swallow, Fetch: s.fetchRPC},
		{Name: StrategyDirect, Policy: Swallow, Fetch: s.fetchDirect},
	}
}

func (s *AssignmentService) fetchRPC(ctx context.Context, q AssignmentQuery) ([]models.Assignment, error) {
	raw, err := s.client.RPC(ctx, models.RPCAgentAssignments, map[string]interface{}{
		"p_agent_id": q.AgentID,
		"p_from":     dateParam(q.From),
		"p_to":       dateParam(q.To),
	})
	if err != nil {
		return nil, err
	}
	return models.DecodeRows[models.Assignment](raw)
}

func (s *AssignmentService) fetchDirect(ctx context.Context, q AssignmentQuery) ([]models.Assignment, error) {
	return s.repos.Assignments.ListCurrent(ctx, repository.AssignmentFilter{
		AgentID: q.AgentID,
		Dates:   q.dates(),
	})
}

// Resolve runs the strategies for q and derives the delivered flags
func (s *AssignmentService) Resolve(ctx context.Context, q AssignmentQuery) (Resolution, error) {
	start := s.now()
	res, err := Resolve(ctx, q, s.Strategies(q))
	s.metrics.Observe("fetch_assignments", start, err)
	if err != nil {
		return res, errors.Wrap(err, "failed to fetch assignments")
	}
	if res.Source != "" && res.Source != StrategyRPC && q.AgentID != "" {
		s.metrics.IncrementCounter(metrics.AssignmentsFallbacks)
	}
	s.metrics.IncrementCounterBy(metrics.AssignmentsFetched, int64(len(res.Assignments)))

	s.deriveDelivered(ctx, q, res.Assignments)
	if s.trips != nil {
		if n := s.trips.Prune(res.Assignments); n > 0 {
			log.Debug().Int("pruned", n).Msg("Dropped trip handles for settled deliveries")
		}
	}
	return res, nil
}

// Fetch is the user-initiated path: errors from an agent-less read surface
func (s *AssignmentService) Fetch(ctx context.Context, q AssignmentQuery) ([]models.Assignment, error) {
	res, err := s.Resolve(ctx, q)
	if err != nil {
		return nil, err
	}
	return res.Assignments, nil
}

// Refresh is the passive background path. It never returns an error: on
// failure the last good snapshot is served instead.
func (s *AssignmentService) Refresh(ctx context.Context, q AssignmentQuery) []models.Assignment {
	s.metrics.IncrementCounter(metrics.RefreshRuns)
	key := cache.AssignmentsKey(q.AgentID, formatOpt(q.From), formatOpt(q.To))

	res, err := s.Resolve(ctx, q)
	if err == nil && !res.Degraded() {
		if s.cache != nil && s.cache.Enabled() {
			if cerr := s.cache.Set(ctx, key, res.Assignments, 0); cerr != nil {
				log.Warn().Err(cerr).Msg("Failed to store assignment snapshot")
			}
		}
		return res.Assignments
	}

	log.Warn().Err(err).Str("agent_id", q.AgentID).Msg("Assignment refresh failed, serving last snapshot")
	var snapshot []models.Assignment
	if s.cache != nil && s.cache.Enabled() {
		if cerr := s.cache.Get(ctx, key, &snapshot); cerr != nil && !errors.Is(cerr, cache.ErrMiss) {
			log.Warn().Err(cerr).Msg("Failed to load assignment snapshot")
		}
	}
	if snapshot == nil {
		snapshot = []models.Assignment{}
	}
	return snapshot
}

// deriveDelivered overwrites the denormalized delivered flag with the
// matching daily delivery status. Rows without a readable match keep the
// backend's projection.
func (s *AssignmentService) deriveDelivered(ctx context.Context, q AssignmentQuery, rows []models.Assignment) {
	if len(rows) == 0 {
		return
	}

	fallbackDay := models.FormatDate(s.now())
	if q.From != nil {
		fallbackDay = models.FormatDate(*q.From)
	}

	ids := make([]string, 0, len(rows))
	seen := map[string]bool{}
	dates := repository.DateRange{}
	for _, a := range rows {
		if !seen[a.CustomerID] {
			seen[a.CustomerID] = true
			ids = append(ids, a.CustomerID)
		}
		day := a.Date
		if day == "" {
			day = fallbackDay
		}
		t, err := models.ParseDate(day)
		if err != nil {
			continue
		}
		if dates.From.IsZero() || t.Before(dates.From) {
			dates.From = t
		}
		if t.After(dates.To) {
			dates.To = t
		}
	}

	daily, err := s.repos.DailyDeliveries.List(ctx, repository.DeliveryFilter{CustomerIDs: ids, Dates: dates})
	if err != nil {
		log.Debug().Err(err).Msg("Daily deliveries not readable, keeping assignment delivered flags")
		return
	}

	status := make(map[string]models.DeliveryStatus, len(daily))
	for _, d := range daily {
		status[d.Key()] = d.Status
	}
	for i := range rows {
		day := rows[i].Date
		if day == "" {
			day = fallbackDay
		}
		key := models.DailyDelivery{Date: day, CustomerID: rows[i].CustomerID, Shift: rows[i].Shift}.Key()
		if st, ok := status[key]; ok {
			rows[i].Delivered = st.IsDelivered()
		}
	}
}

func formatOpt(t *time.Time) string {
	if t == nil {
		return ""
	}
	return models.FormatDate(*t)
}
