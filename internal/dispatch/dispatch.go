// Package dispatch selects a field agent for a triaged request by running
// the candidate pool through geo coverage, skill, shift and workload stages.
package dispatch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	"github.com/MaysHroub/cst-management-info-system/internal/policy"
	apperrors "github.com/MaysHroub/cst-management-info-system/pkg/util/errorutil"
)

// DefaultFallbackSampleSize bounds the continuity fallback when no geo-fence
// covers the request.
const DefaultFallbackSampleSize = 5

const workloadConcurrency = 8

// Stage names reported in a Decision trace.
const (
	StageGeo      = "geo"
	StageSkill    = "skill"
	StageShift    = "shift"
	StageWorkload = "workload"
)

// AgentSource looks up dispatchable agents.
type AgentSource interface {
	// FindCovering returns active agents whose geo-fence contains the point.
	FindCovering(ctx context.Context, lon, lat float64) ([]domain.Agent, error)
	// SampleActive returns up to n active agents in a stable order.
	SampleActive(ctx context.Context, n int) ([]domain.Agent, error)
}

// WorkloadCounter counts open work held by an agent.
type WorkloadCounter interface {
	CountOpenByAgent(ctx context.Context, agentCode string) (int, error)
}

// Options tune the funnel.
type Options struct {
	// Strict makes an empty skill or shift stage fail instead of passing
	// its input through.
	Strict             bool
	FallbackSampleSize int
}

// StageReport records how one stage changed the candidate set.
type StageReport struct {
	Stage   string `json:"stage"`
	In      int    `json:"in"`
	Out     int    `json:"out"`
	Skipped bool   `json:"skipped,omitempty"`
	Note    string `json:"note,omitempty"`
}

// Decision is the outcome of an automatic dispatch.
type Decision struct {
	Agent    domain.Agent  `json:"agent"`
	Workload int           `json:"workload"`
	Trace    []StageReport `json:"trace"`
}

// Engine runs the dispatch funnel.
type Engine struct {
	agents   AgentSource
	workload WorkloadCounter
	tables   policy.Tables
	opts     Options
	now      func() time.Time
}

// NewEngine wires the funnel. now defaults to time.Now.
func NewEngine(agents AgentSource, workload WorkloadCounter, tables policy.Tables, opts Options, now func() time.Time) *Engine {
	if opts.FallbackSampleSize <= 0 {
		opts.FallbackSampleSize = DefaultFallbackSampleSize
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{agents: agents, workload: workload, tables: tables, opts: opts, now: now}
}

// CheckDispatchable fails unless req is triaged or already assigned.
func CheckDispatchable(req domain.ServiceRequest) error {
	if req.Status == domain.StatusTriaged || req.Status == domain.StatusAssigned {
		return nil
	}
	return apperrors.NewInvalidState("request must be triaged or assigned to dispatch", map[string]any{
		"request_id": req.RequestID,
		"status":     string(req.Status),
	})
}

// Select runs the four stages against req and returns the chosen agent.
// Every stage narrows its input or passes it through unchanged.
func (e *Engine) Select(ctx context.Context, req domain.ServiceRequest) (Decision, error) {
	var trace []StageReport

	candidates, report, err := e.geoStage(ctx, req)
	if err != nil {
		return Decision{}, err
	}
	trace = append(trace, report)
	if len(candidates) == 0 {
		return Decision{}, noAgent(req, StageGeo, trace)
	}

	skill := e.tables.SkillFor(req.Category)
	candidates, report = narrow(StageSkill, candidates, FilterBySkill(candidates, skill))
	report.Note = "required skill " + skill
	trace = append(trace, report)
	if report.Skipped && e.opts.Strict {
		return Decision{}, noAgent(req, StageSkill, trace)
	}

	candidates, report = narrow(StageShift, candidates, FilterByShift(candidates, e.now()))
	trace = append(trace, report)
	if report.Skipped && e.opts.Strict {
		return Decision{}, noAgent(req, StageShift, trace)
	}

	best, load, err := e.leastLoaded(ctx, candidates)
	if err != nil {
		return Decision{}, err
	}
	trace = append(trace, StageReport{Stage: StageWorkload, In: len(candidates), Out: 1})

	return Decision{Agent: best, Workload: load, Trace: trace}, nil
}

func (e *Engine) geoStage(ctx context.Context, req domain.ServiceRequest) ([]domain.Agent, StageReport, error) {
	covering, err := e.agents.FindCovering(ctx, req.Location.Lon(), req.Location.Lat())
	if err != nil {
		return nil, StageReport{}, apperrors.NewStoreUnavailable(err)
	}
	if len(covering) > 0 {
		return covering, StageReport{Stage: StageGeo, Out: len(covering)}, nil
	}

	sample, err := e.agents.SampleActive(ctx, e.opts.FallbackSampleSize)
	if err != nil {
		return nil, StageReport{}, apperrors.NewStoreUnavailable(err)
	}
	return sample, StageReport{Stage: StageGeo, Out: len(sample), Note: "no geo-fence match, sampled active agents"}, nil
}

// leastLoaded counts workload for all candidates concurrently and returns the
// first candidate holding the minimum.
func (e *Engine) leastLoaded(ctx context.Context, candidates []domain.Agent) (domain.Agent, int, error) {
	loads := make([]int, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workloadConcurrency)
	for i, agent := range candidates {
		g.Go(func() error {
			n, err := e.workload.CountOpenByAgent(gctx, agent.Code)
			if err != nil {
				return err
			}
			loads[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Agent{}, 0, apperrors.NewStoreUnavailable(err)
	}

	best := 0
	for i := 1; i < len(candidates); i++ {
		if loads[i] < loads[best] {
			best = i
		}
	}
	return candidates[best], loads[best], nil
}

func narrow(stage string, in, filtered []domain.Agent) ([]domain.Agent, StageReport) {
	if len(filtered) == 0 {
		return in, StageReport{Stage: stage, In: len(in), Out: len(in), Skipped: true}
	}
	return filtered, StageReport{Stage: stage, In: len(in), Out: len(filtered)}
}

func noAgent(req domain.ServiceRequest, stage string, trace []StageReport) error {
	return apperrors.NewNoAgentAvailable("no agent available for request", map[string]any{
		"request_id": req.RequestID,
		"stage":      stage,
		"trace":      trace,
	})
}
