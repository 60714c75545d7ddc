package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	"github.com/MaysHroub/cst-management-info-system/internal/geo"
	"github.com/MaysHroub/cst-management-info-system/internal/policy"
	apperrors "github.com/MaysHroub/cst-management-info-system/pkg/util/errorutil"
)

// Wednesday 10:30 UTC.
var fixedNow = time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)

type fakeAgents struct {
	agents []domain.Agent
}

func (f *fakeAgents) FindCovering(_ context.Context, lon, lat float64) ([]domain.Agent, error) {
	var out []domain.Agent
	for _, a := range f.agents {
		if a.Active && a.Coverage.GeoFence != nil && geo.PolygonContains(a.Coverage.GeoFence.Coordinates, lon, lat) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAgents) SampleActive(_ context.Context, n int) ([]domain.Agent, error) {
	var out []domain.Agent
	for _, a := range f.agents {
		if a.Active && len(out) < n {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeWorkload struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (f *fakeWorkload) CountOpenByAgent(_ context.Context, code string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[code], nil
}

var downtown = domain.NewPolygon([][2]float64{
	{35.20, 31.76}, {35.24, 31.76}, {35.24, 31.80}, {35.20, 31.80}, {35.20, 31.76},
})

func agent(code string, skills []string, fence *domain.Polygon, schedule domain.Schedule) domain.Agent {
	return domain.Agent{
		Code:     code,
		Name:     "Agent " + code,
		Skills:   skills,
		Coverage: domain.Coverage{GeoFence: fence},
		Schedule: schedule,
		Active:   true,
	}
}

func onCall() domain.Schedule { return domain.Schedule{OnCall: true} }

func wednesday(start, end string) domain.Schedule {
	return domain.Schedule{Shifts: []domain.Shift{{Day: "Wednesday", Start: start, End: end}}}
}

func request(category domain.Category) domain.ServiceRequest {
	return domain.ServiceRequest{
		RequestID: "CST-2026-0001",
		Category:  category,
		Status:    domain.StatusTriaged,
		Location:  domain.NewPoint(35.22, 31.78),
	}
}

func newEngine(agents []domain.Agent, counts map[string]int, opts Options) *Engine {
	return NewEngine(&fakeAgents{agents: agents}, &fakeWorkload{counts: counts}, policy.Default(), opts, func() time.Time { return fixedNow })
}

func TestSelect_PicksLeastLoadedCoveringSkilledOnShift(t *testing.T) {
	agents := []domain.Agent{
		agent("A1", []string{"road"}, downtown, onCall()),
		agent("A2", []string{"road"}, downtown, wednesday("08:00", "16:00")),
		agent("A3", []string{"water"}, downtown, onCall()),
		agent("A4", []string{"road"}, nil, onCall()),
	}
	engine := newEngine(agents, map[string]int{"A1": 3, "A2": 1, "A3": 0, "A4": 0}, Options{})

	decision, err := engine.Select(context.Background(), request(domain.CategoryPothole))
	require.NoError(t, err)
	assert.Equal(t, "A2", decision.Agent.Code)
	assert.Equal(t, 1, decision.Workload)

	require.Len(t, decision.Trace, 4)
	assert.Equal(t, StageReport{Stage: StageGeo, Out: 3}, decision.Trace[0])
	assert.Equal(t, 2, decision.Trace[1].Out)
	assert.False(t, decision.Trace[1].Skipped)
}

func TestSelect_TieGoesToFirstCandidate(t *testing.T) {
	agents := []domain.Agent{
		agent("B1", []string{"general"}, downtown, onCall()),
		agent("B2", []string{"general"}, downtown, onCall()),
		agent("B3", []string{"general"}, downtown, onCall()),
	}
	engine := newEngine(agents, map[string]int{"B1": 2, "B2": 1, "B3": 1}, Options{})

	decision, err := engine.Select(context.Background(), request(domain.CategoryTrash))
	require.NoError(t, err)
	assert.Equal(t, "B2", decision.Agent.Code)
}

func TestSelect_GeneralSkillMatchesAnyCategory(t *testing.T) {
	agents := []domain.Agent{
		agent("C1", []string{"water"}, downtown, onCall()),
		agent("C2", []string{"General"}, downtown, onCall()),
	}
	engine := newEngine(agents, map[string]int{"C1": 0, "C2": 5}, Options{})

	decision, err := engine.Select(context.Background(), request(domain.CategoryLighting))
	require.NoError(t, err)
	assert.Equal(t, "C2", decision.Agent.Code)
}

func TestSelect_FallsBackToSampleWhenNoFenceCovers(t *testing.T) {
	var agents []domain.Agent
	for _, code := range []string{"D1", "D2", "D3", "D4", "D5", "D6", "D7"} {
		agents = append(agents, agent(code, []string{"road"}, nil, onCall()))
	}
	counts := map[string]int{"D1": 4, "D2": 4, "D3": 4, "D4": 4, "D5": 4, "D6": 0, "D7": 0}
	engine := newEngine(agents, counts, Options{})

	decision, err := engine.Select(context.Background(), request(domain.CategoryPothole))
	require.NoError(t, err)
	// D6 and D7 are outside the sample of five.
	assert.Equal(t, "D1", decision.Agent.Code)
	assert.Equal(t, 5, decision.Trace[0].Out)
	assert.NotEmpty(t, decision.Trace[0].Note)
}

func TestSelect_SkipsEmptySkillAndShiftStages(t *testing.T) {
	agents := []domain.Agent{
		agent("E1", []string{"water"}, downtown, wednesday("00:00", "01:00")),
		agent("E2", []string{"waste"}, downtown, domain.Schedule{}),
	}
	engine := newEngine(agents, map[string]int{"E1": 2, "E2": 1}, Options{})

	decision, err := engine.Select(context.Background(), request(domain.CategoryPothole))
	require.NoError(t, err)
	assert.Equal(t, "E2", decision.Agent.Code)
	assert.True(t, decision.Trace[1].Skipped)
	assert.True(t, decision.Trace[2].Skipped)
}

func TestSelect_StrictFailsOnEmptySkillStage(t *testing.T) {
	agents := []domain.Agent{agent("F1", []string{"water"}, downtown, onCall())}
	engine := newEngine(agents, nil, Options{Strict: true})

	_, err := engine.Select(context.Background(), request(domain.CategoryPothole))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNoAgentAvailable))
	assert.Equal(t, StageSkill, apperrors.ToDomainError(err).Details["stage"])
}

func TestSelect_StrictFailsOnEmptyShiftStage(t *testing.T) {
	agents := []domain.Agent{agent("G1", []string{"road"}, downtown, wednesday("18:00", "22:00"))}
	engine := newEngine(agents, nil, Options{Strict: true})

	_, err := engine.Select(context.Background(), request(domain.CategoryPothole))
	assert.True(t, errors.Is(err, apperrors.ErrNoAgentAvailable))
	assert.Equal(t, StageShift, apperrors.ToDomainError(err).Details["stage"])
}

func TestSelect_NoActiveAgents(t *testing.T) {
	inactive := agent("H1", []string{"road"}, downtown, onCall())
	inactive.Active = false
	engine := newEngine([]domain.Agent{inactive}, nil, Options{})

	_, err := engine.Select(context.Background(), request(domain.CategoryPothole))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNoAgentAvailable))
}

func TestSelect_WorkloadErrorIsStoreUnavailable(t *testing.T) {
	agents := []domain.Agent{agent("I1", []string{"road"}, downtown, onCall())}
	engine := NewEngine(&fakeAgents{agents: agents}, &fakeWorkload{err: errors.New("conn reset")}, policy.Default(), Options{}, func() time.Time { return fixedNow })

	_, err := engine.Select(context.Background(), request(domain.CategoryPothole))
	assert.True(t, errors.Is(err, apperrors.ErrStoreUnavailable))
}

func TestSelect_StagesNeverGrow(t *testing.T) {
	agents := []domain.Agent{
		agent("J1", []string{"road"}, downtown, wednesday("09:00", "11:00")),
		agent("J2", []string{"water"}, downtown, onCall()),
		agent("J3", []string{"road"}, downtown, domain.Schedule{}),
		agent("J4", []string{"general"}, nil, onCall()),
	}
	for _, category := range []domain.Category{domain.CategoryPothole, domain.CategoryWaterLeak, domain.CategoryTrash, domain.CategoryOther} {
		decision, err := newEngine(agents, map[string]int{}, Options{}).Select(context.Background(), request(category))
		require.NoError(t, err)
		for i := 1; i < len(decision.Trace); i++ {
			assert.LessOrEqual(t, decision.Trace[i].Out, decision.Trace[i-1].Out, "category %s stage %s", category, decision.Trace[i].Stage)
			assert.Equal(t, decision.Trace[i-1].Out, decision.Trace[i].In)
		}
	}
}

func TestCheckDispatchable(t *testing.T) {
	for _, status := range domain.AllStatuses {
		err := CheckDispatchable(domain.ServiceRequest{Status: status})
		if status == domain.StatusTriaged || status == domain.StatusAssigned {
			assert.NoError(t, err, status)
		} else {
			assert.True(t, errors.Is(err, apperrors.ErrInvalidState), status)
		}
	}
}

func TestIsOnShift(t *testing.T) {
	tests := []struct {
		name     string
		schedule domain.Schedule
		want     bool
	}{
		{"on call", onCall(), true},
		{"inside window", wednesday("09:00", "11:00"), true},
		{"start bound inclusive", wednesday("10:30", "12:00"), true},
		{"end bound inclusive", wednesday("08:00", "10:30"), true},
		{"after window", wednesday("06:00", "10:29"), false},
		{"other day", domain.Schedule{Shifts: []domain.Shift{{Day: "Tuesday", Start: "00:00", End: "23:59"}}}, false},
		{"short day name", domain.Schedule{Shifts: []domain.Shift{{Day: "wed", Start: "10:00", End: "11:00"}}}, true},
		{"no shifts", domain.Schedule{}, false},
		{
			"timezone shifts clock",
			domain.Schedule{Timezone: "Asia/Jerusalem", Shifts: []domain.Shift{{Day: "Wednesday", Start: "12:00", End: "13:00"}}},
			true,
		},
		{
			"unknown timezone uses UTC",
			domain.Schedule{Timezone: "Mars/Olympus", Shifts: []domain.Shift{{Day: "Wednesday", Start: "10:00", End: "11:00"}}},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsOnShift(tt.schedule, fixedNow))
		})
	}
}
