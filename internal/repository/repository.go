package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
)

// Store errors shared by every implementation.
var (
	ErrNotFound   = errors.New("repository: not found")
	ErrStaleWrite = errors.New("repository: stale write")
	ErrDuplicate  = errors.New("repository: duplicate key")
)

// DefaultListLimit applies when a filter leaves Limit unset.
const DefaultListLimit = 50

// RequestSort selects the ordering of a request listing.
type RequestSort int

const (
	SortNewestFirst RequestSort = iota
	SortRecentlyAssigned
)

// RequestFilter captures listing parameters. Zero values match everything.
type RequestFilter struct {
	Statuses []domain.RequestStatus
	Category *domain.Category
	Priority *domain.Priority
	AgentID  *string
	Sort     RequestSort
	Limit    int
	Offset   int
}

// RequestRepository persists service requests as documents keyed by RequestID.
type RequestRepository interface {
	// NextSequence returns the next per-year counter value, starting at 1.
	NextSequence(ctx context.Context, year int) (int, error)
	Create(ctx context.Context, req *domain.ServiceRequest) error
	GetByRequestID(ctx context.Context, requestID string) (*domain.ServiceRequest, error)
	// Update stores req only if the stored copy still has status expected and
	// the same Version; otherwise it returns ErrStaleWrite. On success
	// req.Version is advanced.
	Update(ctx context.Context, req *domain.ServiceRequest, expected domain.RequestStatus) error
	List(ctx context.Context, filter RequestFilter) ([]domain.ServiceRequest, error)
	CountByAgent(ctx context.Context, agentCode string, statuses []domain.RequestStatus) (int, error)
	// CountOpenByAgent counts requests in assigned or in_progress held by the agent.
	CountOpenByAgent(ctx context.Context, agentCode string) (int, error)
}

// AgentFilter captures agent listing parameters.
type AgentFilter struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}

// AgentRepository persists agents keyed by code.
type AgentRepository interface {
	Create(ctx context.Context, agent *domain.Agent) error
	GetByCode(ctx context.Context, code string) (*domain.Agent, error)
	List(ctx context.Context, filter AgentFilter) ([]domain.Agent, error)
	SetActive(ctx context.Context, code string, active bool, at time.Time) (*domain.Agent, error)
	// FindCovering returns active agents whose geo-fence intersects the point,
	// ordered by code.
	FindCovering(ctx context.Context, lon, lat float64) ([]domain.Agent, error)
	// SampleActive returns up to n active agents ordered by code.
	SampleActive(ctx context.Context, n int) ([]domain.Agent, error)
}

// AuditRepository stores the append-only event stream of each request.
type AuditRepository interface {
	Append(ctx context.Context, event *domain.AuditEvent) error
	ListByRequest(ctx context.Context, requestID string) ([]domain.AuditEvent, error)
}

// ZoneRepository reads named geographic zones.
type ZoneRepository interface {
	List(ctx context.Context) ([]domain.Zone, error)
	GetByID(ctx context.Context, zoneID string) (*domain.Zone, error)
	// FindContaining returns the first zone, by id, whose boundary contains the point.
	FindContaining(ctx context.Context, lon, lat float64) (*domain.Zone, error)
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// translate maps driver errors onto the shared store errors.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
