package service

import (
	"context"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	"github.com/MaysHroub/cst-management-info-system/internal/repository"
	apperrors "github.com/MaysHroub/cst-management-info-system/pkg/util/errorutil"
)

// ZoneService exposes the read-only zone catalogue.
type ZoneService struct {
	zones repository.ZoneRepository
}

func NewZoneService(deps Dependencies) *ZoneService {
	return &ZoneService{zones: deps.ZoneRepo}
}

// List returns every zone ordered by id.
func (s *ZoneService) List(ctx context.Context) ([]domain.Zone, error) {
	if s.zones == nil {
		return []domain.Zone{}, nil
	}
	zones, err := s.zones.List(ctx)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	if zones == nil {
		zones = []domain.Zone{}
	}
	return zones, nil
}
