package usecase

import (
	"context"
	"fmt"

	"vivaly-settlement/internal/data/repository"
	"vivaly-settlement/internal/dto/response"
	"vivaly-settlement/internal/policy"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EligibilityService interface {
	GetEligibility(ctx context.Context, caregiverID uuid.UUID) (*response.EligibilityResponse, error)
	// Check counts the caregiver's completed bookings.
	Check(ctx context.Context, caregiverID uuid.UUID) (policy.Eligibility, error)
}

type eligibilityService struct {
	repo *repository.Repository
	log  *zap.Logger
}

func NewEligibilityService(repo *repository.Repository, log *zap.Logger) EligibilityService {
	return &eligibilityService{
		repo: repo,
		log:  log.With(zap.String("service", "eligibility")),
	}
}

func (s *eligibilityService) GetEligibility(ctx context.Context, caregiverID uuid.UUID) (*response.EligibilityResponse, error) {
	e, err := s.Check(ctx, caregiverID)
	if err != nil {
		return nil, err
	}

	resp := response.EligibilityToResponse(caregiverID.String(), e)
	return &resp, nil
}

func (s *eligibilityService) Check(ctx context.Context, caregiverID uuid.UUID) (policy.Eligibility, error) {
	completed, err := s.repo.Completion.CountByCaregiver(ctx, caregiverID)
	if err != nil {
		return policy.Eligibility{}, fmt.Errorf("failed to count completed bookings: %w", err)
	}
	return policy.NewEligibility(completed), nil
}
