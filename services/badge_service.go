// services/badge_service.go
package services

import (
	"context"

	"tripwire/models"
	"tripwire/repositories"
)

// BadgeService fronts the badge counter store. Values feed iOS badge
// numbers directly, so they are read at dispatch time and never cached.
type BadgeService struct {
	badgeRepo *repositories.BadgeRepository
}

func NewBadgeService(badgeRepo *repositories.BadgeRepository) *BadgeService {
	return &BadgeService{
		badgeRepo: badgeRepo,
	}
}

func (bs *BadgeService) Increment(ctx context.Context, userID, tripID, eventID string, delta int) (int, error) {
	if delta == 0 {
		delta = 1
	}
	return bs.badgeRepo.Increment(ctx, userID, tripID, eventID, delta)
}

func (bs *BadgeService) Get(ctx context.Context, userID, tripID string) (*models.BadgeCounter, error) {
	return bs.badgeRepo.Get(ctx, userID, tripID)
}

func (bs *BadgeService) GetUserBadges(ctx context.Context, userID string) ([]models.BadgeCounter, error) {
	return bs.badgeRepo.GetUserBadges(ctx, userID)
}

func (bs *BadgeService) GetTotal(ctx context.Context, userID string) (int, error) {
	return bs.badgeRepo.GetTotalBadge(ctx, userID)
}

func (bs *BadgeService) Reset(ctx context.Context, userID, tripID string) error {
	return bs.badgeRepo.Reset(ctx, userID, tripID)
}
