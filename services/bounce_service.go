// services/bounce_service.go
package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"tripwire/models"
	"tripwire/utils"
)

// BounceStore is the persistence surface the ledger needs; implemented by
// repositories.BounceRepository.
type BounceStore interface {
	GetByAddress(ctx context.Context, address string) (*models.BounceRecord, error)
	IsSuppressed(ctx context.Context, address string) (bool, error)
	RecordSuppressingBounce(ctx context.Context, address, bounceType, reason string) error
	RecordSoftBounce(ctx context.Context, address, reason string) (int, error)
	Suppress(ctx context.Context, address string) error
	Unsuppress(ctx context.Context, address string) error
}

// BounceService is the suppression ledger consulted before every email and
// SMS send. Hard bounces and complaints suppress an address permanently;
// soft bounces only suppress once they cross the configured threshold, to
// protect sender reputation without over-suppressing on transient
// mail-server hiccups.
type BounceService struct {
	bounceRepo          BounceStore
	softBounceThreshold int
}

func NewBounceService(bounceRepo BounceStore, softBounceThreshold int) *BounceService {
	if softBounceThreshold <= 0 {
		softBounceThreshold = 5
	}

	return &BounceService{
		bounceRepo:          bounceRepo,
		softBounceThreshold: softBounceThreshold,
	}
}

func (bs *BounceService) IsSuppressed(ctx context.Context, address string) (bool, error) {
	return bs.bounceRepo.IsSuppressed(ctx, address)
}

func (bs *BounceService) RecordBounce(ctx context.Context, address, bounceType, reason string) error {
	switch bounceType {
	case models.BounceTypeHard, models.BounceTypeComplaint:
		if err := bs.bounceRepo.RecordSuppressingBounce(ctx, address, bounceType, reason); err != nil {
			return err
		}

		logrus.WithFields(logrus.Fields{
			"address":    utils.MaskAddress(address),
			"bounceType": bounceType,
		}).Warn("Address suppressed after disqualifying bounce")
		return nil

	case models.BounceTypeSoft:
		count, err := bs.bounceRepo.RecordSoftBounce(ctx, address, reason)
		if err != nil {
			return err
		}

		if count >= bs.softBounceThreshold {
			if err := bs.bounceRepo.Suppress(ctx, address); err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"address":     utils.MaskAddress(address),
				"bounceCount": count,
			}).Warn("Address suppressed after repeated soft bounces")
		}
		return nil

	default:
		return utils.NewBadRequestError(fmt.Sprintf("unknown bounce type: %s", bounceType))
	}
}

// Unsuppress is the manual operator override; nothing clears suppression
// automatically.
func (bs *BounceService) Unsuppress(ctx context.Context, address string) error {
	if err := bs.bounceRepo.Unsuppress(ctx, address); err != nil {
		return err
	}

	logrus.Infof("Suppression removed for %s", utils.MaskAddress(address))
	return nil
}

func (bs *BounceService) GetRecord(ctx context.Context, address string) (*models.BounceRecord, error) {
	return bs.bounceRepo.GetByAddress(ctx, address)
}
