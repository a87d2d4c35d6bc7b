package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"exam-arena-service/internal/domain"
)

// ReferralCredits is the cumulative room-credit reward for a number of active referrals:
// nothing below 3, then 1, 2 and 5 credits at 3, 4 and 5, and one more per referral after that.
func ReferralCredits(active int) int {
	switch {
	case active < 3:
		return 0
	case active == 3:
		return 1
	case active == 4:
		return 2
	default:
		return 5 + (active - 5)
	}
}

// ActivationResult reports the effect of activating the caller's referral.
type ActivationResult struct {
	Activated       bool   `json:"activated"`
	ReferrerCredits int    `json:"referrer_credits_awarded"`
	Message         string `json:"message"`
}

// ReferralService records referrals and pays the referrer in room credits as they activate.
type ReferralService struct {
	store    Store
	notifier Notifier
	settings Settings
}

func NewReferralService(store Store, notifier Notifier, settings Settings) *ReferralService {
	return &ReferralService{store: store, notifier: notifier, settings: settings.withDefaults()}
}

// Claim links the caller to the owner of code.
func (s *ReferralService) Claim(ctx context.Context, p domain.Principal, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Validationf("referral code is required")
	}
	if _, err := ensureStudent(ctx, s.store, p, s.settings); err != nil {
		return err
	}
	referrer, err := s.store.Students().FindByReferralCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Validationf("unknown referral code")
	}
	if err != nil {
		return err
	}
	if referrer.ID == p.UserID {
		return domain.Validationf("you cannot refer yourself")
	}
	err = s.store.Referrals().Create(ctx, domain.Referral{
		ReferrerID: referrer.ID,
		ReferredID: p.UserID,
		CreatedAt:  s.settings.Now(),
	})
	if errors.Is(err, domain.ErrDuplicate) {
		return domain.Validationf("a referral code was already applied")
	}
	return err
}

// Activate marks the caller's referral active once their phone is verified and pays the
// referrer the difference between the milestone reward and what was already paid.
func (s *ReferralService) Activate(ctx context.Context, p domain.Principal) (ActivationResult, error) {
	if !p.PhoneVerified {
		return ActivationResult{}, domain.Validationf("phone number is not verified")
	}
	if _, err := ensureStudent(ctx, s.store, p, s.settings); err != nil {
		return ActivationResult{}, err
	}

	var result ActivationResult
	var referrerID string
	err := s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.Students().SetPhoneVerified(ctx, p.UserID, true); err != nil {
			return err
		}
		ref, err := tx.Referrals().GetByReferred(ctx, p.UserID)
		if err != nil {
			return err
		}
		referrerID = ref.ReferrerID
		activated, err := tx.Referrals().Activate(ctx, p.UserID, s.settings.Now())
		if err != nil {
			return err
		}
		if !activated {
			result.Message = "referral already active"
			return nil
		}
		active, err := tx.Referrals().CountActive(ctx, ref.ReferrerID)
		if err != nil {
			return err
		}
		credits, err := s.reward(ctx, tx, ref.ReferrerID, active)
		if err != nil {
			return err
		}
		result = ActivationResult{Activated: true, ReferrerCredits: credits, Message: "referral activated"}
		return nil
	})
	if err != nil {
		return ActivationResult{}, err
	}
	if result.ReferrerCredits > 0 && s.notifier != nil {
		n := domain.Notification{
			UserID:     referrerID,
			Category:   "referral",
			Message:    fmt.Sprintf("You earned %d room credits from referrals", result.ReferrerCredits),
			ActionType: "referral_reward",
			DedupeKey:  fmt.Sprintf("referral:%s:%s", referrerID, p.UserID),
			CreatedAt:  s.settings.Now(),
		}
		if err := s.notifier.Enqueue(ctx, n); err != nil {
			log.Printf("enqueue referral notification for %s: %v", referrerID, err)
		}
	}
	return result, nil
}

// reward pays the referrer up to the cumulative milestone for active referrals.
func (s *ReferralService) reward(ctx context.Context, tx Store, referrerID string, active int) (int, error) {
	referrer, err := tx.Students().Get(ctx, referrerID)
	if err != nil {
		return 0, err
	}
	target := ReferralCredits(active)
	delta := target - referrer.ReferralCreditsAwarded
	if delta <= 0 {
		return 0, nil
	}
	if err := tx.Students().AddRoomCredits(ctx, referrerID, delta); err != nil {
		return 0, err
	}
	if err := tx.Students().SetReferralCreditsAwarded(ctx, referrerID, target); err != nil {
		return 0, err
	}
	log.Printf("referrer %s reached %d active referrals, +%d credits", referrerID, active, delta)
	return delta, nil
}
