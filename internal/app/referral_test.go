package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"exam-arena-service/internal/app"
	"exam-arena-service/internal/domain"
)

func TestReferralCredits(t *testing.T) {
	cases := map[int]int{0: 0, 1: 0, 2: 0, 3: 1, 4: 2, 5: 5, 6: 6, 10: 10}
	for active, want := range cases {
		if got := app.ReferralCredits(active); got != want {
			t.Fatalf("ReferralCredits(%d) = %d, want %d", active, got, want)
		}
	}
}

func TestReferralClaimRules(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	owner, alice := student("owner"), student("alice")
	code := referralCode(t, f, owner)

	if err := f.referrals.Claim(ctx, owner, code); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected self referral to be rejected, got %v", err)
	}
	if err := f.referrals.Claim(ctx, alice, "NOPE1234"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected unknown code to be rejected, got %v", err)
	}
	if err := f.referrals.Claim(ctx, alice, " "+code+" "); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := f.referrals.Claim(ctx, alice, code); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected a second claim to be rejected, got %v", err)
	}
}

func TestReferralActivationPaysMilestones(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	owner := student("owner")
	code := referralCode(t, f, owner)

	unverified := student("unverified")
	if _, err := f.referrals.Activate(ctx, unverified); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected unverified phone to be rejected, got %v", err)
	}
	loner := student("loner")
	loner.PhoneVerified = true
	if _, err := f.referrals.Activate(ctx, loner); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected activation without a referral to be not found, got %v", err)
	}

	paid := []int{0, 0, 1, 1, 3}
	for i, want := range paid {
		friend := student(fmt.Sprintf("friend-%d", i))
		friend.PhoneVerified = true
		if err := f.referrals.Claim(ctx, friend, code); err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		res, err := f.referrals.Activate(ctx, friend)
		if err != nil {
			t.Fatalf("activate %d: %v", i, err)
		}
		if !res.Activated || res.ReferrerCredits != want {
			t.Fatalf("activation %d: expected %d credits, got %+v", i+1, want, res)
		}
		if i == 0 {
			again, err := f.referrals.Activate(ctx, friend)
			if err != nil {
				t.Fatalf("activate again: %v", err)
			}
			if again.Activated || again.Message != "referral already active" {
				t.Fatalf("expected repeat activation to be a no-op, got %+v", again)
			}
		}
	}

	profile, err := f.store.Students().Get(ctx, "owner")
	if err != nil {
		t.Fatalf("get owner: %v", err)
	}
	if profile.RoomCredits != 1+5 || profile.ReferralCreditsAwarded != 5 {
		t.Fatalf("expected 5 referral credits on top of the initial one, got %d (awarded %d)", profile.RoomCredits, profile.ReferralCreditsAwarded)
	}
	if n := len(f.outbox.List("owner")); n != 3 {
		t.Fatalf("expected a notification per paid milestone, got %d", n)
	}
}

func referralCode(t *testing.T, f *fixture, p domain.Principal) string {
	t.Helper()
	if _, err := f.ledger.Summary(context.Background(), p, 0); err != nil {
		t.Fatalf("provision %s: %v", p.UserID, err)
	}
	profile, err := f.store.Students().Get(context.Background(), p.UserID)
	if err != nil {
		t.Fatalf("get %s: %v", p.UserID, err)
	}
	if profile.ReferralCode == "" {
		t.Fatalf("expected a referral code for %s", p.UserID)
	}
	return profile.ReferralCode
}
