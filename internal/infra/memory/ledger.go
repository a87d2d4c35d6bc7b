package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"exam-arena-service/internal/domain"
)

type xpRepo struct{ s *Store }

func (r xpRepo) Append(_ context.Context, entry domain.XPLog) error {
	return r.s.do(func(st *state) error {
		st.xp = append(st.xp, entry)
		return nil
	})
}

func matchXP(e domain.XPLog, q domain.XPQuery) bool {
	if q.StudentID != "" && e.StudentID != q.StudentID {
		return false
	}
	if q.SourceType != "" && e.SourceType != q.SourceType {
		return false
	}
	if q.SourceID != "" && e.SourceID != q.SourceID {
		return false
	}
	if q.Action != "" && !strings.Contains(e.Action, q.Action) {
		return false
	}
	if !q.From.IsZero() && e.CreatedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !e.CreatedAt.Before(q.To) {
		return false
	}
	return true
}

func (r xpRepo) Exists(_ context.Context, q domain.XPQuery) (bool, error) {
	found := false
	err := r.s.do(func(st *state) error {
		for _, e := range st.xp {
			if matchXP(e, q) {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r xpRepo) Sum(_ context.Context, q domain.XPQuery) (int, error) {
	total := 0
	err := r.s.do(func(st *state) error {
		for _, e := range st.xp {
			if matchXP(e, q) {
				total += e.Amount
			}
		}
		return nil
	})
	return total, err
}

func (r xpRepo) List(_ context.Context, studentID string, limit int) ([]domain.XPLog, error) {
	var out []domain.XPLog
	err := r.s.do(func(st *state) error {
		for _, e := range st.xp {
			if e.StudentID == studentID {
				out = append(out, e)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

type activityRepo struct{ s *Store }

func (r activityRepo) Touch(_ context.Context, studentID string, day time.Time, status domain.ActivityStatus, testsDelta int, now time.Time) error {
	return r.s.do(func(st *state) error {
		key := studentID + "|" + day.Format("2006-01-02")
		row, ok := st.activity[key]
		if !ok {
			row = domain.DailyActivity{StudentID: studentID, Day: day, Status: status}
		}
		if status == domain.ActivityPresent {
			row.Status = domain.ActivityPresent
		}
		row.TestsCompleted += testsDelta
		row.UpdatedAt = now
		st.activity[key] = row
		return nil
	})
}

func (r activityRepo) ListDays(_ context.Context, studentID string) ([]domain.DailyActivity, error) {
	var out []domain.DailyActivity
	err := r.s.do(func(st *state) error {
		for _, row := range st.activity {
			if row.StudentID == studentID {
				out = append(out, row)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Day.After(out[j].Day) })
	return out, err
}

type referralRepo struct{ s *Store }

func (r referralRepo) Create(_ context.Context, ref domain.Referral) error {
	return r.s.do(func(st *state) error {
		if _, ok := st.referrals[ref.ReferredID]; ok {
			return domain.ErrDuplicate
		}
		st.referrals[ref.ReferredID] = ref
		return nil
	})
}

func (r referralRepo) GetByReferred(_ context.Context, referredID string) (domain.Referral, error) {
	var out domain.Referral
	err := r.s.do(func(st *state) error {
		ref, ok := st.referrals[referredID]
		if !ok {
			return domain.ErrReferralNotFound
		}
		out = ref
		return nil
	})
	return out, err
}

func (r referralRepo) Activate(_ context.Context, referredID string, at time.Time) (bool, error) {
	activated := false
	err := r.s.do(func(st *state) error {
		ref, ok := st.referrals[referredID]
		if !ok {
			return domain.ErrReferralNotFound
		}
		if ref.Active {
			return nil
		}
		ref.Active = true
		ref.ActivatedAt = &at
		st.referrals[referredID] = ref
		activated = true
		return nil
	})
	return activated, err
}

func (r referralRepo) CountActive(_ context.Context, referrerID string) (int, error) {
	n := 0
	err := r.s.do(func(st *state) error {
		for _, ref := range st.referrals {
			if ref.ReferrerID == referrerID && ref.Active {
				n++
			}
		}
		return nil
	})
	return n, err
}
