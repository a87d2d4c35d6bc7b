package memory

import (
	"context"
	"sort"

	"exam-arena-service/internal/domain"
)

type studentRepo struct{ s *Store }

func (r studentRepo) Get(_ context.Context, id string) (domain.Student, error) {
	var out domain.Student
	err := r.s.do(func(st *state) error {
		s, ok := st.students[id]
		if !ok {
			return domain.ErrStudentNotFound
		}
		out = s
		return nil
	})
	return out, err
}

func (r studentRepo) Ensure(_ context.Context, s domain.Student) (domain.Student, error) {
	var out domain.Student
	err := r.s.do(func(st *state) error {
		if existing, ok := st.students[s.ID]; ok {
			out = existing
			return nil
		}
		st.students[s.ID] = s
		out = s
		return nil
	})
	return out, err
}

func (r studentRepo) FindByReferralCode(_ context.Context, code string) (domain.Student, error) {
	var out domain.Student
	err := r.s.do(func(st *state) error {
		for _, s := range st.students {
			if s.ReferralCode == code {
				out = s
				return nil
			}
		}
		return domain.ErrStudentNotFound
	})
	return out, err
}

func (r studentRepo) update(id string, fn func(*domain.Student) error) error {
	return r.s.do(func(st *state) error {
		s, ok := st.students[id]
		if !ok {
			return domain.ErrStudentNotFound
		}
		if err := fn(&s); err != nil {
			return err
		}
		st.students[id] = s
		return nil
	})
}

func (r studentRepo) DeductRoomCredit(_ context.Context, id string) error {
	return r.update(id, func(s *domain.Student) error {
		if s.RoomCredits < 1 {
			return domain.ErrInsufficientFunds
		}
		s.RoomCredits--
		return nil
	})
}

func (r studentRepo) AddRoomCredits(_ context.Context, id string, n int) error {
	return r.update(id, func(s *domain.Student) error {
		s.RoomCredits += n
		return nil
	})
}

func (r studentRepo) AddXP(_ context.Context, id string, amount int) error {
	return r.update(id, func(s *domain.Student) error {
		s.TotalXP += amount
		return nil
	})
}

func (r studentRepo) SetTotalXP(_ context.Context, id string, total int) error {
	return r.update(id, func(s *domain.Student) error {
		s.TotalXP = total
		return nil
	})
}

func (r studentRepo) UpdateStreak(_ context.Context, id string, current, max int) error {
	return r.update(id, func(s *domain.Student) error {
		s.CurrentStreak = current
		s.MaxStreak = max
		return nil
	})
}

func (r studentRepo) SetReferralCreditsAwarded(_ context.Context, id string, n int) error {
	return r.update(id, func(s *domain.Student) error {
		s.ReferralCreditsAwarded = n
		return nil
	})
}

func (r studentRepo) SetPhoneVerified(_ context.Context, id string, verified bool) error {
	return r.update(id, func(s *domain.Student) error {
		s.PhoneVerified = verified
		return nil
	})
}

func (r studentRepo) TopByXP(_ context.Context, limit int) ([]domain.Student, error) {
	var out []domain.Student
	err := r.s.do(func(st *state) error {
		for _, s := range st.students {
			out = append(out, s)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalXP != out[j].TotalXP {
			return out[i].TotalXP > out[j].TotalXP
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}
