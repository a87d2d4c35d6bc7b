package postgres

import (
	"context"

	"exam-arena-service/internal/domain"
	"github.com/uptrace/bun"
)

type studentRepo struct{ db bun.IDB }

func (r studentRepo) Get(ctx context.Context, id string) (domain.Student, error) {
	var m studentModel
	err := r.db.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return domain.Student{}, mapErr(err, domain.ErrStudentNotFound)
	}
	return m.toDomain(), nil
}

func (r studentRepo) Ensure(ctx context.Context, s domain.Student) (domain.Student, error) {
	_, err := r.db.NewInsert().Model(newStudentModel(s)).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	if err != nil {
		return domain.Student{}, mapErr(err, domain.ErrStudentNotFound)
	}
	return r.Get(ctx, s.ID)
}

func (r studentRepo) FindByReferralCode(ctx context.Context, code string) (domain.Student, error) {
	var m studentModel
	err := r.db.NewSelect().Model(&m).Where("referral_code = ?", code).Scan(ctx)
	if err != nil {
		return domain.Student{}, mapErr(err, domain.ErrStudentNotFound)
	}
	return m.toDomain(), nil
}

// exec runs a single-row update and reports ErrStudentNotFound when nothing matched.
func (r studentRepo) exec(ctx context.Context, q *bun.UpdateQuery, missing error) error {
	res, err := q.Exec(ctx)
	if err != nil {
		return mapErr(err, domain.ErrStudentNotFound)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func (r studentRepo) update(id string) *bun.UpdateQuery {
	return r.db.NewUpdate().Model((*studentModel)(nil)).Where("id = ?", id)
}

func (r studentRepo) DeductRoomCredit(ctx context.Context, id string) error {
	q := r.update(id).Set("room_credits = room_credits - 1").Where("room_credits >= 1")
	err := r.exec(ctx, q, domain.ErrInsufficientFunds)
	if err == domain.ErrInsufficientFunds {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return getErr
		}
	}
	return err
}

func (r studentRepo) AddRoomCredits(ctx context.Context, id string, n int) error {
	return r.exec(ctx, r.update(id).Set("room_credits = room_credits + ?", n), domain.ErrStudentNotFound)
}

func (r studentRepo) AddXP(ctx context.Context, id string, amount int) error {
	return r.exec(ctx, r.update(id).Set("total_xp = total_xp + ?", amount), domain.ErrStudentNotFound)
}

func (r studentRepo) SetTotalXP(ctx context.Context, id string, total int) error {
	return r.exec(ctx, r.update(id).Set("total_xp = ?", total), domain.ErrStudentNotFound)
}

func (r studentRepo) UpdateStreak(ctx context.Context, id string, current, max int) error {
	q := r.update(id).Set("current_streak = ?", current).Set("max_streak = ?", max)
	return r.exec(ctx, q, domain.ErrStudentNotFound)
}

func (r studentRepo) SetReferralCreditsAwarded(ctx context.Context, id string, n int) error {
	return r.exec(ctx, r.update(id).Set("referral_credits_awarded = ?", n), domain.ErrStudentNotFound)
}

func (r studentRepo) SetPhoneVerified(ctx context.Context, id string, verified bool) error {
	return r.exec(ctx, r.update(id).Set("phone_verified = ?", verified), domain.ErrStudentNotFound)
}

func (r studentRepo) TopByXP(ctx context.Context, limit int) ([]domain.Student, error) {
	var rows []studentModel
	q := r.db.NewSelect().Model(&rows).Order("total_xp DESC", "id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Student, len(rows))
	for i, m := range rows {
		out[i] = m.toDomain()
	}
	return out, nil
}
