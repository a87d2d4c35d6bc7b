package postgres

import (
	"context"
	"time"

	"exam-arena-service/internal/domain"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type xpRepo struct{ db bun.IDB }

func (r xpRepo) Append(ctx context.Context, entry domain.XPLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := r.db.NewInsert().Model(&xpLogModel{
		ID:         entry.ID,
		StudentID:  entry.StudentID,
		Amount:     entry.Amount,
		Action:     entry.Action,
		SourceType: entry.SourceType,
		SourceID:   entry.SourceID,
		CreatedAt:  entry.CreatedAt,
	}).Exec(ctx)
	return mapErr(err, domain.ErrStudentNotFound)
}

func (r xpRepo) query(q domain.XPQuery) *bun.SelectQuery {
	sel := r.db.NewSelect().Model((*xpLogModel)(nil))
	if q.StudentID != "" {
		sel = sel.Where("student_id = ?", q.StudentID)
	}
	if q.SourceType != "" {
		sel = sel.Where("source_type = ?", q.SourceType)
	}
	if q.SourceID != "" {
		sel = sel.Where("source_id = ?", q.SourceID)
	}
	if q.Action != "" {
		sel = sel.Where("action LIKE ?", "%"+q.Action+"%")
	}
	if !q.From.IsZero() {
		sel = sel.Where("created_at >= ?", q.From)
	}
	if !q.To.IsZero() {
		sel = sel.Where("created_at < ?", q.To)
	}
	return sel
}

func (r xpRepo) Exists(ctx context.Context, q domain.XPQuery) (bool, error) {
	return r.query(q).Exists(ctx)
}

func (r xpRepo) Sum(ctx context.Context, q domain.XPQuery) (int, error) {
	var total int
	err := r.query(q).ColumnExpr("COALESCE(SUM(amount), 0)").Scan(ctx, &total)
	return total, err
}

func (r xpRepo) List(ctx context.Context, studentID string, limit int) ([]domain.XPLog, error) {
	var rows []xpLogModel
	q := r.db.NewSelect().Model(&rows).Where("student_id = ?", studentID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.XPLog, len(rows))
	for i, m := range rows {
		out[i] = domain.XPLog{
			ID:         m.ID,
			StudentID:  m.StudentID,
			Amount:     m.Amount,
			Action:     m.Action,
			SourceType: m.SourceType,
			SourceID:   m.SourceID,
			CreatedAt:  m.CreatedAt,
		}
	}
	return out, nil
}

type activityRepo struct{ db bun.IDB }

func (r activityRepo) Touch(ctx context.Context, studentID string, day time.Time, status domain.ActivityStatus, testsDelta int, now time.Time) error {
	_, err := r.db.NewInsert().Model(&activityModel{
		StudentID:      studentID,
		Day:            day,
		Status:         string(status),
		TestsCompleted: testsDelta,
		UpdatedAt:      now,
	}).
		On("CONFLICT (student_id, day) DO UPDATE").
		Set("tests_completed = da.tests_completed + EXCLUDED.tests_completed").
		Set("status = CASE WHEN EXCLUDED.status = ? THEN EXCLUDED.status ELSE da.status END", string(domain.ActivityPresent)).
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return mapErr(err, domain.ErrStudentNotFound)
}

func (r activityRepo) ListDays(ctx context.Context, studentID string) ([]domain.DailyActivity, error) {
	var rows []activityModel
	if err := r.db.NewSelect().Model(&rows).Where("student_id = ?", studentID).Order("day DESC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.DailyActivity, len(rows))
	for i, m := range rows {
		out[i] = domain.DailyActivity{
			StudentID:      m.StudentID,
			Day:            m.Day,
			Status:         domain.ActivityStatus(m.Status),
			TestsCompleted: m.TestsCompleted,
			UpdatedAt:      m.UpdatedAt,
		}
	}
	return out, nil
}

type referralRepo struct{ db bun.IDB }

func (r referralRepo) Create(ctx context.Context, ref domain.Referral) error {
	_, err := r.db.NewInsert().Model(&referralModel{
		ReferrerID: ref.ReferrerID,
		ReferredID: ref.ReferredID,
		Active:     ref.Active,
		CreatedAt:  ref.CreatedAt,
	}).Exec(ctx)
	return mapErr(err, domain.ErrReferralNotFound)
}

func (r referralRepo) GetByReferred(ctx context.Context, referredID string) (domain.Referral, error) {
	var m referralModel
	if err := r.db.NewSelect().Model(&m).Where("referred_id = ?", referredID).Scan(ctx); err != nil {
		return domain.Referral{}, mapErr(err, domain.ErrReferralNotFound)
	}
	return domain.Referral{
		ReferrerID:  m.ReferrerID,
		ReferredID:  m.ReferredID,
		Active:      m.Active,
		CreatedAt:   m.CreatedAt,
		ActivatedAt: m.ActivatedAt,
	}, nil
}

func (r referralRepo) Activate(ctx context.Context, referredID string, at time.Time) (bool, error) {
	res, err := r.db.NewUpdate().Model((*referralModel)(nil)).
		Set("active = true").
		Set("activated_at = ?", at).
		Where("referred_id = ?", referredID).
		Where("active = false").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := affected(res)
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := r.GetByReferred(ctx, referredID); err != nil {
			return false, err
		}
	}
	return n == 1, nil
}

func (r referralRepo) CountActive(ctx context.Context, referrerID string) (int, error) {
	return r.db.NewSelect().Model((*referralModel)(nil)).
		Where("referrer_id = ?", referrerID).
		Where("active = true").
		Count(ctx)
}
