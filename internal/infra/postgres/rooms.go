package postgres

import (
	"context"
	"time"

	"exam-arena-service/internal/domain"
	"github.com/uptrace/bun"
)

type roomRepo struct{ db bun.IDB }

func (r roomRepo) Create(ctx context.Context, room domain.Room) error {
	_, err := r.db.NewInsert().Model(newRoomModel(room)).Exec(ctx)
	return mapErr(err, domain.ErrRoomNotFound)
}

func (r roomRepo) GetByCode(ctx context.Context, code string) (domain.Room, error) {
	var m roomModel
	if err := r.db.NewSelect().Model(&m).Where("code = ?", code).Scan(ctx); err != nil {
		return domain.Room{}, mapErr(err, domain.ErrRoomNotFound)
	}
	return m.toDomain(), nil
}

func (r roomRepo) UpdateConfig(ctx context.Context, room domain.Room) error {
	res, err := r.db.NewUpdate().Model(newRoomModel(room)).
		Column("name", "exam", "subjects", "difficulty", "question_type", "question_count",
			"time_per_question_seconds", "duration_seconds", "privacy", "password_hash",
			"attempt_mode", "randomization_mode", "participant_limit").
		WherePK().
		Exec(ctx)
	if err != nil {
		return mapErr(err, domain.ErrRoomNotFound)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (r roomRepo) TransitionStatus(ctx context.Context, room domain.Room, from domain.RoomStatus) error {
	res, err := r.db.NewUpdate().Model(newRoomModel(room)).
		Column("status", "start_time", "ended_at").
		WherePK().
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		current, err := r.getByID(ctx, room.ID)
		if err != nil {
			return err
		}
		return domain.NewStateError(string(current.Status), "room status changed concurrently")
	}
	return nil
}

func (r roomRepo) getByID(ctx context.Context, id string) (domain.Room, error) {
	var m roomModel
	if err := r.db.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.Room{}, mapErr(err, domain.ErrRoomNotFound)
	}
	return m.toDomain(), nil
}

func (r roomRepo) MarkResultsNotified(ctx context.Context, roomID string) (bool, error) {
	res, err := r.db.NewUpdate().Model((*roomModel)(nil)).
		Set("results_notified = true").
		Where("id = ?", roomID).
		Where("results_notified = false").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := affected(res)
	return n == 1, err
}

func (r roomRepo) listRooms(ctx context.Context, q *bun.SelectQuery, rows *[]roomModel, limit int) ([]domain.Room, error) {
	q = q.Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Room, len(*rows))
	for i, m := range *rows {
		out[i] = m.toDomain()
	}
	return out, nil
}

func (r roomRepo) ListPublicWaiting(ctx context.Context, now time.Time, limit int) ([]domain.Room, error) {
	var rows []roomModel
	q := r.db.NewSelect().Model(&rows).
		Where("status = ?", string(domain.RoomWaiting)).
		Where("privacy = ?", string(domain.RoomPublic)).
		Where("expires_at >= ?", now)
	return r.listRooms(ctx, q, &rows, limit)
}

func (r roomRepo) ListUnfinished(ctx context.Context, now time.Time, limit int) ([]domain.Room, error) {
	var rows []roomModel
	q := r.db.NewSelect().Model(&rows).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.Where("status IN (?)", bun.In([]string{string(domain.RoomWaiting), string(domain.RoomActive)})).
						Where("expires_at < ?", now)
				}).
				WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.Where("status = ?", string(domain.RoomCompleted)).
						Where("results_notified = false")
				})
		})
	return r.listRooms(ctx, q, &rows, limit)
}

func (r roomRepo) ReplaceQuestions(ctx context.Context, roomID string, qs []domain.RoomQuestion) error {
	if _, err := r.db.NewDelete().Model((*roomQuestionModel)(nil)).Where("room_id = ?", roomID).Exec(ctx); err != nil {
		return err
	}
	if len(qs) == 0 {
		return nil
	}
	rows := make([]roomQuestionModel, len(qs))
	for i, q := range qs {
		rows[i] = roomQuestionModel{ID: q.ID, RoomID: roomID, QuestionID: q.QuestionID, Number: q.Number}
	}
	_, err := r.db.NewInsert().Model(&rows).Exec(ctx)
	return mapErr(err, domain.ErrRoomNotFound)
}

func (r roomRepo) ListQuestions(ctx context.Context, roomID string) ([]domain.RoomQuestion, error) {
	var rows []roomQuestionModel
	if err := r.db.NewSelect().Model(&rows).Where("room_id = ?", roomID).Order("number ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.RoomQuestion, len(rows))
	for i, m := range rows {
		out[i] = domain.RoomQuestion{ID: m.ID, RoomID: m.RoomID, QuestionID: m.QuestionID, Number: m.Number}
	}
	return out, nil
}

func (r roomRepo) AddParticipant(ctx context.Context, p domain.RoomParticipant) error {
	_, err := r.db.NewInsert().Model(&participantModel{
		ID:        p.ID,
		RoomID:    p.RoomID,
		UserID:    p.UserID,
		Name:      p.Name,
		Status:    string(p.Status),
		Seed:      p.Seed,
		StartTime: p.StartTime,
		JoinedAt:  p.JoinedAt,
		LeftAt:    p.LeftAt,
	}).Exec(ctx)
	return mapErr(err, domain.ErrRoomNotFound)
}

func (r roomRepo) GetParticipant(ctx context.Context, roomID, userID string) (domain.RoomParticipant, error) {
	var m participantModel
	err := r.db.NewSelect().Model(&m).Where("room_id = ?", roomID).Where("user_id = ?", userID).Scan(ctx)
	if err != nil {
		return domain.RoomParticipant{}, mapErr(err, domain.ErrParticipantNotFound)
	}
	return m.toDomain(), nil
}

func (r roomRepo) participant(ctx context.Context, id string) (participantModel, error) {
	var m participantModel
	if err := r.db.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx); err != nil {
		return participantModel{}, mapErr(err, domain.ErrParticipantNotFound)
	}
	return m, nil
}

func (r roomRepo) SetParticipantStatus(ctx context.Context, participantID string, status domain.ParticipantStatus, at time.Time) error {
	q := r.db.NewUpdate().Model((*participantModel)(nil)).
		Set("status = ?", string(status)).
		Where("id = ?", participantID)
	if status == domain.ParticipantJoined {
		q = q.Set("joined_at = ?", at).Set("left_at = NULL")
	} else {
		q = q.Set("left_at = ?", at)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func (r roomRepo) ListParticipants(ctx context.Context, roomID string) ([]domain.RoomParticipant, error) {
	var rows []participantModel
	if err := r.db.NewSelect().Model(&rows).Where("room_id = ?", roomID).Order("joined_at ASC", "user_id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.RoomParticipant, len(rows))
	for i, m := range rows {
		out[i] = m.toDomain()
	}
	return out, nil
}

func (r roomRepo) CountJoined(ctx context.Context, roomID string) (int, error) {
	return r.db.NewSelect().Model((*participantModel)(nil)).
		Where("room_id = ?", roomID).
		Where("status = ?", string(domain.ParticipantJoined)).
		Count(ctx)
}

func (r roomRepo) AssignSeed(ctx context.Context, participantID string, seed int64) (int64, error) {
	_, err := r.db.NewUpdate().Model((*participantModel)(nil)).
		Set("seed = ?", seed).
		Where("id = ?", participantID).
		Where("seed IS NULL").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	m, err := r.participant(ctx, participantID)
	if err != nil {
		return 0, err
	}
	if m.Seed == nil {
		return seed, nil
	}
	return *m.Seed, nil
}

func (r roomRepo) StartClock(ctx context.Context, participantID string, at time.Time) (time.Time, error) {
	_, err := r.db.NewUpdate().Model((*participantModel)(nil)).
		Set("start_time = ?", at).
		Where("id = ?", participantID).
		Where("start_time IS NULL").
		Exec(ctx)
	if err != nil {
		return time.Time{}, err
	}
	m, err := r.participant(ctx, participantID)
	if err != nil {
		return time.Time{}, err
	}
	if m.StartTime == nil {
		return at, nil
	}
	return *m.StartTime, nil
}

func (r roomRepo) UpsertAttempt(ctx context.Context, a domain.ParticipantAttempt) (domain.ParticipantAttempt, error) {
	_, err := r.db.NewInsert().Model(&participantAttemptModel{
		ID:               a.ID,
		ParticipantID:    a.ParticipantID,
		RoomQuestionID:   a.RoomQuestionID,
		SelectedAnswer:   a.SelectedAnswer,
		IsCorrect:        a.IsCorrect,
		MarksObtained:    a.MarksObtained,
		TimeSpentSeconds: a.TimeSpentSeconds,
		SubmittedAt:      a.SubmittedAt,
	}).
		On("CONFLICT (participant_id, room_question_id) DO UPDATE").
		Set("selected_answer = EXCLUDED.selected_answer").
		Set("is_correct = EXCLUDED.is_correct").
		Set("marks_obtained = EXCLUDED.marks_obtained").
		Set("time_spent_seconds = EXCLUDED.time_spent_seconds").
		Set("submitted_at = EXCLUDED.submitted_at").
		Exec(ctx)
	if err != nil {
		return domain.ParticipantAttempt{}, mapErr(err, domain.ErrParticipantNotFound)
	}
	var stored participantAttemptModel
	err = r.db.NewSelect().Model(&stored).
		Where("participant_id = ?", a.ParticipantID).
		Where("room_question_id = ?", a.RoomQuestionID).
		Scan(ctx)
	if err != nil {
		return domain.ParticipantAttempt{}, mapErr(err, domain.ErrParticipantNotFound)
	}
	return stored.toDomain(), nil
}

func (r roomRepo) ListAttempts(ctx context.Context, roomID string) ([]domain.ParticipantAttempt, error) {
	var rows []participantAttemptModel
	err := r.db.NewSelect().Model(&rows).
		Join("JOIN room_participants AS rp ON rp.id = pa.participant_id").
		Where("rp.room_id = ?", roomID).
		Order("pa.submitted_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ParticipantAttempt, len(rows))
	for i, m := range rows {
		out[i] = m.toDomain()
	}
	return out, nil
}
