package memory

import (
	"context"
	"sort"
	"time"

	"exam-arena-service/internal/domain"
)

type roomRepo struct{ s *Store }

func (r roomRepo) Create(_ context.Context, room domain.Room) error {
	return r.s.do(func(st *state) error {
		for _, existing := range st.rooms {
			if existing.Code == room.Code {
				return domain.ErrDuplicate
			}
		}
		st.rooms[room.ID] = room
		return nil
	})
}

func (r roomRepo) GetByCode(_ context.Context, code string) (domain.Room, error) {
	var out domain.Room
	err := r.s.do(func(st *state) error {
		for _, room := range st.rooms {
			if room.Code == code {
				out = room
				return nil
			}
		}
		return domain.ErrRoomNotFound
	})
	return out, err
}

func (r roomRepo) UpdateConfig(_ context.Context, room domain.Room) error {
	return r.s.do(func(st *state) error {
		existing, ok := st.rooms[room.ID]
		if !ok {
			return domain.ErrRoomNotFound
		}
		room.Status = existing.Status
		room.StartTime = existing.StartTime
		room.EndedAt = existing.EndedAt
		room.ResultsNotified = existing.ResultsNotified
		st.rooms[room.ID] = room
		return nil
	})
}

func (r roomRepo) TransitionStatus(_ context.Context, room domain.Room, from domain.RoomStatus) error {
	return r.s.do(func(st *state) error {
		existing, ok := st.rooms[room.ID]
		if !ok {
			return domain.ErrRoomNotFound
		}
		if existing.Status != from {
			return domain.NewStateError(string(existing.Status), "room status changed concurrently")
		}
		existing.Status = room.Status
		existing.StartTime = room.StartTime
		existing.EndedAt = room.EndedAt
		st.rooms[room.ID] = existing
		return nil
	})
}

func (r roomRepo) MarkResultsNotified(_ context.Context, roomID string) (bool, error) {
	flipped := false
	err := r.s.do(func(st *state) error {
		room, ok := st.rooms[roomID]
		if !ok {
			return domain.ErrRoomNotFound
		}
		if room.ResultsNotified {
			return nil
		}
		room.ResultsNotified = true
		st.rooms[roomID] = room
		flipped = true
		return nil
	})
	return flipped, err
}

func (r roomRepo) ListPublicWaiting(_ context.Context, now time.Time, limit int) ([]domain.Room, error) {
	return r.list(func(room domain.Room) bool {
		return room.Status == domain.RoomWaiting && room.Privacy == domain.RoomPublic && !room.Expired(now)
	}, limit)
}

func (r roomRepo) ListUnfinished(_ context.Context, now time.Time, limit int) ([]domain.Room, error) {
	return r.list(func(room domain.Room) bool {
		switch room.Status {
		case domain.RoomWaiting, domain.RoomActive:
			return room.Expired(now)
		case domain.RoomCompleted:
			return !room.ResultsNotified
		}
		return false
	}, limit)
}

func (r roomRepo) list(match func(domain.Room) bool, limit int) ([]domain.Room, error) {
	var out []domain.Room
	err := r.s.do(func(st *state) error {
		for _, room := range st.rooms {
			if match(room) {
				out = append(out, room)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r roomRepo) ReplaceQuestions(_ context.Context, roomID string, qs []domain.RoomQuestion) error {
	return r.s.do(func(st *state) error {
		seen := make(map[string]bool, len(qs))
		for _, q := range qs {
			if seen[q.QuestionID] {
				return domain.ErrDuplicate
			}
			seen[q.QuestionID] = true
		}
		stored := make([]domain.RoomQuestion, len(qs))
		for i, q := range qs {
			q.Question = domain.Question{}
			stored[i] = q
		}
		st.roomQuestions[roomID] = stored
		return nil
	})
}

func (r roomRepo) ListQuestions(_ context.Context, roomID string) ([]domain.RoomQuestion, error) {
	var out []domain.RoomQuestion
	err := r.s.do(func(st *state) error {
		out = append(out, st.roomQuestions[roomID]...)
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, err
}

func (r roomRepo) AddParticipant(_ context.Context, p domain.RoomParticipant) error {
	return r.s.do(func(st *state) error {
		for _, existing := range st.participants {
			if existing.RoomID == p.RoomID && existing.UserID == p.UserID {
				return domain.ErrDuplicate
			}
		}
		st.participants[p.ID] = p
		return nil
	})
}

func (r roomRepo) GetParticipant(_ context.Context, roomID, userID string) (domain.RoomParticipant, error) {
	var out domain.RoomParticipant
	err := r.s.do(func(st *state) error {
		for _, p := range st.participants {
			if p.RoomID == roomID && p.UserID == userID {
				out = p
				return nil
			}
		}
		return domain.ErrParticipantNotFound
	})
	return out, err
}

func (r roomRepo) SetParticipantStatus(_ context.Context, participantID string, status domain.ParticipantStatus, at time.Time) error {
	return r.s.do(func(st *state) error {
		p, ok := st.participants[participantID]
		if !ok {
			return domain.ErrParticipantNotFound
		}
		p.Status = status
		if status == domain.ParticipantJoined {
			p.JoinedAt = at
			p.LeftAt = nil
		} else {
			p.LeftAt = &at
		}
		st.participants[participantID] = p
		return nil
	})
}

func (r roomRepo) ListParticipants(_ context.Context, roomID string) ([]domain.RoomParticipant, error) {
	var out []domain.RoomParticipant
	err := r.s.do(func(st *state) error {
		for _, p := range st.participants {
			if p.RoomID == roomID {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, err
}

func (r roomRepo) CountJoined(_ context.Context, roomID string) (int, error) {
	n := 0
	err := r.s.do(func(st *state) error {
		for _, p := range st.participants {
			if p.RoomID == roomID && p.Status == domain.ParticipantJoined {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r roomRepo) AssignSeed(_ context.Context, participantID string, seed int64) (int64, error) {
	var out int64
	err := r.s.do(func(st *state) error {
		p, ok := st.participants[participantID]
		if !ok {
			return domain.ErrParticipantNotFound
		}
		if p.Seed == nil {
			p.Seed = &seed
			st.participants[participantID] = p
		}
		out = *p.Seed
		return nil
	})
	return out, err
}

func (r roomRepo) StartClock(_ context.Context, participantID string, at time.Time) (time.Time, error) {
	var out time.Time
	err := r.s.do(func(st *state) error {
		p, ok := st.participants[participantID]
		if !ok {
			return domain.ErrParticipantNotFound
		}
		if p.StartTime == nil {
			p.StartTime = &at
			st.participants[participantID] = p
		}
		out = *p.StartTime
		return nil
	})
	return out, err
}

func (r roomRepo) UpsertAttempt(_ context.Context, a domain.ParticipantAttempt) (domain.ParticipantAttempt, error) {
	var out domain.ParticipantAttempt
	err := r.s.do(func(st *state) error {
		key := a.ParticipantID + "|" + a.RoomQuestionID
		if existing, ok := st.partAttempts[key]; ok {
			a.ID = existing.ID
		}
		st.partAttempts[key] = a
		out = a
		return nil
	})
	return out, err
}

func (r roomRepo) ListAttempts(_ context.Context, roomID string) ([]domain.ParticipantAttempt, error) {
	var out []domain.ParticipantAttempt
	err := r.s.do(func(st *state) error {
		for _, a := range st.partAttempts {
			if p, ok := st.participants[a.ParticipantID]; ok && p.RoomID == roomID {
				out = append(out, a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, err
}
