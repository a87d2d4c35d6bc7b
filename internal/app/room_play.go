package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"exam-arena-service/internal/domain"
	"exam-arena-service/internal/ranking"
	"exam-arena-service/internal/scoring"
)

// RoomQuestionsView is a participant's randomized view of the room questions.
type RoomQuestionsView struct {
	RoomCode         string             `json:"room_code"`
	Status           domain.RoomStatus  `json:"status"`
	AttemptMode      domain.AttemptMode `json:"attempt_mode"`
	RemainingSeconds int                `json:"remaining_seconds"`
	TotalQuestions   int                `json:"total_questions"`
	Questions        []QuestionView     `json:"questions"`
}

// RoomAnswerRequest is a participant's answer to one room question.
type RoomAnswerRequest struct {
	RoomCode       string `json:"room_code"`
	RoomQuestionID string `json:"room_question_id"`
	Answer         string `json:"answer"`
}

// RoomAnswerResult acknowledges a stored answer without revealing correctness.
type RoomAnswerResult struct {
	RoomQuestionID   string `json:"room_question_id"`
	SelectedAnswer   string `json:"selected_answer"`
	Answered         int    `json:"answered"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

// LeaderboardView is the gated room leaderboard.
type LeaderboardView struct {
	RoomCode     string                 `json:"room_code"`
	Status       domain.RoomStatus      `json:"status"`
	ResultsReady bool                   `json:"results_ready"`
	TotalMarks   float64                `json:"total_marks"`
	Entries      []domain.StandingEntry `json:"entries"`
}

// ReviewItem is one question of the post-game review.
type ReviewItem struct {
	Number         int             `json:"number"`
	RoomQuestionID string          `json:"room_question_id"`
	Text           string          `json:"text"`
	Options        []domain.Option `json:"options,omitempty"`
	CorrectAnswer  string          `json:"correct_answer"`
	SelectedAnswer string          `json:"selected_answer"`
	IsCorrect      *bool           `json:"is_correct"`
	MarksObtained  float64         `json:"marks_obtained"`
	Marks          float64         `json:"marks"`
	NegativeMarks  float64         `json:"negative_marks"`
}

// deadline returns when the relevant clock runs out and whether it has started at all.
func clockStart(room domain.Room, participant domain.RoomParticipant) *time.Time {
	if room.AttemptMode == domain.Individual {
		return participant.StartTime
	}
	return room.StartTime
}

func deadline(room domain.Room, participant domain.RoomParticipant) (time.Time, bool) {
	start := clockStart(room, participant)
	if start == nil {
		return time.Time{}, false
	}
	end := start.Add(room.Duration())
	if end.After(room.ExpiresAt) {
		end = room.ExpiresAt
	}
	return end, true
}

func remainingSeconds(room domain.Room, participant domain.RoomParticipant, now time.Time) int {
	if room.Status != domain.RoomActive {
		return 0
	}
	end, started := deadline(room, participant)
	if !started {
		return room.DurationSeconds
	}
	left := int(end.Sub(now).Seconds())
	if left < 0 {
		return 0
	}
	return left
}

// hydrate attaches bank content to room questions.
func (s *RoomService) hydrate(ctx context.Context, questions []domain.RoomQuestion) ([]domain.RoomQuestion, error) {
	ids := make([]string, len(questions))
	for i, q := range questions {
		ids[i] = q.QuestionID
	}
	if len(ids) == 0 {
		return questions, nil
	}
	content, err := loadQuestions(ctx, s.bank, ids)
	if err != nil {
		return nil, err
	}
	for i := range questions {
		questions[i].Question = content[questions[i].QuestionID]
	}
	return questions, nil
}

// Questions returns the caller's stable randomized view of the room and their remaining time.
func (s *RoomService) Questions(ctx context.Context, p domain.Principal, code string) (RoomQuestionsView, error) {
	room, err := s.load(ctx, s.store, code)
	if err != nil {
		return RoomQuestionsView{}, err
	}
	participant, err := s.joinedParticipant(ctx, s.store, room, p.UserID)
	if err != nil {
		return RoomQuestionsView{}, err
	}
	if room.Status == domain.RoomWaiting {
		return RoomQuestionsView{}, domain.NewStateError(string(room.Status), "room has not started yet")
	}

	s.rndMu.Lock()
	candidate := s.rnd.Int63()
	s.rndMu.Unlock()
	seed, err := s.store.Rooms().AssignSeed(ctx, participant.ID, candidate)
	if err != nil {
		return RoomQuestionsView{}, err
	}
	if room.AttemptMode == domain.Individual && room.Status == domain.RoomActive {
		started, err := s.store.Rooms().StartClock(ctx, participant.ID, s.settings.Now())
		if err != nil {
			return RoomQuestionsView{}, err
		}
		participant.StartTime = &started
	}

	questions, err := s.store.Rooms().ListQuestions(ctx, room.ID)
	if err != nil {
		return RoomQuestionsView{}, err
	}
	if questions, err = s.hydrate(ctx, questions); err != nil {
		return RoomQuestionsView{}, err
	}
	attempts, err := s.store.Rooms().ListAttempts(ctx, room.ID)
	if err != nil {
		return RoomQuestionsView{}, err
	}
	selected := make(map[string]string)
	for _, a := range attempts {
		if a.ParticipantID == participant.ID {
			selected[a.RoomQuestionID] = a.SelectedAnswer
		}
	}

	questions = scoring.Shuffle(questions, seed)
	views := make([]QuestionView, len(questions))
	for i, rq := range questions {
		v := questionView(rq.ID, rq.Number, rq.Question)
		if room.RandomizationMode == domain.RandomizeQuestionsAndOptions && len(v.Options) > 1 {
			v.Options = scoring.Shuffle(v.Options, seed+int64(rq.Number))
		}
		v.SelectedAnswer = selected[rq.ID]
		views[i] = v
	}

	return RoomQuestionsView{
		RoomCode:         room.Code,
		Status:           room.Status,
		AttemptMode:      room.AttemptMode,
		RemainingSeconds: remainingSeconds(room, participant, s.settings.Now()),
		TotalQuestions:   len(views),
		Questions:        views,
	}, nil
}

// SubmitAnswer scores and stores a participant's answer, overwriting any earlier one.
func (s *RoomService) SubmitAnswer(ctx context.Context, p domain.Principal, req RoomAnswerRequest) (RoomAnswerResult, error) {
	if strings.TrimSpace(req.RoomCode) == "" || strings.TrimSpace(req.RoomQuestionID) == "" {
		return RoomAnswerResult{}, domain.Validationf("room_code and room_question_id are required")
	}
	room, err := s.load(ctx, s.store, req.RoomCode)
	if err != nil {
		return RoomAnswerResult{}, err
	}
	participant, err := s.joinedParticipant(ctx, s.store, room, p.UserID)
	if err != nil {
		return RoomAnswerResult{}, err
	}
	now := s.settings.Now()
	if room.Expired(now) {
		return RoomAnswerResult{}, domain.NewStateError(string(room.Status), "room has expired")
	}
	if room.Status != domain.RoomActive {
		return RoomAnswerResult{}, domain.NewStateError(string(room.Status), "room is not active")
	}
	if room.AttemptMode == domain.Individual && participant.StartTime == nil {
		started, err := s.store.Rooms().StartClock(ctx, participant.ID, now)
		if err != nil {
			return RoomAnswerResult{}, err
		}
		participant.StartTime = &started
	}
	if end, started := deadline(room, participant); started && now.After(end) {
		return RoomAnswerResult{}, &domain.StateError{
			Status: string(room.Status),
			Msg:    "time window has closed",
			Extra:  map[string]any{"remaining_seconds": 0},
		}
	}

	questions, err := s.store.Rooms().ListQuestions(ctx, room.ID)
	if err != nil {
		return RoomAnswerResult{}, err
	}
	var target *domain.RoomQuestion
	for i := range questions {
		if questions[i].ID == req.RoomQuestionID {
			target = &questions[i]
			break
		}
	}
	if target == nil {
		return RoomAnswerResult{}, domain.ErrQuestionNotFound
	}
	question, err := s.bank.Get(ctx, target.QuestionID)
	if err != nil {
		return RoomAnswerResult{}, err
	}

	// Seconds on the participant's clock at submission.
	spent := 0
	if start := clockStart(room, participant); start != nil {
		spent = int(now.Sub(*start).Seconds())
	}
	if spent < 0 {
		spent = 0
	}
	if spent > room.DurationSeconds {
		spent = room.DurationSeconds
	}
	result := scoring.Score(question, req.Answer)
	stored, err := s.store.Rooms().UpsertAttempt(ctx, domain.ParticipantAttempt{
		ID:               newID(),
		ParticipantID:    participant.ID,
		RoomQuestionID:   target.ID,
		SelectedAnswer:   strings.TrimSpace(req.Answer),
		IsCorrect:        result.IsCorrect,
		MarksObtained:    result.Marks,
		TimeSpentSeconds: spent,
		SubmittedAt:      now,
	})
	if err != nil {
		return RoomAnswerResult{}, err
	}

	attempts, err := s.store.Rooms().ListAttempts(ctx, room.ID)
	if err != nil {
		return RoomAnswerResult{}, err
	}
	answered := 0
	for _, a := range attempts {
		if a.ParticipantID == participant.ID && a.SelectedAnswer != "" {
			answered++
		}
	}
	s.publish(ctx, domain.RoomEvent{Type: "progress", RoomCode: room.Code, UserID: p.UserID, Answered: answered})

	return RoomAnswerResult{
		RoomQuestionID:   stored.RoomQuestionID,
		SelectedAnswer:   stored.SelectedAnswer,
		Answered:         answered,
		RemainingSeconds: remainingSeconds(room, participant, now),
	}, nil
}

// roomResults is everything needed to rank or review a room.
type roomResults struct {
	room         domain.Room
	questions    []domain.RoomQuestion
	participants []domain.RoomParticipant
	attempts     []domain.ParticipantAttempt
}

func (s *RoomService) results(ctx context.Context, room domain.Room) (roomResults, error) {
	questions, err := s.store.Rooms().ListQuestions(ctx, room.ID)
	if err != nil {
		return roomResults{}, err
	}
	if questions, err = s.hydrate(ctx, questions); err != nil {
		return roomResults{}, err
	}
	participants, err := s.store.Rooms().ListParticipants(ctx, room.ID)
	if err != nil {
		return roomResults{}, err
	}
	attempts, err := s.store.Rooms().ListAttempts(ctx, room.ID)
	if err != nil {
		return roomResults{}, err
	}
	return roomResults{room: room, questions: questions, participants: participants, attempts: attempts}, nil
}

func (r roomResults) standings() []domain.StandingEntry {
	return ranking.RoomStandings(r.questions, r.participants, r.attempts)
}

// ready reports whether results may be shown. A completed room always qualifies; an
// ALL_AT_ONCE room also qualifies once every joined participant answered every question.
// INDIVIDUAL rooms wait for the host or the expiry.
func (r roomResults) ready() bool {
	if r.room.Status == domain.RoomCompleted {
		return true
	}
	if r.room.AttemptMode != domain.AllAtOnce || r.room.Status != domain.RoomActive || len(r.questions) == 0 {
		return false
	}
	answered := make(map[string]int)
	for _, a := range r.attempts {
		if a.SelectedAnswer != "" {
			answered[a.ParticipantID]++
		}
	}
	for _, p := range r.participants {
		if p.Status == domain.ParticipantJoined && answered[p.ID] < len(r.questions) {
			return false
		}
	}
	return true
}

func resultsPending(room domain.Room) error {
	return &domain.StateError{
		Status: string(room.Status),
		Msg:    "results are not ready yet",
		Extra:  map[string]any{"results_ready": false},
	}
}

// gated loads results for a member of the room and enforces the availability gate.
func (s *RoomService) gated(ctx context.Context, p domain.Principal, code string) (roomResults, domain.RoomParticipant, error) {
	room, err := s.load(ctx, s.store, code)
	if err != nil {
		return roomResults{}, domain.RoomParticipant{}, err
	}
	participant, err := s.joinedParticipant(ctx, s.store, room, p.UserID)
	if err != nil {
		return roomResults{}, domain.RoomParticipant{}, err
	}
	data, err := s.results(ctx, room)
	if err != nil {
		return roomResults{}, domain.RoomParticipant{}, err
	}
	if !data.ready() {
		return roomResults{}, domain.RoomParticipant{}, resultsPending(room)
	}
	return data, participant, nil
}

// Leaderboard returns the ranked standings once results are available.
func (s *RoomService) Leaderboard(ctx context.Context, p domain.Principal, code string) (LeaderboardView, error) {
	data, _, err := s.gated(ctx, p, code)
	if err != nil {
		return LeaderboardView{}, err
	}
	var total float64
	for _, q := range data.questions {
		total += q.Question.Marks
	}
	return LeaderboardView{
		RoomCode:     data.room.Code,
		Status:       data.room.Status,
		ResultsReady: true,
		TotalMarks:   total,
		Entries:      data.standings(),
	}, nil
}

// Review returns every room question with its correct answer and the caller's response.
func (s *RoomService) Review(ctx context.Context, p domain.Principal, code string) ([]ReviewItem, error) {
	data, participant, err := s.gated(ctx, p, code)
	if err != nil {
		return nil, err
	}
	mine := make(map[string]domain.ParticipantAttempt)
	for _, a := range data.attempts {
		if a.ParticipantID == participant.ID {
			mine[a.RoomQuestionID] = a
		}
	}
	items := make([]ReviewItem, 0, len(data.questions))
	for _, rq := range data.questions {
		a := mine[rq.ID]
		items = append(items, ReviewItem{
			Number:         rq.Number,
			RoomQuestionID: rq.ID,
			Text:           rq.Question.Text,
			Options:        rq.Question.Options,
			CorrectAnswer:  rq.Question.CorrectAnswer,
			SelectedAnswer: a.SelectedAnswer,
			IsCorrect:      a.IsCorrect,
			MarksObtained:  a.MarksObtained,
			Marks:          rq.Question.Marks,
			NegativeMarks:  rq.Question.NegativeMarks,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Number < items[j].Number })
	return items, nil
}

// Unattempted lists the room questions the caller has not answered.
func (s *RoomService) Unattempted(ctx context.Context, p domain.Principal, code string) ([]QuestionView, error) {
	room, err := s.load(ctx, s.store, code)
	if err != nil {
		return nil, err
	}
	participant, err := s.joinedParticipant(ctx, s.store, room, p.UserID)
	if err != nil {
		return nil, err
	}
	if room.Status == domain.RoomWaiting {
		return nil, domain.NewStateError(string(room.Status), "room has not started yet")
	}
	data, err := s.results(ctx, room)
	if err != nil {
		return nil, err
	}
	answered := make(map[string]bool)
	for _, a := range data.attempts {
		if a.ParticipantID == participant.ID && a.SelectedAnswer != "" {
			answered[a.RoomQuestionID] = true
		}
	}
	views := []QuestionView{}
	for _, rq := range data.questions {
		if !answered[rq.ID] {
			views = append(views, questionView(rq.ID, rq.Number, rq.Question))
		}
	}
	return views, nil
}

// ExpireAndFinish applies lazy expiry to one room and sends its results notifications.
// Used by the background sweep.
func (s *RoomService) ExpireAndFinish(ctx context.Context, room domain.Room) (bool, error) {
	updated, err := s.expireIfDue(ctx, s.store, room)
	if err != nil {
		return false, err
	}
	if updated.Status != domain.RoomCompleted {
		return false, nil
	}
	if err := s.finish(ctx, updated); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return true, err
	}
	return true, nil
}
