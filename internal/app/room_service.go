package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"exam-arena-service/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CreateRoomRequest is the host's room configuration plus the auto-adjust opt-in.
type CreateRoomRequest struct {
	domain.RoomConfig
	AutoAdjust bool `json:"auto_adjust"`
}

// RoomView is the room detail returned to clients.
type RoomView struct {
	domain.Room
	Participants []domain.RoomParticipant `json:"participants"`
	IsHost       bool                     `json:"is_host"`
	Message      string                   `json:"message,omitempty"`
}

// RoomService is the room lifecycle manager. Expiry is observed lazily on every access;
// the optional Sweeper only speeds that up.
type RoomService struct {
	store    Store
	bank     QuestionBank
	notifier Notifier
	hub      RoomHub
	settings Settings

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewRoomService(store Store, bank QuestionBank, notifier Notifier, hub RoomHub, settings Settings) *RoomService {
	settings = settings.withDefaults()
	return &RoomService{
		store:    store,
		bank:     bank,
		notifier: notifier,
		hub:      hub,
		settings: settings,
		rnd:      rand.New(rand.NewSource(settings.Now().UnixNano())),
	}
}

func (s *RoomService) validateConfig(cfg *domain.RoomConfig) error {
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.Exam = strings.TrimSpace(cfg.Exam)
	if cfg.Exam == "" {
		return domain.Validationf("exam is required")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Exam + " room"
	}
	if cfg.QuestionCount < 1 || cfg.QuestionCount > s.settings.MaxQuestionsPerRoom {
		return domain.Validationf("question_count must be between 1 and %d", s.settings.MaxQuestionsPerRoom)
	}
	tpq := time.Duration(cfg.TimePerQuestionSeconds) * time.Second
	if tpq < s.settings.MinTimePerQuestion || tpq > s.settings.MaxTimePerQuestion {
		return domain.Validationf("time_per_question_seconds must be between %d and %d",
			int(s.settings.MinTimePerQuestion.Seconds()), int(s.settings.MaxTimePerQuestion.Seconds()))
	}
	if cfg.ParticipantLimit < 0 {
		return domain.Validationf("participant_limit cannot be negative")
	}
	switch cfg.AttemptMode {
	case "":
		cfg.AttemptMode = domain.AllAtOnce
	case domain.AllAtOnce, domain.Individual:
	default:
		return domain.Validationf("unknown attempt_mode %q", cfg.AttemptMode)
	}
	switch cfg.RandomizationMode {
	case "":
		cfg.RandomizationMode = domain.RandomizeQuestions
	case domain.RandomizeQuestions, domain.RandomizeQuestionsAndOptions:
	default:
		return domain.Validationf("unknown randomization_mode %q", cfg.RandomizationMode)
	}
	switch cfg.Privacy {
	case "":
		cfg.Privacy = domain.RoomPublic
	case domain.RoomPublic:
	case domain.RoomPrivate:
		if cfg.Password == "" {
			return domain.Validationf("private rooms require a password")
		}
	default:
		return domain.Validationf("unknown privacy %q", cfg.Privacy)
	}
	return nil
}

// selectQuestions checks the pool size and samples count questions from it.
func (s *RoomService) selectQuestions(ctx context.Context, cfg *domain.RoomConfig, autoAdjust bool) ([]domain.Question, error) {
	filter := cfg.Filter()
	available, err := s.bank.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	if available < cfg.QuestionCount {
		if !autoAdjust || available == 0 {
			return nil, &domain.InsufficientQuestionsError{Available: available, Requested: cfg.QuestionCount}
		}
		cfg.QuestionCount = available
	}
	pool, err := s.bank.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	if len(pool) < cfg.QuestionCount {
		return nil, &domain.InsufficientQuestionsError{Available: len(pool), Requested: cfg.QuestionCount}
	}

	s.rndMu.Lock()
	perm := s.rnd.Perm(len(pool))
	s.rndMu.Unlock()
	picked := make([]domain.Question, cfg.QuestionCount)
	for i := range picked {
		picked[i] = pool[perm[i]]
	}
	return picked, nil
}

func roomQuestions(roomID string, picked []domain.Question) []domain.RoomQuestion {
	out := make([]domain.RoomQuestion, len(picked))
	for i, q := range picked {
		out[i] = domain.RoomQuestion{ID: newID(), RoomID: roomID, QuestionID: q.ID, Number: i + 1, Question: q}
	}
	return out
}

func (s *RoomService) newCode(ctx context.Context, store Store) (string, error) {
	for i := 0; i < 8; i++ {
		s.rndMu.Lock()
		b := make([]byte, 6)
		for j := range b {
			b[j] = roomCodeAlphabet[s.rnd.Intn(len(roomCodeAlphabet))]
		}
		s.rndMu.Unlock()
		code := string(b)
		if _, err := store.Rooms().GetByCode(ctx, code); errors.Is(err, domain.ErrNotFound) {
			return code, nil
		} else if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: could not allocate a room code", domain.ErrConflict)
}

// Create validates the configuration, samples the questions, and in one transaction takes a
// credit from the host, stores the room with its numbered questions, and joins the host.
func (s *RoomService) Create(ctx context.Context, p domain.Principal, req CreateRoomRequest) (RoomView, error) {
	cfg := req.RoomConfig
	if err := s.validateConfig(&cfg); err != nil {
		return RoomView{}, err
	}
	student, err := ensureStudent(ctx, s.store, p, s.settings)
	if err != nil {
		return RoomView{}, err
	}
	picked, err := s.selectQuestions(ctx, &cfg, req.AutoAdjust)
	if err != nil {
		return RoomView{}, err
	}

	now := s.settings.Now()
	room := roomFromConfig(cfg)
	room.ID = newID()
	room.HostID = p.UserID
	room.Status = domain.RoomWaiting
	room.CreatedAt = now
	room.ExpiresAt = now.Add(s.settings.RoomExpiry)
	if cfg.Privacy == domain.RoomPrivate {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return RoomView{}, fmt.Errorf("hash room password: %w", err)
		}
		room.PasswordHash = string(hash)
	}
	host := domain.RoomParticipant{
		ID:       newID(),
		RoomID:   room.ID,
		UserID:   p.UserID,
		Name:     student.Name,
		Status:   domain.ParticipantJoined,
		JoinedAt: now,
	}

	err = s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.Students().DeductRoomCredit(ctx, p.UserID); err != nil {
			return err
		}
		code, err := s.newCode(ctx, tx)
		if err != nil {
			return err
		}
		room.Code = code
		if err := tx.Rooms().Create(ctx, room); err != nil {
			return fmt.Errorf("create room: %w", err)
		}
		if err := tx.Rooms().ReplaceQuestions(ctx, room.ID, roomQuestions(room.ID, picked)); err != nil {
			return fmt.Errorf("materialize room questions: %w", err)
		}
		return tx.Rooms().AddParticipant(ctx, host)
	})
	if err != nil {
		return RoomView{}, err
	}
	log.Printf("room %s created by %s with %d questions", room.Code, p.UserID, len(picked))
	return RoomView{Room: room, Participants: []domain.RoomParticipant{host}, IsHost: true}, nil
}

func roomFromConfig(cfg domain.RoomConfig) domain.Room {
	return domain.Room{
		Name:                   cfg.Name,
		Exam:                   cfg.Exam,
		Subjects:               cfg.Subjects,
		Difficulty:             cfg.Difficulty,
		QuestionType:           cfg.QuestionType,
		QuestionCount:          cfg.QuestionCount,
		TimePerQuestionSeconds: cfg.TimePerQuestionSeconds,
		DurationSeconds:        cfg.QuestionCount * cfg.TimePerQuestionSeconds,
		Privacy:                cfg.Privacy,
		AttemptMode:            cfg.AttemptMode,
		RandomizationMode:      cfg.RandomizationMode,
		ParticipantLimit:       cfg.ParticipantLimit,
	}
}

// load fetches a room by code and applies lazy expiry.
func (s *RoomService) load(ctx context.Context, store Store, code string) (domain.Room, error) {
	room, err := store.Rooms().GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return domain.Room{}, err
	}
	return s.expireIfDue(ctx, store, room)
}

// expireIfDue completes a waiting or active room whose 24h window has passed.
func (s *RoomService) expireIfDue(ctx context.Context, store Store, room domain.Room) (domain.Room, error) {
	if room.Status != domain.RoomWaiting && room.Status != domain.RoomActive {
		return room, nil
	}
	if !room.Expired(s.settings.Now()) {
		return room, nil
	}
	from := room.Status
	room.Status = domain.RoomCompleted
	if err := store.Rooms().TransitionStatus(ctx, room, from); err != nil {
		if errors.Is(err, domain.ErrState) {
			return store.Rooms().GetByCode(ctx, room.Code)
		}
		return domain.Room{}, err
	}
	log.Printf("room %s expired", room.Code)
	return room, nil
}

func (s *RoomService) view(ctx context.Context, room domain.Room, userID, message string) (RoomView, error) {
	participants, err := s.store.Rooms().ListParticipants(ctx, room.ID)
	if err != nil {
		return RoomView{}, err
	}
	return RoomView{Room: room, Participants: participants, IsHost: room.HostID == userID, Message: message}, nil
}

// Get returns the room detail.
func (s *RoomService) Get(ctx context.Context, p domain.Principal, code string) (RoomView, error) {
	room, err := s.load(ctx, s.store, code)
	if err != nil {
		return RoomView{}, err
	}
	return s.view(ctx, room, p.UserID, "")
}

// ListPublic returns public rooms still waiting for players.
func (s *RoomService) ListPublic(ctx context.Context, limit int) ([]domain.Room, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.Rooms().ListPublicWaiting(ctx, s.settings.Now(), limit)
}

// Update changes the configuration while the room waits and nobody besides the host joined.
func (s *RoomService) Update(ctx context.Context, p domain.Principal, code string, req CreateRoomRequest) (RoomView, error) {
	cfg := req.RoomConfig
	if err := s.validateConfig(&cfg); err != nil {
		return RoomView{}, err
	}
	room, err := s.load(ctx, s.store, code)
	if err != nil {
		return RoomView{}, err
	}
	if room.HostID != p.UserID {
		return RoomView{}, domain.ErrNotRoomHost
	}
	if room.Status != domain.RoomWaiting {
		return RoomView{}, domain.NewStateError(string(room.Status), "room configuration can only change while waiting")
	}
	participants, err := s.store.Rooms().ListParticipants(ctx, room.ID)
	if err != nil {
		return RoomView{}, err
	}
	for _, participant := range participants {
		if participant.UserID != room.HostID {
			return RoomView{}, domain.NewStateError(string(room.Status), "room configuration is locked once participants join")
		}
	}
	picked, err := s.selectQuestions(ctx, &cfg, req.AutoAdjust)
	if err != nil {
		return RoomView{}, err
	}

	updated := roomFromConfig(cfg)
	updated.ID, updated.Code, updated.HostID = room.ID, room.Code, room.HostID
	updated.Status, updated.CreatedAt, updated.ExpiresAt = room.Status, room.CreatedAt, room.ExpiresAt
	updated.PasswordHash = room.PasswordHash
	if cfg.Privacy == domain.RoomPrivate {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return RoomView{}, fmt.Errorf("hash room password: %w", err)
		}
		updated.PasswordHash = string(hash)
	} else {
		updated.PasswordHash = ""
	}

	err = s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.Rooms().UpdateConfig(ctx, updated); err != nil {
			return err
		}
		return tx.Rooms().ReplaceQuestions(ctx, room.ID, roomQuestions(room.ID, picked))
	})
	if err != nil {
		return RoomView{}, err
	}
	return s.view(ctx, updated, p.UserID, "")
}

// Join adds the caller to a waiting room.
func (s *RoomService) Join(ctx context.Context, p domain.Principal, code, password string) (RoomView, error) {
	student, err := ensureStudent(ctx, s.store, p, s.settings)
	if err != nil {
		return RoomView{}, err
	}
	var room domain.Room
	err = s.store.WithinTx(ctx, func(tx Store) error {
		room, err = s.load(ctx, tx, code)
		if err != nil {
			return err
		}
		if room.Status != domain.RoomWaiting {
			if room.Expired(s.settings.Now()) {
				return domain.NewStateError(string(room.Status), "room has expired")
			}
			return domain.NewStateError(string(room.Status), "room is not accepting participants")
		}

		existing, err := tx.Rooms().GetParticipant(ctx, room.ID, p.UserID)
		rejoin := false
		switch {
		case err == nil && existing.Status == domain.ParticipantJoined:
			return domain.Validationf("you have already joined this room")
		case err == nil && existing.Status == domain.ParticipantKicked:
			return domain.ErrKicked
		case err == nil:
			rejoin = true
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		if room.Privacy == domain.RoomPrivate {
			if bcrypt.CompareHashAndPassword([]byte(room.PasswordHash), []byte(password)) != nil {
				return domain.ErrWrongPassword
			}
		}
		if room.ParticipantLimit > 0 {
			joined, err := tx.Rooms().CountJoined(ctx, room.ID)
			if err != nil {
				return err
			}
			if joined >= room.ParticipantLimit {
				return domain.Validationf("room is full")
			}
		}

		now := s.settings.Now()
		if rejoin {
			return tx.Rooms().SetParticipantStatus(ctx, existing.ID, domain.ParticipantJoined, now)
		}
		err = tx.Rooms().AddParticipant(ctx, domain.RoomParticipant{
			ID:       newID(),
			RoomID:   room.ID,
			UserID:   p.UserID,
			Name:     student.Name,
			Status:   domain.ParticipantJoined,
			JoinedAt: now,
		})
		if errors.Is(err, domain.ErrDuplicate) {
			return domain.Validationf("you have already joined this room")
		}
		return err
	})
	if err != nil {
		return RoomView{}, err
	}
	s.publish(ctx, domain.RoomEvent{Type: "participant_joined", RoomCode: room.Code, UserID: p.UserID})
	return s.view(ctx, room, p.UserID, "joined room")
}

// Leave removes the caller from a waiting room. The host cannot leave.
func (s *RoomService) Leave(ctx context.Context, p domain.Principal, code string) error {
	room, err := s.load(ctx, s.store, code)
	if err != nil {
		return err
	}
	if room.HostID == p.UserID {
		return domain.Validationf("the host cannot leave the room")
	}
	if room.Status != domain.RoomWaiting {
		return domain.NewStateError(string(room.Status), "participants can only leave before the room starts")
	}
	participant, err := s.joinedParticipant(ctx, s.store, room, p.UserID)
	if err != nil {
		return err
	}
	if err := s.store.Rooms().SetParticipantStatus(ctx, participant.ID, domain.ParticipantLeft, s.settings.Now()); err != nil {
		return err
	}
	s.publish(ctx, domain.RoomEvent{Type: "participant_left", RoomCode: room.Code, UserID: p.UserID})
	return nil
}

// Kick removes a participant from a waiting room. Host only.
func (s *RoomService) Kick(ctx context.Context, p domain.Principal, code, userID string) error {
	room, err := s.load(ctx, s.store, code)
	if err != nil {
		return err
	}
	if room.HostID != p.UserID {
		return domain.ErrNotRoomHost
	}
	if room.Status != domain.RoomWaiting {
		return domain.NewStateError(string(room.Status), "participants can only be removed before the room starts")
	}
	if userID == room.HostID {
		return domain.Validationf("the host cannot be removed")
	}
	participant, err := s.store.Rooms().GetParticipant(ctx, room.ID, userID)
	if err != nil {
		return err
	}
	if participant.Status != domain.ParticipantJoined {
		return domain.ErrParticipantNotFound
	}
	if err := s.store.Rooms().SetParticipantStatus(ctx, participant.ID, domain.ParticipantKicked, s.settings.Now()); err != nil {
		return err
	}
	s.notify(ctx, domain.Notification{
		UserID:     userID,
		Category:   "room",
		Message:    fmt.Sprintf("You were removed from room %s", room.Name),
		ActionType: "room_kicked",
		ActionData: map[string]string{"room_code": room.Code},
	})
	s.publish(ctx, domain.RoomEvent{Type: "participant_kicked", RoomCode: room.Code, UserID: userID})
	return nil
}

// Start moves a waiting room to active. Host only. ALL_AT_ONCE rooms get a shared clock;
// INDIVIDUAL rooms start each participant's clock on first access.
func (s *RoomService) Start(ctx context.Context, p domain.Principal, code string) (RoomView, error) {
	room, err := s.load(ctx, s.store, code)
	if err != nil {
		return RoomView{}, err
	}
	if room.HostID != p.UserID {
		return RoomView{}, domain.ErrNotRoomHost
	}
	if room.Status != domain.RoomWaiting {
		return RoomView{}, domain.NewStateError(string(room.Status), "room has already started or ended")
	}
	questions, err := s.store.Rooms().ListQuestions(ctx, room.ID)
	if err != nil {
		return RoomView{}, err
	}
	if len(questions) == 0 {
		return RoomView{}, domain.Validationf("room has no questions")
	}

	now := s.settings.Now()
	room.Status = domain.RoomActive
	if room.AttemptMode == domain.AllAtOnce {
		room.StartTime = &now
	}
	if err := s.store.Rooms().TransitionStatus(ctx, room, domain.RoomWaiting); err != nil {
		return RoomView{}, err
	}

	view, err := s.view(ctx, room, p.UserID, "room started")
	if err != nil {
		return RoomView{}, err
	}
	for _, participant := range view.Participants {
		if participant.Status != domain.ParticipantJoined || participant.UserID == room.HostID {
			continue
		}
		s.notify(ctx, domain.Notification{
			UserID:     participant.UserID,
			Category:   "room",
			Message:    fmt.Sprintf("Room %s has started", room.Name),
			ActionType: "room_started",
			ActionData: map[string]string{"room_code": room.Code},
			DedupeKey:  fmt.Sprintf("room:%s:started:%s", room.ID, participant.UserID),
		})
	}
	s.publish(ctx, domain.RoomEvent{Type: "room_started", RoomCode: room.Code, Status: room.Status})
	log.Printf("room %s started in %s mode", room.Code, room.AttemptMode)
	return view, nil
}

// End completes an active room. Host only. Ending an already completed room is a no-op
// that still makes sure the results notifications went out.
func (s *RoomService) End(ctx context.Context, p domain.Principal, code string) (RoomView, error) {
	room, err := s.load(ctx, s.store, code)
	if err != nil {
		return RoomView{}, err
	}
	if room.HostID != p.UserID {
		return RoomView{}, domain.ErrNotRoomHost
	}

	message := "room ended"
	switch room.Status {
	case domain.RoomActive:
		now := s.settings.Now()
		room.Status = domain.RoomCompleted
		room.EndedAt = &now
		if err := s.store.Rooms().TransitionStatus(ctx, room, domain.RoomActive); err != nil {
			if !errors.Is(err, domain.ErrState) {
				return RoomView{}, err
			}
			room, err = s.store.Rooms().GetByCode(ctx, room.Code)
			if err != nil {
				return RoomView{}, err
			}
			message = "room already ended"
		}
	case domain.RoomCompleted:
		message = "room already ended"
	default:
		return RoomView{}, domain.NewStateError(string(room.Status), "room has not started")
	}

	if err := s.finish(ctx, room); err != nil {
		return RoomView{}, err
	}
	return s.view(ctx, room, p.UserID, message)
}

// finish sends the results-ready fan-out once per room and pushes the final standings.
// The room is marked notified only after every enqueue succeeded; per-user dedupe keys
// make a retry after a partial failure safe.
func (s *RoomService) finish(ctx context.Context, room domain.Room) error {
	if room.ResultsNotified {
		return nil
	}
	data, err := s.results(ctx, room)
	if err != nil {
		return err
	}
	for _, participant := range data.participants {
		if participant.Status != domain.ParticipantJoined {
			continue
		}
		err := s.enqueue(ctx, domain.Notification{
			UserID:     participant.UserID,
			Category:   "room",
			Message:    fmt.Sprintf("Results for room %s are ready", room.Name),
			ActionType: "room_results",
			ActionData: map[string]string{"room_code": room.Code},
			DedupeKey:  fmt.Sprintf("room:%s:results:%s", room.ID, participant.UserID),
		})
		if err != nil {
			return fmt.Errorf("results notification for %s: %w", participant.UserID, err)
		}
	}
	first, err := s.store.Rooms().MarkResultsNotified(ctx, room.ID)
	if err != nil {
		return err
	}
	if first {
		s.publish(ctx, domain.RoomEvent{Type: "room_ended", RoomCode: room.Code, Status: domain.RoomCompleted, Entries: data.standings()})
	}
	return nil
}

func (s *RoomService) joinedParticipant(ctx context.Context, store Store, room domain.Room, userID string) (domain.RoomParticipant, error) {
	participant, err := store.Rooms().GetParticipant(ctx, room.ID, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.RoomParticipant{}, domain.ErrNotParticipant
	}
	if err != nil {
		return domain.RoomParticipant{}, err
	}
	if participant.Status != domain.ParticipantJoined {
		return domain.RoomParticipant{}, domain.ErrNotParticipant
	}
	return participant, nil
}

func (s *RoomService) notify(ctx context.Context, n domain.Notification) {
	if err := s.enqueue(ctx, n); err != nil {
		log.Printf("enqueue notification for %s: %v", n.UserID, err)
	}
}

func (s *RoomService) enqueue(ctx context.Context, n domain.Notification) error {
	if s.notifier == nil {
		return nil
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.settings.Now()
	}
	return s.notifier.Enqueue(ctx, n)
}

func (s *RoomService) publish(ctx context.Context, event domain.RoomEvent) {
	if s.hub == nil {
		return
	}
	event.At = s.settings.Now()
	if err := s.hub.Publish(ctx, event); err != nil {
		log.Printf("publish %s for room %s: %v", event.Type, event.RoomCode, err)
	}
}

// Subscribe streams live events of a room to one of its members.
func (s *RoomService) Subscribe(ctx context.Context, p domain.Principal, code string) (<-chan domain.RoomEvent, func(), error) {
	if s.hub == nil {
		return nil, nil, fmt.Errorf("live updates are not configured")
	}
	room, err := s.load(ctx, s.store, code)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.joinedParticipant(ctx, s.store, room, p.UserID); err != nil {
		return nil, nil, err
	}
	return s.hub.Subscribe(ctx, room.Code)
}
