package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"exam-arena-service/internal/app"
	"exam-arena-service/internal/domain"
	"exam-arena-service/internal/infra/memory"
	"exam-arena-service/internal/security"
	"github.com/go-chi/jwtauth/v5"
)

type testEnv struct {
	server *httptest.Server
	auth   *jwtauth.JWTAuth
	rooms  *app.RoomService
}

func newTestEnv(t *testing.T, questions int) *testEnv {
	t.Helper()
	store := memory.NewStore()
	bank := memory.NewQuestionBank(sampleQuestions(questions)...)
	settings := app.DefaultSettings()
	ledger := app.NewLedger(store, settings)
	rooms := app.NewRoomService(store, bank, memory.NewOutbox(), memory.NewRoomHub(), settings)
	auth := security.NewTokenAuth("test-secret")

	router := NewRouter(Services{
		Attempts:  app.NewAttemptService(store, bank, ledger, settings),
		Rooms:     rooms,
		Tests:     app.NewTestGenerator(store, bank, settings),
		Ledger:    ledger,
		Referrals: app.NewReferralService(store, memory.NewOutbox(), settings),
	}, auth)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testEnv{server: server, auth: auth, rooms: rooms}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := security.GenerateToken(e.auth, domain.Principal{UserID: userID, Name: userID}, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]interface{}{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestHealthzIsPublic(t *testing.T) {
	env := newTestEnv(t, 0)
	resp, err := http.Get(env.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	env := newTestEnv(t, 0)
	code, body := env.do(t, http.MethodGet, "/api/v1/me/xp", "", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if body["detail"] == nil {
		t.Fatalf("expected detail in envelope, got %v", body)
	}
}

func TestAttemptFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t, 5)

	code, test := env.do(t, http.MethodPost, "/api/v1/tests/generate", "s1", map[string]interface{}{
		"kind": "practice", "exam": "JEE", "count": 3,
	})
	if code != http.StatusCreated {
		t.Fatalf("generate: expected 201, got %d (%v)", code, test)
	}
	ids, _ := test["question_ids"].([]interface{})
	if len(ids) != 3 {
		t.Fatalf("expected 3 questions, got %v", test["question_ids"])
	}
	testID := test["id"].(string)

	code, attempt := env.do(t, http.MethodPost, "/api/v1/attempts", "s1", map[string]string{"test_id": testID})
	if code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d (%v)", code, attempt)
	}
	if attempt["status"] != "in_progress" {
		t.Fatalf("expected in_progress, got %v", attempt["status"])
	}
	attemptID := attempt["id"].(string)

	code, ans := env.do(t, http.MethodPost, "/api/v1/attempts/"+attemptID+"/answers", "s1", map[string]string{
		"question_id": ids[0].(string), "answer": " a ",
	})
	if code != http.StatusOK || ans["is_correct"] != true {
		t.Fatalf("answer: got %d %v", code, ans)
	}

	code, other := env.do(t, http.MethodGet, "/api/v1/attempts/"+attemptID, "s2", nil)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 for another student, got %d (%v)", code, other)
	}

	code, pending := env.do(t, http.MethodGet, "/api/v1/attempts/"+attemptID+"/unattempted", "s1", nil)
	if code != http.StatusOK || pending["count"] != float64(2) {
		t.Fatalf("unattempted: got %d %v", code, pending)
	}

	code, result := env.do(t, http.MethodPost, "/api/v1/attempts/"+attemptID+"/submit", "s1", nil)
	if code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d (%v)", code, result)
	}
	final := result["attempt"].(map[string]interface{})
	// one correct answer, two blanks: 4 marks out of 12
	if final["score"] != float64(4) || final["percentile"] != float64(100) {
		t.Fatalf("unexpected result %v", final)
	}

	code, again := env.do(t, http.MethodPost, "/api/v1/attempts/"+attemptID+"/submit", "s1", nil)
	if code != http.StatusBadRequest || again["detail"] != "attempt already submitted" || again["status"] != "completed" {
		t.Fatalf("second submit: got %d %v", code, again)
	}

	code, restart := env.do(t, http.MethodPost, "/api/v1/attempts", "s1", map[string]string{"test_id": testID})
	if code != http.StatusBadRequest || restart["attempt_id"] != attemptID {
		t.Fatalf("restart: got %d %v", code, restart)
	}

	code, board := env.do(t, http.MethodGet, "/api/v1/tests/"+testID+"/leaderboard", "s1", nil)
	entries, _ := board["entries"].([]interface{})
	if code != http.StatusOK || len(entries) != 1 {
		t.Fatalf("leaderboard: got %d %v", code, board)
	}

	code, xp := env.do(t, http.MethodGet, "/api/v1/me/xp", "s1", nil)
	// completion 10 + first test of day 50
	if code != http.StatusOK || xp["total_xp"] != float64(60) {
		t.Fatalf("xp summary: got %d %v", code, xp)
	}
}

func TestCreateRoomReportsInsufficientQuestions(t *testing.T) {
	env := newTestEnv(t, 2)
	code, body := env.do(t, http.MethodPost, "/api/v1/rooms", "host", map[string]interface{}{
		"exam": "JEE", "question_count": 5, "time_per_question_seconds": 60,
	})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%v)", code, body)
	}
	if body["available"] != float64(2) || body["requested"] != float64(5) {
		t.Fatalf("expected counts in envelope, got %v", body)
	}
}

func TestRoomLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, 3)

	code, room := env.do(t, http.MethodPost, "/api/v1/rooms", "host", map[string]interface{}{
		"exam": "JEE", "question_count": 2, "time_per_question_seconds": 60,
	})
	if code != http.StatusCreated {
		t.Fatalf("create: got %d %v", code, room)
	}
	roomCode := room["code"].(string)

	if code, _ := env.do(t, http.MethodGet, "/api/v1/rooms/NOPE00", "host", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown room, got %d", code)
	}
	if code, body := env.do(t, http.MethodPost, "/api/v1/rooms/"+roomCode+"/join", "p1", nil); code != http.StatusOK {
		t.Fatalf("join: got %d %v", code, body)
	}
	if code, _ := env.do(t, http.MethodPost, "/api/v1/rooms/"+roomCode+"/start", "p1", nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 when a participant starts, got %d", code)
	}
	if code, body := env.do(t, http.MethodGet, "/api/v1/rooms/"+roomCode+"/questions", "p1", nil); code != http.StatusBadRequest || body["status"] != "waiting" {
		t.Fatalf("questions before start: got %d %v", code, body)
	}
	if code, body := env.do(t, http.MethodPost, "/api/v1/rooms/"+roomCode+"/start", "host", nil); code != http.StatusOK {
		t.Fatalf("start: got %d %v", code, body)
	}

	code, view := env.do(t, http.MethodGet, "/api/v1/rooms/"+roomCode+"/questions", "p1", nil)
	if code != http.StatusOK {
		t.Fatalf("questions: got %d %v", code, view)
	}
	questions := view["questions"].([]interface{})
	first := questions[0].(map[string]interface{})
	if _, leaked := first["correct_answer"]; leaked {
		t.Fatalf("question view leaks the correct answer: %v", first)
	}

	code, ack := env.do(t, http.MethodPost, "/api/v1/attempts/submit", "p1", map[string]interface{}{
		"room_code": roomCode, "room_question_id": first["id"], "answer": "A",
	})
	if code != http.StatusOK || ack["answered"] != float64(1) {
		t.Fatalf("room answer: got %d %v", code, ack)
	}
	if _, revealed := ack["is_correct"]; revealed {
		t.Fatalf("room answer reveals correctness: %v", ack)
	}

	if code, body := env.do(t, http.MethodGet, "/api/v1/rooms/"+roomCode+"/leaderboard", "p1", nil); code != http.StatusBadRequest || body["results_ready"] != false {
		t.Fatalf("leaderboard before end: got %d %v", code, body)
	}
	if code, body := env.do(t, http.MethodPost, "/api/v1/rooms/"+roomCode+"/end", "host", nil); code != http.StatusOK {
		t.Fatalf("end: got %d %v", code, body)
	}
	if code, body := env.do(t, http.MethodPost, "/api/v1/rooms/"+roomCode+"/end", "host", nil); code != http.StatusOK || body["message"] != "room already ended" {
		t.Fatalf("second end: got %d %v", code, body)
	}

	code, board := env.do(t, http.MethodGet, "/api/v1/rooms/"+roomCode+"/leaderboard", "p1", nil)
	if code != http.StatusOK {
		t.Fatalf("leaderboard: got %d %v", code, board)
	}
	entries := board["entries"].([]interface{})
	top := entries[0].(map[string]interface{})
	if top["user_id"] != "p1" || top["rank"] != float64(1) {
		t.Fatalf("expected p1 on top, got %v", entries)
	}
}

func TestStatusFromError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.Validationf("bad"), http.StatusBadRequest},
		{domain.NewStateError("waiting", "not started"), http.StatusBadRequest},
		{domain.ErrAlreadySubmitted, http.StatusBadRequest},
		{&domain.InsufficientQuestionsError{Available: 1, Requested: 2}, http.StatusBadRequest},
		{domain.ErrInsufficientFunds, http.StatusForbidden},
		{fmt.Errorf("wrapped: %w", domain.ErrRoomNotFound), http.StatusNotFound},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrDuplicate, http.StatusConflict},
		{fmt.Errorf("insert room: %w", domain.ErrDuplicate), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFromError(tc.err); got != tc.want {
			t.Fatalf("statusFromError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func sampleQuestions(n int) []domain.Question {
	out := make([]domain.Question, n)
	for i := range out {
		out[i] = domain.Question{
			Text: fmt.Sprintf("Question %d", i+1),
			Type: domain.QuestionMCQ,
			Options: []domain.Option{
				{Label: "A", Text: "right"},
				{Label: "B", Text: "wrong"},
				{Label: "C", Text: "wrong"},
				{Label: "D", Text: "wrong"},
			},
			CorrectAnswer: "A",
			Marks:         4,
			NegativeMarks: 1,
			Difficulty:    "easy",
			Subject:       "physics",
			Exam:          "JEE",
			Year:          2023,
			Active:        true,
		}
	}
	return out
}
