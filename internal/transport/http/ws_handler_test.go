package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"exam-arena-service/internal/app"
	"exam-arena-service/internal/domain"
	"github.com/gorilla/websocket"
)

func TestWebSocketRoomAnswerFlow(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()
	host := domain.Principal{UserID: "host", Name: "Host"}
	player := domain.Principal{UserID: "p1", Name: "Alice"}

	room, err := env.rooms.Create(ctx, host, app.CreateRoomRequest{RoomConfig: domain.RoomConfig{
		Exam: "JEE", QuestionCount: 2, TimePerQuestionSeconds: 60,
	}})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := env.rooms.Join(ctx, player, room.Code, ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := env.rooms.Start(ctx, host, room.Code); err != nil {
		t.Fatalf("start: %v", err)
	}
	view, err := env.rooms.Questions(ctx, player, room.Code)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}

	conn := env.dialLive(t, room.Code, "p1")
	defer conn.Close()

	msgType, payload := readNext(conn, t, "subscribed")
	if payload["room_code"] != room.Code {
		t.Fatalf("expected subscription to %s, got %s %v", room.Code, msgType, payload)
	}

	answer := map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"room_question_id": view.Questions[0].ID,
			"answer":           "A",
		},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	resultSeen := false
	progressSeen := false
	for i := 0; i < 2; i++ {
		typ, payload := readNext(conn, t, "")
		switch typ {
		case "answer_result":
			resultSeen = payload["answered"] == float64(1)
		case "progress":
			progressSeen = payload["user_id"] == "p1"
		}
	}
	if !resultSeen || !progressSeen {
		t.Fatalf("expected answer_result and progress, got answer_result=%v progress=%v", resultSeen, progressSeen)
	}

	if _, err := env.rooms.End(ctx, host, room.Code); err != nil {
		t.Fatalf("end: %v", err)
	}
	typ, payload := readNext(conn, t, "room_ended")
	if payload["status"] != string(domain.RoomCompleted) {
		t.Fatalf("expected completed status on %s, got %v", typ, payload)
	}
}

func TestWebSocketRejectsNonMembers(t *testing.T) {
	env := newTestEnv(t, 1)
	room, err := env.rooms.Create(context.Background(), domain.Principal{UserID: "host"}, app.CreateRoomRequest{RoomConfig: domain.RoomConfig{
		Exam: "JEE", QuestionCount: 1, TimePerQuestionSeconds: 60,
	}})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	u := "ws" + env.server.URL[len("http"):] + "/api/v1/rooms/" + room.Code + "/live?token=" + env.token(t, "stranger")
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake to fail for a non-member")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
}

func (e *testEnv) dialLive(t *testing.T, code, userID string) *websocket.Conn {
	t.Helper()
	u := "ws" + e.server.URL[len("http"):] + "/api/v1/rooms/" + code + "/live?token=" + e.token(t, userID)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
