package http

import (
	"net/http"
	"time"

	"exam-arena-service/internal/app"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
)

const requestTimeout = 60 * time.Second

// Services bundles the use cases exposed over HTTP.
type Services struct {
	Attempts  *app.AttemptService
	Rooms     *app.RoomService
	Tests     *app.TestGenerator
	Ledger    *app.Ledger
	Referrals *app.ReferralService
}

func NewRouter(svc Services, tokenAuth *jwtauth.JWTAuth) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(jwtauth.Verify(tokenAuth, jwtauth.TokenFromHeader, tokenFromQuery))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	attempts := &attemptHandler{attempts: svc.Attempts, rooms: svc.Rooms}
	rooms := &roomHandler{rooms: svc.Rooms}
	tests := &testHandler{tests: svc.Tests, attempts: svc.Attempts}
	progress := &progressHandler{ledger: svc.Ledger, referrals: svc.Referrals}
	live := NewWSHandler(svc.Rooms)

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(Authenticator)

		v1.Route("/rooms", func(rr chi.Router) {
			// the live feed is long lived and stays outside the request timeout
			rr.Get("/{code}/live", live.ServeWS)
			rr.Group(func(g chi.Router) {
				g.Use(chiMiddleware.Timeout(requestTimeout))
				rooms.RegisterRoutes(g)
			})
		})

		v1.Group(func(api chi.Router) {
			api.Use(chiMiddleware.Timeout(requestTimeout))
			api.Route("/attempts", attempts.RegisterRoutes)
			api.Route("/tests", tests.RegisterRoutes)
			progress.RegisterRoutes(api)
		})
	})

	return r
}
