package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// NewRouter mounts the REST API, the duel websocket and the health check.
func NewRouter(api *APIHandler, ws *WSHandler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ws/duel", ws.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Post("/rooms", api.CreateRoom)
		r.Route("/rooms/{roomID}", func(r chi.Router) {
			r.Post("/players", api.JoinRoom)
			r.Get("/players", api.ListPlayers)
			r.Post("/questions", api.AddQuestion)
			r.Get("/questions", api.ListQuestions)
			r.Post("/pairs", api.CreatePair)
			r.Get("/pairs", api.ListPairs)
		})
		r.Route("/pairs/{pairID}", func(r chi.Router) {
			r.Get("/", api.GetPair)
			r.Delete("/", api.DeletePair)
			r.Post("/rounds", api.StartRound)
			r.Post("/answers", api.SubmitAnswer)
		})
		r.Get("/leaderboard", api.Leaderboard)
	})

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
		},
		AllowedOrigins: allowedOrigins,
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
