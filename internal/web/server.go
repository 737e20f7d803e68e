package web

import (
    "log/slog"
    "net/http"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/chi/v5/middleware"
    "github.com/jaminalder/tictactoe-engine/internal/app"
)

// NewServer wires routes and returns an http.Handler.
func NewServer(s *app.Service, logger *slog.Logger) http.Handler {
    if logger == nil {
        logger = slog.Default()
    }
    r := chi.NewRouter()
    r.Use(middleware.RequestID)
    r.Use(requestLogger(logger))
    r.Use(middleware.Recoverer)

    h := &handlers{svc: s, tpl: loadTemplates(), log: logger}
    r.Get("/", h.index)
    r.Post("/game", h.create)
    r.Route("/game/{id}", func(r chi.Router) {
        r.Get("/", h.view)
        r.Post("/play", h.play)
        r.Post("/jump", h.jump)
        r.Post("/undo", h.undo)
        r.Post("/reset", h.reset)
        r.Post("/difficulty", h.difficulty)
        r.Post("/mode", h.mode)
        r.Get("/events", h.events)
        r.Get("/ws", h.ws)
    })
    r.Route("/api", func(r chi.Router) {
        r.Get("/stats", h.apiStats)
        r.Post("/games", h.apiCreate)
        r.Route("/games/{id}", func(r chi.Router) {
            r.Get("/", h.apiGet)
            r.Get("/history", h.apiHistory)
            r.Post("/moves", h.apiMove)
            r.Post("/computer", h.apiComputer)
            r.Post("/jump", h.apiJump)
            r.Post("/undo", h.apiUndo)
            r.Post("/reset", h.apiReset)
            r.Put("/difficulty", h.apiDifficulty)
            r.Put("/mode", h.apiMode)
        })
    })
    return r
}

// requestLogger logs method, path, status, bytes, and duration.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            start := time.Now()
            ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
            next.ServeHTTP(ww, r)
            logger.Info("http",
                "method", r.Method,
                "path", r.URL.Path,
                "status", ww.Status(),
                "bytes", ww.BytesWritten(),
                "dur", time.Since(start).Round(time.Millisecond),
                "request_id", middleware.GetReqID(r.Context()),
            )
        })
    }
}
