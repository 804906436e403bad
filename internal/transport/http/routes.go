package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(h.log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/notes", func(r chi.Router) {
		r.Post("/", h.CreateNote)
		r.Get("/{noteID}", h.GetNote)
		r.Get("/{noteID}/progress", h.GetProgress)
	})

	r.Get("/queue", h.GetQueue)
	r.Get("/stats", h.GetStats)
	r.Get("/jobs/report.xlsx", h.GetReport)

	return r
}
