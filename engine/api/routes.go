package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spaghettifunk/anima-livelink/engine/recorder"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	r.Get("/sources", listSourcesHandler(cfg))
	r.Get("/sources/{guid}", getSourceHandler(cfg))
	r.Get("/subjects", listSubjectsHandler(cfg))
	r.Get("/recorder", recorderHandler(cfg))

	return r
}

func (cfg ServerConfig) sources() []SourceView {
	if cfg.Sources == nil {
		return nil
	}
	return cfg.Sources()
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
			Sources: len(cfg.sources()),
		})
	}
}

func SourceToResponse(s SourceView) SourceResponse {
	status := "idle"
	if s.IsValid() {
		status = "streaming"
	}
	return SourceResponse{
		GUID:      s.GUID().String(),
		Host:      s.Host(),
		Endpoint:  s.Endpoint(),
		Index:     s.Index(),
		Prefix:    s.Prefix(),
		Status:    status,
		FrameRate: s.FrameRate().AsDecimal(),
		Subjects:  len(s.Subjects()),
		Metrics:   s.Metrics(),
	}
}

func listSourcesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := SourcesResponse{Sources: []SourceResponse{}}
		for _, s := range cfg.sources() {
			resp.Sources = append(resp.Sources, SourceToResponse(s))
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getSourceHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guid := chi.URLParam(r, "guid")
		for _, s := range cfg.sources() {
			if s.GUID().String() == guid {
				WriteJSON(w, http.StatusOK, SourceToResponse(s))
				return
			}
		}
		WriteError(w, http.StatusNotFound, "source not found", "NOT_FOUND")
	}
}

func listSubjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := SubjectsResponse{Subjects: []Subject{}}
		if cfg.Subjects != nil {
			resp.Subjects = append(resp.Subjects, cfg.Subjects.Subjects()...)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func recorderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Recorder == nil {
			WriteError(w, http.StatusNotFound, "recorder disabled", "NOT_FOUND")
			return
		}
		subjects, err := cfg.Recorder.Subjects(r.Context())
		if err != nil {
			cfg.Logger.Error("failed to list recorded subjects", "err", err)
			WriteError(w, http.StatusInternalServerError, "failed to list recorded subjects", "INTERNAL_ERROR")
			return
		}
		if subjects == nil {
			subjects = []recorder.SubjectSummary{}
		}
		WriteJSON(w, http.StatusOK, RecorderResponse{
			Stats:    cfg.Recorder.Stats(),
			Subjects: subjects,
		})
	}
}
