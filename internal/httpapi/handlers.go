package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/Sxientrie/reddit-hawk/internal/model"
	"github.com/Sxientrie/reddit-hawk/internal/store"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.poller.Status())
}

func (s *Server) handleListHits(w http.ResponseWriter, r *http.Request) {
	hits, err := s.poller.Hits(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "read hits cache failed")
		return
	}
	s.writeJSON(w, http.StatusOK, hits)
}

func (s *Server) handleDismissHit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed, err := s.poller.Dismiss(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "dismiss failed")
		return
	}
	if !removed {
		s.writeError(w, http.StatusNotFound, "hit not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	rules := model.DefaultRuleset()
	err := store.GetJSON(r.Context(), s.durable, store.KeyConfig, &rules)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.log.Warn("load ruleset", "error", err)
		rules = model.DefaultRuleset()
	}
	s.writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	rules := model.DefaultRuleset()
	if err := json.NewDecoder(r.Body).Decode(&rules); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid ruleset json")
		return
	}
	if err := validateRuleset(rules); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Persist the clamped interval so nothing downstream sees a raw one.
	rules.PollingInterval = rules.Interval()

	if err := store.SetJSON(r.Context(), s.durable, store.KeyConfig, rules); err != nil {
		s.writeError(w, http.StatusInternalServerError, "save ruleset failed")
		return
	}
	s.writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	// The first cycle fetches synchronously; run it off the request, and
	// not on the request context, which dies when the handler returns.
	go s.poller.Start(context.Background())
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.poller.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func validateRuleset(rules model.Ruleset) error {
	for _, hhmm := range []string{rules.QuietHours.Start, rules.QuietHours.End} {
		if _, err := time.Parse("15:04", hhmm); err != nil {
			return errors.New("quiet hours times must be HH:MM")
		}
	}
	for _, sub := range rules.Subreddits {
		if sub == "" {
			return errors.New("subreddit names must be non-empty")
		}
	}
	if rules.WebhookURL != "" {
		u, err := url.ParseRequestURI(rules.WebhookURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("webhookUrl must be an absolute URL")
		}
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
