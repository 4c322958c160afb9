package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Nehilsa2/resume_automation/auth"
	"github.com/Nehilsa2/resume_automation/search"
)

type ScrapeHandler struct {
	Runner   Runner
	Sessions *semaphore.Weighted
	Log      logrus.FieldLogger
}

type scrapeReq struct {
	Keywords        *string          `json:"keywords"`
	Location        *string          `json:"location"`
	ExperienceYears int              `json:"experience_years"`
	EducationLevel  search.Education `json:"education_level"`
}

type scrapeResp struct {
	Status  string             `json:"status"`
	Message string             `json:"message"`
	Results []search.Candidate `json:"results"`
	CSVPath string             `json:"csv_path"`
}

func (h ScrapeHandler) Scrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	for _, f := range []struct {
		name  string
		value *string
	}{{"keywords", req.Keywords}, {"location", req.Location}} {
		if f.value == nil {
			WriteError(w, http.StatusBadRequest, "Missing required field: "+f.name)
			return
		}
	}
	filters := search.Filters{
		Keywords:        *req.Keywords,
		Location:        *req.Location,
		ExperienceYears: req.ExperienceYears,
		EducationLevel:  req.EducationLevel,
	}
	if err := filters.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.Sessions.TryAcquire(1) {
		WriteError(w, http.StatusServiceUnavailable, "all browser sessions are busy, retry later")
		return
	}
	defer h.Sessions.Release(1)

	log := h.Log.WithField("request_id", RequestIDFrom(r.Context()))
	res, err := h.Runner.Run(r.Context(), filters)
	switch {
	case err == nil:
	case errors.Is(err, search.ErrInvalidFilters):
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	case isAuthError(err):
		log.WithError(err).Error("❌ Login failed")
		WriteError(w, http.StatusInternalServerError, "Failed to login to Indeed: "+err.Error())
		return
	default:
		log.WithError(err).Error("❌ Scrape failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if res.Partial != nil {
		log.WithError(res.Partial).Warn("⚠️ Returning partial results")
	}
	WriteJSON(w, http.StatusOK, scrapeResp{
		Status:  "success",
		Message: fmt.Sprintf("Found %d results", len(res.Candidates)),
		Results: res.Candidates,
		CSVPath: res.CSVPath,
	})
}

func isAuthError(err error) bool {
	var ae *auth.Error
	return errors.As(err, &ae)
}

type HealthHandler struct {
	Now func() time.Time
}

func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": h.Now().Format(time.RFC3339),
	})
}

type apiError struct {
	Error string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, apiError{Error: message})
}

func methodMux(m map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h, ok := m[r.Method]; ok {
			h(w, r)
			return
		}
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
