// Package api exposes the management surface over HTTP: credential, job, and
// settings CRUD, post history, analytics, the event log, and a long-lived
// SSE event stream. All routes except /health are gated by the shared bearer
// token.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ostanin/reelpost/internal/analytics"
	"github.com/ostanin/reelpost/internal/eventlog"
	"github.com/ostanin/reelpost/internal/hub"
	"github.com/ostanin/reelpost/internal/pipeline"
	"github.com/ostanin/reelpost/internal/scheduler"
	"github.com/ostanin/reelpost/internal/settings"
	"github.com/ostanin/reelpost/internal/vault"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds the collaborators the handlers consume.
type Deps struct {
	Vault     *vault.Vault
	Scheduler *scheduler.Scheduler
	Runner    *pipeline.Runner
	Settings  *settings.Manager
	Events    *eventlog.Logger
	Metrics   *analytics.Tracker
	Hub       *hub.Hub
	Token     string
}

// NewHandler builds the chi router for the management API.
func NewHandler(deps Deps) http.Handler {
	v := validator.New(validator.WithRequiredStructEnabled())

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/events", handleEvents(deps))

		r.Get("/credentials", handleListProviders(deps))
		r.Get("/credentials/{provider}", handleListCredentials(deps))
		r.Post("/credentials/{provider}", handleAddCredential(deps, v))
		r.Delete("/credentials/{provider}/{id}", handleRemoveCredential(deps))

		r.Get("/jobs", handleListJobs(deps))
		r.Post("/jobs", handleEnqueueJob(deps, v))
		r.Post("/generate", handleGenerate(deps, v))

		r.Get("/posts", handleListPosts(deps))
		r.Get("/analytics", handleAnalytics(deps))
		r.Get("/logs", handleListLogs(deps))

		r.Get("/settings", handleGetSettings(deps))
		r.Put("/settings", handlePutSettings(deps, v))
		r.Post("/admin/auth", handleAdminAuth(deps, v))
		r.Post("/admin/password", handleSetPassword(deps, v))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// decodeValid decodes the request body into req and runs struct validation.
// A false return means the error response has already been written.
func decodeValid(w http.ResponseWriter, r *http.Request, v *validator.Validate, req any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	if err := v.Struct(req); err != nil {
		httpError(w, http.StatusBadRequest, "validation_error", "%v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(value)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func handleListProviders(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"providers": deps.Vault.Providers()})
	}
}

func handleListCredentials(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		writeJSON(w, http.StatusOK, deps.Vault.List(provider))
	}
}

type addCredentialRequest struct {
	Secret string `json:"secret" validate:"required"`
	Label  string `json:"label"`
}

func handleAddCredential(deps Deps, v *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addCredentialRequest
		if !decodeValid(w, r, v, &req) {
			return
		}
		cred, err := deps.Vault.Add(chi.URLParam(r, "provider"), req.Secret, req.Label)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "storage_error", "adding credential: %v", err)
			return
		}
		cred.Secret = ""
		writeJSON(w, http.StatusCreated, cred)
	}
}

func handleRemoveCredential(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Vault.Remove(chi.URLParam(r, "provider"), chi.URLParam(r, "id")); err != nil {
			httpError(w, http.StatusInternalServerError, "storage_error", "removing credential: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListJobs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Scheduler.Jobs())
	}
}

type enqueueJobRequest struct {
	Topic string    `json:"topic" validate:"required"`
	RunAt time.Time `json:"runAt" validate:"required"`
	Kind  string    `json:"kind" validate:"required,oneof=once daily"`
}

func handleEnqueueJob(deps Deps, v *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enqueueJobRequest
		if !decodeValid(w, r, v, &req) {
			return
		}
		job, err := deps.Scheduler.Enqueue(req.Topic, req.RunAt, req.Kind)
		if err != nil {
			if errors.Is(err, scheduler.ErrInvalidJob) {
				httpError(w, http.StatusBadRequest, "validation_error", "%v", err)
				return
			}
			httpError(w, http.StatusInternalServerError, "storage_error", "enqueueing job: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, job)
	}
}

type generateRequest struct {
	Topic string `json:"topic" validate:"required"`
}

func handleGenerate(deps Deps, v *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if !decodeValid(w, r, v, &req) {
			return
		}
		cfg := deps.Settings.Load()
		record, err := deps.Scheduler.TriggerNow(r.Context(), req.Topic, cfg.Channel)
		if err != nil {
			if errors.Is(err, vault.ErrNoActiveCredential) {
				httpError(w, http.StatusConflict, "no_active_credential", "%v", err)
				return
			}
			httpError(w, http.StatusBadGateway, "provider_error", "generation failed: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, record)
	}
}

func handleListPosts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Runner.History(queryLimit(r, 100)))
	}
}

func handleAnalytics(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Metrics.Snapshot())
	}
}

func handleListLogs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Events.Recent(queryLimit(r, 200)))
	}
}

func handleGetSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := deps.Settings.Load()
		s.AdminPasswordHash = ""
		writeJSON(w, http.StatusOK, s)
	}
}

type putSettingsRequest struct {
	Channel settings.Channel `json:"channel"`
	System  settings.System  `json:"system" validate:"required"`
}

func handlePutSettings(deps Deps, v *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req putSettingsRequest
		if !decodeValid(w, r, v, &req) {
			return
		}
		current := deps.Settings.Load()
		current.Channel = req.Channel
		current.System = req.System
		if err := deps.Settings.Save(current); err != nil {
			httpError(w, http.StatusInternalServerError, "storage_error", "saving settings: %v", err)
			return
		}
		current.AdminPasswordHash = ""
		writeJSON(w, http.StatusOK, current)
	}
}

type adminAuthRequest struct {
	Password string `json:"password" validate:"required"`
}

func handleAdminAuth(deps Deps, v *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req adminAuthRequest
		if !decodeValid(w, r, v, &req) {
			return
		}
		if !deps.Settings.CheckAdminPassword(req.Password) {
			httpError(w, http.StatusUnauthorized, "authentication_error", "invalid password")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

type setPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

func handleSetPassword(deps Deps, v *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setPasswordRequest
		if !decodeValid(w, r, v, &req) {
			return
		}
		if err := deps.Settings.SetAdminPassword(req.Password); err != nil {
			httpError(w, http.StatusInternalServerError, "storage_error", "setting password: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
