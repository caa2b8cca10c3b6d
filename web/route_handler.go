package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/RezaEskandarii/workflowq/client"
	"github.com/RezaEskandarii/workflowq/internal/maintenance"
	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

type WorkflowService interface {
	EnqueueRaw(ctx context.Context, workflowType types.WorkflowType, raw json.RawMessage, scheduledFor time.Time, maxAttempts int) (*types.QueueItem, error)
	RetryFailedWorkflow(ctx context.Context, id uuid.UUID) (*types.QueueItem, error)
	QueueStats(ctx context.Context) (types.QueueStats, error)
	ListItems(ctx context.Context, filter types.ItemFilter, page, pageSize int) (*types.PaginationResult[types.QueueItem], error)
	FindItem(ctx context.Context, id uuid.UUID) (*types.QueueItem, error)
}

type QueueProcessor interface {
	ProcessDue(ctx context.Context) (types.TickSummary, error)
}

type ErrorService interface {
	Stats(ctx context.Context) (types.ErrorStats, error)
	List(ctx context.Context, filter types.ErrorFilter, page, pageSize int) (*types.PaginationResult[types.ErrorRecord], error)
	Acknowledge(ctx context.Context, id uuid.UUID, by string) (*types.ErrorRecord, error)
	Dismiss(ctx context.Context, id uuid.UUID, reason, by string) (*types.ErrorRecord, error)
	Resolve(ctx context.Context, id uuid.UUID, notes, by string) (*types.ErrorRecord, error)
}

type MaintenanceService interface {
	AutoResolve(ctx context.Context) (int, error)
	RecoverStuck(ctx context.Context) (*types.RecoveryResult, error)
}

type ServerConfig struct {
	TriggerSecret string
	// AdminSecret signs operator tokens. Empty disables the admin API.
	AdminSecret    string
	AllowedOrigins []string
	SecureCookie   bool
}

// Server exposes the trigger, enqueue and operator endpoints.
type Server struct {
	workflows     WorkflowService
	processor     QueueProcessor
	errors        ErrorService
	maintenance   MaintenanceService
	operators     store.OperatorStore
	logger        *slog.Logger
	triggerSecret string
	adminSecret   string
	origins       []string
	secureCookie  bool
	now           func() time.Time
}

func NewServer(
	workflows WorkflowService,
	processor QueueProcessor,
	errorService ErrorService,
	maintenanceService MaintenanceService,
	operators store.OperatorStore,
	logger *slog.Logger,
	cfg ServerConfig,
) *Server {
	return &Server{
		workflows:     workflows,
		processor:     processor,
		errors:        errorService,
		maintenance:   maintenanceService,
		operators:     operators,
		logger:        logger,
		triggerSecret: cfg.TriggerSecret,
		adminSecret:   cfg.AdminSecret,
		origins:       cfg.AllowedOrigins,
		secureCookie:  cfg.SecureCookie,
		now:           time.Now,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.triggerGuard)
			r.Get("/queue/process", s.handleProcess)
			r.Post("/queue/process", s.handleProcess)
			r.Post("/workflows", s.handleEnqueue)
		})

		if s.adminSecret == "" {
			return
		}
		r.Route("/admin", func(r chi.Router) {
			if len(s.origins) > 0 {
				r.Use(cors.Handler(cors.Options{
					AllowedOrigins:   s.origins,
					AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
					AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
					AllowCredentials: true,
				}))
			}
			r.Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Get("/queue/stats", s.handleQueueStats)
				r.Get("/queue/items", s.handleListItems)
				r.Get("/queue/items/{id}", s.handleFindItem)
				r.Post("/queue/items/{id}/retry", s.handleRetryItem)

				r.Get("/errors/stats", s.handleErrorStats)
				r.Get("/errors", s.handleListErrors)
				r.Post("/errors/{id}/acknowledge", s.handleAcknowledge)
				r.Post("/errors/{id}/dismiss", s.handleDismiss)
				r.Post("/errors/{id}/resolve", s.handleResolve)

				r.Post("/maintenance/auto-resolve", s.handleAutoResolve)
				r.Post("/maintenance/recover-stuck", s.handleRecoverStuck)
			})
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	summary, err := s.processor.ProcessDue(r.Context())
	if err != nil {
		s.logger.Error("queue trigger failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"processed": summary.Processed,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"retried":   summary.Retried,
		"exhausted": summary.Exhausted,
	})
}

type enqueueRequest struct {
	WorkflowType types.WorkflowType `json:"workflow_type"`
	Payload      json.RawMessage    `json:"payload"`
	ScheduledFor *time.Time         `json:"scheduled_for,omitempty"`
	MaxAttempts  int                `json:"max_attempts,omitempty"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.WorkflowType == "" || len(req.Payload) == 0 {
		writeError(w, http.StatusBadRequest, "workflow_type and payload are required")
		return
	}
	var at time.Time
	if req.ScheduledFor != nil {
		at = *req.ScheduledFor
	}
	item, err := s.workflows.EnqueueRaw(r.Context(), types.WorkflowType(strings.ToUpper(string(req.WorkflowType))), req.Payload, at, req.MaxAttempts)
	if err != nil {
		s.fail(w, "enqueue workflow", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	op, err := s.operators.Find(r.Context(), req.Username, req.Password)
	if err != nil || op == nil {
		if err != nil {
			s.logger.Warn("operator login rejected", "username", req.Username, "err", err)
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	expires := s.now().Add(authTokenTTL)
	token := generateAuthToken(op.Username, s.adminSecret, expires)
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "expires_at": expires.UTC()})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookie,
	})
	w.WriteHeader(http.StatusNoContent)
}

// fail maps domain errors to status codes. Anything unrecognised is logged and
// reported as a 500.
func (s *Server) fail(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrInvalidPayload), errors.Is(err, types.ErrUnknownWorkflowType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, client.ErrNotRetryable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, maintenance.ErrLockHeld):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error(action, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
