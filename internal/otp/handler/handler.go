package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"otpguard/internal/audit"
	"otpguard/internal/otp/models"
	"otpguard/internal/platform/middleware"
	dErrors "otpguard/pkg/domain-errors"
	"otpguard/pkg/platform/httputil"
)

// Service defines the passcode operations the transport layer depends on.
type Service interface {
	Issue(ctx context.Context, identity, purpose string) (*models.IssueResult, error)
	Verify(ctx context.Context, identity, purpose, code string) (*models.VerifyResult, error)
}

// AuditLister reads back recorded security events for one identity.
type AuditLister interface {
	List(ctx context.Context, identity string, limit int) ([]audit.Event, error)
}

// Handler handles the passcode endpoints.
type Handler struct {
	logger  *slog.Logger
	otp     Service
	auditor AuditLister
}

func New(otp Service, auditor AuditLister, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		otp:     otp,
		auditor: auditor,
	}
}

// RegisterPublic registers the unauthenticated endpoints on r.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/otp/request", h.handleRequest)
	r.Post("/otp/verify", h.handleVerify)
}

// RegisterProtected registers the endpoints that require a bearer token.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Get("/otp/audit/{identity}", h.handleAuditList)
}

type issueRequest struct {
	Identity string `json:"identity"`
	Purpose  string `json:"purpose"`
}

type verifyRequest struct {
	Identity string `json:"identity"`
	Purpose  string `json:"purpose"`
	Code     string `json:"code"`
}

// handleRequest issues a fresh passcode. Business outcomes, cooldown and
// delivery failure included, come back as structured 200 bodies; only
// malformed input and infrastructure faults map to error statuses.
func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid issue request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	result, err := h.otp.Issue(ctx, req.Identity, req.Purpose)
	if err != nil {
		h.writeServiceError(ctx, w, "issue failed", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid verify request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	result, err := h.otp.Verify(ctx, req.Identity, req.Purpose, req.Code)
	if err != nil {
		h.writeServiceError(ctx, w, "verify failed", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// handleAuditList returns the recorded security events for one identity,
// newest first.
func (h *Handler) handleAuditList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity := chi.URLParam(r, "identity")
	if identity == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "identity is required"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	events, err := h.auditor.List(ctx, identity, limit)
	if err != nil {
		h.writeServiceError(ctx, w, "audit list failed", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"identity": identity,
		"events":   events,
	})
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal || code == dErrors.CodeUnavailable {
		h.logger.ErrorContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
