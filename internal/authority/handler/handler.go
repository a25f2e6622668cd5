// Package handler exposes the authority registry over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"attestry/internal/authority"
	"attestry/internal/domain"
	id "attestry/pkg/domain"
	"attestry/pkg/platform/httputil"
	request "attestry/pkg/platform/middleware/request"
)

// Service defines the registry operations the handler delegates to.
type Service interface {
	RegisterAuthority(ctx context.Context, p authority.RegisterParams) error
	AdminRegisterAuthority(ctx context.Context, admin id.Address, proof string, auth id.Address, metadata string) error
	IsAuthority(ctx context.Context, auth id.Address) (bool, error)
	GetAuthority(ctx context.Context, auth id.Address) (*domain.RegisteredAuthorityData, error)
}

type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register mounts the public registry routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/authorities", h.handleRegister)
	r.Get("/authorities/{address}", h.handleGet)
	r.Get("/authorities/{address}/is-authority", h.handleIsAuthority)
}

// RegisterAdmin mounts the operator-only registration route.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/authorities", h.handleAdminRegister)
}

type registerRequest struct {
	Caller    string `json:"caller"`
	Proof     string `json:"proof"`
	Authority string `json:"authority"`
	Metadata  string `json:"metadata"`
	RefID     string `json:"ref_id"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	caller, err := id.ParseAddress(req.Caller)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	auth, err := id.ParseAddress(req.Authority)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var refID id.RefID
	if req.RefID != "" {
		refID, err = id.ParseRefID(req.RefID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	err = h.service.RegisterAuthority(ctx, authority.RegisterParams{
		Caller:    caller,
		Proof:     req.Proof,
		Authority: auth,
		Metadata:  req.Metadata,
		RefID:     refID,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "authority registration failed",
			"request_id", request.GetRequestID(ctx),
			"caller", caller,
			"authority", auth,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type adminRegisterRequest struct {
	Admin     string `json:"admin"`
	Proof     string `json:"proof"`
	Authority string `json:"authority"`
	Metadata  string `json:"metadata"`
}

func (h *Handler) handleAdminRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req adminRegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	admin, err := id.ParseAddress(req.Admin)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	auth, err := id.ParseAddress(req.Authority)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.AdminRegisterAuthority(ctx, admin, req.Proof, auth, req.Metadata); err != nil {
		h.logger.WarnContext(ctx, "admin authority registration failed",
			"request_id", request.GetRequestID(ctx),
			"admin", admin,
			"authority", auth,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type authorityResponse struct {
	Address          string    `json:"address"`
	Metadata         string    `json:"metadata"`
	RefID            string    `json:"ref_id,omitempty"`
	RegistrationTime time.Time `json:"registration_time"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	auth, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.service.GetAuthority(r.Context(), auth)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if rec == nil {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"authority": nil})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"authority": authorityResponse{
		Address:          rec.Address.String(),
		Metadata:         rec.Metadata,
		RefID:            rec.RefID.String(),
		RegistrationTime: rec.RegistrationTime,
	}})
}

func (h *Handler) handleIsAuthority(w http.ResponseWriter, r *http.Request) {
	auth, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	registered, err := h.service.IsAuthority(r.Context(), auth)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"is_authority": registered})
}
