// Package handler exposes the ownership control plane over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"attestry/internal/ownership"
	id "attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
	"attestry/pkg/platform/httputil"
	request "attestry/pkg/platform/middleware/request"
)

// Service defines the ownership operations the handler delegates to.
type Service interface {
	Initialize(ctx context.Context, p ownership.InitializeParams) error
	GetOwner(ctx context.Context) (id.Address, error)
	IsOwner(ctx context.Context, addr id.Address) (bool, error)
	TransferOwnership(ctx context.Context, currentOwner id.Address, proof string, newOwner id.Address) error
	RenounceOwnership(ctx context.Context, currentOwner id.Address, proof string) error
}

type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register mounts the ownership routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/ownership/initialize", h.handleInitialize)
	r.Get("/ownership/owner", h.handleGetOwner)
	r.Get("/ownership/admin", h.handleGetOwner)
	r.Get("/ownership/is-owner", h.handleIsOwner)
	r.Post("/ownership/transfer", h.handleTransfer)
	r.Post("/ownership/renounce", h.handleRenounce)
}

type initializeRequest struct {
	Admin           string `json:"admin"`
	Proof           string `json:"proof"`
	TokenContractID string `json:"token_contract_id"`
	TokenWasmHash   string `json:"token_wasm_hash"`
	RegistrationFee int64  `json:"registration_fee"`
	LevyAmount      int64  `json:"levy_amount"`
}

func (h *Handler) handleInitialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req initializeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	admin, err := id.ParseAddress(req.Admin)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tokenID, err := id.ParseAddress(req.TokenContractID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	err = h.service.Initialize(ctx, ownership.InitializeParams{
		Admin:           admin,
		Proof:           req.Proof,
		TokenContractID: tokenID,
		TokenWasmHash:   req.TokenWasmHash,
		RegistrationFee: req.RegistrationFee,
		LevyAmount:      req.LevyAmount,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "initialize failed",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handleGetOwner(w http.ResponseWriter, r *http.Request) {
	owner, err := h.service.GetOwner(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"owner": owner.String()})
}

func (h *Handler) handleIsOwner(w http.ResponseWriter, r *http.Request) {
	addr, err := id.ParseAddress(r.URL.Query().Get("address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	isOwner, err := h.service.IsOwner(r.Context(), addr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"is_owner": isOwner})
}

type transferRequest struct {
	CurrentOwner string `json:"current_owner"`
	Proof        string `json:"proof"`
	NewOwner     string `json:"new_owner"`
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req transferRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	current, err := id.ParseAddress(req.CurrentOwner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	next, err := id.ParseAddress(req.NewOwner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.TransferOwnership(ctx, current, req.Proof, next); err != nil {
		if dErrors.Is(err, dErrors.CodeUnauthorized) {
			h.logger.WarnContext(ctx, "ownership transfer denied",
				"request_id", request.GetRequestID(ctx),
				"caller", current,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type renounceRequest struct {
	CurrentOwner string `json:"current_owner"`
	Proof        string `json:"proof"`
}

func (h *Handler) handleRenounce(w http.ResponseWriter, r *http.Request) {
	var req renounceRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	current, err := id.ParseAddress(req.CurrentOwner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.RenounceOwnership(r.Context(), current, req.Proof); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
