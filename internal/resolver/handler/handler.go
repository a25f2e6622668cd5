// Package handler exposes the resolver hook surface over HTTP. The hook
// endpoints always answer 200 with an accepted flag so the attestation system
// can branch on the result; transport-level statuses are reserved for
// malformed requests and infrastructure failures.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"attestry/internal/domain"
	id "attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
	"attestry/pkg/platform/httputil"
	request "attestry/pkg/platform/middleware/request"
)

// Service defines the resolver operations the handler delegates to.
type Service interface {
	Metadata() domain.ResolverMetadata
	Attest(ctx context.Context, att domain.Attestation, proof string) error
	Revoke(ctx context.Context, uid id.AttestationUID, caller id.Address, proof string) error
	OnAttest(ctx context.Context, att domain.Attestation) (bool, error)
	OnResolve(ctx context.Context, data domain.ResolverAttestationData) (bool, error)
}

type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register mounts the resolver routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/resolver/metadata", h.handleMetadata)
	r.Post("/resolver/attest", h.handleAttest)
	r.Post("/resolver/revoke", h.handleRevoke)
	r.Post("/resolver/hooks/onattest", h.handleOnAttest)
	r.Post("/resolver/hooks/onresolve", h.handleOnResolve)
}

func (h *Handler) handleMetadata(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.service.Metadata())
}

type attestationPayload struct {
	UID            string     `json:"uid"`
	SchemaUID      string     `json:"schema_uid"`
	Attester       string     `json:"attester"`
	Recipient      string     `json:"recipient"`
	Data           []byte     `json:"data,omitempty"`
	Time           time.Time  `json:"time"`
	ExpirationTime *time.Time `json:"expiration_time,omitempty"`
	RefUID         string     `json:"ref_uid,omitempty"`
	Revocable      bool       `json:"revocable"`
	RevocationTime *time.Time `json:"revocation_time,omitempty"`
	Value          *int64     `json:"value,omitempty"`
}

func (p attestationPayload) toAttestation() (domain.Attestation, error) {
	uid, err := id.ParseAttestationUID(p.UID)
	if err != nil {
		return domain.Attestation{}, err
	}
	schemaUID, err := id.ParseSchemaUID(p.SchemaUID)
	if err != nil {
		return domain.Attestation{}, err
	}
	attester, err := id.ParseAddress(p.Attester)
	if err != nil {
		return domain.Attestation{}, err
	}
	att := domain.Attestation{
		UID:            uid,
		SchemaUID:      schemaUID,
		Attester:       attester,
		Recipient:      id.Address(p.Recipient),
		Data:           p.Data,
		Time:           p.Time,
		ExpirationTime: p.ExpirationTime,
		Revocable:      p.Revocable,
		Value:          p.Value,
	}
	if p.RefUID != "" {
		refUID, err := id.ParseAttestationUID(p.RefUID)
		if err != nil {
			return domain.Attestation{}, err
		}
		att.RefUID = &refUID
	}
	return att, nil
}

func (p attestationPayload) toResolverData() (domain.ResolverAttestationData, error) {
	att, err := p.toAttestation()
	if err != nil {
		return domain.ResolverAttestationData{}, err
	}
	return domain.ResolverAttestationData{
		UID:            att.UID,
		SchemaUID:      att.SchemaUID,
		Attester:       att.Attester,
		Recipient:      att.Recipient,
		Data:           att.Data,
		Time:           att.Time,
		ExpirationTime: att.ExpirationTime,
		RefUID:         att.RefUID,
		Revocable:      att.Revocable,
		RevocationTime: p.RevocationTime,
		Value:          att.Value,
	}, nil
}

type attestRequest struct {
	Attestation attestationPayload `json:"attestation"`
	Proof       string             `json:"proof"`
}

func (h *Handler) handleAttest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req attestRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	att, err := req.Attestation.toAttestation()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Attest(ctx, att, req.Proof); err != nil {
		h.logger.WarnContext(ctx, "attest failed",
			"request_id", request.GetRequestID(ctx),
			"uid", att.UID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type revokeRequest struct {
	UID    string `json:"uid"`
	Caller string `json:"caller"`
	Proof  string `json:"proof"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req revokeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	uid, err := id.ParseAttestationUID(req.UID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	caller, err := id.ParseAddress(req.Caller)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Revoke(ctx, uid, caller, req.Proof); err != nil {
		h.logger.WarnContext(ctx, "revoke failed",
			"request_id", request.GetRequestID(ctx),
			"uid", uid,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type hookResponse struct {
	Accepted         bool   `json:"accepted"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func (h *Handler) writeHookResult(w http.ResponseWriter, accepted bool, err error) {
	if err == nil {
		httputil.WriteJSON(w, http.StatusOK, hookResponse{Accepted: accepted})
		return
	}
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, hookResponse{
		Accepted:         false,
		Error:            string(code),
		ErrorDescription: dErrors.MessageOf(err),
	})
}

func (h *Handler) handleOnAttest(w http.ResponseWriter, r *http.Request) {
	var payload attestationPayload
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteError(w, err)
		return
	}
	att, err := payload.toAttestation()
	if err != nil {
		h.writeHookResult(w, false, err)
		return
	}

	accepted, err := h.service.OnAttest(r.Context(), att)
	h.writeHookResult(w, accepted, err)
}

func (h *Handler) handleOnResolve(w http.ResponseWriter, r *http.Request) {
	var payload attestationPayload
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteError(w, err)
		return
	}
	data, err := payload.toResolverData()
	if err != nil {
		h.writeHookResult(w, false, err)
		return
	}

	accepted, err := h.service.OnResolve(r.Context(), data)
	h.writeHookResult(w, accepted, err)
}
