// Package handler exposes the payment ledger over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"attestry/internal/domain"
	"attestry/internal/payment"
	id "attestry/pkg/domain"
	"attestry/pkg/platform/httputil"
	request "attestry/pkg/platform/middleware/request"
)

// Service defines the payment operations the handler delegates to.
type Service interface {
	PayVerificationFee(ctx context.Context, p payment.PayParams) error
	HasConfirmedPayment(ctx context.Context, payer id.Address) (bool, error)
	GetPaymentRecord(ctx context.Context, payer id.Address) (*domain.PaymentRecord, error)
	WithdrawFees(ctx context.Context, caller id.Address, proof string) (int64, error)
	WithdrawLevies(ctx context.Context, caller id.Address, proof string) (int64, error)
	AdminWithdrawFees(ctx context.Context, admin id.Address, proof string, tokenAddress id.Address, amount int64) error
	GetCollectedFees(ctx context.Context, authority id.Address) (int64, error)
	GetCollectedLevies(ctx context.Context, authority id.Address) (int64, error)
	GetTotalCollected(ctx context.Context) (int64, error)
	GetTokenID(ctx context.Context) (id.Address, error)
}

type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register mounts the public payment routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/payments/verification-fee", h.handlePay)
	r.Get("/payments/{payer}", h.handleGetRecord)
	r.Get("/payments/{payer}/confirmed", h.handleHasConfirmed)
	r.Post("/payments/withdraw-fees", h.handleWithdrawFees)
	r.Post("/payments/withdraw-levies", h.handleWithdrawLevies)
	r.Get("/balances/{authority}/fees", h.handleCollectedFees)
	r.Get("/balances/{authority}/levies", h.handleCollectedLevies)
	r.Get("/balances/pool", h.handlePoolBalance)
	r.Get("/token", h.handleTokenID)
}

// RegisterAdmin mounts the operator-only withdrawal route. The caller wraps
// these in the admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/withdraw-fees", h.handleAdminWithdraw)
}

type payRequest struct {
	Payer        string `json:"payer"`
	Proof        string `json:"proof"`
	Recipient    string `json:"recipient"`
	RefID        string `json:"ref_id"`
	TokenAddress string `json:"token_address"`
}

func (h *Handler) handlePay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req payRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	payer, err := id.ParseAddress(req.Payer)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	recipient, err := id.ParseAddress(req.Recipient)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	refID, err := id.ParseRefID(req.RefID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tokenAddr, err := id.ParseAddress(req.TokenAddress)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	err = h.service.PayVerificationFee(ctx, payment.PayParams{
		Payer:        payer,
		Proof:        req.Proof,
		Recipient:    recipient,
		RefID:        refID,
		TokenAddress: tokenAddr,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "verification fee payment failed",
			"request_id", request.GetRequestID(ctx),
			"payer", payer,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type paymentRecordResponse struct {
	Payer      string    `json:"payer"`
	Recipient  string    `json:"recipient"`
	RefID      string    `json:"ref_id"`
	AmountPaid int64     `json:"amount_paid"`
	Timestamp  time.Time `json:"timestamp"`
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	payer, err := id.ParseAddress(chi.URLParam(r, "payer"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.service.GetPaymentRecord(r.Context(), payer)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if rec == nil {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"record": nil})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"record": paymentRecordResponse{
		Payer:      rec.Payer.String(),
		Recipient:  rec.Recipient.String(),
		RefID:      rec.RefID.String(),
		AmountPaid: rec.AmountPaid,
		Timestamp:  rec.Timestamp,
	}})
}

func (h *Handler) handleHasConfirmed(w http.ResponseWriter, r *http.Request) {
	payer, err := id.ParseAddress(chi.URLParam(r, "payer"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	confirmed, err := h.service.HasConfirmedPayment(r.Context(), payer)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"confirmed": confirmed})
}

type withdrawRequest struct {
	Caller string `json:"caller"`
	Proof  string `json:"proof"`
}

func (h *Handler) handleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	h.withdraw(w, r, h.service.WithdrawFees)
}

func (h *Handler) handleWithdrawLevies(w http.ResponseWriter, r *http.Request) {
	h.withdraw(w, r, h.service.WithdrawLevies)
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request, op func(context.Context, id.Address, string) (int64, error)) {
	ctx := r.Context()

	var req withdrawRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	caller, err := id.ParseAddress(req.Caller)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	amount, err := op(ctx, caller, req.Proof)
	if err != nil {
		h.logger.WarnContext(ctx, "withdrawal failed",
			"request_id", request.GetRequestID(ctx),
			"caller", caller,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"amount": amount})
}

type adminWithdrawRequest struct {
	Admin        string `json:"admin"`
	Proof        string `json:"proof"`
	TokenAddress string `json:"token_address"`
	Amount       int64  `json:"amount"`
}

func (h *Handler) handleAdminWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req adminWithdrawRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	admin, err := id.ParseAddress(req.Admin)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tokenAddr, err := id.ParseAddress(req.TokenAddress)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.AdminWithdrawFees(ctx, admin, req.Proof, tokenAddr, req.Amount); err != nil {
		h.logger.WarnContext(ctx, "admin withdrawal failed",
			"request_id", request.GetRequestID(ctx),
			"admin", admin,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCollectedFees(w http.ResponseWriter, r *http.Request) {
	h.balance(w, r, h.service.GetCollectedFees)
}

func (h *Handler) handleCollectedLevies(w http.ResponseWriter, r *http.Request) {
	h.balance(w, r, h.service.GetCollectedLevies)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request, op func(context.Context, id.Address) (int64, error)) {
	authority, err := id.ParseAddress(chi.URLParam(r, "authority"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	amount, err := op(r.Context(), authority)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"amount": amount})
}

func (h *Handler) handlePoolBalance(w http.ResponseWriter, r *http.Request) {
	amount, err := h.service.GetTotalCollected(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"amount": amount})
}

func (h *Handler) handleTokenID(w http.ResponseWriter, r *http.Request) {
	tokenID, err := h.service.GetTokenID(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"token_id": tokenID.String()})
}
