package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-cargo/meridian-cargo/internal/money"
	"github.com/meridian-cargo/meridian-cargo/internal/observability"
	"github.com/meridian-cargo/meridian-cargo/internal/partners"
	"github.com/meridian-cargo/meridian-cargo/internal/platform/httpx"
	"github.com/meridian-cargo/meridian-cargo/internal/rates"
	"github.com/meridian-cargo/meridian-cargo/internal/shared"
)

// Handler exposes the financial ledger over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	metrics  *observability.Metrics
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, metrics: metrics, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/entries", h.listEntries)
	r.Post("/entries", h.createEntry)
	r.Get("/entries/{id}", h.getEntry)
	r.Get("/entries/{id}/balance-brl", h.balanceBRL)
	r.Post("/entries/{id}/payments", h.postPayment)
	r.Post("/entries/{id}/payments/{paymentID}/reverse", h.reversePayment)
	r.Post("/entries/{id}/renegotiate", h.renegotiate)
	r.Post("/entries/{id}/legal", h.sendToLegal)
	r.Post("/entries/{id}/pending-approval", h.markPendingApproval)
	r.Post("/entries/{id}/approve", h.approve)
	r.Get("/exposure", h.exposure)
	r.Get("/accounts", h.listAccounts)
	r.Post("/accounts", h.createAccount)
}

type paymentResponse struct {
	ID           string  `json:"id"`
	Amount       string  `json:"amount"`
	Date         string  `json:"date"`
	AccountID    int64   `json:"account_id"`
	ExchangeRate *string `json:"exchange_rate,omitempty"`
	ReversalOf   *string `json:"reversal_of,omitempty"`
}

type entryResponse struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	Partner        string            `json:"partner"`
	InvoiceID      string            `json:"invoice_id"`
	ProcessID      string            `json:"process_id,omitempty"`
	Amount         string            `json:"amount"`
	Currency       string            `json:"currency"`
	DueDate        string            `json:"due_date"`
	Status         string            `json:"status"`
	Outstanding    string            `json:"outstanding"`
	OutstandingFmt string            `json:"outstanding_display,omitempty"`
	LegalNote      string            `json:"legal_note,omitempty"`
	Version        int64             `json:"version"`
	Payments       []paymentResponse `json:"payments,omitempty"`
}

func (h *Handler) toEntryResponse(e Entry) entryResponse {
	resp := entryResponse{
		ID:          e.ID.String(),
		Type:        string(e.Type),
		Partner:     e.Partner,
		InvoiceID:   e.InvoiceID,
		ProcessID:   e.ProcessID,
		Amount:      e.Amount.StringFixed(2),
		Currency:    string(e.Currency),
		DueDate:     e.DueDate.Format("2006-01-02"),
		Status:      string(h.service.Status(e)),
		Outstanding: e.Outstanding().StringFixed(2),
		LegalNote:   e.LegalNote,
		Version:     e.Version,
	}
	if e.Currency == money.BRL {
		resp.OutstandingFmt = money.FormatBRL(e.Outstanding())
	}
	for _, p := range e.Payments {
		pr := paymentResponse{
			ID:        p.ID.String(),
			Amount:    p.Amount.StringFixed(2),
			Date:      p.Date.Format("2006-01-02"),
			AccountID: p.AccountID,
		}
		if p.ExchangeRate != nil {
			s := p.ExchangeRate.String()
			pr.ExchangeRate = &s
		}
		if p.ReversalOf != nil {
			s := p.ReversalOf.String()
			pr.ReversalOf = &s
		}
		resp.Payments = append(resp.Payments, pr)
	}
	return resp
}

type createEntryPayload struct {
	Type      string `json:"type" validate:"required,oneof=CREDIT DEBIT"`
	Partner   string `json:"partner" validate:"required"`
	InvoiceID string `json:"invoice_id"`
	ProcessID string `json:"process_id"`
	Amount    string `json:"amount" validate:"required"`
	Currency  string `json:"currency" validate:"required"`
	DueDate   string `json:"due_date" validate:"required"`
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	var payload createEntryPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal number")
		return
	}
	currency, err := money.ParseCurrency(payload.Currency)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	dueDate, err := time.Parse("2006-01-02", payload.DueDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "due_date must be YYYY-MM-DD")
		return
	}
	entry, err := h.service.CreateEntry(r.Context(), CreateEntryInput{
		Type:      EntryType(payload.Type),
		Partner:   payload.Partner,
		InvoiceID: payload.InvoiceID,
		ProcessID: payload.ProcessID,
		Amount:    amount,
		Currency:  currency,
		DueDate:   dueDate,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, h.toEntryResponse(entry))
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be a UUID")
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toEntryResponse(entry))
}

func (h *Handler) balanceBRL(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be a UUID")
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	balance, err := h.service.BalanceInBRL(r.Context(), entry)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entry_id":            entry.ID.String(),
		"currency":            string(entry.Currency),
		"outstanding":         entry.Outstanding().StringFixed(2),
		"balance_brl":         balance.StringFixed(2),
		"balance_brl_display": money.FormatBRL(balance),
	})
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePage(r.URL.Query(), 100, 500)
	entries, err := h.service.ListEntries(r.Context(), ListEntriesRequest{
		Type:      EntryType(r.URL.Query().Get("type")),
		Partner:   r.URL.Query().Get("partner"),
		ProcessID: r.URL.Query().Get("process_id"),
		Limit:     page.Limit,
		Offset:    page.Offset,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	// Optional status filter on the derived status, applied after the
	// repository query since status is never stored.
	statusFilter := Status(r.URL.Query().Get("status"))
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		if statusFilter != "" && h.service.Status(e) != statusFilter {
			continue
		}
		out = append(out, h.toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type paymentPayload struct {
	Amount          string `json:"amount" validate:"required"`
	Date            string `json:"date"`
	AccountID       int64  `json:"account_id" validate:"required"`
	ExchangeRate    string `json:"exchange_rate"`
	ExpectedVersion int64  `json:"expected_version"`
}

func (h *Handler) postPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be a UUID")
		return
	}
	var payload paymentPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal number")
		return
	}
	input := PaymentInput{Amount: amount, AccountID: payload.AccountID, ExpectedVersion: payload.ExpectedVersion}
	if payload.Date != "" {
		date, err := time.Parse("2006-01-02", payload.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
		input.Date = date
	}
	if payload.ExchangeRate != "" {
		rate, err := decimal.NewFromString(payload.ExchangeRate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "exchange_rate must be a decimal number")
			return
		}
		input.ExchangeRate = &rate
	}
	entry, account, err := h.service.PostPayment(r.Context(), id, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.metrics.PaymentPosted(string(entry.Currency))
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entry": h.toEntryResponse(entry),
		"account": map[string]any{
			"id":       account.ID,
			"currency": string(account.Currency),
			"balance":  account.Balance.StringFixed(2),
		},
	})
}

func (h *Handler) reversePayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be a UUID")
		return
	}
	paymentID, err := uuid.Parse(chi.URLParam(r, "paymentID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "payment id must be a UUID")
		return
	}
	entry, err := h.service.ReversePayment(r.Context(), id, paymentID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toEntryResponse(entry))
}

type renegotiatePayload struct {
	Installments []struct {
		Amount  string `json:"amount" validate:"required"`
		DueDate string `json:"due_date" validate:"required"`
	} `json:"installments" validate:"required,min=1,dive"`
}

func (h *Handler) renegotiate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be a UUID")
		return
	}
	var payload renegotiatePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	installments := make([]InstallmentSpec, 0, len(payload.Installments))
	for _, inst := range payload.Installments {
		amount, err := decimal.NewFromString(inst.Amount)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "installment amount must be a decimal number")
			return
		}
		dueDate, err := time.Parse("2006-01-02", inst.DueDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "installment due_date must be YYYY-MM-DD")
			return
		}
		installments = append(installments, InstallmentSpec{Amount: amount, DueDate: dueDate})
	}
	original, created, err := h.service.Renegotiate(r.Context(), id, installments)
	if err != nil {
		h.respondError(w, err)
		return
	}
	createdOut := make([]entryResponse, 0, len(created))
	for _, e := range created {
		createdOut = append(createdOut, h.toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"original":     h.toEntryResponse(original),
		"installments": createdOut,
	})
}

type legalPayload struct {
	Note string `json:"note"`
}

func (h *Handler) sendToLegal(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be a UUID")
		return
	}
	var payload legalPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	entry, err := h.service.SendToLegal(r.Context(), id, payload.Note)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toEntryResponse(entry))
}

func (h *Handler) markPendingApproval(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be a UUID")
		return
	}
	entry, err := h.service.MarkPendingApproval(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toEntryResponse(entry))
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be a UUID")
		return
	}
	entry, err := h.service.Approve(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toEntryResponse(entry))
}

func (h *Handler) exposure(w http.ResponseWriter, r *http.Request) {
	exposures, err := h.service.Exposure(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	type exposureResponse struct {
		Currency          string `json:"currency"`
		OutstandingCredit string `json:"outstanding_credit"`
		OutstandingDebit  string `json:"outstanding_debit"`
		BRLEquivalent     string `json:"brl_equivalent"`
		BRLDisplay        string `json:"brl_display"`
	}
	out := make([]exposureResponse, 0, len(exposures))
	for _, e := range exposures {
		out = append(out, exposureResponse{
			Currency:          string(e.Currency),
			OutstandingCredit: e.OutstandingCredit.StringFixed(2),
			OutstandingDebit:  e.OutstandingDebit.StringFixed(2),
			BRLEquivalent:     e.BRLEquivalent.StringFixed(2),
			BRLDisplay:        money.FormatBRL(e.BRLEquivalent),
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type accountPayload struct {
	Name     string `json:"name" validate:"required"`
	Currency string `json:"currency" validate:"required"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var payload accountPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	currency, err := money.ParseCurrency(payload.Currency)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.CreateAccount(r.Context(), CreateAccountInput{Name: payload.Name, Currency: currency})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":       account.ID,
		"name":     account.Name,
		"currency": string(account.Currency),
		"balance":  account.Balance.StringFixed(2),
	})
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, map[string]any{
			"id":       a.ID,
			"name":     a.Name,
			"currency": string(a.Currency),
			"balance":  a.Balance.StringFixed(2),
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrPaymentNotFound), errors.Is(err, partners.ErrPartnerNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidPayment), errors.Is(err, ErrOverpayment),
		errors.Is(err, ErrMissingExchangeRate), errors.Is(err, ErrRenegotiationMismatch),
		errors.Is(err, ErrInvalidInstallment), errors.Is(err, ErrInvalidEntry),
		errors.Is(err, ErrAlreadyReversed):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrEntryRetired):
		httpx.Problem(w, http.StatusConflict, "Entry Retired", err.Error())
	case errors.Is(err, ErrVersionConflict):
		httpx.Problem(w, http.StatusConflict, "Version Conflict", err.Error())
	case errors.Is(err, rates.ErrQuoteStale), errors.Is(err, rates.ErrQuoteNotFound):
		httpx.Problem(w, http.StatusConflict, "Exchange Rate Unavailable", err.Error())
	default:
		h.logger.Error("ledger handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
