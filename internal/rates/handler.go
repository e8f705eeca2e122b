package rates

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-cargo/meridian-cargo/internal/money"
	"github.com/meridian-cargo/meridian-cargo/internal/platform/httpx"
)

// Handler exposes the rate tables over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers rate routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/tax/{ncm}", h.getTaxRates)
	r.Put("/tax/{ncm}", h.upsertTaxRates)
	r.Get("/ptax", h.listQuotes)
	r.Get("/ptax/{currency}", h.getQuote)
	r.Put("/ptax/{currency}", h.upsertQuote)
}

type taxRatesPayload struct {
	II     string `json:"ii_pct" validate:"required"`
	IPI    string `json:"ipi_pct" validate:"required"`
	PIS    string `json:"pis_pct" validate:"required"`
	COFINS string `json:"cofins_pct" validate:"required"`
}

type taxRatesResponse struct {
	NCM    string `json:"ncm"`
	II     string `json:"ii_pct"`
	IPI    string `json:"ipi_pct"`
	PIS    string `json:"pis_pct"`
	COFINS string `json:"cofins_pct"`
}

type quoteResponse struct {
	Currency  string    `json:"currency"`
	Rate      string    `json:"rate"`
	FetchedAt time.Time `json:"fetched_at"`
}

func (h *Handler) getTaxRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.service.Lookup(r.Context(), chi.URLParam(r, "ncm"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, taxRatesResponse{
		NCM:    rates.NCM,
		II:     rates.II.String(),
		IPI:    rates.IPI.String(),
		PIS:    rates.PIS.String(),
		COFINS: rates.COFINS.String(),
	})
}

func (h *Handler) upsertTaxRates(w http.ResponseWriter, r *http.Request) {
	var payload taxRatesPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	parsed := make([]decimal.Decimal, 0, 4)
	for _, raw := range []string{payload.II, payload.IPI, payload.PIS, payload.COFINS} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tax percentages must be decimal numbers")
			return
		}
		parsed = append(parsed, d)
	}
	rates := TaxRates{
		NCM:    chi.URLParam(r, "ncm"),
		II:     parsed[0],
		IPI:    parsed[1],
		PIS:    parsed[2],
		COFINS: parsed[3],
	}
	if err := h.service.UpsertTaxRates(r.Context(), rates); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listQuotes(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.service.ListQuotes(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]quoteResponse, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, quoteResponse{Currency: string(q.Currency), Rate: q.Rate.String(), FetchedAt: q.FetchedAt})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getQuote(w http.ResponseWriter, r *http.Request) {
	currency, err := money.ParseCurrency(chi.URLParam(r, "currency"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	quote, err := h.service.Quote(r.Context(), currency)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quoteResponse{Currency: string(quote.Currency), Rate: quote.Rate.String(), FetchedAt: quote.FetchedAt})
}

type quotePayload struct {
	Rate string `json:"rate" validate:"required"`
}

func (h *Handler) upsertQuote(w http.ResponseWriter, r *http.Request) {
	currency, err := money.ParseCurrency(chi.URLParam(r, "currency"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var payload quotePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rate, err := decimal.NewFromString(payload.Rate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "rate must be a decimal number")
		return
	}
	if err := h.service.UpsertQuote(r.Context(), currency, rate); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNCMNotFound), errors.Is(err, ErrQuoteNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidNCM), errors.Is(err, ErrInvalidRate), errors.Is(err, money.ErrUnknownCurrency):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrQuoteStale):
		httpx.Problem(w, http.StatusConflict, "Stale Quote", err.Error())
	default:
		h.logger.Error("rates handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
