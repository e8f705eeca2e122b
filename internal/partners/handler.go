package partners

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-cargo/meridian-cargo/internal/platform/httpx"
	"github.com/meridian-cargo/meridian-cargo/internal/shared"
)

// Handler exposes the partner registry over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers partner routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
}

type partnerPayload struct {
	Name            string `json:"name" validate:"required"`
	Document        string `json:"document"`
	ExchangeAgioPct string `json:"exchange_agio_pct" validate:"required"`
	PaymentTermDays int    `json:"payment_term_days" validate:"gte=0"`
}

type partnerResponse struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Document        string `json:"document"`
	ExchangeAgioPct string `json:"exchange_agio_pct"`
	PaymentTermDays int    `json:"payment_term_days"`
}

func toPartnerResponse(p Partner) partnerResponse {
	return partnerResponse{
		ID:              p.ID,
		Name:            p.Name,
		Document:        p.Document,
		ExchangeAgioPct: p.ExchangeRateAgio.String(),
		PaymentTermDays: p.PaymentTermDays,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload partnerPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	agio, err := decimal.NewFromString(payload.ExchangeAgioPct)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "exchange_agio_pct must be a decimal number")
		return
	}
	partner, err := h.service.Create(r.Context(), CreatePartnerInput{
		Name:             payload.Name,
		Document:         payload.Document,
		ExchangeRateAgio: agio,
		PaymentTermDays:  payload.PaymentTermDays,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPartnerResponse(partner))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "partner id must be numeric")
		return
	}
	var payload partnerPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	agio, err := decimal.NewFromString(payload.ExchangeAgioPct)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "exchange_agio_pct must be a decimal number")
		return
	}
	partner, err := h.service.Update(r.Context(), UpdatePartnerInput{
		ID:               id,
		Document:         payload.Document,
		ExchangeRateAgio: agio,
		PaymentTermDays:  payload.PaymentTermDays,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPartnerResponse(partner))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "partner id must be numeric")
		return
	}
	partner, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPartnerResponse(partner))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePage(r.URL.Query(), 50, 200)
	items, err := h.service.List(r.Context(), ListPartnersRequest{
		Query:  r.URL.Query().Get("q"),
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]partnerResponse, 0, len(items))
	for _, p := range items {
		out = append(out, toPartnerResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPartnerNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateName):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrNameRequired), errors.Is(err, ErrNegativeAgio), errors.Is(err, ErrInvalidPaymentTerm):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("partners handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
