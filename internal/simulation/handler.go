package simulation

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-cargo/meridian-cargo/internal/money"
	"github.com/meridian-cargo/meridian-cargo/internal/observability"
	"github.com/meridian-cargo/meridian-cargo/internal/partners"
	"github.com/meridian-cargo/meridian-cargo/internal/platform/httpx"
	"github.com/meridian-cargo/meridian-cargo/internal/rates"
	"github.com/meridian-cargo/meridian-cargo/internal/shared"
)

// Handler exposes the cost simulator over HTTP.
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

// MountRoutes registers simulation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/preview", h.preview)
	r.Post("/", h.save)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/to-invoice", h.toInvoice)
}

type lineItemPayload struct {
	Description  string `json:"description"`
	Quantity     string `json:"quantity" validate:"required"`
	UnitPriceUSD string `json:"unit_price_usd" validate:"required"`
	NCM          string `json:"ncm" validate:"required"`
	WeightKg     string `json:"weight_kg" validate:"required"`
}

type expensePayload struct {
	Name      string `json:"name" validate:"required"`
	AmountBRL string `json:"amount_brl" validate:"required"`
}

type simulationPayload struct {
	Name           string            `json:"name"`
	Items          []lineItemPayload `json:"items" validate:"required,min=1,dive"`
	FreightUSD     string            `json:"freight_usd"`
	InsuranceUSD   string            `json:"insurance_usd"`
	ExchangeRateDI string            `json:"exchange_rate_di" validate:"required"`
	ICMSRatePct    string            `json:"icms_rate_pct"`
	Modal          string            `json:"modal" validate:"omitempty,oneof=MARITIME AIR ROAD"`
	Expenses       []expensePayload  `json:"expenses" validate:"dive"`

	// Defaults to true when omitted, reproducing the II-inclusive base.
	PISCofinsBaseIncludesII *bool `json:"pis_cofins_base_includes_ii"`
}

func parseDecimal(field, raw string, optional bool) (decimal.Decimal, error) {
	if raw == "" {
		if optional {
			return decimal.Zero, nil
		}
		return decimal.Decimal{}, invalidf(field, "is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, invalidf(field, "must be a decimal number")
	}
	return d, nil
}

func (p simulationPayload) toInput() (SimulationInput, error) {
	input := SimulationInput{Modal: Modal(p.Modal), PISCofinsBaseIncludesII: true}
	if p.PISCofinsBaseIncludesII != nil {
		input.PISCofinsBaseIncludesII = *p.PISCofinsBaseIncludesII
	}
	var err error
	if input.FreightUSD, err = parseDecimal("freight_usd", p.FreightUSD, true); err != nil {
		return SimulationInput{}, err
	}
	if input.InsuranceUSD, err = parseDecimal("insurance_usd", p.InsuranceUSD, true); err != nil {
		return SimulationInput{}, err
	}
	if input.ExchangeRateDI, err = parseDecimal("exchange_rate_di", p.ExchangeRateDI, false); err != nil {
		return SimulationInput{}, err
	}
	if input.ICMSRatePct, err = parseDecimal("icms_rate_pct", p.ICMSRatePct, true); err != nil {
		return SimulationInput{}, err
	}
	for i, item := range p.Items {
		li := LineItem{Description: item.Description, NCM: item.NCM}
		prefix := "items[" + strconv.Itoa(i) + "]."
		if li.Quantity, err = parseDecimal(prefix+"quantity", item.Quantity, false); err != nil {
			return SimulationInput{}, err
		}
		if li.UnitPriceUSD, err = parseDecimal(prefix+"unit_price_usd", item.UnitPriceUSD, false); err != nil {
			return SimulationInput{}, err
		}
		if li.WeightKg, err = parseDecimal(prefix+"weight_kg", item.WeightKg, false); err != nil {
			return SimulationInput{}, err
		}
		input.Items = append(input.Items, li)
	}
	for i, exp := range p.Expenses {
		amount, err := parseDecimal("expenses["+strconv.Itoa(i)+"].amount_brl", exp.AmountBRL, false)
		if err != nil {
			return SimulationInput{}, err
		}
		input.Expenses = append(input.Expenses, Expense{Name: exp.Name, AmountBRL: amount})
	}
	return input, nil
}

type lineItemResultResponse struct {
	Description     string `json:"description"`
	Quantity        string `json:"quantity"`
	FOBUSD          string `json:"fob_usd"`
	SharePct        string `json:"share_pct"`
	CustomsValueBRL string `json:"customs_value_brl"`
	IIBRL           string `json:"ii_brl"`
	IPIBRL          string `json:"ipi_brl"`
	PISBRL          string `json:"pis_brl"`
	COFINSBRL       string `json:"cofins_brl"`
	ICMSBRL         string `json:"icms_brl"`
	ExpensesBRL     string `json:"expenses_brl"`
	TotalCostBRL    string `json:"total_cost_brl"`
	UnitCostBRL     string `json:"unit_cost_brl"`
}

type resultResponse struct {
	CustomsValueBRL  string                   `json:"customs_value_brl"`
	TotalIIBRL       string                   `json:"total_ii_brl"`
	TotalIPIBRL      string                   `json:"total_ipi_brl"`
	TotalPISBRL      string                   `json:"total_pis_brl"`
	TotalCOFINSBRL   string                   `json:"total_cofins_brl"`
	ICMSBaseBRL      string                   `json:"icms_base_brl"`
	TotalICMSBRL     string                   `json:"total_icms_brl"`
	TotalExpensesBRL string                   `json:"total_expenses_brl"`
	TotalCostBRL     string                   `json:"total_cost_brl"`
	TotalCostDisplay string                   `json:"total_cost_display"`
	Items            []lineItemResultResponse `json:"items"`
}

func toResultResponse(result CostResult) resultResponse {
	resp := resultResponse{
		CustomsValueBRL:  result.CustomsValueBRL.StringFixed(2),
		TotalIIBRL:       result.TotalIIBRL.StringFixed(2),
		TotalIPIBRL:      result.TotalIPIBRL.StringFixed(2),
		TotalPISBRL:      result.TotalPISBRL.StringFixed(2),
		TotalCOFINSBRL:   result.TotalCOFINSBRL.StringFixed(2),
		ICMSBaseBRL:      result.ICMSBaseBRL.StringFixed(2),
		TotalICMSBRL:     result.TotalICMSBRL.StringFixed(2),
		TotalExpensesBRL: result.TotalExpensesBRL.StringFixed(2),
		TotalCostBRL:     result.TotalCostBRL.StringFixed(2),
		TotalCostDisplay: money.FormatBRL(result.TotalCostBRL),
	}
	hundred := decimal.NewFromInt(100)
	for _, item := range result.Items {
		resp.Items = append(resp.Items, lineItemResultResponse{
			Description:     item.Description,
			Quantity:        item.Quantity.String(),
			FOBUSD:          item.FOBUSD.StringFixed(2),
			SharePct:        item.Share.Mul(hundred).StringFixed(4),
			CustomsValueBRL: item.CustomsValueBRL.StringFixed(2),
			IIBRL:           item.IIBRL.StringFixed(2),
			IPIBRL:          item.IPIBRL.StringFixed(2),
			PISBRL:          item.PISBRL.StringFixed(2),
			COFINSBRL:       item.COFINSBRL.StringFixed(2),
			ICMSBRL:         item.ICMSBRL.StringFixed(2),
			ExpensesBRL:     item.ExpensesBRL.StringFixed(2),
			TotalCostBRL:    item.TotalCostBRL.StringFixed(2),
			UnitCostBRL:     item.UnitCostBRL.StringFixed(2),
		})
	}
	return resp
}

type simulationResponse struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	CreatedAt string         `json:"created_at"`
	Result    resultResponse `json:"result"`
}

func toSimulationResponse(sim Simulation) simulationResponse {
	return simulationResponse{
		ID:        sim.ID,
		Name:      sim.Name,
		CreatedAt: sim.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		Result:    toResultResponse(sim.Result),
	}
}

func (h *Handler) decodeInput(w http.ResponseWriter, r *http.Request) (simulationPayload, SimulationInput, bool) {
	var payload simulationPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return simulationPayload{}, SimulationInput{}, false
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return simulationPayload{}, SimulationInput{}, false
	}
	input, err := payload.toInput()
	if err != nil {
		h.respondError(w, err)
		return simulationPayload{}, SimulationInput{}, false
	}
	return payload, input, true
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	_, input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	result, err := h.service.Preview(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.metrics.SimulationRun(string(input.Modal))
	httpx.JSON(w, http.StatusOK, toResultResponse(result))
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	payload, input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	sim, err := h.service.Save(r.Context(), payload.Name, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.metrics.SimulationRun(string(input.Modal))
	httpx.JSON(w, http.StatusCreated, toSimulationResponse(sim))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "simulation id must be numeric")
		return
	}
	sim, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSimulationResponse(sim))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePage(r.URL.Query(), 50, 200)
	sims, err := h.service.List(r.Context(), page.Limit, page.Offset)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]simulationResponse, 0, len(sims))
	for _, sim := range sims {
		out = append(out, toSimulationResponse(sim))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type toInvoicePayload struct {
	Partner   string `json:"partner" validate:"required"`
	ProcessID string `json:"process_id"`
}

func (h *Handler) toInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "simulation id must be numeric")
		return
	}
	var payload toInvoicePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entries, err := h.service.ConvertToEntries(r.Context(), id, ConvertInput{
		Partner:   payload.Partner,
		ProcessID: payload.ProcessID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"id":         e.ID.String(),
			"type":       string(e.Type),
			"partner":    e.Partner,
			"invoice_id": e.InvoiceID,
			"process_id": e.ProcessID,
			"amount":     e.Amount.StringFixed(2),
			"currency":   string(e.Currency),
			"due_date":   e.DueDate.Format("2006-01-02"),
		})
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var invalid *InvalidInputError
	switch {
	case errors.As(err, &invalid):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", invalid.Error())
	case errors.Is(err, rates.ErrNCMNotFound), errors.Is(err, rates.ErrInvalidNCM):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNameRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrSimulationNotFound), errors.Is(err, partners.ErrPartnerNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("simulation handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
