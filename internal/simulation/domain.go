// Package simulation implements the import-duty (DI) cost simulator: it
// turns a commercial invoice into a fully taxed landed cost per line item,
// apportioning shared costs across items by FOB share.
package simulation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-cargo/meridian-cargo/internal/rates"
)

// Modal identifies the transport mode of the shipment. Maritime shipments
// attract computed storage and AFRMM expenses.
type Modal string

const (
	ModalMaritime Modal = "MARITIME"
	ModalAir      Modal = "AIR"
	ModalRoad     Modal = "ROAD"
)

// LineItem is one commercial-invoice line. TaxRates is filled from the rate
// table before a simulation can be finalized.
type LineItem struct {
	Description  string
	Quantity     decimal.Decimal
	UnitPriceUSD decimal.Decimal
	NCM          string
	WeightKg     decimal.Decimal
	TaxRates     *rates.TaxRates
}

// FOB returns the item's free-on-board value in USD.
func (li LineItem) FOB() decimal.Decimal {
	return li.Quantity.Mul(li.UnitPriceUSD)
}

// Expense is a manually entered local expense in BRL.
type Expense struct {
	Name      string
	AmountBRL decimal.Decimal
}

// SimulationInput collects everything the allocator needs. Construct it with
// NewSimulationInput so invalid data never reaches Allocate.
type SimulationInput struct {
	Items          []LineItem
	FreightUSD     decimal.Decimal
	InsuranceUSD   decimal.Decimal
	ExchangeRateDI decimal.Decimal
	ICMSRatePct    decimal.Decimal
	Modal          Modal
	Expenses       []Expense

	// PISCofinsBaseIncludesII selects which of the two historical tax-base
	// behaviors to reproduce: when true, PIS and COFINS are computed on
	// (customs value + II), matching the IPI base; when false, on the
	// customs value alone.
	PISCofinsBaseIncludesII bool
}

// InvalidInputError reports a user-correctable simulation input problem.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("simulation: invalid input: %s: %s", e.Field, e.Reason)
}

func invalidf(field, format string, args ...any) error {
	return &InvalidInputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NewSimulationInput validates and returns the input. Every rejection is an
// *InvalidInputError naming the offending field.
func NewSimulationInput(raw SimulationInput) (SimulationInput, error) {
	if err := raw.Validate(); err != nil {
		return SimulationInput{}, err
	}
	return raw, nil
}

// Validate checks the structural invariants required before allocation.
func (in SimulationInput) Validate() error {
	if len(in.Items) == 0 {
		return invalidf("items", "at least one line item is required")
	}
	for i, item := range in.Items {
		if !item.Quantity.IsPositive() {
			return invalidf(fmt.Sprintf("items[%d].quantity", i), "must be positive")
		}
		if !item.UnitPriceUSD.IsPositive() {
			return invalidf(fmt.Sprintf("items[%d].unit_price_usd", i), "must be positive")
		}
		if !item.WeightKg.IsPositive() {
			return invalidf(fmt.Sprintf("items[%d].weight_kg", i), "must be positive")
		}
		if !rates.ValidNCM(item.NCM) {
			return invalidf(fmt.Sprintf("items[%d].ncm", i), "must be an 8-digit code")
		}
		if item.TaxRates == nil {
			return invalidf(fmt.Sprintf("items[%d].tax_rates", i), "tax rates must be resolved before simulation")
		}
	}
	if !in.ExchangeRateDI.IsPositive() {
		return invalidf("exchange_rate_di", "must be positive")
	}
	if in.ICMSRatePct.IsNegative() {
		return invalidf("icms_rate_pct", "must not be negative")
	}
	if in.ICMSRatePct.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return invalidf("icms_rate_pct", "must be below 100")
	}
	if in.FreightUSD.IsNegative() {
		return invalidf("freight_usd", "must not be negative")
	}
	if in.InsuranceUSD.IsNegative() {
		return invalidf("insurance_usd", "must not be negative")
	}
	for i, exp := range in.Expenses {
		if exp.AmountBRL.IsNegative() {
			return invalidf(fmt.Sprintf("expenses[%d].amount_brl", i), "must not be negative")
		}
	}
	return nil
}

// TotalFOB sums the FOB of every line item in USD.
func (in SimulationInput) TotalFOB() decimal.Decimal {
	total := decimal.Zero
	for _, item := range in.Items {
		total = total.Add(item.FOB())
	}
	return total
}

// LineItemResult is the fully allocated landed cost of one line item, in BRL.
type LineItemResult struct {
	Description     string
	Quantity        decimal.Decimal
	FOBUSD          decimal.Decimal
	Share           decimal.Decimal
	CustomsValueBRL decimal.Decimal
	IIBRL           decimal.Decimal
	IPIBRL          decimal.Decimal
	PISBRL          decimal.Decimal
	COFINSBRL       decimal.Decimal
	ICMSBRL         decimal.Decimal
	ExpensesBRL     decimal.Decimal
	TotalCostBRL    decimal.Decimal
	UnitCostBRL     decimal.Decimal
}

// CostResult is the aggregate outcome of one allocation run. Immutable once
// computed; rerun Allocate when the input changes.
type CostResult struct {
	CustomsValueBRL  decimal.Decimal
	TotalIIBRL       decimal.Decimal
	TotalIPIBRL      decimal.Decimal
	TotalPISBRL      decimal.Decimal
	TotalCOFINSBRL   decimal.Decimal
	ICMSBaseBRL      decimal.Decimal
	TotalICMSBRL     decimal.Decimal
	TotalExpensesBRL decimal.Decimal
	TotalCostBRL     decimal.Decimal
	Items            []LineItemResult
}

// Simulation is a saved run: the validated input plus its result.
type Simulation struct {
	ID        int64
	Name      string
	Input     SimulationInput
	Result    CostResult
	CreatedAt time.Time
}
