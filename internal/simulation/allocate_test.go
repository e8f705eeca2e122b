package simulation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-cargo/meridian-cargo/internal/rates"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func taxRates(ii, ipi, pis, cofins string) *rates.TaxRates {
	return &rates.TaxRates{II: dec(ii), IPI: dec(ipi), PIS: dec(pis), COFINS: dec(cofins)}
}

// workedExample is the hand-verified single-item shipment: FOB 1000 USD,
// freight 1000, insurance 100, DI rate 5.00, ICMS 18%.
func workedExample() SimulationInput {
	return SimulationInput{
		Items: []LineItem{{
			Description:  "Hydraulic pump",
			Quantity:     dec("10"),
			UnitPriceUSD: dec("100"),
			NCM:          "12345678",
			WeightKg:     dec("50"),
			TaxRates:     taxRates("10", "5", "2", "9"),
		}},
		FreightUSD:              dec("1000"),
		InsuranceUSD:            dec("100"),
		ExchangeRateDI:          dec("5.00"),
		ICMSRatePct:             dec("18"),
		PISCofinsBaseIncludesII: true,
	}
}

func TestAllocateWorkedExample(t *testing.T) {
	result, err := Allocate(workedExample())
	require.NoError(t, err)

	// customsValue = (1000 + 1000 + 100) * 5.00
	require.True(t, result.CustomsValueBRL.Equal(dec("10500")), "CV %s", result.CustomsValueBRL)
	require.True(t, result.TotalIIBRL.Equal(dec("1050")), "II %s", result.TotalIIBRL)
	// IPI = (10500 + 1050) * 5%
	require.True(t, result.TotalIPIBRL.Equal(dec("577.50")), "IPI %s", result.TotalIPIBRL)
	// PIS/COFINS on (CV + II) = 11550
	require.True(t, result.TotalPISBRL.Equal(dec("231")), "PIS %s", result.TotalPISBRL)
	require.True(t, result.TotalCOFINSBRL.Equal(dec("1039.50")), "COFINS %s", result.TotalCOFINSBRL)
	// Gross-up: base = 13398 / 0.82, ICMS = base * 0.18
	require.True(t, result.ICMSBaseBRL.Equal(dec("16339.02")), "ICMS base %s", result.ICMSBaseBRL)
	require.True(t, result.TotalICMSBRL.Equal(dec("2941.02")), "ICMS %s", result.TotalICMSBRL)
	require.True(t, result.TotalExpensesBRL.IsZero())
	require.True(t, result.TotalCostBRL.Equal(dec("16339.02")), "total %s", result.TotalCostBRL)

	require.Len(t, result.Items, 1)
	item := result.Items[0]
	require.True(t, item.Share.Equal(dec("1")))
	require.True(t, item.TotalCostBRL.Equal(result.TotalCostBRL))
	require.True(t, item.UnitCostBRL.Equal(dec("1633.90")), "unit %s", item.UnitCostBRL)
}

func TestAllocatePISCofinsBaseFlag(t *testing.T) {
	in := workedExample()
	in.PISCofinsBaseIncludesII = false
	result, err := Allocate(in)
	require.NoError(t, err)

	// On the bare customs value: PIS = 10500 * 2%, COFINS = 10500 * 9%.
	require.True(t, result.TotalPISBRL.Equal(dec("210")), "PIS %s", result.TotalPISBRL)
	require.True(t, result.TotalCOFINSBRL.Equal(dec("945")), "COFINS %s", result.TotalCOFINSBRL)
	require.True(t, result.TotalICMSBRL.Equal(dec("2915.67")), "ICMS %s", result.TotalICMSBRL)
}

func multiItemInput() SimulationInput {
	return SimulationInput{
		Items: []LineItem{
			{
				Description:  "Bearings",
				Quantity:     dec("7"),
				UnitPriceUSD: dec("33.33"),
				NCM:          "84821010",
				WeightKg:     dec("12.5"),
				TaxRates:     taxRates("16", "3.25", "2.1", "9.65"),
			},
			{
				Description:  "Seals",
				Quantity:     dec("130"),
				UnitPriceUSD: dec("1.17"),
				NCM:          "40169300",
				WeightKg:     dec("4.2"),
				TaxRates:     taxRates("14", "0", "2.1", "9.65"),
			},
			{
				Description:  "Valve assembly",
				Quantity:     dec("3"),
				UnitPriceUSD: dec("219.99"),
				NCM:          "84812090",
				WeightKg:     dec("28"),
				TaxRates:     taxRates("12", "5", "2.1", "9.65"),
			},
		},
		FreightUSD:              dec("412.77"),
		InsuranceUSD:            dec("38.12"),
		ExchangeRateDI:          dec("5.1377"),
		ICMSRatePct:             dec("17"),
		Modal:                   ModalMaritime,
		Expenses:                []Expense{{Name: "Despachante", AmountBRL: dec("850.00")}},
		PISCofinsBaseIncludesII: true,
	}
}

func TestAllocateSumOfParts(t *testing.T) {
	result, err := Allocate(multiItemInput())
	require.NoError(t, err)

	itemTotal := decimal.Zero
	cv := decimal.Zero
	ii := decimal.Zero
	ipi := decimal.Zero
	pis := decimal.Zero
	cofins := decimal.Zero
	icms := decimal.Zero
	expenses := decimal.Zero
	for _, item := range result.Items {
		itemTotal = itemTotal.Add(item.TotalCostBRL)
		cv = cv.Add(item.CustomsValueBRL)
		ii = ii.Add(item.IIBRL)
		ipi = ipi.Add(item.IPIBRL)
		pis = pis.Add(item.PISBRL)
		cofins = cofins.Add(item.COFINSBRL)
		icms = icms.Add(item.ICMSBRL)
		expenses = expenses.Add(item.ExpensesBRL)
	}

	// Every allocated column reconciles exactly with its rounded total.
	require.True(t, itemTotal.Equal(result.TotalCostBRL), "items %s vs total %s", itemTotal, result.TotalCostBRL)
	require.True(t, cv.Equal(result.CustomsValueBRL))
	require.True(t, ii.Equal(result.TotalIIBRL))
	require.True(t, ipi.Equal(result.TotalIPIBRL))
	require.True(t, pis.Equal(result.TotalPISBRL))
	require.True(t, cofins.Equal(result.TotalCOFINSBRL))
	require.True(t, icms.Equal(result.TotalICMSBRL))
	require.True(t, expenses.Equal(result.TotalExpensesBRL))
}

func TestAllocateProportionality(t *testing.T) {
	in := workedExample()
	// Two items with identical FOB and rates split every pool evenly.
	in.Items = []LineItem{
		{Description: "Lot A", Quantity: dec("5"), UnitPriceUSD: dec("100"), NCM: "12345678", WeightKg: dec("25"), TaxRates: taxRates("10", "5", "2", "9")},
		{Description: "Lot B", Quantity: dec("5"), UnitPriceUSD: dec("100"), NCM: "12345678", WeightKg: dec("25"), TaxRates: taxRates("10", "5", "2", "9")},
	}
	result, err := Allocate(in)
	require.NoError(t, err)
	require.Len(t, result.Items, 2)

	cent := dec("0.01")
	a, b := result.Items[0], result.Items[1]
	for name, pair := range map[string][2]decimal.Decimal{
		"customs value": {a.CustomsValueBRL, b.CustomsValueBRL},
		"ii":            {a.IIBRL, b.IIBRL},
		"ipi":           {a.IPIBRL, b.IPIBRL},
		"pis":           {a.PISBRL, b.PISBRL},
		"cofins":        {a.COFINSBRL, b.COFINSBRL},
		"icms":          {a.ICMSBRL, b.ICMSBRL},
		"total":         {a.TotalCostBRL, b.TotalCostBRL},
	} {
		diff := pair[0].Sub(pair[1]).Abs()
		require.True(t, diff.LessThanOrEqual(cent), "%s differs by %s", name, diff)
	}
}

func TestAllocateICMSGrossUpIdentity(t *testing.T) {
	result, err := Allocate(multiItemInput())
	require.NoError(t, err)

	cent := dec("0.01")
	// base * rate == ICMS total.
	expectedICMS := result.ICMSBaseBRL.Mul(dec("0.17"))
	require.True(t, expectedICMS.Sub(result.TotalICMSBRL).Abs().LessThanOrEqual(cent))
	// base - ICMS == everything the ICMS sits on top of.
	rest := result.CustomsValueBRL.Add(result.TotalIIBRL).Add(result.TotalIPIBRL).
		Add(result.TotalPISBRL).Add(result.TotalCOFINSBRL)
	require.True(t, result.ICMSBaseBRL.Sub(result.TotalICMSBRL).Sub(rest).Abs().LessThanOrEqual(cent))
}

func TestAllocateIdempotent(t *testing.T) {
	first, err := Allocate(multiItemInput())
	require.NoError(t, err)
	second, err := Allocate(multiItemInput())
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestMaritimeComputedExpenses(t *testing.T) {
	in := workedExample()
	in.Modal = ModalMaritime
	result, err := Allocate(in)
	require.NoError(t, err)

	// Storage: 1% of CV (105) is under the 2500 floor, so the floor applies.
	// AFRMM: 8% of the BRL freight (1000 * 5.00 * 0.08 = 400).
	require.True(t, result.TotalExpensesBRL.Equal(dec("2900")), "expenses %s", result.TotalExpensesBRL)

	// Air shipments attract neither.
	in.Modal = ModalAir
	result, err = Allocate(in)
	require.NoError(t, err)
	require.True(t, result.TotalExpensesBRL.IsZero())
}

func TestMaritimeStorageAboveFloor(t *testing.T) {
	in := workedExample()
	in.Modal = ModalMaritime
	// Push the customs value high enough that 1% beats the floor:
	// CV = (60000 + 1000 + 100) * 5.00 = 305500, storage = 3055.
	in.Items[0].UnitPriceUSD = dec("6000")
	result, err := Allocate(in)
	require.NoError(t, err)
	require.True(t, result.TotalExpensesBRL.Equal(dec("3455")), "expenses %s", result.TotalExpensesBRL)
}

func TestSimulationInputValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SimulationInput)
		field  string
	}{
		{"no items", func(in *SimulationInput) { in.Items = nil }, "items"},
		{"zero quantity", func(in *SimulationInput) { in.Items[0].Quantity = decimal.Zero }, "items[0].quantity"},
		{"negative price", func(in *SimulationInput) { in.Items[0].UnitPriceUSD = dec("-1") }, "items[0].unit_price_usd"},
		{"zero weight", func(in *SimulationInput) { in.Items[0].WeightKg = decimal.Zero }, "items[0].weight_kg"},
		{"bad ncm", func(in *SimulationInput) { in.Items[0].NCM = "1234" }, "items[0].ncm"},
		{"missing rates", func(in *SimulationInput) { in.Items[0].TaxRates = nil }, "items[0].tax_rates"},
		{"zero fx", func(in *SimulationInput) { in.ExchangeRateDI = decimal.Zero }, "exchange_rate_di"},
		{"icms at 100", func(in *SimulationInput) { in.ICMSRatePct = dec("100") }, "icms_rate_pct"},
		{"negative icms", func(in *SimulationInput) { in.ICMSRatePct = dec("-1") }, "icms_rate_pct"},
		{"negative freight", func(in *SimulationInput) { in.FreightUSD = dec("-1") }, "freight_usd"},
		{"negative expense", func(in *SimulationInput) {
			in.Expenses = []Expense{{Name: "x", AmountBRL: dec("-1")}}
		}, "expenses[0].amount_brl"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := workedExample()
			tc.mutate(&in)
			_, err := NewSimulationInput(in)
			var invalid *InvalidInputError
			require.ErrorAs(t, err, &invalid)
			require.Equal(t, tc.field, invalid.Field)
		})
	}
}
