package simulation

import (
	"github.com/shopspring/decimal"

	"github.com/meridian-cargo/meridian-cargo/internal/money"
)

// Computed maritime expenses: storage charges at the bonded warehouse and
// the AFRMM freight surcharge.
var (
	storageMinBRL     = decimal.NewFromInt(2500)
	storagePctOfCV    = decimal.NewFromFloat(0.01)
	afrmmPctOfFreight = decimal.NewFromFloat(0.08)
)

// ComputeCustomsValue returns the valor aduaneiro in BRL:
// (total FOB + freight + insurance) converted at the DI exchange rate.
func ComputeCustomsValue(in SimulationInput) (decimal.Decimal, error) {
	if err := in.Validate(); err != nil {
		return decimal.Decimal{}, err
	}
	totalFOB := in.TotalFOB()
	if !totalFOB.IsPositive() {
		return decimal.Decimal{}, invalidf("items", "total FOB must be positive")
	}
	return totalFOB.Add(in.FreightUSD).Add(in.InsuranceUSD).Mul(in.ExchangeRateDI), nil
}

// computedExpenses returns the modal-driven local expenses in BRL.
func computedExpenses(in SimulationInput, customsValueBRL decimal.Decimal) []Expense {
	if in.Modal != ModalMaritime {
		return nil
	}
	storage := customsValueBRL.Mul(storagePctOfCV)
	if storage.LessThan(storageMinBRL) {
		storage = storageMinBRL
	}
	freightBRL := in.FreightUSD.Mul(in.ExchangeRateDI)
	return []Expense{
		{Name: "Armazenagem", AmountBRL: storage},
		{Name: "AFRMM", AmountBRL: freightBRL.Mul(afrmmPctOfFreight)},
	}
}

// Allocate runs the full cost simulation. It is a pure function: identical
// input yields identical output and nothing is mutated.
//
// Tax cascade order is fixed: II on the allocated customs value, IPI on
// (customs value + II), PIS/COFINS on the base selected by the input flag,
// and ICMS grossed up once on the aggregate totals then apportioned by FOB
// share. Per-tax totals are sums of per-item values so the parts always
// reconcile with the whole.
func Allocate(in SimulationInput) (CostResult, error) {
	customsValueBRL, err := ComputeCustomsValue(in)
	if err != nil {
		return CostResult{}, err
	}

	totalFOB := in.TotalFOB()
	n := len(in.Items)

	shares := make([]decimal.Decimal, n)
	cv := make([]decimal.Decimal, n)
	ii := make([]decimal.Decimal, n)
	ipi := make([]decimal.Decimal, n)
	pis := make([]decimal.Decimal, n)
	cofins := make([]decimal.Decimal, n)

	totalII, totalIPI, totalPIS, totalCOFINS := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero

	for i, item := range in.Items {
		shares[i] = item.FOB().Div(totalFOB)
		cv[i] = customsValueBRL.Mul(shares[i])

		tr := item.TaxRates
		ii[i] = cv[i].Mul(money.Percent(tr.II))
		ipi[i] = cv[i].Add(ii[i]).Mul(money.Percent(tr.IPI))

		pcBase := cv[i]
		if in.PISCofinsBaseIncludesII {
			pcBase = cv[i].Add(ii[i])
		}
		pis[i] = pcBase.Mul(money.Percent(tr.PIS))
		cofins[i] = pcBase.Mul(money.Percent(tr.COFINS))

		totalII = totalII.Add(ii[i])
		totalIPI = totalIPI.Add(ipi[i])
		totalPIS = totalPIS.Add(pis[i])
		totalCOFINS = totalCOFINS.Add(cofins[i])
	}

	// ICMS gross-up: the tax is part of its own base, so the base is the
	// sum of everything else divided by (1 - rate). Computed once on the
	// totals and allocated by share to avoid per-item rounding drift.
	icmsRate := money.Percent(in.ICMSRatePct)
	icmsBase := customsValueBRL.Add(totalII).Add(totalIPI).Add(totalPIS).Add(totalCOFINS).
		Div(decimal.NewFromInt(1).Sub(icmsRate))
	totalICMS := icmsBase.Mul(icmsRate)
	icms := make([]decimal.Decimal, n)
	for i := range in.Items {
		icms[i] = totalICMS.Mul(shares[i])
	}

	totalExpenses := decimal.Zero
	for _, exp := range in.Expenses {
		totalExpenses = totalExpenses.Add(exp.AmountBRL)
	}
	for _, exp := range computedExpenses(in, customsValueBRL) {
		totalExpenses = totalExpenses.Add(exp.AmountBRL)
	}
	expenses := make([]decimal.Decimal, n)
	for i := range in.Items {
		expenses[i] = totalExpenses.Mul(shares[i])
	}

	// Round each allocated pool to cents, pushing the residual onto the
	// largest share so every column sums exactly to its rounded total.
	anchor := largestShare(shares)
	cvR := reconcile(cv, customsValueBRL, anchor)
	iiR := reconcile(ii, totalII, anchor)
	ipiR := reconcile(ipi, totalIPI, anchor)
	pisR := reconcile(pis, totalPIS, anchor)
	cofinsR := reconcile(cofins, totalCOFINS, anchor)
	icmsR := reconcile(icms, totalICMS, anchor)
	expensesR := reconcile(expenses, totalExpenses, anchor)

	result := CostResult{
		CustomsValueBRL:  money.Round2(customsValueBRL),
		TotalIIBRL:       money.Round2(totalII),
		TotalIPIBRL:      money.Round2(totalIPI),
		TotalPISBRL:      money.Round2(totalPIS),
		TotalCOFINSBRL:   money.Round2(totalCOFINS),
		ICMSBaseBRL:      money.Round2(icmsBase),
		TotalICMSBRL:     money.Round2(totalICMS),
		TotalExpensesBRL: money.Round2(totalExpenses),
		Items:            make([]LineItemResult, n),
	}

	totalCost := decimal.Zero
	for i, item := range in.Items {
		itemTotal := cvR[i].Add(iiR[i]).Add(ipiR[i]).Add(pisR[i]).Add(cofinsR[i]).Add(icmsR[i]).Add(expensesR[i])
		totalCost = totalCost.Add(itemTotal)
		result.Items[i] = LineItemResult{
			Description:     item.Description,
			Quantity:        item.Quantity,
			FOBUSD:          item.FOB(),
			Share:           shares[i],
			CustomsValueBRL: cvR[i],
			IIBRL:           iiR[i],
			IPIBRL:          ipiR[i],
			PISBRL:          pisR[i],
			COFINSBRL:       cofinsR[i],
			ICMSBRL:         icmsR[i],
			ExpensesBRL:     expensesR[i],
			TotalCostBRL:    itemTotal,
			UnitCostBRL:     money.Round2(itemTotal.Div(item.Quantity)),
		}
	}
	result.TotalCostBRL = totalCost

	return result, nil
}

// reconcile rounds each allocated value to cents and assigns the rounding
// residual of the pool to the anchor index.
func reconcile(values []decimal.Decimal, total decimal.Decimal, anchor int) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	sum := decimal.Zero
	for i, v := range values {
		out[i] = money.Round2(v)
		sum = sum.Add(out[i])
	}
	residual := money.Round2(total).Sub(sum)
	if !residual.IsZero() {
		out[anchor] = out[anchor].Add(residual)
	}
	return out
}

func largestShare(shares []decimal.Decimal) int {
	idx := 0
	for i := 1; i < len(shares); i++ {
		if shares[i].GreaterThan(shares[idx]) {
			idx = i
		}
	}
	return idx
}
