package pricing

import "github.com/shopspring/decimal"

// Totals is the monetary breakdown persisted on an order at each
// transition.
type Totals struct {
	Nett    decimal.Decimal `json:"nett"`
	Tax     decimal.Decimal `json:"tax"`
	Service decimal.Decimal `json:"service"`
	Tip     decimal.Decimal `json:"tip"`
	Gross   decimal.Decimal `json:"gross"`
}

// Calculator computes totals from line price snapshots with flat tax and
// service-charge rates. It holds no state beyond its rates.
type Calculator struct {
	taxRate     decimal.Decimal
	serviceRate decimal.Decimal
}

func NewCalculator(taxRate, serviceRate decimal.Decimal) *Calculator {
	return &Calculator{taxRate: taxRate, serviceRate: serviceRate}
}

// ComputeTotals sums prices into nett, applies the rates on nett rounded
// to cents, and adds the tip into gross.
func (c *Calculator) ComputeTotals(prices []decimal.Decimal, tip decimal.Decimal) Totals {
	nett := decimal.Sum(decimal.Zero, prices...).Round(2)
	tax := nett.Mul(c.taxRate).Round(2)
	service := nett.Mul(c.serviceRate).Round(2)
	tip = tip.Round(2)

	return Totals{
		Nett:    nett,
		Tax:     tax,
		Service: service,
		Tip:     tip,
		Gross:   nett.Add(tax).Add(service).Add(tip),
	}
}
