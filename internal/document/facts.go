package document

import "fmt"

// Category tags a document with the kind of facts it renders.
type Category string

const (
	CategoryPriceTechnical Category = "price_technical"
	CategoryFundamental    Category = "fundamental"
)

// Facts is a closed, per-category fact schema. Each implementation validates
// its required fields and renders its body in a fixed order so identical
// facts always produce byte-identical text.
type Facts interface {
	Category() Category

	// Validate reports a missing required fact as ErrValidation.
	Validate() error

	// Lines returns the category-specific body lines in render order.
	Lines() []string

	// Payload returns the numeric facts stored alongside the vector for
	// retrieval-time filtering.
	Payload() map[string]any
}

// PriceTechnicalFacts holds one trading day of price and indicator values.
// Close is a pointer so an absent price is distinguishable from zero. The
// indicator fields are pointers too: an indicator that could not be computed
// (not enough price history) stays nil and is omitted from the rendering and
// payload rather than indexed as a zero.
type PriceTechnicalFacts struct {
	Close      *float64
	ChangePct  float64
	Volume     int64
	MA5        *float64
	MA20       *float64
	MA60       *float64
	RSI14      *float64
	MACD       *float64
	MACDSignal *float64
	K          *float64
	D          *float64
	BBHigh     *float64
	BBLow      *float64
}

func (f *PriceTechnicalFacts) Category() Category { return CategoryPriceTechnical }

func (f *PriceTechnicalFacts) Validate() error {
	if f.Close == nil {
		return fmt.Errorf("%w: price_technical requires close", ErrValidation)
	}
	return nil
}

func (f *PriceTechnicalFacts) Lines() []string {
	lines := []string{
		fmt.Sprintf("close: %.2f", *f.Close),
		fmt.Sprintf("change_pct: %+.2f%%", f.ChangePct),
		fmt.Sprintf("volume: %d", f.Volume),
	}
	appendSet := func(label, format string, v *float64) {
		if v != nil {
			lines = append(lines, label+": "+fmt.Sprintf(format, *v))
		}
	}
	appendSet("ma5", "%.2f", f.MA5)
	appendSet("ma20", "%.2f", f.MA20)
	appendSet("ma60", "%.2f", f.MA60)
	appendSet("rsi14", "%.2f", f.RSI14)
	appendSet("macd", "%.4f", f.MACD)
	appendSet("macd_signal", "%.4f", f.MACDSignal)
	appendSet("k", "%.2f", f.K)
	appendSet("d", "%.2f", f.D)
	appendSet("bb_high", "%.2f", f.BBHigh)
	appendSet("bb_low", "%.2f", f.BBLow)
	return lines
}

func (f *PriceTechnicalFacts) Payload() map[string]any {
	p := map[string]any{
		"close":      *f.Close,
		"change_pct": f.ChangePct,
		"volume":     f.Volume,
	}
	set := func(key string, v *float64) {
		if v != nil {
			p[key] = *v
		}
	}
	set("ma5", f.MA5)
	set("ma20", f.MA20)
	set("ma60", f.MA60)
	set("rsi14", f.RSI14)
	set("macd", f.MACD)
	set("macd_signal", f.MACDSignal)
	set("k", f.K)
	set("d", f.D)
	set("bb_high", f.BBHigh)
	set("bb_low", f.BBLow)
	return p
}

// FundamentalFacts holds the latest financial-statement figures for a
// security, in TWD. Revenue is required (it is the denominator of the
// derived margins). Price, when positive together with EPS, yields a P/E
// line.
type FundamentalFacts struct {
	ReportDate      string // provider's statement date, ISO
	Revenue         *float64
	OperatingIncome float64
	NetIncome       float64
	EPS             float64
	Price           float64
}

func (f *FundamentalFacts) Category() Category { return CategoryFundamental }

func (f *FundamentalFacts) Validate() error {
	if f.Revenue == nil {
		return fmt.Errorf("%w: fundamental requires revenue", ErrValidation)
	}
	return nil
}

func (f *FundamentalFacts) Lines() []string {
	const million = 1_000_000

	lines := []string{
		fmt.Sprintf("report_date: %s", f.ReportDate),
		fmt.Sprintf("revenue_millions: %.2f", *f.Revenue/million),
		fmt.Sprintf("operating_income_millions: %.2f", f.OperatingIncome/million),
		fmt.Sprintf("net_income_millions: %.2f", f.NetIncome/million),
		fmt.Sprintf("eps: %.2f", f.EPS),
	}
	if *f.Revenue > 0 {
		lines = append(lines,
			fmt.Sprintf("operating_margin: %.2f%%", f.OperatingIncome / *f.Revenue*100),
			fmt.Sprintf("net_margin: %.2f%%", f.NetIncome / *f.Revenue*100),
		)
	}
	if f.Price > 0 && f.EPS > 0 {
		lines = append(lines, fmt.Sprintf("pe_ratio: %.2f", f.Price/f.EPS))
	}
	return lines
}

func (f *FundamentalFacts) Payload() map[string]any {
	p := map[string]any{
		"report_date":      f.ReportDate,
		"revenue":          *f.Revenue,
		"operating_income": f.OperatingIncome,
		"net_income":       f.NetIncome,
		"eps":              f.EPS,
	}
	if *f.Revenue > 0 {
		p["operating_margin"] = f.OperatingIncome / *f.Revenue * 100
		p["net_margin"] = f.NetIncome / *f.Revenue * 100
	}
	if f.Price > 0 && f.EPS > 0 {
		p["pe_ratio"] = f.Price / f.EPS
	}
	return p
}
