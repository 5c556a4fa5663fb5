package risk

// Portfolio is the cash and single-instrument holdings used for trade validation
type Portfolio struct {
	Cash           float64
	Positions      map[string]int     // ticker -> shares
	PositionValues map[string]float64 // ticker -> marked value
}

// NewPortfolio creates an all-cash portfolio
func NewPortfolio(cash float64) *Portfolio {
	return &Portfolio{
		Cash:           cash,
		Positions:      make(map[string]int),
		PositionValues: make(map[string]float64),
	}
}

// InvestedValue is the marked value of all positions
func (p *Portfolio) InvestedValue() float64 {
	total := 0.0
	for _, v := range p.PositionValues {
		total += v
	}
	return total
}

// TotalValue is cash plus positions
func (p *Portfolio) TotalValue() float64 {
	return p.Cash + p.InvestedValue()
}

// Holding reports the shares held in ticker
func (p *Portfolio) Holding(ticker string) (int, bool) {
	shares, ok := p.Positions[ticker]
	return shares, ok
}

// Mark revalues every open position at price
func (p *Portfolio) Mark(price float64) {
	for ticker, shares := range p.Positions {
		p.PositionValues[ticker] = float64(shares) * price
	}
}

// Open records a new position
func (p *Portfolio) Open(ticker string, shares int, price, outlay float64) {
	p.Cash -= outlay
	p.Positions[ticker] = shares
	p.PositionValues[ticker] = float64(shares) * price
}

// Close removes a position and credits proceeds
func (p *Portfolio) Close(ticker string, proceeds float64) {
	p.Cash += proceeds
	delete(p.Positions, ticker)
	delete(p.PositionValues, ticker)
}
