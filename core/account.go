package core

// Account is the trading account snapshot used for sizing
type Account struct {
	ID              string
	Currency        string
	Balance         float64
	UnrealizedPL    float64
	MarginAvailable float64
	OpenTradeCount  int
}

// Equity returns balance plus floating profit
func (a Account) Equity() float64 {
	return a.Balance + a.UnrealizedPL
}
