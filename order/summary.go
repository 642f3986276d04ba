package order

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/olekukonko/tablewriter"

	"github.com/hiroq/fxcore/core"
)

// TradeSummary accumulates closed-trade statistics for one instrument
type TradeSummary struct {
	Instrument       string
	WinLong          []float64
	WinLongPercent   []float64
	WinShort         []float64
	WinShortPercent  []float64
	LoseLong         []float64
	LoseLongPercent  []float64
	LoseShort        []float64
	LoseShortPercent []float64
	StopLossExits    int
}

// NewTradeSummary creates an empty summary for an instrument
func NewTradeSummary(instrument string) *TradeSummary {
	return &TradeSummary{Instrument: instrument}
}

// Record folds a closed trade into the summary
func (s *TradeSummary) Record(result core.TradeResult) {
	if result.StopLoss {
		s.StopLossExits++
	}

	long := result.Side == core.SideLong
	switch {
	case result.ProfitPips >= 0 && long:
		s.WinLong = append(s.WinLong, result.ProfitPips)
		s.WinLongPercent = append(s.WinLongPercent, result.ProfitPct)
	case result.ProfitPips >= 0:
		s.WinShort = append(s.WinShort, result.ProfitPips)
		s.WinShortPercent = append(s.WinShortPercent, result.ProfitPct)
	case long:
		s.LoseLong = append(s.LoseLong, result.ProfitPips)
		s.LoseLongPercent = append(s.LoseLongPercent, result.ProfitPct)
	default:
		s.LoseShort = append(s.LoseShort, result.ProfitPips)
		s.LoseShortPercent = append(s.LoseShortPercent, result.ProfitPct)
	}
}

// Win returns the pip results of all winning trades
func (s TradeSummary) Win() []float64 {
	return append(append([]float64{}, s.WinLong...), s.WinShort...)
}

// WinPercent returns the percentage results of all winning trades
func (s TradeSummary) WinPercent() []float64 {
	return append(append([]float64{}, s.WinLongPercent...), s.WinShortPercent...)
}

// Lose returns the pip results of all losing trades
func (s TradeSummary) Lose() []float64 {
	return append(append([]float64{}, s.LoseLong...), s.LoseShort...)
}

// LosePercent returns the percentage results of all losing trades
func (s TradeSummary) LosePercent() []float64 {
	return append(append([]float64{}, s.LoseLongPercent...), s.LoseShortPercent...)
}

// ProfitPips is the total pip result across all trades
func (s TradeSummary) ProfitPips() float64 {
	return sumSlice(s.Win()) + sumSlice(s.Lose())
}

// SQN is sqrt(n) * mean / stddev of per-trade pip results
func (s TradeSummary) SQN() float64 {
	all := append(s.Win(), s.Lose()...)
	n := float64(len(all))
	if n == 0 {
		return 0
	}

	avg := s.ProfitPips() / n
	variance := 0.0
	for _, pips := range all {
		variance += math.Pow(pips-avg, 2)
	}
	std := math.Sqrt(variance / n)
	if std == 0 {
		return 0
	}
	return math.Sqrt(n) * (avg / std)
}

// Payoff is the ratio of average win to average loss
func (s TradeSummary) Payoff() float64 {
	wins, losses := s.WinPercent(), s.LosePercent()
	if len(wins) == 0 || len(losses) == 0 {
		return 0
	}
	avgLoss := average(losses)
	if avgLoss == 0 {
		return 0
	}
	return average(wins) / math.Abs(avgLoss)
}

// ProfitFactor is the ratio of gross profit to gross loss
func (s TradeSummary) ProfitFactor() float64 {
	grossLoss := sumSlice(s.LosePercent())
	if grossLoss == 0 {
		return 0
	}
	return sumSlice(s.WinPercent()) / math.Abs(grossLoss)
}

// WinPercentage is the share of winning trades in percent
func (s TradeSummary) WinPercentage() float64 {
	wins := len(s.Win())
	total := wins + len(s.Lose())
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total) * 100
}

// String renders the summary as a text table
func (s TradeSummary) String() string {
	tableString := &strings.Builder{}
	table := tablewriter.NewWriter(tableString)

	data := [][]string{
		{"Instrument", s.Instrument},
		{"Trades", strconv.Itoa(len(s.Lose()) + len(s.Win()))},
		{"Win", strconv.Itoa(len(s.Win()))},
		{"Loss", strconv.Itoa(len(s.Lose()))},
		{"SL exits", strconv.Itoa(s.StopLossExits)},
		{"% Win", fmt.Sprintf("%.1f", s.WinPercentage())},
		{"Payoff", fmt.Sprintf("%.1f", s.Payoff()*100)},
		{"Pr.Fact", fmt.Sprintf("%.1f", s.ProfitFactor()*100)},
		{"SQN", fmt.Sprintf("%.2f", s.SQN())},
		{"Profit", fmt.Sprintf("%.1f pips", s.ProfitPips())},
	}

	table.AppendBulk(data)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	table.Render()

	return tableString.String()
}

// PrintReturns writes a histogram of per-trade returns to w
func (s TradeSummary) PrintReturns(w io.Writer) error {
	returns := append(s.WinPercent(), s.LosePercent()...)
	if len(returns) == 0 {
		return nil
	}
	hist := histogram.Hist(15, returns)
	return histogram.Fprint(w, hist, histogram.Linear(10))
}

func sumSlice(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sumSlice(values) / float64(len(values))
}
