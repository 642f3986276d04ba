package mode

import (
	"github.com/hiroq/fxcore/core"
	"github.com/hiroq/fxcore/indicator"
)

// DecideEntry returns the candidate entry side for a trade mode. The second
// return is false when the mode produces no candidate on this data.
func DecideEntry(tradeMode core.TradeMode, regime core.Regime, df *core.Dataframe) (core.Side, bool) {
	switch tradeMode {
	case core.ModeTrendFollow:
		return trendEntry(regime, df)
	case core.ModeScalpMomentum:
		return momentumEntry(df)
	case core.ModeScalpReversion:
		return reversionEntry(df)
	case core.ModeMicroScalp:
		return microEntry(df)
	}
	return "", false
}

// trendEntry follows the regime direction, falling back to the EMA spread
func trendEntry(regime core.Regime, df *core.Dataframe) (core.Side, bool) {
	if regime.Direction != "" {
		return regime.Direction, true
	}

	emaFast := indicator.Latest(df, indicator.KeyEMAFast)
	emaSlow := indicator.Latest(df, indicator.KeyEMASlow)
	if indicator.IsNull(emaFast) || indicator.IsNull(emaSlow) {
		return "", false
	}
	switch {
	case emaFast > emaSlow:
		return core.SideLong, true
	case emaFast < emaSlow:
		return core.SideShort, true
	}
	return "", false
}

// momentumEntry trades in the direction of the MACD histogram, with RSI as
// tie-break
func momentumEntry(df *core.Dataframe) (core.Side, bool) {
	hist := indicator.Latest(df, indicator.KeyMACDHist)
	if !indicator.IsNull(hist) && hist != 0 {
		if hist > 0 {
			return core.SideLong, true
		}
		return core.SideShort, true
	}

	rsi := indicator.Latest(df, indicator.KeyRSI)
	if indicator.IsNull(rsi) {
		return "", false
	}
	switch {
	case rsi > 50:
		return core.SideLong, true
	case rsi < 50:
		return core.SideShort, true
	}
	return "", false
}

// reversionEntry fades a close outside the Bollinger bands, falling back to
// the mid-EMA anchor
func reversionEntry(df *core.Dataframe) (core.Side, bool) {
	if df.Len() == 0 {
		return "", false
	}
	close := df.Close.Last(0)

	upper := indicator.Latest(df, indicator.KeyBBUpper)
	lower := indicator.Latest(df, indicator.KeyBBLower)
	if !indicator.IsNull(upper) && close > upper {
		return core.SideShort, true
	}
	if !indicator.IsNull(lower) && close < lower {
		return core.SideLong, true
	}

	emaMid := indicator.Latest(df, indicator.KeyEMAMid)
	if indicator.IsNull(emaMid) {
		return "", false
	}
	switch {
	case close > emaMid:
		return core.SideShort, true
	case close < emaMid:
		return core.SideLong, true
	}
	return "", false
}

// microEntry trades the direction of the last completed candle's body
func microEntry(df *core.Dataframe) (core.Side, bool) {
	c := df.LastCandle()
	if c.IsEmpty() || c.Close == c.Open {
		return "", false
	}
	if c.Close > c.Open {
		return core.SideLong, true
	}
	return core.SideShort, true
}
