// Package config loads the flat key-value environment the core reads at
// startup. Unknown keys are ignored; missing keys fall back to the defaults
// documented on each field. Impossible values are rejected before the first
// tick.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hiroq/fxcore/core"
	str2duration "github.com/xhit/go-str2duration/v2"
)

// Config is the full threshold set of the decision core
type Config struct {
	// General
	Instrument   string        // FX_INSTRUMENT, default USDJPY
	Cadence      time.Duration // FX_CADENCE, default 60s
	ScalpCadence time.Duration // FX_SCALP_CADENCE, default 15s
	CallDeadline time.Duration // FX_CALL_DEADLINE, outbound call budget, default 10s

	// Regime classifier
	GrayUpper         float64 // FX_GRAY_UPPER, default 30
	GrayLower         float64 // FX_GRAY_LOWER, default 25
	ATRPercentileMin  float64 // FX_ATR_PCTL_MIN, default 10
	BreakLookback     int     // FX_BREAK_LOOKBACK, default 20
	ADXSlopeLookback  int     // FX_ADX_SLOPE_LOOKBACK, default 5

	// Mode selector
	TrendThreshold float64 // FX_TREND_THR, default 0.45
	RangeThreshold float64 // FX_RANGE_THR, default 0.55
	AdvisorVotes   int     // FX_ADVISOR_VOTES, default 3
	StratVoteMin   int     // FX_STRAT_VOTE_MIN, default 2

	// Entry filter cascade
	QuietStart1      int     // FX_QUIET_START1, hour, default 23
	QuietEnd1        int     // FX_QUIET_END1, hour, default 2
	QuietStart2      int     // FX_QUIET_START2, hour, default -1 (disabled)
	QuietEnd2        int     // FX_QUIET_END2, hour, default -1 (disabled)
	SessionTimezone  string  // FX_SESSION_TZ, default Asia/Tokyo
	SuppressionPips  float64 // FX_SUPPRESSION_PIPS, default 3
	MaxSpreadPips    float64 // FX_MAX_SPREAD_PIPS, default 2
	VolSpikeRatio    float64 // FX_VOL_SPIKE_RATIO, default 2.5
	TrendATRMin      float64 // FX_TREND_ATR_MIN, pips, default 2
	BBWidthMinPips   float64 // FX_BW_THRESH, default 3
	StrictRSICross   bool    // FX_STRICT_RSI_CROSS, default false
	RSICrossLookback int     // FX_RSI_CROSS_LOOKBACK, bars, default 5
	ReversalDiff     float64 // FX_REVERSAL_DIFF, default 25
	CounterTrendADX  float64 // FX_COUNTER_TREND_ADX, bypass threshold, default 35
	ClimaxZ          float64 // FX_CLIMAX_Z, default 2.0
	ClimaxZWindow    int     // FX_CLIMAX_Z_WINDOW, bars, default 50
	OvershootWindow  int     // FX_OVERSHOOT_WINDOW, candles, default 12
	OvershootATRMult float64 // FX_OVERSHOOT_ATR_MULT, default 1.5
	TailRatioBlock   float64 // FX_TAIL_RATIO_BLOCK, default 2.0
	RevBlockBars     int     // FX_REV_BLOCK_BARS, default 3
	VolSpikePeriod   int     // FX_VOL_SPIKE_PERIOD, volume average bars, default 20
	CompositeMin     float64 // FX_COMPOSITE_MIN, default 0.0
	CompositeLookback int    // FX_COMPOSITE_LOOKBACK, default 5
	CompositeWidthPeriod int // FX_COMPOSITE_WIDTH_PERIOD, default 20

	// Plan validation
	MinAbsSLPips float64 // FX_MIN_ABS_SL_PIPS, default 5
	ATRSLMult    float64 // FX_ATR_SL_MULT, default 1.2
	MinNetTPPips float64 // FX_MIN_NET_TP_PIPS, default 2
	MinRRR       float64 // FX_MIN_RRR, default 1.2
	MinTPProb    float64 // FX_MIN_TP_PROB, default 0.45
	TPATRMult    float64 // FX_TP_ATR_MULT, default 2.0
	LimitOffsetPips float64 // FX_LIMIT_OFFSET_PIPS, default 1.5
	LimitValidFor   int     // FX_LIMIT_VALID_FOR_SEC, default 120

	// Risk sizing
	RiskPct        float64 // FX_RISK_PCT, fraction per trade, default 0.01
	MinLot         float64 // FX_MIN_LOT, default 0.01
	MaxLot         float64 // FX_MAX_LOT, default 5
	PipValuePerLot float64 // FX_PIP_VALUE_PER_LOT, quote units, default 1000

	// Position supervisor
	MaxLimitAge        time.Duration // FX_MAX_LIMIT_AGE, default 60s
	LimitThresholdATR  float64       // FX_LIMIT_THRESHOLD_ATR_RATIO, default 0.3
	MaxLimitRetry      int           // FX_MAX_LIMIT_RETRY, default 3
	ConvertMinADX      float64       // FX_CONVERT_MIN_ADX, default 25
	ChandelierATRMult  float64       // FX_CHANDELIER_ATR_MULT, default 2.0
	HoldMin            time.Duration // FX_HOLD_MIN, default 10s
	HoldMax            time.Duration // FX_HOLD_MAX, default 300s
	ReentryCooldown    time.Duration // FX_REENTRY_COOLDOWN, default 300s
	TriggerPipsOverBreak float64     // FX_TRIGGER_PIPS_OVER_BREAK, default 1
	TrailAfterTP1      bool          // FX_TRAIL_AFTER_TP1, default true

	// Storage and notification
	OrderDB       string // FX_ORDER_DB, buntdb path, default fxcore.db
	TradeDB       string // FX_TRADE_DB, sqlite path, default fxcore_trades.db
	TelegramToken string // FX_TELEGRAM_TOKEN, empty disables telegram
	TelegramChat  int64  // FX_TELEGRAM_CHAT

	// Logging
	LogLevel string // FX_LOG_LEVEL, default info
	LogJSON  bool   // FX_LOG_JSON, default false
}

// Lookup resolves a configuration key, mirroring os.LookupEnv
type Lookup func(key string) (string, bool)

// FromEnv loads the configuration from the process environment
func FromEnv() (*Config, error) {
	return Load(os.LookupEnv)
}

// Load builds a Config from a lookup, applying defaults and validating
func Load(lookup Lookup) (*Config, error) {
	cfg := &Config{
		Instrument:   getString(lookup, "FX_INSTRUMENT", "USDJPY"),
		Cadence:      getDuration(lookup, "FX_CADENCE", 60*time.Second),
		ScalpCadence: getDuration(lookup, "FX_SCALP_CADENCE", 15*time.Second),
		CallDeadline: getDuration(lookup, "FX_CALL_DEADLINE", 10*time.Second),

		GrayUpper:        getFloat(lookup, "FX_GRAY_UPPER", 30),
		GrayLower:        getFloat(lookup, "FX_GRAY_LOWER", 25),
		ATRPercentileMin: getFloat(lookup, "FX_ATR_PCTL_MIN", 10),
		BreakLookback:    getInt(lookup, "FX_BREAK_LOOKBACK", 20),
		ADXSlopeLookback: getInt(lookup, "FX_ADX_SLOPE_LOOKBACK", 5),

		TrendThreshold: getFloat(lookup, "FX_TREND_THR", 0.45),
		RangeThreshold: getFloat(lookup, "FX_RANGE_THR", 0.55),
		AdvisorVotes:   getInt(lookup, "FX_ADVISOR_VOTES", 3),
		StratVoteMin:   getInt(lookup, "FX_STRAT_VOTE_MIN", 2),

		QuietStart1:      getInt(lookup, "FX_QUIET_START1", 23),
		QuietEnd1:        getInt(lookup, "FX_QUIET_END1", 2),
		QuietStart2:      getInt(lookup, "FX_QUIET_START2", -1),
		QuietEnd2:        getInt(lookup, "FX_QUIET_END2", -1),
		SessionTimezone:  getString(lookup, "FX_SESSION_TZ", "Asia/Tokyo"),
		SuppressionPips:  getFloat(lookup, "FX_SUPPRESSION_PIPS", 3),
		MaxSpreadPips:    getFloat(lookup, "FX_MAX_SPREAD_PIPS", 2),
		VolSpikeRatio:    getFloat(lookup, "FX_VOL_SPIKE_RATIO", 2.5),
		TrendATRMin:      getFloat(lookup, "FX_TREND_ATR_MIN", 2),
		BBWidthMinPips:   getFloat(lookup, "FX_BW_THRESH", 3),
		StrictRSICross:   getBool(lookup, "FX_STRICT_RSI_CROSS", false),
		RSICrossLookback: getInt(lookup, "FX_RSI_CROSS_LOOKBACK", 5),
		ReversalDiff:     getFloat(lookup, "FX_REVERSAL_DIFF", 25),
		CounterTrendADX:  getFloat(lookup, "FX_COUNTER_TREND_ADX", 35),
		ClimaxZ:          getFloat(lookup, "FX_CLIMAX_Z", 2.0),
		ClimaxZWindow:    getInt(lookup, "FX_CLIMAX_Z_WINDOW", 50),
		OvershootWindow:  getInt(lookup, "FX_OVERSHOOT_WINDOW", 12),
		OvershootATRMult: getFloat(lookup, "FX_OVERSHOOT_ATR_MULT", 1.5),
		TailRatioBlock:   getFloat(lookup, "FX_TAIL_RATIO_BLOCK", 2.0),
		RevBlockBars:     getInt(lookup, "FX_REV_BLOCK_BARS", 3),
		VolSpikePeriod:   getInt(lookup, "FX_VOL_SPIKE_PERIOD", 20),
		CompositeMin:     getFloat(lookup, "FX_COMPOSITE_MIN", 0.0),
		CompositeLookback: getInt(lookup, "FX_COMPOSITE_LOOKBACK", 5),
		CompositeWidthPeriod: getInt(lookup, "FX_COMPOSITE_WIDTH_PERIOD", 20),

		MinAbsSLPips:    getFloat(lookup, "FX_MIN_ABS_SL_PIPS", 5),
		ATRSLMult:       getFloat(lookup, "FX_ATR_SL_MULT", 1.2),
		MinNetTPPips:    getFloat(lookup, "FX_MIN_NET_TP_PIPS", 2),
		MinRRR:          getFloat(lookup, "FX_MIN_RRR", 1.2),
		MinTPProb:       getFloat(lookup, "FX_MIN_TP_PROB", 0.45),
		TPATRMult:       getFloat(lookup, "FX_TP_ATR_MULT", 2.0),
		LimitOffsetPips: getFloat(lookup, "FX_LIMIT_OFFSET_PIPS", 1.5),
		LimitValidFor:   getInt(lookup, "FX_LIMIT_VALID_FOR_SEC", 120),

		RiskPct:        getFloat(lookup, "FX_RISK_PCT", 0.01),
		MinLot:         getFloat(lookup, "FX_MIN_LOT", 0.01),
		MaxLot:         getFloat(lookup, "FX_MAX_LOT", 5),
		PipValuePerLot: getFloat(lookup, "FX_PIP_VALUE_PER_LOT", 1000),

		MaxLimitAge:       getDuration(lookup, "FX_MAX_LIMIT_AGE", 60*time.Second),
		LimitThresholdATR: getFloat(lookup, "FX_LIMIT_THRESHOLD_ATR_RATIO", 0.3),
		MaxLimitRetry:     getInt(lookup, "FX_MAX_LIMIT_RETRY", 3),
		ConvertMinADX:     getFloat(lookup, "FX_CONVERT_MIN_ADX", 25),
		ChandelierATRMult: getFloat(lookup, "FX_CHANDELIER_ATR_MULT", 2.0),
		HoldMin:           getDuration(lookup, "FX_HOLD_MIN", 10*time.Second),
		HoldMax:           getDuration(lookup, "FX_HOLD_MAX", 300*time.Second),
		ReentryCooldown:   getDuration(lookup, "FX_REENTRY_COOLDOWN", 300*time.Second),
		TriggerPipsOverBreak: getFloat(lookup, "FX_TRIGGER_PIPS_OVER_BREAK", 1),
		TrailAfterTP1:     getBool(lookup, "FX_TRAIL_AFTER_TP1", true),

		OrderDB:       getString(lookup, "FX_ORDER_DB", "fxcore.db"),
		TradeDB:       getString(lookup, "FX_TRADE_DB", "fxcore_trades.db"),
		TelegramToken: getString(lookup, "FX_TELEGRAM_TOKEN", ""),
		TelegramChat:  getInt64(lookup, "FX_TELEGRAM_CHAT", 0),

		LogLevel: getString(lookup, "FX_LOG_LEVEL", "info"),
		LogJSON:  getBool(lookup, "FX_LOG_JSON", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects impossible configurations before the first tick
func (c *Config) Validate() error {
	if c.Instrument == "" {
		return fmt.Errorf("instrument must not be empty")
	}
	if core.PipSize(c.Instrument) <= 0 {
		return core.ErrInvalidPipSize
	}
	if c.Cadence <= 0 || c.ScalpCadence <= 0 {
		return fmt.Errorf("cadence must be positive")
	}
	for name, v := range map[string]int{
		"FX_BREAK_LOOKBACK":     c.BreakLookback,
		"FX_RSI_CROSS_LOOKBACK": c.RSICrossLookback,
		"FX_CLIMAX_Z_WINDOW":    c.ClimaxZWindow,
		"FX_OVERSHOOT_WINDOW":   c.OvershootWindow,
		"FX_COMPOSITE_LOOKBACK": c.CompositeLookback,
	} {
		if v <= 0 {
			return fmt.Errorf("%s: %w", name, core.ErrNegativePeriod)
		}
	}
	if c.MinAbsSLPips <= 0 || c.MinRRR <= 0 {
		return fmt.Errorf("stop-loss floor and min RRR must be positive")
	}
	if c.RiskPct <= 0 || c.RiskPct >= 1 {
		return fmt.Errorf("risk fraction must be in (0, 1)")
	}
	if c.MinLot <= 0 || c.MaxLot < c.MinLot {
		return fmt.Errorf("lot bounds are inconsistent")
	}
	if c.HoldMax < c.HoldMin {
		return fmt.Errorf("scalp hold bounds are inconsistent")
	}
	if _, err := time.LoadLocation(c.SessionTimezone); err != nil {
		return fmt.Errorf("invalid session timezone %q: %w", c.SessionTimezone, err)
	}
	if hourOutOfRange(c.QuietStart1) || hourOutOfRange(c.QuietEnd1) ||
		hourOutOfRange(c.QuietStart2) || hourOutOfRange(c.QuietEnd2) {
		return fmt.Errorf("quiet hours must be -1 or in [0, 23]")
	}
	return nil
}

func hourOutOfRange(h int) bool {
	return h < -1 || h > 23
}

func getString(lookup Lookup, key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func getFloat(lookup Lookup, key string, fallback float64) float64 {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getInt(lookup Lookup, key string, fallback int) int {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getInt64(lookup Lookup, key string, fallback int64) int64 {
	if v, ok := lookup(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(lookup Lookup, key string, fallback bool) bool {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(lookup Lookup, key string, fallback time.Duration) time.Duration {
	if v, ok := lookup(key); ok {
		if d, err := str2duration.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
