package indicator

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"moneymaker/internal/timeframe"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func series(t *testing.T, capacity int, values ...string) *timeframe.Timeframe {
	t.Helper()
	tf := timeframe.MustNew(capacity)
	for i, v := range values {
		tf.Add(timeframe.Tick{
			Time:  epoch.Add(time.Duration(i) * time.Minute),
			Value: decimal.RequireFromString(v),
		})
	}
	return tf
}

func assertSeries(t *testing.T, label string, got *timeframe.Timeframe, want ...string) {
	t.Helper()
	ticks := got.Ticks()
	if len(ticks) != len(want) {
		t.Fatalf("%s: expected %d values, got %d", label, len(want), len(ticks))
	}
	for i, w := range want {
		if !ticks[i].Value.Equal(decimal.RequireFromString(w)) {
			t.Errorf("%s[%d]: got %s, want %s", label, i, ticks[i].Value, w)
		}
	}
}

func apply(t *testing.T, ind Indicator, tf *timeframe.Timeframe) *timeframe.Timeframe {
	t.Helper()
	out, err := ind.Apply(tf)
	if err != nil {
		t.Fatalf("%s: %v", ind.Name(), err)
	}
	return out
}

// ────────────────────────────────────────────────────────────
// Rounding
// ────────────────────────────────────────────────────────────

func TestDivide_HalfEven(t *testing.T) {
	tests := []struct {
		num, den, want string
	}{
		{"1", "8", "0.125"},
		{"1", "3", "0.3333333333"},
		{"2", "3", "0.6666666667"},
		{"-2", "3", "-0.6666666667"},
		{"2", "-3", "-0.6666666667"},
		{"0.00000000025", "1", "0.0000000002"},  // tie, even stays
		{"0.00000000035", "1", "0.0000000004"},  // tie, odd rounds up
		{"-0.00000000035", "1", "-0.0000000004"}, // tie, away from zero
		{"0.000000000251", "1", "0.0000000003"}, // above tie
		{"17", "2", "8.5"},
	}
	for _, tc := range tests {
		got := divide(decimal.RequireFromString(tc.num), decimal.RequireFromString(tc.den))
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("%s/%s: got %s, want %s", tc.num, tc.den, got, tc.want)
		}
	}
}

// ────────────────────────────────────────────────────────────
// SMA
// ────────────────────────────────────────────────────────────

func TestSMA_Period2(t *testing.T) {
	tf := series(t, 5, "2", "4", "8", "9", "1")
	assertSeries(t, "SMA(2)", apply(t, NewSMA(2), tf), "2", "3", "6", "8.5", "5")
}

func TestSMA_Period3_ExpandingWindow(t *testing.T) {
	// 100, (100+102)/2, (100+102+104)/3, (102+104+103)/3, (104+103+105)/3
	tf := series(t, 5, "100", "102", "104", "103", "105")
	assertSeries(t, "SMA(3)", apply(t, NewSMA(3), tf), "100", "101", "102", "103", "104")
}

func TestSMA_RoundsToScale(t *testing.T) {
	tf := series(t, 3, "1", "1", "2")
	assertSeries(t, "SMA(3)", apply(t, NewSMA(3), tf), "1", "1", "1.3333333333")
}

func TestSMA_PreservesTimesAndCapacity(t *testing.T) {
	tf := series(t, 8, "1", "2", "3")
	out := apply(t, NewSMA(2), tf)
	if out.Cap() != tf.Cap() || out.Size() != tf.Size() {
		t.Fatalf("expected cap=%d size=%d, got cap=%d size=%d", tf.Cap(), tf.Size(), out.Cap(), out.Size())
	}
	in, got := tf.Ticks(), out.Ticks()
	for i := range in {
		if !in[i].Time.Equal(got[i].Time) {
			t.Errorf("tick %d: time %v, want %v", i, got[i].Time, in[i].Time)
		}
	}
}

func TestSMA_PeriodLargerThanSeries(t *testing.T) {
	tf := series(t, 4, "4", "8", "6")
	assertSeries(t, "SMA(50)", apply(t, NewSMA(50), tf), "4", "6", "6")
}

// ────────────────────────────────────────────────────────────
// EMA
// ────────────────────────────────────────────────────────────

func TestEMA_Period3(t *testing.T) {
	tf := series(t, 4, "10", "11", "12", "13")
	assertSeries(t, "EMA(3)", apply(t, NewEMA(3), tf), "10", "10.5", "11.25", "12.25")
}

func TestEMA_Alpha(t *testing.T) {
	tests := []struct {
		period int
		want   string
	}{
		{1, "1"},
		{3, "0.5"},
		{5, "0.3333333333"},
		{20, "0.0952380952"},
		{200, "0.0099502488"},
	}
	for _, tc := range tests {
		if got := NewEMA(tc.period).Alpha(); !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("alpha(%d): got %s, want %s", tc.period, got, tc.want)
		}
	}
}

func TestEMA_CappedWindow(t *testing.T) {
	// Values 2,4,8,16 with period 3. The window for index 3 starts at
	// index 1, so that chain restarts at 4 instead of carrying 5.5:
	//   i=0: 2
	//   i=1: 4·0.5 + 2·0.5 = 3
	//   i=2: 8·0.5 + 3·0.5 = 5.5
	//   i=3: window [4,8,16]: 4 → 6 → 11
	tf := series(t, 4, "2", "4", "8", "16")
	assertSeries(t, "EMA(3)", apply(t, NewEMA(3), tf), "2", "3", "5.5", "11")
}

func TestEMA_ConstantSeries(t *testing.T) {
	values := make([]string, 30)
	for i := range values {
		values[i] = "123.456"
	}
	tf := series(t, 30, values...)
	for _, p := range []int{1, 2, 7, 20, 200} {
		out := apply(t, NewEMA(p), tf)
		for i, tick := range out.Ticks() {
			if !tick.Value.Equal(decimal.RequireFromString("123.456")) {
				t.Fatalf("EMA(%d)[%d]: got %s, want constant 123.456", p, i, tick.Value)
			}
		}
	}
}

func TestEMA_Period1_IsIdentity(t *testing.T) {
	tf := series(t, 4, "3", "1", "4", "1")
	assertSeries(t, "EMA(1)", apply(t, NewEMA(1), tf), "3", "1", "4", "1")
}

// ────────────────────────────────────────────────────────────
// Shared properties
// ────────────────────────────────────────────────────────────

func TestIndicators_LengthAndBaseCase(t *testing.T) {
	tf := series(t, 10, "7", "3", "9", "4", "4", "12", "1")
	for _, ind := range []Indicator{NewSMA(3), NewEMA(3), NewSMMA(3), NewSMA(1), NewEMA(10)} {
		out := apply(t, ind, tf)
		if out.Size() != tf.Size() {
			t.Errorf("%s: size %d, want %d", ind.Name(), out.Size(), tf.Size())
		}
		first := out.Ticks()[0].Value
		if !first.Equal(decimal.NewFromInt(7)) {
			t.Errorf("%s: first value %s, want 7", ind.Name(), first)
		}
	}
}

func TestIndicators_EmptyInput(t *testing.T) {
	tf := timeframe.MustNew(5)
	for _, ind := range []Indicator{NewSMA(3), NewEMA(3), NewSMMA(3), NewRSI(3)} {
		out := apply(t, ind, tf)
		if out.Size() != 0 {
			t.Errorf("%s: expected empty output, got %d ticks", ind.Name(), out.Size())
		}
	}
}

func TestIndicators_InvalidPeriod(t *testing.T) {
	tf := series(t, 3, "1", "2", "3")
	for _, ind := range []Indicator{NewSMA(0), NewEMA(-1), NewSMMA(0), NewRSI(0)} {
		if _, err := ind.Apply(tf); !errors.Is(err, ErrInvalidPeriod) {
			t.Errorf("%s: expected ErrInvalidPeriod, got %v", ind.Name(), err)
		}
	}
}

func TestIndicators_DoNotMutateInput(t *testing.T) {
	tf := series(t, 4, "1", "2", "3", "4")
	for _, ind := range []Indicator{NewSMA(2), NewEMA(2), NewSMMA(2), NewRSI(2)} {
		apply(t, ind, tf)
	}
	assertSeries(t, "input", tf, "1", "2", "3", "4")
}

func TestIndicators_KeepInputOrderWhenClockStepsBack(t *testing.T) {
	tf := timeframe.MustNew(3)
	for i, v := range []int64{1, 5, 9} {
		tf.Add(timeframe.Tick{
			Time:  epoch.Add(time.Duration(2-i) * time.Second),
			Value: decimal.NewFromInt(v),
		})
	}
	in := tf.Ticks()

	for _, ind := range []Indicator{NewSMA(1), NewEMA(1), NewSMMA(1)} {
		out := apply(t, ind, tf)
		assertSeries(t, ind.Name(), out, "1", "5", "9")
		for i, tick := range out.Ticks() {
			if !tick.Time.Equal(in[i].Time) {
				t.Errorf("%s[%d]: time %s, want %s", ind.Name(), i, tick.Time, in[i].Time)
			}
		}
	}
	assertSeries(t, "SMA_2", apply(t, NewSMA(2), tf), "1", "3", "7")
}

// ────────────────────────────────────────────────────────────
// SMMA Correctness (Wilder's Smoothing)
// ────────────────────────────────────────────────────────────

func TestSMMA_Period3(t *testing.T) {
	// Seed is SMA(3) = 102, then (prev*2 + price)/3:
	//   (102*2 + 103)/3 = 102.3333333333
	//   (102.3333333333*2 + 105)/3 = 103.2222222222
	tf := series(t, 5, "100", "102", "104", "103", "105")
	assertSeries(t, "SMMA(3)", apply(t, NewSMMA(3), tf),
		"100", "101", "102", "102.3333333333", "103.2222222222")
}

// ────────────────────────────────────────────────────────────
// RSI Correctness (Wilder's Method)
// ────────────────────────────────────────────────────────────

func TestRSI_Period5(t *testing.T) {
	// Deltas: +0.34, -0.25, -0.48, +0.72, +0.50, +0.27
	// After 5 deltas: avgGain = 1.56/5 = 0.312, avgLoss = 0.73/5 = 0.146
	//   RSI = 100*0.312/0.458 = 68.1222707424
	// Delta 6 (+0.27): avgGain = (0.312*4+0.27)/5 = 0.3036
	//                  avgLoss = (0.146*4)/5    = 0.1168
	tf := series(t, 7, "44", "44.34", "44.09", "43.61", "44.33", "44.83", "45.10")
	out := apply(t, NewRSI(5), tf)
	ticks := out.Ticks()

	if !ticks[0].Value.Equal(decimal.NewFromInt(50)) {
		t.Errorf("RSI[0]: got %s, want 50", ticks[0].Value)
	}
	if !ticks[1].Value.Equal(decimal.NewFromInt(100)) {
		t.Errorf("RSI[1]: got %s, want 100 (no losses yet)", ticks[1].Value)
	}
	if want := decimal.RequireFromString("68.1222707424"); !ticks[5].Value.Equal(want) {
		t.Errorf("RSI[5]: got %s, want %s", ticks[5].Value, want)
	}
	if want := decimal.RequireFromString("72.2169362512"); !ticks[6].Value.Equal(want) {
		t.Errorf("RSI[6]: got %s, want %s", ticks[6].Value, want)
	}
}

func TestRSI_FlatSeriesIsNeutral(t *testing.T) {
	tf := series(t, 4, "5", "5", "5", "5")
	assertSeries(t, "RSI(2)", apply(t, NewRSI(2), tf), "50", "50", "50", "50")
}

func TestRSI_Bounds(t *testing.T) {
	tf := series(t, 12, "10", "12", "9", "15", "3", "7", "7", "20", "1", "2", "8", "6")
	for i, tick := range apply(t, NewRSI(4), tf).Ticks() {
		if tick.Value.IsNegative() || tick.Value.GreaterThan(decimal.NewFromInt(100)) {
			t.Errorf("RSI[%d] = %s outside [0,100]", i, tick.Value)
		}
	}
}

// ────────────────────────────────────────────────────────────
// Factory
// ────────────────────────────────────────────────────────────

func TestNew(t *testing.T) {
	tests := []struct {
		cfg  Config
		name string
	}{
		{Config{Type: "sma", Period: 20}, "SMA_20"},
		{Config{Type: "EMA", Period: 9}, "EMA_9"},
		{Config{Type: "SMMA", Period: 14}, "SMMA_14"},
		{Config{Type: "rsi", Period: 14}, "RSI_14"},
	}
	for _, tc := range tests {
		ind, err := New(tc.cfg)
		if err != nil {
			t.Fatalf("%+v: %v", tc.cfg, err)
		}
		if ind.Name() != tc.name || ind.Period() != tc.cfg.Period {
			t.Errorf("%+v: got %s/%d", tc.cfg, ind.Name(), ind.Period())
		}
	}

	if _, err := New(Config{Type: "MACD", Period: 3}); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := New(Config{Type: "SMA", Period: 0}); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}
