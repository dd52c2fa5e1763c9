package engine

import (
	"strings"
	"testing"

	"hedgeware/internal/core"
)

func TestNetPositionValue_BuyAndSell(t *testing.T) {
	start := dec("0")

	// BUY 100 @ 10.02 with c=0.005: -100*10.02 - 0.5
	afterBuy := newNetPositionValue(start, dec("0.005"), core.OrderSideBuy, 100, 0, dec("10.02"))
	if !afterBuy.Equal(dec("-1002.5")) {
		t.Errorf("expected -1002.5 after buy, got %s", afterBuy)
	}

	// SELL 100 @ 10.05: +100*10.05 - 0.5
	afterSell := newNetPositionValue(afterBuy, dec("0.005"), core.OrderSideSell, 0, 100, dec("10.05"))
	if !afterSell.Equal(dec("2")) {
		t.Errorf("expected 2 after round trip, got %s", afterSell)
	}
}

// Profit locking: a full round trip through one interval nets exactly
// s*p - 2*s*c. The middle buy at the next level stays open and is
// excluded by construction.
func TestProfitLocking_RoundTrip(t *testing.T) {
	st := newTestState(t, false)

	tick(st, "10.02", "10.02") // BUY interval 5 @ 10.02, position 100
	tick(st, "10.07", "10.07") // BUY interval 4 @ 10.07, position 200; arms sell at 10.05
	tick(st, "10.05", "10.05") // SELL interval 5 @ 10.05, position 100

	if st.Position != 100 {
		t.Fatalf("expected position 100, got %d", st.Position)
	}

	// Strip the open interval-4 buy out of the running value: what is
	// left is the locked round trip of interval 5.
	openBuy := dec("10.07").Mul(dec("100")).Add(dec("0.5"))
	locked := st.NetPositionValue.Add(openBuy)

	// s*p - 2*s*c = 100*0.03 - 2*100*0.005 = 2
	if !locked.Equal(dec("2")) {
		t.Errorf("expected locked profit 2, got %s", locked)
	}
}

// Scenario: one LONG interval bought at its trigger and closed at its
// sell level when the replay runs out.
func TestRealizedPnL_OnExhaustion(t *testing.T) {
	st := newTestState(t, false)

	tick(st, "10.02", "10.02") // BUY @ 10.02
	tick(st, "10.05", "10.05") // no trade, records last quote

	FinalizeOnExhausted(st)

	if st.Position != 0 {
		t.Fatalf("finalize must close the position, got %d", st.Position)
	}

	// (s*p - 2*s*c) / ((T+s)*P) * 100 = 2/6000*100
	expected := dec("2").Div(dec("6000")).Mul(dec("100"))
	if !st.RealizedPnLAsPercentage.Equal(expected) {
		t.Errorf("expected realized PnL %s%%, got %s%%", expected, st.RealizedPnLAsPercentage)
	}
}

func TestSetRealizedPnL_PanicsOnOpenPosition(t *testing.T) {
	st := newTestState(t, false)
	st.Position = 100

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic for realized PnL with open position")
		}
		if msg, ok := r.(string); !ok || !strings.Contains(msg, "position") {
			t.Errorf("panic lacks diagnostic context: %v", r)
		}
	}()
	SetRealizedPnL(st)
}

func TestExitPnL_KeepsLastValueWhenFlat(t *testing.T) {
	st := newTestState(t, false)

	tick(st, "10.02", "10.02")
	tick(st, "10.40", "10.40") // deep in profit, exit PnL recomputed
	inProfit := st.ExitPnLAsPercentage
	if !inProfit.GreaterThan(dec("0")) {
		t.Fatalf("expected positive exit PnL, got %s", inProfit)
	}

	// Force the position flat without booking a trade, then move the
	// quote: the exit PnL must not change any more.
	st.Position = 0
	tick(st, "9.50", "9.50")
	if !st.ExitPnLAsPercentage.Equal(inProfit) {
		t.Errorf("exit PnL changed while flat: %s != %s", st.ExitPnLAsPercentage, inProfit)
	}
}

func TestMilestones_LatchInDescendingOrder(t *testing.T) {
	st := newTestState(t, false)

	tick(st, "10.02", "10.02") // BUY 100 @ 10.02

	// Mark to 11.50: exit = (-1002.5 + 1150 - 0.5)/6000*100 = 2.45%
	tick(st, "11.50", "11.50")

	for _, m := range st.Milestones {
		if !m.Reached {
			t.Errorf("milestone %s should have latched at 2.45%% exit PnL", m.Threshold)
		}
		if !m.MaxLossWhenReached.Equal(st.MaxMovingLossAsPercentage) {
			t.Errorf("milestone %s latched max loss %s, want %s",
				m.Threshold, m.MaxLossWhenReached, st.MaxMovingLossAsPercentage)
		}
	}

	if !st.MaxMovingProfitAsPercentage.Equal(st.ExitPnLAsPercentage) {
		t.Errorf("max moving profit should equal the peak exit PnL")
	}
}

func TestMilestones_LatchOnlyOnce(t *testing.T) {
	st := newTestState(t, false)

	tick(st, "10.02", "10.02")
	tick(st, "10.40", "10.40") // exit ~0.61%: latches 0.25 and 0.5
	lossAtLatch := st.Milestones[len(st.Milestones)-1].MaxLossWhenReached

	tick(st, "9.60", "9.60") // drawdown deepens the loss watermark
	tick(st, "10.45", "10.45")

	last := st.Milestones[len(st.Milestones)-1]
	if !last.MaxLossWhenReached.Equal(lossAtLatch) {
		t.Errorf("milestone re-latched: %s != %s", last.MaxLossWhenReached, lossAtLatch)
	}
}
