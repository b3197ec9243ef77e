package plan

import "testing"

func TestEffectivePrice_FallsBackWhenUnset(t *testing.T) {
	p := Plan{MonthlyPrice: 1000}
	if got := p.EffectivePrice(PeriodQuarterly); got != 3000 {
		t.Errorf("quarterly fallback = %d, want 3000", got)
	}
	if got := p.EffectivePrice(PeriodYearly); got != 12000 {
		t.Errorf("yearly fallback = %d, want 12000", got)
	}
	if got := p.EffectivePrice(PeriodMonthly); got != 1000 {
		t.Errorf("monthly = %d, want 1000", got)
	}
}

func TestEffectivePrice_UsesExplicitTierWhenSet(t *testing.T) {
	p := Plan{MonthlyPrice: 1000, QuarterlyPrice: 2700, YearlyPrice: 10000}
	if got := p.EffectivePrice(PeriodQuarterly); got != 2700 {
		t.Errorf("quarterly = %d, want 2700", got)
	}
	if got := p.EffectivePrice(PeriodYearly); got != 10000 {
		t.Errorf("yearly = %d, want 10000", got)
	}
}

func TestHasFeature(t *testing.T) {
	p := Plan{Features: []Feature{
		{Key: "sso", Type: "bool", Value: "true"},
		{Key: "export", Type: "bool", Value: "false"},
		{Key: "max_seats", Type: "int", Value: "50"},
	}}
	if !p.HasFeature("sso") {
		t.Error("expected sso feature to be present")
	}
	if p.HasFeature("export") {
		t.Error("expected export feature to be false")
	}
	if !p.HasFeature("max_seats") {
		t.Error("expected non-bool feature with a value to be truthy")
	}
	if p.HasFeature("nonexistent") {
		t.Error("expected missing feature to be falsy")
	}
}

func TestSubscriptionStatus_IsNonTerminal(t *testing.T) {
	cases := map[SubscriptionStatus]bool{
		SubStatusTrialing: true,
		SubStatusActive:   true,
		SubStatusPastDue:  true,
		SubStatusCanceled: false,
	}
	for status, want := range cases {
		if got := status.isNonTerminal(); got != want {
			t.Errorf("isNonTerminal(%q) = %v, want %v", status, got, want)
		}
	}
}
