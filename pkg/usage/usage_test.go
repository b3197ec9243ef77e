package usage

import (
	"testing"
	"time"
)

func TestCheckLimit_Unlimited(t *testing.T) {
	res := checkLimit(DimensionEmployees, 500, 0)
	if res.OverLimit || res.NearLimit {
		t.Error("a zero limit should mean unlimited, never over or near")
	}
}

func TestCheckLimit_NearAndOver(t *testing.T) {
	near := checkLimit(DimensionEmployees, 90, 100)
	if !near.NearLimit || near.OverLimit {
		t.Errorf("90/100 should be near but not over, got %+v", near)
	}
	over := checkLimit(DimensionEmployees, 150, 100)
	if !over.OverLimit {
		t.Errorf("150/100 should be over limit, got %+v", over)
	}
	if over.Ratio != 1.5 {
		t.Errorf("ratio = %v, want 1.5", over.Ratio)
	}
}

func TestPeriodStart_TruncatesToFirstOfMonthUTC(t *testing.T) {
	in := time.Date(2026, 3, 17, 14, 30, 0, 0, time.FixedZone("PST", -8*3600))
	got := periodStart(in)
	if got.Day() != 1 || got.Location() != time.UTC || got.Hour() != 0 {
		t.Errorf("periodStart(%v) = %v, want first-of-month UTC", in, got)
	}
}
