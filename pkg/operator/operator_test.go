package operator

import (
	"math"
	"testing"

	"github.com/wisbric/hrctl/pkg/notify"
)

func TestNormalize(t *testing.T) {
	if got := normalize(50, 0); got != 0 {
		t.Errorf("normalize(50, 0) = %v, want 0 (avoid divide-by-zero)", got)
	}
	if got := normalize(50, 100); got != 0.5 {
		t.Errorf("normalize(50, 100) = %v, want 0.5", got)
	}
	if got := normalize(150, 100); got != 1 {
		t.Errorf("normalize(150, 100) = %v, want 1 (clamped)", got)
	}
}

func TestScore_WeightsSumToOne(t *testing.T) {
	got := score(1, 1, 1, 1)
	if math.Abs(got-1) > 1e-9 {
		t.Errorf("score(1,1,1,1) = %v, want 1 (weights must sum to 1)", got)
	}
}

func TestScore_WeightedByDimension(t *testing.T) {
	got := score(1, 0, 0, 0)
	if got != weightEmployees {
		t.Errorf("score with only employee signal = %v, want %v", got, weightEmployees)
	}
}

func TestSeverityFor(t *testing.T) {
	cases := []struct {
		kind notify.Kind
		want string
	}{
		{notify.KindSuspension, "critical"},
		{notify.KindCancellation, "critical"},
		{notify.KindPaymentFail, "major"},
		{notify.KindOverage, "major"},
		{notify.KindUsageWarning, "warning"},
		{notify.KindPlanChange, "info"},
	}
	for _, c := range cases {
		if got := severityFor(c.kind); got != c.want {
			t.Errorf("severityFor(%v) = %v, want %v", c.kind, got, c.want)
		}
	}
}
