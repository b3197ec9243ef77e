package tenant

import (
	"context"
	"testing"
)

func TestIDRoundTrip(t *testing.T) {
	tests := []struct {
		n    int64
		want ID
	}{
		{1, "1"},
		{42, "42"},
		{1000000, "1000000"},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			got := IDFromInt64(tt.n)
			if got != tt.want {
				t.Errorf("IDFromInt64(%d) = %q, want %q", tt.n, got, tt.want)
			}
			back, err := got.Int64()
			if err != nil {
				t.Fatalf("Int64() error: %v", err)
			}
			if back != tt.n {
				t.Errorf("Int64() = %d, want %d", back, tt.n)
			}
		})
	}
}

func TestIDDefaultHasNoIntegerForm(t *testing.T) {
	if _, err := Default.Int64(); err == nil {
		t.Fatal("expected error converting Default to int64")
	}
	if !Default.IsDefault() {
		t.Fatal("expected Default.IsDefault() to be true")
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	// Without tenant set.
	if got := FromContext(ctx); got != nil {
		t.Fatalf("expected nil tenant, got %+v", got)
	}

	info := &Info{ID: "7", Name: "Acme Corp", Status: StatusActive}
	ctx = NewContext(ctx, info)

	got := FromContext(ctx)
	if got == nil {
		t.Fatal("expected tenant info, got nil")
	}
	if got.ID != "7" {
		t.Errorf("id = %q, want %q", got.ID, "7")
	}
}
