package capacity

import (
	"errors"
	"testing"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		current int
		max     int
		wantErr bool
	}{
		{name: "empty cluster", current: 0, max: 50},
		{name: "one below the cap", current: 49, max: 50},
		{name: "at the cap", current: 50, max: 50, wantErr: true},
		{name: "above the cap", current: 53, max: 50, wantErr: true},
		{name: "cap of one", current: 1, max: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.current, tt.max)
			if tt.wantErr {
				if !errors.Is(err, ErrCapacityExceeded) {
					t.Fatalf("Expected ErrCapacityExceeded, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
		})
	}
}

func TestGuard_UsesDefaultCap(t *testing.T) {
	g := NewGuard(0)
	if g.Max() != DefaultMaxStores {
		t.Fatalf("Expected default cap %d, got %d", DefaultMaxStores, g.Max())
	}
	if err := g.Check(DefaultMaxStores - 1); err != nil {
		t.Errorf("Expected admission below the cap, got %v", err)
	}
	if err := g.Check(DefaultMaxStores); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("Expected denial at the cap, got %v", err)
	}
}
