package format

import "testing"

// TestDuration verifies digit grouping for the masked duration field.
func TestDuration(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"5", "05"},
		{"45", "45"},
		{"1300", "13:00"},
		{"13000", "13:00"},
		{"013000", "01:30:00"},
		{"13:00", "13:00"},
		{"01:30:00", "01:30:00"},
		{"12m30s", "12:30"},
		{"9999999", "99:99:99"},
	}
	for _, tt := range tests {
		if got := Duration(tt.in); got != tt.want {
			t.Errorf("Duration(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestDurationIdempotent verifies that formatting its own output is a no-op.
func TestDurationIdempotent(t *testing.T) {
	inputs := []string{"13000", "5", "45", "1300", "013000", "0", "987654321"}
	for _, in := range inputs {
		once := Duration(in)
		twice := Duration(once)
		if once != twice {
			t.Errorf("Duration not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

// TestWeight verifies weight parsing with comma decimals and junk input.
func TestWeight(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"135", 135},
		{"62,5", 62.5},
		{" 80.25 ", 80.25},
		{"", 0},
		{"abc", 0},
		{"-10", 0},
	}
	for _, tt := range tests {
		if got := Weight(tt.in); got != tt.want {
			t.Errorf("Weight(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestReps verifies rep-count parsing.
func TestReps(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"8", 8},
		{" 12 ", 12},
		{"", 0},
		{"8.5", 0},
		{"-3", 0},
	}
	for _, tt := range tests {
		if got := Reps(tt.in); got != tt.want {
			t.Errorf("Reps(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
