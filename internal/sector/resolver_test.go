package sector

import "testing"

func TestResolve(t *testing.T) {
	tests := []struct {
		raw      string
		fallback string
		want     string
	}{
		{"UNKNOWN CODE", "Banking", "Banking"},
		{"", "", "Other"},
		{"COMMERCIAL BANKS", "", "Banking"},
		{"  commercial   banks ", "", "Banking"},
		{"0823", "Energy", "Power"},
		{"823", "", "Power"},
		{"0807", "", "Banking"},
		{"9999", "", "Other"},
		{"9999", "Cement", "Cement"},
		{"Technology & Communication", "Other", "Technology"},
		{"banking", "", "Banking"},
		{"MISCELLANEOUS", "Food", "Other"},
		{"", "Tech", "Tech"},
		{"   ", "  ", "Other"},
	}
	for _, tt := range tests {
		if got := Resolve(tt.raw, tt.fallback); got != tt.want {
			t.Errorf("Resolve(%q,%q)=%q want %q", tt.raw, tt.fallback, got, tt.want)
		}
	}
}

func TestKnown(t *testing.T) {
	if !Known("cement") {
		t.Fatalf("expected cement to be known")
	}
	if Known("UNKNOWN CODE") {
		t.Fatalf("unexpected known label")
	}
}
