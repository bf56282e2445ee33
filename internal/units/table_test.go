package units

import (
	"errors"
	"testing"
)

func TestDefaultTable(t *testing.T) {
	t.Parallel()
	tb, err := New(nil, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	checks := map[string]int64{
		"sec":   1,
		"min":   60,
		"hr":    3600,
		"hour":  3600,
		"day":   86400,
		"week":  604800,
		"month": 2419200,
		"year":  29030400,
		"yr":    29030400,
	}
	for name, want := range checks {
		got, ok := tb.SizeOf(name)
		if !ok || got != want {
			t.Fatalf("SizeOf(%q) = %d, %v; want %d", name, got, ok, want)
		}
	}

	sizes := tb.DistinctSizesDesc()
	want := []int64{29030400, 2419200, 604800, 86400, 3600, 60, 1}
	if len(sizes) != len(want) {
		t.Fatalf("DistinctSizesDesc() = %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("DistinctSizesDesc()[%d] = %d, want %d", i, sizes[i], want[i])
		}
	}
}

func TestOverrides(t *testing.T) {
	t.Parallel()
	tb, err := New(map[string]int64{"min": 100, "hour": 1000, "day": 10000, "week": 70000, "month": 280000, "year": 3360000}, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, _ := tb.SizeOf("min"); got != 100 {
		t.Fatalf("min = %d, want 100", got)
	}
	// Alias follows the overridden canonical size.
	if got, _ := tb.SizeOf("hr"); got != 1000 {
		t.Fatalf("hr = %d, want 1000", got)
	}
}

func TestOverrideErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		overrides map[string]int64
		factor    float64
	}{
		{name: "non-positive size", overrides: map[string]int64{"min": 0}, factor: 1},
		{name: "negative size", overrides: map[string]int64{"day": -5}, factor: 1},
		{name: "unknown unit", overrides: map[string]int64{"fortnight": 100}, factor: 1},
		{name: "ordering broken", overrides: map[string]int64{"day": 120}, factor: 1}, // day < hour
		{name: "not a multiple", overrides: map[string]int64{"min": 7}, factor: 1},
		{name: "zero factor", overrides: nil, factor: 0},
		{name: "negative factor", overrides: nil, factor: -2},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.overrides, tc.factor); !errors.Is(err, ErrConfig) {
				t.Fatalf("New() err = %v, want ErrConfig", err)
			}
		})
	}
}

func TestResolvePlural(t *testing.T) {
	t.Parallel()
	tb, err := New(nil, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := tb.Resolve("mins")
	if err != nil || got != 60 {
		t.Fatalf("Resolve(mins) = %d, %v; want 60", got, err)
	}
	if _, err := tb.Resolve("fortnight"); !errors.Is(err, ErrUnknownUnit) {
		t.Fatalf("Resolve(fortnight) err = %v, want ErrUnknownUnit", err)
	}
}

func TestNewCustom(t *testing.T) {
	t.Parallel()
	tb, err := NewCustom([]Def{{"tick", 10}, {"round", 100}, {"cycle", 1000}}, 2)
	if err != nil {
		t.Fatalf("NewCustom: %v", err)
	}
	// sec is added implicitly.
	if got, ok := tb.SizeOf("sec"); !ok || got != 1 {
		t.Fatalf("sec = %d, %v; want 1", got, ok)
	}
	sizes := tb.DistinctSizesDesc()
	if len(sizes) != 4 || sizes[0] != 1000 || sizes[3] != 1 {
		t.Fatalf("DistinctSizesDesc() = %v", sizes)
	}
	if tb.SpeedFactor() != 2 {
		t.Fatalf("SpeedFactor() = %g, want 2", tb.SpeedFactor())
	}

	if _, err := NewCustom([]Def{{"tick", 10}, {"round", 25}}, 1); !errors.Is(err, ErrConfig) {
		t.Fatalf("chain violation err = %v, want ErrConfig", err)
	}
	if _, err := NewCustom([]Def{{"sec", 2}}, 1); !errors.Is(err, ErrConfig) {
		t.Fatalf("sec size err = %v, want ErrConfig", err)
	}
}

func TestNameFor(t *testing.T) {
	t.Parallel()
	tb, err := New(nil, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := tb.NameFor(3600); got != "hour" {
		t.Fatalf("NameFor(3600) = %q, want hour", got)
	}
	if got := tb.NameFor(29030400); got != "year" {
		t.Fatalf("NameFor(year size) = %q, want year", got)
	}
}
