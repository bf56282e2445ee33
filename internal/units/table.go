// Package units holds the configured game-time unit hierarchy and the
// global speed factor. A Table is built once at startup and immutable
// afterwards; every other component holds it by reference.
package units

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrConfig marks an invalid unit table; fatal at startup.
	ErrConfig = errors.New("invalid game time configuration")
	// ErrUnknownUnit marks a unit name that is not configured.
	ErrUnknownUnit = errors.New("unknown game time unit")
)

// Def names a unit and its size in base (game) seconds.
type Def struct {
	Name string
	Size int64
}

// Default hierarchy, sizes in base seconds. Month and year deliberately use
// flat 4-week / 12-month sizes; this system has no calendar semantics.
const (
	Sec   int64 = 1
	Min   int64 = 60
	Hour  int64 = 60 * Min
	Day   int64 = 24 * Hour
	Week  int64 = 7 * Day
	Month int64 = 4 * Week
	Year  int64 = 12 * Month
)

// defaultDefs is ordered smallest to largest. Aliases (hr/hour, yr/year)
// share a size and collapse in the distinct-size view.
func defaultDefs() []Def {
	return []Def{
		{"sec", Sec},
		{"min", Min},
		{"hr", Hour},
		{"hour", Hour},
		{"day", Day},
		{"week", Week},
		{"month", Month},
		{"year", Year},
		{"yr", Year},
	}
}

// Table is the immutable unit table plus speed factor.
type Table struct {
	sizes    map[string]int64
	ordered  []Def   // largest to smallest, aliases included
	distinct []int64 // descending, duplicates collapsed, ends in 1
	factor   float64
}

// Unit is one (name, size) pair as exposed by All().
type Unit struct {
	Name string
	Size int64
}

// New builds a table from the default hierarchy with optional per-unit size
// overrides (keyed by canonical or alias name, sizes in base seconds).
func New(overrides map[string]int64, factor float64) (*Table, error) {
	defs := defaultDefs()
	for name, size := range overrides {
		key := strings.ToLower(strings.TrimSpace(name))
		found := false
		for i := range defs {
			// Overriding either spelling moves its alias with it.
			if defs[i].Name == key || aliasPair[defs[i].Name] == key {
				defs[i].Size = size
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: override for unknown unit %q", ErrConfig, name)
		}
	}
	return build(defs, factor)
}

var aliasPair = map[string]string{
	"hour": "hr",
	"hr":   "hour",
	"year": "yr",
	"yr":   "year",
}

// NewCustom builds a table from a fully custom unit set, ordered smallest to
// largest. The set must contain "sec" with size 1 (it is added when missing)
// and form a chain of integer multiples.
func NewCustom(defs []Def, factor float64) (*Table, error) {
	cp := make([]Def, 0, len(defs)+1)
	hasSec := false
	for _, d := range defs {
		d.Name = strings.ToLower(strings.TrimSpace(d.Name))
		if d.Name == "" {
			return nil, fmt.Errorf("%w: unit with empty name", ErrConfig)
		}
		if d.Name == "sec" {
			hasSec = true
			if d.Size != 1 {
				return nil, fmt.Errorf("%w: sec must have size 1", ErrConfig)
			}
		}
		cp = append(cp, d)
	}
	if !hasSec {
		cp = append([]Def{{"sec", 1}}, cp...)
	}
	return build(cp, factor)
}

// build validates the smallest-to-largest def list and freezes the table.
func build(defs []Def, factor float64) (*Table, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("%w: speed factor must be positive, got %g", ErrConfig, factor)
	}
	sizes := make(map[string]int64, len(defs))
	prev := int64(0)
	prevName := ""
	for _, d := range defs {
		if d.Size <= 0 {
			return nil, fmt.Errorf("%w: unit %q has non-positive size %d", ErrConfig, d.Name, d.Size)
		}
		if _, dup := sizes[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate unit %q", ErrConfig, d.Name)
		}
		// Aliases repeat the previous size; everything else must grow by an
		// integer multiple so breakdowns stay exact.
		if prev > 0 && d.Size != prev {
			if d.Size < prev {
				return nil, fmt.Errorf("%w: unit %q (%d) must not be smaller than %q (%d)",
					ErrConfig, d.Name, d.Size, prevName, prev)
			}
			if d.Size%prev != 0 {
				return nil, fmt.Errorf("%w: unit %q (%d) is not an integer multiple of %q (%d)",
					ErrConfig, d.Name, d.Size, prevName, prev)
			}
		}
		sizes[d.Name] = d.Size
		prev = d.Size
		prevName = d.Name
	}

	ordered := make([]Def, len(defs))
	copy(ordered, defs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Size > ordered[j].Size })

	distinct := make([]int64, 0, len(ordered))
	for _, d := range ordered {
		if n := len(distinct); n == 0 || distinct[n-1] != d.Size {
			distinct = append(distinct, d.Size)
		}
	}

	return &Table{sizes: sizes, ordered: ordered, distinct: distinct, factor: factor}, nil
}

// SpeedFactor is the ratio of game seconds per real second.
func (t *Table) SpeedFactor() float64 { return t.factor }

// SizeOf returns the size of the named unit in base seconds.
func (t *Table) SizeOf(name string) (int64, bool) {
	s, ok := t.sizes[strings.ToLower(name)]
	return s, ok
}

// Resolve looks up a unit by name, accepting a trailing plural "s"
// ("mins" resolves like "min"). Unknown names fail with ErrUnknownUnit.
func (t *Table) Resolve(name string) (int64, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if s, ok := t.sizes[key]; ok {
		return s, nil
	}
	if strings.HasSuffix(key, "s") {
		if s, ok := t.sizes[key[:len(key)-1]]; ok {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, name)
}

// All returns every configured unit, aliases included, largest first.
func (t *Table) All() []Unit {
	out := make([]Unit, len(t.ordered))
	for i, d := range t.ordered {
		out[i] = Unit{Name: d.Name, Size: d.Size}
	}
	return out
}

// DistinctSizesDesc returns the distinct unit sizes, largest first. Aliases
// with equal sizes collapse to one entry; the final element is always 1.
func (t *Table) DistinctSizesDesc() []int64 {
	out := make([]int64, len(t.distinct))
	copy(out, t.distinct)
	return out
}

// NameFor returns a canonical display name for the given size, preferring
// the longest configured spelling ("hour" over "hr").
func (t *Table) NameFor(size int64) string {
	best := ""
	for _, d := range t.ordered {
		if d.Size == size && len(d.Name) > len(best) {
			best = d.Name
		}
	}
	return best
}
