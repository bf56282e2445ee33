// Package convert implements the pure conversion math between real and
// game time: scalar conversion both ways, unit breakdowns, and resolution
// of a partial game-time target into a real-seconds delay.
package convert

import "gametimed/internal/units"

// realDivisors is the fixed real-world ladder (year, month, week, day,
// hour, min) used to format a real-time duration. It is independent of the
// configured game unit table: the quantity being formatted is real time.
var realDivisors = []int64{31536000, 2628000, 604800, 86400, 3600, 60}

// Converter is a stateless view over a unit table. Safe for concurrent use.
type Converter struct {
	table *units.Table
}

func New(table *units.Table) *Converter {
	return &Converter{table: table}
}

func (c *Converter) Table() *units.Table { return c.table }

// Breakdown divides total through the divisor list, carrying the remainder
// forward, and appends the final remainder. The result has
// len(divisors)+1 elements. Divisors need not come from the unit table.
func Breakdown(total int64, divisors []int64) []int64 {
	out := make([]int64, 0, len(divisors)+1)
	for _, d := range divisors {
		out = append(out, total/d)
		total %= d
	}
	return append(out, total)
}

// RealToGame converts a real-seconds duration to game seconds.
func (c *Converter) RealToGame(realSeconds float64) float64 {
	return realSeconds * c.table.SpeedFactor()
}

// RealToGameParts converts a real-seconds duration to game seconds and
// breaks the result down by the table's distinct unit sizes, largest first.
// The last element is the leftover game seconds.
func (c *Converter) RealToGameParts(realSeconds float64) []int64 {
	game := int64(c.RealToGame(realSeconds))
	sizes := c.table.DistinctSizesDesc()
	// The trailing 1-second unit is the remainder column.
	return Breakdown(game, sizes[:len(sizes)-1])
}

// GameToReal converts a per-unit component map ({"hour": 2, "min": 30}) to
// the real seconds it will take for that much game time to pass. Unit names
// accept a trailing plural "s"; unknown names fail with units.ErrUnknownUnit.
func (c *Converter) GameToReal(parts map[string]int64) (float64, error) {
	var game int64
	for name, value := range parts {
		size, err := c.table.Resolve(name)
		if err != nil {
			return 0, err
		}
		game += value * size
	}
	return float64(game) / c.table.SpeedFactor(), nil
}

// GameToRealParts is GameToReal broken down by the fixed real-world ladder
// (years, months, weeks, days, hours, minutes, leftover seconds).
func (c *Converter) GameToRealParts(parts map[string]int64) ([]int64, error) {
	rsec, err := c.GameToReal(parts)
	if err != nil {
		return nil, err
	}
	return Breakdown(int64(rsec), realDivisors), nil
}

// ResolveNextOccurrence computes the real seconds until the game clock next
// reads the partially specified target. Units absent from target keep their
// current value. When the naive projection is already in the past (or now),
// the unit immediately above the largest explicitly-named one is advanced
// by one; if the largest unit itself was named, it is incremented directly,
// giving a "next cycle" semantic. Total for validated unit names.
func (c *Converter) ResolveNextOccurrence(currentGame int64, target map[string]int64) (float64, error) {
	sizes := c.table.DistinctSizesDesc() // ends in 1
	divisors := Breakdown(currentGame, sizes[:len(sizes)-1])

	// higherUnit tracks the outermost (largest-unit) position overwritten.
	higherUnit := len(sizes)
	for name, value := range target {
		size, err := c.table.Resolve(name)
		if err != nil {
			return 0, err
		}
		idx := 0
		for i, s := range sizes {
			if s == size {
				idx = i
				break
			}
		}
		divisors[idx] = value
		if idx < higherUnit {
			higherUnit = idx
		}
	}

	project := func() int64 {
		var sum int64
		for i, v := range divisors {
			sum += v * sizes[i]
		}
		return sum
	}

	projected := project()
	if projected <= currentGame {
		// Naive target already passed; roll the next larger unit forward.
		if higherUnit > 0 && higherUnit < len(sizes) {
			divisors[higherUnit-1]++
		} else {
			divisors[0]++
		}
		projected = project()
	}

	return float64(projected-currentGame) / c.table.SpeedFactor(), nil
}
