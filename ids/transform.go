package ids

import (
	"fmt"
	"sort"
	"strings"
)

// Transform maps an old id to its replacement. Implementations must be total
// and return the input for ids they do not change.
type Transform interface {
	Apply(id int64) int64
	String() string
}

// Identity leaves every id unchanged
type Identity struct{}

// Apply implements Transform
func (Identity) Apply(id int64) int64 { return id }

func (Identity) String() string { return "identity" }

// Shift adds Delta to every id inside [Min, Max].
// A zero window (Min == Max == 0) shifts every id.
type Shift struct {
	Delta int64
	Min   int64
	Max   int64
}

// NewShift creates a shift restricted to the inclusive window [min, max]
func NewShift(delta, min, max int64) Shift {
	return Shift{Delta: delta, Min: min, Max: max}
}

// Unbounded reports whether the shift applies to every id
func (s Shift) Unbounded() bool {
	return s.Min == 0 && s.Max == 0
}

// Covers reports whether every id in [min, max] is inside the shift window
func (s Shift) Covers(min, max int64) bool {
	return s.Unbounded() || (s.Min <= min && max <= s.Max)
}

// Apply implements Transform
func (s Shift) Apply(id int64) int64 {
	if !s.Unbounded() && (id < s.Min || id > s.Max) {
		return id
	}
	return id + s.Delta
}

func (s Shift) String() string {
	if s.Unbounded() {
		return fmt.Sprintf("shift(%+d)", s.Delta)
	}
	return fmt.Sprintf("shift(%+d on [%d,%d])", s.Delta, s.Min, s.Max)
}

// Monotonic reports whether the transform preserves id order, which lets
// re-keying proceed in place when sources and targets overlap
func (s Shift) Monotonic() bool { return true }

// Mapping is an explicit old → new table with identity for unknown ids
type Mapping map[int64]int64

// Apply implements Transform
func (m Mapping) Apply(id int64) int64 {
	if to, ok := m[id]; ok {
		return to
	}
	return id
}

func (m Mapping) String() string {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	const shown = 5
	parts := make([]string, 0, shown+1)
	for i, k := range keys {
		if i == shown {
			parts = append(parts, fmt.Sprintf("... %d more", len(keys)-shown))
			break
		}
		parts = append(parts, fmt.Sprintf("%d→%d", k, m[k]))
	}
	return "mapping{" + strings.Join(parts, ", ") + "}"
}

// Func adapts a plain function to a Transform
type Func func(id int64) int64

// Apply implements Transform
func (f Func) Apply(id int64) int64 { return f(id) }

func (f Func) String() string { return "func" }

// IsMonotonic reports whether t declares itself order preserving
func IsMonotonic(t Transform) bool {
	m, ok := t.(interface{ Monotonic() bool })
	return ok && m.Monotonic()
}
