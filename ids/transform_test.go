package ids

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShift(t *testing.T) {
	t.Run("unbounded", func(t *testing.T) {
		s := NewShift(-10, 0, 0)
		assert.True(t, s.Unbounded())
		assert.Equal(t, int64(-5), s.Apply(5))
		assert.Equal(t, int64(990), s.Apply(1000))
	})

	t.Run("windowed", func(t *testing.T) {
		s := NewShift(100, 5, 7)
		assert.Equal(t, int64(105), s.Apply(5))
		assert.Equal(t, int64(107), s.Apply(7))
		assert.Equal(t, int64(4), s.Apply(4))
		assert.Equal(t, int64(105), s.Apply(105), "already shifted ids pass through")
	})

	t.Run("covers", func(t *testing.T) {
		s := NewShift(1, 5, 7)
		assert.True(t, s.Covers(5, 7))
		assert.True(t, s.Covers(6, 6))
		assert.False(t, s.Covers(4, 7))
		assert.True(t, NewShift(1, 0, 0).Covers(-100, 100))
	})

	t.Run("monotonic", func(t *testing.T) {
		assert.True(t, IsMonotonic(NewShift(1, 0, 0)))
		assert.False(t, IsMonotonic(Mapping{1: 2}))
		assert.False(t, IsMonotonic(Identity{}))
	})
}

func TestMapping(t *testing.T) {
	m := Mapping{10: 50, 11: 50}
	assert.Equal(t, int64(50), m.Apply(10))
	assert.Equal(t, int64(50), m.Apply(11))
	assert.Equal(t, int64(12), m.Apply(12))
	assert.Equal(t, "mapping{10→50, 11→50}", m.String())

	big := Mapping{}
	for i := int64(1); i <= 7; i++ {
		big[i] = i + 100
	}
	assert.Equal(t, "mapping{1→101, 2→102, 3→103, 4→104, 5→105, ... 2 more}", big.String())
}

func TestCoerce(t *testing.T) {
	testCases := []struct {
		name  string
		input interface{}
		id    int64
		ok    bool
	}{
		{"int32", int32(5), 5, true},
		{"int64", int64(5), 5, true},
		{"int", 5, 5, true},
		{"integral float", float64(5), 5, true},
		{"fractional float", 5.5, 0, false},
		{"nan", math.NaN(), 0, false},
		{"string", "5", 0, false},
		{"nil", nil, 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id, ok := Coerce(tc.input)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.id, id)
		})
	}
}

func TestEncode(t *testing.T) {
	assert.Equal(t, int32(7), Encode(7, int32(1)))
	assert.Equal(t, int64(math.MaxInt32+1), Encode(math.MaxInt32+1, int32(1)))
	assert.Equal(t, float64(7), Encode(7, float64(1)))
	assert.Equal(t, int64(7), Encode(7, int64(1)))
	assert.Equal(t, 7, Encode(7, 1))
	assert.Equal(t, int64(7), Encode(7, nil))
}
