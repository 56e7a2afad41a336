package merge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap/zaptest"

	"github.com/arthur-debert/refshift/ids"
	"github.com/arthur-debert/refshift/store"
	"github.com/arthur-debert/refshift/types"
)

func datasets() (primary, secondary *store.Memory) {
	primary = store.NewMemory()
	primary.Insert("users",
		bson.M{"_id": int32(10), "email": "a@x.com"},
		bson.M{"_id": int32(11), "email": "b@x.com "},
		bson.M{"_id": int32(12), "username": "nomail"},
		bson.M{"_id": int32(13), "email": "c@x.com"},
	)
	secondary = store.NewMemory()
	secondary.Insert("users",
		bson.M{"_id": int32(50), "email": "A@X.com"},
		bson.M{"_id": int32(51), "email": "B@x.COM"},
		bson.M{"_id": int32(52), "email": "zed@x.com"},
	)
	return primary, secondary
}

type matcherFactory func(t *testing.T, p *Planner, secondary store.Store) Matcher

var matchers = map[string]matcherFactory{
	"index": func(t *testing.T, p *Planner, secondary store.Store) Matcher {
		m, err := NewIndexMatcher(context.Background(), secondary, p.Collection(), p.Key())
		require.NoError(t, err)
		return m
	},
	"query": func(_ *testing.T, p *Planner, secondary store.Store) Matcher {
		return NewQueryMatcher(secondary, p.Collection(), p.Key())
	},
}

func TestPlan(t *testing.T) {
	for name, newMatcher := range matchers {
		t.Run(name, func(t *testing.T) {
			primary, secondary := datasets()
			p := NewPlanner(Options{Logger: zaptest.NewLogger(t).Sugar()})

			plan, err := p.Plan(context.Background(), primary, secondary, newMatcher(t, p, secondary))
			require.NoError(t, err)

			assert.Equal(t, ids.Mapping{10: 50, 11: 51}, plan.Mapping)
			assert.Equal(t, int64(4), plan.Scanned)
			assert.Equal(t, int64(2), plan.Matched)
			assert.Equal(t, int64(1), plan.Unmatched)
			assert.Equal(t, int64(1), plan.NoKey)
			assert.Equal(t, store.IDRange{Min: 10, Max: 13, Count: 4, Total: 4}, plan.PrimaryRange)
			assert.False(t, plan.Empty())
			assert.Equal(t, int64(13), plan.Mapping.Apply(13))
		})
	}
}

func TestPlanAmbiguous(t *testing.T) {
	for name, newMatcher := range matchers {
		t.Run(name, func(t *testing.T) {
			primary, secondary := datasets()
			secondary.Insert("users", bson.M{"_id": int32(53), "email": "a@X.com"})
			p := NewPlanner(Options{})

			plan, err := p.Plan(context.Background(), primary, secondary, newMatcher(t, p, secondary))
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrCodeAmbiguousMatch))
			assert.Nil(t, plan.Mapping)
		})
	}
}

func TestPlanOverlappingRanges(t *testing.T) {
	primary, secondary := datasets()
	secondary.Insert("users", bson.M{"_id": int32(12), "email": "other@x.com"})
	p := NewPlanner(Options{})

	_, err := p.Plan(context.Background(), primary, secondary, NewQueryMatcher(secondary, "users", p.Key()))
	assert.True(t, types.IsCode(err, types.ErrCodeRangeViolation))
}

func TestPlanEmptyPrimary(t *testing.T) {
	_, secondary := datasets()
	p := NewPlanner(Options{})

	plan, err := p.Plan(context.Background(), store.NewMemory(), secondary, NewQueryMatcher(secondary, "users", p.Key()))
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Zero(t, plan.Scanned)
}

type fixedMatcher []int64

func (f fixedMatcher) Candidates(context.Context, string) ([]int64, error) {
	return f, nil
}

func TestPlanSameID(t *testing.T) {
	primary := store.NewMemory()
	primary.Insert("users", bson.M{"_id": int32(10), "email": "a@x.com"})
	p := NewPlanner(Options{})

	plan, err := p.Plan(context.Background(), primary, store.NewMemory(), fixedMatcher{10})
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, int64(1), plan.SameID)
}

func TestPlanCustomKey(t *testing.T) {
	primary := store.NewMemory()
	primary.Insert("members", bson.M{"_id": int32(1), "login": "Ana"})
	secondary := store.NewMemory()
	secondary.Insert("members", bson.M{"_id": int32(7), "login": "ana"})

	p := NewPlanner(Options{Collection: "members", KeyField: "login"})
	plan, err := p.Plan(context.Background(), primary, secondary, NewQueryMatcher(secondary, "members", p.Key()))
	require.NoError(t, err)
	assert.Equal(t, ids.Mapping{1: 7}, plan.Mapping)
}
