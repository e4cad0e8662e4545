package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/dlstore/store"
)

func alwaysFalse(string) (bool, error) { return false, nil }
func alwaysTrue(string) (bool, error)  { return true, nil }

func TestImplicitSchemaAidsAreStableAndSequential(t *testing.T) {
	implicit := ImplicitSchema()
	assert.Len(t, implicit, len(Implicit()))

	seen := make(map[uint32]bool)
	for i, name := range Implicit() {
		props, ok := implicit[name]
		require.True(t, ok, "missing implicit attribute %s", name)
		assert.Equal(t, uint32(i+1), props.Aid, "aid of %s", name)
		assert.False(t, seen[props.Aid], "aid %d reused", props.Aid)
		seen[props.Aid] = true
	}
}

func TestObserveAllocatesOnce(t *testing.T) {
	c := New(nil)

	first := c.Observe(":user/name", Props{ValueType: store.TypeString})
	second := c.Observe(":user/name", Props{ValueType: store.TypeLong})

	assert.Equal(t, first.Aid, second.Aid)
	assert.Equal(t, store.TypeString, second.ValueType, "second Observe must not overwrite the first record")
}

func TestMergeKeepsExistingAidAndAssignsNewOnes(t *testing.T) {
	c := New(map[string]Props{
		":user/name": {Aid: 5, ValueType: store.TypeString},
	})

	c.Merge(map[string]Props{
		":user/name": {ValueType: store.TypeString},
		":user/age":  {ValueType: store.TypeLong},
	})

	name, ok := c.Lookup(":user/name")
	require.True(t, ok)
	assert.EqualValues(t, 5, name.Aid)

	age, ok := c.Lookup(":user/age")
	require.True(t, ok)
	assert.Greater(t, age.Aid, uint32(5))
	assert.Equal(t, uint32(6), c.MaxAid())
}

func TestSwapAttrRefusesCardinalityDemotionWithData(t *testing.T) {
	c := New(map[string]Props{
		":tags": {Aid: 1, ValueType: store.TypeString, Cardinality: CardinalityMany},
	})

	_, err := c.SwapAttr(":tags", func(old Props, exists bool) (Props, error) {
		old.Cardinality = CardinalityOne
		return old, nil
	}, alwaysTrue, alwaysFalse)

	var conflict *ErrConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ":tags", conflict.Attr)
}

func TestSwapAttrAllowsCardinalityDemotionWithoutData(t *testing.T) {
	c := New(map[string]Props{
		":tags": {Aid: 1, ValueType: store.TypeString, Cardinality: CardinalityMany},
	})

	next, err := c.SwapAttr(":tags", func(old Props, exists bool) (Props, error) {
		old.Cardinality = CardinalityOne
		return old, nil
	}, alwaysFalse, alwaysFalse)

	require.NoError(t, err)
	assert.Equal(t, CardinalityOne, next.Cardinality)
}

func TestSwapAttrRefusesValueTypeChangeWithData(t *testing.T) {
	c := New(map[string]Props{
		":score": {Aid: 1, ValueType: store.TypeLong},
	})

	_, err := c.SwapAttr(":score", func(old Props, exists bool) (Props, error) {
		old.ValueType = store.TypeDouble
		return old, nil
	}, alwaysTrue, alwaysFalse)

	require.Error(t, err)
}

func TestSwapAttrRefusesNewUniquenessWhenViolated(t *testing.T) {
	c := New(map[string]Props{
		":email": {Aid: 1, ValueType: store.TypeString},
	})

	_, err := c.SwapAttr(":email", func(old Props, exists bool) (Props, error) {
		old.Unique = UniqueValue
		return old, nil
	}, alwaysFalse, alwaysTrue)

	require.Error(t, err)
}

func TestDeriveRschemaIsPureFunctionOfSchema(t *testing.T) {
	c := New(map[string]Props{
		":tags":   {Aid: 1, Cardinality: CardinalityMany},
		":friend": {Aid: 2, ValueType: store.TypeRef, Unique: UniqueIdentity},
	})

	rs := c.Rschema()
	assert.True(t, rs["db/cardinality-many"][":tags"])
	assert.True(t, rs["db/value-type-ref"][":friend"])
	assert.True(t, rs["db/unique-identity"][":friend"])

	attrs := c.Attrs()
	assert.Equal(t, ":tags", attrs[1])
	assert.Equal(t, ":friend", attrs[2])
}
