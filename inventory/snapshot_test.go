package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_FindTrimsBothSides(t *testing.T) {
	snap := shopSnapshot(t, Product{ID: " P1 ", Name: "A", Price: d("1")})

	p, ok := snap.Find("P1")
	require.True(t, ok)
	assert.Equal(t, " P1 ", p.ID, "stored id is kept as-is")

	_, ok = snap.Find("  P1")
	assert.True(t, ok)
	_, ok = snap.Find("p1")
	assert.False(t, ok, "ids are case sensitive")
}

func TestSnapshot_RejectsInvalidProducts(t *testing.T) {
	_, err := NewSnapshot([]Product{{ID: "P1"}, {ID: "P1 "}})
	assert.ErrorIs(t, err, ErrDuplicateProduct)

	_, err = NewSnapshot([]Product{{ID: "  "}})
	assert.ErrorIs(t, err, ErrInvalidProduct)

	_, err = NewSnapshot([]Product{{ID: "P1", Quantity: d("-1")}})
	assert.ErrorIs(t, err, ErrInvalidProduct)
}

func TestSnapshot_CopyOnWrite(t *testing.T) {
	snap := shopSnapshot(t)

	products := snap.Products()
	products[0].Quantity = d("999")
	assert.True(t, qty(t, snap, "P1").Equal(d("10")), "Products returns a copy")

	next, err := snap.WithProduct(Product{ID: "P2", Name: "B", Price: d("2")})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, 2, next.Len())

	without, ok := next.WithoutProduct("P1")
	require.True(t, ok)
	assert.Equal(t, 1, without.Len())
	_, ok = without.Find("P1")
	assert.False(t, ok)

	same, ok := snap.WithoutProduct("nope")
	assert.False(t, ok)
	assert.Same(t, snap, same)
}
