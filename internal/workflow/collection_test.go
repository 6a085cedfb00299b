package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/apparel-order-pipeline/internal/models"
)

func sampleOrders() []models.Order {
	return []models.Order{
		{ID: "a", Status: models.StatusLead},
		{ID: "b", Status: models.StatusQuote},
		{ID: "c", Status: models.StatusQuote, IsArchived: true},
		{ID: "d", Status: models.StatusProduction},
	}
}

func TestCollectionUpsertAndAdd(t *testing.T) {
	c := NewCollection(sampleOrders())

	updated := c.Upsert(models.Order{ID: "b", Status: models.StatusApproval})
	got, ok := updated.Get("b")
	require.True(t, ok)
	assert.Equal(t, models.StatusApproval, got.Status)

	orig, _ := c.Get("b")
	assert.Equal(t, models.StatusQuote, orig.Status, "previous generation is unchanged")

	grown := updated.Upsert(models.Order{ID: "e", Status: models.StatusLead})
	assert.Equal(t, 5, grown.Len())
	assert.Equal(t, 4, updated.Len())

	added := c.Add(models.Order{ID: "x"}, models.Order{ID: "y"})
	assert.Equal(t, 6, added.Len())

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCollectionDeleteClearsSelection(t *testing.T) {
	c := NewCollection(sampleOrders()).Select("b")

	sel, ok := c.Selected()
	require.True(t, ok)
	assert.Equal(t, "b", sel.ID)

	next, removed := c.Delete([]string{"b", "d", "zzz"})

	assert.Equal(t, []string{"b", "d"}, removed)
	assert.Equal(t, 2, next.Len())
	_, ok = next.Selected()
	assert.False(t, ok)

	_, ok = next.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 4, c.Len(), "previous generation is unchanged")
}

func TestCollectionDeleteKeepsOtherSelection(t *testing.T) {
	c := NewCollection(sampleOrders()).Select("a")

	next, _ := c.Delete([]string{"d"})

	sel, ok := next.Selected()
	require.True(t, ok)
	assert.Equal(t, "a", sel.ID)
}

func TestCollectionSelectUnknownClears(t *testing.T) {
	c := NewCollection(sampleOrders()).Select("a").Select("nope")

	_, ok := c.Selected()
	assert.False(t, ok)
}

func TestCollectionBoard(t *testing.T) {
	board := NewCollection(sampleOrders()).Board()

	require.Len(t, board, 12)
	assert.Equal(t, models.StatusLead, board[0].Stage)
	assert.Len(t, board[0].Orders, 1)
	assert.Len(t, board[1].Orders, 1, "archived quote is hidden")
	assert.Equal(t, "b", board[1].Orders[0].ID)
	assert.Len(t, board[7].Orders, 1)
	assert.Empty(t, board[11].Orders)
}

func TestCollectionActive(t *testing.T) {
	c := NewCollection(sampleOrders())

	assert.Len(t, c.All(), 4)
	assert.Len(t, c.Active(), 3)
}
