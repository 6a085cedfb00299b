package workflow

import (
	"github.com/vaidashi/apparel-order-pipeline/internal/models"
)

// Collection is an immutable set of orders plus the current selection.
// Every change returns a new Collection; order values are shared between
// generations since they are never modified in place.
type Collection struct {
	orders   []models.Order
	selected string
}

// BoardColumn is one stage on the board with the orders sitting in it
type BoardColumn struct {
	Stage  models.OrderStatus `json:"stage"`
	Orders []models.Order     `json:"orders"`
}

// NewCollection creates a collection holding orders
func NewCollection(orders []models.Order) Collection {
	c := Collection{orders: make([]models.Order, len(orders))}
	copy(c.orders, orders)
	return c
}

// Len returns the number of orders
func (c Collection) Len() int {
	return len(c.orders)
}

// All returns every order, archived ones included
func (c Collection) All() []models.Order {
	out := make([]models.Order, len(c.orders))
	copy(out, c.orders)
	return out
}

// Active returns the orders that are not archived
func (c Collection) Active() []models.Order {
	out := make([]models.Order, 0, len(c.orders))
	for _, o := range c.orders {
		if !o.IsArchived {
			out = append(out, o)
		}
	}
	return out
}

// Get finds an order by id
func (c Collection) Get(id string) (models.Order, bool) {
	i := c.indexOf(id)
	if i < 0 {
		return models.Order{}, false
	}
	return c.orders[i], true
}

// Upsert replaces the order with the same id, or appends it
func (c Collection) Upsert(order models.Order) Collection {
	i := c.indexOf(order.ID)
	if i < 0 {
		return c.Add(order)
	}

	next := c.All()
	next[i] = order
	return Collection{orders: next, selected: c.selected}
}

// Add appends orders
func (c Collection) Add(orders ...models.Order) Collection {
	next := make([]models.Order, 0, len(c.orders)+len(orders))
	next = append(next, c.orders...)
	next = append(next, orders...)
	return Collection{orders: next, selected: c.selected}
}

// Delete removes every order whose id is in ids and returns the ids that
// were actually present. A selection pointing at a removed order is cleared.
func (c Collection) Delete(ids []string) (Collection, []string) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	next := make([]models.Order, 0, len(c.orders))
	seen := make(map[string]bool)
	var removed []string

	for _, o := range c.orders {
		if !drop[o.ID] {
			next = append(next, o)
			continue
		}
		if !seen[o.ID] {
			seen[o.ID] = true
			removed = append(removed, o.ID)
		}
	}

	selected := c.selected
	if drop[selected] {
		selected = ""
	}

	return Collection{orders: next, selected: selected}, removed
}

// Board groups non-archived orders by stage, in workflow order. Every stage
// gets a column, empty or not.
func (c Collection) Board() []BoardColumn {
	statuses := models.AllStatuses()
	cols := make([]BoardColumn, len(statuses))
	for i, s := range statuses {
		cols[i] = BoardColumn{Stage: s, Orders: []models.Order{}}
	}

	for _, o := range c.orders {
		if o.IsArchived {
			continue
		}
		n, ok := models.StageNumber(o.Status)
		if !ok {
			continue
		}
		cols[n].Orders = append(cols[n].Orders, o)
	}

	return cols
}

// Select marks id as the selected order. An id not in the collection clears
// the selection.
func (c Collection) Select(id string) Collection {
	if c.indexOf(id) < 0 {
		id = ""
	}
	return Collection{orders: c.orders, selected: id}
}

// Selected returns the selected order, if any
func (c Collection) Selected() (models.Order, bool) {
	if c.selected == "" {
		return models.Order{}, false
	}
	return c.Get(c.selected)
}

func (c Collection) indexOf(id string) int {
	for i, o := range c.orders {
		if o.ID == id {
			return i
		}
	}
	return -1
}
