package ordering

import (
	"math"
	"sort"

	"github.com/qkgalias/capstone-hub/internal/material"
)

// Partition buckets items by normalized category. Items keep their input
// order within a bucket.
func Partition(items []material.Material, c *Catalog) map[string][]material.Material {
	c = orDefault(c)
	out := make(map[string][]material.Material)
	for _, m := range items {
		key := c.Normalize(m.Category)
		out[key] = append(out[key], m.Clone())
	}
	return out
}

// SortedByOrder returns a copy of items ordered by sort_order ascending,
// unordered last, then by created_at newest first. Equal keys keep their
// input order.
func SortedByOrder(items []material.Material) []material.Material {
	out := cloneAll(items)
	sort.SliceStable(out, func(i, j int) bool {
		oi, oj := out[i].Order(math.MaxInt), out[j].Order(math.MaxInt)
		if oi != oj {
			return oi < oj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Reorder moves sourceID to targetID's index and renumbers the whole
// sequence from 0. It reports false, returning nil, when the ids are equal
// or either is missing.
func Reorder(sequence []material.Material, sourceID, targetID string) ([]material.Material, bool) {
	if sourceID == targetID {
		return nil, false
	}
	src, dst := indexOf(sequence, sourceID), indexOf(sequence, targetID)
	if src < 0 || dst < 0 {
		return nil, false
	}

	out := cloneAll(sequence)
	moved := out[src]
	out = append(out[:src], out[src+1:]...)
	out = append(out[:dst], append([]material.Material{moved}, out[dst:]...)...)

	for i := range out {
		out[i].SortOrder = material.IntPtr(i)
	}
	return out, true
}

// Drop reorders category so that sourceID takes targetID's place and
// returns the (id, order) pairs that changed. Unordered items always count
// as changed. Categories of the moved items are untouched. A self drop or a
// stale id reports false.
func Drop(all []material.Material, c *Catalog, sourceID, targetID, category string) ([]material.OrderUpdate, bool) {
	c = orDefault(c)
	group := SortedByOrder(Partition(all, c)[c.Normalize(category)])

	reordered, ok := Reorder(group, sourceID, targetID)
	if !ok {
		return nil, false
	}

	before := make(map[string]*int, len(group))
	for _, m := range group {
		before[m.ID] = m.SortOrder
	}

	updates := make([]material.OrderUpdate, 0, len(reordered))
	for _, m := range reordered {
		if old := before[m.ID]; old != nil && *old == *m.SortOrder {
			continue
		}
		updates = append(updates, material.OrderUpdate{ID: m.ID, SortOrder: *m.SortOrder})
	}
	return updates, true
}

// ApplyOrders returns a copy of all with updates applied.
func ApplyOrders(all []material.Material, updates []material.OrderUpdate) []material.Material {
	next := make(map[string]int, len(updates))
	for _, u := range updates {
		next[u.ID] = u.SortOrder
	}
	out := cloneAll(all)
	for i := range out {
		if o, ok := next[out[i].ID]; ok {
			out[i].SortOrder = material.IntPtr(o)
		}
	}
	return out
}

// NextOrder is the order for a material appended to category: one past the
// highest order present, counting unordered members as 0, or 0 when the
// category is empty.
func NextOrder(all []material.Material, c *Catalog, category string) int {
	c = orDefault(c)
	key := c.Normalize(category)
	next := 0
	for _, m := range all {
		if c.Normalize(m.Category) != key {
			continue
		}
		if o := m.Order(0) + 1; o > next {
			next = o
		}
	}
	return next
}

func indexOf(items []material.Material, id string) int {
	for i, m := range items {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(items []material.Material) []material.Material {
	out := make([]material.Material, len(items))
	for i, m := range items {
		out[i] = m.Clone()
	}
	return out
}
