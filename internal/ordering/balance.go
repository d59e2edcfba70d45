package ordering

import (
	"github.com/qkgalias/capstone-hub/internal/material"
)

// Group is one category's materials in within-group order.
type Group struct {
	Category Category
	Items    []material.Material
}

// Column is a balancer output column.
type Column struct {
	Index  int
	Count  int
	Groups []Group
}

// Balance assigns whole groups, in the given order, to
// min(maxColumns, len(groups)) columns. Each group goes to the column with
// the smallest running item count; ties go to the lowest index.
func Balance(groups []Group, maxColumns int) []Column {
	if len(groups) == 0 {
		return []Column{}
	}
	if maxColumns < 1 {
		maxColumns = 1
	}
	n := maxColumns
	if len(groups) < n {
		n = len(groups)
	}

	cols := make([]Column, n)
	for i := range cols {
		cols[i].Index = i
	}
	for _, g := range groups {
		best := 0
		for i := 1; i < n; i++ {
			if cols[i].Count < cols[best].Count {
				best = i
			}
		}
		cols[best].Groups = append(cols[best].Groups, g)
		cols[best].Count += len(g.Items)
	}
	return cols
}

// Side is the branch a group hangs from in the tree view.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

func sideOf(column, row int) Side {
	if (column+row)%2 == 0 {
		return SideLeft
	}
	return SideRight
}

// PlacedGroup is a group positioned in the layout.
type PlacedGroup struct {
	Category string              `json:"category"`
	Preset   bool                `json:"preset"`
	Side     Side                `json:"side"`
	Items    []material.Material `json:"items"`
}

// LayoutColumn is one rendered column.
type LayoutColumn struct {
	Index  int           `json:"index"`
	Count  int           `json:"count"`
	Groups []PlacedGroup `json:"groups"`
}

// Layout is the full board arrangement.
type Layout struct {
	Columns     []LayoutColumn `json:"columns"`
	ColumnCount int            `json:"column_count"`
	Total       int            `json:"total"`
}

// Groups partitions all and returns the groups in display priority order,
// each sorted by SortedByOrder.
func (c *Catalog) Groups(all []material.Material) []Group {
	buckets := Partition(all, c)
	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}

	out := make([]Group, 0, len(names))
	for _, name := range c.Sort(names) {
		out = append(out, Group{Category: c.Resolve(name), Items: SortedByOrder(buckets[name])})
	}
	return out
}

// Layout partitions, sorts and balances all across at most maxColumns
// columns.
func (c *Catalog) Layout(all []material.Material, maxColumns int) Layout {
	cols := Balance(c.Groups(all), maxColumns)

	out := Layout{Columns: make([]LayoutColumn, len(cols)), ColumnCount: len(cols), Total: len(all)}
	for i, col := range cols {
		lc := LayoutColumn{Index: col.Index, Count: col.Count, Groups: make([]PlacedGroup, len(col.Groups))}
		for row, g := range col.Groups {
			lc.Groups[row] = PlacedGroup{
				Category: g.Category.Name,
				Preset:   g.Category.Preset,
				Side:     sideOf(col.Index, row),
				Items:    g.Items,
			}
		}
		out.Columns[i] = lc
	}
	return out
}
