package ordering

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qkgalias/capstone-hub/internal/material"
)

func group(name string, n int) Group {
	items := make([]material.Material, n)
	for i := range items {
		items[i] = mat(fmt.Sprintf("%s-%d", name, i), name, ord(i), 0)
	}
	return Group{Category: Category{Name: name}, Items: items}
}

func columnNames(cols []Column) [][]string {
	out := make([][]string, len(cols))
	for i, c := range cols {
		out[i] = []string{}
		for _, g := range c.Groups {
			out[i] = append(out[i], g.Category.Name)
		}
	}
	return out
}

func TestBalance_OneGroupPerColumn(t *testing.T) {
	cols := Balance([]Group{group("Docs", 3), group("Repo", 1), group("Notes", 2)}, 8)
	require.Len(t, cols, 3)
	want := [][]string{{"Docs"}, {"Repo"}, {"Notes"}}
	if diff := cmp.Diff(want, columnNames(cols)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestBalance_GreedyTiesToLowestIndex(t *testing.T) {
	groups := []Group{group("a", 5), group("b", 1), group("c", 1), group("d", 3), group("e", 2)}
	cols := Balance(groups, 2)
	// a->0 (5); b->1 (1); c->1 (2); d->1 (5); e->0 tie -> 0 (7)
	want := [][]string{{"a", "e"}, {"b", "c", "d"}}
	if diff := cmp.Diff(want, columnNames(cols)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	assert.Equal(t, 7, cols[0].Count)
	assert.Equal(t, 5, cols[1].Count)
}

func TestBalance_Edges(t *testing.T) {
	assert.Empty(t, Balance(nil, 3))

	cols := Balance([]Group{group("a", 1), group("b", 2)}, 0)
	require.Len(t, cols, 1, "max columns below 1 is treated as 1")
	assert.Equal(t, 3, cols[0].Count)
}

func TestBalance_SpreadBoundedByLargestGroup(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		groups := make([]Group, 1+rng.Intn(10))
		largest := 0
		for i := range groups {
			n := 1 + rng.Intn(12)
			if n > largest {
				largest = n
			}
			groups[i] = group(fmt.Sprintf("g%d", i), n)
		}
		cols := Balance(groups, 1+rng.Intn(8))

		lo, hi, placed := cols[0].Count, cols[0].Count, 0
		for _, c := range cols {
			if c.Count < lo {
				lo = c.Count
			}
			if c.Count > hi {
				hi = c.Count
			}
			placed += len(c.Groups)
		}
		require.Equal(t, len(groups), placed, "every group placed exactly once")
		require.LessOrEqual(t, hi-lo, largest, "trial %d", trial)
	}
}

func TestBalance_Deterministic(t *testing.T) {
	groups := []Group{group("a", 4), group("b", 2), group("c", 2), group("d", 1)}
	assert.Equal(t, columnNames(Balance(groups, 3)), columnNames(Balance(groups, 3)))
}

func TestCatalog_SortAndResolve(t *testing.T) {
	c := DefaultCatalog()
	got := c.Sort([]string{"Zeta", "Other", "alpha", "Documentation", "Meeting Notes"})
	assert.Equal(t, []string{"Documentation", "Meeting Notes", "Other", "Zeta", "alpha"}, got)

	assert.Equal(t, Category{Name: "Questionnaire", Preset: true, Rank: 2}, c.Resolve(" Questionnaire "))
	assert.True(t, c.Resolve("Reading").Custom())
	assert.Equal(t, "Other", c.Resolve("").Name)
}

func TestNewCatalog(t *testing.T) {
	c := NewCatalog([]string{"B", " ", "A", "B"}, "")
	assert.Equal(t, "Other", c.Fallback())
	names := []string{}
	for _, o := range c.Options() {
		names = append(names, o.Name)
	}
	assert.Equal(t, []string{"B", "A", "Other"}, names)

	c = NewCatalog([]string{"Misc", "A"}, "Misc")
	assert.Len(t, c.Options(), 2)
	assert.Equal(t, "Misc", c.Normalize(""))
}

func TestLayout(t *testing.T) {
	all := []material.Material{
		mat("r1", "Github Repository", nil, 0),
		mat("d2", "Documentation", ord(1), 0),
		mat("d1", "Documentation", ord(0), 0),
		mat("n1", "Meeting Notes", nil, 0),
		mat("n2", "Meeting Notes", nil, 1),
		mat("x1", "", nil, 0),
		mat("c1", "Reading", nil, 0),
	}
	l := DefaultCatalog().Layout(all, 2)
	require.Equal(t, 2, l.ColumnCount)
	assert.Equal(t, 7, l.Total)

	type placed struct {
		Category string
		Side     Side
		Items    []string
	}
	got := make([][]placed, len(l.Columns))
	for i, col := range l.Columns {
		for _, g := range col.Groups {
			got[i] = append(got[i], placed{g.Category, g.Side, ids(g.Items)})
		}
	}
	// Priority: Documentation(2), Github Repository(1), Meeting Notes(2), Other(1), Reading(1).
	want := [][]placed{
		{
			{"Documentation", SideLeft, []string{"d1", "d2"}},
			{"Other", SideRight, []string{"x1"}},
			{"Reading", SideLeft, []string{"c1"}},
		},
		{
			{"Github Repository", SideRight, []string{"r1"}},
			{"Meeting Notes", SideLeft, []string{"n2", "n1"}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestLayout_Empty(t *testing.T) {
	l := DefaultCatalog().Layout(nil, 8)
	assert.Equal(t, 0, l.ColumnCount)
	assert.NotNil(t, l.Columns)
}
