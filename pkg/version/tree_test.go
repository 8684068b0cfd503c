package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func v(id string, parent *string) *Version {
	return &Version{ID: id, TaskID: "t", ParentID: parent}
}

func ids(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func TestBuildTree(t *testing.T) {
	roots := BuildTree([]*Version{
		v("a", nil),
		v("b", ptr("a")),
		v("c", ptr("a")),
		v("d", ptr("b")),
		v("orphan", ptr("gone")),
	})

	require.Equal(t, []string{"a", "orphan"}, ids(roots))
	a := roots[0]
	assert.Equal(t, []string{"b", "c"}, ids(a.Children))
	assert.Equal(t, []string{"d"}, ids(a.Children[0].Children))
	assert.NotNil(t, roots[1].Children)
	assert.Empty(t, roots[1].Children)
}

func TestBuildTreeEmpty(t *testing.T) {
	roots := BuildTree(nil)
	assert.NotNil(t, roots)
	assert.Empty(t, roots)
}

func TestBuildTreeBreaksCycles(t *testing.T) {
	roots := BuildTree([]*Version{
		v("root", nil),
		v("x", ptr("y")),
		v("y", ptr("x")),
		v("z", ptr("y")),
		v("self", ptr("self")),
	})

	require.Equal(t, []string{"root", "self", "x"}, ids(roots))
	x := roots[2]
	assert.Equal(t, []string{"y"}, ids(x.Children))
	y := x.Children[0]
	assert.Equal(t, []string{"z"}, ids(y.Children), "x is detached from y when promoted")

	count := 0
	var walk func([]*Node)
	walk = func(ns []*Node) {
		for _, n := range ns {
			count++
			walk(n.Children)
		}
	}
	walk(roots)
	assert.Equal(t, 5, count, "every version appears exactly once")
}
