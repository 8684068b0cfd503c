package version

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(s string) *string { return &s }

func TestParseLabel(t *testing.T) {
	tests := []struct {
		label  string
		editor string
		stamps []string
	}{
		{"", "", []string{}},
		{"alice@example.com", "alice", []string{}},
		{"alice:", "alice", []string{}},
		{"alice: x", "alice", []string{"x"}},
		{"carol@x.io: bob@x.io, dave , bob, ,dave@y", "carol", []string{"bob", "dave"}},
		{"ed: a: b, c", "ed", []string{"a: b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			editor, stamps := ParseLabel(tt.label)
			assert.Equal(t, tt.editor, editor)
			assert.Equal(t, tt.stamps, stamps)
		})
	}
}

func TestFormatLabel(t *testing.T) {
	assert.Equal(t, "alice", FormatLabel("alice", nil))
	assert.Equal(t, "alice: bob, carol", FormatLabel("alice", []string{"bob", "carol"}))

	editor, stamps := ParseLabel(FormatLabel("alice", []string{"bob", "carol"}))
	assert.Equal(t, "alice", editor)
	assert.Equal(t, []string{"bob", "carol"}, stamps)
}

func links(ls ...Link) map[string]Link {
	m := make(map[string]Link, len(ls))
	for _, l := range ls {
		m[l.ID] = l
	}
	return m
}

func TestResolveSkipsNodesWithoutStamps(t *testing.T) {
	vs := links(
		Link{ID: "A", Label: "alice: x"},
		Link{ID: "B", ParentID: ptr("A"), Label: "bob"},
		Link{ID: "C", ParentID: ptr("B"), Label: "carol: x, y"},
	)
	got := Resolve(vs, ptr("C"))
	assert.Equal(t, "x, y <- x", got.Path)
	assert.Equal(t, [][]string{{"x", "y"}, {"x"}}, got.Segments)
}

func TestResolveNone(t *testing.T) {
	vs := links(Link{ID: "A", Label: "alice"})

	for name, head := range map[string]*string{
		"no head":      nil,
		"empty head":   ptr(""),
		"unknown head": ptr("Z"),
		"no stamps":    ptr("A"),
	} {
		t.Run(name, func(t *testing.T) {
			got := Resolve(vs, head)
			assert.Equal(t, NoLineage, got.Path)
			assert.NotNil(t, got.Segments)
			assert.Empty(t, got.Segments)
		})
	}
}

func TestResolveStopsAtUnknownParent(t *testing.T) {
	vs := links(
		Link{ID: "B", ParentID: ptr("missing"), Label: "bob: b"},
		Link{ID: "C", ParentID: ptr("B"), Label: "carol: c"},
	)
	assert.Equal(t, "c <- b", Resolve(vs, ptr("C")).Path)
}

func TestResolveTerminatesOnCycle(t *testing.T) {
	vs := links(
		Link{ID: "X", ParentID: ptr("Y"), Label: "x: one"},
		Link{ID: "Y", ParentID: ptr("X"), Label: "y: two"},
	)
	got := Resolve(vs, ptr("X"))
	assert.LessOrEqual(t, len(got.Segments), 2)
	assert.Equal(t, "one <- two", got.Path)

	self := links(Link{ID: "S", ParentID: ptr("S"), Label: "s: me"})
	assert.Equal(t, [][]string{{"me"}}, Resolve(self, ptr("S")).Segments)
}

func TestResolveStepCap(t *testing.T) {
	n := MaxLineageSteps + 50
	vs := make(map[string]Link, n)
	for i := 0; i < n; i++ {
		l := Link{ID: fmt.Sprint(i), Label: fmt.Sprintf("e: s%d", i)}
		if i > 0 {
			l.ParentID = ptr(fmt.Sprint(i - 1))
		}
		vs[l.ID] = l
	}
	got := Resolve(vs, ptr(fmt.Sprint(n-1)))
	assert.Len(t, got.Segments, MaxLineageSteps)
}
