package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func TestFieldsMergeOverwritesOnlyPresentKeys(t *testing.T) {
	base := Fields{
		Canonical: Canonical{Prompt: "old", Solution: "keep", Topics: []string{"t"}, Difficulty: Hard},
		Extension: map[string]any{"source": "csv", "rating": 4.0},
	}
	merged := base.Merge(NormalizeSnapshot(map[string]any{"prompt": "new", "difficulty": "medium"}))

	assert.Equal(t, "new", merged.Canonical.Prompt)
	assert.Equal(t, Medium, merged.Canonical.Difficulty)
	assert.Equal(t, "keep", merged.Canonical.Solution)
	assert.Equal(t, []string{"t"}, merged.Canonical.Topics)
	assert.Equal(t, map[string]any{"source": "csv", "rating": 4.0}, merged.Extension)

	assert.Equal(t, "old", base.Canonical.Prompt, "merge must not mutate its receiver")
}

func TestFieldsOverlay(t *testing.T) {
	base := Fields{Canonical: Canonical{Prompt: "p"}, Extension: map[string]any{"a": 1}}
	out := base.Overlay(map[string]any{"a": 2, "b": "x", "topics": "q, r", "group": nil})

	assert.Equal(t, map[string]any{"a": 2, "b": "x"}, out.Extension)
	assert.Equal(t, []string{"q", "r"}, out.Canonical.Topics)
	assert.Nil(t, out.Canonical.Group)
	assert.Equal(t, "p", out.Canonical.Prompt)
	assert.Equal(t, map[string]any{"a": 1}, base.Extension)
}

func TestTaskFieldsPrefersTruthyMeta(t *testing.T) {
	tk := &Task{
		Meta: map[string]any{
			"prompt":   "from meta",
			"solution": "",
			"topics":   []any{"m"},
			"custom":   true,
		},
		Columns: Canonical{Prompt: "from column", Solution: "column solution", Topics: []string{"c"}},
	}
	f := tk.Fields()
	assert.Equal(t, "from meta", f.Canonical.Prompt)
	assert.Equal(t, "column solution", f.Canonical.Solution)
	assert.Equal(t, []string{"m"}, f.Canonical.Topics)
	assert.Equal(t, map[string]any{"custom": true}, f.Extension)
}

func TestSetFieldsKeepsMetaAndColumnsInStep(t *testing.T) {
	var tk Task
	tk.SetFields(Fields{
		Canonical: Canonical{Prompt: "p", Language: strPtr("go"), Difficulty: Medium, Topics: []string{"x"}},
		Extension: map[string]any{"extra": "e"},
	})
	assert.Equal(t, "p", tk.Meta["prompt"])
	assert.Equal(t, "go", tk.Meta["language"])
	assert.Nil(t, tk.Meta["group"])
	assert.Equal(t, "e", tk.Meta["extra"])
	assert.Equal(t, "p", tk.Columns.Prompt)
	assert.Equal(t, Medium, tk.Fields().Canonical.Difficulty)
}

func TestTaskSnapshotExcludesLanguageAndGroup(t *testing.T) {
	tk := New(map[string]any{"prompt": "p", "language": "py", "group": "g1", "notes": "n"}, testNow)
	s := tk.Snapshot()
	assert.False(t, s.Has("language"))
	assert.False(t, s.Has("group"))
	assert.True(t, s.Has("prompt"))
	assert.Equal(t, "n", s.Notes)
	assert.Equal(t, Easy, s.Difficulty)
}

func TestApplyAndClone(t *testing.T) {
	tk := New(map[string]any{"prompt": "p"}, testNow)
	clone := tk.Clone()

	f := clone.Fields().Merge(NormalizeSnapshot(map[string]any{"prompt": "q"}))
	later := testNow.Add(time.Minute)
	clone.Apply(Update{
		Fields:            &f,
		Notes:             strPtr("n"),
		LastRunSuccessful: func() *bool { b := true; return &b }(),
		HeadVersionID:     strPtr("v1"),
		UpdatedAt:         later,
	})

	assert.Equal(t, "q", clone.Columns.Prompt)
	assert.Equal(t, "n", clone.Notes)
	assert.True(t, clone.LastRunSuccessful)
	require.NotNil(t, clone.HeadVersionID)
	assert.Equal(t, "v1", *clone.HeadVersionID)
	assert.Equal(t, later, clone.UpdatedAt)

	assert.Equal(t, "p", tk.Columns.Prompt)
	assert.Nil(t, tk.HeadVersionID)
	assert.Equal(t, testNow, tk.UpdatedAt)
}
