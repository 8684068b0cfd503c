package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromPayload(t *testing.T) {
	tk := New(map[string]any{
		"prompt":             "Reverse a list",
		"reference_solution": "def f(x): return x[::-1]",
		"topics":             "arrays; lists",
		"difficulty":         "MEDIUM",
		"notes":              "first draft",
		"lastRunSuccessful":  true,
		"headVersionId":      "ignored",
		"extra":              "not a canonical key",
	}, testNow)

	require.NotEmpty(t, tk.ID)
	assert.Equal(t, "def f(x): return x[::-1]", tk.Columns.Solution)
	assert.Equal(t, []string{"arrays", "lists"}, tk.Columns.Topics)
	assert.Equal(t, Medium, tk.Columns.Difficulty)
	assert.Equal(t, "", tk.Columns.Inputs)
	assert.Nil(t, tk.Columns.Language)
	assert.Equal(t, "first draft", tk.Notes)
	assert.True(t, tk.LastRunSuccessful)
	assert.Nil(t, tk.HeadVersionID)
	assert.NotContains(t, tk.Meta, "extra")
	assert.Equal(t, testNow, tk.CreatedAt)
	assert.Equal(t, testNow, tk.UpdatedAt)
}

func TestNewPrefersSolutionOverReference(t *testing.T) {
	tk := New(map[string]any{"solution": "s", "reference_solution": "r"}, testNow)
	assert.Equal(t, "s", tk.Columns.Solution)
}

func TestSplitPayload(t *testing.T) {
	base, overlay := SplitPayload(map[string]any{
		"id":                "x",
		"createdAt":         "t",
		"updatedAt":         "t",
		"notes":             "n",
		"lastRunSuccessful": false,
		"headVersionId":     nil,
		"prompt":            "p",
		"custom":            1,
	})
	require.NotNil(t, base.Notes)
	assert.Equal(t, "n", *base.Notes)
	require.NotNil(t, base.LastRunSuccessful)
	assert.False(t, *base.LastRunSuccessful)
	assert.Nil(t, base.HeadVersionID, "null head counts as absent")
	assert.Equal(t, map[string]any{"prompt": "p", "custom": 1}, overlay)

	base, _ = SplitPayload(map[string]any{"headVersionId": "v9"})
	require.NotNil(t, base.HeadVersionID)
	assert.Equal(t, "v9", *base.HeadVersionID)
	assert.Nil(t, base.Notes)
}

func TestPresent(t *testing.T) {
	tk := &Task{
		ID: "t1",
		Meta: map[string]any{
			"prompt":   "meta prompt",
			"solution": "",
			"custom":   "kept",
		},
		Columns: Canonical{
			Prompt:     "column prompt",
			Solution:   "column solution",
			Difficulty: Hard,
			Topics:     []string{"a"},
		},
		Notes:     "n",
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}

	v := Present(tk)
	assert.Equal(t, "t1", v["id"])
	assert.Equal(t, "meta prompt", v["prompt"], "truthy meta wins over the column")
	assert.Equal(t, "column solution", v["solution"], "falsy meta falls back to the column")
	assert.Equal(t, "Hard", v["difficulty"])
	assert.Equal(t, []string{"a"}, v["topics"])
	assert.Equal(t, "kept", v["custom"])
	assert.Equal(t, "n", v["notes"])
	assert.Equal(t, false, v["lastRunSuccessful"])
	assert.Equal(t, "2026-03-01T09:30:00Z", v["createdAt"])
	assert.NotContains(t, v, "language", "nil columns are not filled in")
	assert.NotContains(t, v, "headVersionId")

	tk.HeadVersionID = strPtr("v1")
	assert.Equal(t, "v1", Present(tk)["headVersionId"])
}

func TestPresentRoundTrip(t *testing.T) {
	payload := map[string]any{
		"prompt":           "p",
		"inputs":           "1 2",
		"outputs":          "3",
		"unit_tests":       "assert f(1,2)==3",
		"solution":         "def f(a,b): return a+b",
		"code_file":        "add.py",
		"language":         "python",
		"group":            "basics",
		"difficulty":       "hard",
		"topics":           []any{"math", "", "intro"},
		"time_complexity":  "O(1)",
		"space_complexity": "O(1)",
	}
	v := Present(New(payload, testNow))
	want := NormalizeSnapshot(payload).Canonical.Map()
	for _, k := range CanonicalKeys {
		assert.Equal(t, want[k], v[k], k)
	}
}
