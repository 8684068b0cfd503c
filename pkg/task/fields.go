package task

import "slices"

// Canonical field keys. These are the editable attributes every task carries;
// anything else in a task's field map is an extension key.
const (
	KeyPrompt          = "prompt"
	KeyInputs          = "inputs"
	KeyOutputs         = "outputs"
	KeyUnitTests       = "unit_tests"
	KeySolution        = "solution"
	KeyCodeFile        = "code_file"
	KeyLanguage        = "language"
	KeyGroup           = "group"
	KeyDifficulty      = "difficulty"
	KeyTopics          = "topics"
	KeyTimeComplexity  = "time_complexity"
	KeySpaceComplexity = "space_complexity"

	// KeyNotes travels inside snapshots but lives outside the field map on a task.
	KeyNotes = "notes"
)

// CanonicalKeys lists the canonical field keys in storage order.
var CanonicalKeys = []string{
	KeyPrompt,
	KeyInputs,
	KeyOutputs,
	KeyUnitTests,
	KeySolution,
	KeyCodeFile,
	KeyLanguage,
	KeyGroup,
	KeyDifficulty,
	KeyTopics,
	KeyTimeComplexity,
	KeySpaceComplexity,
}

// IsCanonical reports whether key is one of CanonicalKeys.
func IsCanonical(key string) bool {
	return slices.Contains(CanonicalKeys, key)
}

// Difficulty is the task difficulty enum.
type Difficulty string

const (
	Easy   Difficulty = "Easy"
	Medium Difficulty = "Medium"
	Hard   Difficulty = "Hard"
)

// Canonical holds the strongly typed canonical fields of a task.
// Language and Group are nullable; every other text field is a plain string.
type Canonical struct {
	Prompt          string
	Inputs          string
	Outputs         string
	UnitTests       string
	Solution        string
	CodeFile        string
	Language        *string
	Group           *string
	Difficulty      Difficulty
	Topics          []string
	TimeComplexity  string
	SpaceComplexity string
}

// Get returns the value stored under a canonical key, or nil for unknown
// keys and unset nullable fields.
func (c Canonical) Get(key string) any {
	switch key {
	case KeyPrompt:
		return c.Prompt
	case KeyInputs:
		return c.Inputs
	case KeyOutputs:
		return c.Outputs
	case KeyUnitTests:
		return c.UnitTests
	case KeySolution:
		return c.Solution
	case KeyCodeFile:
		return c.CodeFile
	case KeyLanguage:
		return derefOrNil(c.Language)
	case KeyGroup:
		return derefOrNil(c.Group)
	case KeyDifficulty:
		return string(c.Difficulty)
	case KeyTopics:
		return slices.Clone(c.Topics)
	case KeyTimeComplexity:
		return c.TimeComplexity
	case KeySpaceComplexity:
		return c.SpaceComplexity
	}
	return nil
}

// Map returns every canonical key with its value.
func (c Canonical) Map() map[string]any {
	m := make(map[string]any, len(CanonicalKeys))
	for _, k := range CanonicalKeys {
		m[k] = c.Get(k)
	}
	return m
}

// clone returns a copy that shares no mutable state with c.
func (c Canonical) clone() Canonical {
	out := c
	out.Topics = slices.Clone(c.Topics)
	out.Language = clonePtr(c.Language)
	out.Group = clonePtr(c.Group)
	return out
}

// assign stores an already-normalized value under key.
func (c *Canonical) assign(key string, v any) {
	switch key {
	case KeyPrompt:
		c.Prompt = text(v)
	case KeyInputs:
		c.Inputs = text(v)
	case KeyOutputs:
		c.Outputs = text(v)
	case KeyUnitTests:
		c.UnitTests = text(v)
	case KeySolution:
		c.Solution = text(v)
	case KeyCodeFile:
		c.CodeFile = text(v)
	case KeyLanguage:
		c.Language = nullableText(v)
	case KeyGroup:
		c.Group = nullableText(v)
	case KeyDifficulty:
		c.Difficulty = NormalizeDifficulty(v)
	case KeyTopics:
		c.Topics = NormalizeTopics(v)
	case KeyTimeComplexity:
		c.TimeComplexity = text(v)
	case KeySpaceComplexity:
		c.SpaceComplexity = text(v)
	}
}

// Fields is a task's field map split into its two halves: the typed
// canonical fields and the open extension mapping that is carried verbatim.
type Fields struct {
	Canonical Canonical
	Extension map[string]any
}

// Merge overlays the canonical keys present in s. Keys absent from s keep
// their current value and the extension half is left untouched.
func (f Fields) Merge(s Snapshot) Fields {
	out := f.clone()
	for _, k := range CanonicalKeys {
		if s.Has(k) {
			out.Canonical.assign(k, s.Canonical.Get(k))
		}
	}
	return out
}

// Overlay merges an arbitrary key/value map into f. Canonical keys are
// normalized and merged as in Merge; all other keys replace or extend the
// extension half as given.
func (f Fields) Overlay(raw map[string]any) Fields {
	canonical := make(map[string]any)
	out := f.clone()
	for k, v := range raw {
		if IsCanonical(k) {
			canonical[k] = v
			continue
		}
		out.Extension[k] = v
	}
	return out.Merge(NormalizeSnapshot(canonical))
}

func (f Fields) clone() Fields {
	ext := make(map[string]any, len(f.Extension))
	for k, v := range f.Extension {
		ext[k] = v
	}
	return Fields{Canonical: f.Canonical.clone(), Extension: ext}
}

func derefOrNil(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
