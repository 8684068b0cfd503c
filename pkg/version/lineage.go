package version

import (
	"slices"
	"strings"
)

// MaxLineageSteps bounds a lineage walk.
const MaxLineageSteps = 1000

// NoLineage is the path reported when no node on the chain carries stamps.
const NoLineage = "none"

// EmailLocalPart returns the part of s before '@' when s looks like an
// email address, else s unchanged.
func EmailLocalPart(s string) string {
	if local, _, ok := strings.Cut(s, "@"); ok {
		return local
	}
	return s
}

// ParseLabel splits a label of the form "editor" or "editor: a, b" into the
// editor name and its stamps. Names are reduced to their email local part,
// blanks are dropped and duplicate stamps keep their first position.
func ParseLabel(label string) (editor string, stamps []string) {
	left, right, hasStamps := strings.Cut(label, ":")
	editor = EmailLocalPart(strings.TrimSpace(left))
	stamps = []string{}
	if !hasStamps {
		return editor, stamps
	}
	for _, part := range strings.Split(right, ",") {
		s := EmailLocalPart(strings.TrimSpace(part))
		if s == "" || slices.Contains(stamps, s) {
			continue
		}
		stamps = append(stamps, s)
	}
	return editor, stamps
}

// FormatLabel is the inverse of ParseLabel.
func FormatLabel(editor string, stamps []string) string {
	if len(stamps) == 0 {
		return editor
	}
	return editor + ": " + strings.Join(stamps, ", ")
}

// Lineage is the chain of stamp segments from a head back to its root.
type Lineage struct {
	Path     string     `json:"path"`
	Segments [][]string `json:"segments"`
}

// Resolve walks parent links from head. Each node whose label carries
// stamps contributes one segment; nodes without stamps are skipped. The
// walk stops at a missing or unknown id, at a node already visited, or
// after MaxLineageSteps nodes.
func Resolve(links map[string]Link, head *string) Lineage {
	segments := [][]string{}
	visited := make(map[string]bool)
	cur := head
	for steps := 0; cur != nil && steps < MaxLineageSteps; steps++ {
		l, ok := links[*cur]
		if !ok || visited[l.ID] {
			break
		}
		visited[l.ID] = true
		if _, stamps := ParseLabel(l.Label); len(stamps) > 0 {
			segments = append(segments, stamps)
		}
		cur = l.ParentID
	}

	if len(segments) == 0 {
		return Lineage{Path: NoLineage, Segments: segments}
	}
	parts := make([]string, len(segments))
	for i, seg := range segments {
		parts[i] = strings.Join(seg, ", ")
	}
	return Lineage{Path: strings.Join(parts, " <- "), Segments: segments}
}
