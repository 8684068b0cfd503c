// Package importer turns CSV and JSONL exports into task payloads for bulk
// creation.
package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmpty is returned when the input has no content at all.
var ErrEmpty = errors.New("no content provided")

const maxLineSize = 16 << 20

var bom = []byte("\ufeff")

// csvColumns are read from a row when it carries no full_task_json.
var csvColumns = []string{
	"language", "prompt", "inputs", "outputs", "code_file", "unit_tests",
	"difficulty", "topics", "time_complexity", "space_complexity", "notes", "group",
}

// metaOverrides are taken from a payload's "metadata" object in preference
// to the top-level value.
var metaOverrides = []string{"difficulty", "topics", "time_complexity", "space_complexity"}

// passthrough are copied from the payload as they are.
var passthrough = []string{
	"language", "prompt", "inputs", "outputs", "code_file",
	"reference_solution", "solution", "unit_tests", "group",
}

// ParseCSV reads a CSV export with a header row. A non-empty full_task_json
// column supersedes the other columns of its row.
func ParseCSV(r io.Reader) ([]map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, bom)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) < 2 {
		return []map[string]any{}, nil
	}

	header := records[0]
	out := make([]map[string]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(rec) {
				row[strings.TrimSpace(name)] = rec[i]
			}
		}
		out = append(out, fromCSVRow(row))
	}
	return out, nil
}

func fromCSVRow(row map[string]string) map[string]any {
	payload := decodeTaskJSON(row["full_task_json"])
	if len(payload) == 0 {
		payload = make(map[string]any, len(csvColumns)+2)
		for _, k := range csvColumns {
			if v, ok := row[k]; ok {
				payload[k] = v
			}
		}
		if v := row["reference_solution"]; v != "" {
			payload["reference_solution"] = v
		} else if v, ok := row["solution"]; ok {
			payload["reference_solution"] = v
		}
		payload["lastRunSuccessful"] = false
	}

	fallbackNotes := row["notes"]
	return merge(payload, fallbackNotes)
}

// decodeTaskJSON parses an embedded JSON object. Exports that double their
// quotes are retried with the doubling undone.
func decodeTaskJSON(s string) map[string]any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err == nil {
		return m
	}
	if err := json.Unmarshal([]byte(strings.ReplaceAll(s, `""`, `"`)), &m); err == nil {
		return m
	}
	return nil
}

// ParseJSONL reads one JSON object per line. Blank lines and lines that are
// not JSON objects are skipped.
func ParseJSONL(r io.Reader) ([]map[string]any, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	out := []map[string]any{}
	seen := false
	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if first {
			line = bytes.TrimPrefix(line, bom)
			first = false
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		seen = true
		var obj map[string]any
		if err := json.Unmarshal(line, &obj); err != nil || obj == nil {
			continue
		}
		out = append(out, merge(obj, ""))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl: %w", err)
	}
	if !seen {
		return nil, ErrEmpty
	}
	return out, nil
}

// merge flattens an import record into a create payload. Values under
// "metadata" win for the keys in metaOverrides.
func merge(payload map[string]any, fallbackNotes string) map[string]any {
	meta, _ := payload["metadata"].(map[string]any)

	out := make(map[string]any, len(passthrough)+len(metaOverrides)+2)
	for _, k := range passthrough {
		out[k] = payload[k]
	}
	for _, k := range metaOverrides {
		if v, ok := meta[k]; ok {
			out[k] = v
		} else {
			out[k] = payload[k]
		}
	}
	if v, ok := payload["notes"]; ok {
		out["notes"] = v
	} else {
		out["notes"] = fallbackNotes
	}
	out["lastRunSuccessful"] = truthy(payload["lastRunSuccessful"])
	return out
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true") || t == "1"
	case float64:
		return t != 0
	}
	return false
}
