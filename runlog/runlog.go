// Package runlog defines the canonical shape of a run document and its
// on-disk JSON form: one file per run, named by the run UUID.
package runlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoMatch is returned when a prefix resolves to no run-log file.
var ErrNoMatch = errors.New("no run log matches")

// Latest is the literal prefix that selects the most recent run log.
const Latest = "latest"

// Exception captures a recorded failure: a case-level stage error or a
// batch-level abort.
type Exception struct {
	Message   string `json:"message"`
	Traceback string `json:"traceback"`
	Time      string `json:"time"`
}

// Timing is the per-case wall-clock envelope, UTC ISO-8601 strings with
// elapsed seconds.
type Timing struct {
	Start   string  `json:"start"`
	End     string  `json:"end"`
	Elapsed float64 `json:"elapsed"`
}

// Result is one case outcome. Stages is partial when the case failed.
// Extras carries adapter-written context values, such as the realtime
// event log.
type Result struct {
	Case      map[string]any `json:"case"`
	Succeeded bool           `json:"succeeded"`
	Stages    map[string]any `json:"stages"`
	Extras    map[string]any `json:"extras,omitempty"`
	Exception *Exception     `json:"exception,omitempty"`
	Metadata  Timing         `json:"metadata"`
}

// CaseUUID returns the case identifier, or "" when absent.
func (r Result) CaseUUID() string {
	uuid, _ := r.Case["uuid"].(string)
	return uuid
}

// PipelineMeta records which pipeline ran and with what effective config.
type PipelineMeta struct {
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

// Metadata is the run-level envelope: command, timing, concurrency,
// pipeline identity, and source-control provenance.
type Metadata struct {
	Command     string       `json:"command"`
	Start       string       `json:"start"`
	End         string       `json:"end"`
	Elapsed     float64      `json:"elapsed"`
	Concurrency int          `json:"concurrency"`
	Pipeline    PipelineMeta `json:"pipeline"`
	SHA         string       `json:"sha,omitempty"`
	Edits       []string     `json:"edits,omitempty"`
	Exception   *Exception   `json:"exception,omitempty"`
}

// RunLog is the complete document for one run. Results preserve the case
// input order. The document is append-once and then serialized.
type RunLog struct {
	UUID     string   `json:"uuid"`
	Metadata Metadata `json:"metadata"`
	Results  []Result `json:"results"`
}

// Write serializes the run log to <dir>/<uuid>.json, creating the
// directory if needed.
func Write(dir string, log *RunLog) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal run log: %w", err)
	}
	path := filepath.Join(dir, log.UUID+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write run log: %w", err)
	}
	return path, nil
}

// Read parses a run log from disk.
func Read(path string) (*RunLog, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- resolved from the log directory
	if err != nil {
		return nil, fmt.Errorf("read run log: %w", err)
	}
	var log RunLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("parse run log %s: %w", filepath.Base(path), err)
	}
	return &log, nil
}

// List returns run-log paths in the directory sorted newest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	type candidate struct {
		path string
		mod  int64
	}
	var found []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, candidate{
			path: filepath.Join(dir, entry.Name()),
			mod:  info.ModTime().UnixNano(),
		})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].mod > found[j].mod })

	paths := make([]string, len(found))
	for i, c := range found {
		paths[i] = c.path
	}
	return paths, nil
}

// Resolve selects a run-log file by filename prefix. The literal prefix
// "latest" selects the most recently written file. Ambiguous prefixes are
// resolved to the newest match.
func Resolve(dir, prefix string) (string, error) {
	paths, err := List(dir)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("%w: directory %s is empty", ErrNoMatch, dir)
	}
	if prefix == Latest {
		return paths[0], nil
	}
	for _, path := range paths {
		if strings.HasPrefix(filepath.Base(path), prefix) {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: prefix %q", ErrNoMatch, prefix)
}
