package config

import (
	"reflect"
	"sort"
)

// DiffEntry records one leaf whose value differs between the defaults and
// the effective config.
type DiffEntry struct {
	Path string
	Old  any
	New  any
}

// Diff compares a defaults tree against an effective tree leaf by leaf.
// Internal sentinels are excluded from both sides; Required sentinels
// render as the literal tag "PROMPT".
func Diff(defaults, effective Config) []DiffEntry {
	flatOld := Flatten(defaults)
	flatNew := Flatten(effective)

	paths := make(map[string]struct{}, len(flatOld)+len(flatNew))
	for p := range flatOld {
		paths[p] = struct{}{}
	}
	for p := range flatNew {
		paths[p] = struct{}{}
	}

	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	var entries []DiffEntry
	for _, path := range sorted {
		oldVal, hasOld := flatOld[path]
		newVal, hasNew := flatNew[path]
		if isInternal(oldVal) || isInternal(newVal) {
			continue
		}
		oldVal = renderSentinel(oldVal)
		newVal = renderSentinel(newVal)
		if hasOld && hasNew && reflect.DeepEqual(oldVal, newVal) {
			continue
		}
		entries = append(entries, DiffEntry{Path: path, Old: oldVal, New: newVal})
	}
	return entries
}

func isInternal(v any) bool {
	_, ok := v.(Internal)
	return ok
}

func renderSentinel(v any) any {
	if _, ok := v.(Required); ok {
		return "PROMPT"
	}
	return v
}
