package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Task is the inference task a model is trained for.
type Task string

const (
	TaskDetect   Task = "detect"
	TaskSegment  Task = "segment"
	TaskPose     Task = "pose"
	TaskClassify Task = "classify"
)

func ParseTask(raw string) (Task, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(TaskDetect), "detection":
		return TaskDetect, true
	case string(TaskSegment), "segmentation":
		return TaskSegment, true
	case string(TaskPose):
		return TaskPose, true
	case string(TaskClassify), "classification":
		return TaskClassify, true
	default:
		return "", false
	}
}

// Entry is one selectable model definition. Entries are immutable after
// load; other packages hold references, never copies they mutate.
type Entry struct {
	Family      string `json:"family"`
	Version     string `json:"version"`
	Task        Task   `json:"task"`
	DisplayName string `json:"display_name,omitempty"`
}

// ModelName derives the canonical weight-file stem for the entry,
// e.g. family "yolo", version "v8n", task segment -> "yolov8n-seg".
func (e Entry) ModelName() string {
	return e.Family + e.Version + taskSuffix(e.Task)
}

func (e Entry) Label() string {
	if strings.TrimSpace(e.DisplayName) != "" {
		return e.DisplayName
	}
	return e.ModelName()
}

func taskSuffix(t Task) string {
	switch t {
	case TaskSegment:
		return "-seg"
	case TaskPose:
		return "-pose"
	case TaskClassify:
		return "-cls"
	default:
		return ""
	}
}

// ConfigError reports a missing or malformed catalog file. Index is the
// zero-based position of the offending entry, or -1 for file-level
// problems.
type ConfigError struct {
	Path   string
	Index  int
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("catalog %s: entry %d: %s", e.Path, e.Index, e.Reason)
	}
	return fmt.Sprintf("catalog %s: %s", e.Path, e.Reason)
}

type rawEntry struct {
	Family      string `json:"family"`
	Version     string `json:"version"`
	Task        string `json:"task"`
	DisplayName string `json:"display_name,omitempty"`
}

// Load reads the catalog file and returns its entries in source order.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ConfigError{Path: path, Index: -1, Reason: "file not found"}
		}
		return nil, &ConfigError{Path: path, Index: -1, Reason: err.Error()}
	}

	var raw []rawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Path: path, Index: -1, Reason: fmt.Sprintf("parse JSON: %v", err)}
	}
	if len(raw) == 0 {
		return nil, &ConfigError{Path: path, Index: -1, Reason: "catalog has no entries"}
	}

	entries := make([]Entry, 0, len(raw))
	for i, r := range raw {
		if strings.TrimSpace(r.Family) == "" {
			return nil, &ConfigError{Path: path, Index: i, Reason: "missing family"}
		}
		if strings.TrimSpace(r.Version) == "" {
			return nil, &ConfigError{Path: path, Index: i, Reason: "missing version"}
		}
		task, ok := ParseTask(r.Task)
		if !ok {
			if strings.TrimSpace(r.Task) == "" {
				return nil, &ConfigError{Path: path, Index: i, Reason: "missing task"}
			}
			return nil, &ConfigError{Path: path, Index: i, Reason: fmt.Sprintf("unknown task %q", r.Task)}
		}
		entries = append(entries, Entry{
			Family:      strings.TrimSpace(r.Family),
			Version:     strings.TrimSpace(r.Version),
			Task:        task,
			DisplayName: strings.TrimSpace(r.DisplayName),
		})
	}
	return entries, nil
}

// FindByModelName returns the entry whose derived model name matches.
func FindByModelName(entries []Entry, name string) (Entry, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, e := range entries {
		if strings.ToLower(e.ModelName()) == want {
			return e, true
		}
	}
	return Entry{}, false
}
