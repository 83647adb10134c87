// Package calibration rewrites INT8 calibration descriptors so that
// the export toolchain can resolve dataset paths no matter what the
// process working directory is. The toolchain resolves relative paths
// against the descriptor's own directory, so the rewritten copy pins
// the base path to that directory and normalizes the split paths to
// the layout the paired dataset is extracted with.
package calibration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"model-engine-manager/internal/fsio"
)

// SplitDir is the subdirectory both calibration splits point at. The
// export pass calibrates on the training split only.
const SplitDir = "images/train2017"

const rewrittenSuffix = ".resolved"

// Descriptor is the calibration document. Test is kept distinct from
// absent-vs-empty on input but always written out, empty when unset.
type Descriptor struct {
	Path  string         `yaml:"path"`
	Train string         `yaml:"train"`
	Val   string         `yaml:"val"`
	Test  string         `yaml:"test"`
	Names map[int]string `yaml:"names,omitempty"`
}

// ParseError reports a descriptor that could not be read as the
// expected document shape.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("calibration descriptor %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load parses the descriptor at path and validates its required fields.
func Load(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, &ParseError{Path: path, Err: err}
	}
	var doc Descriptor
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Descriptor{}, &ParseError{Path: path, Err: err}
	}
	if strings.TrimSpace(doc.Train) == "" {
		return Descriptor{}, &ParseError{Path: path, Err: fmt.Errorf("missing required field %q", "train")}
	}
	if strings.TrimSpace(doc.Val) == "" {
		return Descriptor{}, &ParseError{Path: path, Err: fmt.Errorf("missing required field %q", "val")}
	}
	return doc, nil
}

// Rewrite loads the descriptor at sourcePath and writes an adjusted
// copy next to it, returning the new path. The source is never
// modified. Repeated rewrites of the same source produce byte-identical
// output: the adjusted fields are replaced outright, not prefixed.
func Rewrite(sourcePath string) (string, error) {
	doc, err := Load(sourcePath)
	if err != nil {
		return "", err
	}

	abs, err := filepath.Abs(sourcePath)
	if err != nil {
		return "", fmt.Errorf("resolve descriptor path %s: %w", sourcePath, err)
	}

	doc.Path = filepath.Dir(abs)
	doc.Train = SplitDir
	doc.Val = SplitDir
	// doc.Test stays as loaded; null or absent stays empty.

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal rewritten descriptor for %s: %w", sourcePath, err)
	}

	outPath := rewrittenPath(abs)
	if err := fsio.WriteBytes(outPath, out); err != nil {
		return "", err
	}
	return outPath, nil
}

// rewrittenPath maps cal.yaml -> cal.resolved.yaml. An input that is
// already a rewritten copy maps onto itself instead of growing a
// .resolved.resolved chain.
func rewrittenPath(abs string) string {
	ext := filepath.Ext(abs)
	stem := strings.TrimSuffix(abs, ext)
	stem = strings.TrimSuffix(stem, rewrittenSuffix)
	return stem + rewrittenSuffix + ext
}
