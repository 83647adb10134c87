package artifacts

import (
	"os"
	"path/filepath"
	"strings"

	"model-engine-manager/internal/catalog"
)

// Precision is an engine build mode.
type Precision string

const (
	PrecisionFP32 Precision = "fp32"
	PrecisionFP16 Precision = "fp16"
	PrecisionINT8 Precision = "int8"
)

// Precisions lists all engine precisions in display order.
var Precisions = []Precision{PrecisionFP32, PrecisionFP16, PrecisionINT8}

func ParsePrecision(raw string) (Precision, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(PrecisionFP32), "full":
		return PrecisionFP32, true
	case string(PrecisionFP16), "half":
		return PrecisionFP16, true
	case string(PrecisionINT8):
		return PrecisionINT8, true
	default:
		return "", false
	}
}

// Status reports which artifacts for an entry exist on disk.
type Status struct {
	Weights bool `json:"weights"`
	FP32    bool `json:"engine_fp32"`
	FP16    bool `json:"engine_fp16"`
	INT8    bool `json:"engine_int8"`
}

func (s Status) Engine(p Precision) bool {
	switch p {
	case PrecisionFP32:
		return s.FP32
	case PrecisionFP16:
		return s.FP16
	case PrecisionINT8:
		return s.INT8
	default:
		return false
	}
}

// Resolver derives artifact paths under a single weights directory and
// probes their existence. It never writes.
type Resolver struct {
	WeightsDir string
}

func (r Resolver) WeightPath(e catalog.Entry) string {
	return filepath.Join(r.WeightsDir, e.ModelName()+".pt")
}

// GenericEnginePath is where the export toolchain drops its output
// before the dispatcher renames it per precision.
func (r Resolver) GenericEnginePath(e catalog.Entry) string {
	return filepath.Join(r.WeightsDir, e.ModelName()+".engine")
}

func (r Resolver) EnginePath(e catalog.Entry, p Precision) string {
	return filepath.Join(r.WeightsDir, e.ModelName()+"-"+string(p)+".engine")
}

// Resolve recomputes the status flags from the filesystem. A missing
// weights directory simply yields all-false flags.
func (r Resolver) Resolve(e catalog.Entry) Status {
	return Status{
		Weights: fileExists(r.WeightPath(e)),
		FP32:    fileExists(r.EnginePath(e, PrecisionFP32)),
		FP16:    fileExists(r.EnginePath(e, PrecisionFP16)),
		INT8:    fileExists(r.EnginePath(e, PrecisionINT8)),
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
