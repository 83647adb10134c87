// Package settings persists runtime settings for the tool: where
// weights live, which toolchain binary and device to use, and the
// optional no-output watchdog for long-running jobs.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"model-engine-manager/internal/fsio"
)

const (
	DefaultDevice    = "cuda"
	DefaultBinary    = "yolo"
	DefaultTailLines = 40
)

type Settings struct {
	WeightsDir      string `json:"weights_dir,omitempty"`
	ToolchainBinary string `json:"toolchain_binary,omitempty"`
	Device          string `json:"device,omitempty"`
	// StallTimeoutSeconds cancels a job that produces no output for
	// this long. 0 disables the watchdog; network stalls during large
	// downloads are common enough that off is the default.
	StallTimeoutSeconds int `json:"stall_timeout_seconds,omitempty"`
	LogTailLines        int `json:"log_tail_lines,omitempty"`
}

// DefaultPath is the settings file location under the user config dir.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return filepath.Join(".", "model-engine-manager", "settings.json")
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "model-engine-manager", "settings.json")
}

func defaultWeightsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "weights")
	}
	return filepath.Join(home, ".model-engine-manager", "weights")
}

func defaults() Settings {
	return Settings{
		WeightsDir:      defaultWeightsDir(),
		ToolchainBinary: DefaultBinary,
		Device:          DefaultDevice,
		LogTailLines:    DefaultTailLines,
	}
}

func normalize(raw Settings) Settings {
	norm := raw
	if strings.TrimSpace(norm.WeightsDir) == "" {
		norm.WeightsDir = defaultWeightsDir()
	}
	if strings.TrimSpace(norm.ToolchainBinary) == "" {
		norm.ToolchainBinary = DefaultBinary
	}
	if strings.TrimSpace(norm.Device) == "" {
		norm.Device = DefaultDevice
	}
	if norm.StallTimeoutSeconds < 0 {
		norm.StallTimeoutSeconds = 0
	}
	if norm.LogTailLines <= 0 {
		norm.LogTailLines = DefaultTailLines
	}
	return norm
}

// Load reads settings from path, filling defaults for absent fields.
// A missing file yields pure defaults, not an error.
func Load(path string) (Settings, error) {
	var s Settings
	if err := fsio.ReadJSON(path, &s); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaults(), nil
		}
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return normalize(s), nil
}

// Save writes settings atomically, creating parent directories.
func Save(path string, s Settings) error {
	return fsio.WriteJSON(path, normalize(s))
}
