package settings

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.ToolchainBinary != DefaultBinary {
		t.Fatalf("binary default: %q", s.ToolchainBinary)
	}
	if s.Device != DefaultDevice {
		t.Fatalf("device default: %q", s.Device)
	}
	if s.WeightsDir == "" {
		t.Fatal("weights dir default must be set")
	}
	if s.StallTimeoutSeconds != 0 {
		t.Fatalf("stall watchdog must default to off, got %d", s.StallTimeoutSeconds)
	}
	if s.LogTailLines != DefaultTailLines {
		t.Fatalf("tail default: %d", s.LogTailLines)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "settings.json")
	in := Settings{
		WeightsDir:          "/data/weights",
		ToolchainBinary:     "yolo-custom",
		Device:              "cpu",
		StallTimeoutSeconds: 120,
		LogTailLines:        10,
	}
	if err := Save(path, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestNormalizationFillsPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := Save(path, Settings{Device: "cpu", StallTimeoutSeconds: -5}); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Device != "cpu" {
		t.Fatalf("explicit device lost: %q", s.Device)
	}
	if s.ToolchainBinary != DefaultBinary || s.LogTailLines != DefaultTailLines {
		t.Fatalf("defaults not filled: %+v", s)
	}
	if s.StallTimeoutSeconds != 0 {
		t.Fatalf("negative stall timeout must clamp to 0, got %d", s.StallTimeoutSeconds)
	}
}
