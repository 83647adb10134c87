package cli

import (
	"flag"
	"fmt"

	"model-engine-manager/internal/settings"
)

func runSettings(args []string) error {
	fs := flag.NewFlagSet("settings", flag.ContinueOnError)
	settingsPath := fs.String("settings", settings.DefaultPath(), "settings file path")
	weightsDir := fs.String("weights-dir", "", "set the weights/engines directory")
	binary := fs.String("binary", "", "set the toolchain executable name")
	device := fs.String("device", "", "set the export device (cuda, cpu, ...)")
	stall := fs.Int("stall-timeout", -1, "set no-output watchdog in seconds (0 disables)")
	tail := fs.Int("log-tail", -1, "set diagnostic tail length in lines")
	asJSON := fs.Bool("json", false, "machine-readable output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := settings.Load(*settingsPath)
	if err != nil {
		return err
	}

	changed := false
	if *weightsDir != "" {
		cfg.WeightsDir = *weightsDir
		changed = true
	}
	if *binary != "" {
		cfg.ToolchainBinary = *binary
		changed = true
	}
	if *device != "" {
		cfg.Device = *device
		changed = true
	}
	if *stall >= 0 {
		cfg.StallTimeoutSeconds = *stall
		changed = true
	}
	if *tail > 0 {
		cfg.LogTailLines = *tail
		changed = true
	}

	if changed {
		if err := settings.Save(*settingsPath, cfg); err != nil {
			return err
		}
		cfg, err = settings.Load(*settingsPath)
		if err != nil {
			return err
		}
	}

	if *asJSON {
		return printJSON(cfg)
	}
	fmt.Printf("settings file:  %s\n", *settingsPath)
	fmt.Printf("weights dir:    %s\n", cfg.WeightsDir)
	fmt.Printf("toolchain:      %s\n", cfg.ToolchainBinary)
	fmt.Printf("device:         %s\n", cfg.Device)
	fmt.Printf("stall timeout:  %ds\n", cfg.StallTimeoutSeconds)
	fmt.Printf("log tail lines: %d\n", cfg.LogTailLines)
	return nil
}
