package cli

import (
	"flag"
	"fmt"
	"os"

	"model-engine-manager/internal/catalog"
	"model-engine-manager/internal/settings"
	"model-engine-manager/internal/toolchain"
)

type doctorReport struct {
	Toolchain       toolchain.DependencyReport `json:"toolchain"`
	WeightsDir      string                     `json:"weights_dir"`
	WeightsWritable bool                       `json:"weights_dir_writable"`
	CatalogPath     string                     `json:"catalog_path"`
	CatalogOK       bool                       `json:"catalog_ok"`
	CatalogError    string                     `json:"catalog_error,omitempty"`
	CatalogEntries  int                        `json:"catalog_entries"`
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	settingsPath := fs.String("settings", settings.DefaultPath(), "settings file path")
	catalogPath := fs.String("catalog", DefaultCatalogPath, "catalog file path")
	asJSON := fs.Bool("json", false, "machine-readable output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := settings.Load(*settingsPath)
	if err != nil {
		return err
	}
	client := toolchain.Client{Binary: cfg.ToolchainBinary}

	report := doctorReport{
		Toolchain:       client.DependencyStatus(),
		WeightsDir:      cfg.WeightsDir,
		WeightsWritable: dirWritable(cfg.WeightsDir),
		CatalogPath:     *catalogPath,
	}
	entries, catErr := catalog.Load(*catalogPath)
	if catErr != nil {
		report.CatalogError = catErr.Error()
	} else {
		report.CatalogOK = true
		report.CatalogEntries = len(entries)
	}

	if *asJSON {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		fmt.Printf("toolchain:   %s\n", checkLabel(report.Toolchain.ToolchainFound, report.Toolchain.ToolchainPath, "not found on PATH"))
		fmt.Printf("weights dir: %s\n", checkLabel(report.WeightsWritable, report.WeightsDir, report.WeightsDir+" (not writable)"))
		fmt.Printf("catalog:     %s\n", checkLabel(report.CatalogOK, fmt.Sprintf("%s (%d entries)", report.CatalogPath, report.CatalogEntries), report.CatalogError))
	}

	if !report.Toolchain.ToolchainFound || !report.WeightsWritable || !report.CatalogOK {
		return fmt.Errorf("preflight checks failed")
	}
	return nil
}

func checkLabel(ok bool, okText, failText string) string {
	if ok {
		return "ok - " + okText
	}
	return "FAIL - " + failText
}

func dirWritable(dir string) bool {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return false
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return true
}
