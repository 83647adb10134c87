package cli

import (
	"flag"
	"fmt"

	"model-engine-manager/internal/artifacts"
	"model-engine-manager/internal/catalog"
	"model-engine-manager/internal/settings"
)

type entryStatusReport struct {
	Model   string           `json:"model"`
	Family  string           `json:"family"`
	Version string           `json:"version"`
	Task    catalog.Task     `json:"task"`
	Status  artifacts.Status `json:"status"`
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	settingsPath := fs.String("settings", settings.DefaultPath(), "settings file path")
	catalogPath := fs.String("catalog", DefaultCatalogPath, "catalog file path")
	asJSON := fs.Bool("json", false, "machine-readable output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := loadEnv(*settingsPath, *catalogPath)
	if err != nil {
		return err
	}

	reports := make([]entryStatusReport, 0, len(e.entries))
	for _, entry := range e.entries {
		reports = append(reports, entryStatusReport{
			Model:   entry.ModelName(),
			Family:  entry.Family,
			Version: entry.Version,
			Task:    entry.Task,
			Status:  e.resolver.Resolve(entry),
		})
	}

	if *asJSON {
		return printJSON(reports)
	}

	fmt.Printf("%-20s %-10s %-8s %-6s %-6s %-6s\n", "MODEL", "TASK", "WEIGHTS", "FP32", "FP16", "INT8")
	for _, r := range reports {
		fmt.Printf("%-20s %-10s %-8s %-6s %-6s %-6s\n",
			r.Model, r.Task,
			yesNo(r.Status.Weights), yesNo(r.Status.FP32), yesNo(r.Status.FP16), yesNo(r.Status.INT8))
	}
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	settingsPath := fs.String("settings", settings.DefaultPath(), "settings file path")
	catalogPath := fs.String("catalog", DefaultCatalogPath, "catalog file path")
	model := fs.String("model", "", "model name, e.g. yolov8n-seg")
	asJSON := fs.Bool("json", false, "machine-readable output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *model == "" {
		return fmt.Errorf("--model is required")
	}

	e, err := loadEnv(*settingsPath, *catalogPath)
	if err != nil {
		return err
	}
	if err := e.selectModel(*model); err != nil {
		return err
	}

	entry, _ := e.session.Selected()
	st := e.session.Status()
	if *asJSON {
		return printJSON(entryStatusReport{
			Model:   entry.ModelName(),
			Family:  entry.Family,
			Version: entry.Version,
			Task:    entry.Task,
			Status:  st,
		})
	}

	fmt.Printf("model:   %s (%s)\n", entry.ModelName(), entry.Task)
	fmt.Printf("weights: %s (%s)\n", yesNo(st.Weights), e.resolver.WeightPath(entry))
	for _, p := range artifacts.Precisions {
		fmt.Printf("%-8s %s (%s)\n", string(p)+":", yesNo(st.Engine(p)), e.resolver.EnginePath(entry, p))
	}
	return nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
