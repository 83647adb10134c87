package cli

import (
	"flag"
	"fmt"
	"os"

	"model-engine-manager/internal/artifacts"
	"model-engine-manager/internal/calibration"
	"model-engine-manager/internal/dispatch"
	"model-engine-manager/internal/session"
	"model-engine-manager/internal/settings"
)

func runDownload(args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	settingsPath := fs.String("settings", settings.DefaultPath(), "settings file path")
	catalogPath := fs.String("catalog", DefaultCatalogPath, "catalog file path")
	model := fs.String("model", "", "model name, e.g. yolov8n")
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
	if err := e.session.StartDownload(); err != nil {
		return err
	}
	return followJob(e.session)
}

func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	settingsPath := fs.String("settings", settings.DefaultPath(), "settings file path")
	catalogPath := fs.String("catalog", DefaultCatalogPath, "catalog file path")
	model := fs.String("model", "", "model name, e.g. yolov8n")
	precisionRaw := fs.String("precision", "fp16", "engine precision: fp32, fp16 or int8")
	dataPath := fs.String("data", "", "calibration descriptor (required for int8)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *model == "" {
		return fmt.Errorf("--model is required")
	}
	precision, ok := artifacts.ParsePrecision(*precisionRaw)
	if !ok {
		return fmt.Errorf("unknown precision %q (expected fp32, fp16 or int8)", *precisionRaw)
	}

	e, err := loadEnv(*settingsPath, *catalogPath)
	if err != nil {
		return err
	}
	if err := e.selectModel(*model); err != nil {
		return err
	}
	if err := e.session.StartBuild(precision, *dataPath); err != nil {
		return err
	}
	return followJob(e.session)
}

func runRewriteData(args []string) error {
	fs := flag.NewFlagSet("rewrite-data", flag.ContinueOnError)
	dataPath := fs.String("data", "", "calibration descriptor path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dataPath == "" {
		return fmt.Errorf("--data is required")
	}

	out, err := calibration.Rewrite(*dataPath)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// followJob drains session events until the job completes, echoing
// output lines as they arrive. The command's exit status reflects the
// job outcome.
func followJob(s *session.Session) error {
	for ev := range s.Events() {
		s.Apply(ev)
		switch ev := ev.(type) {
		case session.LogEvent:
			fmt.Println(ev.Line)
		case session.DoneEvent:
			outcome := ev.Outcome
			switch outcome.State {
			case dispatch.StateSucceeded:
				fmt.Println(outcome.Message)
				return nil
			case dispatch.StateCancelled:
				return fmt.Errorf("%s", outcome.Message)
			default:
				for _, line := range outcome.Tail {
					fmt.Fprintln(os.Stderr, line)
				}
				return fmt.Errorf("%s", outcome.Message)
			}
		}
	}
	return nil
}
