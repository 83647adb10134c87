package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "list":
		return runList(args[1:])
	case "status":
		return runStatus(args[1:])
	case "download":
		return runDownload(args[1:])
	case "build":
		return runBuild(args[1:])
	case "rewrite-data":
		return runRewriteData(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "settings":
		return runSettings(args[1:])
	case "manage":
		return runManage(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("model-engine-manager: catalog-driven model weight and engine builder")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  model-engine-manager doctor")
	fmt.Println("  model-engine-manager list")
	fmt.Println("  model-engine-manager download --model yolov8n")
	fmt.Println("  model-engine-manager build --model yolov8n --precision fp16")
	fmt.Println("  model-engine-manager manage")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  list          catalog entries with on-disk artifact status")
	fmt.Println("  status        artifact status for one model")
	fmt.Println("  download      download raw weights for a model")
	fmt.Println("  build         build an engine (fp32|fp16|int8) for a model")
	fmt.Println("  rewrite-data  rewrite a calibration descriptor for portable paths")
	fmt.Println("  doctor        dependency and filesystem preflight checks")
	fmt.Println("  settings      show/update runtime settings")
	fmt.Println("  manage        interactive model manager")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - int8 builds need --data pointing at a calibration descriptor")
}
