package cli

import (
	"fmt"
	"time"

	"model-engine-manager/internal/artifacts"
	"model-engine-manager/internal/catalog"
	"model-engine-manager/internal/dispatch"
	"model-engine-manager/internal/session"
	"model-engine-manager/internal/settings"
	"model-engine-manager/internal/toolchain"
)

// DefaultCatalogPath is resolved against the working directory, like
// the rest of the command surface's relative arguments.
const DefaultCatalogPath = "models.json"

// env bundles the wired-up core for one command invocation.
type env struct {
	settings settings.Settings
	entries  []catalog.Entry
	resolver artifacts.Resolver
	client   toolchain.Client
	session  *session.Session
}

func loadEnv(settingsPath, catalogPath string) (*env, error) {
	cfg, err := settings.Load(settingsPath)
	if err != nil {
		return nil, err
	}

	entries, err := catalog.Load(catalogPath)
	if err != nil {
		return nil, err
	}

	resolver := artifacts.Resolver{WeightsDir: cfg.WeightsDir}
	client := toolchain.Client{
		Binary:    cfg.ToolchainBinary,
		Device:    cfg.Device,
		TailLines: cfg.LogTailLines,
	}
	dispatcher := dispatch.New(client, resolver, time.Duration(cfg.StallTimeoutSeconds)*time.Second)

	return &env{
		settings: cfg,
		entries:  entries,
		resolver: resolver,
		client:   client,
		session:  session.New(entries, resolver, dispatcher),
	}, nil
}

// selectModel points the session at the entry whose model name
// matches, or errors listing what exists.
func (e *env) selectModel(name string) error {
	entry, ok := catalog.FindByModelName(e.entries, name)
	if !ok {
		return fmt.Errorf("unknown model %q (try `model-engine-manager list`)", name)
	}
	for i := range e.entries {
		if e.entries[i] == entry {
			return e.session.TrySelect(i)
		}
	}
	return fmt.Errorf("unknown model %q", name)
}
