package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aeo-tracker/backend/internal/storage"
	"github.com/aeo-tracker/backend/internal/storage/slots"
	"github.com/aeo-tracker/backend/internal/temporal"
	"github.com/aeo-tracker/backend/pkg/config"
	"github.com/aeo-tracker/backend/pkg/logger"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "Error:", ee.msg)
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "aeoctl",
		Short:        "Maintain the AEO Tracker history store",
		Long:         "aeoctl exports, imports, prunes and seeds the tracking history using the same configuration as the API server.",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Config file (defaults to ./config.yaml)")

	open := func() (*temporal.Store, slots.Backend, error) {
		return openStore(configPath)
	}

	root.AddCommand(
		newExportCmd(open),
		newImportCmd(open),
		newClearCmd(open),
		newSeedCmd(open),
		newTrendsCmd(open),
	)

	return root
}

type storeOpener func() (*temporal.Store, slots.Backend, error)

func openStore(configPath string) (*temporal.Store, slots.Backend, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, nil, codeError(3, "loading config: %s", err)
	}

	// Logs go to stderr so command output stays pipeable.
	if err := logger.Init(cfg.Logging.Level, "console", "stderr"); err != nil {
		return nil, nil, codeError(3, "initializing logger: %s", err)
	}

	backend, err := storage.Open(cfg)
	if err != nil {
		return nil, nil, codeError(2, "opening storage: %s", err)
	}

	store := temporal.NewStore(backend,
		temporal.WithRoster(cfg.Store.Roster),
		temporal.WithPositionCap(cfg.Store.PositionCap),
		temporal.WithVariabilityCap(cfg.Store.VariabilityCap),
	)
	return store, backend, nil
}
