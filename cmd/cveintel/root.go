package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/charlesng35/cveintel/internal/app"
	"github.com/charlesng35/cveintel/internal/bootstrap"
	"github.com/charlesng35/cveintel/pkg/logger"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

type cliState struct {
	configPath string
	cfg        *app.Config
}

func newRootCmd() *cobra.Command {
	state := &cliState{}

	root := &cobra.Command{
		Use:   "cveintel",
		Short: "Operate the CVE intelligence cache from the command line",
		Long: `cveintel queries the vulnerability, exploited-registry and exploit-probability
providers through the shared intelligence cache, and runs cache maintenance
without starting the HTTP server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return state.load()
		},
	}
	root.PersistentFlags().StringVar(&state.configPath, "config", "", "path to configuration directory or file")

	root.AddCommand(
		newVersionCmd(),
		newAssessCmd(state),
		newSearchCmd(state),
		newSweepCmd(state),
		newAuditCmd(state),
	)
	return root
}

func (s *cliState) load() error {
	var (
		cfg *app.Config
		err error
	)
	path := strings.TrimSpace(s.configPath)
	switch {
	case path == "":
		cfg, err = app.LoadConfig()
	default:
		info, statErr := os.Stat(path)
		if statErr != nil {
			return fmt.Errorf("config path %q: %w", path, statErr)
		}
		if !info.IsDir() {
			path = filepath.Dir(path)
		}
		cfg, err = app.LoadConfig(path)
	}
	if err != nil {
		return err
	}

	if _, err := app.ApplyRuntimeDefaults(cfg); err != nil {
		return err
	}
	if err := app.ConfigureLogging(cfg.Logging); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	s.cfg = cfg
	return nil
}

// withServices opens the shared services for the duration of fn.
func (s *cliState) withServices(ctx context.Context, fn func(context.Context, *bootstrap.Services) error) error {
	log := logger.WithModule("cli")
	svc, err := bootstrap.NewServices(s.cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close(log)

	if err := fn(ctx, svc); err != nil {
		log.Debug("command failed", zap.Error(err))
		return err
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func tenantFlag(raw string) *string {
	if tenant := strings.TrimSpace(raw); tenant != "" {
		return &tenant
	}
	return nil
}
