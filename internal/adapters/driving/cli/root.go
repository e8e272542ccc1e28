// Package cli provides the mira command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/mira/internal/core/ports/driving"
	"github.com/custodia-labs/mira/internal/logger"
)

// skipBootstrap marks commands that run without application services.
const skipBootstrap = "skip-bootstrap"

// Services bundles the driving ports used by commands.
type Services struct {
	Ingest    driving.IngestService
	Query     driving.QueryService
	Retrieval driving.RetrievalService
	Settings  driving.SettingsService

	// Unavailable explains why Ingest, Query or Retrieval are nil.
	Unavailable error

	// Close releases the services. May be nil.
	Close func() error
}

// Bootstrap builds the services once flags are parsed and the environment
// file is loaded.
type Bootstrap func(ctx context.Context) (*Services, error)

var (
	version = "dev"
	verbose bool
	envFile string

	ingestService    driving.IngestService
	queryService     driving.QueryService
	retrievalService driving.RetrievalService
	settingsService  driving.SettingsService

	servicesUnavailable error
	closeServices       func() error
	bootstrap           Bootstrap
)

var rootCmd = &cobra.Command{
	Use:   "mira",
	Short: "Answer credential evaluation questions from your knowledge base",
	Long: `Mira answers questions about foreign academic credentials using a knowledge
base of country profiles, grading scales and institutional policies.

Documents are chunked, embedded and indexed with 'mira ingest'. Questions are
answered with 'mira ask', which retrieves the most relevant passages and asks
the configured LLM to answer from them, citing the documents used.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "environment file to load if present")
}

// SetVersion sets the version reported by 'mira version'.
func SetVersion(v string) {
	version = v
}

// SetBootstrap registers the function that builds services before a command runs.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// SetServices installs the services used by commands.
func SetServices(s *Services) {
	if s == nil {
		s = &Services{}
	}
	ingestService = s.Ingest
	queryService = s.Query
	retrievalService = s.Retrieval
	settingsService = s.Settings
	servicesUnavailable = s.Unavailable
	closeServices = s.Close
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	if cmd.Annotations[skipBootstrap] != "" || bootstrap == nil || settingsService != nil {
		return nil
	}

	services, err := bootstrap(cmd.Context())
	if err != nil {
		return fmt.Errorf("initialising: %w", err)
	}
	SetServices(services)
	if servicesUnavailable != nil {
		logger.Debug("services unavailable: %v", servicesUnavailable)
	}
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if closeServices == nil {
		return nil
	}
	err := closeServices()
	closeServices = nil
	return err
}

// loadEnvFile loads KEY=value pairs without overriding the environment.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// notConfigured reports a missing service, with the reason when known.
func notConfigured(name string) error {
	if servicesUnavailable != nil {
		return fmt.Errorf("%s service not configured: %w", name, servicesUnavailable)
	}
	return fmt.Errorf("%s service not configured", name)
}
