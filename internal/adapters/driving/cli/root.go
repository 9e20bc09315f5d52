// Package cli implements the jarvis command line.
//
// Commands drive core services through the driving ports only. The services
// are built lazily by a Bootstrap function installed from main, so that
// global flags such as --config are parsed first. Tests install services
// directly with SetServices.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driving"
	"github.com/custodia-labs/jarvis/internal/logger"
)

// version is set at build time with -ldflags "-X .../cli.version=x.y.z".
var version = "dev"

// WorkerOptions are the per-invocation overrides of the work command.
type WorkerOptions struct {
	Concurrency int
	Types       []domain.TaskType
}

// Services are the core services the commands drive.
type Services struct {
	Registry  driving.ContentRegistry
	Queue     driving.TaskQueue
	Ingestor  driving.Ingestor
	Extractor driving.EntityExtractor
	Facts     driving.FactService
	Search    driving.SearchService
	Scheduler driving.Scheduler

	// NewWorker builds a worker with opts applied over the configuration.
	NewWorker func(opts WorkerOptions) driving.Worker

	// NewExporter connects to the graph database. The returned function
	// closes the connection.
	NewExporter func(ctx context.Context) (driving.GraphExportService, func(), error)

	// LocalDirs are the configured source directories, used by ingest when
	// no directory is given.
	LocalDirs []string
}

// Bootstrap builds services from the configuration at configPath (empty for
// the default). The returned function releases them.
type Bootstrap func(ctx context.Context, configPath string) (*Services, func(), error)

var (
	services  *Services
	bootstrap Bootstrap
	cleanup   func()

	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "jarvis",
	Short: "Personal knowledge pipeline",
	Long: `jarvis ingests personal documents (emails, attachments, local files)
into a content registry and runs them through a durable task pipeline:
semantic indexing, entity extraction and lab, financial and medical
fact building.`,
	SilenceUsage:      true,
	PersistentPreRunE: initServices,
	PersistentPostRun: func(*cobra.Command, []string) {
		if cleanup != nil {
			cleanup()
			cleanup = nil
			services = nil
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.jarvis/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// SetBootstrap installs the function that builds services on first use.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// SetServices installs ready-made services, bypassing Bootstrap.
func SetServices(s *Services) {
	services = s
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// noServices marks commands that run without a database.
const noServices = "no-services"

func initServices(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	logger.SetOutput(cmd.ErrOrStderr())

	if cmd.Annotations[noServices] != "" || services != nil {
		return nil
	}
	if bootstrap == nil {
		return errors.New("services not configured")
	}

	s, release, err := bootstrap(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	services = s
	cleanup = release
	return nil
}

// commandContext returns the command context, or Background when run
// outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
