package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/seantiz/arbiter/internal/api"
	"github.com/seantiz/arbiter/internal/config"
	"github.com/seantiz/arbiter/internal/evaluator"
	"github.com/seantiz/arbiter/internal/hook"
	"github.com/seantiz/arbiter/internal/sink"
	"github.com/seantiz/arbiter/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the evaluation service",
	Long: `Starts the HTTP service. Runs posted to /v1/runs are persisted and
dispatched to the suite's evaluators; feedback and stats are served from the
same API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		logger := config.NewLogger(os.Stdout, cfg.LogLevel)

		suite, err := loadSuite(cfg)
		if err != nil {
			return err
		}

		st, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer st.Close()

		h, err := buildHook(suite, st, logger)
		if err != nil {
			return err
		}

		logger.Info("arbiter: starting",
			"listen_addr", cfg.ListenAddr,
			"db_path", cfg.DBPath,
			"evaluators", h.Kinds(),
		)

		srv := api.NewServer(cfg.ListenAddr, st, h, logger)
		return srv.Run()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// loadSuite reads the suite file, honoring the --suite flag over config/env.
func loadSuite(cfg config.Config) (*config.Suite, error) {
	path := cfg.SuitePath
	if suiteFile != "" {
		path = suiteFile
	}
	return config.LoadSuite(path)
}

// buildHook resolves the suite's evaluators and assembles the dispatch hook
// around a store-backed recording client.
func buildHook(suite *config.Suite, st store.Store, logger *slog.Logger) (*hook.Hook, error) {
	reg := evaluator.DefaultRegistry()

	evs := make([]evaluator.Evaluator, 0, len(suite.Evaluators))
	for _, spec := range suite.Evaluators {
		ev, err := reg.Resolve(spec.Kind, spec.Params)
		if err != nil {
			return nil, err
		}
		evs = append(evs, ev)
	}

	opts := []hook.Option{
		hook.WithLogger(logger),
		hook.WithSkipUnfinished(suite.SkipUnfinishedOrDefault()),
	}
	if suite.MaxWorkers > 0 {
		opts = append(opts, hook.WithMaxWorkers(suite.MaxWorkers))
	}
	if suite.ProjectName != "" {
		opts = append(opts, hook.WithProjectName(suite.ProjectName))
	}
	if suite.ExampleID != "" {
		opts = append(opts, hook.WithExampleID(suite.ExampleID))
	}

	client := sink.NewRecordingClient(st, logger)
	return hook.New(client, evs, opts...)
}
