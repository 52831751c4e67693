package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/arbiter/internal/config"
	"github.com/seantiz/arbiter/internal/model"
	"github.com/seantiz/arbiter/internal/store"
)

var evaluateDBPath string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <run.json>",
	Short: "Evaluate a single run file",
	Long: `Reads a run from a JSON file, dispatches it to the suite's evaluators,
waits for all evaluations to finish, and prints the recorded feedback.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		logger := config.NewLogger(os.Stderr, cfg.LogLevel)

		suite, err := loadSuite(cfg)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read run file: %w", err)
		}
		var run model.Run
		if err := json.Unmarshal(data, &run); err != nil {
			return fmt.Errorf("parse run file: %w", err)
		}
		if run.ID == "" {
			run.ID = model.NewID()
		}
		if run.RunType == "" {
			run.RunType = model.RunTypeChain
		}
		if run.CreatedAt.IsZero() {
			run.CreatedAt = time.Now().UTC()
		}

		st, err := store.NewSQLiteStore(evaluateDBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer st.Close()

		h, err := buildHook(suite, st, logger)
		if err != nil {
			return err
		}

		ctx := context.Background()
		if err := st.CreateRun(ctx, &run); err != nil {
			return fmt.Errorf("persist run: %w", err)
		}

		h.OnRunPersisted(&run)
		h.WaitForAll()

		feedback, err := st.ListFeedbackByRun(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("list feedback: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(feedback)
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateDBPath, "db", ":memory:", "database path for recorded feedback")
	rootCmd.AddCommand(evaluateCmd)
}
