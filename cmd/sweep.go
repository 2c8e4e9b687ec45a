package cmd

import (
	"encoding/json"
	"fmt"

	"familypoints/database"
	"familypoints/events"
	"familypoints/repository"
	"familypoints/worker"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep NAME",
	Short: "Run one background sweep and exit",
	Long: fmt.Sprintf(`Run a sweep once and print its summary as JSON.
Available sweeps: %s, %s.`, worker.SweepAutoApprove, worker.SweepAutoRefund),
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{worker.SweepAutoApprove, worker.SweepAutoRefund},
	RunE:      runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := loadConfig()

	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	svc := newServices(repository.NewUnitOfWorkFactory(db, events.NewBus()), cfg)
	sweeps := worker.NewSweepWorker(svc.tasks, svc.rewards, cfg.SweepInterval)

	summary, err := sweeps.RunNamed(ctx, args[0])
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(summary)
}
