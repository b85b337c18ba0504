// Package cli implements warehousectl, the operator command line for the
// parts warehouse. Every command goes through app.ApplicationService.
package cli

import (
	"context"
	"fmt"
	"os"

	"parts-warehouse/internal/app"
	"parts-warehouse/internal/config"
	"parts-warehouse/internal/core"
	"parts-warehouse/internal/db"
	"parts-warehouse/internal/logging"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// env holds the lazily built dependencies shared by all subcommands.
type env struct {
	cfg  *config.Config
	log  *zap.Logger
	pool *pgxpool.Pool
	svc  app.ApplicationService

	tenantID int
	actorID  int
	output   string
}

// actor is the identity every write is recorded under.
func (e *env) actor() app.Actor {
	return app.Actor{TenantID: e.tenantID, UserID: e.actorID}
}

// connect loads configuration and opens the database. Commands that touch
// the database call it from PreRunE.
func (e *env) connect(ctx context.Context) error {
	if e.pool != nil {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}

	e.cfg, e.log, e.pool = cfg, log, pool
	e.svc = app.NewAppService(
		core.NewCatalogService(pool),
		core.NewRequestService(pool, cfg.LockTimeout, log),
		core.NewFulfillmentService(pool, cfg.LockTimeout, log),
		core.NewLedgerService(pool),
	)
	return nil
}

func (e *env) close() {
	if e.pool != nil {
		e.pool.Close()
	}
	if e.log != nil {
		_ = e.log.Sync()
	}
}

// needsDatabase reports whether cmd runs against the database. Commands
// annotated offline and cobra's built-in help commands do not.
func needsDatabase(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["offline"] == "true" {
			return false
		}
		if c.Name() == "help" || c.Name() == "completion" {
			return false
		}
	}
	return true
}

// NewRootCommand builds the warehousectl command tree.
func NewRootCommand() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:           "warehousectl",
		Short:         "Parts warehouse operations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !needsDatabase(cmd) {
				return nil
			}
			if e.tenantID <= 0 || e.actorID <= 0 {
				return fmt.Errorf("--tenant and --actor must be positive")
			}
			if e.output != "json" && e.output != "table" {
				return fmt.Errorf("--output must be json or table, got %q", e.output)
			}
			return e.connect(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			e.close()
		},
	}
	root.PersistentFlags().IntVar(&e.tenantID, "tenant", 1, "tenant id")
	root.PersistentFlags().IntVar(&e.actorID, "actor", 1, "user id recorded as the actor")
	root.PersistentFlags().StringVarP(&e.output, "output", "o", "table", "output format: table or json")

	root.AddCommand(
		newMigrateCmd(e),
		newSeedCmd(e),
		newTokenCmd(),
		newReceiveCmd(e),
		newTransferCmd(e),
		newAdjustCmd(e),
		newReturnCmd(e),
		newStockCmd(e),
		newMovementsCmd(e),
		newReconcileCmd(e),
		newRequestCmd(e),
		newReserveCmd(e),
		newReleaseCmd(e),
		newIssueCmd(e),
		newConfirmCmd(e),
	)
	return root
}

// Execute runs warehousectl and exits non-zero on failure.
func Execute(ctx context.Context) {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
