package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"parts-warehouse/internal/adapters/web"
	"parts-warehouse/internal/app"
	"parts-warehouse/internal/config"
	"parts-warehouse/internal/core"
	"parts-warehouse/internal/db"
	"parts-warehouse/migrations"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := db.Migrate(cmd.Context(), e.pool, migrations.FS, e.log); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
			return nil
		},
	}
}

// seedCatalog is the demo catalog created by the seed command.
var seedCatalog = struct {
	warehouse app.CreateWarehouseRequest
	locations []string
	parts     []app.CreatePartRequest
}{
	warehouse: app.CreateWarehouseRequest{Code: "MAIN", Name: "Main Depot"},
	locations: []string{"A-01", "A-02", "B-01"},
	parts: []app.CreatePartRequest{
		{SKU: "BRK-PAD-01", Name: "Brake pad set", Unit: "set", MinLevel: decimal.NewFromInt(2), ReorderLevel: decimal.NewFromInt(6)},
		{SKU: "OIL-FLT-02", Name: "Oil filter", Unit: "unit", MinLevel: decimal.NewFromInt(5), ReorderLevel: decimal.NewFromInt(10)},
		{SKU: "ENG-OIL-5W30", Name: "Engine oil 5W-30", Unit: "l", ReorderLevel: decimal.NewFromInt(40)},
	},
}

func newSeedCmd(e *env) *cobra.Command {
	var code, name string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the tenant and a demo catalog. Safe to run repeatedly.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if _, err := e.pool.Exec(ctx, `
				INSERT INTO tenants (id, code, name) VALUES ($1, $2, $3)
				ON CONFLICT (id) DO NOTHING
			`, e.tenantID, code, name); err != nil {
				return fmt.Errorf("failed to create tenant: %w", err)
			}
			if err := seed(ctx, e.svc, e.tenantID, e.log); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %d seeded.\n", e.tenantID)
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "DEMO", "tenant code")
	cmd.Flags().StringVar(&name, "name", "Demo Fleet", "tenant name")
	return cmd
}

// seed creates the demo catalog through the application service, skipping
// anything that already exists.
func seed(ctx context.Context, svc app.ApplicationService, tenantID int, log *zap.Logger) error {
	skipDuplicate := func(what string, err error) error {
		if errors.Is(err, core.ErrDuplicate) {
			log.Info("already present", zap.String("item", what))
			return nil
		}
		return err
	}

	req := seedCatalog.warehouse
	req.TenantID = tenantID
	_, err := svc.CreateWarehouse(ctx, req)
	if err := skipDuplicate("warehouse "+req.Code, err); err != nil {
		return err
	}

	warehouses, err := svc.ListWarehouses(ctx, tenantID)
	if err != nil {
		return err
	}
	var warehouseID int
	for _, w := range warehouses.Warehouses {
		if w.Code == req.Code {
			warehouseID = w.ID
		}
	}
	if warehouseID == 0 {
		return fmt.Errorf("%w: seeded warehouse %s", core.ErrNotFound, req.Code)
	}

	for _, code := range seedCatalog.locations {
		_, err := svc.CreateLocation(ctx, app.CreateLocationRequest{
			TenantID: tenantID, WarehouseID: warehouseID, Code: code, Name: "Shelf " + code,
		})
		if err := skipDuplicate("location "+code, err); err != nil {
			return err
		}
	}
	for _, p := range seedCatalog.parts {
		p.TenantID = tenantID
		_, err := svc.CreatePart(ctx, p)
		if err := skipDuplicate("part "+p.SKU, err); err != nil {
			return err
		}
	}
	return nil
}

func newTokenCmd() *cobra.Command {
	var userID, tenantID int
	var role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:         "token",
		Short:       "Print a signed API token for local testing.",
		Annotations: map[string]string{"offline": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			tok, err := web.IssueToken(cfg.JWTSecret, userID, tenantID, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().IntVar(&userID, "user", 1, "user id claim")
	cmd.Flags().IntVar(&tenantID, "for-tenant", 1, "tenant id claim")
	cmd.Flags().StringVar(&role, "role", "clerk", "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
