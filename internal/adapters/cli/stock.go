package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"parts-warehouse/internal/app"
	"parts-warehouse/internal/core"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newReceiveCmd(e *env) *cobra.Command {
	var (
		req        app.ReceiveStockRequest
		receivedAt string
		expiresAt  string
	)
	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Book a goods receipt into a location as a new lot.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Actor = e.actor()
			if receivedAt != "" {
				t, err := time.Parse(time.RFC3339, receivedAt)
				if err != nil {
					return fmt.Errorf("--received-at: %w", err)
				}
				req.ReceivedAt = &t
			}
			if expiresAt != "" {
				t, err := time.Parse(time.DateOnly, expiresAt)
				if err != nil {
					return fmt.Errorf("--expires: %w", err)
				}
				req.ExpiresAt = &t
			}
			if req.Reference == "" {
				req.Reference = "CLI-" + strings.ToUpper(uuid.NewString()[:8])
			}
			res, err := e.svc.ReceiveStock(cmd.Context(), req)
			if err != nil {
				return err
			}
			return e.render(cmd.OutOrStdout(), res.Balance, balanceTable(res.Balance))
		},
	}
	f := cmd.Flags()
	f.IntVar(&req.PartID, "part", 0, "part id")
	f.IntVar(&req.WarehouseID, "warehouse", 0, "warehouse id")
	f.IntVar(&req.LocationID, "location", 0, "location id")
	f.Var(newDecimalValue(&req.Quantity), "qty", "quantity received")
	f.Var(newDecimalValue(&req.UnitCost), "cost", "unit cost")
	f.StringVar(&req.Currency, "currency", "EUR", "ISO 4217 currency")
	f.StringVar(&req.Supplier, "supplier", "", "supplier name")
	f.StringVar(&req.Reference, "ref", "", "receipt reference (generated when empty)")
	f.StringVar(&receivedAt, "received-at", "", "receipt time, RFC 3339 (default now)")
	f.StringVar(&expiresAt, "expires", "", "lot expiry date, YYYY-MM-DD")
	for _, name := range []string{"part", "warehouse", "location", "qty", "cost"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newTransferCmd(e *env) *cobra.Command {
	var req app.TransferStockRequest
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Move units of a balance to another location, keeping the lot.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Actor = e.actor()
			res, err := e.svc.TransferStock(cmd.Context(), req)
			if err != nil {
				return err
			}
			return e.render(cmd.OutOrStdout(), res, func(tw *tabwriter.Writer) {
				row(tw, "BALANCE", "LOCATION", "LOT", "ON HAND", "RESERVED")
				row(tw, res.From.ID, res.From.LocationID, res.From.LotID, res.From.OnHand, res.From.Reserved)
				row(tw, res.To.ID, res.To.LocationID, res.To.LotID, res.To.OnHand, res.To.Reserved)
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&req.BalanceID, "balance", 0, "source balance id")
	f.IntVar(&req.DestinationLocationID, "to", 0, "destination location id")
	f.Var(newDecimalValue(&req.Quantity), "qty", "quantity to move")
	for _, name := range []string{"balance", "to", "qty"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newAdjustCmd(e *env) *cobra.Command {
	var req app.AdjustStockRequest
	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Correct a balance after a physical count. --delta is signed.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Actor = e.actor()
			res, err := e.svc.AdjustStock(cmd.Context(), req)
			if err != nil {
				return err
			}
			return e.render(cmd.OutOrStdout(), res.Balance, balanceTable(res.Balance))
		},
	}
	f := cmd.Flags()
	f.IntVar(&req.BalanceID, "balance", 0, "balance id")
	f.Var(newDecimalValue(&req.Delta), "delta", "signed quantity change")
	f.StringVar(&req.Reason, "reason", "", "count reference or reason")
	for _, name := range []string{"balance", "delta", "reason"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newReturnCmd(e *env) *cobra.Command {
	var req app.ReturnStockRequest
	cmd := &cobra.Command{
		Use:   "return",
		Short: "Put issued units back on the shelf in their original lot.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Actor = e.actor()
			res, err := e.svc.ReturnStock(cmd.Context(), req)
			if err != nil {
				return err
			}
			return e.render(cmd.OutOrStdout(), res.Balance, balanceTable(res.Balance))
		},
	}
	f := cmd.Flags()
	f.IntVar(&req.IssueLineID, "issue-line", 0, "issue line id")
	f.IntVar(&req.LocationID, "location", 0, "return location id (default: where it was issued from)")
	f.Var(newDecimalValue(&req.Quantity), "qty", "quantity returned")
	f.StringVar(&req.Reference, "ref", "", "return reference")
	for _, name := range []string{"issue-line", "qty"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newStockCmd(e *env) *cobra.Command {
	var (
		partID, warehouseID, locationID int
		available, low                  bool
	)
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Show per-lot stock levels, or parts below their reorder level with --low.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if low {
				res, err := e.svc.ListLowStock(ctx, e.tenantID)
				if err != nil {
					return err
				}
				return e.render(cmd.OutOrStdout(), res.Parts, func(tw *tabwriter.Writer) {
					row(tw, "PART", "SKU", "NAME", "AVAILABLE", "MIN", "REORDER")
					for _, p := range res.Parts {
						row(tw, p.PartID, p.SKU, p.Name, p.Available, p.MinLevel, p.ReorderLevel)
					}
				})
			}

			res, err := e.svc.GetStockLevels(ctx, e.tenantID, core.BalanceFilter{
				PartID:        optionalInt(partID),
				WarehouseID:   optionalInt(warehouseID),
				LocationID:    optionalInt(locationID),
				OnlyAvailable: available,
			})
			if err != nil {
				return err
			}
			return e.render(cmd.OutOrStdout(), res.Levels, func(tw *tabwriter.Writer) {
				row(tw, "BALANCE", "SKU", "WAREHOUSE", "LOCATION", "LOT", "RECEIVED", "ON HAND", "RESERVED", "AVAILABLE")
				for _, l := range res.Levels {
					row(tw, l.BalanceID, l.SKU, l.WarehouseCode, l.LocationCode, l.LotID,
						l.ReceivedAt.Format(time.DateOnly), l.OnHand, l.Reserved, l.Available)
				}
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&partID, "part", 0, "filter by part id")
	f.IntVar(&warehouseID, "warehouse", 0, "filter by warehouse id")
	f.IntVar(&locationID, "location", 0, "filter by location id")
	f.BoolVar(&available, "available", false, "only balances with available stock")
	f.BoolVar(&low, "low", false, "list parts below their reorder level instead")
	return cmd
}

func newMovementsCmd(e *env) *cobra.Command {
	var (
		filter                    core.MovementFilter
		partID, lotID, locationID int
		movementType              string
	)
	cmd := &cobra.Command{
		Use:   "movements",
		Short: "List ledger movements, newest first.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter.PartID = optionalInt(partID)
			filter.LotID = optionalInt(lotID)
			filter.LocationID = optionalInt(locationID)
			if movementType != "" {
				t := core.MovementType(strings.ToUpper(movementType))
				filter.Type = &t
			}
			res, err := e.svc.ListMovements(cmd.Context(), e.tenantID, filter)
			if err != nil {
				return err
			}
			return e.render(cmd.OutOrStdout(), res.Movements, func(tw *tabwriter.Writer) {
				row(tw, "ID", "TYPE", "PART", "LOT", "FROM", "TO", "QTY", "REFERENCE", "AT")
				for _, m := range res.Movements {
					row(tw, m.ID, m.Type, m.PartID, m.LotID, locationCol(m.FromLocationID), locationCol(m.ToLocationID),
						m.Quantity, m.Reference, m.CreatedAt.Format(time.RFC3339))
				}
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&partID, "part", 0, "filter by part id")
	f.IntVar(&lotID, "lot", 0, "filter by lot id")
	f.IntVar(&locationID, "location", 0, "filter by source or destination location id")
	f.StringVar(&movementType, "type", "", "RECEIPT, TRANSFER, ISSUE, RETURN or ADJUSTMENT")
	f.IntVar(&filter.Limit, "limit", 0, "maximum rows (default page size when 0)")
	return cmd
}

func newReconcileCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile PART_ID",
		Short: "Rebuild a part's balances from the ledger and report differences.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partID, err := parseID(args[0])
			if err != nil {
				return err
			}
			res, err := e.svc.ReconcilePart(cmd.Context(), e.tenantID, partID)
			if err != nil {
				return err
			}
			if err := e.render(cmd.OutOrStdout(), res, func(tw *tabwriter.Writer) {
				if res.Balanced {
					row(tw, fmt.Sprintf("Part %d: balances match the ledger.", res.PartID))
					return
				}
				row(tw, "LOCATION", "LOT", "BALANCE", "LEDGER")
				for _, d := range res.Discrepancies {
					row(tw, d.LocationID, d.LotID, d.BalanceQty, d.LedgerQty)
				}
			}); err != nil {
				return err
			}
			if !res.Balanced {
				return fmt.Errorf("part %d: %d balance(s) disagree with the ledger", res.PartID, len(res.Discrepancies))
			}
			return nil
		},
	}
}

func balanceTable(b *core.StockBalance) func(tw *tabwriter.Writer) {
	return func(tw *tabwriter.Writer) {
		row(tw, "BALANCE", "PART", "LOCATION", "LOT", "ON HAND", "RESERVED", "AVAILABLE")
		row(tw, b.ID, b.PartID, b.LocationID, b.LotID, b.OnHand, b.Reserved, b.Available())
	}
}

func locationCol(id *int) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprint(*id)
}
