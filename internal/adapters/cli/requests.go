package cli

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"parts-warehouse/internal/app"
	"parts-warehouse/internal/core"

	"github.com/spf13/cobra"
)

func parseID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q is not a valid id", core.ErrInvalidInput, raw)
	}
	return id, nil
}

func newRequestCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Create, inspect and move part requests through their lifecycle.",
	}
	cmd.AddCommand(
		newRequestCreateCmd(e),
		newRequestShowCmd(e),
		newRequestListCmd(e),
		newLifecycleCmd(e, "submit", "Submit a DRAFT request for approval.", e.svcOp(app.ApplicationService.SubmitRequest)),
		newLifecycleCmd(e, "approve", "Approve a SUBMITTED request.", e.svcOp(app.ApplicationService.ApproveRequest)),
		newLifecycleCmd(e, "cancel", "Cancel a request and release its reservations.", e.svcOp(app.ApplicationService.CancelRequest)),
		newLifecycleCmd(e, "close", "Close a fully issued request.", e.svcOp(app.ApplicationService.CloseRequest)),
	)
	return cmd
}

type requestOp func(ctx context.Context, actor app.Actor, ref string) (*app.RequestResult, error)

// svcOp binds a lifecycle method expression to the env's service, resolved
// at run time after connect.
func (e *env) svcOp(m func(app.ApplicationService, context.Context, app.Actor, string) (*app.RequestResult, error)) requestOp {
	return func(ctx context.Context, actor app.Actor, ref string) (*app.RequestResult, error) {
		return m(e.svc, ctx, actor, ref)
	}
}

func newLifecycleCmd(e *env, use, short string, op requestOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " REF",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := op(cmd.Context(), e.actor(), args[0])
			if err != nil {
				return err
			}
			return e.renderRequest(cmd, res)
		},
	}
}

func newRequestCreateCmd(e *env) *cobra.Command {
	var (
		lines      []string
		driverID   int
		vehicleRef string
		notes      string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Draft a new part request owned by --actor.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := app.CreatePartRequestRequest{
				Actor:      e.actor(),
				DriverID:   optionalInt(driverID),
				VehicleRef: vehicleRef,
				Notes:      notes,
			}
			for _, spec := range lines {
				partID, qty, err := parseLineSpec(spec)
				if err != nil {
					return err
				}
				req.Lines = append(req.Lines, app.RequestLineInput{PartID: partID, Quantity: qty})
			}
			res, err := e.svc.CreateRequest(cmd.Context(), req)
			if err != nil {
				return err
			}
			return e.renderRequest(cmd, res)
		},
	}
	cmd.Example = "  warehousectl request create --line 12:2 --line 40:1.5 --vehicle TRK-07 --driver 31"

	f := cmd.Flags()
	f.StringArrayVar(&lines, "line", nil, "PART_ID:QTY, repeatable")
	f.IntVar(&driverID, "driver", 0, "driver who will collect the parts")
	f.StringVar(&vehicleRef, "vehicle", "", "vehicle reference")
	f.StringVar(&notes, "notes", "", "free text notes")
	_ = cmd.MarkFlagRequired("line")
	return cmd
}

func newRequestShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show REF",
		Short: "Show a request by id or PR number.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := e.svc.GetRequest(cmd.Context(), e.tenantID, args[0])
			if err != nil {
				return err
			}
			return e.renderRequest(cmd, res)
		},
	}
}

func newRequestListCmd(e *env) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests, newest first.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := e.svc.ListRequests(cmd.Context(), e.tenantID, status)
			if err != nil {
				return err
			}
			return e.render(cmd.OutOrStdout(), res.Requests, func(tw *tabwriter.Writer) {
				row(tw, "ID", "NUMBER", "STATUS", "REQUESTER", "VEHICLE", "LINES", "CREATED")
				for _, r := range res.Requests {
					row(tw, r.ID, r.RequestNumber, r.Status, r.RequesterID, r.VehicleRef, len(r.Lines),
						r.CreatedAt.Format(time.DateTime))
				}
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func newReserveCmd(e *env) *cobra.Command {
	var (
		warehouseID int
		partial     bool
	)
	cmd := &cobra.Command{
		Use:   "reserve REF",
		Short: "Reserve stock FIFO for an approved request.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := e.svc.ReserveRequest(cmd.Context(), app.ReserveRequest{
				Actor:        e.actor(),
				RequestRef:   args[0],
				WarehouseID:  optionalInt(warehouseID),
				AllowPartial: partial,
			})
			if err != nil {
				return err
			}
			return e.renderRequest(cmd, res)
		},
	}
	cmd.Flags().IntVar(&warehouseID, "warehouse", 0, "only reserve from this warehouse")
	cmd.Flags().BoolVar(&partial, "partial", false, "accept a partial reservation")
	return cmd
}

func newReleaseCmd(e *env) *cobra.Command {
	return newLifecycleCmd(e, "release", "Drop every reservation of a request.", e.svcOp(app.ApplicationService.ReleaseReservations))
}

func newIssueCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "issue REF",
		Short: "Issue reserved stock and print the goods issue document.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := e.svc.IssueRequest(cmd.Context(), e.actor(), args[0])
			if err != nil {
				return err
			}
			return e.renderDocument(cmd, res.Document)
		},
	}
}

func newConfirmCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm DOCUMENT_ID",
		Short: "Acknowledge receipt of an issue document as its recipient.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			res, err := e.svc.ConfirmIssue(cmd.Context(), e.actor(), id)
			if err != nil {
				return err
			}
			return e.renderDocument(cmd, res.Document)
		},
	}
}

func (e *env) renderRequest(cmd *cobra.Command, res *app.RequestResult) error {
	r := res.Request
	return e.render(cmd.OutOrStdout(), res, func(tw *tabwriter.Writer) {
		row(tw, fmt.Sprintf("%s (id %d)", r.RequestNumber, r.ID), r.Status)
		row(tw, "LINE", "SKU", "PART", "REQUESTED", "RESERVED", "ISSUED")
		for _, l := range r.Lines {
			row(tw, l.LineNumber, l.SKU, l.PartName, l.QuantityRequested, l.QuantityReserved, l.QuantityIssued)
		}
		if len(res.Reservations) > 0 {
			row(tw)
			row(tw, "RESERVATION", "LINE ID", "BALANCE", "QTY")
			for _, rv := range res.Reservations {
				row(tw, rv.ID, rv.RequestLineID, rv.BalanceID, rv.Quantity)
			}
		}
	})
}

func (e *env) renderDocument(cmd *cobra.Command, doc *core.IssueDocument) error {
	return e.render(cmd.OutOrStdout(), doc, func(tw *tabwriter.Writer) {
		row(tw, doc.DocumentNumber, doc.Status, fmt.Sprintf("recipient %d", doc.RecipientID))
		row(tw, "PART", "LOT", "LOCATION", "QTY", "UNIT COST")
		for _, l := range doc.Lines {
			row(tw, l.PartID, l.LotID, l.LocationID, l.Quantity, l.UnitCost)
		}
	})
}
