package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
)

// render writes v as indented JSON or, in table mode, through table.
func (e *env) render(w io.Writer, v any, table func(tw *tabwriter.Writer)) error {
	if e.output == "json" || table == nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

// row writes one tab separated table row.
func row(tw *tabwriter.Writer, cols ...any) {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprint(c)
	}
	fmt.Fprintln(tw, strings.Join(parts, "\t"))
}

// decimalValue lets a decimal be bound as a command flag.
type decimalValue struct {
	d *decimal.Decimal
}

func newDecimalValue(d *decimal.Decimal) *decimalValue { return &decimalValue{d: d} }

func (v *decimalValue) String() string {
	if v.d == nil {
		return "0"
	}
	return v.d.String()
}

func (v *decimalValue) Set(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("not a decimal: %q", s)
	}
	*v.d = d
	return nil
}

func (v *decimalValue) Type() string { return "decimal" }

// optionalInt turns a zero flag value into nil.
func optionalInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

// parseLineSpec parses PART_ID:QTY, the --line format of request create.
func parseLineSpec(spec string) (int, decimal.Decimal, error) {
	partRaw, qtyRaw, ok := strings.Cut(spec, ":")
	if !ok {
		return 0, decimal.Zero, fmt.Errorf("line %q: want PART_ID:QTY", spec)
	}
	partID, err := strconv.Atoi(strings.TrimSpace(partRaw))
	if err != nil || partID <= 0 {
		return 0, decimal.Zero, fmt.Errorf("line %q: part id must be a positive integer", spec)
	}
	qty, err := decimal.NewFromString(strings.TrimSpace(qtyRaw))
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("line %q: quantity is not a decimal", spec)
	}
	return partID, qty, nil
}

