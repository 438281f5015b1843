package principals

import (
	"fmt"
	"strings"

	"taarcom-commissions/internal/models"
	"taarcom-commissions/pkg/logger"
)

// costBasedDistributors are paid on cost rather than resale.
var costBasedDistributors = []string{"digikey", "mouser"}

// Context carries lookups that some ops read.
type Context struct {
	InvoiceLog *models.Table
	Logger     logger.Logger
}

type opFunc func(t *models.Table, op Op, ctx *Context) error

var registry = map[string]opFunc{
	"set":                   opSet,
	"default":               opDefault,
	"revenue_basis":         opRevenueBasis,
	"ffill":                 opForwardFill,
	"part_from_invoice_log": opPartFromInvoiceLog,
	"derive_rate":           opDeriveRate,
	"comm_source":           opCommSource,
}

func validateOp(op Op) error {
	if _, ok := registry[op.Op]; !ok {
		return fmt.Errorf("unknown op %q", op.Op)
	}
	switch op.Op {
	case "set", "default", "ffill":
		if op.Column == "" {
			return fmt.Errorf("op %q needs a column", op.Op)
		}
	case "revenue_basis":
		if op.From == "" {
			return fmt.Errorf("op %q needs a source column", op.Op)
		}
	}
	return nil
}

// PostMap runs the sheet's ops. It runs after alias mapping and before
// numeric coercion.
func (p Plan) PostMap(t *models.Table, ctx *Context) error {
	return run(t, p.Ops, ctx)
}

// Finish runs the finalize ops common to every principal. It runs after
// numeric coercion.
func (p Plan) Finish(t *models.Table, ctx *Context) error {
	return run(t, p.Finalize, ctx)
}

func run(t *models.Table, ops []Op, ctx *Context) error {
	if ctx == nil {
		ctx = &Context{}
	}
	if ctx.Logger == nil {
		ctx.Logger = logger.GetGlobalLogger().WithComponent("principals")
	}
	for _, op := range ops {
		fn, ok := registry[op.Op]
		if !ok {
			return fmt.Errorf("unknown op %q", op.Op)
		}
		if err := fn(t, op, ctx); err != nil {
			return fmt.Errorf("op %s: %w", op.Op, err)
		}
	}
	return nil
}

func opSet(t *models.Table, op Op, _ *Context) error {
	t.AddColumn(op.Column)
	values := t.Column(op.Column)
	for i := range values {
		values[i] = op.Value
	}
	return nil
}

func opDefault(t *models.Table, op Op, _ *Context) error {
	t.AddColumn(op.Column)
	values := t.Column(op.Column)
	for i, v := range values {
		if strings.TrimSpace(v) == "" {
			values[i] = op.Value
		}
	}
	return nil
}

// opRevenueBasis fills Paid-On Revenue from the chosen basis column.
func opRevenueBasis(t *models.Table, op Op, _ *Context) error {
	t.AddColumn(models.ColPaidOnRevenue)
	paid := t.Column(models.ColPaidOnRevenue)
	source := t.Column(op.From)
	if source == nil {
		return nil
	}
	for i, v := range paid {
		if strings.TrimSpace(v) == "" {
			paid[i] = source[i]
		}
	}
	return nil
}

// opForwardFill copies the last non-empty value down into empty cells, which
// is how merged cells arrive from vendor workbooks.
func opForwardFill(t *models.Table, op Op, _ *Context) error {
	values := t.Column(op.Column)
	last := ""
	for i, v := range values {
		if strings.TrimSpace(v) == "" {
			values[i] = last
			continue
		}
		last = v
	}
	return nil
}

// opPartFromInvoiceLog fills a missing part number from the invoice log when
// the invoice number maps to exactly one part.
func opPartFromInvoiceLog(t *models.Table, _ Op, ctx *Context) error {
	if ctx.InvoiceLog == nil || ctx.InvoiceLog.Len() == 0 {
		ctx.Logger.Warn("Invoice log unavailable, part numbers left as reported")
		return nil
	}

	parts := make(map[string]map[string]bool)
	for r := 0; r < ctx.InvoiceLog.Len(); r++ {
		inv := models.FoldKey(models.NormalizeIdentifier(ctx.InvoiceLog.Get(models.ColInvoiceNumber, r)))
		part := models.NormalizeIdentifier(ctx.InvoiceLog.Get(models.ColPartNumber, r))
		if inv == "" || part == "" {
			continue
		}
		if parts[inv] == nil {
			parts[inv] = make(map[string]bool)
		}
		parts[inv][part] = true
	}

	t.AddColumn(models.ColPartNumber)
	filled := 0
	for r := 0; r < t.Len(); r++ {
		if strings.TrimSpace(t.Get(models.ColPartNumber, r)) != "" {
			continue
		}
		inv := models.FoldKey(models.NormalizeIdentifier(t.Get(models.ColInvoiceNumber, r)))
		if len(parts[inv]) != 1 {
			continue
		}
		for part := range parts[inv] {
			t.Set(models.ColPartNumber, r, part)
		}
		filled++
	}
	ctx.Logger.WithField("filled", filled).Debug("Part numbers inferred from invoice log")
	return nil
}

// opDeriveRate computes Commission Rate as Actual Comm Paid over Paid-On
// Revenue where the vendor left it empty.
func opDeriveRate(t *models.Table, _ Op, _ *Context) error {
	if !t.HasColumn(models.ColActualCommPaid) || !t.HasColumn(models.ColPaidOnRevenue) {
		return nil
	}
	t.AddColumn(models.ColCommissionRate)
	for r := 0; r < t.Len(); r++ {
		if strings.TrimSpace(t.Get(models.ColCommissionRate, r)) != "" {
			continue
		}
		paidOn := models.DecimalOrZero(t.Get(models.ColPaidOnRevenue, r))
		if paidOn.IsZero() {
			continue
		}
		actual := models.DecimalOrZero(t.Get(models.ColActualCommPaid, r))
		t.Set(models.ColCommissionRate, r, models.FormatRate(actual.DivRound(paidOn, 4)))
	}
	return nil
}

// opCommSource stamps whether commission was paid on cost or resale.
func opCommSource(t *models.Table, _ Op, _ *Context) error {
	t.AddColumn(models.ColCommSource)
	for r := 0; r < t.Len(); r++ {
		if strings.TrimSpace(t.Get(models.ColCommSource, r)) != "" {
			continue
		}
		t.Set(models.ColCommSource, r, CommSource(t.Get(models.ColReportedDistributor, r)))
	}
	return nil
}

// CommSource classifies a distributor as cost or resale based.
func CommSource(distributor string) string {
	key := models.AlnumLower(distributor)
	for _, d := range costBasedDistributors {
		if strings.Contains(key, d) {
			return models.CommSourceCost
		}
	}
	return models.CommSourceResale
}
