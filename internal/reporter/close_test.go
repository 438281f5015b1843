package reporter

import (
	"testing"
	"time"

	"taarcom-commissions/internal/models"
	"taarcom-commissions/internal/parsers"
	"taarcom-commissions/internal/reconciler"
	"taarcom-commissions/pkg/errors"
)

var today = time.Date(2024, 4, 20, 9, 0, 0, 0, time.UTC)

func testConfig() *reconciler.Config {
	config := reconciler.DefaultConfig()
	config.Now = func() time.Time { return today }
	return config
}

var closeColumns = []string{
	models.ColCMSales, models.ColDesignSales, models.ColCMSplit, models.ColReportedCustomer,
	models.ColTName, models.ColCM, models.ColTEndCust, models.ColPartNumber, models.ColPrincipal,
	models.ColPaidOnRevenue, models.ColActualCommPaid, models.ColSalesCommission, models.ColCMSalesComm,
	models.ColDesignSalesComm, models.ColInvoiceDate, models.ColCommMonth, models.ColQuarterShipped,
	models.ColSalesReportDate, models.ColUniqueID,
}

func tableOf(columns []string, rows ...map[string]string) *models.Table {
	t := models.NewTable(columns...)
	for _, r := range rows {
		t.AppendRow(r)
	}
	return t
}

func ledgerOf(files ...string) *models.Table {
	ledger := models.NewFilesProcessed()
	for _, f := range files {
		ledger.AppendRow(map[string]string{models.ColFilename: f, models.ColDateAdded: "2024-04-01", models.ColTotalCommissions: "1.00"})
	}
	return ledger
}

// runningRows is a two-month Running Commissions: a settled design-only JW
// row, an unsettled AB/KL split row and an unattributed row.
func runningRows() *models.Table {
	return tableOf(closeColumns,
		map[string]string{
			models.ColDesignSales: "JW", models.ColReportedCustomer: "Acme", models.ColTEndCust: "ACME INC",
			models.ColPartNumber: "00123", models.ColPrincipal: "ABR", models.ColPaidOnRevenue: "1000.00",
			models.ColActualCommPaid: "100.00", models.ColSalesCommission: "45.00", models.ColCMSalesComm: "0.00",
			models.ColDesignSalesComm: "45.00", models.ColInvoiceDate: "2024-04-15", models.ColQuarterShipped: "2024Q2",
			models.ColUniqueID: "id-1",
		},
		map[string]string{
			models.ColCMSales: "AB", models.ColDesignSales: "KL", models.ColCMSplit: "30",
			models.ColReportedCustomer: "Beta Corp", models.ColTEndCust: "BETA", models.ColPartNumber: "B-1",
			models.ColPrincipal: "MMX", models.ColPaidOnRevenue: "2000.00", models.ColActualCommPaid: "200.00",
			models.ColInvoiceDate: "2024-03-10", models.ColQuarterShipped: "2024Q1", models.ColUniqueID: "id-2",
			models.ColSalesReportDate: "2024-03-31",
		},
		map[string]string{
			models.ColReportedCustomer: "Nobody", models.ColPrincipal: "ABR", models.ColActualCommPaid: "10.00",
			models.ColQuarterShipped: "2024Q2", models.ColUniqueID: "id-3",
		},
	)
}

func masterRows() *models.Table {
	return tableOf(closeColumns,
		map[string]string{
			models.ColDesignSales: "JW", models.ColTEndCust: "GAMMA LLC", models.ColPrincipal: "ABR",
			models.ColPaidOnRevenue: "500.00", models.ColSalesCommission: "20.00", models.ColCommMonth: "2024-3",
			models.ColQuarterShipped: "2023Q1", models.ColUniqueID: "m-1",
		},
		map[string]string{
			models.ColDesignSales: "JW", models.ColTEndCust: "GAMMA LLC", models.ColPrincipal: "ABR",
			models.ColPaidOnRevenue: "70.00", models.ColCommMonth: "2023-12",
			models.ColQuarterShipped: "2021Q1", models.ColUniqueID: "m-2",
		},
	)
}

func closeInput() *CloseInput {
	accounts := tableOf([]string{models.ColAccountName, models.ColPrimarySalesperson},
		map[string]string{models.ColAccountName: "beta", models.ColPrimarySalesperson: "jw"})
	lookup := tableOf(models.LookupMasterColumns, map[string]string{
		models.ColReportedCustomer: "Acme", models.ColPartNumber: "00123", models.ColDesignSales: "JW",
		models.ColTEndCust: "ACME INC", models.ColLastUsed: "2024-01-02",
	})
	return &CloseInput{
		Running:      &parsers.WorkingFile{Path: "Running Commissions 04-20-2024.xlsx", Data: runningRows(), Files: ledgerOf("ABR April.xlsx")},
		Master:       &parsers.WorkingFile{Path: "Commissions Master.xlsx", Data: masterRows(), Files: ledgerOf("ABR March.xlsx")},
		Accounts:     accounts,
		LookupMaster: lookup,
	}
}

func reportNamed(t *testing.T, reports []Report, name string) Report {
	t.Helper()
	for _, r := range reports {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("No report named %q", name)
	return Report{}
}

func tabNamed(t *testing.T, r Report, name string) *models.Table {
	t.Helper()
	for _, tab := range r.Tabs {
		if tab.Name == name {
			return tab.Data
		}
	}
	t.Fatalf("Report %s has no tab %q", r.Name, name)
	return nil
}

func TestCloseStampsAndFoldsIntoMaster(t *testing.T) {
	in := closeInput()
	result, err := NewCloser(testConfig()).Close(in)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if result.CommMonth.String() != "2024-4" {
		t.Errorf("CommMonth = %s, want 2024-4", result.CommMonth)
	}
	for r := 0; r < result.Running.Len(); r++ {
		if got := result.Running.Get(models.ColCommMonth, r); got != "2024-4" {
			t.Errorf("row %d Comm Month = %q, want 2024-4", r, got)
		}
	}

	if result.Master.Len() != 5 {
		t.Errorf("Master rows = %d, want 5", result.Master.Len())
	}
	if got := result.Master.Get(models.ColUniqueID, 2); got != "id-1" {
		t.Errorf("Running rows must follow the history, got %q", got)
	}
	if result.MasterFiles.Len() != 2 || !models.LedgerHas(result.MasterFiles, "ABR April.xlsx") {
		t.Error("Master ledger must take the Running Commissions files")
	}

	if got := result.Running.Get(models.ColSalesReportDate, 0); got != "2024-04-20" {
		t.Errorf("Empty Sales Report Date must be stamped, got %q", got)
	}
	if got := result.Running.Get(models.ColSalesReportDate, 1); got != "2024-03-31" {
		t.Errorf("Existing Sales Report Date must be kept, got %q", got)
	}

	if result.Total.StringFixed(2) != "310.00" {
		t.Errorf("Total = %s, want 310.00", result.Total.StringFixed(2))
	}

	// Inputs are not modified.
	if in.Master.Data.Len() != 2 || in.Running.Data.Get(models.ColCommMonth, 0) != "" {
		t.Error("Close must work on copies")
	}
}

func TestCloseSettlesAttributedRows(t *testing.T) {
	result, err := NewCloser(testConfig()).Close(closeInput())
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if result.Settled != 1 {
		t.Errorf("Settled = %d, want 1", result.Settled)
	}
	want := map[string]string{
		models.ColSalesCommission: "90.00",
		models.ColCMSalesComm:     "27.00",
		models.ColDesignSalesComm: "63.00",
	}
	for col, v := range want {
		if got := result.Running.Get(col, 1); got != v {
			t.Errorf("%s = %q, want %q", col, got, v)
		}
	}
	if got := result.Running.Get(models.ColSalesCommission, 2); got != "" {
		t.Errorf("Unattributed rows stay unsettled, got %q", got)
	}
}

func TestCloseSettleChecksSplit(t *testing.T) {
	in := closeInput()
	running := in.Running.Data
	// As ingested: Sales Commission stamped at zero, split columns empty.
	running.Set(models.ColSalesCommission, 1, "0.00")
	running.AppendRow(map[string]string{
		models.ColCMSales: "AB", models.ColDesignSales: "KL", models.ColCMSplit: "20, 30",
		models.ColTEndCust: "BETA", models.ColPrincipal: "MMX", models.ColActualCommPaid: "50.00",
		models.ColSalesCommission: "0.00", models.ColInvoiceDate: "2024-04-02", models.ColUniqueID: "id-4",
	})

	result, err := NewCloser(testConfig()).Close(in)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if result.Settled != 1 {
		t.Errorf("Settled = %d, want 1", result.Settled)
	}
	if got := result.Running.Get(models.ColSalesCommission, 1); got != "90.00" {
		t.Errorf("Zero-stamped row must be settled, got %q", got)
	}
	if got := result.Running.Get(models.ColCMSalesComm, 3); got != "" {
		t.Errorf("Row with an invalid CM Split must stay unsettled, got %q", got)
	}
	if got := result.Running.Get(models.ColCMSplit, 3); got != "20, 30" {
		t.Errorf("CM Split rewritten to %q", got)
	}
}

func TestCloseReports(t *testing.T) {
	result, err := NewCloser(testConfig()).Close(closeInput())
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// AB, JW and KL each get two workbooks, plus the combined one.
	if len(result.Reports) != 7 {
		t.Fatalf("Reports = %d, want 7", len(result.Reports))
	}

	jw := tabNamed(t, reportNamed(t, result.Reports, "JW Revenue Report 2024-4.xlsx"), models.TabData)
	ids := map[string]bool{}
	for _, id := range jw.Column(models.ColUniqueID) {
		ids[id] = true
	}
	// id-2 is JW's through the Account List.
	for _, id := range []string{"id-1", "id-2", "m-1", "m-2"} {
		if !ids[id] {
			t.Errorf("JW revenue report is missing %s (has %v)", id, ids)
		}
	}

	ab := tabNamed(t, reportNamed(t, result.Reports, "AB Revenue Report 2024-4.xlsx"), models.TabData)
	if ab.Len() != 1 || ab.Get(models.ColUniqueID, 0) != "id-2" {
		t.Errorf("AB revenue report must hold only the non-standard split row, got %d rows", ab.Len())
	}

	kl := tabNamed(t, reportNamed(t, result.Reports, "KL Revenue Report 2024-4.xlsx"), models.TabData)
	if kl.Len() != 0 {
		t.Errorf("KL is not the current design salesperson of any row, got %d rows", kl.Len())
	}

	jwComm := reportNamed(t, result.Reports, "JW Commission Report 2024-4.xlsx")
	raw := tabNamed(t, jwComm, TabRawData)
	if raw.Len() != 1 || raw.Get(models.ColDesignSales, 0) != "JW" {
		t.Errorf("JW commission report must hold the design_sales=JW row, got %d rows", raw.Len())
	}
	principals := tabNamed(t, jwComm, TabPrincipals)
	if principals.Get(models.ColPrincipal, 0) != "ABR" || principals.Get(models.ColSalesCommission, 0) != "45.00" {
		t.Errorf("Unexpected principal totals %v", principals.Record(0))
	}

	combined := tabNamed(t, reportNamed(t, result.Reports, "Combined Revenue Report 2024-4.xlsx"), models.TabData)
	if combined.Len() != 5 {
		t.Errorf("Combined revenue rows = %d, want 5", combined.Len())
	}
}

func TestCloseRejectsClosedFiles(t *testing.T) {
	in := closeInput()
	in.Master.Files = ledgerOf("ABR March.xlsx", "ABR April.xlsx")

	_, err := NewCloser(testConfig()).Close(in)
	if !errors.HasCode(err, errors.CodeAlreadyClosed) {
		t.Fatalf("Expected already-closed error, got %v", err)
	}
	ce, _ := errors.AsCommissionError(err)
	files, _ := ce.Context["files"].([]string)
	if len(files) != 1 || files[0] != "ABR April.xlsx" {
		t.Errorf("Unexpected files context %v", ce.Context["files"])
	}
}

func TestNextCommMonth(t *testing.T) {
	tests := []struct {
		name   string
		months []string
		want   string
	}{
		{"next month", []string{"2024-3", "2023-12"}, "2024-4"},
		{"year rollover", []string{"2024-12", "2024-11"}, "2025-1"},
		{"two-digit months", []string{"2024-09", "2024-10"}, "2024-11"},
		{"unparseable ignored", []string{"March", "2024-2"}, "2024-3"},
		{"empty master", nil, "2024-4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			master := models.NewTable(models.ColCommMonth)
			for _, m := range tt.months {
				master.AppendRecord([]string{m})
			}
			if got := NextCommMonth(master, today).String(); got != tt.want {
				t.Errorf("NextCommMonth() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRoleOf(t *testing.T) {
	tests := []struct {
		cm, design string
		want       Role
	}{
		{"JW", "", RoleCMOnly},
		{"JW", "AB", RoleCMWithDesign},
		{"", "jw", RoleDesignOnly},
		{"AB", "JW", RoleDesignWithCM},
		{"JW", "JW", RoleDual},
		{"AB", "KL", RoleNone},
	}
	for _, tt := range tests {
		table := tableOf(closeColumns, map[string]string{models.ColCMSales: tt.cm, models.ColDesignSales: tt.design})
		if got := RoleOf(table, 0, "JW"); got != tt.want {
			t.Errorf("RoleOf(cm=%q, design=%q) = %v, want %v", tt.cm, tt.design, got, tt.want)
		}
	}
}

func TestCommissionData(t *testing.T) {
	running := tableOf(closeColumns,
		map[string]string{models.ColDesignSales: "JW", models.ColSalesCommission: "100.00", models.ColUniqueID: "dual", models.ColCMSales: "JW"},
		map[string]string{models.ColDesignSales: "JW", models.ColSalesCommission: "100.00", models.ColUniqueID: "design-cm", models.ColCMSales: "AB", models.ColCMSplit: "25"},
		map[string]string{models.ColCMSales: "JW", models.ColSalesCommission: "100.00", models.ColUniqueID: "cm-design", models.ColDesignSales: "AB"},
		map[string]string{models.ColDesignSales: "JW", models.ColSalesCommission: "100.00", models.ColUniqueID: "design"},
		map[string]string{models.ColCMSales: "JW", models.ColSalesCommission: "100.00", models.ColUniqueID: "cm"},
		map[string]string{models.ColCMSales: "AB", models.ColSalesCommission: "100.00", models.ColUniqueID: "other"},
	)

	out := NewCloser(testConfig()).CommissionData(running, "JW")

	want := []struct{ id, sales string }{
		{"cm", "100.00"},
		{"cm-design", "20.00"},
		{"design", "100.00"},
		{"design-cm", "75.00"},
		{"dual", "100.00"},
	}
	if out.Len() != len(want) {
		t.Fatalf("rows = %d, want %d", out.Len(), len(want))
	}
	for r, w := range want {
		if out.Get(models.ColUniqueID, r) != w.id || out.Get(models.ColSalesCommission, r) != w.sales {
			t.Errorf("row %d = %s/%s, want %s/%s", r,
				out.Get(models.ColUniqueID, r), out.Get(models.ColSalesCommission, r), w.id, w.sales)
		}
	}
	if running.Get(models.ColSalesCommission, 1) != "100.00" {
		t.Error("CommissionData must not modify Running Commissions")
	}
}

func TestPrincipalTotals(t *testing.T) {
	comm := tableOf(closeColumns,
		map[string]string{models.ColPrincipal: "ABR", models.ColSalesCommission: "10.00"},
		map[string]string{models.ColPrincipal: "MMX", models.ColSalesCommission: "30.00"},
		map[string]string{models.ColPrincipal: "ABR", models.ColSalesCommission: "15.00"},
		map[string]string{models.ColPrincipal: "EVL", models.ColSalesCommission: "25.00"},
	)
	out := PrincipalTotals(comm)

	want := [][]string{{"MMX", "30.00"}, {"ABR", "25.00"}, {"EVL", "25.00"}}
	for r, w := range want {
		if out.Get(models.ColPrincipal, r) != w[0] || out.Get(models.ColSalesCommission, r) != w[1] {
			t.Errorf("row %d = %v, want %v", r, out.Record(r), w)
		}
	}
}

func TestRevenueDataKeepsLatestQuarters(t *testing.T) {
	history := tableOf(closeColumns,
		map[string]string{models.ColQuarterShipped: "2023Q1", models.ColUniqueID: "a"},
		map[string]string{models.ColQuarterShipped: "2023Q4", models.ColUniqueID: "b"},
		map[string]string{models.ColQuarterShipped: "2024Q1", models.ColUniqueID: "c"},
		map[string]string{models.ColQuarterShipped: "", models.ColUniqueID: "d"},
		map[string]string{models.ColQuarterShipped: "2023Q4", models.ColUniqueID: "e"},
	)
	current := tableOf(closeColumns, map[string]string{models.ColQuarterShipped: "2024Q2", models.ColUniqueID: "now"})

	out := RevenueData(history, current, 2)

	want := []string{"b", "c", "e", "now"}
	if out.Len() != len(want) {
		t.Fatalf("rows = %d, want %d", out.Len(), len(want))
	}
	for r, id := range want {
		if got := out.Get(models.ColUniqueID, r); got != id {
			t.Errorf("row %d = %s, want %s", r, got, id)
		}
	}
}

func TestStampCDS(t *testing.T) {
	accounts := tableOf([]string{models.ColAccountName, models.ColPrimarySalesperson},
		map[string]string{models.ColAccountName: "ACME INC", models.ColPrimarySalesperson: "KL"},
		map[string]string{models.ColAccountName: "Twice", models.ColPrimarySalesperson: "AB"},
		map[string]string{models.ColAccountName: "twice", models.ColPrimarySalesperson: "KL"},
	)
	data := tableOf(closeColumns,
		map[string]string{models.ColTEndCust: "Acme Inc", models.ColDesignSales: "JW"},
		map[string]string{models.ColTEndCust: "TWICE", models.ColDesignSales: "JW"},
		map[string]string{models.ColTEndCust: "Elsewhere", models.ColDesignSales: " jw "},
	)

	StampCDS(data, accounts)

	for r, want := range []string{"KL", "JW", "JW"} {
		if got := data.Get(models.ColCurrentDesignSales, r); got != want {
			t.Errorf("row %d CDS = %q, want %q", r, got, want)
		}
	}
}

func TestLearnAttributions(t *testing.T) {
	lookup := tableOf(models.LookupMasterColumns, map[string]string{
		models.ColReportedCustomer: "Acme", models.ColPartNumber: "00123", models.ColDesignSales: "JW",
		models.ColTEndCust: "ACME INC", models.ColDateAdded: "2020-01-01",
	})
	running := tableOf(closeColumns,
		map[string]string{models.ColReportedCustomer: "ACME", models.ColPartNumber: "00123", models.ColDesignSales: "jw", models.ColTEndCust: "acme inc"},
		map[string]string{models.ColReportedCustomer: "Beta Corp", models.ColPartNumber: "B-1", models.ColDesignSales: "KL", models.ColTEndCust: "BETA", models.ColCMSplit: "20"},
		map[string]string{models.ColReportedCustomer: "Beta Corp", models.ColPartNumber: "B-1", models.ColDesignSales: "KL", models.ColTEndCust: "BETA"},
		map[string]string{models.ColReportedCustomer: "Walk-in", models.ColPartNumber: "W-1", models.ColDesignSales: "JW", models.ColTEndCust: "Individual"},
		map[string]string{models.ColReportedCustomer: "Pending", models.ColPartNumber: "P-1"},
	)

	added := LearnAttributions(lookup, running, today)

	if added != 1 || lookup.Len() != 2 {
		t.Fatalf("added = %d, lookup rows = %d; want 1 and 2", added, lookup.Len())
	}
	checks := map[string]string{
		models.ColReportedCustomer: "Beta Corp",
		models.ColTEndCust:         "BETA",
		models.ColCMSplit:          "20",
		models.ColDateAdded:        "2024-04-20",
		models.ColLastUsed:         "2024-04-20",
	}
	for col, want := range checks {
		if got := lookup.Get(col, 1); got != want {
			t.Errorf("%s = %q, want %q", col, got, want)
		}
	}
}

func TestReportsFromMaster(t *testing.T) {
	closer := NewCloser(testConfig())
	result, err := closer.Close(closeInput())
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reports, month, err := closer.Reports(result.Master, closeInput().Accounts)
	if err != nil {
		t.Fatalf("Reports failed: %v", err)
	}
	if month.String() != "2024-4" {
		t.Errorf("month = %s, want 2024-4", month)
	}
	if len(reports) != len(result.Reports) {
		t.Fatalf("Rebuilt %d reports, close built %d", len(reports), len(result.Reports))
	}
	raw := tabNamed(t, reportNamed(t, reports, "JW Commission Report 2024-4.xlsx"), TabRawData)
	if raw.Len() != 1 || raw.Get(models.ColUniqueID, 0) != "id-1" {
		t.Errorf("Rebuilt JW commission report must hold only the latest month, got %d rows", raw.Len())
	}

	if _, _, err := closer.Reports(models.NewTable(closeColumns...), nil); !errors.HasCode(err, errors.CodeMissingField) {
		t.Errorf("An empty Master cannot produce reports, got %v", err)
	}
}
