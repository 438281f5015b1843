package reconciler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"taarcom-commissions/internal/ingest"
	"taarcom-commissions/internal/models"
	"taarcom-commissions/internal/parsers"
	"taarcom-commissions/internal/workbook"
	"taarcom-commissions/pkg/errors"
)

type testTree struct {
	dirs   Dirs
	config *Config
}

func newTestTree(t *testing.T) *testTree {
	t.Helper()
	root := t.TempDir()
	dirs := Dirs{
		Lookups: filepath.Join(root, "lookups"),
		Working: filepath.Join(root, "working"),
		Reports: filepath.Join(root, "reports"),
	}
	for _, d := range []string{dirs.Lookups, dirs.Working, dirs.Reports} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("Failed to create %s: %v", d, err)
		}
	}

	lm := models.NewTable(models.LookupMasterColumns...)
	for _, e := range [][]string{
		{"Acme", "00123", "AB", "JW", "20", "ACME INC"},
		{"Beta Corp", "B-1", "", "KL", "", "BETA"},
		{"Gamma", "G-1", "", "JW", "", "GAMMA LLC"},
	} {
		lm.AppendRow(map[string]string{
			models.ColReportedCustomer: e[0], models.ColPartNumber: e[1], models.ColCMSales: e[2],
			models.ColDesignSales: e[3], models.ColCMSplit: e[4], models.ColTEndCust: e[5],
			models.ColTName: e[5], models.ColLastUsed: "2024-01-02",
		})
	}
	dist := models.NewTable(models.ColSearchAbbreviation, models.ColCorrectedDist)
	dist.AppendRecord([]string{"Arrow", "Arrow Electronics"})

	w := workbook.NewWriter()
	writeLookup(t, w, dirs.Lookups, parsers.LookupMasterSpec, lm)
	writeLookup(t, w, dirs.Lookups, parsers.DistributorMapSpec, dist)

	n := 0
	config := DefaultConfig()
	config.Now = func() time.Time { return today }
	config.NewID = func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
	return &testTree{dirs: dirs, config: config}
}

func writeLookup(t *testing.T, w *workbook.Writer, dir string, spec parsers.LookupSpec, table *models.Table) {
	t.Helper()
	if err := w.Write(spec.Path(dir), workbook.Tab{Name: spec.Tab, Data: table}); err != nil {
		t.Fatalf("Failed to write %s: %v", spec.Name, err)
	}
}

// writeABR writes an Abracon statement; each row is customer, part and
// commission.
func writeABR(t *testing.T, dir, name string, rows ...[]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f := excelize.NewFile()
	defer f.Close()

	sheet := "April MoComm"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		t.Fatalf("Failed to rename sheet: %v", err)
	}
	grid := [][]string{{"Customer", "Part No", "Distributor", "Sales", "Commission", "Invoice Date"}}
	for _, r := range rows {
		grid = append(grid, []string{r[0], r[1], "ARROW ELECTRONICS", "1000.00", r[2], "04/15/2024"})
	}
	for i, row := range grid {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			t.Fatalf("Failed to write row: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("Failed to save report: %v", err)
	}
	return path
}

func (tt *testTree) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(tt.config, tt.dirs)
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	return o
}

func (tt *testTree) runningPath() string {
	return filepath.Join(tt.dirs.Working, "Running Commissions 04-20-2024.xlsx")
}

func readWorking(t *testing.T, path string) *parsers.WorkingFile {
	t.Helper()
	wf, err := parsers.NewBaseParser(nil).LoadWorkingFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return wf
}

func readFix(t *testing.T, path string) *models.Table {
	t.Helper()
	fix, err := parsers.NewBaseParser(nil).LoadFixWorkbook(path, nil)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return fix
}

func readBytes(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return b
}

func TestIngestCleanAttribution(t *testing.T) {
	tree := newTestTree(t)
	report := writeABR(t, t.TempDir(), "ABR April 2024.xlsx",
		[]string{"Acme", "00123", "50.00"},
		[]string{"Beta Corp", "B-1", "100.00"},
		[]string{"Gamma", "G-1", "25.00"},
	)

	summary, err := tree.orchestrator(t).Ingest(context.Background(), &IngestRequest{
		Inputs: []ingest.Input{{Path: report}},
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if summary.RowsAdded != 3 || summary.FixAdded != 0 {
		t.Errorf("Unexpected summary %+v", summary)
	}

	running := readWorking(t, tree.runningPath())
	if running.Data.Len() != 3 {
		t.Fatalf("Expected 3 rows, got %d", running.Data.Len())
	}
	for r := 0; r < 3; r++ {
		if running.Data.Get(models.ColSalesCommission, r) != "0.00" {
			t.Errorf("row %d sales commission = %q, want zero", r, running.Data.Get(models.ColSalesCommission, r))
		}
		if running.Data.Get(models.ColCorrectedDistributor, r) != "Arrow Electronics" {
			t.Errorf("row %d not attributed: %v", r, running.Data.Row(r))
		}
	}
	if running.Data.Get(models.ColDesignSales, 1) != "KL" || running.Data.Get(models.ColPartNumber, 0) != "00123" {
		t.Errorf("Unexpected attribution %v", running.Data.Row(0))
	}
	if !models.LedgerHas(running.Files, report) || running.Files.Get(models.ColTotalCommissions, 0) != "175.00" {
		t.Errorf("Ledger not recorded: %v", running.Files.Row(0))
	}

	if readFix(t, FixPath(tree.runningPath())).Len() != 0 {
		t.Error("Fix workbook should be empty")
	}

	lm, err := parsers.NewLookupLoader(tree.dirs.Lookups).Load(parsers.LookupMasterSpec)
	if err != nil {
		t.Fatalf("Failed to reload Lookup Master: %v", err)
	}
	if lm.Get(models.ColLastUsed, 0) != "2024-04-20" {
		t.Errorf("Last Used not refreshed: %v", lm.Row(0))
	}
}

func TestIngestRoutesUnattributedRow(t *testing.T) {
	tree := newTestTree(t)
	report := writeABR(t, t.TempDir(), "ABR April 2024.xlsx",
		[]string{"Acme", "00123", "50.00"},
		[]string{"New Co", "N-1", "100.00"},
		[]string{"Gamma", "G-1", "25.00"},
	)

	summary, err := tree.orchestrator(t).Ingest(context.Background(), &IngestRequest{
		Inputs: []ingest.Input{{Path: report}},
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if summary.RowsAdded != 3 || summary.FixAdded != 1 {
		t.Errorf("Unexpected summary %+v", summary)
	}

	running := readWorking(t, tree.runningPath())
	fix := readFix(t, FixPath(tree.runningPath()))
	if running.Data.Len() != 3 || fix.Len() != 1 {
		t.Fatalf("running=%d fix=%d", running.Data.Len(), fix.Len())
	}
	if fix.Get(models.ColReportedCustomer, 0) != "New Co" || fix.Get(models.ColLookupMatches, 0) != "0" {
		t.Errorf("Unexpected fix row %v", fix.Row(0))
	}
	if fix.Get(models.ColDistributorMatches, 0) != "1" || fix.Get(models.ColDateAdded, 0) != "2024-04-20" {
		t.Errorf("Missing diagnostics %v", fix.Row(0))
	}

	// A fix row names exactly one Running Commissions row, its unattributed twin.
	id := fix.Get(models.ColUniqueID, 0)
	twins := running.Data.Find(models.ColUniqueID, id)
	if len(twins) != 1 || running.Data.Get(models.ColTEndCust, twins[0]) != "" {
		t.Errorf("Fix row %s must name its unattributed twin only", id)
	}
}

func TestIngestRefusesDuplicateFile(t *testing.T) {
	tree := newTestTree(t)
	report := writeABR(t, t.TempDir(), "ABR April 2024.xlsx", []string{"Acme", "00123", "50.00"})
	o := tree.orchestrator(t)

	if _, err := o.Ingest(context.Background(), &IngestRequest{Inputs: []ingest.Input{{Path: report}}}); err != nil {
		t.Fatalf("First ingest failed: %v", err)
	}
	before := readBytes(t, tree.runningPath())

	summary, err := o.Ingest(context.Background(), &IngestRequest{
		Inputs:      []ingest.Input{{Path: report}},
		RunningPath: tree.runningPath(),
	})
	if err != nil {
		t.Fatalf("Second ingest failed: %v", err)
	}
	if summary.RowsAdded != 0 || len(summary.Files) != 1 || summary.Files[0].Status != FileDuplicate {
		t.Errorf("Expected the file refused, got %+v", summary.Files)
	}
	found := false
	for _, issue := range summary.Issues {
		if issue.Kind == errors.IssueDuplicateFile && issue.File == "ABR April 2024.xlsx" {
			found = true
		}
	}
	if !found {
		t.Error("Expected a duplicate file warning naming the file")
	}
	if !bytes.Equal(before, readBytes(t, tree.runningPath())) {
		t.Error("Running Commissions must not be rewritten")
	}
}

func TestIngestWithoutFilesLeavesRunningUntouched(t *testing.T) {
	tree := newTestTree(t)
	report := writeABR(t, t.TempDir(), "ABR April 2024.xlsx", []string{"Acme", "00123", "50.00"})
	o := tree.orchestrator(t)
	if _, err := o.Ingest(context.Background(), &IngestRequest{Inputs: []ingest.Input{{Path: report}}}); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	before := readBytes(t, tree.runningPath())

	if _, err := o.Ingest(context.Background(), &IngestRequest{RunningPath: tree.runningPath()}); err != nil {
		t.Fatalf("Empty ingest failed: %v", err)
	}
	if !bytes.Equal(before, readBytes(t, tree.runningPath())) {
		t.Error("Empty ingest must leave Running Commissions as it was")
	}

	if _, err := o.Ingest(context.Background(), &IngestRequest{}); err == nil {
		t.Error("A request with neither files nor a workbook must be rejected")
	}
}

func TestIngestCommitsGoodFilesWhenOneAborts(t *testing.T) {
	tree := newTestTree(t)
	raw := t.TempDir()
	good := writeABR(t, raw, "ABR April 2024.xlsx", []string{"Acme", "00123", "50.00"})
	bad := writeABR(t, raw, "ABR April 2024 adj.xlsx", []string{"Acme", "00123", "fifty"})

	summary, err := tree.orchestrator(t).Ingest(context.Background(), &IngestRequest{
		Inputs: []ingest.Input{{Path: bad}, {Path: good}},
	})
	if !errors.HasCode(err, errors.CodeNonNumeric) {
		t.Fatalf("Expected the numeric failure, got %v", err)
	}
	if summary == nil || summary.RowsAdded != 1 || summary.Files[0].Status != FileFailed {
		t.Fatalf("Unexpected summary %+v", summary)
	}

	running := readWorking(t, tree.runningPath())
	if running.Data.Len() != 1 || models.LedgerHas(running.Files, bad) {
		t.Error("Only the good file may be committed")
	}
}

// ingestWithFix runs an ingest that leaves New Co in the fix workbook.
func ingestWithFix(t *testing.T, tree *testTree, o *Orchestrator) {
	t.Helper()
	report := writeABR(t, t.TempDir(), "ABR April 2024.xlsx",
		[]string{"Acme", "00123", "50.00"},
		[]string{"New Co", "N-1", "100.00"},
		[]string{"Gamma", "G-1", "25.00"},
	)
	if _, err := o.Ingest(context.Background(), &IngestRequest{Inputs: []ingest.Input{{Path: report}}}); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
}

func editFix(t *testing.T, path string, values map[string]string) {
	t.Helper()
	fix := readFix(t, path)
	for col, v := range values {
		fix.Set(col, 0, v)
	}
	if err := workbook.NewWriter().Write(path, workbook.Tab{Name: models.TabData, Data: fix}); err != nil {
		t.Fatalf("Failed to save edited fix workbook: %v", err)
	}
}

func TestMergeCompletesRow(t *testing.T) {
	tree := newTestTree(t)
	o := tree.orchestrator(t)
	ingestWithFix(t, tree, o)
	fixPath := FixPath(tree.runningPath())
	id := readFix(t, fixPath).Get(models.ColUniqueID, 0)

	editFix(t, fixPath, map[string]string{
		models.ColTEndCust:       "ACME INC",
		models.ColDesignSales:    "JW",
		models.ColCMSales:        "",
		models.ColInvoiceDate:    "2024-04-15",
		models.ColActualCommPaid: "100.00",
	})

	var steps []string
	o.AddProgressCallback(func(p *JobProgress) { steps = append(steps, p.CurrentStep) })

	summary, err := o.Merge(context.Background(), &MergeRequest{RunningPath: tree.runningPath()})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if summary.Promoted != 1 || summary.FixPending != 0 {
		t.Errorf("Unexpected summary %+v", summary)
	}
	if !summary.ActualCommTotal.Equal(decimal.NewFromInt(175)) {
		t.Errorf("Total = %s", summary.ActualCommTotal)
	}
	if p := o.GetCurrentProgress(); p.PercentComplete != 100 || len(steps) != 4 {
		t.Errorf("Progress ended at %.0f%% after %v", p.PercentComplete, steps)
	}

	if readFix(t, fixPath).Len() != 0 {
		t.Error("Promoted row must leave the fix workbook")
	}
	running := readWorking(t, tree.runningPath())
	rows := running.Data.Find(models.ColUniqueID, id)
	if len(rows) != 1 {
		t.Fatalf("Expected one row with id %s", id)
	}
	r := rows[0]
	want := map[string]string{
		models.ColDesignSales:     "JW",
		models.ColSalesCommission: "45.00",
		models.ColDesignSalesComm: "45.00",
		models.ColCMSalesComm:     "0.00",
		models.ColYear:            "2024",
		models.ColMonth:           "Apr",
		models.ColQuarterShipped:  "2024Q2",
	}
	for col, v := range want {
		if got := running.Data.Get(col, r); got != v {
			t.Errorf("%s = %q, want %q", col, got, v)
		}
	}
	if len(running.Data.Distinct(models.ColUniqueID)) != running.Data.Len() {
		t.Error("Unique IDs must stay unique")
	}

	if _, err := os.Stat(parsers.QuarantineSpec.Path(tree.dirs.Lookups)); err != nil {
		t.Errorf("Quarantine should be written with the set: %v", err)
	}
}

func TestMergeConservationWritesNothing(t *testing.T) {
	tree := newTestTree(t)
	o := tree.orchestrator(t)
	ingestWithFix(t, tree, o)
	fixPath := FixPath(tree.runningPath())

	editFix(t, fixPath, map[string]string{
		models.ColTEndCust:       "ACME INC",
		models.ColDesignSales:    "JW",
		models.ColInvoiceDate:    "2024-04-15",
		models.ColActualCommPaid: "90.00",
	})

	targets := []string{tree.runningPath(), fixPath, parsers.LookupMasterSpec.Path(tree.dirs.Lookups)}
	before := make(map[string][]byte)
	for _, p := range targets {
		before[p] = readBytes(t, p)
	}

	_, err := o.Merge(context.Background(), &MergeRequest{RunningPath: tree.runningPath()})
	if !errors.HasCode(err, errors.CodeConservation) {
		t.Fatalf("Expected conservation failure, got %v", err)
	}
	for _, p := range targets {
		if !bytes.Equal(before[p], readBytes(t, p)) {
			t.Errorf("%s was written", filepath.Base(p))
		}
	}
	if _, err := os.Stat(parsers.QuarantineSpec.Path(tree.dirs.Lookups)); !os.IsNotExist(err) {
		t.Error("Quarantine must not be created")
	}
}

func TestMergeKeepsUnreadableQuarantine(t *testing.T) {
	tree := newTestTree(t)
	o := tree.orchestrator(t)
	ingestWithFix(t, tree, o)
	fixPath := FixPath(tree.runningPath())

	editFix(t, fixPath, map[string]string{
		models.ColTEndCust:       "ACME INC",
		models.ColDesignSales:    "JW",
		models.ColInvoiceDate:    "2024-04-15",
		models.ColActualCommPaid: "100.00",
	})

	history := models.NewTable(models.ColReportedCustomer, models.ColPartNumber, models.ColDateQuarantined)
	history.AppendRecord([]string{"Old Co", "O-1", "2023-01-05"})
	quarantinePath := parsers.QuarantineSpec.Path(tree.dirs.Lookups)
	if err := workbook.NewWriter().Write(quarantinePath, workbook.Tab{Name: "Quarantine", Data: history}); err != nil {
		t.Fatalf("Failed to write quarantine: %v", err)
	}

	targets := []string{tree.runningPath(), fixPath, quarantinePath}
	before := make(map[string][]byte)
	for _, p := range targets {
		before[p] = readBytes(t, p)
	}

	_, err := o.Merge(context.Background(), &MergeRequest{RunningPath: tree.runningPath()})
	if !errors.HasCode(err, errors.CodeMissingTab) {
		t.Fatalf("Expected missing tab error, got %v", err)
	}
	for _, p := range targets {
		if !bytes.Equal(before[p], readBytes(t, p)) {
			t.Errorf("%s was written", filepath.Base(p))
		}
	}
}

func TestMergeAbortsWhenTargetLocked(t *testing.T) {
	tree := newTestTree(t)
	o := tree.orchestrator(t)
	ingestWithFix(t, tree, o)
	fixPath := FixPath(tree.runningPath())
	before := readBytes(t, fixPath)

	owner := filepath.Join(tree.dirs.Lookups, "~$"+parsers.LookupMasterFile)
	if err := os.WriteFile(owner, []byte("someone"), 0o644); err != nil {
		t.Fatalf("Failed to create owner file: %v", err)
	}

	_, err := o.Merge(context.Background(), &MergeRequest{RunningPath: tree.runningPath()})
	if !errors.HasCode(err, errors.CodeFileLocked) {
		t.Fatalf("Expected a lock failure, got %v", err)
	}
	if !bytes.Equal(before, readBytes(t, fixPath)) {
		t.Error("No target may be written while one is locked")
	}
}

func TestMergeRequiresRunningCommissions(t *testing.T) {
	tree := newTestTree(t)
	o := tree.orchestrator(t)

	if _, err := o.Merge(context.Background(), &MergeRequest{}); err == nil {
		t.Error("Expected a validation error")
	}
	_, err := o.Merge(context.Background(), &MergeRequest{RunningPath: tree.runningPath()})
	if !errors.HasCode(err, errors.CodeFileNotFound) {
		t.Errorf("Expected a missing input error, got %v", err)
	}
}

func TestIngestRequiresLookups(t *testing.T) {
	tree := newTestTree(t)
	if err := os.Remove(parsers.DistributorMapSpec.Path(tree.dirs.Lookups)); err != nil {
		t.Fatal(err)
	}
	report := writeABR(t, t.TempDir(), "ABR April 2024.xlsx", []string{"Acme", "00123", "50.00"})

	_, err := tree.orchestrator(t).Ingest(context.Background(), &IngestRequest{Inputs: []ingest.Input{{Path: report}}})
	if !errors.HasCode(err, errors.CodeFileNotFound) {
		t.Fatalf("Expected a missing lookup error, got %v", err)
	}
	if _, err := os.Stat(tree.runningPath()); !os.IsNotExist(err) {
		t.Error("Nothing may be written when a lookup is missing")
	}
}
