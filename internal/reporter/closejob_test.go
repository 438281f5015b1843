package reporter

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"taarcom-commissions/internal/models"
	"taarcom-commissions/internal/parsers"
	"taarcom-commissions/internal/reconciler"
	"taarcom-commissions/internal/workbook"
	"taarcom-commissions/pkg/errors"
)

type closeTree struct {
	dirs    reconciler.Dirs
	running string
	master  string
}

// newCloseTree lays out the close fixtures on disk: Running Commissions,
// the Master, the Account List and the Lookup Master.
func newCloseTree(t *testing.T) *closeTree {
	t.Helper()
	root := t.TempDir()
	dirs := reconciler.Dirs{
		Lookups: filepath.Join(root, "lookups"),
		Working: filepath.Join(root, "working"),
		Reports: filepath.Join(root, "reports"),
	}
	in := closeInput()
	tree := &closeTree{
		dirs:    dirs,
		running: filepath.Join(dirs.Working, "Running Commissions 04-20-2024.xlsx"),
		master:  filepath.Join(dirs.Working, reconciler.MasterFile),
	}

	w := workbook.NewWriter()
	write := func(path string, tabs ...workbook.Tab) {
		if err := w.Write(path, tabs...); err != nil {
			t.Fatalf("Failed to write %s: %v", path, err)
		}
	}
	write(tree.running,
		workbook.Tab{Name: models.TabMaster, Data: in.Running.Data},
		workbook.Tab{Name: models.TabFilesProcessed, Data: in.Running.Files})
	write(tree.master,
		workbook.Tab{Name: models.TabMaster, Data: in.Master.Data},
		workbook.Tab{Name: models.TabFilesProcessed, Data: in.Master.Files})
	write(parsers.AccountListSpec.Path(dirs.Lookups), workbook.Tab{Name: parsers.AccountListSpec.Tab, Data: in.Accounts})
	write(parsers.LookupMasterSpec.Path(dirs.Lookups), workbook.Tab{Name: parsers.LookupMasterSpec.Tab, Data: in.LookupMaster})
	return tree
}

func (tree *closeTree) job(t *testing.T) *CloseJob {
	t.Helper()
	job, err := NewCloseJob(testConfig(), tree.dirs)
	if err != nil {
		t.Fatalf("NewCloseJob failed: %v", err)
	}
	return job
}

func readTab(t *testing.T, path, tab string) *models.Table {
	t.Helper()
	table, err := parsers.NewBaseParser(nil).ReadTab(path, tab)
	if err != nil {
		t.Fatalf("Failed to read %s of %s: %v", tab, path, err)
	}
	return table
}

func TestCloseJobRun(t *testing.T) {
	tree := newCloseTree(t)

	summary, err := tree.job(t).Run(context.Background(), &CloseRequest{RunningPath: tree.running})
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if summary.CommMonth != "2024-4" || summary.RowsAdded != 3 || summary.LookupAdded != 1 {
		t.Errorf("Unexpected summary %+v", summary)
	}
	if len(summary.Reports) != 7 {
		t.Errorf("Reports = %d, want 7", len(summary.Reports))
	}

	master, err := parsers.NewBaseParser(nil).LoadWorkingFile(tree.master)
	if err != nil {
		t.Fatalf("Failed to reload the Master: %v", err)
	}
	if master.Data.Len() != 5 || master.Files.Len() != 2 {
		t.Errorf("Master rows=%d files=%d, want 5 and 2", master.Data.Len(), master.Files.Len())
	}
	for r := 2; r < master.Data.Len(); r++ {
		if got := master.Data.Get(models.ColCommMonth, r); got != "2024-4" {
			t.Errorf("Master row %d Comm Month = %q, want 2024-4", r, got)
		}
	}

	running := readTab(t, tree.running, models.TabMaster)
	if running.Get(models.ColCommMonth, 0) != "2024-4" {
		t.Error("Running Commissions must be saved with its stamp")
	}

	jw := readTab(t, filepath.Join(tree.dirs.Reports, "JW Revenue Report 2024-4.xlsx"), models.TabData)
	if len(jw.Find(models.ColUniqueID, "id-1")) != 1 {
		t.Error("JW revenue report must contain the design_sales=JW row")
	}
	pivot := readTab(t, filepath.Join(tree.dirs.Reports, "JW Revenue Report 2024-4.xlsx"), TabPivot)
	if !pivot.HasColumn("2024Q2") || !pivot.HasColumn(TotalColumn) {
		t.Errorf("Unexpected pivot columns %v", pivot.Columns())
	}

	if _, err := os.Stat(workbook.BackupPath(tree.master, today)); err != nil {
		t.Errorf("Master backup missing: %v", err)
	}
	lookup := readTab(t, parsers.LookupMasterSpec.Path(tree.dirs.Lookups), parsers.LookupMasterSpec.Tab)
	if lookup.Len() != 2 {
		t.Errorf("Lookup Master rows = %d, want 2", lookup.Len())
	}
	if _, err := os.Stat(parsers.QuarantineSpec.Path(tree.dirs.Lookups)); err != nil {
		t.Errorf("Quarantine not written: %v", err)
	}
}

func TestCloseJobRejectsSecondClose(t *testing.T) {
	tree := newCloseTree(t)
	job := tree.job(t)
	if _, err := job.Run(context.Background(), &CloseRequest{RunningPath: tree.running}); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	before, err := os.ReadFile(tree.master)
	if err != nil {
		t.Fatalf("Failed to read the Master: %v", err)
	}

	_, err = job.Run(context.Background(), &CloseRequest{RunningPath: tree.running})
	if !errors.HasCode(err, errors.CodeAlreadyClosed) {
		t.Fatalf("Expected already-closed error, got %v", err)
	}
	after, _ := os.ReadFile(tree.master)
	if !bytes.Equal(before, after) {
		t.Error("A rejected close must not touch the Master")
	}
}

func TestCloseJobAbortsWhenReportLocked(t *testing.T) {
	tree := newCloseTree(t)
	if err := os.MkdirAll(tree.dirs.Reports, 0o755); err != nil {
		t.Fatal(err)
	}
	owner := filepath.Join(tree.dirs.Reports, "~$JW Revenue Report 2024-4.xlsx")
	if err := os.WriteFile(owner, []byte("owner"), 0o644); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(tree.dirs.Reports, "JW Revenue Report 2024-4.xlsx")
	if err := os.WriteFile(target, []byte("open"), 0o644); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(tree.master)

	_, err := tree.job(t).Run(context.Background(), &CloseRequest{RunningPath: tree.running})
	if !errors.HasCode(err, errors.CodeFileLocked) {
		t.Fatalf("Expected file-locked error, got %v", err)
	}
	after, _ := os.ReadFile(tree.master)
	if !bytes.Equal(before, after) {
		t.Error("A locked report must leave the Master untouched")
	}
}

func TestCloseJobKeepsUnreadableQuarantine(t *testing.T) {
	tree := newCloseTree(t)
	partial := models.NewTable(models.ColReportedCustomer, models.ColPartNumber)
	partial.AppendRecord([]string{"Old Co", "O-1"})
	quarantine := parsers.QuarantineSpec.Path(tree.dirs.Lookups)
	if err := workbook.NewWriter().Write(quarantine, workbook.Tab{Name: parsers.QuarantineSpec.Tab, Data: partial}); err != nil {
		t.Fatalf("Failed to write quarantine: %v", err)
	}
	before, _ := os.ReadFile(quarantine)
	master, _ := os.ReadFile(tree.master)

	_, err := tree.job(t).Run(context.Background(), &CloseRequest{RunningPath: tree.running})
	if !errors.HasCode(err, errors.CodeMissingColumn) {
		t.Fatalf("Expected missing column error, got %v", err)
	}
	if after, _ := os.ReadFile(quarantine); !bytes.Equal(before, after) {
		t.Error("An unreadable Quarantine must not be overwritten")
	}
	if after, _ := os.ReadFile(tree.master); !bytes.Equal(master, after) {
		t.Error("The Master must be untouched")
	}
}

func TestCloseJobReportsOnly(t *testing.T) {
	tree := newCloseTree(t)
	job := tree.job(t)
	if _, err := job.Run(context.Background(), &CloseRequest{RunningPath: tree.running}); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	for _, name := range []string{"JW Commission Report 2024-4.xlsx", "Combined Revenue Report 2024-4.xlsx"} {
		if err := os.Remove(filepath.Join(tree.dirs.Reports, name)); err != nil {
			t.Fatalf("Failed to remove %s: %v", name, err)
		}
	}
	before, _ := os.ReadFile(tree.master)

	summary, err := job.Run(context.Background(), &CloseRequest{})
	if err != nil {
		t.Fatalf("Report rebuild failed: %v", err)
	}
	if summary.CommMonth != "2024-4" || len(summary.Reports) != 7 {
		t.Errorf("Unexpected summary %+v", summary)
	}
	raw := readTab(t, filepath.Join(tree.dirs.Reports, "JW Commission Report 2024-4.xlsx"), TabRawData)
	if raw.Len() != 1 {
		t.Errorf("JW commission rows = %d, want 1", raw.Len())
	}
	after, _ := os.ReadFile(tree.master)
	if !bytes.Equal(before, after) {
		t.Error("Rebuilding reports must not touch the Master")
	}
}

func TestCloseJobRequiresInputs(t *testing.T) {
	tests := []struct {
		name   string
		remove func(tree *closeTree) string
		req    func(tree *closeTree) *CloseRequest
		code   errors.ErrorCode
	}{
		{
			name:   "running commissions",
			remove: func(tree *closeTree) string { return tree.running },
			req:    func(tree *closeTree) *CloseRequest { return &CloseRequest{RunningPath: tree.running} },
			code:   errors.CodeFileNotFound,
		},
		{
			name:   "account list",
			remove: func(tree *closeTree) string { return parsers.AccountListSpec.Path(tree.dirs.Lookups) },
			req:    func(tree *closeTree) *CloseRequest { return &CloseRequest{RunningPath: tree.running} },
			code:   errors.CodeFileNotFound,
		},
		{
			name:   "master for report rebuild",
			remove: func(tree *closeTree) string { return tree.master },
			req:    func(tree *closeTree) *CloseRequest { return &CloseRequest{} },
			code:   errors.CodeFileNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := newCloseTree(t)
			if err := os.Remove(tt.remove(tree)); err != nil {
				t.Fatal(err)
			}
			_, err := tree.job(t).Run(context.Background(), tt.req(tree))
			if !errors.HasCode(err, tt.code) {
				t.Errorf("Expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestCloseJobStartsMaster(t *testing.T) {
	tree := newCloseTree(t)
	if err := os.Remove(tree.master); err != nil {
		t.Fatal(err)
	}

	summary, err := tree.job(t).Run(context.Background(), &CloseRequest{RunningPath: tree.running})
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if summary.CommMonth != "2024-4" {
		t.Errorf("A first close books today's month, got %s", summary.CommMonth)
	}
	if readTab(t, tree.master, models.TabMaster).Len() != 3 {
		t.Error("The new Master must hold the closed rows")
	}
}
