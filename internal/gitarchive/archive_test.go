package gitarchive

import (
	"os"
	"path/filepath"
	"testing"

	gogit "github.com/go-git/go-git/v5"

	"github.com/CosmoTheDev/vtyscan-agent/internal/audit"
	"github.com/CosmoTheDev/vtyscan-agent/models"
)

func testResult(runID int64) *audit.Result {
	return &audit.Result{
		Run:     models.AuditRun{ID: runID},
		Summary: models.RunSummary{RunID: runID, Devices: 1, Completed: 1},
		Reports: []models.DeviceReport{
			{Device: models.Device{Name: "rtr-a"}, Status: models.DeviceCompleted},
		},
	}
}

func TestOpenInitialisesOnce(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(dir, "", ""); err != nil {
		t.Fatalf("Open (init): %v", err)
	}
	// Second open must reuse the existing repository.
	if _, err := Open(dir, "auditor", "auditor@example.com"); err != nil {
		t.Fatalf("Open (reopen): %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		t.Fatalf("no .git directory after Open: %v", err)
	}
}

func TestCommitRunWritesEvidence(t *testing.T) {
	dir := t.TempDir()
	arch, err := Open(dir, "auditor", "auditor@example.com")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	outputs := []models.DeviceOutput{
		{RunID: 3, Device: "rtr-a", Name: "running_config", Output: "line vty 0 4\n"},
		{RunID: 3, Device: "rtr-a", Name: "version", Output: "IOS XE 17.9\n"},
	}
	hash, err := arch.CommitRun(testResult(3), outputs)
	if err != nil {
		t.Fatalf("CommitRun: %v", err)
	}
	if hash == "" {
		t.Fatal("empty commit hash")
	}

	for _, rel := range []string{
		"runs/3/report.json",
		"runs/3/rtr-a/running_config.txt",
		"runs/3/rtr-a/version.txt",
	} {
		if _, err := os.Stat(filepath.Join(dir, rel)); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}

	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		t.Fatalf("PlainOpen: %v", err)
	}
	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.Hash().String() != hash {
		t.Errorf("HEAD %s != returned hash %s", head.Hash(), hash)
	}
}

func TestCommitRunSanitizesNames(t *testing.T) {
	dir := t.TempDir()
	arch, err := Open(dir, "", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	outputs := []models.DeviceOutput{
		{RunID: 9, Device: "../escape", Name: "show line", Output: "x"},
	}
	if _, err := arch.CommitRun(testResult(9), outputs); err != nil {
		t.Fatalf("CommitRun: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "runs", "9", ".._escape", "show_line.txt")); err != nil {
		t.Errorf("sanitized path missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "runs", "escape")); err == nil {
		t.Error("traversal escaped the run directory")
	}
}
