// Package gitarchive snapshots the raw evidence of each audit run into
// a local git repository, one commit per run. Git gives the evidence
// trail tamper-evident history and free diffing between sweeps of the
// same inventory.
package gitarchive

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/CosmoTheDev/vtyscan-agent/internal/audit"
	"github.com/CosmoTheDev/vtyscan-agent/models"
)

// Archive is a local git repository holding run evidence.
type Archive struct {
	path   string
	author string
	email  string
	repo   *gogit.Repository
}

// Open opens the archive at path, initialising a fresh repository on
// first use.
func Open(path, author, email string) (*Archive, error) {
	if author == "" {
		author = "vtyscan"
	}
	if email == "" {
		email = "vtyscan@localhost"
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	repo, err := gogit.PlainOpen(path)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		repo, err = gogit.PlainInit(path, false)
	}
	if err != nil {
		return nil, fmt.Errorf("opening archive repository: %w", err)
	}
	return &Archive{path: path, author: author, email: email, repo: repo}, nil
}

// Path returns the archive's working directory.
func (a *Archive) Path() string { return a.path }

// CommitRun writes the run's evidence under runs/<id>/ and commits it.
// Layout:
//
//	runs/<id>/report.json            full structured result
//	runs/<id>/<device>/<name>.txt    raw command output
//
// Returns the commit hash.
func (a *Archive) CommitRun(result *audit.Result, outputs []models.DeviceOutput) (string, error) {
	runDir := filepath.Join("runs", strconv.FormatInt(result.Run.ID, 10))
	absRun := filepath.Join(a.path, runDir)
	if err := os.MkdirAll(absRun, 0o750); err != nil {
		return "", fmt.Errorf("creating run directory: %w", err)
	}

	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(absRun, "report.json"), raw, 0o640); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}

	for _, out := range outputs {
		devDir := filepath.Join(absRun, sanitize(out.Device))
		if err := os.MkdirAll(devDir, 0o750); err != nil {
			return "", fmt.Errorf("creating device directory: %w", err)
		}
		name := sanitize(out.Name) + ".txt"
		if err := os.WriteFile(filepath.Join(devDir, name), []byte(out.Output), 0o640); err != nil {
			return "", fmt.Errorf("writing %s/%s: %w", out.Device, name, err)
		}
	}

	wt, err := a.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("opening worktree: %w", err)
	}
	if err := wt.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("staging evidence: %w", err)
	}

	msg := fmt.Sprintf("Audit run %d: %d devices, %d critical, %d high",
		result.Run.ID, result.Summary.Devices,
		result.Summary.FindingsCritical, result.Summary.FindingsHigh)
	hash, err := wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  a.author,
			Email: a.email,
			When:  time.Now().UTC(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("committing evidence: %w", err)
	}

	slog.Info("Archived run evidence",
		"run_id", result.Run.ID, "path", runDir, "commit", hash.String()[:12])
	return hash.String(), nil
}

// sanitize keeps archive paths flat and shell-safe. Device and command
// names come from config and the platform tables, but a hostile
// inventory must not be able to write outside the run directory.
func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	name := string(out)
	if name == "" || name == "." || name == ".." {
		return "unnamed"
	}
	return name
}
