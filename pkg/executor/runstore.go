package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/incipit-labs/folio-engine/pkg/models"
)

// RunStore persists one directory per executed query: the plan, the exact
// SQL, and the resulting candidate set.
type RunStore struct {
	dir string
	now func() time.Time
}

// NewRunStore creates a run store rooted at dir.
func NewRunStore(dir string) *RunStore {
	return &RunStore{dir: dir, now: time.Now}
}

// Persist writes plan.json, sql.txt and candidate_set.json under a run id
// derived from the current UTC time. Colliding ids get a numeric suffix.
func (rs *RunStore) Persist(plan *models.QueryPlan, sqlText string, cs *models.CandidateSet) (string, error) {
	runDir, err := rs.createRunDir()
	if err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "plan.json"), plan); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(runDir, "sql.txt"), []byte(sqlText), 0o644); err != nil {
		return "", fmt.Errorf("write sql.txt: %w", err)
	}
	if err := writeJSON(filepath.Join(runDir, "candidate_set.json"), cs); err != nil {
		return "", err
	}

	return runDir, nil
}

func (rs *RunStore) createRunDir() (string, error) {
	if err := os.MkdirAll(rs.dir, 0o755); err != nil {
		return "", fmt.Errorf("create runs dir: %w", err)
	}

	base := rs.now().UTC().Format("20060102T150405Z")
	for i := 0; ; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s-%d", base, i)
		}
		runDir := filepath.Join(rs.dir, name)
		err := os.Mkdir(runDir, 0o755)
		if err == nil {
			return runDir, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("create run dir: %w", err)
		}
	}
}

func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
