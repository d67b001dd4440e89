package planner

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/incipit-labs/folio-engine/pkg/jsonutil"
	"github.com/incipit-labs/folio-engine/pkg/models"
	"github.com/incipit-labs/folio-engine/pkg/normalize"
)

// CachedPlan is one append-only cache entry: the plan plus the model that
// produced it.
type CachedPlan struct {
	Key       string           `json:"key"`
	QueryText string           `json:"query_text"`
	Model     string           `json:"model"`
	Plan      models.QueryPlan `json:"plan"`
	CreatedAt time.Time        `json:"created_at"`
}

// CompileFunc produces a plan for a question, returning the plan and the
// identifier of the model that generated it.
type CompileFunc func(ctx context.Context) (models.QueryPlan, string, error)

// PlanCache is the persistent question-fingerprint to plan store. Entries
// are held in memory and appended to a JSONL file; the file is replayed on
// open, last entry per key winning. A single-flight group guarantees at
// most one compilation per key is in progress.
type PlanCache struct {
	mu      sync.RWMutex
	path    string
	entries map[string]CachedPlan
	group   singleflight.Group
	logger  *zap.Logger
}

// OpenPlanCache loads the cache file, creating parent directories as
// needed. A missing file is an empty cache.
func OpenPlanCache(path string, logger *zap.Logger) (*PlanCache, error) {
	c := &PlanCache{
		path:    path,
		entries: make(map[string]CachedPlan),
		logger:  logger.Named("plancache"),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create plan cache dir: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("open plan cache: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		var entry CachedPlan
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			c.logger.Warn("skipping unreadable plan cache line",
				zap.Int("line", line), zap.Error(err))
			continue
		}
		c.entries[entry.Key] = entry
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read plan cache: %w", err)
	}

	c.logger.Info("plan cache loaded", zap.Int("entries", len(c.entries)))
	return c, nil
}

// Key fingerprints a question: the text is key-cleaned (casefold, NFKC,
// whitespace collapse), wrapped in a canonical JSON object and hashed.
func Key(queryText string) (string, error) {
	canonical, err := jsonutil.CanonicalMarshal(map[string]string{
		"query": normalize.CleanKey(queryText),
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint query: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// GetOrCompile returns the cached plan for the question, or runs compile
// exactly once per key, persisting the result. The second return reports a
// cache hit.
func (c *PlanCache) GetOrCompile(ctx context.Context, queryText string, compile CompileFunc) (models.QueryPlan, bool, error) {
	key, err := Key(queryText)
	if err != nil {
		return models.QueryPlan{}, false, err
	}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return entry.Plan, true, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return entry, nil
		}

		plan, model, err := compile(ctx)
		if err != nil {
			return nil, err
		}

		entry = CachedPlan{
			Key:       key,
			QueryText: queryText,
			Model:     model,
			Plan:      plan,
			CreatedAt: time.Now().UTC(),
		}
		c.store(entry)
		return entry, nil
	})
	if err != nil {
		return models.QueryPlan{}, false, err
	}
	return v.(CachedPlan).Plan, false, nil
}

func (c *PlanCache) store(entry CachedPlan) {
	c.mu.Lock()
	c.entries[entry.Key] = entry
	c.mu.Unlock()

	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("marshal plan cache entry", zap.Error(err))
		return
	}
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		c.logger.Warn("append to plan cache", zap.Error(err))
		return
	}
	defer f.Close()
	if _, err := f.Write(append(raw, '\n')); err != nil {
		c.logger.Warn("write plan cache entry", zap.Error(err))
	}
}

// Len reports the number of cached plans.
func (c *PlanCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
