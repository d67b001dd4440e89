package enrich

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/incipit-labs/folio-engine/pkg/models"
	"github.com/incipit-labs/folio-engine/pkg/normalize"
)

// Confidence values by resolution path.
const (
	ConfidenceIDChain = 0.95
	ConfidenceSearch  = 0.70
)

// DefaultTTL is how long a successful enrichment stays fresh.
const DefaultTTL = 30 * 24 * time.Hour

// missTTL keeps terminal misses cached briefly so repeated questions about
// an unknown entity do not hammer the sources.
const missTTL = 24 * time.Hour

// Enricher resolves entities through cache, ID chain, then name search.
// At most one lookup per (entity_type, normalized_key) is in flight.
type Enricher struct {
	cache    *Cache
	wikidata *WikidataClient
	group    singleflight.Group
	ttl      time.Duration
	logger   *zap.Logger
}

// NewEnricher wires the cache and client. ttl <= 0 selects DefaultTTL.
func NewEnricher(cache *Cache, wikidata *WikidataClient, ttl time.Duration, logger *zap.Logger) *Enricher {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Enricher{cache: cache, wikidata: wikidata, ttl: ttl, logger: logger.Named("enricher")}
}

// Enrich answers an entity lookup. authorityID is the MARC $0 identifier
// when the record carries one; it selects the primary ID-chain path. Every
// step's failure falls through to the next; the terminal outcome is a
// cached miss with source none, never an error from a source.
func (e *Enricher) Enrich(ctx context.Context, entityType models.EntityType, entityValue, authorityID string) (*models.EnrichmentResult, error) {
	key := normalize.CleanKey(entityValue)
	if key == "" {
		return e.miss(entityType, entityValue, key), nil
	}

	if cached, err := e.cache.Get(ctx, entityType, key); err != nil {
		e.logger.Warn("Enrichment cache read failed", zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	flightKey := string(entityType) + "\x00" + key
	v, err, _ := e.group.Do(flightKey, func() (any, error) {
		if cached, err := e.cache.Get(ctx, entityType, key); err == nil && cached != nil {
			return cached, nil
		}
		return e.lookup(ctx, entityType, entityValue, key, authorityID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.EnrichmentResult), nil
}

func (e *Enricher) lookup(ctx context.Context, entityType models.EntityType, entityValue, key, authorityID string) (*models.EnrichmentResult, error) {
	now := time.Now().UTC()

	result := e.resolve(ctx, entityType, entityValue, authorityID)
	if result == nil {
		result = e.miss(entityType, entityValue, key)
	} else {
		result.EntityValue = entityValue
		result.NormalizedKey = key
		result.FetchedAt = now
		result.ExpiresAt = now.Add(e.ttl)
	}

	if err := e.cache.Put(ctx, result); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("cache enrichment: %w", err)
		}
		e.logger.Warn("Enrichment cache write failed", zap.Error(err))
	}
	return result, nil
}

// resolve walks the source chain; any step failing logs and falls through.
func (e *Enricher) resolve(ctx context.Context, entityType models.EntityType, entityValue, authorityID string) *models.EnrichmentResult {
	if authorityID != "" {
		qid, err := e.wikidata.ResolveAuthority(ctx, PropNLI, authorityID)
		if err != nil {
			e.logger.Warn("Authority resolution failed",
				zap.String("authority_id", authorityID), zap.Error(err))
		} else if qid != "" {
			result, err := e.wikidata.FetchEntity(ctx, qid, entityType)
			if err != nil {
				e.logger.Warn("Entity fetch failed", zap.String("qid", qid), zap.Error(err))
			} else {
				result.Source = models.SourceWikidataIDChain
				result.Confidence = ConfidenceIDChain
				return result
			}
		}
	}

	qid, err := e.wikidata.SearchByName(ctx, entityValue)
	if err != nil {
		e.logger.Warn("Name search failed", zap.String("entity", entityValue), zap.Error(err))
		return nil
	}
	if qid == "" {
		return nil
	}
	result, err := e.wikidata.FetchEntity(ctx, qid, entityType)
	if err != nil {
		e.logger.Warn("Entity fetch failed", zap.String("qid", qid), zap.Error(err))
		return nil
	}
	result.Source = models.SourceWikidataSearch
	result.Confidence = ConfidenceSearch
	return result
}

func (e *Enricher) miss(entityType models.EntityType, entityValue, key string) *models.EnrichmentResult {
	now := time.Now().UTC()
	return &models.EnrichmentResult{
		EntityType:    entityType,
		EntityValue:   entityValue,
		NormalizedKey: key,
		Source:        models.SourceNone,
		Confidence:    0,
		FetchedAt:     now,
		ExpiresAt:     now.Add(missTTL),
	}
}
