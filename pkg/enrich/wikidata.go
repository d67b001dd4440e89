// Package enrich resolves catalog entities (printers, places, authors)
// against external authorities, behind a TTL cache with single-flight.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/pkg/models"
	"github.com/incipit-labs/folio-engine/pkg/normalize"
	"github.com/incipit-labs/folio-engine/pkg/retry"
)

// Wikidata properties used for the cross-reference chain.
const (
	PropNLI  = "P8189" // National Library of Israel J9U id
	PropVIAF = "P214"
	PropISNI = "P213"
	PropLOC  = "P244"

	PropBirthDate   = "P569"
	PropDeathDate   = "P570"
	PropCoordinates = "P625"
)

// ClientConfig points the client at a Wikidata-compatible service. Zero
// values select the public endpoints and one request per second per host.
// The SPARQL service lives on its own host, separate from entity data and
// name search.
type ClientConfig struct {
	BaseURL            string
	SPARQLEndpoint     string
	MinRequestInterval time.Duration
}

// WikidataClient resolves entities through a Wikidata-compatible service.
type WikidataClient struct {
	baseURL   string
	sparqlURL string
	http      *http.Client
	limiter   *hostLimiter
	logger    *zap.Logger
}

// NewWikidataClient creates a client. Tests point both endpoints at a
// local server through cfg.
func NewWikidataClient(cfg ClientConfig, logger *zap.Logger) *WikidataClient {
	base := cfg.BaseURL
	if base == "" {
		base = "https://www.wikidata.org"
	}
	sparql := cfg.SPARQLEndpoint
	if sparql == "" {
		sparql = "https://query.wikidata.org/sparql"
	}
	return &WikidataClient{
		baseURL:   strings.TrimRight(base, "/"),
		sparqlURL: strings.TrimRight(sparql, "/"),
		http:      &http.Client{Timeout: 15 * time.Second},
		limiter:   newHostLimiter(cfg.MinRequestInterval),
		logger:    logger.Named("wikidata"),
	}
}

// ResolveAuthority finds the entity whose cross-reference property carries
// the given authority id. Returns "" when nothing matches.
func (c *WikidataClient) ResolveAuthority(ctx context.Context, property, authorityID string) (string, error) {
	sparql := fmt.Sprintf(`SELECT ?item WHERE { ?item wdt:%s %q } LIMIT 1`, property, authorityID)
	endpoint := c.sparqlURL + "?format=json&query=" + url.QueryEscape(sparql)

	var payload struct {
		Results struct {
			Bindings []struct {
				Item struct {
					Value string `json:"value"`
				} `json:"item"`
			} `json:"bindings"`
		} `json:"results"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return "", err
	}
	if len(payload.Results.Bindings) == 0 {
		return "", nil
	}

	uri := payload.Results.Bindings[0].Item.Value
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:], nil
	}
	return uri, nil
}

// SearchByName searches entities by label, returning the top hit's id only
// when its label matches the query under key cleaning. Weaker hits are
// discarded rather than guessed at.
func (c *WikidataClient) SearchByName(ctx context.Context, name string) (string, error) {
	endpoint := c.baseURL + "/w/api.php?action=wbsearchentities&format=json&language=en&limit=5&search=" +
		url.QueryEscape(name)

	var payload struct {
		Search []struct {
			ID    string `json:"id"`
			Label string `json:"label"`
		} `json:"search"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return "", err
	}
	if len(payload.Search) == 0 {
		return "", nil
	}

	top := payload.Search[0]
	if normalize.CleanKey(top.Label) != normalize.CleanKey(name) {
		return "", nil
	}
	return top.ID, nil
}

// FetchEntity loads full entity detail and projects it onto an
// EnrichmentResult skeleton (ids, label, description, person/place info).
func (c *WikidataClient) FetchEntity(ctx context.Context, qid string, entityType models.EntityType) (*models.EnrichmentResult, error) {
	endpoint := c.baseURL + "/wiki/Special:EntityData/" + url.PathEscape(qid) + ".json"

	raw, err := c.getRaw(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Entities map[string]struct {
			Labels       map[string]struct{ Value string } `json:"labels"`
			Descriptions map[string]struct{ Value string } `json:"descriptions"`
			Claims       map[string][]claim                `json:"claims"`
		} `json:"entities"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode entity %s: %w", qid, err)
	}
	entity, ok := payload.Entities[qid]
	if !ok {
		return nil, fmt.Errorf("entity %s missing from response", qid)
	}

	result := &models.EnrichmentResult{
		EntityType:  entityType,
		WikidataID:  qid,
		VIAFID:      firstStringClaim(entity.Claims, PropVIAF),
		ISNIID:      firstStringClaim(entity.Claims, PropISNI),
		LOCID:       firstStringClaim(entity.Claims, PropLOC),
		NLIID:       firstStringClaim(entity.Claims, PropNLI),
		Label:       entity.Labels["en"].Value,
		Description: entity.Descriptions["en"].Value,
		Raw:         string(raw),
	}

	switch entityType {
	case models.EntityPerson, models.EntityPublisher:
		info := &models.PersonInfo{
			BirthYear: firstYearClaim(entity.Claims, PropBirthDate),
			DeathYear: firstYearClaim(entity.Claims, PropDeathDate),
		}
		if info.BirthYear != nil || info.DeathYear != nil {
			result.PersonInfo = info
		}
	case models.EntityPlace:
		if lat, lon, ok := firstCoordinateClaim(entity.Claims, PropCoordinates); ok {
			result.PlaceInfo = &models.PlaceInfo{Latitude: &lat, Longitude: &lon}
		}
	}

	return result, nil
}

type claim struct {
	Mainsnak struct {
		Datavalue struct {
			Value json.RawMessage `json:"value"`
		} `json:"datavalue"`
	} `json:"mainsnak"`
}

func firstStringClaim(claims map[string][]claim, property string) string {
	for _, cl := range claims[property] {
		var s string
		if err := json.Unmarshal(cl.Mainsnak.Datavalue.Value, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

func firstYearClaim(claims map[string][]claim, property string) *int {
	for _, cl := range claims[property] {
		var t struct {
			Time string `json:"time"`
		}
		if err := json.Unmarshal(cl.Mainsnak.Datavalue.Value, &t); err != nil {
			continue
		}
		// Wikidata time format: +1571-12-27T00:00:00Z
		s := strings.TrimPrefix(t.Time, "+")
		if i := strings.Index(s, "-"); i > 0 {
			if year, err := strconv.Atoi(s[:i]); err == nil {
				return &year
			}
		}
	}
	return nil
}

func firstCoordinateClaim(claims map[string][]claim, property string) (float64, float64, bool) {
	for _, cl := range claims[property] {
		var c struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		}
		if err := json.Unmarshal(cl.Mainsnak.Datavalue.Value, &c); err == nil {
			return c.Latitude, c.Longitude, true
		}
	}
	return 0, 0, false
}

func (c *WikidataClient) getJSON(ctx context.Context, endpoint string, dest any) error {
	raw, err := c.getRaw(ctx, endpoint)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *WikidataClient) getRaw(ctx context.Context, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, endpoint); err != nil {
		return nil, err
	}

	return retry.DoWithResult(ctx, retry.DefaultConfig(), func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "folio-engine/1.0")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: status %d", endpoint, resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return body, nil
	})
}
