// Package catalog holds an in-memory snapshot of the Space-Track satellite
// catalog and answers exact and fuzzy lookups against it.
//
// The catalog is rebuilt wholesale: Refresh constructs a complete new
// snapshot before publishing it with a single atomic pointer swap, so
// concurrent readers always observe either the old or the new catalog in
// full, never a mixture.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/TilBlechschmidt/gpcache/internal/metrics"
)

// satcatPath is the Space-Track query for the full catalog, ordered by
// catalog number ascending.
const satcatPath = "basicspacedata/query/class/satcat/orderby/NORAD_CAT_ID%20asc/emptyresult/show"

// Querier issues authenticated queries against the upstream service.
type Querier interface {
	Query(ctx context.Context, path string) ([]byte, error)
}

// Config holds search tuning parameters.
type Config struct {
	ResultLimit    int // maximum search results (default 20)
	MinQueryLength int // shorter queries return nothing (default 4)
}

const (
	DefaultResultLimit    = 20
	DefaultMinQueryLength = 4
)

// snapshot is an immutable, fully built view of the catalog.
type snapshot struct {
	objects   map[int]*Satellite
	fetchedAt time.Time
}

// Catalog is a searchable snapshot of all tracked objects.
// Safe for concurrent use; readers are never blocked by a refresh.
type Catalog struct {
	client Querier
	cfg    Config
	logger *slog.Logger

	snap atomic.Pointer[snapshot]
}

// New creates an empty Catalog. It serves no results until the first
// successful Refresh.
func New(client Querier, cfg Config, logger *slog.Logger) *Catalog {
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = DefaultResultLimit
	}
	if cfg.MinQueryLength <= 0 {
		cfg.MinQueryLength = DefaultMinQueryLength
	}
	return &Catalog{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Refresh fetches the complete catalog and atomically replaces the current
// snapshot. On any failure the previous snapshot keeps serving.
func (c *Catalog) Refresh(ctx context.Context) error {
	start := time.Now()
	c.logger.Info("refreshing satellite catalog")

	body, err := c.client.Query(ctx, satcatPath)
	if err != nil {
		return fmt.Errorf("fetching catalog: %w", err)
	}

	objects, err := parseCatalog(body, c.logger)
	if err != nil {
		return err
	}

	c.snap.Store(&snapshot{objects: objects, fetchedAt: time.Now()})

	duration := time.Since(start)
	metrics.SetCatalogSize(len(objects))
	metrics.ObserveCatalogRefreshDuration(duration)
	c.logger.Info("satellite catalog refreshed",
		"count", len(objects),
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

// Ready reports whether the catalog holds a snapshot.
func (c *Catalog) Ready() bool {
	return c.snap.Load() != nil
}

// Len returns the number of objects in the current snapshot.
func (c *Catalog) Len() int {
	snap := c.snap.Load()
	if snap == nil {
		return 0
	}
	return len(snap.objects)
}

// AgeSeconds returns the age of the current snapshot in seconds, or -1
// when no snapshot has been published yet.
func (c *Catalog) AgeSeconds() float64 {
	snap := c.snap.Load()
	if snap == nil {
		return -1
	}
	return time.Since(snap.fetchedAt).Seconds()
}

// parseCatalog decodes the satcat response into a map keyed by catalog
// number. Records that cannot be decoded are skipped with a warning; a
// malformed document fails the whole parse.
func parseCatalog(data []byte, logger *slog.Logger) (map[int]*Satellite, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing catalog response: %w", err)
	}

	objects := make(map[int]*Satellite, len(raw))
	for i, msg := range raw {
		var rec catalogRecord
		if err := json.Unmarshal(msg, &rec); err != nil {
			logger.Warn("skipping malformed catalog record", "index", i, "error", err)
			continue
		}
		if rec.NoradID == nil {
			logger.Warn("skipping catalog record without NORAD_CAT_ID", "index", i, "name", rec.ObjectName)
			continue
		}

		typ, known := parseObjectType(rec.ObjectType)
		if !known {
			logger.Warn("unrecognized object type, mapping to UNKNOWN",
				"object_type", rec.ObjectType,
				"norad_id", int(*rec.NoradID),
			)
		}

		sat := &Satellite{
			NoradID: int(*rec.NoradID),
			Type:    typ,
			Name:    rec.ObjectName,
			Launch:  rec.Launch,
			Decay:   rec.Decay,
		}
		if rec.Period != nil && rec.Inclination != nil && rec.Apogee != nil && rec.Perigee != nil {
			sat.Orbit = &OrbitData{
				Period:      float64(*rec.Period),
				Inclination: float64(*rec.Inclination),
				Apogee:      float64(*rec.Apogee),
				Perigee:     float64(*rec.Perigee),
			}
		}
		objects[sat.NoradID] = sat
	}

	return objects, nil
}
