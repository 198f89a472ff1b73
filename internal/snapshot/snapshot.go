// Package snapshot provides a small debug dump of the last-fetched DR list,
// the generalized stand-in for the migrated-JSON marker files spec.md §6
// describes ("migrated JSON files are renamed *.migrated once ingested").
// This is diagnostics only: it is never read back by the pipeline and has
// no bearing on rating correctness.
package snapshot

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/dr-ratings/internal/ratings/drlist"
)

// Cache holds the most recently fetched DR list in memory so it can be
// dumped on request without re-fetching.
type Cache struct {
	mu      sync.Mutex
	records []drlist.Record
	fetched time.Time
	path    string
	log     zerolog.Logger
}

// New builds a Cache that dumps to path on request.
func New(path string, log zerolog.Logger) *Cache {
	return &Cache{path: path, log: log.With().Str("component", "snapshot_cache").Logger()}
}

// Set records the most recently fetched DR list.
func (c *Cache) Set(records []drlist.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = records
	c.fetched = time.Now()
}

type dump struct {
	FetchedAt time.Time        `msgpack:"fetched_at"`
	Records   []drlist.Record  `msgpack:"records"`
}

// Dump msgpack-encodes the current cache contents to disk for offline
// inspection.
func (c *Cache) Dump() error {
	c.mu.Lock()
	d := dump{FetchedAt: c.fetched, Records: c.records}
	c.mu.Unlock()

	payload, err := msgpack.Marshal(d)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.path, payload, 0o644); err != nil {
		return err
	}
	c.log.Info().Str("path", c.path).Int("records", len(d.Records)).Msg("wrote debug snapshot dump")
	return nil
}
