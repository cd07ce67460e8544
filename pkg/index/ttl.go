package index

import (
	"context"
	"time"

	"github.com/cuemby/solidb/pkg/log"
	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/types"
)

// TTL expires documents a fixed duration after the value of a configured
// field (spec §4.3 "ttl: background sweep"). It does not intercept reads:
// a background goroutine periodically deletes expired documents outright.
type TTL struct {
	engine            *storage.Engine
	database          string
	collection        string
	field             string
	expireAfterSeconds int64
	docs              *storage.Documents
}

func NewTTL(e *storage.Engine, docs *storage.Documents, database, collection, field string, expireAfterSeconds int64) *TTL {
	return &TTL{engine: e, docs: docs, database: database, collection: collection, field: field, expireAfterSeconds: expireAfterSeconds}
}

// OnInsert, OnUpdate and OnDelete are no-ops: the TTL index has no
// separate bucket to maintain, it reads the document's own field during
// each sweep.
func (t *TTL) OnInsert(*types.Document) error      { return nil }
func (t *TTL) OnUpdate(*types.Document, *types.Document) error { return nil }
func (t *TTL) OnDelete(*types.Document) error      { return nil }

// Sweep deletes every document whose field value plus expireAfterSeconds
// has passed now, returning how many were removed.
func (t *TTL) Sweep(now int64) (int, error) {
	var expired []string
	err := t.docs.Scan(t.collection, func(doc *types.Document) error {
		v, ok := fieldValue(doc, t.field)
		if !ok || !v.IsNumber() {
			return nil
		}
		if int64(v.AsFloat())+t.expireAfterSeconds <= now {
			expired = append(expired, doc.Key())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, key := range expired {
		if err := t.docs.Delete(t.collection, key, ""); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

// Run sweeps on a fixed interval until ctx is cancelled, logging each
// sweep's result (spec §4.3: TTL expiry runs as a background process, not
// inline with reads).
func (t *TTL) Run(ctx context.Context, interval time.Duration) {
	logger := log.WithCollection(t.collection)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			n, err := t.Sweep(tick.Unix())
			if err != nil {
				logger.Error().Err(err).Msg("ttl sweep failed")
				continue
			}
			if n > 0 {
				logger.Debug().Int("expired", n).Msg("ttl sweep")
			}
		}
	}
}
