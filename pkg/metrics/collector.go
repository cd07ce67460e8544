package metrics

import (
	"time"

	"github.com/cuemby/solidb/pkg/cluster"
	"github.com/cuemby/solidb/pkg/storage"
)

// Collector periodically samples the catalog and cluster state into the
// gauges in metrics.go -- the counters and histograms are updated inline
// at the call sites that produce them (pkg/transport), matching how the
// teacher's scheduler records ContainersScheduled/SchedulingLatency at
// the point of work rather than through a collector.
type Collector struct {
	catalog    *storage.Catalog
	membership *cluster.Membership  // nil outside cluster mode
	shards     *cluster.ShardTables // nil outside cluster mode
	isLeader   func() bool          // nil outside cluster mode

	stopCh chan struct{}
}

// NewCollector builds a Collector. membership/shards/isLeader may be nil
// when this node isn't running in cluster mode, in which case the
// corresponding metrics are simply never updated.
func NewCollector(catalog *storage.Catalog, membership *cluster.Membership, shards *cluster.ShardTables, isLeader func() bool) *Collector {
	return &Collector{
		catalog:    catalog,
		membership: membership,
		shards:     shards,
		isLeader:   isLeader,
		stopCh:     make(chan struct{}),
	}
}

// Start begins periodic collection on a 15-second tick.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectCatalogMetrics()
	c.collectClusterMetrics()
}

func (c *Collector) collectCatalogMetrics() {
	dbs, err := c.catalog.ListDatabases()
	if err != nil {
		return
	}
	DatabasesTotal.Set(float64(len(dbs)))

	for _, db := range dbs {
		CollectionsTotal.WithLabelValues(db.Name).Set(float64(len(db.Collections)))
		for _, col := range db.Collections {
			if c.shards == nil {
				continue
			}
			table, ok, err := c.shards.Get(db.Name, col.Name)
			if err != nil || !ok {
				continue
			}
			ShardsTotal.WithLabelValues(db.Name, col.Name).Set(float64(len(table.Shards)))
		}
	}
}

func (c *Collector) collectClusterMetrics() {
	if c.isLeader != nil {
		if c.isLeader() {
			RaftLeader.Set(1)
		} else {
			RaftLeader.Set(0)
		}
	}
	if c.membership == nil {
		return
	}
	statusCounts := make(map[string]int)
	for _, m := range c.membership.Members() {
		statusCounts[string(m.Status)]++
	}
	for status, count := range statusCounts {
		NodesTotal.WithLabelValues(status).Set(float64(count))
	}
}
