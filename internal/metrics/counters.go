// Package metrics exposes in-process reliability counters for dashboards.
package metrics

import "sync/atomic"

// Counters tracks pipeline health. All methods are safe for concurrent use.
type Counters struct {
	incoming          atomic.Int64
	delivered         atomic.Int64
	failed            atomic.Int64
	retried           atomic.Int64
	deadLettered      atomic.Int64
	unauthorized      atomic.Int64
	unknownCommand    atomic.Int64
	duplicatesSkipped atomic.Int64
	leasesReclaimed   atomic.Int64
	pending           atomic.Int64
}

func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) IncIncoming()          { c.incoming.Add(1) }
func (c *Counters) IncDelivered()         { c.delivered.Add(1) }
func (c *Counters) IncFailed()            { c.failed.Add(1) }
func (c *Counters) IncRetried()           { c.retried.Add(1) }
func (c *Counters) IncDeadLettered()      { c.deadLettered.Add(1) }
func (c *Counters) IncUnauthorized()      { c.unauthorized.Add(1) }
func (c *Counters) IncUnknownCommand()    { c.unknownCommand.Add(1) }
func (c *Counters) IncDuplicatesSkipped() { c.duplicatesSkipped.Add(1) }

func (c *Counters) AddLeasesReclaimed(n int) { c.leasesReclaimed.Add(int64(n)) }
func (c *Counters) SetPending(n int)         { c.pending.Store(int64(n)) }

// Snapshot returns a point-in-time copy of all counters.
func (c *Counters) Snapshot() map[string]int64 {
	return map[string]int64{
		"incoming":           c.incoming.Load(),
		"delivered":          c.delivered.Load(),
		"failed":             c.failed.Load(),
		"retried":            c.retried.Load(),
		"dead_lettered":      c.deadLettered.Load(),
		"unauthorized":       c.unauthorized.Load(),
		"unknown_command":    c.unknownCommand.Load(),
		"duplicates_skipped": c.duplicatesSkipped.Load(),
		"leases_reclaimed":   c.leasesReclaimed.Load(),
		"pending":            c.pending.Load(),
	}
}
