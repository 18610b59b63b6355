// Package discovery populates the node manager's address set, either
// from a static IPv6 list parsed at start-up or from periodic mDNS
// queries for the `_greybus._tcp.local` service. Answers are aggregated
// per query and handed to the filter as one set.
package discovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/apbridge/apbridged/internal/metrics"
)

// Filterer reconciles the node set against the most recent observation;
// implemented by *node.Manager.
type Filterer interface {
	Filter(active map[string]struct{})
}

// Resolver runs one service query and returns the IPv6 addresses that
// answered. A nil error with an empty result is a completed query that
// simply found nobody; a non-nil error is a resolver failure. The query
// itself paces the polling loop: Query is expected to block for the
// discovery interval while answers aggregate (the mDNS implementation
// blocks for its configured timeout).
type Resolver interface {
	Query(ctx context.Context) ([]string, error)
}

// Discovery drives membership: one static seeding pass, then an optional
// mDNS polling loop.
type Discovery struct {
	log      *slog.Logger
	filterer Filterer
	resolver Resolver
	clock    clockwork.Clock
	interval time.Duration
	static   []string
	metrics  *metrics.Discovery
}

// New constructs a Discovery. resolver may be nil to disable mDNS (static
// list only); static may be empty to rely on mDNS alone.
func New(log *slog.Logger, filterer Filterer, resolver Resolver, clock clockwork.Clock, interval time.Duration, static []string, m *metrics.Discovery) *Discovery {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Discovery{
		log:      log,
		filterer: filterer,
		resolver: resolver,
		clock:    clock,
		interval: interval,
		static:   static,
		metrics:  m,
	}
}

// Run seeds the static node set, then polls mDNS until ctx is canceled.
// Completed queries (including empty ones) feed the filter and re-arm
// immediately: the query blocking for the discovery interval is what
// paces the loop. Resolver failures skip the filter and do not re-arm
// until at least one full interval has passed (jittered, backing off
// further on repeated failures).
func (d *Discovery) Run(ctx context.Context) error {
	if len(d.static) > 0 {
		set := make(map[string]struct{}, len(d.static))
		for _, addr := range d.static {
			set[addr] = struct{}{}
		}
		d.log.Info("discovery: seeding static nodes", "count", len(set))
		d.filterer.Filter(set)
	}

	if d.resolver == nil {
		<-ctx.Done()
		return nil
	}

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = d.interval
	retry.MaxInterval = 4 * d.interval
	retry.MaxElapsedTime = 0

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if d.metrics != nil {
			d.metrics.QueriesRun.Inc()
		}
		addrs, err := d.resolver.Query(ctx)
		if err != nil {
			wait := retry.NextBackOff()
			if wait < d.interval {
				// Jitter can pull the wait below one interval; a failed
				// query never re-arms sooner than that.
				wait = d.interval
			}
			d.log.Warn("discovery: query failed", "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return nil
			case <-d.clock.After(wait):
			}
			continue
		}
		retry.Reset()

		set := make(map[string]struct{}, len(addrs))
		for _, addr := range addrs {
			set[addr] = struct{}{}
		}
		d.log.Debug("discovery: query complete", "nodes", len(set))
		d.filterer.Filter(set)
	}
}
