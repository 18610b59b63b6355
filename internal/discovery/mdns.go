package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceName is the mDNS service remote nodes advertise.
const ServiceName = "_greybus._tcp"

// MDNSResolver issues one multicast PTR query per call and collects the
// IPv6 addresses from the AAAA records of the instances that answer.
type MDNSResolver struct {
	timeout time.Duration
}

// NewMDNSResolver returns a resolver whose queries give responders up to
// timeout to answer.
func NewMDNSResolver(timeout time.Duration) *MDNSResolver {
	return &MDNSResolver{timeout: timeout}
}

// Query runs one `_greybus._tcp.local` lookup. It returns whatever IPv6
// answers arrived before the timeout; an empty slice is a completed query
// with no responders, not an error.
func (r *MDNSResolver) Query(ctx context.Context) ([]string, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	collected := make(chan []string, 1)
	go func() {
		var addrs []string
		for e := range entries {
			if e.AddrV6 != nil {
				addrs = append(addrs, e.AddrV6.String())
			}
		}
		collected <- addrs
	}()

	params := &mdns.QueryParam{
		Service:     ServiceName,
		Domain:      "local",
		Timeout:     r.timeout,
		Entries:     entries,
		DisableIPv4: true,
	}
	err := mdns.Query(params)
	close(entries)
	addrs := <-collected
	if err != nil {
		return nil, fmt.Errorf("discovery: mdns query: %w", err)
	}
	return addrs, nil
}
