// Package connectivity answers "is the network reachable right now?" for the
// pipeline's fail-fast gate, caching the answer so that most requests do not
// pay for a probe.
package connectivity

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"
)

// ErrOffline reports that no connection is available.
var ErrOffline = errors.New("connectivity: no internet connection")

// Probe checks reachability. Implementations must be safe for concurrent
// use and should respect ctx.
type Probe interface {
	HasConnection(ctx context.Context) bool
}

// Watcher is implemented by probes that push state changes.
type Watcher interface {
	Changes() <-chan bool
}

// DefaultProbeHosts are dialled when no hosts are configured.
var DefaultProbeHosts = []string{"1.1.1.1:53", "8.8.8.8:53"}

// DialProbe considers the network up when a TCP connection to any of Hosts
// succeeds within Timeout.
type DialProbe struct {
	Hosts   []string
	Timeout time.Duration
	dialer  func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewDialProbe returns a probe over hosts, falling back to DefaultProbeHosts.
func NewDialProbe(hosts []string, timeout time.Duration) *DialProbe {
	if len(hosts) == 0 {
		hosts = DefaultProbeHosts
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	d := &net.Dialer{}
	return &DialProbe{Hosts: hosts, Timeout: timeout, dialer: d.DialContext}
}

// HasConnection dials the hosts in order and stops at the first success.
func (p *DialProbe) HasConnection(ctx context.Context) bool {
	for _, host := range p.Hosts {
		if ctx.Err() != nil {
			return false
		}
		dctx, cancel := context.WithTimeout(ctx, p.Timeout)
		conn, err := p.dialer(dctx, "tcp", host)
		cancel()
		if err == nil {
			_ = conn.Close()
			return true
		}
	}
	return false
}

// Static is a settable probe. It pushes every Set through Changes.
type Static struct {
	online  atomic.Bool
	calls   atomic.Int64
	changes chan bool
}

var (
	_ Probe   = (*Static)(nil)
	_ Watcher = (*Static)(nil)
)

// NewStatic returns a probe reporting online.
func NewStatic(online bool) *Static {
	s := &Static{changes: make(chan bool, 16)}
	s.online.Store(online)
	return s
}

func (s *Static) HasConnection(context.Context) bool {
	s.calls.Add(1)
	return s.online.Load()
}

// Set changes the reported state. Notifications are dropped when nobody
// is draining Changes.
func (s *Static) Set(online bool) {
	s.online.Store(online)
	select {
	case s.changes <- online:
	default:
	}
}

func (s *Static) Changes() <-chan bool { return s.changes }

// Calls is the number of HasConnection invocations.
func (s *Static) Calls() int64 { return s.calls.Load() }
