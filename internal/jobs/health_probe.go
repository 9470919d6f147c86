package jobs

import (
	"context"
	"time"

	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("rollbook.jobs")

type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// StatusSink receives the outcome of every probe.
type StatusSink interface {
	SetServing(service string, serving bool)
}

type HealthProbe struct {
	Targets  map[string]Pinger
	Sink     StatusSink
	Interval time.Duration
	Timeout  time.Duration

	last map[string]bool
}

// StartHealthProbe probes every target once and then on each tick until ctx
// is done.
func StartHealthProbe(ctx context.Context, probe *HealthProbe) {
	interval := probe.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	probe.RunOnce(ctx)

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce pings every target and reports the results. Changes in
// reachability are logged.
func (p *HealthProbe) RunOnce(ctx context.Context) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if p.last == nil {
		p.last = make(map[string]bool, len(p.Targets))
	}
	for service, target := range p.Targets {
		tickCtx, cancel := context.WithTimeout(ctx, timeout)
		err := target.Ping(tickCtx)
		cancel()

		serving := err == nil
		if was, seen := p.last[service]; !seen || was != serving {
			if serving {
				logger.Infof("%s reachable", service)
			} else {
				logger.Warningf("%s unreachable: %v", service, err)
			}
		}
		p.last[service] = serving
		p.Sink.SetServing(service, serving)
	}
}
