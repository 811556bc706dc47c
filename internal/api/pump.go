package api

import (
	"context"
	"log/slog"
	"time"

	"boatpilot/pkg/geo"
	"boatpilot/pkg/store"
)

// SessionSource is the read side of the supervisor the pump samples.
type SessionSource interface {
	Sample(ctx context.Context) (store.Sample, error)
	Home() (geo.Point, bool)
	Fault() error
}

// TelemetryPump samples the session on a fixed interval and feeds the handler.
type TelemetryPump struct {
	src      SessionSource
	sink     *TelemetryHandler
	interval time.Duration
}

// NewTelemetryPump creates a pump.
func NewTelemetryPump(src SessionSource, sink *TelemetryHandler, interval time.Duration) *TelemetryPump {
	if interval <= 0 {
		interval = time.Second
	}
	return &TelemetryPump{src: src, sink: sink, interval: interval}
}

// Run samples until ctx is cancelled.
func (p *TelemetryPump) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *TelemetryPump) tick(ctx context.Context) {
	home, ok := p.src.Home()
	p.sink.UpdateStatus(home, ok, p.src.Fault())

	smp, err := p.src.Sample(ctx)
	if err != nil {
		// Expected until the link handshake completes
		slog.Debug("Telemetry sample unavailable", "error", err)
		return
	}
	p.sink.Update(smp)
}
