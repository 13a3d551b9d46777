package network

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Round-trip thresholds for the effective connection type.
const (
	slow2GLatency = 2000 * time.Millisecond
	twoGLatency   = 1400 * time.Millisecond
	threeGLatency = 270 * time.Millisecond
)

type MonitorConfig struct {
	ProbeURL     string
	Interval     time.Duration
	ProbeTimeout time.Duration
}

// Monitor probes a lightweight backend path and feeds the gate. Any HTTP
// response, whatever its status, counts as reachable; a probe also wakes a
// backend that scales to zero.
type Monitor struct {
	gate     *Gate
	client   *http.Client
	cfg      MonitorConfig
	onSignal func(Signal)
}

func NewMonitor(gate *Gate, cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	return &Monitor{
		gate:   gate,
		client: &http.Client{},
		cfg:    cfg,
	}
}

// WithSignalHook registers fn to receive every probe result.
func (m *Monitor) WithSignalHook(fn func(Signal)) *Monitor {
	m.onSignal = fn
	return m
}

// Probe issues one request, updates the gate and returns the observation.
// A cancelled ctx leaves the gate untouched.
func (m *Monitor) Probe(ctx context.Context) Signal {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	started := time.Now()
	sig := Signal{ObservedAt: started}

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, m.cfg.ProbeURL, nil)
	if err != nil {
		slog.Error("network_probe_invalid_url", "url", m.cfg.ProbeURL, "error", err)
		return m.gate.Signal()
	}
	resp, err := m.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return m.gate.Signal()
		}
		slog.Warn("network_probe_failed", "url", m.cfg.ProbeURL, "error", err)
		m.publish(sig)
		return sig
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()

	sig.Online = true
	sig.Latency = time.Since(started)
	sig.EffectiveType = ClassifyLatency(sig.Latency)
	slog.Debug("network_probe", "status", resp.StatusCode, "latency_ms", sig.Latency.Milliseconds(), "effective_type", sig.EffectiveType)
	m.publish(sig)
	return sig
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

func (m *Monitor) publish(sig Signal) {
	m.gate.Update(sig)
	if m.onSignal != nil {
		m.onSignal(sig)
	}
}

func ClassifyLatency(latency time.Duration) string {
	switch {
	case latency >= slow2GLatency:
		return EffectiveSlow2G
	case latency >= twoGLatency:
		return Effective2G
	case latency >= threeGLatency:
		return Effective3G
	default:
		return Effective4G
	}
}
