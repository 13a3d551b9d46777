package network

import (
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kirillkom/docverify/internal/core/domain"
)

const (
	EffectiveSlow2G = "slow-2g"
	Effective2G     = "2g"
	Effective3G     = "3g"
	Effective4G     = "4g"
)

// Signal is the latest connectivity observation.
type Signal struct {
	Online        bool
	EffectiveType string
	Latency       time.Duration
	ObservedAt    time.Time
}

// Gate answers "should we transmit now" from the last signal without doing
// any I/O. It is safe for concurrent use.
type Gate struct {
	signal atomic.Pointer[Signal]
}

// NewGate starts optimistic: with no observation yet, transmission is allowed.
func NewGate() *Gate {
	g := &Gate{}
	g.signal.Store(&Signal{Online: true})
	return g
}

func (g *Gate) Update(sig Signal) {
	sig.EffectiveType = strings.ToLower(strings.TrimSpace(sig.EffectiveType))
	g.signal.Store(&sig)
}

func (g *Gate) Signal() Signal {
	return *g.signal.Load()
}

func (g *Gate) Check() domain.NetworkAdvice {
	sig := g.Signal()
	advice := domain.NetworkAdvice{
		Advisable:     true,
		Online:        sig.Online,
		EffectiveType: sig.EffectiveType,
	}
	if !sig.Online {
		advice.Advisable = false
		advice.Reason = "offline"
		return advice
	}
	if IsSlowLink(sig.EffectiveType) {
		advice.SlowLink = true
		advice.Reason = "slow link, upload may take longer"
		slog.Warn("network_slow_link", "effective_type", sig.EffectiveType, "latency_ms", sig.Latency.Milliseconds())
	}
	return advice
}

func (g *Gate) IsTransmissionAdvisable() bool {
	return g.Check().Advisable
}

func IsSlowLink(effectiveType string) bool {
	switch strings.ToLower(strings.TrimSpace(effectiveType)) {
	case EffectiveSlow2G, Effective2G:
		return true
	default:
		return false
	}
}
