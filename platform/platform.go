// Package platform provides the monotonic timer, RNG and fatal-error sink
// that the redundancy and safety/retransmission layers treat as an external
// collaborator.
package platform

import (
	"math/rand"
	"sync"
	"time"

	"github.com/sbb-digital/go-rasta/logx"
	"github.com/sbb-digital/go-rasta/raerr"
)

// Adapter is the platform contract consumed by every other package in this
// module. Production code gets Default; tests substitute a fake with a
// controllable clock and RNG.
type Adapter interface {
	// TimerValueMs returns a monotonically increasing millisecond counter.
	TimerValueMs() uint32
	// TimerGranularityMs reports the resolution of TimerValueMs.
	TimerGranularityMs() uint32
	// RandomUint32 returns a pseudo-random 32 bit value.
	RandomUint32() uint32
	// FatalError routes a fatal raerr.Code to the configured sink. It is
	// expected never to return; callers that receive control back anyway
	// must treat the current operation as aborted.
	FatalError(code raerr.Code, detail string)
}

// Default is the reference Adapter: a monotonic clock sampled from
// time.Now(), a seeded math/rand source, and a fatal sink that logs then
// panics.
type Default struct {
	start time.Time
	log   logx.Logger

	mu   sync.Mutex
	rng  *rand.Rand
}

// NewDefault constructs a Default platform adapter. log may be nil, in
// which case logx.NewDefaultLogger() is used.
func NewDefault(log logx.Logger) *Default {
	if log == nil {
		log = logx.NewDefaultLogger()
	}
	return &Default{
		start: time.Now(),
		log:   log,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// TimerValueMs implements Adapter.
func (d *Default) TimerValueMs() uint32 {
	return uint32(time.Since(d.start).Milliseconds())
}

// TimerGranularityMs implements Adapter. Go's runtime timer resolution is
// sub-millisecond on every platform this module targets; 1ms is the
// coarsest granularity CheckTimings needs to reason about.
func (d *Default) TimerGranularityMs() uint32 {
	return 1
}

// RandomUint32 implements Adapter.
func (d *Default) RandomUint32() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Uint32()
}

// FatalError implements Adapter. It logs the code and detail, then panics
// so that a caller who (against the contract) recovers still cannot
// silently continue with inconsistent core state.
func (d *Default) FatalError(code raerr.Code, detail string) {
	d.log.Error("fatal error: %s: %s", code, detail)
	panic(raerr.New(code, detail))
}
