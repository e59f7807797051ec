package otpflow

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one counter or histogram.
type MetricID uint16

const (
	// MetricOTPSent counts codes issued by SendOTP.
	MetricOTPSent MetricID = iota
	// MetricOTPResent counts codes reissued by ResendOTP.
	MetricOTPResent
	// MetricOTPVerified counts successful verifications.
	MetricOTPVerified
	// MetricOTPVerificationFailed counts Incorrect and NotFound verifications.
	MetricOTPVerificationFailed
	// MetricOTPExpired counts codes that expired, whether seen by a verification or by the countdown.
	MetricOTPExpired
	// MetricOTPMaxAttemptsExceeded counts codes invalidated by the attempt limit.
	MetricOTPMaxAttemptsExceeded
	// MetricSessionStarted counts sessions that became active.
	MetricSessionStarted
	// MetricSessionEnded counts sessions ended by Logout.
	MetricSessionEnded
	// MetricIntentIgnored counts intents that were malformed or illegal in the current state.
	MetricIntentIgnored
	// MetricCodeStoreFailure counts code store infrastructure errors.
	MetricCodeStoreFailure
	// MetricValidateLatency is the code store Validate latency histogram.
	MetricValidateLatency
	metricIDCount
)

// LatencyBounds are the inclusive upper bounds of the validate-latency
// buckets. Observations above the last bound land in the overflow bucket.
var LatencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const (
	histBucketCount = len(LatencyBounds) + 1
	cacheLineSize   = 64
	errorKindSlots  = int(ErrorNotFound) + 1
)

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

func (p *paddedCounter) add(n uint64) { atomic.AddUint64(&p.value, n) }
func (p *paddedCounter) load() uint64 { return atomic.LoadUint64(&p.value) }

type latencyHistogram struct {
	buckets [histBucketCount]paddedCounter
	sumNs   paddedCounter
}

// Metrics records flow counters, OTPError counts keyed by ErrorKind and the
// code store Validate latency. All updates are atomic; a nil or disabled
// Metrics ignores them.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	errors        [errorKindSlots]paddedCounter
	latency       latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of all metrics. Histogram slices are
// per-bucket counts aligned with LatencyBounds plus a trailing overflow bucket.
type MetricsSnapshot struct {
	Counters     map[MetricID]uint64
	Errors       map[ErrorKind]uint64
	Histograms   map[MetricID][]uint64
	HistogramSum map[MetricID]time.Duration
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:     map[MetricID]uint64{},
		Errors:       map[ErrorKind]uint64{},
		Histograms:   map[MetricID][]uint64{},
		HistogramSum: map[MetricID]time.Duration{},
	}
}

// NewMetrics returns metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the validate-latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].add(1)
}

// IncError counts one published OTPError of the given kind.
func (m *Metrics) IncError(kind ErrorKind) {
	if !m.Enabled() || kind == 0 || int(kind) >= errorKindSlots {
		return
	}
	m.errors[kind].add(1)
}

// Observe records d against id. Only MetricValidateLatency has a histogram;
// other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricValidateLatency {
		return
	}
	if d < 0 {
		d = 0
	}
	m.latency.buckets[bucketIndex(d)].add(1)
	m.latency.sumNs.add(uint64(d))
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].load()
}

// ErrorCount returns how many OTPErrors of kind have been counted.
func (m *Metrics) ErrorCount(kind ErrorKind) uint64 {
	if m == nil || kind == 0 || int(kind) >= errorKindSlots {
		return 0
	}
	return m.errors[kind].load()
}

// Snapshot copies the current values. A disabled Metrics yields empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := emptySnapshot()
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = m.counters[id].load()
	}
	for k := ErrorIncorrect; int(k) < errorKindSlots; k++ {
		s.Errors[k] = m.errors[k].load()
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = m.latency.buckets[i].load()
		}
		s.Histograms[MetricValidateLatency] = buckets
		s.HistogramSum[MetricValidateLatency] = time.Duration(m.latency.sumNs.load())
	}

	return s
}

func bucketIndex(d time.Duration) int {
	for i, bound := range LatencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(LatencyBounds)
}
