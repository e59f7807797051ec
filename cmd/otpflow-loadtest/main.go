package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/otpflow"
	"github.com/MrEthical07/otpflow/codestore"
	"github.com/MrEthical07/otpflow/internal/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type identityState struct {
	email string
	mu    sync.Mutex
}

func main() {
	var (
		identities  = flag.Int("identities", 10000, "number of identities to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "code store operations per phase (generate + validate)")
		flows       = flag.Int("flows", 5000, "full controller login flows")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "", "code key prefix; defaults to OTP_REDIS_PREFIX")
	)
	flag.Parse()

	if *identities <= 0 || *concurrency <= 0 || *ops <= 0 || *flows < 0 {
		fmt.Fprintln(os.Stderr, "identities, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	flowCfg, err := cfg.Flow()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *prefix != "" {
		flowCfg.OTP.RedisPrefix = *prefix
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = cfg.RedisAddr
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	policy := codestore.Policy{
		Digits:      flowCfg.OTP.Digits,
		TTL:         flowCfg.OTP.TTL,
		MaxAttempts: flowCfg.OTP.MaxAttempts,
	}
	store := codestore.NewRedisStore(client, flowCfg.OTP.RedisPrefix, policy)

	states := make([]identityState, *identities)
	fmt.Printf("seeding %d identities...\n", *identities)
	startSeed := time.Now()
	for i := range states {
		states[i].email = fmt.Sprintf("user-%d@loadtest.local", i)
		if _, err := store.Generate(ctx, states[i].email); err != nil {
			fmt.Fprintf(os.Stderr, "generate failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	generateStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand, _ int) (time.Duration, error) {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		defer state.mu.Unlock()

		t0 := time.Now()
		_, err := store.Generate(ctx, state.email)
		return time.Since(t0), err
	})

	validateStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand, _ int) (time.Duration, error) {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		defer state.mu.Unlock()

		code, ok, err := store.CurrentCode(ctx, state.email)
		if err != nil {
			return 0, err
		}
		if !ok {
			if code, err = store.Generate(ctx, state.email); err != nil {
				return 0, err
			}
		}
		t0 := time.Now()
		result, err := store.Validate(ctx, state.email, code)
		d := time.Since(t0)
		if err != nil {
			return d, err
		}
		if result != codestore.ResultSuccess {
			return d, fmt.Errorf("validate returned %v", result)
		}
		return d, nil
	})

	shared := otpflow.NewMetrics(otpflow.MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	var flowStats phaseStats
	if *flows > 0 {
		flowStats = runPhase(*flows, *concurrency, 3571, func(_ *rand.Rand, i int) (time.Duration, error) {
			t0 := time.Now()
			err := runFlow(ctx, client, flowCfg, shared, fmt.Sprintf("flow-%d@loadtest.local", i))
			return time.Since(t0), err
		})
	}

	fmt.Println("---- results ----")
	printStats("generate", generateStats)
	printStats("validate", validateStats)
	if *flows > 0 {
		printStats("flow", flowStats)
		printCounters(shared.Snapshot())
	}
}

var errUnexpectedState = errors.New("unexpected flow state")

// runFlow drives one controller through send, verify and logout.
func runFlow(ctx context.Context, client redis.UniversalClient, cfg otpflow.Config, metrics *otpflow.Metrics, email string) error {
	ctrl, err := otpflow.New().
		WithConfig(cfg).
		WithRedis(client).
		WithMetrics(metrics).
		WithTelemetrySink(otpflow.NoOpSink{}).
		Build()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if err := ctrl.HandleIntent(ctx, otpflow.SendOTP{Identity: email}); err != nil {
		return err
	}
	sent, ok := ctrl.State().(otpflow.OTPSent)
	if !ok {
		return fmt.Errorf("%w: %s after send", errUnexpectedState, otpflow.StateName(ctrl.State()))
	}
	if err := ctrl.HandleIntent(ctx, otpflow.VerifyOTP{Code: sent.Code}); err != nil {
		return err
	}
	if _, ok := ctrl.State().(otpflow.SessionActive); !ok {
		return fmt.Errorf("%w: %s after verify", errUnexpectedState, otpflow.StateName(ctrl.State()))
	}
	return ctrl.HandleIntent(ctx, otpflow.Logout{})
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) (time.Duration, error)) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				d, err := op(r, i)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func printCounters(snap otpflow.MetricsSnapshot) {
	fmt.Printf("flow counters: sent=%d verified=%d sessions_ended=%d store_failures=%d\n",
		snap.Counters[otpflow.MetricOTPSent],
		snap.Counters[otpflow.MetricOTPVerified],
		snap.Counters[otpflow.MetricSessionEnded],
		snap.Counters[otpflow.MetricCodeStoreFailure],
	)
}
