// Command bench runs a synthetic read/save/invalidate workload against a
// Store over the in-memory backend and exposes optional pprof/Prometheus
// endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/doccache/backend/bunstore"
	"github.com/IvanBrykalov/doccache/backend/memory"
	pmet "github.com/IvanBrykalov/doccache/metrics/prom"
	"github.com/IvanBrykalov/doccache/store"
)

func main() {
	// ---- Flags ----
	var (
		entityCap = flag.Int("cap", 10_000, "entity cache capacity (documents)")
		existCap  = flag.Int("exist_cap", 0, "existence cache capacity (0 = 10*cap)")
		shards    = flag.Int("shards", 0, "number of shards per map (0=auto)")
		backendFl = flag.String("backend", "memory", "backing store: memory | sqlite")
		latency   = flag.Duration("latency", 2*time.Millisecond, "simulated fetch latency (memory backend)")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		savePct  = flag.Int("saves", 2, "save percentage [0..100]")
		invalPct = flag.Int("invalidations", 1, "invalidate percentage [0..100]")

		keys  = flag.Int("keys", 100_000, "number of documents")
		langs = flag.Int("langs", 2, "translations per document (plus the default version)")
		zipfS = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	logger := newLogger(*verbose)
	defer func() { _ = logger.Sync() }()

	if err := run(logger, config{
		entityCap: *entityCap, existCap: *existCap, shards: *shards,
		backend: *backendFl, latency: *latency,
		workers: *workers, duration: *duration, savePct: *savePct, invalPct: *invalPct,
		keys: *keys, langs: *langs, zipfS: *zipfS, zipfV: *zipfV, seed: *seed,
		pprofAddr: *pprofAddr, metricsAddr: *metricsAddr,
	}); err != nil {
		logger.Error("bench failed", zap.Error(err))
		os.Exit(1)
	}
}

type config struct {
	entityCap, existCap, shards int
	backend                     string
	latency                     time.Duration
	workers                     int
	duration                    time.Duration
	savePct, invalPct           int
	keys, langs                 int
	zipfS, zipfV                float64
	seed                        int64
	pprofAddr, metricsAddr      string
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

var languages = []string{"de", "fr", "es", "it", "ja", "pt"}

func run(logger *zap.Logger, cfg config) error {
	if cfg.keys <= 0 {
		return errors.New("keys must be > 0")
	}
	cfg.langs = max(0, min(cfg.langs, len(languages)))
	ctx := context.Background()

	// ---- pprof server (on DefaultServeMux) ----
	if cfg.pprofAddr != "" {
		go func() {
			logger.Info("pprof: serving", zap.String("addr", cfg.pprofAddr))
			logger.Warn("pprof stopped", zap.Error(http.ListenAndServe(cfg.pprofAddr, nil)))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "doccache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Info("metrics: serving", zap.String("addr", cfg.metricsAddr))
		logger.Warn("metrics stopped", zap.Error(http.ListenAndServe(cfg.metricsAddr, nil)))
	}()

	// ---- Backing store ----
	var backing store.BackingStore
	switch cfg.backend {
	case "memory":
		backing = memory.New(memory.WithLatency(cfg.latency))
	case "sqlite":
		b, err := bunstore.Open(ctx, "file:doccache_bench?mode=memory&cache=shared")
		if err != nil {
			return err
		}
		defer b.Close()
		backing = b
	default:
		return fmt.Errorf("unknown backend: %q (use memory or sqlite)", cfg.backend)
	}

	// ---- Seed documents ----
	for i := 0; i < cfg.keys; i++ {
		ref := refOf(i)
		if err := backing.Write(ctx, &store.Document{Ref: ref, DefaultLanguage: "en", Title: ref.ID}); err != nil {
			return err
		}
		for _, l := range languages[:cfg.langs] {
			if err := backing.Write(ctx, &store.Document{Ref: ref, Language: l, DefaultLanguage: "en", Title: ref.ID + "/" + l}); err != nil {
				return err
			}
		}
	}

	// ---- Build store ----
	opts := store.DefaultOptions()
	opts.EntityCapacity = cfg.entityCap
	opts.ExistenceCapacity = cfg.existCap
	if opts.ExistenceCapacity == 0 {
		opts.ExistenceCapacity = 10 * cfg.entityCap
	}
	opts.Shards = cfg.shards
	opts.Logger = logger
	opts.Diagnostics = metrics
	s, err := store.New(backing, opts)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	// ---- Load generation ----
	workersN := cfg.workers
	if workersN <= 0 {
		workersN = 1
	}
	var loads, saves, invalidations, notFound atomic.Uint64
	runCtx, cancel := context.WithTimeout(ctx, cfg.duration)
	defer cancel()

	start := time.Now()
	g, gctx := errgroup.WithContext(runCtx)
	for w := 0; w < workersN; w++ {
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			r := rand.New(rand.NewSource(cfg.seed + int64(w)*9973))
			zipf := rand.NewZipf(r, cfg.zipfS, cfg.zipfV, uint64(cfg.keys-1))
			pickLang := func() string {
				n := r.Intn(cfg.langs + 2) // default, explicit default, translations
				switch {
				case n == 0:
					return ""
				case n == 1:
					return "en"
				default:
					return languages[n-2]
				}
			}

			for gctx.Err() == nil {
				ref, lang := refOf(int(zipf.Uint64())), pickLang()
				switch p := r.Intn(100); {
				case p < cfg.invalPct:
					invalidations.Add(1)
					s.Invalidate(ref, lang)
				case p < cfg.invalPct+cfg.savePct:
					saves.Add(1)
					doc, found, err := s.Load(gctx, ref, lang)
					if err != nil || !found {
						continue
					}
					edited := doc.Clone()
					edited.Version++
					edited.UpdatedAt = time.Now()
					if err := s.Save(gctx, edited); err != nil && gctx.Err() == nil {
						return err
					}
				default:
					loads.Add(1)
					_, found, err := s.Load(gctx, ref, lang)
					if err != nil && gctx.Err() == nil {
						return err
					}
					if err == nil && !found {
						notFound.Add(1)
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	// ---- Report ----
	st := s.Stats()
	ops := loads.Load() + saves.Load() + invalidations.Load()
	hitRate := 0.0
	if total := st.Hits + st.Misses + st.NegativeHits; total > 0 {
		hitRate = float64(st.Hits+st.NegativeHits) / float64(total) * 100
	}

	fmt.Printf("backend=%s cap=%d exist_cap=%d shards=%d workers=%d keys=%d langs=%d dur=%v seed=%d\n",
		cfg.backend, opts.EntityCapacity, opts.ExistenceCapacity, cfg.shards, workersN, cfg.keys, cfg.langs, elapsed, cfg.seed)
	fmt.Printf("ops=%d (%.0f ops/s)  loads=%d  saves=%d  invalidations=%d  not-found=%d\n",
		ops, float64(ops)/elapsed.Seconds(), loads.Load(), saves.Load(), invalidations.Load(), notFound.Load())
	fmt.Printf("hits=%d  misses=%d  negative=%d  hit-rate=%.2f%%\n", st.Hits, st.Misses, st.NegativeHits, hitRate)
	fmt.Printf("fetches=%d  retries=%d  errors=%d  entities=%d  existence=%d  loaders=%d\n",
		st.Fetches, st.Retries, st.FetchErrors, st.Entities, st.Existence, st.Loaders)
	return nil
}

func refOf(i int) store.Ref {
	return store.Ref{Namespace: "bench", ID: "doc" + strconv.Itoa(i)}
}
