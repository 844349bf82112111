// Command glyphmeshd runs the glyphmesh coordination server: shared
// vocabulary encode/decode, message relay, derived knowledge indices, and
// the governance engine by which agents extend the vocabulary.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/glyphmesh/glyphmesh/broadcast"
	"github.com/glyphmesh/glyphmesh/config"
	"github.com/glyphmesh/glyphmesh/ingress"
	"github.com/glyphmesh/glyphmesh/native/governance"
	"github.com/glyphmesh/glyphmesh/native/identity"
	"github.com/glyphmesh/glyphmesh/native/knowledge"
	"github.com/glyphmesh/glyphmesh/native/vocabulary"
	"github.com/glyphmesh/glyphmesh/observability"
	"github.com/glyphmesh/glyphmesh/observability/logging"
	telemetry "github.com/glyphmesh/glyphmesh/observability/otel"
	"github.com/glyphmesh/glyphmesh/store"
)

func nowMillis() int64 { return time.Now().UnixMilli() }

func main() {
	env := strings.TrimSpace(os.Getenv("GLYPHMESH_ENV"))
	logging.Setup("glyphmeshd", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "glyphmeshd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfgPath := strings.TrimSpace(os.Getenv("GLYPHMESH_CONFIG_PATH"))
	if cfgPath == "" {
		cfgPath = "./glyphmesh.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	db, err := store.Open(cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		log.Fatalf("store open error: %v", err)
	}

	ctx := context.Background()

	vocab := vocabulary.New(db)
	if err := vocab.LoadFromStore(ctx); err != nil {
		log.Fatalf("vocabulary load error: %v", err)
	}
	if err := vocab.LoadOverlay(ctx, cfg.OverlayPath, nowMillis()); err != nil {
		log.Fatalf("vocabulary overlay error: %v", err)
	}

	kn := knowledge.New(db, knowledge.Config{
		WindowMs:        cfg.WindowMs,
		SeqPromoteCount: cfg.SeqPromoteCount,
		SeqPromotePairs: cfg.SeqPromotePairs,
		PerPairCap:      1024,
	})

	var seqCache *knowledge.SequenceCache
	if cfg.CachePath != "" {
		seqCache, err = knowledge.OpenSequenceCache(cfg.CachePath)
		if err != nil {
			log.Printf("sequence cache unavailable, falling back to full replay: %v", err)
			seqCache = nil
		}
	}
	if seqCache != nil {
		if err := seqCache.LoadInto(kn); err != nil {
			log.Printf("sequence cache warm-start failed, falling back to full replay: %v", err)
		}
	}
	if err := kn.Replay(ctx); err != nil {
		log.Fatalf("knowledge replay error: %v", err)
	}

	ident := identity.New(db, nil, nil, nowMillis)

	hub := broadcast.New(broadcast.DefaultConfig(), observability.Mesh(), nowMillis)

	govCfg := governance.Config{
		CompoundThreshold:  cfg.CompoundThreshold,
		BaseThreshold:      cfg.BaseThreshold,
		RejectionThreshold: cfg.RejectionThreshold,
		CompoundExpiryMs:   cfg.CompoundExpiryMs,
		BaseExpiryMs:       cfg.BaseExpiryMs,
		CompoundMinVoteMs:  cfg.CompoundMinVoteMs,
		BaseMinVoteMs:      cfg.BaseMinVoteMs,
	}
	gov := governance.New(db, vocab, ident, hub, govCfg, nowMillis)

	ingressCfg := ingress.Config{
		AdminTokenSecret: cfg.AdminTokenSecret,
		AgoraMaxFieldLen: cfg.AgoraMaxFieldLen,
		RelayDeadlineMs:  cfg.RelayDeadlineMs,
		SuggestionCount:  3,
		MaxBodyBytes:     1 << 20,
		SendRatePerSec:   cfg.SendRatePerSec,
		SendBurst:        cfg.SendBurst,
	}
	srv := ingress.New(vocab, kn, ident, gov, hub, db, ingressCfg, nowMillis)

	stop := make(chan struct{})
	go runExpireSweep(ctx, gov, seqCache, kn, stop)
	go srv.StartRateLimiterCleanup(5*time.Minute, stop)
	defer close(stop)

	handler := otelhttp.NewHandler(srv.Handler(), "glyphmeshd")

	log.Printf("starting glyphmeshd on %s", cfg.ListenAddress)
	if err := http.ListenAndServe(cfg.ListenAddress, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// runExpireSweep sweeps expirable proposals at spec.md §5's one-minute
// cadence and periodically checkpoints the sequence-detector warm-start
// cache. Both are best-effort: failures are logged, never fatal.
func runExpireSweep(ctx context.Context, gov *governance.Engine, cache *knowledge.SequenceCache, kn *knowledge.Knowledge, stop <-chan struct{}) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := gov.ExpireSweep(ctx); err != nil {
				log.Printf("expire sweep error: %v", err)
			}
			if cache != nil {
				if err := cache.Save(kn); err != nil {
					log.Printf("sequence cache checkpoint error: %v", err)
				}
			}
		}
	}
}
