// Command gatewayd is the realtime voice gateway's server entrypoint: it
// loads configuration, wires the STT/LLM/TTS providers and tool broker,
// and serves the caller media-stream WebSocket plus a Prometheus
// /metrics endpoint. Grounded on the teacher's cmd/agent/main.go for the
// provider-selection and .env-loading idiom, reworked from a single
// local microphone session into an HTTP server accepting many
// concurrent calls.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lokutor-ai/voice-gateway/internal/config"
	"github.com/lokutor-ai/voice-gateway/internal/logging"
	"github.com/lokutor-ai/voice-gateway/pkg/gateway"
	"github.com/lokutor-ai/voice-gateway/pkg/metrics"
	"github.com/lokutor-ai/voice-gateway/pkg/providers/stt"
	"github.com/lokutor-ai/voice-gateway/pkg/providers/tts"
	"github.com/lokutor-ai/voice-gateway/pkg/session"
	"github.com/lokutor-ai/voice-gateway/pkg/tools"
	"github.com/lokutor-ai/voice-gateway/pkg/transport"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("note: no .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zapLogger, rawZap, err := logging.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer rawZap.Sync()

	promReg := prometheus.NewRegistry()
	metricsRegistry := metrics.NewRegistry(promReg)

	broker := tools.NewBroker(tools.DefaultTimeout, tools.NewNewsTool())

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		handleCall(w, r, cfg, zapLogger, metricsRegistry, broker)
	})
	// Serve /metrics on the call-handling mux too, so a deployment that
	// points cfg.Server.MetricsAddr at the same address as ListenAddr (or
	// leaves it unset) still gets scraped without running two listeners.
	if cfg.Server.MetricsAddr == "" || cfg.Server.MetricsAddr == cfg.Server.ListenAddr {
		mux.Handle("/metrics", metricsMux)
	}

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: mux,
	}

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" && cfg.Server.MetricsAddr != cfg.Server.ListenAddr {
		metricsSrv = &http.Server{
			Addr:    cfg.Server.MetricsAddr,
			Handler: metricsMux,
		}
		go func() {
			zapLogger.Info("metrics listening", "addr", cfg.Server.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
				zapLogger.Error("metrics server error", "error", err)
			}
		}()
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		zapLogger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			zapLogger.Error("graceful shutdown failed", "error", err)
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(ctx); err != nil {
				zapLogger.Error("metrics graceful shutdown failed", "error", err)
			}
		}
		close(idleConnsClosed)
	}()

	zapLogger.Info("gatewayd listening", "addr", cfg.Server.ListenAddr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		zapLogger.Error("server error", "error", err)
	}
	<-idleConnsClosed
}

// handleCall upgrades one incoming HTTP request to a media-stream
// WebSocket and drives it to completion. Every call gets its own STT/TTS
// client instances (both hold per-connection network state) and its own
// Gateway and Session.
func handleCall(w http.ResponseWriter, r *http.Request, cfg *config.Config, logger gateway.Logger, registry *metrics.Registry, broker *tools.Broker) {
	callID := uuid.NewString()

	sttClient := stt.NewDeepgramSTT(cfg.DeepgramConfig())
	llmClient := cfg.NewLLMProvider(broker.Schemas())
	ttsClient := tts.NewElevenLabsTTS(cfg.ElevenLabsConfig())

	sess := session.New(callID, session.Profile{}, session.Memory{}, cfg.GatewayConfig().ShortBufferMaxTurns)

	mt, err := transport.Accept(w, r, nil)
	if err != nil {
		log.Printf("accept %s: %v", callID, err)
		return
	}
	defer mt.Close()
	mt.SetLogger(logger)

	call := metrics.NewCall(callID, nil, registry)

	gw, err := gateway.New(callID, sess, sttClient, llmClient, ttsClient, broker, mt, cfg.GatewayConfig(), logger, call)
	if err != nil {
		log.Printf("new gateway %s: %v", callID, err)
		return
	}

	transcript, err := mt.Run(r.Context(), gw, gw.BuildGreeting())
	if err != nil {
		log.Printf("call %s ended with error: %v", callID, err)
		return
	}
	log.Printf("call %s ended, transcript length %d", callID, len(transcript))
}
