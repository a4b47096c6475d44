// Command gateway is the process entry point for the voice gateway: it
// wires a minimal emiago/sipgo SIP UA, a pion/rtp-framed RTP socket, the
// pkg/bridge audio core, and a pkg/voicelive remote-service client into
// a single runnable binary, per SPEC_FULL.md §6. Grounded on the
// teacher's cmd/test_sip/main.go (flag parsing, SIPDebug toggle,
// os/signal shutdown wait).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/arzzra/voicegateway/pkg/bridge"
	"github.com/arzzra/voicegateway/pkg/voicelive"
	"github.com/emiago/sipgo/sip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := parseFlags()

	logLevel := slog.LevelInfo
	if cfg.debug {
		logLevel = slog.LevelDebug
		sip.SIPDebug = true
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	vlConfig, err := voicelive.ConfigFromEnv()
	if err != nil {
		slog.Error("gateway: invalid voice-live configuration", "err", err)
		os.Exit(1)
	}

	sesCfg := bridge.DefaultSessionConfig(vlConfig.Instructions, vlConfig.Voice)
	sesCfg.Transcription = bridge.TranscriptionConfig{
		Kind:     bridge.TranscriptionKind(vlConfig.TranscriptionModel),
		Language: vlConfig.TranscriptionLanguage,
	}
	sesCfg.MaxResponseOutputTokens = vlConfig.MaxResponseOutputTokens

	registry := prometheus.NewRegistry()
	metrics := bridge.NewMetrics(registry)
	go serveMetrics(registry)

	manager := newCallManager(vlConfig, sesCfg, metrics)
	pool := newRTPPortPool(cfg.rtpPortMin, cfg.rtpPortMax)

	ua, err := newSIPUA(cfg, pool, manager.handle)
	if err != nil {
		slog.Error("gateway: failed to initialize sip ua", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := ua.ListenAndServe(ctx); err != nil {
			slog.Error("gateway: sip listener stopped", "err", err)
		}
	}()

	slog.Info("gateway: ready", "sip_addr", cfg.listenAddr, "rtp_ports", fmt.Sprintf("%d-%d", cfg.rtpPortMin, cfg.rtpPortMax))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	slog.Info("gateway: shutting down")
}

func serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(":9090", mux); err != nil {
		slog.Debug("gateway: metrics server stopped", "err", err)
	}
}
