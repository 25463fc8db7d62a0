package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/skypro1111/audio-relay-service/internal/config"
	"github.com/skypro1111/audio-relay-service/internal/metrics"
	"github.com/skypro1111/audio-relay-service/internal/protocol"
	"github.com/skypro1111/audio-relay-service/internal/relay"
	"github.com/skypro1111/audio-relay-service/internal/server"
	"github.com/skypro1111/audio-relay-service/internal/session"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "audio-relay-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	inputPath := flag.String("input", "", "Raw PCM file to stream (empty streams silence)")
	destFlag := flag.String("destinations", "", "Comma-separated name=url destination pairs")
	duration := flag.Duration("duration", 0, "Stream duration for synthetic input (0 = until interrupted)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	destinations, err := parseDestinations(*destFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid -destinations: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("relay_endpoint", cfg.Relay.Endpoint),
		slog.String("device_name", cfg.Relay.DeviceName),
		slog.Int("buffer_capacity", cfg.Buffer.Capacity),
		slog.String("drop_policy", cfg.Buffer.DropPolicy),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("chunk_ms", cfg.Audio.ChunkMs),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize session store
	store, err := session.NewMemoryStore(cfg.Session.RetainRecords)
	if err != nil {
		logger.Error("Failed to create session store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize session controller
	controller := session.NewController(session.Config{
		Relay: relay.Config{
			Endpoint:   cfg.Relay.Endpoint,
			DeviceName: cfg.Relay.DeviceName,
			Format: protocol.AudioStart{
				Rate:     cfg.Audio.SampleRate,
				Width:    cfg.Audio.SampleWidth,
				Channels: cfg.Audio.Channels,
				Mode:     cfg.Audio.Mode,
			},
			StabilizationDelay:       cfg.Relay.GetStabilizationDelay(),
			HealthCheckInterval:      cfg.Relay.GetHealthCheckInterval(),
			BackoffInitial:           cfg.Relay.GetReconnectBackoff(),
			BackoffMax:               cfg.Relay.GetReconnectBackoffMax(),
			MaxConsecutiveReconnects: cfg.Relay.MaxConsecutiveReconnects,
			SendTimeout:              cfg.Relay.GetSendTimeout(),
		},
		Token:          relay.StaticToken(cfg.Relay.Token),
		BufferCapacity: cfg.Buffer.Capacity,
		DropPolicy:     cfg.Buffer.GetDropPolicy(),
		Codec:          cfg.Audio.Codec,
	}, store, appMetrics, logger)

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, controller, store, appMetrics)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Open the audio source
	src, sourceDesc, err := openSource(*inputPath)
	if err != nil {
		logger.Error("Failed to open audio source", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer src.Close()

	// Start the streaming session
	rec, err := controller.Start(ctx, sourceDesc, destinations)
	if err != nil {
		logger.Error("Failed to start session", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Session started",
		slog.String("session_id", rec.ID),
		slog.String("source", sourceDesc.Kind),
	)

	// Pump chunks at capture cadence until the source ends or we are stopped
	sourceDone := make(chan struct{})
	go func() {
		defer close(sourceDone)
		pumpChunks(ctx, controller, src, cfg.Audio, *duration, logger)
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	endReason := session.EndReasonSourceEnded
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		endReason = session.EndReasonManualStop
	case <-sourceDone:
		logger.Info("Audio source ended")
	}

	logger.Info("Starting graceful shutdown...")
	cancel()
	<-sourceDone

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// End the session and log the final record
	final := controller.Stop(endReason)
	if final != nil {
		logger.Info("Final session statistics",
			slog.String("session_id", final.ID),
			slog.String("end_reason", string(final.EndReason)),
			slog.Uint64("chunks_transferred", final.ChunksTransferred),
			slog.Uint64("bytes_transferred", final.BytesTransferred),
			slog.Uint64("reconnects", final.Diagnostics.ReconnectCount),
			slog.Uint64("buffered_chunks", final.Diagnostics.TotalBufferedChunks),
			slog.Uint64("dropped_chunks", final.Diagnostics.TotalDroppedChunks),
			slog.Uint64("flushed_chunks", final.Diagnostics.TotalFlushedChunks),
		)
	}

	logger.Info("Service stopped")
}

// pumpChunks reads fixed-size chunks from the source and submits them at the
// configured capture cadence.
func pumpChunks(ctx context.Context, controller *session.Controller, src io.Reader,
	audioCfg config.AudioConfig, maxDuration time.Duration, logger *slog.Logger) {

	chunkBytes := audioCfg.SampleRate * audioCfg.SampleWidth * audioCfg.Channels * audioCfg.ChunkMs / 1000
	ticker := time.NewTicker(audioCfg.GetChunkDuration())
	defer ticker.Stop()

	var deadline <-chan time.Time
	if maxDuration > 0 {
		deadline = time.After(maxDuration)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-ticker.C:
		}

		chunk := make([]byte, chunkBytes)
		n, err := io.ReadFull(src, chunk)
		if n > 0 {
			if err := controller.SubmitChunk(chunk[:n]); err != nil {
				logger.Warn("Failed to submit chunk", slog.String("error", err.Error()))
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				logger.Error("Audio source read failed", slog.String("error", err.Error()))
			}
			return
		}
	}
}

// openSource opens the raw PCM input file, or an endless silence source when
// no input is given.
func openSource(path string) (io.ReadCloser, session.SourceDescriptor, error) {
	if path == "" {
		return io.NopCloser(silenceReader{}), session.SourceDescriptor{Kind: "synthetic", Name: "silence"}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, session.SourceDescriptor{}, err
	}
	return f, session.SourceDescriptor{Kind: "file", Name: path}, nil
}

// silenceReader yields endless zero samples.
type silenceReader struct{}

func (silenceReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// parseDestinations parses comma-separated name=url pairs.
func parseDestinations(s string) ([]protocol.Destination, error) {
	if s == "" {
		return nil, fmt.Errorf("at least one destination is required")
	}

	var out []protocol.Destination
	for _, pair := range strings.Split(s, ",") {
		name, url, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("malformed destination %q, want name=url", pair)
		}
		out = append(out, protocol.Destination{Name: name, URL: url})
	}
	return out, nil
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
