package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/bosley/pdfchat/audio"
	"github.com/bosley/pdfchat/backend"
	"github.com/bosley/pdfchat/chat"
	"github.com/bosley/pdfchat/config"
	"github.com/bosley/pdfchat/inbox"
	"github.com/bosley/pdfchat/metrics"
	"github.com/bosley/pdfchat/view"
	"github.com/bosley/pdfchat/voice"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	playFile := flag.String("play", "", "Play audio file")
	listDevices := flag.Bool("list-devices", false, "List available audio input devices")
	deviceID := flag.Int("device", voice.DefaultDevice, "Audio input device index from -list-devices (overrides config)")
	viewAddr := flag.String("addr", "", "View server address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *deviceID != voice.DefaultDevice {
		cfg.Audio.Device = *deviceID
	}
	if *viewAddr != "" {
		cfg.View.Address = *viewAddr
	}

	slog.SetDefault(newLogger(cfg.Logging))

	if *playFile != "" {
		if err := voice.NewPlayer().PlayFile(context.Background(), *playFile); err != nil {
			slog.Error("Failed to play audio file", "error", err)
			os.Exit(1)
		}
		return
	}

	if *listDevices {
		devices, err := voice.ListAudioDevices()
		if err != nil {
			slog.Error("Failed to list audio devices", "error", err)
			os.Exit(1)
		}

		fmt.Println("Available audio input devices:")
		for _, device := range devices {
			fmt.Printf("[%d] %s\n", device.Index, device.Info.Name)
			fmt.Printf("    Max Input Channels: %d\n", device.Info.MaxInputChannels)
			fmt.Printf("    Default Sample Rate: %f\n", device.Info.DefaultSampleRate)
			fmt.Println()
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("pdfchat failed", "error", err)
		os.Exit(1)
	}
	slog.Debug("Program exiting")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, err := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	format := audio.Format{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
	}
	mic := voice.NewMicrophone(voice.MicrophoneConfig{
		DeviceID:        cfg.Audio.Device,
		SampleRate:      cfg.Audio.SampleRate,
		Channels:        cfg.Audio.Channels,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
	})
	recorder := voice.NewRecorder(mic, format, cfg.Audio.RecordingLimit())

	ctrl := chat.New(ctx, client, recorder, m, chat.Options{
		Autoplay:            cfg.Chat.Autoplay,
		SendEmptyRecordings: cfg.Chat.SendEmptyRecordings,
	})
	recorder.OnLimit(ctrl.RecordingLimitReached)
	if cfg.Chat.Autoplay {
		ctrl.SetPlayer(voice.NewPlayer())
	}

	viewServer := view.New(view.Config{
		Address:  cfg.View.Address,
		Gatherer: reg,
		Metrics:  m,
	}, ctrl)
	ctrl.SetPublisher(viewServer)

	if err := ctrl.RefreshCatalog(ctx); err != nil {
		slog.Warn("Starting with an empty catalog", "error", err)
	}

	var wg sync.WaitGroup

	if cfg.Inbox.Enabled {
		box, err := inbox.New(inbox.Config{
			Dir:       cfg.Inbox.Dir,
			Workers:   cfg.Inbox.Workers,
			QueueSize: cfg.Inbox.QueueSize,
		}, ctrl)
		if err != nil {
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := box.Run(ctx); err != nil {
				slog.Error("Inbox failed", "error", err)
			}
		}()
	}

	slog.Info("pdfchat ready",
		"backend", cfg.Backend.BaseURL,
		"view", "http://"+cfg.View.Address)

	err = viewServer.Start(ctx)
	cancel()

	if recorder.Recording() {
		if _, stopErr := recorder.Stop(); stopErr != nil {
			slog.Error("Failed to stop recording on shutdown", "error", stopErr)
		}
	}
	wg.Wait()
	ctrl.Wait()
	return err
}
