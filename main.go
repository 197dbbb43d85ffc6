package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"i4.energy/across/espgw/modem"
)

func main() {
	RegisterFlags(pflag.CommandLine)
	pflag.Parse()

	configPath, err := pflag.CommandLine.GetString("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read config flag: %v\n", err)
		os.Exit(1)
	}
	config, err := LoadConfig(WithDefaults(), WithFile(configPath), WithEnv(), WithFlags(pflag.CommandLine))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := NewLogger(config.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, config, logger)
	stop()
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, config *Config, logger *zap.Logger) error {
	port, err := modem.SerialDialer{
		PortName:    config.SerialPort,
		BaudRate:    config.BaudRate,
		ReadTimeout: config.ReadTimeout,
	}.Dial(ctx)
	if err != nil {
		logger.Error("Failed to open serial port", zap.String("port", config.SerialPort), zap.Error(err))
		return err
	}
	defer func() {
		logger.Info("Closing serial port")
		if err := port.Close(); err != nil {
			logger.Error("Failed to close serial port", zap.Error(err))
		}
	}()

	modemConfig, err := modem.NewConfigBuilder().
		WithTransport(modem.NewBufferedTransport(port, modem.DefaultStreamLimit)).
		WithLogger(logger.Named("modem")).
		WithPollInterval(config.PollInterval).
		Build()
	if err != nil {
		logger.Error("Failed to create modem config", zap.Error(err))
		return err
	}

	m, err := modem.New(modemConfig)
	if err != nil {
		logger.Error("Failed to create modem", zap.Error(err))
		return err
	}

	if err := BringUp(m, config.WiFi, logger); err != nil {
		logger.Error("Module bring-up failed", zap.Error(err))
		return err
	}

	var publisher *MQTTPublisher
	if config.Frames.Enabled && config.MQTT.Broker != "" {
		publisher, err = DialMQTT(config.MQTT, logger.Named("mqtt"))
		if err != nil {
			logger.Error("Failed to connect to MQTT broker", zap.Error(err))
			return err
		}
		defer publisher.Close()
	}

	// the poller must stop before the port is closed
	ctx, cancel := context.WithCancel(ctx)
	var workers sync.WaitGroup
	defer workers.Wait()
	defer cancel()

	hub := NewFrameHub()

	if config.Frames.Enabled {
		poller := &FramePoller{
			Logger: logger.Named("frames"),
			Modem:  m,
			Hub:    hub,
			Topic:  config.MQTT.Topic,
			Wait:   config.Frames.Wait,
		}
		if publisher != nil {
			poller.Publisher = publisher
		}

		workers.Add(1)
		go func() {
			defer workers.Done()
			poller.Run(ctx)
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger:         logger.Named("server"),
			Modem:          m,
			Hub:            hub,
			FrameWait:      config.Frames.Wait,
			FramesPolled:   config.Frames.Enabled,
			AllowedOrigins: config.AllowedOrigins,
		},
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
			return err
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", zap.Error(err))
		return err
	}
	return nil
}
