package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"vitals-agent/internal/acquisition"
	"vitals-agent/internal/board"
	"vitals-agent/internal/config"
	"vitals-agent/internal/display"
	"vitals-agent/internal/httpapi"
	"vitals-agent/internal/mqtt"
	"vitals-agent/internal/sensor"
	"vitals-agent/internal/telemetry"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"tickInterval", cfg.TickInterval,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
		"retryPolicy", cfg.RetryPolicy,
		"retryInterval", cfg.RetryInterval,
		"retryMaxAttempts", cfg.RetryMaxAttempts,
		"cloudTopic", cfg.CloudTopic(),
		"cloudDedicated", cfg.DedicatedCloudSession(),
		"sensorDriver", cfg.SensorDriver,
		"displayDriver", cfg.DisplayDriver,
	)

	var brd *board.Board
	if cfg.NeedsBoard() {
		var err error
		brd, err = board.Open(cfg.I2CBus, slog.Default().With("component", "board"))
		if err != nil {
			return err
		}
		defer func() {
			if err := brd.Close(); err != nil {
				slog.Error("board close", "error", err)
			}
		}()
	}

	reader, halt := buildSensors(cfg, brd)
	defer halt()

	buf := display.NewBuffer(cfg.LCDColumns, cfg.LCDRows)
	disp := display.Tee{buf, buildDisplay(cfg, brd)}

	local, cloud := buildSessions(cfg)
	pumps := []acquisition.Pumper{local}
	var cloudLink telemetry.Link
	if cloud != nil {
		cloudLink = cloud
		pumps = append(pumps, cloud)
	}

	publisher := telemetry.NewPublisher(local, cloudLink, telemetry.Bindings{
		LocalTopic:      cfg.MQTTTopic,
		CloudTopic:      cfg.CloudTopic(),
		CloudVariableID: cfg.CloudVariableID,
	}, slog.Default().With("component", "telemetry"))

	loop := acquisition.New(reader, disp, publisher, pumps, cfg.TickInterval,
		slog.Default().With("component", "acquisition"))

	errCh := make(chan error, 2)
	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		errCh <- loop.Run(loopCtx)
	}()

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		mux := httpapi.NewMux(httpapi.Sources{
			Snapshot: loop.Snapshot,
			Links:    publisher.LinkStates,
			Lines:    buf.Lines,
		}, slog.Default().With("component", "http"))
		srv = httpapi.NewServer(cfg.HTTPAddr, mux)
		go func() {
			slog.Info("http listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	stopLoop()
	<-loopDone

	slog.Info("mqtt disconnecting")
	local.Disconnect()
	if cloud != nil {
		cloud.Disconnect()
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("http shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	disp.Clear()

	if runErr != nil {
		return runErr
	}
	return ctx.Err()
}

func buildSessions(cfg config.Config) (local, cloud *mqtt.Session) {
	retry := mqtt.RetryPolicy{
		Exponential: cfg.RetryPolicy == config.RetryPolicyExponential,
		Interval:    cfg.RetryInterval,
		MaxInterval: cfg.RetryMaxInterval,
		MaxAttempts: cfg.RetryMaxAttempts,
	}
	logger := slog.Default().With("component", "mqtt")

	local = mqtt.NewSession(mqtt.Options{
		Name:           "local",
		Broker:         cfg.MQTTBroker,
		Port:           cfg.MQTTPort,
		ClientID:       cfg.MQTTClientID,
		Username:       cfg.MQTTUsername,
		Password:       cfg.MQTTPassword,
		SubscribeTopic: cfg.MQTTTopic,
		Handler:        mqtt.Discard{Logger: logger},
		ConnectTimeout: cfg.MQTTConnectTimeout,
		Retry:          retry,
	}, logger)

	if !cfg.DedicatedCloudSession() {
		return local, nil
	}
	cloud = mqtt.NewSession(mqtt.Options{
		Name:     "cloud",
		Broker:   cfg.CloudBroker,
		Port:     cfg.CloudPort,
		ClientID: cfg.MQTTClientID + "-cloud",
		// The ingestion broker authenticates by token in the username.
		Username:       cfg.CloudToken,
		ConnectTimeout: cfg.MQTTConnectTimeout,
		Retry:          retry,
	}, logger)
	return local, cloud
}

// buildSensors opens the configured sources. Hardware that fails to open is
// logged and replaced, so its readings carry the fault sentinel.
func buildSensors(cfg config.Config, brd *board.Board) (*sensor.Adapter, func()) {
	logger := slog.Default().With("component", "sensor")

	if cfg.SensorDriver == config.SensorDriverSim {
		sim := sensor.NewSimulated(uint64(time.Now().UnixNano()))
		return sensor.NewAdapter(sim, sim.ECG(), sim.Pulse(), logger), func() {}
	}

	var (
		ecg, pulse sensor.AnalogInput
		temp       sensor.TemperatureProbe
		halts      []func() error
	)

	ads, err := sensor.OpenADS1115(brd.I2C(), cfg.ADS1115Address)
	if err != nil {
		logger.Error("ads1115 unavailable", "address", fmt.Sprintf("%#x", cfg.ADS1115Address), "error", err)
		ecg, pulse = sensor.Unavailable{Err: err}, sensor.Unavailable{Err: err}
	} else {
		halts = append(halts, ads.Halt)
		ecg = analogInput(ads, cfg.ECGChannel, logger)
		pulse = analogInput(ads, cfg.PulseChannel, logger)
	}

	temp, halt := temperatureProbe(cfg, brd, logger)
	if halt != nil {
		halts = append(halts, halt)
	}

	return sensor.NewAdapter(temp, ecg, pulse, logger), func() {
		for _, h := range halts {
			if err := h(); err != nil {
				logger.Warn("sensor halt", "error", err)
			}
		}
	}
}

func analogInput(ads *sensor.ADS1115, channel int, logger *slog.Logger) sensor.AnalogInput {
	in, err := ads.Input(channel)
	if err != nil {
		logger.Error("ads1115 channel unavailable", "channel", channel, "error", err)
		return sensor.Unavailable{Err: err}
	}
	return in
}

func temperatureProbe(cfg config.Config, brd *board.Board, logger *slog.Logger) (sensor.TemperatureProbe, func() error) {
	bus, err := brd.OneWire(cfg.OneWireBus)
	if err != nil {
		logger.Error("onewire bus unavailable", "bus", cfg.OneWireBus, "error", err)
		return sensor.Unavailable{Err: err}, nil
	}
	probe, err := sensor.OpenDS18B20(bus, cfg.DS18B20Address)
	if err != nil {
		logger.Error("ds18b20 unavailable", "error", err)
		return sensor.Unavailable{Err: err}, nil
	}
	return probe, probe.Halt
}

func buildDisplay(cfg config.Config, brd *board.Board) display.Display {
	logger := slog.Default().With("component", "display")
	if cfg.DisplayDriver == config.DisplayDriverLog {
		return display.NewLog(logger)
	}
	return display.NewLCD(brd.I2C(), cfg.LCDAddress, cfg.LCDColumns, cfg.LCDRows, logger)
}
