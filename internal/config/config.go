package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	SensorDriverPeriph = "periph"
	SensorDriverSim    = "sim"

	DisplayDriverLCD = "lcd"
	DisplayDriverLog = "log"

	RetryPolicyConstant    = "constant"
	RetryPolicyExponential = "exponential"
)

// HD44780 controllers address at most 40x4 characters.
const (
	maxLCDColumns = 40
	maxLCDRows    = 4
)

type Config struct {
	AppEnv       string
	LogLevel     slog.Level
	HTTPAddr     string
	TickInterval time.Duration

	MQTTBroker         string
	MQTTPort           int
	MQTTClientID       string
	MQTTTopic          string
	MQTTUsername       string
	MQTTPassword       string
	MQTTConnectTimeout time.Duration

	RetryPolicy      string
	RetryInterval    time.Duration
	RetryMaxInterval time.Duration
	RetryMaxAttempts uint64

	CloudToken       string
	CloudVariableID  string
	CloudDeviceLabel string
	// CloudBroker is empty when cloud forwarding shares the local session.
	CloudBroker string
	CloudPort   int

	SensorDriver   string
	I2CBus         string
	ADS1115Address uint16
	ECGChannel     int
	PulseChannel   int
	OneWireBus     string
	// DS18B20Address is zero when the first probe found on the bus is used.
	DS18B20Address uint64

	DisplayDriver string
	LCDAddress    uint16
	LCDColumns    int
	LCDRows       int
}

// CloudTopic is the device-scoped ingestion topic.
func (c Config) CloudTopic() string {
	return "/v1.6/devices/" + c.CloudDeviceLabel
}

// NeedsBoard reports whether any configured driver talks to real hardware.
func (c Config) NeedsBoard() bool {
	return c.SensorDriver == SensorDriverPeriph || c.DisplayDriver == DisplayDriverLCD
}

// DedicatedCloudSession reports whether cloud forwarding has its own broker connection.
func (c Config) DedicatedCloudSession() bool {
	return c.CloudBroker != ""
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(stringEnv("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	httpAddr := stringEnv("HTTP_ADDR", ":8080")
	if strings.EqualFold(httpAddr, "off") {
		httpAddr = ""
	}

	tickInterval, err := positiveDurationEnv("TICK_INTERVAL", "2s")
	if err != nil {
		return Config{}, err
	}

	mqttPort, err := portEnv("MQTT_PORT", "1883")
	if err != nil {
		return Config{}, err
	}

	connectTimeout, err := positiveDurationEnv("MQTT_CONNECT_TIMEOUT", "10s")
	if err != nil {
		return Config{}, err
	}

	retryPolicy := strings.ToLower(stringEnv("MQTT_RETRY_POLICY", RetryPolicyConstant))
	switch retryPolicy {
	case RetryPolicyConstant, RetryPolicyExponential:
	default:
		return Config{}, fmt.Errorf("invalid MQTT_RETRY_POLICY %q (allowed: constant, exponential)", retryPolicy)
	}

	retryInterval, err := positiveDurationEnv("MQTT_RETRY_INTERVAL", "5s")
	if err != nil {
		return Config{}, err
	}
	retryMaxInterval, err := positiveDurationEnv("MQTT_RETRY_MAX_INTERVAL", "60s")
	if err != nil {
		return Config{}, err
	}
	if retryMaxInterval < retryInterval {
		return Config{}, fmt.Errorf("MQTT_RETRY_MAX_INTERVAL (%v) must not be below MQTT_RETRY_INTERVAL (%v)", retryMaxInterval, retryInterval)
	}

	retryMaxAttemptsStr := stringEnv("MQTT_RETRY_MAX_ATTEMPTS", "0")
	retryMaxAttempts, err := strconv.ParseUint(retryMaxAttemptsStr, 10, 64)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_RETRY_MAX_ATTEMPTS %q: %w", retryMaxAttemptsStr, err)
	}

	cloudPort, err := portEnv("CLOUD_MQTT_PORT", "1883")
	if err != nil {
		return Config{}, err
	}

	cloudVariableID := stringEnv("CLOUD_VARIABLE_ID", "vitals")
	cloudDeviceLabel := stringEnv("CLOUD_DEVICE_LABEL", "esp32")
	if strings.ContainsAny(cloudDeviceLabel, "/+#") {
		return Config{}, fmt.Errorf("invalid CLOUD_DEVICE_LABEL %q: must not contain '/', '+' or '#'", cloudDeviceLabel)
	}

	mqttTopic := stringEnv("MQTT_TOPIC", "sensor/data")
	if strings.ContainsAny(mqttTopic, "+#") {
		return Config{}, fmt.Errorf("invalid MQTT_TOPIC %q: wildcards are not allowed", mqttTopic)
	}

	sensorDriver := strings.ToLower(stringEnv("SENSOR_DRIVER", SensorDriverPeriph))
	switch sensorDriver {
	case SensorDriverPeriph, SensorDriverSim:
	default:
		return Config{}, fmt.Errorf("invalid SENSOR_DRIVER %q (allowed: periph, sim)", sensorDriver)
	}

	adsAddress, err := addressEnv("ADS1115_ADDRESS", "0x48", 16)
	if err != nil {
		return Config{}, err
	}
	ecgChannel, err := channelEnv("ECG_CHANNEL", "1")
	if err != nil {
		return Config{}, err
	}
	pulseChannel, err := channelEnv("PULSE_CHANNEL", "0")
	if err != nil {
		return Config{}, err
	}
	if ecgChannel == pulseChannel {
		return Config{}, fmt.Errorf("ECG_CHANNEL and PULSE_CHANNEL must differ, both are %d", ecgChannel)
	}

	var ds18b20Address uint64
	if v := stringEnv("DS18B20_ADDRESS", ""); v != "" {
		ds18b20Address, err = strconv.ParseUint(v, 0, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DS18B20_ADDRESS %q: %w", v, err)
		}
	}

	displayDriver := strings.ToLower(stringEnv("DISPLAY_DRIVER", DisplayDriverLCD))
	switch displayDriver {
	case DisplayDriverLCD, DisplayDriverLog:
	default:
		return Config{}, fmt.Errorf("invalid DISPLAY_DRIVER %q (allowed: lcd, log)", displayDriver)
	}

	lcdAddress, err := addressEnv("LCD_ADDRESS", "0x27", 8)
	if err != nil {
		return Config{}, err
	}
	lcdColumns, err := positiveIntEnv("LCD_COLUMNS", "16")
	if err != nil {
		return Config{}, err
	}
	lcdRows, err := positiveIntEnv("LCD_ROWS", "2")
	if err != nil {
		return Config{}, err
	}
	if lcdColumns > maxLCDColumns {
		return Config{}, fmt.Errorf("LCD_COLUMNS must be at most %d, got %d", maxLCDColumns, lcdColumns)
	}
	if lcdRows < 2 || lcdRows > maxLCDRows {
		return Config{}, fmt.Errorf("LCD_ROWS must be 2-%d, got %d", maxLCDRows, lcdRows)
	}

	return Config{
		AppEnv:       appEnv,
		LogLevel:     level,
		HTTPAddr:     httpAddr,
		TickInterval: tickInterval,

		MQTTBroker:         stringEnv("MQTT_BROKER", "localhost"),
		MQTTPort:           mqttPort,
		MQTTClientID:       stringEnv("MQTT_CLIENT_ID", "vitals-agent"),
		MQTTTopic:          mqttTopic,
		MQTTUsername:       stringEnv("MQTT_USERNAME", ""),
		MQTTPassword:       os.Getenv("MQTT_PASSWORD"),
		MQTTConnectTimeout: connectTimeout,

		RetryPolicy:      retryPolicy,
		RetryInterval:    retryInterval,
		RetryMaxInterval: retryMaxInterval,
		RetryMaxAttempts: retryMaxAttempts,

		CloudToken:       stringEnv("CLOUD_TOKEN", ""),
		CloudVariableID:  cloudVariableID,
		CloudDeviceLabel: cloudDeviceLabel,
		CloudBroker:      stringEnv("CLOUD_MQTT_BROKER", ""),
		CloudPort:        cloudPort,

		SensorDriver:   sensorDriver,
		I2CBus:         stringEnv("I2C_BUS", ""),
		ADS1115Address: uint16(adsAddress),
		ECGChannel:     ecgChannel,
		PulseChannel:   pulseChannel,
		OneWireBus:     stringEnv("ONEWIRE_BUS", ""),
		DS18B20Address: ds18b20Address,

		DisplayDriver: displayDriver,
		LCDAddress:    uint16(lcdAddress),
		LCDColumns:    lcdColumns,
		LCDRows:       lcdRows,
	}, nil
}

func stringEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func positiveDurationEnv(key, def string) (time.Duration, error) {
	s := stringEnv(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func positiveIntEnv(key, def string) (int, error) {
	s := stringEnv(key, def)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}

func portEnv(key, def string) (int, error) {
	s := stringEnv(key, def)
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%s out of range: %d", key, port)
	}
	return port, nil
}

func addressEnv(key, def string, bits int) (uint64, error) {
	s := stringEnv(key, def)
	addr, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if addr > 0x7F {
		return 0, fmt.Errorf("%s %q is not a 7-bit I2C address", key, s)
	}
	return addr, nil
}

func channelEnv(key, def string) (int, error) {
	s := stringEnv(key, def)
	ch, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if ch < 0 || ch > 3 {
		return 0, fmt.Errorf("%s must be 0-3, got %d", key, ch)
	}
	return ch, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
