package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	SensorADS1115   = "ads1115"
	SensorSerial    = "serial"
	SensorSimulated = "simulation"

	BackendCSV    = "csv"
	BackendSQLite = "sqlite"

	ClockSystem = "system"
	ClockFile   = "file"

	OutputConsole = "console"
	OutputMQTT    = "mqtt"
)

type MQTTConfig struct {
	Server            string `json:"server" yaml:"server"`
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	ClientID          string `json:"client_id" yaml:"client_id"`
	StateTopic        string `json:"state_topic" yaml:"state_topic"`
	StatusTopic       string `json:"status_topic" yaml:"status_topic"`
	DiscoveryTopic    string `json:"discovery_topic" yaml:"discovery_topic"`
	DiscoveryName     string `json:"discovery_name" yaml:"discovery_name"`
	DiscoveryUniqueID string `json:"discovery_unique_id" yaml:"discovery_unique_id"`
}

type OutputConfig struct {
	Type string      `json:"type" yaml:"type"`
	MQTT *MQTTConfig `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
}

type SensorConfig struct {
	Type       string `json:"type" yaml:"type"`
	I2CBus     string `json:"i2c_bus" yaml:"i2c_bus"`
	I2CAddress int    `json:"i2c_address" yaml:"i2c_address"`
	Channel    int    `json:"channel" yaml:"channel"`
	SampleRate int    `json:"sample_rate" yaml:"sample_rate"`
	SerialPort string `json:"serial_port" yaml:"serial_port"`
	Baud       int    `json:"baud" yaml:"baud"`
}

// CalibrationConfig holds the power-law constants and the noise floor.
type CalibrationConfig struct {
	RM        float64 `json:"rm" yaml:"rm"`
	VIN       float64 `json:"vin" yaml:"vin"`
	MaxValue  int     `json:"max_value" yaml:"max_value"`
	Divisor   float64 `json:"divisor" yaml:"divisor"`
	Exponent  float64 `json:"exponent" yaml:"exponent"`
	Threshold int     `json:"threshold" yaml:"threshold"`
}

type StorageConfig struct {
	Backend     string `json:"backend" yaml:"backend"`
	Dir         string `json:"dir" yaml:"dir"`
	DataFile    string `json:"data_file" yaml:"data_file"`
	CounterFile string `json:"counter_file" yaml:"counter_file"`
	SQLiteFile  string `json:"sqlite_file" yaml:"sqlite_file"`
	// LockFile is held by every store operation so that separate processes
	// on the same directory exclude each other. Empty disables it.
	LockFile string `json:"lock_file" yaml:"lock_file"`
}

type ClockConfig struct {
	Source       string `json:"source" yaml:"source"`
	FallbackFile string `json:"fallback_file" yaml:"fallback_file"`
	Timezone     string `json:"timezone" yaml:"timezone"`
}

type HTTPConfig struct {
	Listen string `json:"listen" yaml:"listen"`
	// Address is shown on the pages instead of the discovered one.
	Address      string `json:"address" yaml:"address"`
	TailSize     int    `json:"tail_size" yaml:"tail_size"`
	MaxBodyBytes int64  `json:"max_body_bytes" yaml:"max_body_bytes"`
}

type Config struct {
	Sensor      SensorConfig      `json:"sensor" yaml:"sensor"`
	Calibration CalibrationConfig `json:"calibration" yaml:"calibration"`
	PeriodMs    int               `json:"period_ms" yaml:"period_ms"`
	Storage     StorageConfig     `json:"storage" yaml:"storage"`
	Clock       ClockConfig       `json:"clock" yaml:"clock"`
	HTTP        HTTPConfig        `json:"http" yaml:"http"`
	Outputs     []OutputConfig    `json:"outputs" yaml:"outputs"`
	LogLevel    string            `json:"log_level" yaml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		Sensor: SensorConfig{
			Type:       SensorADS1115,
			I2CBus:     "1",
			I2CAddress: 0x48,
			Channel:    0,
			SampleRate: 860,
			SerialPort: "/dev/ttyACM0",
			Baud:       115200,
		},
		Calibration: CalibrationConfig{
			RM:        1000.0,
			VIN:       2.450,
			MaxValue:  4095,
			Divisor:   153.18,
			Exponent:  0.6991,
			Threshold: 31,
		},
		PeriodMs: 10,
		Storage: StorageConfig{
			Backend:     BackendCSV,
			Dir:         ".",
			DataFile:    "sensor_data.txt",
			CounterFile: "id_counter.txt",
			SQLiteFile:  "sensor_data.db",
			LockFile:    "fsr-logger.lock",
		},
		Clock: ClockConfig{
			Source:       ClockSystem,
			FallbackFile: "date.txt",
			Timezone:     "Local",
		},
		HTTP: HTTPConfig{
			Listen:       ":80",
			TailSize:     10,
			MaxBodyBytes: 1024,
		},
		Outputs:  []OutputConfig{{Type: OutputConsole}},
		LogLevel: "info",
	}
}

// Period is the acquisition cycle period.
func (c Config) Period() time.Duration {
	return time.Duration(c.PeriodMs) * time.Millisecond
}

// Location resolves the configured time zone.
func (c Config) Location() (*time.Location, error) {
	switch c.Clock.Timezone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Clock.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

// FallbackPath resolves the clock snapshot file against the storage dir.
func (c Config) FallbackPath() string {
	if filepath.IsAbs(c.Clock.FallbackFile) {
		return c.Clock.FallbackFile
	}
	return filepath.Join(c.Storage.Dir, c.Clock.FallbackFile)
}

func (c Config) Validate() error {
	var errs []error
	switch c.Sensor.Type {
	case SensorADS1115, SensorSerial, SensorSimulated:
	default:
		errs = append(errs, fmt.Errorf("unknown sensor type %q", c.Sensor.Type))
	}
	if c.Calibration.MaxValue <= 0 {
		errs = append(errs, errors.New("calibration max_value must be > 0"))
	}
	if c.Calibration.Threshold < 0 || c.Calibration.Threshold >= c.Calibration.MaxValue {
		errs = append(errs, fmt.Errorf("threshold %d outside [0, %d)", c.Calibration.Threshold, c.Calibration.MaxValue))
	}
	if c.Calibration.Exponent == 0 || c.Calibration.Divisor == 0 {
		errs = append(errs, errors.New("calibration exponent and divisor must be non-zero"))
	}
	if c.PeriodMs <= 0 {
		errs = append(errs, errors.New("period-ms must be > 0"))
	}
	switch c.Storage.Backend {
	case BackendCSV, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	switch c.Clock.Source {
	case ClockSystem, ClockFile:
	default:
		errs = append(errs, fmt.Errorf("unknown clock source %q", c.Clock.Source))
	}
	if c.HTTP.TailSize <= 0 {
		errs = append(errs, errors.New("tail-size must be > 0"))
	}
	for _, o := range c.Outputs {
		switch strings.ToLower(o.Type) {
		case OutputConsole, OutputMQTT:
		default:
			errs = append(errs, fmt.Errorf("unknown output %q", o.Type))
		}
	}
	return errors.Join(errs...)
}

// LoadFile overlays a JSON or YAML file (chosen by extension) onto cfg.
func LoadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := json.Unmarshal(b, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	return nil
}

// Flags are the command-line overrides. A flag replaces the file value only
// when it was set explicitly.
type Flags struct {
	fs *pflag.FlagSet

	path         string
	sensorType   string
	i2cBus       string
	i2cAddress   string
	channel      int
	sampleRate   int
	serialPort   string
	baud         int
	threshold    int
	periodMs     int
	backend      string
	dir          string
	listen       string
	address      string
	tailSize     int
	clockSource  string
	timezone     string
	outputs      string
	mqttServer   string
	mqttUser     string
	mqttPass     string
	mqttClientID string
	mqttTopic    string
	logLevel     string
}

func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.path, "config", "", "Path to JSON or YAML config file")
	fs.StringVar(&f.sensorType, "sensor-type", "", "sensor type: ads1115|serial|simulation")
	fs.StringVar(&f.i2cBus, "i2c-bus", "", "I2C bus (e.g., '1' -> /dev/i2c-1)")
	fs.StringVar(&f.i2cAddress, "i2c-address", "", "I2C address (decimal or 0x hex)")
	fs.IntVar(&f.channel, "channel", 0, "ADS1115 input channel (0-3)")
	fs.IntVar(&f.sampleRate, "sample-rate", 0, "ADS1115 sample rate (SPS)")
	fs.StringVar(&f.serialPort, "serial-port", "", "serial ADC device")
	fs.IntVar(&f.baud, "baud", 0, "serial ADC baud rate")
	fs.IntVar(&f.threshold, "threshold", 0, "noise floor in raw counts; readings at or below are not recorded")
	fs.IntVar(&f.periodMs, "period-ms", 0, "acquisition cycle period in ms")
	fs.StringVar(&f.backend, "storage", "", "storage backend: csv|sqlite")
	fs.StringVar(&f.dir, "data-dir", "", "directory for the record log, counter and clock snapshot")
	fs.StringVar(&f.listen, "listen", "", "HTTP listen address")
	fs.StringVar(&f.address, "address", "", "device address shown on the pages (default: discovered)")
	fs.IntVar(&f.tailSize, "tail-size", 0, "readings shown on the home page")
	fs.StringVar(&f.clockSource, "clock-source", "", "clock bootstrap: system|file")
	fs.StringVar(&f.timezone, "timezone", "", "time zone for timestamps (Local, UTC or IANA name)")
	fs.StringVar(&f.outputs, "outputs", "", "Comma-separated outputs (console,mqtt)")
	fs.StringVar(&f.mqttServer, "mqtt-server", "", "MQTT server (tcp://host:port)")
	fs.StringVar(&f.mqttUser, "mqtt-user", "", "MQTT username")
	fs.StringVar(&f.mqttPass, "mqtt-pass", "", "MQTT password")
	fs.StringVar(&f.mqttClientID, "mqtt-client-id", "", "MQTT client id")
	fs.StringVar(&f.mqttTopic, "mqtt-topic", "", "MQTT state topic")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug|info|warn|error")
	return f
}

// Load builds the configuration from defaults, the optional file and flags.
func (f *Flags) Load() (Config, error) {
	cfg := DefaultConfig()

	if f.path != "" {
		if err := LoadFile(f.path, &cfg); err != nil {
			return cfg, err
		}
	}

	set := f.fs.Changed
	if set("sensor-type") {
		cfg.Sensor.Type = f.sensorType
	}
	if set("i2c-bus") {
		cfg.Sensor.I2CBus = f.i2cBus
	}
	if set("i2c-address") {
		v, err := parseIntOrHex(f.i2cAddress)
		if err != nil {
			return cfg, fmt.Errorf("i2c-address: %w", err)
		}
		cfg.Sensor.I2CAddress = v
	}
	if set("channel") {
		cfg.Sensor.Channel = f.channel
	}
	if set("sample-rate") {
		cfg.Sensor.SampleRate = f.sampleRate
	}
	if set("serial-port") {
		cfg.Sensor.SerialPort = f.serialPort
	}
	if set("baud") {
		cfg.Sensor.Baud = f.baud
	}
	if set("threshold") {
		cfg.Calibration.Threshold = f.threshold
	}
	if set("period-ms") {
		cfg.PeriodMs = f.periodMs
	}
	if set("storage") {
		cfg.Storage.Backend = f.backend
	}
	if set("data-dir") {
		cfg.Storage.Dir = f.dir
	}
	if set("listen") {
		cfg.HTTP.Listen = f.listen
	}
	if set("address") {
		cfg.HTTP.Address = f.address
	}
	if set("tail-size") {
		cfg.HTTP.TailSize = f.tailSize
	}
	if set("clock-source") {
		cfg.Clock.Source = f.clockSource
	}
	if set("timezone") {
		cfg.Clock.Timezone = f.timezone
	}
	if set("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if set("outputs") {
		parts := parseCSV(f.outputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: strings.ToLower(p)})
		}
		cfg.Outputs = outs
	}
	if f.mqttServer != "" || f.mqttUser != "" || f.mqttPass != "" || f.mqttClientID != "" || f.mqttTopic != "" {
		// Apply MQTT flags to all mqtt outputs; if none exist, create one.
		applied := false
		for i := range cfg.Outputs {
			if strings.ToLower(cfg.Outputs[i].Type) == OutputMQTT {
				if cfg.Outputs[i].MQTT == nil {
					cfg.Outputs[i].MQTT = &MQTTConfig{}
				}
				f.applyMQTT(cfg.Outputs[i].MQTT)
				applied = true
			}
		}
		if !applied {
			out := OutputConfig{Type: OutputMQTT, MQTT: &MQTTConfig{}}
			f.applyMQTT(out.MQTT)
			cfg.Outputs = append(cfg.Outputs, out)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (f *Flags) applyMQTT(m *MQTTConfig) {
	if f.mqttServer != "" {
		m.Server = f.mqttServer
	}
	if f.mqttUser != "" {
		m.Username = f.mqttUser
	}
	if f.mqttPass != "" {
		m.Password = f.mqttPass
	}
	if f.mqttClientID != "" {
		m.ClientID = f.mqttClientID
	}
	if f.mqttTopic != "" {
		m.StateTopic = f.mqttTopic
	}
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
