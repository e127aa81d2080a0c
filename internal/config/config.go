package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Monitor MonitorConfig `yaml:"monitor"`
	Probes  ProbeConfig   `yaml:"probes"`
	Audit   AuditConfig   `yaml:"audit"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AuthToken      string   `yaml:"auth_token"`
}

type MonitorConfig struct {
	// PollInterval is the steady-state environment check cadence.
	PollInterval time.Duration `yaml:"poll_interval"`
	// ResolveInterval is the faster cadence used while a warning is showing.
	ResolveInterval time.Duration `yaml:"resolve_interval"`
	// WarningGrace is how long the candidate has to clear a violation
	// before the session is terminated. The kiosk shell runs the countdown
	// and reports expiry back over the event channel.
	WarningGrace time.Duration `yaml:"warning_grace"`
}

type ProbeConfig struct {
	// ConferenceProcessNames are matched against the process table to decide
	// whether the video-conferencing app is running.
	ConferenceProcessNames []string `yaml:"conference_process_names"`
	// ScreenShareHelperNames identify the dedicated screen-capture helper
	// process the conferencing app spawns while sharing.
	ScreenShareHelperNames []string `yaml:"screen_share_helper_names"`
	// CameraActiveKey is the hardware-registry key whose affirmative value
	// means the camera is streaming.
	CameraActiveKey string `yaml:"camera_active_key"`
}

type AuditConfig struct {
	Path string `yaml:"path"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 7411,
			Host: "127.0.0.1",
		},
		Monitor: MonitorConfig{
			PollInterval:    2 * time.Second,
			ResolveInterval: time.Second,
			WarningGrace:    30 * time.Second,
		},
		Probes: ProbeConfig{
			ConferenceProcessNames: []string{"zoom.us", "zoom"},
			ScreenShareHelperNames: []string{"CptHost", "caphost"},
			CameraActiveKey:        "VDCAssistant Power State",
		},
		Audit: AuditConfig{
			Path: "session-audit.jsonl",
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault returns defaults when the config file does not exist.
// Any other read or parse error is still fatal.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	return cfg, err
}

func (c *Config) validate() error {
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive, got %s", c.Monitor.PollInterval)
	}
	if c.Monitor.ResolveInterval <= 0 {
		return fmt.Errorf("monitor.resolve_interval must be positive, got %s", c.Monitor.ResolveInterval)
	}
	if c.Monitor.WarningGrace <= 0 {
		return fmt.Errorf("monitor.warning_grace must be positive, got %s", c.Monitor.WarningGrace)
	}
	if len(c.Probes.ConferenceProcessNames) == 0 {
		return fmt.Errorf("probes.conference_process_names must not be empty")
	}
	return nil
}
