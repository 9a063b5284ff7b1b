package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete feedd configuration
type Config struct {
	InstanceID       string        `yaml:"instance_id"`
	ShutdownTimeoutS int           `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Feed             FeedConfig    `yaml:"feed"`
	Player           PlayerConfig  `yaml:"player"`
	Catalog          CatalogConfig `yaml:"catalog"`
	Resume           ResumeConfig  `yaml:"resume"`
	MQTT             MQTTConfig    `yaml:"mqtt"`
}

// FeedConfig contains window and pagination settings
type FeedConfig struct {
	ID                  string `yaml:"id"`
	Backward            int    `yaml:"backward"`             // live items behind the target
	Forward             int    `yaml:"forward"`              // live items ahead of the target
	Strategy            string `yaml:"strategy"`             // reanchor, incremental
	Capacity            int    `yaml:"capacity"`             // incremental window size
	PaginationThreshold int    `yaml:"pagination_threshold"` // remaining items that trigger a fetch
	PageSize            int    `yaml:"page_size"`            // items per catalog page
	AutoplayFirst       bool   `yaml:"autoplay_first"`
	QuiescenceMS        int    `yaml:"quiescence_ms"` // pause around each player disposal
	InitRetries         int    `yaml:"init_retries"`
}

// PlayerConfig selects and tunes the player backend
type PlayerConfig struct {
	Backend          string `yaml:"backend"`    // gst, sim
	VideoSink        string `yaml:"video_sink"` // playbin video-sink description
	AudioSink        string `yaml:"audio_sink"` // playbin audio-sink description
	Loop             bool   `yaml:"loop"`
	SimInitLatencyMS int    `yaml:"sim_init_latency_ms"`
}

// CatalogConfig locates the feed catalog database
type CatalogConfig struct {
	DBPath string `yaml:"db_path"`
}

// ResumeConfig locates the resume position store
type ResumeConfig struct {
	Dir string `yaml:"dir"` // empty disables resume
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker   string          `yaml:"broker"` // host:port, empty disables MQTT
	ClientID string          `yaml:"client_id"`
	Topics   MQTTTopics      `yaml:"topics"`
	QoS      map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic names
type MQTTTopics struct {
	Control string `yaml:"control"`
	Events  string `yaml:"events"`
	Status  string `yaml:"status"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses and validates YAML configuration data
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
