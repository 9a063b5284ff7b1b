package config

import (
	"fmt"
	"regexp"

	"github.com/chdown/preload"
)

var idPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks if the configuration is valid and fills defaults
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !idPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}
	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	if err := validateFeed(&cfg.Feed); err != nil {
		return fmt.Errorf("feed: %w", err)
	}

	switch cfg.Player.Backend {
	case "":
		cfg.Player.Backend = "gst"
	case "gst", "sim":
	default:
		return fmt.Errorf("player.backend must be gst or sim, got %q", cfg.Player.Backend)
	}
	if cfg.Player.SimInitLatencyMS < 0 {
		return fmt.Errorf("player.sim_init_latency_ms must be >= 0")
	}

	if cfg.Catalog.DBPath == "" {
		return fmt.Errorf("catalog.db_path is required")
	}

	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = fmt.Sprintf("feedd-%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Control == "" {
			cfg.MQTT.Topics.Control = fmt.Sprintf("feed/control/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Events == "" {
			cfg.MQTT.Topics.Events = fmt.Sprintf("feed/events/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Status == "" {
			cfg.MQTT.Topics.Status = fmt.Sprintf("feed/status/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS == nil {
			cfg.MQTT.QoS = map[string]byte{
				"control": 1,
				"events":  0,
				"status":  1,
			}
		}
		for name, qos := range cfg.MQTT.QoS {
			if qos > 2 {
				return fmt.Errorf("mqtt.qos.%s must be 0, 1 or 2, got %d", name, qos)
			}
		}
	}

	return nil
}

func validateFeed(feed *FeedConfig) error {
	if feed.ID == "" {
		feed.ID = "default"
	}
	if feed.Backward < 0 || feed.Forward < 0 {
		return fmt.Errorf("backward and forward must be >= 0")
	}
	if feed.Backward == 0 && feed.Forward == 0 {
		feed.Backward, feed.Forward = 1, 2
	}

	strategy, err := preload.ParseStrategy(feed.Strategy)
	if err != nil {
		return err
	}
	feed.Strategy = strategy.String()
	if strategy == preload.StrategyIncremental {
		if feed.Capacity == 0 {
			feed.Capacity = feed.Backward + feed.Forward + 1
		}
		if feed.Capacity <= feed.Backward+feed.Forward {
			return fmt.Errorf("capacity %d must exceed backward+forward (%d)", feed.Capacity, feed.Backward+feed.Forward)
		}
	}

	if feed.PaginationThreshold < 0 {
		return fmt.Errorf("pagination_threshold must be >= 0")
	}
	if feed.PaginationThreshold == 0 {
		feed.PaginationThreshold = 3
	}
	if feed.PageSize <= 0 {
		feed.PageSize = 20
	}
	if feed.QuiescenceMS < 0 {
		return fmt.Errorf("quiescence_ms must be >= 0")
	}
	if feed.InitRetries < 0 {
		return fmt.Errorf("init_retries must be >= 0")
	}
	return nil
}
