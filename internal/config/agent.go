package config

import (
	"fmt"
	"os"
	"time"
)

// AgentConfig configures the field agent that keeps the offline queue.
type AgentConfig struct {
	QueuePath      string
	APIBaseURL     string
	APIToken       string
	UserID         string
	SyncInterval   time.Duration
	ProbeInterval  time.Duration
	ProbeTimeout   time.Duration
	ItemTimeout    time.Duration
	BackoffBase    time.Duration
	PurgeAfter     time.Duration
	LogOutputPaths []string
}

func LoadAgent(dir string) (*AgentConfig, error) {
	v := newViper(dir, "agent")
	v.SetDefault("agent.queue_path", "offline-queue.db")
	v.SetDefault("agent.api_base_url", "http://localhost:8080")
	v.SetDefault("agent.sync_interval", 5*time.Minute)
	v.SetDefault("agent.probe_interval", 15*time.Second)
	v.SetDefault("agent.probe_timeout", 3*time.Second)
	v.SetDefault("agent.item_timeout", 30*time.Second)
	v.SetDefault("agent.backoff_base", time.Duration(0))
	v.SetDefault("agent.purge_after", 7*24*time.Hour)
	v.SetDefault("agent.log_output_paths", []string{"stdout"})
	if err := readConfig(v); err != nil {
		return nil, fmt.Errorf("reading agent config: %w", err)
	}

	cfg := AgentConfig{
		QueuePath:      v.GetString("agent.queue_path"),
		APIBaseURL:     v.GetString("agent.api_base_url"),
		UserID:         v.GetString("agent.user_id"),
		SyncInterval:   v.GetDuration("agent.sync_interval"),
		ProbeInterval:  v.GetDuration("agent.probe_interval"),
		ProbeTimeout:   v.GetDuration("agent.probe_timeout"),
		ItemTimeout:    v.GetDuration("agent.item_timeout"),
		BackoffBase:    v.GetDuration("agent.backoff_base"),
		PurgeAfter:     v.GetDuration("agent.purge_after"),
		LogOutputPaths: v.GetStringSlice("agent.log_output_paths"),
	}
	cfg.APIToken = os.Getenv("AGENT_API_TOKEN")
	if cfg.UserID == "" {
		return nil, fmt.Errorf("agent.user_id is not set")
	}
	return &cfg, nil
}
