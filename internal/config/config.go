package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/safesite-vision/ppe-sentinel/internal/models"
)

// Config holds every externally tunable value. YAML file first, environment
// variables override.
type Config struct {
	Postgres struct {
		DSN string `yaml:"dsn" env:"DATABASE_DSN"`
	} `yaml:"postgres"`

	Minio struct {
		Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
		AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
		Bucket    string `yaml:"bucket" env:"MINIO_BUCKET"`
	} `yaml:"minio"`

	Kafka struct {
		Brokers         []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
		GroupID         string   `yaml:"group_id" env:"KAFKA_GROUP_ID"`
		FrameTopic      string   `yaml:"frame_topic" env:"FRAME_TOPIC"`
		HeartbeatTopic  string   `yaml:"heartbeat_topic" env:"HEARTBEAT_TOPIC"`
		StatusTopic     string   `yaml:"status_topic" env:"STATUS_TOPIC"`
		EscalationTopic string   `yaml:"escalation_topic" env:"ESCALATION_TOPIC"`
	} `yaml:"kafka"`

	Events struct {
		ListenAddr string `yaml:"listen_addr" env:"EVENTS_LISTEN_ADDR"`
	} `yaml:"events"`

	Engine Engine `yaml:"engine"`

	SiteName string `yaml:"site_name" env:"SITE_NAME"`
}

// Engine groups the verification and escalation tunables. Durations are
// whole seconds, matching how operators configure them.
type Engine struct {
	WindowSeconds      int     `yaml:"window_seconds" env:"WINDOW_SECONDS"`
	MinSamples         int     `yaml:"min_samples" env:"MIN_SAMPLES"`
	MajorityThreshold  float64 `yaml:"majority_threshold" env:"MAJORITY_THRESHOLD"`
	MinConfirmSeconds  int     `yaml:"min_confirm_seconds" env:"MIN_CONFIRM_SECONDS"`
	HeartbeatSeconds   int     `yaml:"heartbeat_seconds" env:"HEARTBEAT_SECONDS"`
	SweepSeconds       int     `yaml:"sweep_seconds" env:"SWEEP_SECONDS"`
	EscalationMultiple int     `yaml:"escalation_multiple" env:"ESCALATION_MULTIPLE"`
	CaptureSeconds     int     `yaml:"capture_seconds" env:"CAPTURE_SECONDS"`

	// MinConfidence below which a detection counts as absent, per class.
	MinConfidence map[models.PPEClass]float64 `yaml:"min_confidence"`

	// Requirements maps a zone risk level to its mandatory PPE classes.
	Requirements map[models.RiskLevel][]models.PPEClass `yaml:"requirements"`
}

func (e Engine) Window() time.Duration         { return time.Duration(e.WindowSeconds) * time.Second }
func (e Engine) MinConfirmSpan() time.Duration { return time.Duration(e.MinConfirmSeconds) * time.Second }
func (e Engine) HeartbeatTimeout() time.Duration {
	return time.Duration(e.HeartbeatSeconds) * time.Second
}
func (e Engine) SweepInterval() time.Duration  { return time.Duration(e.SweepSeconds) * time.Second }
func (e Engine) CaptureTimeout() time.Duration { return time.Duration(e.CaptureSeconds) * time.Second }

// MandatoryFor returns the PPE set a zone at the given risk level requires.
func (e Engine) MandatoryFor(risk models.RiskLevel) []models.PPEClass {
	if classes, ok := e.Requirements[risk]; ok {
		return classes
	}
	return defaultRequirements[risk]
}

// ConfidenceFor returns the per-class detection threshold.
func (e Engine) ConfidenceFor(class models.PPEClass) float64 {
	if v, ok := e.MinConfidence[class]; ok {
		return v
	}
	return defaultMinConfidence
}

const defaultMinConfidence = 0.5

var defaultRequirements = map[models.RiskLevel][]models.PPEClass{
	models.RiskLow:    {models.PPEHelmet, models.PPEVest},
	models.RiskMedium: {models.PPEHelmet, models.PPEVest},
	models.RiskHigh:   {models.PPEHelmet, models.PPEVest, models.PPEGloves, models.PPEBoots},
}

func LoadConfig(filename string) (*Config, error) {
	cfg := &Config{}

	if filename == "" {
		filename = "local.yaml"
	}

	// The file is optional; env vars alone can carry a full config.
	data, err := os.ReadFile(filename)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", filename, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Minio.Bucket == "" {
		c.Minio.Bucket = "violations"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "ppe-sentinel"
	}
	if c.Kafka.FrameTopic == "" {
		c.Kafka.FrameTopic = "ppe-frames"
	}
	if c.Kafka.HeartbeatTopic == "" {
		c.Kafka.HeartbeatTopic = "camera-heartbeats"
	}
	if c.Kafka.StatusTopic == "" {
		c.Kafka.StatusTopic = "camera-status"
	}
	if c.Kafka.EscalationTopic == "" {
		c.Kafka.EscalationTopic = "ppe-escalations"
	}
	if c.Events.ListenAddr == "" {
		c.Events.ListenAddr = ":8081"
	}
	if c.SiteName == "" {
		c.SiteName = "Site"
	}

	e := &c.Engine
	if e.WindowSeconds == 0 {
		e.WindowSeconds = 10
	}
	if e.MinSamples == 0 {
		e.MinSamples = 5
	}
	if e.MajorityThreshold == 0 {
		e.MajorityThreshold = 0.6
	}
	if e.MinConfirmSeconds == 0 {
		e.MinConfirmSeconds = 8
	}
	if e.HeartbeatSeconds == 0 {
		e.HeartbeatSeconds = 30
	}
	if e.SweepSeconds == 0 {
		e.SweepSeconds = 5
	}
	if e.EscalationMultiple == 0 {
		e.EscalationMultiple = 3
	}
	if e.CaptureSeconds == 0 {
		e.CaptureSeconds = 3
	}
}
