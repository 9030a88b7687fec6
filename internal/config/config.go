package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Log       Log       `mapstructure:"log"`
	HTTP      HTTP      `mapstructure:"http"`
	Camera    Camera    `mapstructure:"camera"`
	Inference Inference `mapstructure:"inference"`
	Tracker   Tracker   `mapstructure:"tracker"`
	Pipeline  Pipeline  `mapstructure:"pipeline"`
	OCR       OCR       `mapstructure:"ocr"`
	Registry  Registry  `mapstructure:"registry"`
	Approval  Approval  `mapstructure:"approval"`
	Notify    Notify    `mapstructure:"notify"`
	Events    Events    `mapstructure:"events"`
	Redis     Redis     `mapstructure:"redis"`
	Database  Database  `mapstructure:"database"`
	Snapshots Snapshots `mapstructure:"snapshots"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type HTTP struct {
	Addr           string   `mapstructure:"addr"`
	JWTSecret      string   `mapstructure:"jwt_secret"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	PublicURL      string   `mapstructure:"public_url"`
}

type Camera struct {
	ID            string        `mapstructure:"id"`
	Model         string        `mapstructure:"model"`
	Source        string        `mapstructure:"source"`
	Dir           string        `mapstructure:"dir"`
	SnapshotURL   string        `mapstructure:"snapshot_url"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	FrameInterval time.Duration `mapstructure:"frame_interval"`
}

type Inference struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Tracker struct {
	MaxAge       int     `mapstructure:"max_age"`
	MinHits      int     `mapstructure:"min_hits"`
	IoUThreshold float64 `mapstructure:"iou_threshold"`
}

type Pipeline struct {
	ScoreThreshold float64 `mapstructure:"score_threshold"`
	IoUThreshold   float64 `mapstructure:"iou_threshold"`
}

type OCR struct {
	MaxCropDim     int     `mapstructure:"max_crop_dim"`
	Upscale        int     `mapstructure:"upscale"`
	Enhance        bool    `mapstructure:"enhance"`
	MinConfidence  float64 `mapstructure:"min_confidence"`
	LineTolerance  float64 `mapstructure:"line_tolerance"`
	Policy         string  `mapstructure:"policy"`
	RepeatEvery    int     `mapstructure:"repeat_every"`
	ConfidentVotes int     `mapstructure:"confident_votes"`
	Workers        int     `mapstructure:"workers"`
}

type Registry struct {
	Backend  string        `mapstructure:"backend"`
	Path     string        `mapstructure:"path"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type Approval struct {
	Backend         string        `mapstructure:"backend"`
	Path            string        `mapstructure:"path"`
	ResponseTimeout time.Duration `mapstructure:"response_timeout"`
	Cooldown        time.Duration `mapstructure:"cooldown"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
}

type Notify struct {
	Backend       string        `mapstructure:"backend"`
	TelegramToken string        `mapstructure:"telegram_token"`
	WebhookURL    string        `mapstructure:"webhook_url"`
	QueueSize     int           `mapstructure:"queue_size"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type Events struct {
	MQTTBroker   string `mapstructure:"mqtt_broker"`
	MQTTTopic    string `mapstructure:"mqtt_topic"`
	MQTTClientID string `mapstructure:"mqtt_client_id"`
	MQTTUsername string `mapstructure:"mqtt_username"`
	MQTTPassword string `mapstructure:"mqtt_password"`
	NATSURL      string `mapstructure:"nats_url"`
	NATSSubject  string `mapstructure:"nats_subject"`

	// QueueSize bounds the events waiting for publication.
	QueueSize int           `mapstructure:"queue_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type Database struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type Snapshots struct {
	Dir string `mapstructure:"dir"`
}

const envPrefix = "GATE"

// Load reads configuration from path (optional) and the environment.
// Environment variables use the GATE_ prefix with dots replaced by
// underscores, e.g. GATE_APPROVAL_COOLDOWN=45s.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("http.addr", ":5000")
	v.SetDefault("http.jwt_secret", "")
	v.SetDefault("http.allowed_origins", []string{"*"})
	v.SetDefault("http.public_url", "http://localhost:5000")

	v.SetDefault("camera.id", "gate-1")
	v.SetDefault("camera.model", "generic")
	v.SetDefault("camera.source", "snapshot")
	v.SetDefault("camera.dir", "")
	v.SetDefault("camera.snapshot_url", "")
	v.SetDefault("camera.username", "")
	v.SetDefault("camera.password", "")
	v.SetDefault("camera.frame_interval", 100*time.Millisecond)

	v.SetDefault("inference.url", "http://localhost:8500")
	v.SetDefault("inference.timeout", 5*time.Second)

	v.SetDefault("tracker.max_age", 30)
	v.SetDefault("tracker.min_hits", 3)
	v.SetDefault("tracker.iou_threshold", 0.3)

	v.SetDefault("pipeline.score_threshold", 0.7)
	v.SetDefault("pipeline.iou_threshold", 0.3)

	v.SetDefault("ocr.max_crop_dim", 500)
	v.SetDefault("ocr.upscale", 2)
	v.SetDefault("ocr.enhance", true)
	v.SetDefault("ocr.min_confidence", 0.3)
	v.SetDefault("ocr.line_tolerance", 20.0)
	v.SetDefault("ocr.policy", PolicyOnce)
	v.SetDefault("ocr.repeat_every", 10)
	v.SetDefault("ocr.confident_votes", 3)
	v.SetDefault("ocr.workers", 0)

	v.SetDefault("registry.backend", BackendFile)
	v.SetDefault("registry.path", "db_json/users.json")
	v.SetDefault("registry.cache_ttl", 5*time.Second)

	v.SetDefault("approval.backend", BackendFile)
	v.SetDefault("approval.path", "db_json/izin.json")
	v.SetDefault("approval.response_timeout", 60*time.Second)
	v.SetDefault("approval.cooldown", 30*time.Second)
	v.SetDefault("approval.poll_interval", 500*time.Millisecond)

	v.SetDefault("notify.backend", "none")
	v.SetDefault("notify.telegram_token", "")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.queue_size", 64)
	v.SetDefault("notify.timeout", 10*time.Second)

	v.SetDefault("events.mqtt_broker", "")
	v.SetDefault("events.mqtt_topic", "gate/events")
	v.SetDefault("events.mqtt_client_id", "gate-service")
	v.SetDefault("events.mqtt_username", "")
	v.SetDefault("events.mqtt_password", "")
	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.nats_subject", "gate.events")
	v.SetDefault("events.queue_size", 256)
	v.SetDefault("events.timeout", 15*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "gate:approval:")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "gate.db")

	v.SetDefault("snapshots.dir", "")
}

const (
	PolicyOnce   = "once"
	PolicyRepeat = "repeat"

	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendDatabase = "database"
)

func (c *Config) Validate() error {
	var errs []error

	if c.Pipeline.ScoreThreshold < 0 || c.Pipeline.ScoreThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.score_threshold must be within [0,1], got %v", c.Pipeline.ScoreThreshold))
	}
	if c.Pipeline.IoUThreshold <= 0 || c.Pipeline.IoUThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.iou_threshold must be within (0,1], got %v", c.Pipeline.IoUThreshold))
	}
	if c.OCR.Upscale < 1 {
		errs = append(errs, fmt.Errorf("ocr.upscale must be >= 1, got %d", c.OCR.Upscale))
	}
	if c.OCR.MaxCropDim <= 0 {
		errs = append(errs, fmt.Errorf("ocr.max_crop_dim must be positive, got %d", c.OCR.MaxCropDim))
	}
	if c.OCR.Workers < 0 {
		errs = append(errs, fmt.Errorf("ocr.workers must be >= 0, got %d", c.OCR.Workers))
	}
	switch c.OCR.Policy {
	case PolicyOnce:
	case PolicyRepeat:
		if c.OCR.RepeatEvery < 1 {
			errs = append(errs, fmt.Errorf("ocr.repeat_every must be >= 1 for the repeat policy"))
		}
		if c.OCR.ConfidentVotes < 1 {
			errs = append(errs, fmt.Errorf("ocr.confident_votes must be >= 1 for the repeat policy"))
		}
	default:
		errs = append(errs, fmt.Errorf("ocr.policy must be %q or %q, got %q", PolicyOnce, PolicyRepeat, c.OCR.Policy))
	}

	switch c.Registry.Backend {
	case BackendFile, BackendDatabase:
	default:
		errs = append(errs, fmt.Errorf("registry.backend must be file or database, got %q", c.Registry.Backend))
	}
	switch c.Approval.Backend {
	case BackendFile, BackendRedis, BackendDatabase:
	default:
		errs = append(errs, fmt.Errorf("approval.backend must be file, redis or database, got %q", c.Approval.Backend))
	}
	if c.Approval.ResponseTimeout <= 0 {
		errs = append(errs, fmt.Errorf("approval.response_timeout must be positive"))
	}
	if c.Approval.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("approval.cooldown must not be negative"))
	}

	switch c.Notify.Backend {
	case "none":
	case "telegram":
		if c.Notify.TelegramToken == "" {
			errs = append(errs, fmt.Errorf("notify.telegram_token is required for the telegram backend"))
		}
	case "webhook":
		if c.Notify.WebhookURL == "" {
			errs = append(errs, fmt.Errorf("notify.webhook_url is required for the webhook backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("notify.backend must be none, telegram or webhook, got %q", c.Notify.Backend))
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver))
	}

	return errors.Join(errs...)
}
