package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App         AppConfig         `yaml:"app"`
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Storage     StorageConfig     `yaml:"storage"`
	ExternalAPI ExternalAPIConfig `yaml:"external_api"`
	Progress    ProgressConfig    `yaml:"progress"`
	Import      ImportConfig      `yaml:"import"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name" validate:"required"`
	Version string `yaml:"version"`
	Env     string `yaml:"env" validate:"omitempty,oneof=development staging production test"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig points at the MySQL database holding submission history.
// An empty host disables history persistence.
type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name" validate:"required_with=Host"`
	Charset            string        `yaml:"charset"`
	ParseTime          bool          `yaml:"parse_time"`
	Loc                string        `yaml:"loc"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
}

// RedisConfig backs the push progress stream and the provisioning lock.
// An empty host disables both; progress then relies on polling alone.
type RedisConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Password        string        `yaml:"password"`
	DB              int           `yaml:"db"`
	PoolSize        int           `yaml:"pool_size"`
	ProgressChannel string        `yaml:"progress_channel"`
	LockPrefix      string        `yaml:"lock_prefix"`
	LockTTL         time.Duration `yaml:"lock_ttl"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config is where submitted source files are archived. An empty bucket
// disables archiving.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	PublicURL string `yaml:"public_url"`
}

type ExternalAPIConfig struct {
	Identity     IdentityAPIConfig     `yaml:"identity"`
	Provisioning ProvisioningAPIConfig `yaml:"provisioning"`
}

type IdentityAPIConfig struct {
	BaseURL          string        `yaml:"base_url" validate:"required,url"`
	Token            string        `yaml:"token"`
	Timeout          time.Duration `yaml:"timeout"`
	ImportEndpoint   string        `yaml:"import_endpoint"`
	BatchEndpoint    string        `yaml:"batch_endpoint"`
	TemplateEndpoint string        `yaml:"template_endpoint"`
}

type ProvisioningAPIConfig struct {
	BaseURL       string        `yaml:"base_url" validate:"required,url"`
	Token         string        `yaml:"token"`
	Timeout       time.Duration `yaml:"timeout"`
	BatchEndpoint string        `yaml:"batch_endpoint"`
}

type ProgressConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	StreamDefault bool          `yaml:"stream_default"`
}

type ImportConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	return LoadFile(configPath)
}

func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "identity-onboarding"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	// The progress endpoint streams, so writes are not bounded by default.
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Database.Loc == "" {
		c.Database.Loc = "UTC"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.ProgressChannel == "" {
		c.Redis.ProgressChannel = "identity:batch:%s:progress"
	}
	if c.Redis.LockPrefix == "" {
		c.Redis.LockPrefix = "onboarding:lock:"
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 2 * time.Minute
	}

	id := &c.ExternalAPI.Identity
	if id.Timeout == 0 {
		id.Timeout = 60 * time.Second
	}
	if id.ImportEndpoint == "" {
		id.ImportEndpoint = "/identity/batches/import"
	}
	if id.BatchEndpoint == "" {
		id.BatchEndpoint = "/identity/batches"
	}
	if id.TemplateEndpoint == "" {
		id.TemplateEndpoint = "/identity/templates"
	}

	prov := &c.ExternalAPI.Provisioning
	if prov.BaseURL == "" {
		prov.BaseURL = id.BaseURL
	}
	if prov.Token == "" {
		prov.Token = id.Token
	}
	if prov.Timeout == 0 {
		prov.Timeout = id.Timeout
	}
	if prov.BatchEndpoint == "" {
		prov.BatchEndpoint = "/provisioning/batches"
	}

	if c.Progress.PollInterval == 0 {
		c.Progress.PollInterval = 2 * time.Second
	}
	if c.Import.MaxUploadBytes == 0 {
		c.Import.MaxUploadBytes = 10 << 20
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// MySQL DSN format: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Charset, c.Database.ParseTime, c.Database.Loc)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c *Config) HistoryEnabled() bool {
	return c.Database.Host != ""
}

func (c *Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

func (c *Config) ArchiveEnabled() bool {
	return c.Storage.S3.Bucket != ""
}
