package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"HealthForce-Goa/pkg/logger"
)

// EnvConfigPath 指定配置文件路径的环境变量。
const EnvConfigPath = "HEALTHFORCE_CONFIG"

// EnvAPIURL 覆盖 gateway.base_url，便于临时指向其他后端。
const EnvAPIURL = "HEALTHFORCE_API_URL"

// DefaultPath 是未设置环境变量时查找的配置文件。
var DefaultPath = filepath.Join("configs", "healthforce.yaml")

// Config 描述了客户端与本地模拟后端共用的配置。
type Config struct {
	Gateway  GatewayConfig  `json:"gateway" yaml:"gateway"`
	UI       UIConfig       `json:"ui" yaml:"ui"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Queue    QueueConfig    `json:"queue" yaml:"queue"`
	Surge    SurgeConfig    `json:"surge" yaml:"surge"`
	Log      logger.Config  `json:"log" yaml:"log"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
	Alerting AlertingConfig `json:"alerting" yaml:"alerting"`
}

// GatewayConfig 控制 API 客户端访问的后端。
type GatewayConfig struct {
	BaseURL     string `json:"base_url" yaml:"base_url"`
	BasePath    string `json:"base_path" yaml:"base_path"`
	DefaultZone string `json:"default_zone" yaml:"default_zone"`
}

// UIConfig 用于终端界面。
type UIConfig struct {
	InitialPage string `json:"initial_page" yaml:"initial_page"`
	// LogFile 接收界面运行期间的日志，避免污染终端。
	LogFile string `json:"log_file" yaml:"log_file"`
}

// ServerConfig 控制模拟后端的监听地址等参数。
type ServerConfig struct {
	Address                string   `json:"address" yaml:"address"`
	AllowedOrigins         []string `json:"allowed_origins" yaml:"allowed_origins"`
	ShutdownTimeoutSeconds int      `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// StorageConfig 描述运行记录的存储后端。
type StorageConfig struct {
	RunStore RunStoreConfig `json:"run_store" yaml:"run_store"`
}

// RunStoreConfig 支持 memory 与 mysql 两种驱动。
type RunStoreConfig struct {
	Driver                 string `json:"driver" yaml:"driver"`
	DSN                    string `json:"dsn" yaml:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds" yaml:"conn_max_idle_time_seconds"`
}

// QueueConfig 描述分析任务的投递方式。
type QueueConfig struct {
	Driver   string         `json:"driver" yaml:"driver"`
	Workers  int            `json:"workers" yaml:"workers"`
	Size     int            `json:"size" yaml:"size"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

// RedisConfig 对应 redis 队列驱动。
type RedisConfig struct {
	Address          string `json:"address" yaml:"address"`
	Password         string `json:"password" yaml:"password"`
	DB               int    `json:"db" yaml:"db"`
	Queue            string `json:"queue" yaml:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds" yaml:"block_wait_seconds"`
}

// RabbitMQConfig 对应 rabbitmq 队列驱动。
type RabbitMQConfig struct {
	URL        string `json:"url" yaml:"url"`
	Queue      string `json:"queue" yaml:"queue"`
	Prefetch   int    `json:"prefetch" yaml:"prefetch"`
	Durable    bool   `json:"durable" yaml:"durable"`
	AutoDelete bool   `json:"auto_delete" yaml:"auto_delete"`
}

// SurgeConfig 控制模拟分析流程。
type SurgeConfig struct {
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
	// StepDelayMillis 是模拟流水线每个阶段的停顿。
	StepDelayMillis int `json:"step_delay_millis" yaml:"step_delay_millis"`
}

// MetricsConfig 控制 /metrics 端点。Address 为空时挂在 API 路由上。
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
	Address string `json:"address" yaml:"address"`
}

// AlertingConfig 控制运行最终失败时的告警。
type AlertingConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	WebhookURL     string `json:"webhook_url" yaml:"webhook_url"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Load 负责解析指定路径的配置文件，.yaml/.yml 按 YAML 解析，其余按 JSON。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &cfg)
	default:
		err = json.Unmarshal(content, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults(filepath.Dir(path))
	return &cfg, nil
}

// Resolve 按 HEALTHFORCE_CONFIG、DefaultPath 的顺序查找配置。
// 两者都不存在时返回默认配置，显式指定但无法读取的路径仍然报错。
func Resolve() (*Config, string, error) {
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		cfg, err := Load(path)
		return cfg, path, err
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		cfg, err := Load(DefaultPath)
		return cfg, DefaultPath, err
	}
	return Default(), "", nil
}

// Default 返回只包含默认值的配置。
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	cfg.applyDefaults(".")
	return cfg
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		c.Gateway.BaseURL = v
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Gateway.BaseURL == "" {
		c.Gateway.BaseURL = "http://localhost:8000"
	}
	if c.Gateway.BasePath == "" {
		c.Gateway.BasePath = "/api"
	}
	if c.Gateway.DefaultZone == "" {
		c.Gateway.DefaultZone = "Mumbai-West"
	}

	if c.UI.LogFile == "" {
		c.UI.LogFile = filepath.Join(baseDir, "healthforce-ui.log")
	} else if !filepath.IsAbs(c.UI.LogFile) {
		c.UI.LogFile = filepath.Join(baseDir, c.UI.LogFile)
	}

	if c.Server.Address == "" {
		c.Server.Address = ":8000"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 5
	}

	if c.Storage.RunStore.Driver == "" {
		c.Storage.RunStore.Driver = "memory"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 2
	}
	if c.Queue.Size <= 0 {
		c.Queue.Size = 256
	}
	if c.Queue.Redis.Queue == "" {
		c.Queue.Redis.Queue = "healthforce:surge_runs"
	}
	if c.Queue.Redis.BlockWaitSeconds <= 0 {
		c.Queue.Redis.BlockWaitSeconds = 5
	}
	if c.Queue.RabbitMQ.Queue == "" {
		c.Queue.RabbitMQ.Queue = "healthforce.surge_runs"
	}

	if c.Surge.MaxRetries <= 0 {
		c.Surge.MaxRetries = 3
	}
	if c.Surge.StepDelayMillis < 0 {
		c.Surge.StepDelayMillis = 0
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Audit.Enabled && c.Log.Audit.Path != "" && !filepath.IsAbs(c.Log.Audit.Path) {
		c.Log.Audit.Path = filepath.Join(baseDir, c.Log.Audit.Path)
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Alerting.TimeoutSeconds <= 0 {
		c.Alerting.TimeoutSeconds = 5
	}
}
