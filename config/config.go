package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	GRPC       GRPCConfig       `mapstructure:"grpc"`
	Store      StoreConfig      `mapstructure:"store"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	WorkerPool WorkerPoolConfig `mapstructure:"worker_pool"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Rooms      RoomsConfig      `mapstructure:"rooms"`
	Invitation InvitationConfig `mapstructure:"invitation"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// GRPCConfig 健康检查服务，Address 为空时不启动
type GRPCConfig struct {
	Address string `mapstructure:"address"`
}

// StoreConfig 选择持久化后端: memory, postgres, redis
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// RateLimitConfig 访客接口的限流规则（每分钟）
type RateLimitConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	FailOpen        bool `mapstructure:"fail_open"`
	VerifyPerMinute int  `mapstructure:"verify_per_minute"`
	JoinPerMinute   int  `mapstructure:"join_per_minute"`
	StatusPerMinute int  `mapstructure:"status_per_minute"`
	APIPerMinute    int  `mapstructure:"api_per_minute"`
	InvitePerMinute int  `mapstructure:"invite_per_minute"`
	MaxConcurrency  int  `mapstructure:"max_concurrency"`
}

type WorkerPoolConfig struct {
	Size      int `mapstructure:"size"`
	QueueSize int `mapstructure:"queue_size"`
}

type KafkaConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	MaxRetries     int      `mapstructure:"max_retries"`
	RetryBackoffMs int      `mapstructure:"retry_backoff_ms"`
	// 事件 ID 的节点号，多实例部署时需各不相同
	NodeID int64 `mapstructure:"node_id"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

type RoomsConfig struct {
	LockStripes int `mapstructure:"lock_stripes"`
}

type InvitationConfig struct {
	TTL            time.Duration `mapstructure:"ttl"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	GuestRetention time.Duration `mapstructure:"guest_retention"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 9000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("postgres.max_idle_conns", 10)
	v.SetDefault("postgres.max_open_conns", 50)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("ratelimit.fail_open", true)
	v.SetDefault("ratelimit.verify_per_minute", 30)
	v.SetDefault("ratelimit.join_per_minute", 10)
	v.SetDefault("ratelimit.status_per_minute", 120)
	v.SetDefault("ratelimit.api_per_minute", 300)
	v.SetDefault("ratelimit.invite_per_minute", 60)
	v.SetDefault("worker_pool.size", 4)
	v.SetDefault("worker_pool.queue_size", 1024)
	v.SetDefault("kafka.topic", "room.invitations")
	v.SetDefault("kafka.max_retries", 5)
	v.SetDefault("kafka.retry_backoff_ms", 100)
	v.SetDefault("kafka.node_id", 1)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("rooms.lock_stripes", 256)
	v.SetDefault("invitation.ttl", 24*time.Hour)
	v.SetDefault("invitation.sweep_interval", time.Duration(0))
	v.SetDefault("invitation.guest_retention", 7*24*time.Hour)
}

// LoadConfig 读取配置文件，环境变量 ROOMS_<SECTION>_<KEY> 可覆盖文件中的值
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("ROOMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate 检查跨字段约束
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "postgres", "redis":
	default:
		return fmt.Errorf("不支持的存储驱动: %q", c.Store.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret 不能为空")
	}
	if c.Invitation.TTL <= 0 {
		return fmt.Errorf("invitation.ttl 必须大于 0")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka 已启用但未配置 brokers")
	}
	return nil
}
