package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	pkgconfig "github.com/weiawesome/chat-relay/pkg/config"
	"github.com/weiawesome/chat-relay/pkg/database"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Chat      ChatConfig
	Store     StoreConfig
	Database  database.Config
	Mongo     MongoConfig
	Cassandra CassandraConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	ID        IDConfig
	CORS      CORSConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	StaticDir       string        `mapstructure:"static_dir"`
	ShutdownTimeout time.Duration `mapstructure:"-"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"-"`
	PongWait       time.Duration `mapstructure:"-"`
	WriteWait      time.Duration `mapstructure:"-"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBufferSize int           `mapstructure:"send_buffer_size"`
}

type ChatConfig struct {
	DefaultRoom      string `mapstructure:"default_room"`
	HistoryLimit     int    `mapstructure:"history_limit"`
	APIHistoryLimit  int    `mapstructure:"api_history_limit"`
	MaxMessageLength int    `mapstructure:"max_message_length"`
}

// StoreConfig selects the persistence backend: memory, gorm, mongo or cassandra.
type StoreConfig struct {
	Driver  string
	Timeout time.Duration `mapstructure:"-"`
}

type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration `mapstructure:"-"`
}

type CassandraConfig struct {
	Hosts          []string
	Keyspace       string
	Consistency    string
	Username       string
	Password       string
	ConnectTimeout time.Duration `mapstructure:"-"`
	Timeout        time.Duration `mapstructure:"-"`
	NumConns       int           `mapstructure:"num_conns"`
}

type RedisConfig struct {
	Enabled     bool
	Address     string
	Password    string
	DB          int
	CachePrefix string        `mapstructure:"cache_prefix"`
	CacheTTL    time.Duration `mapstructure:"-"`
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    string
	Topic      string
	Partitions int
}

type IDConfig struct {
	Strategy  string
	Snowflake SnowflakeConfig
	NanoID    NanoIDConfig `mapstructure:"nanoid"`
	CUID2     CUID2Config  `mapstructure:"cuid2"`
}

type SnowflakeConfig struct {
	MachineID int64 `mapstructure:"machine_id"`
	Epoch     int64
}

type NanoIDConfig struct {
	Size     int
	Alphabet string
}

type CUID2Config struct {
	Length int
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads .env, config.yaml from CONFIG_DIR (default ./config) and the
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	if err := pkgconfig.LoadDotEnv(); err != nil {
		return nil, err
	}

	v, err := pkgconfig.Load(pkgconfig.GetEnv("CONFIG_DIR", "./config"), "config")
	if err != nil {
		return nil, err
	}

	SetDefaults(v)

	return FromViper(v)
}

// SetDefaults registers default values and the environment variable aliases.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.static_dir", "public")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.send_buffer_size", 256)
	v.SetDefault("chat.default_room", "general")
	v.SetDefault("chat.history_limit", 50)
	v.SetDefault("chat.api_history_limit", 100)
	v.SetDefault("chat.max_message_length", 2000)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.timeout", "5s")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "chat.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017/chatapp")
	v.SetDefault("mongo.database", "chatapp")
	v.SetDefault("mongo.timeout", "10s")
	v.SetDefault("cassandra.hosts", []string{"localhost"})
	v.SetDefault("cassandra.keyspace", "chat")
	v.SetDefault("cassandra.consistency", "LOCAL_QUORUM")
	v.SetDefault("cassandra.connect_timeout", "5s")
	v.SetDefault("cassandra.timeout", "3s")
	v.SetDefault("cassandra.num_conns", 2)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_prefix", "chat:history")
	v.SetDefault("redis.cache_ttl", "30s")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "chat-messages")
	v.SetDefault("kafka.partitions", 4)
	v.SetDefault("id.strategy", "ulid")
	v.SetDefault("id.snowflake.machine_id", 1)
	v.SetDefault("id.snowflake.epoch", 1704067200000)
	v.SetDefault("id.nanoid.size", 21)
	v.SetDefault("id.nanoid.alphabet", "_-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	v.SetDefault("id.cuid2.length", 24)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.BindEnv("server.port", "PORT")
	v.BindEnv("store.driver", "STORE_DRIVER")
	v.BindEnv("mongo.uri", "MONGODB_URI")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("cors.allowed_origins", "ALLOWED_ORIGINS")
	v.BindEnv("log.level", "LOG_LEVEL")
}

// FromViper decodes a populated viper instance into a Config.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Server.ShutdownTimeout = parseDuration(v, "server.shutdown_timeout", 30*time.Second)
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Store.Timeout = parseDuration(v, "store.timeout", 5*time.Second)
	cfg.Mongo.Timeout = parseDuration(v, "mongo.timeout", 10*time.Second)
	cfg.Cassandra.ConnectTimeout = parseDuration(v, "cassandra.connect_timeout", 5*time.Second)
	cfg.Cassandra.Timeout = parseDuration(v, "cassandra.timeout", 3*time.Second)
	cfg.Redis.CacheTTL = parseDuration(v, "redis.cache_ttl", 30*time.Second)

	cfg.CORS.AllowedOrigins = splitList(v.GetStringSlice("cors.allowed_origins"))
	cfg.Cassandra.Hosts = splitList(v.GetStringSlice("cassandra.hosts"))

	if cfg.Chat.DefaultRoom == "" {
		cfg.Chat.DefaultRoom = "general"
	}
	cfg.WebSocket.MaxMessageSize = FrameLimit(cfg.WebSocket.MaxMessageSize, cfg.Chat.MaxMessageLength)

	return &cfg, nil
}

// FrameLimit returns the websocket read limit, raised when needed so that a
// chat message of maxLength runes still fits with every rune sent as an
// escaped surrogate pair. Oversized bodies are then rejected by validation
// instead of the transport closing the connection.
func FrameLimit(configured int64, maxLength int) int64 {
	floor := int64(maxLength)*12 + 1024
	if configured < floor {
		return floor
	}
	return configured
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
