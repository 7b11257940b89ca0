package config

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	pkgconfig "github.com/weiawesome/pawfect-live/pkg/config"
	pkglog "github.com/weiawesome/pawfect-live/pkg/log"
	"github.com/weiawesome/pawfect-live/pkg/pubsub"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Room      RoomConfig
	Auth      AuthConfig
	WebRTC    WebRTCConfig
	PubSub    PubSubConfig
	Kafka     KafkaConfig
	Log       pkglog.Config
}

type ServerConfig struct {
	Host       string
	Port       int
	InstanceID string `mapstructure:"instance_id"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type RoomConfig struct {
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	GracePeriod        time.Duration `mapstructure:"grace_period"`
	ParticipantTimeout time.Duration `mapstructure:"participant_timeout"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

type WebRTCConfig struct {
	ICEServers []ICEServer `mapstructure:"ice_servers"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls" json:"urls"`
	Username   string   `mapstructure:"username" json:"username,omitempty"`
	Credential string   `mapstructure:"credential" json:"credential,omitempty"`
}

type PubSubConfig struct {
	pubsub.Config `mapstructure:",squash"`
	Channel       string `mapstructure:"channel"`
}

// KafkaConfig configures the broadcast lifecycle producer. Empty Brokers
// disables it.
type KafkaConfig struct {
	Brokers    string
	Topic      string
	Partitions int
}

// Enabled reports whether a broker list is configured.
func (k KafkaConfig) Enabled() bool {
	return strings.TrimSpace(k.Brokers) != ""
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "signal-hub")
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper applies defaults and environment bindings to v and decodes it.
func FromViper(v *viper.Viper) (*Config, error) {
	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8084)
	v.SetDefault("server.instance_id", "")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("room.sweep_interval", "5m")
	v.SetDefault("room.grace_period", "1h")
	v.SetDefault("room.participant_timeout", "2m")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "")
	v.SetDefault("pubsub.driver", pubsub.DriverLocal)
	v.SetDefault("pubsub.channel", pubsub.ChannelLiveStatus)
	v.SetDefault("pubsub.redis.address", "localhost:6379")
	v.SetDefault("pubsub.redis.password", "")
	v.SetDefault("pubsub.redis.db", 0)
	v.SetDefault("pubsub.redis.pool_size", 10)
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "broadcast-events")
	v.SetDefault("kafka.partitions", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.instance_id", "INSTANCE_ID")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.jwt_issuer", "JWT_ISSUER")
	v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	v.BindEnv("pubsub.redis.address", "REDIS_ADDRESS")
	v.BindEnv("pubsub.redis.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_BROADCAST_TOPIC")
	v.BindEnv("kafka.partitions", "KAFKA_BROADCAST_PARTITIONS")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.Room.SweepInterval = pkgconfig.Duration(v, "room.sweep_interval", 5*time.Minute)
	cfg.Room.GracePeriod = pkgconfig.Duration(v, "room.grace_period", time.Hour)
	cfg.Room.ParticipantTimeout = pkgconfig.Duration(v, "room.participant_timeout", 2*time.Minute)
	cfg.PubSub.Redis.ReadTimeout = pkgconfig.Duration(v, "pubsub.redis.read_timeout", 3*time.Second)
	cfg.PubSub.Redis.WriteTimeout = pkgconfig.Duration(v, "pubsub.redis.write_timeout", 3*time.Second)

	if cfg.Server.InstanceID == "" {
		cfg.Server.InstanceID = uuid.New().String()
	}
	if cfg.WebSocket.SendBuffer <= 0 {
		cfg.WebSocket.SendBuffer = 256
	}

	return &cfg, nil
}
