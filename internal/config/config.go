// Package config loads the client and hub configuration.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/weiawesome/wes-io-sync/internal/channel"
	"github.com/weiawesome/wes-io-sync/internal/hub"
	"github.com/weiawesome/wes-io-sync/internal/transfer"
	pkgconfig "github.com/weiawesome/wes-io-sync/pkg/config"
	"github.com/weiawesome/wes-io-sync/pkg/pubsub"
	"github.com/weiawesome/wes-io-sync/pkg/storage"
)

// ClientConfig configures a room participant.
type ClientConfig struct {
	Server      ServerURLConfig   `mapstructure:"server"`
	Room        RoomConfig        `mapstructure:"room"`
	Participant ParticipantConfig `mapstructure:"participant"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Channel     channel.Config    `mapstructure:"channel"`
	Storage     storage.Config    `mapstructure:"storage"`
	Transfer    transfer.Config   `mapstructure:"transfer"`
	Playback    PlaybackConfig    `mapstructure:"playback"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerURLConfig struct {
	URL string `mapstructure:"url"`
}

type RoomConfig struct {
	ID           string `mapstructure:"id"`
	Name         string `mapstructure:"name"`
	Namespace    string `mapstructure:"namespace"`
	PlaylistPath string `mapstructure:"playlist_path"`
}

type ParticipantConfig struct {
	Name string `mapstructure:"name"`
}

// AuthConfig holds token settings. A client uses Token when set and
// otherwise mints one from Secret.
type AuthConfig struct {
	Token          string        `mapstructure:"token"`
	Secret         string        `mapstructure:"secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessDuration time.Duration `mapstructure:"access_duration"`
}

type PlaybackConfig struct {
	SyncTolerance time.Duration `mapstructure:"sync_tolerance"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// HubConfig configures the coordination hub.
type HubConfig struct {
	Server    ServerConfig  `mapstructure:"server"`
	WebSocket hub.Config    `mapstructure:"websocket"`
	Auth      AuthConfig    `mapstructure:"auth"`
	PubSub    pubsub.Config `mapstructure:"pubsub"`
	Log       LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

func setAuthDefaults(v *viper.Viper) {
	v.SetDefault("auth.issuer", "syncplay")
	v.SetDefault("auth.access_duration", "12h")
	v.SetDefault("auth.secret", "")

	v.BindEnv("auth.secret", "SYNCPLAY_SECRET")
}

// LoadClient reads the client configuration from file, or from
// ./config/client.yaml when file is empty, with environment overrides.
func LoadClient(file string) (*ClientConfig, error) {
	v, err := pkgconfig.LoadFile(file, "./config", "client")
	if err != nil {
		return nil, err
	}

	v.SetDefault("server.url", "ws://localhost:8090/ws")
	v.SetDefault("room.namespace", "syncplay")
	v.SetDefault("room.playlist_path", "./media")
	v.SetDefault("participant.name", pkgconfig.GetEnv("USER", "guest"))
	v.SetDefault("auth.token", "")
	v.SetDefault("channel.handshake_timeout", "10s")
	v.SetDefault("channel.write_wait", "10s")
	v.SetDefault("channel.pong_wait", "60s")
	v.SetDefault("channel.ping_interval", "30s")
	v.SetDefault("channel.max_message_size", 1<<20)
	v.SetDefault("channel.max_reconnect_delay", "5s")
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local.base_path", "./data/chunks")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.bucket", "syncplay")
	v.SetDefault("storage.s3.use_path_style", true)
	v.SetDefault("transfer.chunk_size", transfer.DefaultChunkSize)
	v.SetDefault("transfer.workers", transfer.DefaultWorkers)
	v.SetDefault("transfer.temp_dir", "")
	v.SetDefault("playback.sync_tolerance", "0s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
	setAuthDefaults(v)

	v.BindEnv("server.url", "SYNCPLAY_SERVER_URL")
	v.BindEnv("auth.token", "SYNCPLAY_TOKEN")
	v.BindEnv("storage.s3.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.s3.access_key_id", "S3_ACCESS_KEY_ID")
	v.BindEnv("storage.s3.secret_access_key", "S3_SECRET_ACCESS_KEY")

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Channel.HandshakeTimeout = pkgconfig.Duration(v, "channel.handshake_timeout", 10*time.Second)
	cfg.Channel.WriteWait = pkgconfig.Duration(v, "channel.write_wait", 10*time.Second)
	cfg.Channel.PongWait = pkgconfig.Duration(v, "channel.pong_wait", 60*time.Second)
	cfg.Channel.PingInterval = pkgconfig.Duration(v, "channel.ping_interval", 30*time.Second)
	cfg.Channel.MaxReconnectDelay = pkgconfig.Duration(v, "channel.max_reconnect_delay", 5*time.Second)
	cfg.Playback.SyncTolerance = pkgconfig.Duration(v, "playback.sync_tolerance", 0)
	cfg.Auth.AccessDuration = pkgconfig.Duration(v, "auth.access_duration", 12*time.Hour)
	cfg.Channel.URL = cfg.Server.URL

	return &cfg, nil
}

// LoadHub reads the hub configuration from file, or from
// ./config/hub.yaml when file is empty, with environment overrides.
func LoadHub(file string) (*HubConfig, error) {
	v, err := pkgconfig.LoadFile(file, "./config", "hub")
	if err != nil {
		return nil, err
	}

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 1<<20)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("pubsub.driver", "none")
	v.SetDefault("pubsub.redis.address", "localhost:6379")
	v.SetDefault("pubsub.redis.password", "")
	v.SetDefault("pubsub.redis.db", 0)
	v.SetDefault("pubsub.redis.pool_size", 10)
	v.SetDefault("pubsub.redis.read_timeout", "3s")
	v.SetDefault("pubsub.redis.write_timeout", "3s")
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.group_id", "syncplay-hub")
	v.SetDefault("pubsub.kafka.partitions", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	setAuthDefaults(v)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	v.BindEnv("pubsub.redis.address", "REDIS_ADDRESS")
	v.BindEnv("pubsub.redis.password", "REDIS_PASSWORD")
	v.BindEnv("pubsub.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("pubsub.kafka.group_id", "KAFKA_PUBSUB_GROUP_ID")

	var cfg HubConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.PubSub.Redis.ReadTimeout = pkgconfig.Duration(v, "pubsub.redis.read_timeout", 3*time.Second)
	cfg.PubSub.Redis.WriteTimeout = pkgconfig.Duration(v, "pubsub.redis.write_timeout", 3*time.Second)
	cfg.Auth.AccessDuration = pkgconfig.Duration(v, "auth.access_duration", 12*time.Hour)

	return &cfg, nil
}
