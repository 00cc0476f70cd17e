package channel

import "time"

// Config holds room channel settings.
type Config struct {
	// URL is the hub websocket endpoint including room and role query
	// parameters, e.g. ws://hub:8090/ws?room=r1&role=peer.
	URL string `mapstructure:"url"`

	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`

	// MaxReconnectDelay bounds the random wait before a reconnect attempt.
	MaxReconnectDelay time.Duration `mapstructure:"max_reconnect_delay"`
}

// DefaultConfig returns the channel defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  10 * time.Second,
		WriteWait:         10 * time.Second,
		PongWait:          60 * time.Second,
		PingInterval:      30 * time.Second,
		MaxMessageSize:    1 << 20,
		MaxReconnectDelay: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = d.MaxReconnectDelay
	}
	return c
}
