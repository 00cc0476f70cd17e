package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadClientFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  url: ws://hub.example:9000/ws
room:
  id: movie-night
  name: Movie night
  namespace: rooms/movie-night
  playlist_path: /tmp/media
participant:
  name: alice
channel:
  max_reconnect_delay: 2s
transfer:
  chunk_size: 1024
playback:
  sync_tolerance: 250ms
`)

	cfg, err := LoadClient(path)
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}

	if cfg.Channel.URL != "ws://hub.example:9000/ws" {
		t.Errorf("Expected channel url from server.url, got %q", cfg.Channel.URL)
	}
	if cfg.Room.ID != "movie-night" || cfg.Room.Namespace != "rooms/movie-night" {
		t.Errorf("Unexpected room %+v", cfg.Room)
	}
	if cfg.Participant.Name != "alice" {
		t.Errorf("Expected participant alice, got %q", cfg.Participant.Name)
	}
	if cfg.Channel.MaxReconnectDelay != 2*time.Second {
		t.Errorf("Expected 2s reconnect delay, got %v", cfg.Channel.MaxReconnectDelay)
	}
	if cfg.Channel.PongWait != 60*time.Second {
		t.Errorf("Expected default pong wait, got %v", cfg.Channel.PongWait)
	}
	if cfg.Transfer.ChunkSize != 1024 {
		t.Errorf("Expected chunk size 1024, got %d", cfg.Transfer.ChunkSize)
	}
	if cfg.Playback.SyncTolerance != 250*time.Millisecond {
		t.Errorf("Expected 250ms tolerance, got %v", cfg.Playback.SyncTolerance)
	}
	if cfg.Storage.Driver != "local" {
		t.Errorf("Expected local storage by default, got %q", cfg.Storage.Driver)
	}
}

func TestLoadClientEnvOverrides(t *testing.T) {
	t.Setenv("SYNCPLAY_SERVER_URL", "ws://env-hub/ws")
	t.Setenv("SYNCPLAY_TOKEN", "from-env")

	cfg, err := LoadClient(writeConfig(t, "room:\n  id: r1\n"))
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.Channel.URL != "ws://env-hub/ws" {
		t.Errorf("Expected env url, got %q", cfg.Channel.URL)
	}
	if cfg.Auth.Token != "from-env" {
		t.Errorf("Expected env token, got %q", cfg.Auth.Token)
	}
}

func TestLoadClientDefaults(t *testing.T) {
	cfg, err := LoadClient(writeConfig(t, "room:\n  id: r1\n"))
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.Playback.SyncTolerance != 0 {
		t.Errorf("Expected drift correction off by default, got %v", cfg.Playback.SyncTolerance)
	}
	if cfg.Channel.MaxReconnectDelay != 5*time.Second {
		t.Errorf("Expected 5s reconnect delay, got %v", cfg.Channel.MaxReconnectDelay)
	}
}

func TestLoadClientMissingFile(t *testing.T) {
	if _, err := LoadClient(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for an explicit missing file")
	}
}

func TestLoadHubDefaults(t *testing.T) {
	cfg, err := LoadHub("")
	if err != nil {
		t.Fatalf("LoadHub: %v", err)
	}

	if cfg.Server.Port != 8090 {
		t.Errorf("Expected port 8090, got %d", cfg.Server.Port)
	}
	if cfg.PubSub.Driver != "none" {
		t.Errorf("Expected pubsub disabled by default, got %q", cfg.PubSub.Driver)
	}
	if cfg.WebSocket.PongWait != 60*time.Second || cfg.WebSocket.SendBuffer != 256 {
		t.Errorf("Unexpected websocket config %+v", cfg.WebSocket)
	}
	if cfg.Auth.AccessDuration != 12*time.Hour {
		t.Errorf("Expected 12h tokens, got %v", cfg.Auth.AccessDuration)
	}
}

func TestLoadHubEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("PUBSUB_DRIVER", "redis")
	t.Setenv("SYNCPLAY_SECRET", "0123456789abcdef")

	cfg, err := LoadHub(writeConfig(t, "log:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("LoadHub: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Expected port 9100, got %d", cfg.Server.Port)
	}
	if cfg.PubSub.Driver != "redis" {
		t.Errorf("Expected redis driver, got %q", cfg.PubSub.Driver)
	}
	if cfg.Auth.Secret != "0123456789abcdef" {
		t.Errorf("Expected secret from env, got %q", cfg.Auth.Secret)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected debug level, got %q", cfg.Log.Level)
	}
}
