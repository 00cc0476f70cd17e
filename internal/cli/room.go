package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weiawesome/wes-io-sync/internal/channel"
	"github.com/weiawesome/wes-io-sync/internal/config"
	"github.com/weiawesome/wes-io-sync/internal/domain"
	"github.com/weiawesome/wes-io-sync/internal/player"
	"github.com/weiawesome/wes-io-sync/internal/session"
	"github.com/weiawesome/wes-io-sync/internal/transfer"
	"github.com/weiawesome/wes-io-sync/pkg/jwt"
	"github.com/weiawesome/wes-io-sync/pkg/storage"
)

type roomFlags struct {
	room   string
	name   string
	media  string
	server string
	token  string
}

func (f *roomFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.room, "room", "r", "", "Room id")
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "Participant name")
	cmd.Flags().StringVarP(&f.media, "media", "m", "", "Media directory (default room.playlist_path)")
	cmd.Flags().StringVar(&f.server, "server", "", "Hub websocket URL (default server.url)")
	cmd.Flags().StringVar(&f.token, "token", "", "Access token (default auth.token, or minted from auth.secret)")
}

// apply overlays the flags on cfg.
func (f *roomFlags) apply(cfg *config.ClientConfig) {
	if f.room != "" {
		cfg.Room.ID = f.room
	}
	if f.name != "" {
		cfg.Participant.Name = f.name
	}
	if f.media != "" {
		cfg.Room.PlaylistPath = f.media
	}
	if f.server != "" {
		cfg.Channel.URL = f.server
	}
	if f.token != "" {
		cfg.Auth.Token = f.token
	}
}

func NewHostCmd(deps *Dependencies) *cobra.Command {
	var flags roomFlags

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Open a room and share the media directory",
		Long:  "Open a room as its host. The files in the media directory form the playlist;\npeers that lack a file receive it before playback starts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.apply(deps.Config)
			return runRoom(cmd.Context(), deps, session.RoleHost)
		},
	}
	flags.register(cmd)
	return cmd
}

func NewJoinCmd(deps *Dependencies) *cobra.Command {
	var flags roomFlags

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a room as a peer",
		Long:  "Join an open room. Files the host plays that are missing from the media\ndirectory are downloaded into it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.apply(deps.Config)
			return runRoom(cmd.Context(), deps, session.RolePeer)
		},
	}
	flags.register(cmd)
	return cmd
}

func runRoom(ctx context.Context, deps *Dependencies, role session.Role) error {
	cfg := deps.Config
	if cfg.Room.ID == "" {
		return errors.New("a room id is required (--room)")
	}
	if cfg.Participant.Name == "" {
		return errors.New("a participant name is required (--name)")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	playlist, err := ScanPlaylist(cfg.Room.PlaylistPath)
	if err != nil {
		return err
	}
	if role == session.RoleHost && len(playlist) == 0 {
		return fmt.Errorf("no media found in %s", cfg.Room.PlaylistPath)
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open chunk storage: %w", err)
	}
	tokens, err := tokenProvider(cfg)
	if err != nil {
		return err
	}

	console := NewConsole(deps.Out)
	clock := player.New()
	ctrl, err := session.New(session.Config{
		Room: domain.Room{
			ID:           cfg.Room.ID,
			Name:         roomName(cfg),
			Namespace:    path.Join(cfg.Room.Namespace, cfg.Room.ID),
			PlaylistPath: cfg.Room.PlaylistPath,
		},
		Role:          role,
		Playlist:      playlist,
		Channel:       cfg.Channel,
		SyncTolerance: cfg.Playback.SyncTolerance,
	}, clock, transfer.NewService(store, cfg.Transfer), tokens, session.WithObserver(console))
	if err != nil {
		return err
	}

	if err := ctrl.Join(ctx); err != nil {
		return fmt.Errorf("join room %s: %w", cfg.Room.ID, err)
	}
	defer ctrl.Leave()

	console.printf("✅ joined %s as %s (%s), %d item(s) in playlist\n", cfg.Room.ID, cfg.Participant.Name, role, len(playlist))
	return console.Run(ctx, deps.In, ctrl, clock.End)
}

func roomName(cfg *config.ClientConfig) string {
	if cfg.Room.Name != "" {
		return cfg.Room.Name
	}
	return cfg.Room.ID
}

// tokenProvider prefers a configured token. With only a shared secret a
// fresh token is minted for every connection attempt.
func tokenProvider(cfg *config.ClientConfig) (channel.TokenProvider, error) {
	if cfg.Auth.Token != "" {
		return channel.StaticToken(cfg.Auth.Token), nil
	}
	if cfg.Auth.Secret == "" {
		return nil, errors.New("no access token: set auth.token or auth.secret")
	}

	m, err := jwt.NewManager(cfg.Auth.Secret, cfg.Auth.AccessDuration, cfg.Auth.Issuer)
	if err != nil {
		return nil, err
	}
	name := cfg.Participant.Name
	return channel.TokenFunc(func(context.Context) (string, error) {
		tok, _, err := m.GenerateAccessToken(name, name)
		return tok, err
	}), nil
}
