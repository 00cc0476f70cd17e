package session

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-sync/internal/channel"
	"github.com/weiawesome/wes-io-sync/internal/domain"
	"github.com/weiawesome/wes-io-sync/internal/playback"
	"github.com/weiawesome/wes-io-sync/internal/transfer"
	pkglog "github.com/weiawesome/wes-io-sync/pkg/log"
)

// role is the host or peer variant. Each registers only the handlers its
// side of the protocol needs.
type role interface {
	register()
	connected()
}

// decodeArgs decodes env's positional arguments into dst. A malformed
// event is logged and dropped.
func decodeArgs(logger zerolog.Logger, env *domain.Envelope, dst ...interface{}) bool {
	for i, d := range dst {
		if err := env.Arg(i, d); err != nil {
			logger.Warn().Err(err).Str(pkglog.FieldEvent, env.Event).Msg("dropping malformed event")
			return false
		}
	}
	return true
}

func (c *Controller) registerCommon(ch *channel.Channel, ps *playback.Session) {
	logger := c.logger

	ch.On(domain.EventUserConnected, func(_ context.Context, env *domain.Envelope) {
		var name string
		if decodeArgs(logger, env, &name) {
			ps.HandleUserConnected(name)
		}
	})
	ch.On(domain.EventUserDisconnect, func(_ context.Context, env *domain.Envelope) {
		var name string
		if decodeArgs(logger, env, &name) {
			ps.HandleUserDisconnected(name)
		}
	})
	ch.On(domain.EventRoomClosed, func(context.Context, *domain.Envelope) {
		ps.HandleRoomClosed()
		// Leave stops the channel, which waits for this handler to return.
		go c.Leave()
	})
	ch.On(domain.EventReadyToPlay, func(context.Context, *domain.Envelope) {
		ps.HandleReadyToPlay()
	})
	ch.On(domain.EventPlay, func(_ context.Context, env *domain.Envelope) {
		var pos float64
		if decodeArgs(logger, env, &pos) {
			ps.HandlePlay(domain.DecodePosition(pos))
		}
	})
	ch.On(domain.EventPause, func(_ context.Context, env *domain.Envelope) {
		var pos float64
		if decodeArgs(logger, env, &pos) {
			ps.HandlePause(domain.DecodePosition(pos))
		}
	})
	ch.On(domain.EventStop, func(_ context.Context, env *domain.Envelope) {
		var pos float64
		if decodeArgs(logger, env, &pos) {
			ps.HandleStop(domain.DecodePosition(pos))
		}
	})
	ch.On(domain.EventNextMedia, func(_ context.Context, env *domain.Envelope) {
		var m domain.Media
		if decodeArgs(logger, env, &m) {
			ps.HandleNextMedia(m)
		}
	})
	ch.On(domain.EventReceive, func(_ context.Context, env *domain.Envelope) {
		var user, text string
		if decodeArgs(logger, env, &user, &text) {
			ps.HandleReceive(user, text)
		}
	})
	ch.On(domain.EventError, func(_ context.Context, env *domain.Envelope) {
		var code, message string
		if decodeArgs(logger, env, &code, &message) {
			logger.Warn().Str("code", code).Msg(message)
			ps.Notice(playback.NoticeInfo, code+": "+message)
		}
	})
}

// host owns the reference media: it answers media checks, uploads what
// peers lack and advances the playlist.
type host struct {
	c        *Controller
	ch       *channel.Channel
	playback *playback.Session
	coord    *transfer.Coordinator
}

func (h *host) register() {
	logger := h.c.logger

	h.ch.On(domain.EventCheckMedia, func(_ context.Context, env *domain.Envelope) {
		var announced domain.Playlist
		var peerID string
		if !decodeArgs(logger, env, &announced, &peerID) {
			return
		}
		needed := h.c.reconciler.Missing(h.playback.Playlist(), announced)
		if needed == nil {
			needed = domain.Playlist{}
		}
		logger.Info().
			Str(pkglog.FieldClientID, peerID).
			Int("needed", len(needed)).
			Msg("answering media check")
		h.ch.Emit(domain.EventRequireMedia, needed, peerID)
	})
	h.ch.On(domain.EventRequireMedia, func(_ context.Context, env *domain.Envelope) {
		var needed domain.Playlist
		var peerID string
		if decodeArgs(logger, env, &needed, &peerID) {
			h.coord.HandleRequireMedia(needed, peerID)
		}
	})
	h.ch.On(domain.EventRequireNextMedia, func(context.Context, *domain.Envelope) {
		next, ok := h.playback.AdvanceTrack()
		if !ok {
			logger.Info().Msg("playlist finished")
			h.playback.Notice(playback.NoticeInfo, "playlist finished")
			return
		}
		h.ch.Emit(domain.EventSetNextMedia, next)
	})
}

func (h *host) connected() {}

// peer reconciles its catalogue against the host's and receives what it
// lacks.
type peer struct {
	c        *Controller
	ch       *channel.Channel
	playback *playback.Session
	coord    *transfer.Coordinator
}

func (p *peer) register() {
	logger := p.c.logger

	p.ch.On(domain.EventDownloadMedia, func(_ context.Context, env *domain.Envelope) {
		var fileName string
		var set domain.ChunkSet
		if decodeArgs(logger, env, &fileName, &set) {
			p.coord.HandleDownloadMedia(fileName, set)
		}
	})
}

// connected announces the local playlist so the host can work out what to
// send.
func (p *peer) connected() {
	pl := p.playback.Playlist()
	if pl == nil {
		pl = domain.Playlist{}
	}
	p.ch.Emit(domain.EventCheckMedia, pl)
}
