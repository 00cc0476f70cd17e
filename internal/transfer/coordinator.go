package transfer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-sync/internal/domain"
	pkglog "github.com/weiawesome/wes-io-sync/pkg/log"
)

// MediaTransfer is the blob side channel the coordinator drives.
type MediaTransfer interface {
	Upload(ctx context.Context, filePath, namespace string) (domain.ChunkSet, error)
	Download(ctx context.Context, fileName string, set domain.ChunkSet, namespace string) (string, error)
	Merge(tempDir string, set domain.ChunkSet, dest string) error
	Discard(ctx context.Context, set domain.ChunkSet, namespace string) error
}

// Sender sends one event on the room channel.
type Sender interface {
	Send(ctx context.Context, event string, args ...interface{}) error
}

// Catalogue receives media that finished transferring.
type Catalogue interface {
	AddMedia(m domain.Media)
}

// FailureFunc is told about a transfer that could not complete.
type FailureFunc func(mediaName string, err error)

// Coordinator runs uploads (host) and download-and-merge (peer) as
// background tasks so the channel's dispatch goroutine never waits on
// blob traffic.
type Coordinator struct {
	room      domain.Room
	svc       MediaTransfer
	sender    Sender
	catalogue Catalogue
	onFailure FailureFunc
	logger    zerolog.Logger

	mu     sync.Mutex
	closed bool
	// lastDownload is closed when the most recently queued download ends.
	lastDownload chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator creates a coordinator for room.
func NewCoordinator(room domain.Room, svc MediaTransfer, sender Sender, catalogue Catalogue, onFailure FailureFunc) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	if onFailure == nil {
		onFailure = func(string, error) {}
	}
	return &Coordinator{
		room:      room,
		svc:       svc,
		sender:    sender,
		catalogue: catalogue,
		onFailure: onFailure,
		logger:    pkglog.Component("transfer").With().Str(pkglog.FieldRoomID, room.ID).Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (c *Coordinator) spawn(fn func(ctx context.Context)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
	return true
}

// HandleRequireMedia uploads each needed item from the host's store and
// announces the resulting chunk set to peerID, one UploadMedia per item.
func (c *Coordinator) HandleRequireMedia(needed domain.Playlist, peerID string) {
	if len(needed) == 0 {
		return
	}
	needed = needed.Clone()
	c.spawn(func(ctx context.Context) {
		for _, m := range needed {
			if ctx.Err() != nil {
				return
			}
			set, err := c.svc.Upload(ctx, m.FileName, c.room.Namespace)
			if err != nil {
				c.fail(ctx, m.Name, err)
				continue
			}
			set.Media = m
			name := filepath.Base(m.FileName)
			set.Name = name

			if err := c.sender.Send(ctx, domain.EventUploadMedia, peerID, name, set); err != nil {
				c.logger.Warn().Err(err).
					Str(pkglog.FieldEvent, domain.EventUploadMedia).
					Str(pkglog.FieldChunkSet, set.ID).
					Msg("announce upload failed")
				if derr := c.svc.Discard(ctx, set, c.room.Namespace); derr != nil {
					c.logger.Warn().Err(derr).Str(pkglog.FieldChunkSet, set.ID).Msg("failed to discard chunks")
				}
			}
		}
	})
}

// HandleDownloadMedia downloads and merges set into the room's playlist
// path, adds the merged item to the catalogue and replies MediaDownloaded.
// Downloads complete one after another in announce order so the catalogue
// keeps the host's playlist order.
func (c *Coordinator) HandleDownloadMedia(fileName string, set domain.ChunkSet) {
	c.mu.Lock()
	prev := c.lastDownload
	done := make(chan struct{})
	c.lastDownload = done
	c.mu.Unlock()

	started := c.spawn(func(ctx context.Context) {
		defer close(done)
		if prev != nil {
			select {
			case <-prev:
			case <-ctx.Done():
				return
			}
		}

		logger := c.logger.With().
			Str(pkglog.FieldChunkSet, set.ID).
			Str(pkglog.FieldMedia, fileName).
			Logger()

		tempDir, err := c.svc.Download(ctx, fileName, set, c.room.Namespace)
		if err != nil {
			c.fail(ctx, fileName, err)
			return
		}
		dest := c.room.MediaPath(fileName)
		if err := c.svc.Merge(tempDir, set, dest); err != nil {
			c.fail(ctx, fileName, err)
			return
		}

		m := set.Media
		m.FileName = dest
		if m.Name == "" {
			m.Name = filepath.Base(fileName)
		}
		c.catalogue.AddMedia(m)

		if err := c.svc.Discard(ctx, set, c.room.Namespace); err != nil {
			logger.Warn().Err(err).Msg("failed to discard chunks")
		}
		if err := c.sender.Send(ctx, domain.EventMediaDownloaded); err != nil {
			logger.Warn().Err(err).Str(pkglog.FieldEvent, domain.EventMediaDownloaded).Msg("send failed")
			return
		}
		logger.Info().Msg("media downloaded")
	})
	if !started {
		close(done)
	}
}

func (c *Coordinator) fail(ctx context.Context, name string, err error) {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return
	}
	c.logger.Error().Err(err).Str(pkglog.FieldMedia, name).Msg("transfer failed")
	c.onFailure(name, err)
}

// Cancel aborts in-flight transfers and waits for them to return. Later
// requests are ignored.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// Wait blocks until every running transfer has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
