// Package transfer moves media files between participants through the blob
// store: the room channel only ever carries chunk references.
package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-io-sync/internal/domain"
	pkglog "github.com/weiawesome/wes-io-sync/pkg/log"
	"github.com/weiawesome/wes-io-sync/pkg/storage"
)

var (
	// ErrTransfer wraps every failure of a single transfer.
	ErrTransfer = errors.New("media transfer failed")
	// ErrChunkMissing is returned when a referenced chunk cannot be read.
	ErrChunkMissing = errors.New("chunk missing")
	// ErrSizeMismatch is returned when merged bytes differ from the recorded size.
	ErrSizeMismatch = errors.New("merged size mismatch")
	// ErrForeignChunk is returned for chunk references outside the chunk set.
	ErrForeignChunk = errors.New("chunk outside room namespace")
)

const (
	DefaultChunkSize = 4 << 20
	DefaultWorkers   = 4

	chunkContentType = "application/octet-stream"
)

// Config holds transfer settings.
type Config struct {
	ChunkSize int64  `mapstructure:"chunk_size"`
	Workers   int    `mapstructure:"workers"`
	TempDir   string `mapstructure:"temp_dir"`
}

// Service splits files into chunks on the blob store and reassembles them.
type Service struct {
	store  storage.Storage
	cfg    Config
	logger zerolog.Logger
}

// NewService creates a Service over store.
func NewService(store storage.Storage, cfg Config) *Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Service{
		store:  store,
		cfg:    cfg,
		logger: pkglog.Component("transfer"),
	}
}

func transferErr(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %w: %s", ErrTransfer, kind, fmt.Sprintf(format, args...))
}

// ChunkKey returns the storage key of chunk index of set id.
func ChunkKey(namespace, setID string, index int) string {
	return fmt.Sprintf("%s/%s/%d.chunk", namespace, setID, index)
}

func setPrefix(namespace, setID string) string {
	return namespace + "/" + setID + "/"
}

// Upload splits the file at filePath into chunks stored under namespace and
// returns the resulting chunk set.
func (s *Service) Upload(ctx context.Context, filePath, namespace string) (domain.ChunkSet, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return domain.ChunkSet{}, fmt.Errorf("%w: open %s: %w", ErrTransfer, filePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.ChunkSet{}, fmt.Errorf("%w: stat %s: %w", ErrTransfer, filePath, err)
	}

	return s.upload(ctx, f, domain.ChunkSet{
		ID:   ulid.Make().String(),
		Name: filepath.Base(filePath),
		Size: info.Size(),
	}, namespace)
}

// upload stores r as the chunks of set. Chunks already written are
// discarded when a read or a write fails.
func (s *Service) upload(ctx context.Context, r io.Reader, set domain.ChunkSet, namespace string) (domain.ChunkSet, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for index := 0; ; index++ {
		buf := make([]byte, s.cfg.ChunkSize)
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			key := ChunkKey(namespace, set.ID, index)
			set.Chunks = append(set.Chunks, key)
			data := buf[:n]
			g.Go(func() error {
				return s.store.Write(gctx, key, bytes.NewReader(data), int64(len(data)), chunkContentType)
			})
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			_ = g.Wait()
			s.discard(set, namespace)
			return domain.ChunkSet{}, fmt.Errorf("%w: read %s: %w", ErrTransfer, set.Name, readErr)
		}
		if gctx.Err() != nil {
			break
		}
	}

	if err := g.Wait(); err != nil {
		s.discard(set, namespace)
		return domain.ChunkSet{}, fmt.Errorf("%w: upload %s: %w", ErrTransfer, set.Name, err)
	}

	s.logger.Info().
		Str(pkglog.FieldChunkSet, set.ID).
		Int(pkglog.FieldChunks, len(set.Chunks)).
		Str(pkglog.FieldMedia, set.Name).
		Msg("media uploaded")
	return set, nil
}

// Download fetches every chunk of set into a fresh temp directory and
// returns its path. Chunks are fetched concurrently; each lands in a part
// file named by its index.
func (s *Service) Download(ctx context.Context, fileName string, set domain.ChunkSet, namespace string) (string, error) {
	prefix := setPrefix(namespace, set.ID)
	for i, key := range set.Chunks {
		if path.Clean(key) != key || !strings.HasPrefix(key, prefix) {
			return "", transferErr(ErrForeignChunk, "%s chunk %d %q", fileName, i, key)
		}
	}

	tempDir, err := os.MkdirTemp(s.cfg.TempDir, "syncplay-"+set.ID+"-")
	if err != nil {
		return "", fmt.Errorf("%w: temp dir: %w", ErrTransfer, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, key := range set.Chunks {
		g.Go(func() error {
			return s.fetchChunk(gctx, key, partPath(tempDir, i), i)
		})
	}
	if err := g.Wait(); err != nil {
		os.RemoveAll(tempDir)
		if errors.Is(err, ErrTransfer) {
			return "", err
		}
		return "", fmt.Errorf("%w: download %s: %w", ErrTransfer, fileName, err)
	}

	s.logger.Debug().
		Str(pkglog.FieldChunkSet, set.ID).
		Int(pkglog.FieldChunks, len(set.Chunks)).
		Msg("chunks downloaded")
	return tempDir, nil
}

func (s *Service) fetchChunk(ctx context.Context, key, dest string, index int) error {
	rc, err := s.store.Read(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return transferErr(ErrChunkMissing, "chunk %d %q", index, key)
		}
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func partPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("%06d.part", index))
}

// Merge concatenates the parts in tempDir in chunk order into dest and
// removes tempDir. dest is replaced atomically and only when the merged
// size matches set.Size.
func (s *Service) Merge(tempDir string, set domain.ChunkSet, dest string) error {
	defer os.RemoveAll(tempDir)

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrTransfer, dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".merge-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrTransfer, err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	var written int64
	for i := range set.Chunks {
		n, err := appendPart(tmp, partPath(tempDir, i))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return transferErr(ErrChunkMissing, "part %d of %s", i, set.Name)
			}
			return fmt.Errorf("%w: merge part %d: %w", ErrTransfer, i, err)
		}
		written += n
	}
	if written != set.Size {
		return transferErr(ErrSizeMismatch, "%s: merged %d of %d bytes", set.Name, written, set.Size)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close merged file: %w", ErrTransfer, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("%w: rename merged file: %w", ErrTransfer, err)
	}
	success = true

	s.logger.Info().
		Str(pkglog.FieldChunkSet, set.ID).
		Str(pkglog.FieldMedia, dest).
		Msg("media merged")
	return nil
}

func appendPart(w io.Writer, partFile string) (int64, error) {
	f, err := os.Open(partFile)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

// Discard removes the chunks of set from the blob store.
func (s *Service) Discard(ctx context.Context, set domain.ChunkSet, namespace string) error {
	if set.ID == "" {
		return nil
	}
	return s.store.DeletePrefix(ctx, setPrefix(namespace, set.ID))
}

func (s *Service) discard(set domain.ChunkSet, namespace string) {
	if err := s.Discard(context.Background(), set, namespace); err != nil {
		s.logger.Warn().Err(err).Str(pkglog.FieldChunkSet, set.ID).Msg("failed to discard chunks")
	}
}
