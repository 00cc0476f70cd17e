package cli

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/weiawesome/wes-io-sync/internal/domain"
)

// ScanPlaylist builds a playlist from the regular files in dir, sorted by
// name. A missing directory is an empty playlist.
func ScanPlaylist(dir string) (domain.Playlist, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read media dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		// Skip hidden files, including in-progress merges.
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var pl domain.Playlist
	for _, name := range names {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		pl = append(pl, describeFile(path, info.Size()))
	}
	return pl, nil
}

// describeFile derives a descriptor from what the file system knows. The
// size goes into the description so same-named files of different content
// do not match.
func describeFile(path string, size int64) domain.Media {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return domain.Media{
		FileName:    path,
		Name:        strings.TrimSuffix(base, ext),
		Description: fmt.Sprintf("%d bytes", size),
		MimeType:    mime.TypeByExtension(ext),
		Type:        "file",
	}
}
