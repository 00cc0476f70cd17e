// Package reconcile decides whether a media descriptor announced by another
// participant refers to a file the local participant already owns.
package reconcile

import (
	"errors"

	"github.com/weiawesome/wes-io-sync/internal/domain"
)

// DefaultThreshold is the number of equal attributes, out of
// domain.AttributeCount, at which two descriptors are the same media.
const DefaultThreshold = 10

var (
	// ErrNoMatch means no local descriptor reaches the threshold.
	ErrNoMatch = errors.New("no matching local media")
	// ErrAmbiguous means several local files tie for the best score.
	ErrAmbiguous = errors.New("ambiguous local media match")
)

// Reconciler matches descriptors by attribute similarity.
type Reconciler struct {
	threshold int
}

// New creates a Reconciler with DefaultThreshold.
func New() *Reconciler {
	return &Reconciler{threshold: DefaultThreshold}
}

// Match returns the local descriptor that best matches candidate.
//
// A local descriptor qualifies when at least the threshold number of its
// attributes equal the candidate's. The highest score wins; ties between
// entries for the same file resolve to the first in playlist order, ties
// between different files return ErrAmbiguous.
func (r *Reconciler) Match(local domain.Playlist, candidate domain.Media) (domain.Media, error) {
	best, bestScore, tied := -1, -1, false

	for i, m := range local {
		score := m.EqualAttributes(candidate)
		if score < r.threshold {
			continue
		}
		switch {
		case score > bestScore:
			best, bestScore, tied = i, score, false
		case score == bestScore && m.FileName != local[best].FileName:
			tied = true
		}
	}

	switch {
	case best < 0:
		return domain.Media{}, ErrNoMatch
	case tied:
		return domain.Media{}, ErrAmbiguous
	}
	return local[best], nil
}

// Missing returns the items of have that no entry of announced matches,
// in have's order. Ambiguous matches count as missing so the file is sent
// again rather than guessed.
func (r *Reconciler) Missing(have, announced domain.Playlist) domain.Playlist {
	var needed domain.Playlist
	for _, m := range have {
		if _, err := r.Match(announced, m); err != nil {
			needed = append(needed, m)
		}
	}
	return needed
}

// Resolve returns the local descriptor matching candidate, or candidate
// itself when none does, so its own file reference is used directly.
func (r *Reconciler) Resolve(local domain.Playlist, candidate domain.Media) (domain.Media, bool) {
	m, err := r.Match(local, candidate)
	if err != nil {
		return candidate, false
	}
	return m, true
}
