package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/weiawesome/wes-io-sync/internal/domain"
)

func sampleMedia(name string) domain.Media {
	return domain.Media{
		FileName:      "/media/" + name + ".mp4",
		Name:          name,
		Album:         "album",
		BitRate:       320,
		Description:   "desc",
		Duration:      3 * time.Minute,
		EndPosition:   3 * time.Minute,
		Genre:         "jazz",
		MimeType:      "video/mp4",
		Rate:          1.0,
		Performer:     "band",
		StartPosition: 0,
		Type:          "video",
	}
}

// mutators change exactly one descriptive attribute each.
var mutators = []func(*domain.Media){
	func(m *domain.Media) { m.Album = "other" },
	func(m *domain.Media) { m.BitRate = 128 },
	func(m *domain.Media) { m.Description = "other" },
	func(m *domain.Media) { m.Duration = time.Second },
	func(m *domain.Media) { m.EndPosition = time.Second },
	func(m *domain.Media) { m.Genre = "rock" },
	func(m *domain.Media) { m.MimeType = "audio/mpeg" },
	func(m *domain.Media) { m.Name = "renamed" },
	func(m *domain.Media) { m.Rate = 2.0 },
	func(m *domain.Media) { m.Performer = "solo" },
	func(m *domain.Media) { m.StartPosition = time.Second },
	func(m *domain.Media) { m.Type = "audio" },
}

func TestMutatorsCoverEveryAttribute(t *testing.T) {
	if len(mutators) != domain.AttributeCount {
		t.Fatalf("Expected %d mutators, got %d", domain.AttributeCount, len(mutators))
	}
	base := sampleMedia("a")
	for i, mutate := range mutators {
		m := base
		mutate(&m)
		if got := base.EqualAttributes(m); got != domain.AttributeCount-1 {
			t.Errorf("mutator %d: expected %d equal attributes, got %d", i, domain.AttributeCount-1, got)
		}
	}
}

func TestMatchToleranceBoundary(t *testing.T) {
	r := New()
	local := sampleMedia("a")

	for diff := 0; diff <= 4; diff++ {
		for start := 0; start < len(mutators); start++ {
			candidate := local
			candidate.FileName = "/elsewhere/a.mp4"
			for k := 0; k < diff; k++ {
				mutators[(start+k)%len(mutators)](&candidate)
			}

			got, err := r.Match(domain.Playlist{local}, candidate)
			if diff <= 2 {
				if err != nil {
					t.Fatalf("diff=%d start=%d: expected match, got %v", diff, start, err)
				}
				if got.FileName != local.FileName {
					t.Errorf("diff=%d: expected local file %s, got %s", diff, local.FileName, got.FileName)
				}
			} else if !errors.Is(err, ErrNoMatch) {
				t.Errorf("diff=%d start=%d: expected ErrNoMatch, got %v", diff, start, err)
			}
		}
	}
}

func TestMatchIgnoresFileReference(t *testing.T) {
	r := New()
	local := sampleMedia("a")
	candidate := local
	candidate.FileName = `C:\Users\peer\a.mp4`

	got, err := r.Match(domain.Playlist{local}, candidate)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got.FileName != local.FileName {
		t.Errorf("Expected local file reference, got %s", got.FileName)
	}
}

func TestMatchPrefersHighestScore(t *testing.T) {
	r := New()
	exact := sampleMedia("a")
	near := exact
	near.FileName = "/media/a-copy.mp4"
	mutators[0](&near)
	mutators[1](&near)

	got, err := r.Match(domain.Playlist{near, exact}, exact)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got.FileName != exact.FileName {
		t.Errorf("Expected exact match %s, got %s", exact.FileName, got.FileName)
	}
}

func TestMatchAmbiguousTie(t *testing.T) {
	r := New()
	a := sampleMedia("a")
	b := a
	b.FileName = "/media/a-duplicate.mp4"

	_, err := r.Match(domain.Playlist{a, b}, a)
	if !errors.Is(err, ErrAmbiguous) {
		t.Errorf("Expected ErrAmbiguous, got %v", err)
	}
}

func TestMatchTieOnSameFileTakesFirst(t *testing.T) {
	r := New()
	a := sampleMedia("a")
	again := a
	again.Description = "listed twice"

	candidate := a
	candidate.Description = "neither"
	got, err := r.Match(domain.Playlist{a, again}, candidate)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got.Description != a.Description {
		t.Errorf("Expected first entry, got %q", got.Description)
	}
}

func TestMissing(t *testing.T) {
	r := New()
	a, b, c := sampleMedia("a"), sampleMedia("b"), sampleMedia("c")
	b.Album, b.Genre, b.Performer = "b-album", "b-genre", "b-performer"
	c.Album, c.Genre, c.Performer = "c-album", "c-genre", "c-performer"

	tests := []struct {
		name      string
		announced domain.Playlist
		want      []string
	}{
		{name: "empty peer needs everything", announced: nil, want: []string{"a", "b", "c"}},
		{name: "peer has b", announced: domain.Playlist{b}, want: []string{"a", "c"}},
		{name: "peer has all", announced: domain.Playlist{c, b, a}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Missing(domain.Playlist{a, b, c}, tt.announced).Names()
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestResolveFallsBackToCandidate(t *testing.T) {
	r := New()
	candidate := sampleMedia("z")

	got, found := r.Resolve(nil, candidate)
	if found {
		t.Error("Expected no local match")
	}
	if got.FileName != candidate.FileName {
		t.Errorf("Expected candidate file reference, got %s", got.FileName)
	}
}
