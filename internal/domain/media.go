package domain

import "time"

// Media describes one media item. Two participants may describe the same
// underlying file without sharing an identifier, so equality is decided by
// attribute similarity (see internal/reconcile), not by FileName.
type Media struct {
	// FileName is the participant-local file reference. It is not one of the
	// descriptive attributes.
	FileName string `json:"file_name"`

	Name          string        `json:"name"`
	Album         string        `json:"album"`
	BitRate       int           `json:"bit_rate"`
	Description   string        `json:"description"`
	Duration      time.Duration `json:"duration"`
	EndPosition   time.Duration `json:"end_position"`
	Genre         string        `json:"genre"`
	MimeType      string        `json:"mime_type"`
	Rate          float64       `json:"rate"`
	Performer     string        `json:"performer"`
	StartPosition time.Duration `json:"start_position"`
	Type          string        `json:"type"`
}

// AttributeCount is the number of descriptive attributes compared when
// matching descriptors.
const AttributeCount = 12

// EqualAttributes counts the descriptive attributes m shares with other.
func (m Media) EqualAttributes(other Media) int {
	eq := []bool{
		m.Album == other.Album,
		m.BitRate == other.BitRate,
		m.Description == other.Description,
		m.Duration == other.Duration,
		m.EndPosition == other.EndPosition,
		m.Genre == other.Genre,
		m.MimeType == other.MimeType,
		m.Name == other.Name,
		m.Rate == other.Rate,
		m.Performer == other.Performer,
		m.StartPosition == other.StartPosition,
		m.Type == other.Type,
	}

	n := 0
	for _, ok := range eq {
		if ok {
			n++
		}
	}
	return n
}
