package domain

// ChunkSet is the ordered list of blob references one uploaded file was
// split into. It only lives for the duration of a single transfer.
type ChunkSet struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Chunks are storage keys in merge order.
	Chunks []string `json:"chunks"`
	// Size is the total byte size of the source file.
	Size int64 `json:"size"`
	// Media describes the transferred item so the receiver can add it to
	// its playlist after merging.
	Media Media `json:"media"`
}
