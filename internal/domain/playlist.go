package domain

// Playlist is an ordered sequence of media. The head is the current item.
type Playlist []Media

// Head returns the current item.
func (p Playlist) Head() (Media, bool) {
	if len(p) == 0 {
		return Media{}, false
	}
	return p[0], true
}

// Clone returns a copy that shares no backing array with p.
func (p Playlist) Clone() Playlist {
	if p == nil {
		return nil
	}
	out := make(Playlist, len(p))
	copy(out, p)
	return out
}

// IndexOfFile returns the index of the first item referencing fileName, or -1.
func (p Playlist) IndexOfFile(fileName string) int {
	for i, m := range p {
		if m.FileName == fileName {
			return i
		}
	}
	return -1
}

// RemoveFile removes the first item referencing fileName and reports
// whether one was removed.
func (p Playlist) RemoveFile(fileName string) (Playlist, bool) {
	i := p.IndexOfFile(fileName)
	if i < 0 {
		return p, false
	}
	out := make(Playlist, 0, len(p)-1)
	out = append(out, p[:i]...)
	out = append(out, p[i+1:]...)
	return out, true
}

// Names lists the item names in order.
func (p Playlist) Names() []string {
	names := make([]string, len(p))
	for i, m := range p {
		names[i] = m.Name
	}
	return names
}
