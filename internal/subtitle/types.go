package subtitle

import "strings"

// Cue is one timed subtitle entry. Timing carries the raw timing (and, for
// ASS/SSA, the full event prefix) verbatim; the translation pipeline only
// touches Lines.
type Cue struct {
	Position int      `json:"position"`
	Timing   string   `json:"timing"`
	Lines    []string `json:"lines"`
}

// Text joins the cue lines into a single block.
func (c Cue) Text() string {
	return strings.Join(c.Lines, "\n")
}

// WithText returns a copy of the cue with its lines replaced by the given
// block, split back on newlines. An empty block keeps the original lines.
func (c Cue) WithText(text string) Cue {
	if strings.TrimSpace(text) == "" {
		return c
	}
	next := c
	next.Lines = strings.Split(text, "\n")
	return next
}

// File is a parsed subtitle container. Header carries container-level lines
// (the SSA/ASS script info and style sections) verbatim so a rewrite keeps
// them intact.
type File struct {
	Path   string
	Format string // "srt", "vtt", "ssa"
	Header []string
	Cues   []Cue
}

// Reader reads a subtitle container into an ordered cue sequence.
type Reader interface {
	Read(path string) (*File, error)
}

// Writer writes cues back into a subtitle container, preserving order and
// line grouping.
type Writer interface {
	Write(path string, file *File) error
}
