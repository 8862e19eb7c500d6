package subtitle

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Extensions lists the supported subtitle container extensions.
var Extensions = []string{".srt", ".vtt", ".ssa", ".ass"}

// IsSupported reports whether the extension names a readable container.
func IsSupported(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// FormatForPath maps a file path to its container format name.
func FormatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".srt":
		return "srt"
	case ".vtt":
		return "vtt"
	case ".ssa", ".ass":
		return "ssa"
	default:
		return ""
	}
}

// DefaultReader reads SRT, WebVTT and SSA/ASS containers.
type DefaultReader struct{}

func NewReader() Reader {
	return &DefaultReader{}
}

func (r *DefaultReader) Read(path string) (*File, error) {
	format := FormatForPath(path)
	if format == "" {
		return nil, fmt.Errorf("unsupported subtitle format: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open subtitle file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cues []Cue
	var header []string
	switch format {
	case "srt":
		cues, err = parseSRT(scanner)
	case "vtt":
		cues, err = parseVTT(scanner)
	case "ssa":
		cues, header, err = parseSSA(scanner)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return &File{Path: path, Format: format, Header: header, Cues: cues}, nil
}

// parseSRT walks index / timing / text blocks. Malformed index lines are
// skipped rather than failing the whole file.
func parseSRT(scanner *bufio.Scanner) ([]Cue, error) {
	cues := make([]Cue, 0)
	current := Cue{}
	state := "index"
	var textLines []string

	flush := func() {
		if len(textLines) > 0 {
			current.Lines = append([]string(nil), textLines...)
			current.Position = len(cues) + 1
			cues = append(cues, current)
		}
		current = Cue{}
		textLines = nil
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		switch state {
		case "index":
			if strings.TrimSpace(line) == "" {
				continue
			}
			if _, err := strconv.Atoi(strings.TrimSpace(line)); err != nil {
				continue
			}
			state = "timing"

		case "timing":
			if strings.TrimSpace(line) == "" {
				continue
			}
			if !strings.Contains(line, "-->") {
				return nil, fmt.Errorf("expected timing line, got %q", line)
			}
			current.Timing = strings.TrimSpace(line)
			state = "text"

		case "text":
			if strings.TrimSpace(line) == "" {
				flush()
				state = "index"
				continue
			}
			textLines = append(textLines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	return cues, nil
}

// parseVTT treats everything between the WEBVTT header and the first timing
// line as preamble and drops it; NOTE and STYLE blocks are skipped.
func parseVTT(scanner *bufio.Scanner) ([]Cue, error) {
	cues := make([]Cue, 0)
	current := Cue{}
	inCue := false
	skipBlock := false
	var textLines []string

	flush := func() {
		if inCue && len(textLines) > 0 {
			current.Lines = append([]string(nil), textLines...)
			current.Position = len(cues) + 1
			cues = append(cues, current)
		}
		current = Cue{}
		textLines = nil
		inCue = false
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			flush()
			skipBlock = false
			continue
		}
		if skipBlock {
			continue
		}
		if strings.HasPrefix(trimmed, "WEBVTT") {
			continue
		}
		if strings.HasPrefix(trimmed, "NOTE") || strings.HasPrefix(trimmed, "STYLE") || strings.HasPrefix(trimmed, "REGION") {
			skipBlock = true
			continue
		}
		if strings.Contains(line, "-->") {
			current.Timing = trimmed
			inCue = true
			textLines = nil
			continue
		}
		if inCue {
			textLines = append(textLines, line)
		}
		// otherwise a cue identifier line, which the writer does not need
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	return cues, nil
}

// parseSSA extracts Dialogue events. The event prefix (everything before the
// tenth comma-separated field) is kept verbatim in Timing; the text field is
// split on \N markers into lines. All non-Dialogue lines are captured as the
// header so the writer can reproduce the script info and style sections.
func parseSSA(scanner *bufio.Scanner) ([]Cue, []string, error) {
	cues := make([]Cue, 0)
	header := make([]string, 0)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "Dialogue:") {
			header = append(header, line)
			continue
		}
		prefix, text, ok := splitSSAEvent(trimmed)
		if !ok {
			continue
		}
		cues = append(cues, Cue{
			Position: len(cues) + 1,
			Timing:   prefix,
			Lines:    strings.Split(text, "\\N"),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return cues, header, nil
}

// splitSSAEvent splits a Dialogue line into its 9-field prefix and the free
// text field (which may itself contain commas).
func splitSSAEvent(line string) (prefix string, text string, ok bool) {
	rest := line
	idx := 0
	for i := 0; i < 9; i++ {
		p := strings.Index(rest, ",")
		if p < 0 {
			return "", "", false
		}
		idx += p + 1
		rest = rest[p+1:]
	}
	return line[:idx], line[idx:], true
}
