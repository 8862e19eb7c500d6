package subtitle

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DefaultWriter writes cues back into the container format the file was read
// from, preserving cue order and line grouping.
type DefaultWriter struct{}

func NewWriter() Writer {
	return &DefaultWriter{}
}

func (w *DefaultWriter) Write(path string, file *File) error {
	if file == nil {
		return fmt.Errorf("subtitle data is empty")
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()

	bw := bufio.NewWriter(out)
	defer bw.Flush()

	switch file.Format {
	case "srt":
		return writeSRT(bw, file)
	case "vtt":
		return writeVTT(bw, file)
	case "ssa":
		return writeSSA(bw, file)
	default:
		return fmt.Errorf("unsupported subtitle format: %q", file.Format)
	}
}

func writeSRT(bw *bufio.Writer, file *File) error {
	for i, cue := range file.Cues {
		fmt.Fprintf(bw, "%d\n", i+1)
		fmt.Fprintf(bw, "%s\n", cue.Timing)
		for _, line := range cue.Lines {
			fmt.Fprintf(bw, "%s\n", line)
		}
		fmt.Fprint(bw, "\n")
	}
	return nil
}

func writeVTT(bw *bufio.Writer, file *File) error {
	fmt.Fprint(bw, "WEBVTT\n\n")
	for _, cue := range file.Cues {
		fmt.Fprintf(bw, "%s\n", cue.Timing)
		for _, line := range cue.Lines {
			fmt.Fprintf(bw, "%s\n", line)
		}
		fmt.Fprint(bw, "\n")
	}
	return nil
}

func writeSSA(bw *bufio.Writer, file *File) error {
	for _, line := range file.Header {
		fmt.Fprintf(bw, "%s\n", line)
	}
	for _, cue := range file.Cues {
		fmt.Fprintf(bw, "%s%s\n", cue.Timing, strings.Join(cue.Lines, "\\N"))
	}
	return nil
}
