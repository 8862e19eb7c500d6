package subtitle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSRT = `1
00:00:01,000 --> 00:00:03,000
Hello there.

2
00:00:04,000 --> 00:00:06,500
Two lines
of dialogue.

3
00:00:07,000 --> 00:00:08,000
Goodbye.
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReader_SRT(t *testing.T) {
	path := writeTemp(t, "sample.srt", sampleSRT)

	file, err := NewReader().Read(path)
	require.NoError(t, err)

	assert.Equal(t, "srt", file.Format)
	require.Len(t, file.Cues, 3)

	assert.Equal(t, 1, file.Cues[0].Position)
	assert.Equal(t, "00:00:01,000 --> 00:00:03,000", file.Cues[0].Timing)
	assert.Equal(t, []string{"Hello there."}, file.Cues[0].Lines)

	assert.Equal(t, []string{"Two lines", "of dialogue."}, file.Cues[1].Lines)
	assert.Equal(t, "Two lines\nof dialogue.", file.Cues[1].Text())
}

func TestReader_SRT_MissingTrailingBlankLine(t *testing.T) {
	path := writeTemp(t, "sample.srt", "1\n00:00:01,000 --> 00:00:02,000\nlast cue")

	file, err := NewReader().Read(path)
	require.NoError(t, err)
	require.Len(t, file.Cues, 1)
	assert.Equal(t, []string{"last cue"}, file.Cues[0].Lines)
}

func TestReader_VTT(t *testing.T) {
	content := "WEBVTT\n\nNOTE this is a comment\nstill the comment\n\n1\n00:00:01.000 --> 00:00:03.000\nHello.\n\n00:00:04.000 --> 00:00:05.000\nSecond\ncue\n"
	path := writeTemp(t, "sample.vtt", content)

	file, err := NewReader().Read(path)
	require.NoError(t, err)

	assert.Equal(t, "vtt", file.Format)
	require.Len(t, file.Cues, 2)
	assert.Equal(t, "00:00:01.000 --> 00:00:03.000", file.Cues[0].Timing)
	assert.Equal(t, []string{"Second", "cue"}, file.Cues[1].Lines)
}

func TestReader_SSA(t *testing.T) {
	content := "[Script Info]\nTitle: sample\n\n[Events]\nFormat: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\nDialogue: 0,0:00:01.00,0:00:03.00,Default,,0,0,0,,Hello, world\\Nsecond line\n"
	path := writeTemp(t, "sample.ass", content)

	file, err := NewReader().Read(path)
	require.NoError(t, err)

	assert.Equal(t, "ssa", file.Format)
	require.Len(t, file.Cues, 1)
	// Text field may itself contain commas; only the first nine fields are prefix.
	assert.Equal(t, []string{"Hello, world", "second line"}, file.Cues[0].Lines)
	assert.Contains(t, file.Header, "[Script Info]")
}

func TestReader_UnsupportedExtension(t *testing.T) {
	path := writeTemp(t, "sample.sub", "whatever")
	_, err := NewReader().Read(path)
	require.Error(t, err)
}

func TestWriter_SRT_RoundTrip(t *testing.T) {
	src := writeTemp(t, "sample.srt", sampleSRT)
	file, err := NewReader().Read(src)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.srt")
	require.NoError(t, NewWriter().Write(out, file))

	again, err := NewReader().Read(out)
	require.NoError(t, err)
	require.Len(t, again.Cues, len(file.Cues))
	for i := range file.Cues {
		assert.Equal(t, file.Cues[i].Timing, again.Cues[i].Timing)
		assert.Equal(t, file.Cues[i].Lines, again.Cues[i].Lines)
	}
}

func TestWriter_SSA_KeepsHeader(t *testing.T) {
	content := "[Script Info]\nTitle: sample\n\n[Events]\nFormat: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\nDialogue: 0,0:00:01.00,0:00:03.00,Default,,0,0,0,,Hi\n"
	src := writeTemp(t, "sample.ssa", content)
	file, err := NewReader().Read(src)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.ssa")
	require.NoError(t, NewWriter().Write(out, file))

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[Script Info]")
	assert.Contains(t, string(raw), "Dialogue: 0,0:00:01.00,0:00:03.00,Default,,0,0,0,,Hi")
}
