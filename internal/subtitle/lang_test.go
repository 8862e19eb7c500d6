package subtitle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLangToken(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"en", "en"},
		{"eng", "en"},
		{"fre", "fr"},
		{"pt-BR", "pt"},
		{"zh_CN", "zh"},
		{"EN", "en"},
		{"forced", ""},
		{"1080p", ""},
		{"x264", ""},
		{"", ""},
		{"english", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeLangToken(tt.token), "token %q", tt.token)
	}
}

func TestParseSuffix(t *testing.T) {
	tests := []struct {
		stem      string
		mediaStem string
		lang      string
		captioned bool
	}{
		{"movie.en", "movie", "en", false},
		{"movie.en.forced", "movie", "en", true},
		{"movie.forced.en", "movie", "en", true},
		{"movie.sdh", "movie", "", true},
		{"movie", "movie", "", false},
		{"movie.pt-BR", "movie", "pt", false},
		// "hi" is the hearing-impaired marker, not Hindi, in subtitle names
		{"movie.en.hi", "movie", "en", true},
	}

	for _, tt := range tests {
		info := ParseSuffix(tt.stem, tt.mediaStem)
		assert.Equal(t, tt.lang, info.Language, "stem %q", tt.stem)
		assert.Equal(t, tt.captioned, info.Captioned, "stem %q", tt.stem)
	}
}

func TestMatchesMediaStem(t *testing.T) {
	assert.True(t, MatchesMediaStem("movie", "movie"))
	assert.True(t, MatchesMediaStem("movie.en", "movie"))
	assert.False(t, MatchesMediaStem("movie2.en", "movie"))
	assert.False(t, MatchesMediaStem("mov", "movie"))
}

func TestTranslatedPath(t *testing.T) {
	tests := []struct {
		path   string
		target string
		want   string
	}{
		{"/media/movie.en.srt", "ro", "/media/movie.ro.srt"},
		{"/media/movie.srt", "ro", "/media/movie.ro.srt"},
		{"/media/movie.en.forced.srt", "fr", "/media/movie.fr.srt"},
		{"/media/show.s01e01.eng.vtt", "de", "/media/show.s01e01.de.vtt"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TranslatedPath(tt.path, tt.target), "path %q", tt.path)
	}
}
