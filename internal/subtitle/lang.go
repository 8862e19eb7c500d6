package subtitle

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/language"
)

// Caption/subtype markers that can appear in subtitle filenames alongside the
// language code, e.g. "show.en.forced.srt".
var captionMarkers = map[string]bool{
	"forced": true,
	"sdh":    true,
	"cc":     true,
	"hi":     true,
}

var langTokenPattern = regexp.MustCompile(`^(?i)([a-z]{2,3}|[a-z]{2}-[a-z]{2})$`)

// IsCaptionToken reports whether the token is a caption/subtype marker rather
// than a language code.
func IsCaptionToken(token string) bool {
	return captionMarkers[strings.ToLower(token)]
}

// NormalizeLangToken validates a filename token as a language tag (two/three
// letter code or xx-YY) and returns its canonical base code. Returns "" for
// anything that is not a recognized language.
func NormalizeLangToken(token string) string {
	token = strings.ToLower(strings.ReplaceAll(token, "_", "-"))
	if !langTokenPattern.MatchString(token) {
		return ""
	}
	tag, err := language.Parse(token)
	if err != nil {
		return ""
	}
	base, conf := tag.Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}

// SuffixInfo is what a subtitle filename says about its own content.
type SuffixInfo struct {
	Language  string // normalized base code, "" when the name carries none
	Captioned bool   // a caption marker (forced, sdh, cc, hi) is present
}

// ParseSuffix extracts the language and caption markers from the part of a
// subtitle filename stem that follows the media stem. A file such as
// "name.en.forced.srt" resolves language "en" with Captioned=true.
func ParseSuffix(stem, mediaStem string) SuffixInfo {
	remain := strings.TrimPrefix(stem, mediaStem)
	remain = strings.TrimLeft(remain, "._- ")

	info := SuffixInfo{}
	if remain == "" {
		return info
	}

	tokens := strings.FieldsFunc(remain, func(r rune) bool {
		return r == '.' || r == '_' || r == ' '
	})
	for _, token := range tokens {
		if IsCaptionToken(token) {
			info.Captioned = true
			continue
		}
		if lang := NormalizeLangToken(token); lang != "" {
			info.Language = lang
		}
	}
	return info
}

// MatchesMediaStem reports whether a subtitle stem belongs to the media file
// with the given stem: either identical or separated by a delimiter.
func MatchesMediaStem(stem, mediaStem string) bool {
	if stem == mediaStem {
		return true
	}
	if !strings.HasPrefix(stem, mediaStem) || len(stem) <= len(mediaStem) {
		return false
	}
	switch stem[len(mediaStem)] {
	case '.', '_', '-', ' ':
		return true
	default:
		return false
	}
}

// TranslatedPath derives the output path for a translated subtitle: any
// trailing language token (and caption markers) on the source stem is replaced
// by the target language code, or the code is appended when none is present.
// "movie.en.srt" with target "ro" becomes "movie.ro.srt".
func TranslatedPath(path, targetLang string) string {
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)

	tokens := strings.Split(stem, ".")
	for len(tokens) > 1 {
		last := tokens[len(tokens)-1]
		if IsCaptionToken(last) || NormalizeLangToken(last) != "" {
			tokens = tokens[:len(tokens)-1]
			continue
		}
		break
	}

	return filepath.Join(dir, strings.Join(tokens, ".")+"."+targetLang+ext)
}
