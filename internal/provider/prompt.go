package provider

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultPromptTemplate is used when no template is configured. Placeholders
// are resolved to human-readable language names before the prompt is sent.
const DefaultPromptTemplate = "You are a professional subtitle translator. Translate each line from {sourceLanguage} to {targetLanguage}. Preserve tone, punctuation and line breaks. Respond with the translation only, no explanations."

// RenderPrompt resolves the {sourceLanguage}/{targetLanguage} placeholders in
// template, falling back to DefaultPromptTemplate when template is empty.
func RenderPrompt(template, sourceLang, targetLang string) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultPromptTemplate
	}
	template = strings.ReplaceAll(template, "{sourceLanguage}", LanguageName(sourceLang))
	template = strings.ReplaceAll(template, "{targetLanguage}", LanguageName(targetLang))
	return template
}

// LanguageName turns a language code into its English display name, e.g.
// "ro" into "Romanian". Unparsable codes pass through unchanged so the prompt
// still carries something a backend can work with.
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return code
	}
	return name
}

// contextInstruction tells the backend what the surrounding lines are for.
const contextInstruction = "The following neighbouring subtitle lines are provided only for coherence. Do not translate them and do not include them in your answer."

// renderScalarPrompt assembles the user prompt for a single-line translation,
// optionally wrapping the line in its surrounding dialogue.
func renderScalarPrompt(text string, before, after []string) string {
	if len(before) == 0 && len(after) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString(contextInstruction)
	b.WriteString("\n")
	for _, line := range before {
		fmt.Fprintf(&b, "[context] %s\n", line)
	}
	fmt.Fprintf(&b, "\nTranslate this line:\n%s\n", text)
	if len(after) > 0 {
		b.WriteString("\n")
		for _, line := range after {
			fmt.Fprintf(&b, "[context] %s\n", line)
		}
	}
	return b.String()
}
