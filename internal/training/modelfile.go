package training

import (
	"fmt"
	"os"
	"strings"

	"github.com/dgallion1/storyqa/internal/reference"
)

// SystemPromptPrefix opens the system prompt baked into the custom model.
const SystemPromptPrefix = "Eres un asistente especializado en analizar la historia del usuario. Contexto clave: "

// SystemPrompt builds the Modelfile system prompt from the first n
// characters of the document.
func SystemPrompt(doc *reference.Document, n int) string {
	return SystemPromptPrefix + doc.Excerpt(n)
}

// RenderModelfile returns a Modelfile deriving from base with a fixed
// system prompt.
func RenderModelfile(base, systemPrompt string) string {
	return fmt.Sprintf("FROM %s\nSYSTEM \"%s\"\n", base, escapeQuoted(systemPrompt))
}

func escapeQuoted(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// WriteModelfile writes content to path, replacing any existing file.
func WriteModelfile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write modelfile %s: %w", path, err)
	}
	return nil
}
