// Package answer turns a user question into a model reply grounded on the
// reference document.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/storyqa/internal/ollama"
	"github.com/dgallion1/storyqa/internal/reference"
)

const (
	// DefaultContextChars is how much of the document, in characters, goes
	// into every system message. The cut is positional and may split a word.
	DefaultContextChars = 1500
	DefaultTemperature  = 0.5
	DefaultNumCtx       = 2048

	ContextPrefix = "Contexto: "

	// FallbackText replaces the answer when the backend call fails.
	FallbackText = "Error al generar la respuesta."
	// EmptyText replaces the answer when the backend replies without content.
	EmptyText = "No se pudo generar respuesta"
)

// ErrEmptyResponse means the backend answered but carried no text.
var ErrEmptyResponse = errors.New("backend returned no content")

// Backend is the subset of the model server the service talks to.
type Backend interface {
	ListModels(ctx context.Context) ([]ollama.Model, error)
	Chat(ctx context.Context, req ollama.ChatRequest) (*ollama.ChatResponse, error)
}

// Outcome classifies a Result.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeEmpty    Outcome = "empty"
	OutcomeDegraded Outcome = "degraded"
)

// Result is what a question produced. Text is always safe to show.
type Result struct {
	Text    string
	Outcome Outcome
}

// Turn is the per-request exchange sent to the model.
type Turn struct {
	SystemContext string
	UserQuestion  string
}

// Messages renders the turn as a system message followed by the user question.
func (t Turn) Messages() []ollama.Message {
	return []ollama.Message{
		{Role: "system", Content: t.SystemContext},
		{Role: "user", Content: t.UserQuestion},
	}
}

// ModelNotFoundError means the configured model is not registered.
type ModelNotFoundError struct {
	Model     string
	Available []string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %s not found (available: %s)", e.Model, strings.Join(e.Available, ", "))
}

// GenerationError wraps a failed backend call.
type GenerationError struct {
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate with %s: %v", e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Options tunes generation. Zero fields take the defaults; a nil
// Temperature means DefaultTemperature, so an explicit 0 is honored.
type Options struct {
	ContextChars int
	Temperature  *float64
	NumCtx       int
}

func (o Options) withDefaults() Options {
	if o.ContextChars <= 0 {
		o.ContextChars = DefaultContextChars
	}
	temp := DefaultTemperature
	if o.Temperature != nil {
		temp = *o.Temperature
	}
	o.Temperature = &temp
	if o.NumCtx <= 0 {
		o.NumCtx = DefaultNumCtx
	}
	return o
}

// Service answers questions about one document with one model. It is built
// once at startup and is safe for concurrent use.
type Service struct {
	backend Backend
	doc     *reference.Document
	model   string
	opts    Options
	log     *slog.Logger

	systemContext string
}

func NewService(backend Backend, doc *reference.Document, model string, opts Options, log *slog.Logger) *Service {
	opts = opts.withDefaults()
	return &Service{
		backend:       backend,
		doc:           doc,
		model:         model,
		opts:          opts,
		log:           log,
		systemContext: ContextPrefix + doc.Excerpt(opts.ContextChars),
	}
}

func (s *Service) Model() string { return s.model }

func (s *Service) Document() *reference.Document { return s.doc }

// VerifyModel checks the configured model is registered on the backend.
func (s *Service) VerifyModel(ctx context.Context) error {
	models, err := s.backend.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("verify model %s: %w", s.model, err)
	}
	names := make([]string, 0, len(models))
	for _, m := range models {
		if ModelMatches(m.Name, s.model) {
			return nil
		}
		names = append(names, m.Name)
	}
	return &ModelNotFoundError{Model: s.model, Available: names}
}

// ModelMatches reports whether a registered name refers to want. An
// untagged name means the "latest" tag.
func ModelMatches(registered, want string) bool {
	if registered == want {
		return true
	}
	if !strings.Contains(want, ":") {
		return registered == want+":latest"
	}
	return false
}

// BuildTurn pairs the fixed document context with a question.
func (s *Service) BuildTurn(question string) Turn {
	return Turn{SystemContext: s.systemContext, UserQuestion: question}
}

// Generate asks the model. On failure the returned Result still carries a
// fallback text, and the error says why: *GenerationError when the backend
// call failed, ErrEmptyResponse when it replied without content.
func (s *Service) Generate(ctx context.Context, question string) (Result, error) {
	turn := s.BuildTurn(question)
	resp, err := s.backend.Chat(ctx, ollama.ChatRequest{
		Model:    s.model,
		Messages: turn.Messages(),
		Options: &ollama.Options{
			Temperature: *s.opts.Temperature,
			NumCtx:      s.opts.NumCtx,
		},
	})
	if err != nil {
		s.log.Error("generation failed", "model", s.model, "error", err)
		return Result{Text: FallbackText, Outcome: OutcomeDegraded}, &GenerationError{Model: s.model, Err: err}
	}

	text, ok := resp.Content()
	if !ok {
		s.log.Warn("empty generation", "model", s.model, "done_reason", resp.DoneReason)
		return Result{Text: EmptyText, Outcome: OutcomeEmpty}, ErrEmptyResponse
	}
	return Result{Text: text, Outcome: OutcomeOK}, nil
}

// GenerateResponse is Generate without the error: it always yields text.
func (s *Service) GenerateResponse(ctx context.Context, question string) string {
	res, _ := s.Generate(ctx, question)
	return res.Text
}
