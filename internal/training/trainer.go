package training

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/storyqa/internal/ollama"
	"github.com/dgallion1/storyqa/internal/reference"
)

const (
	DefaultModelfileContextChars = 1000
	DefaultContextChars          = 1500
	DefaultEpochs                = 3
	DefaultLimit                 = 50
	DefaultTemperature           = 0.4
	DefaultAskTemperature        = 0.5
	DefaultNumCtx                = 2048
	DefaultFailurePause          = 5 * time.Second

	// progressEvery controls how often progress is logged within an epoch.
	progressEvery = 5
)

// Backend is the subset of the Ollama API the trainer drives.
type Backend interface {
	ListModels(ctx context.Context) ([]ollama.Model, error)
	Generate(ctx context.Context, req ollama.GenerateRequest) (*ollama.GenerateResponse, error)
	Create(ctx context.Context, req ollama.CreateRequest) error
}

// Options configures a Trainer. Zero values take the defaults above; nil
// temperatures do too, so an explicit 0 is honored.
type Options struct {
	BaseModel             string
	ModelName             string
	ModelfilePath         string
	ModelfileContextChars int
	ContextChars          int
	Epochs                int
	Limit                 int
	Temperature           *float64
	AskTemperature        *float64
	NumCtx                int
	FailurePause          time.Duration
}

func (o Options) withDefaults() Options {
	if o.BaseModel == "" {
		o.BaseModel = "llama3"
	}
	if o.ModelName == "" {
		o.ModelName = "mi-historia"
	}
	if o.ModelfilePath == "" {
		o.ModelfilePath = "Modelfile"
	}
	if o.ModelfileContextChars <= 0 {
		o.ModelfileContextChars = DefaultModelfileContextChars
	}
	if o.ContextChars <= 0 {
		o.ContextChars = DefaultContextChars
	}
	if o.Epochs <= 0 {
		o.Epochs = DefaultEpochs
	}
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	o.Temperature = orDefault(o.Temperature, DefaultTemperature)
	o.AskTemperature = orDefault(o.AskTemperature, DefaultAskTemperature)
	if o.NumCtx <= 0 {
		o.NumCtx = DefaultNumCtx
	}
	if o.FailurePause < 0 {
		o.FailurePause = 0
	}
	return o
}

// orDefault copies *v, or def when v is nil.
func orDefault(v *float64, def float64) *float64 {
	out := def
	if v != nil {
		out = *v
	}
	return &out
}

// Trainer registers the custom model and replays examples against it.
type Trainer struct {
	backend  Backend
	doc      *reference.Document
	examples []Example
	opts     Options
	log      *slog.Logger
	excerpt  string
}

// New creates a Trainer. examples may be nil when only registering or probing.
// A negative FailurePause disables pausing; zero means the default.
func New(backend Backend, doc *reference.Document, examples []Example, opts Options, log *slog.Logger) *Trainer {
	if opts.FailurePause == 0 {
		opts.FailurePause = DefaultFailurePause
	}
	opts = opts.withDefaults()
	return &Trainer{
		backend:  backend,
		doc:      doc,
		examples: examples,
		opts:     opts,
		log:      log,
		excerpt:  doc.Excerpt(opts.ContextChars),
	}
}

// Modelfile renders the Modelfile for the configured base model.
func (t *Trainer) Modelfile() string {
	return RenderModelfile(t.opts.BaseModel, SystemPrompt(t.doc, t.opts.ModelfileContextChars))
}

// WriteModelfile writes the Modelfile to the configured path.
func (t *Trainer) WriteModelfile() error {
	return WriteModelfile(t.opts.ModelfilePath, t.Modelfile())
}

// Register writes the Modelfile and creates the model on the backend, then
// logs the models the backend reports.
func (t *Trainer) Register(ctx context.Context) error {
	if err := t.WriteModelfile(); err != nil {
		return err
	}
	t.log.Info("creating model", "model", t.opts.ModelName, "from", t.opts.BaseModel, "modelfile", t.opts.ModelfilePath)

	err := t.backend.Create(ctx, ollama.CreateRequest{
		Model:  t.opts.ModelName,
		From:   t.opts.BaseModel,
		System: SystemPrompt(t.doc, t.opts.ModelfileContextChars),
	})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	models, err := t.backend.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.Name
	}
	t.log.Info("model registered", "model", t.opts.ModelName, "available", names)
	return nil
}

// Run replays the first Limit examples for each epoch. Individual failures
// are logged, counted, and followed by a pause; the loop then moves on. The
// only error returned is the context's.
func (t *Trainer) Run(ctx context.Context) (RunSnapshot, error) {
	run := newRun(t.opts.ModelName, t.opts.Epochs)
	run.setStatus(StatusTraining)

	batch := t.examples
	if len(batch) > t.opts.Limit {
		batch = batch[:t.opts.Limit]
	}
	t.log.Info("training started", "run_id", run.ID, "model", t.opts.ModelName,
		"epochs", t.opts.Epochs, "examples", len(batch))

	for epoch := 1; epoch <= t.opts.Epochs; epoch++ {
		run.startEpoch(epoch)
		t.log.Info("epoch started", "run_id", run.ID, "epoch", epoch, "epochs", t.opts.Epochs)

		for i, ex := range batch {
			if err := ctx.Err(); err != nil {
				run.setStatus(StatusCancelled)
				return run.Snapshot(), err
			}

			_, err := t.backend.Generate(ctx, t.trainingRequest(ex))
			if err != nil {
				run.recordFailure(fmt.Sprintf("epoch %d example %d: %v", epoch, i, err))
				t.log.Warn("example failed", "run_id", run.ID, "epoch", epoch, "example", i, "error", err)
				if err := pause(ctx, t.opts.FailurePause); err != nil {
					run.setStatus(StatusCancelled)
					return run.Snapshot(), err
				}
				continue
			}

			run.recordSuccess()
			if i%progressEvery == 0 {
				t.log.Info("training progress", "run_id", run.ID, "epoch", epoch,
					"example", i+1, "total", len(t.examples))
			}
		}
	}

	run.finish()
	snap := run.Snapshot()
	t.log.Info("training finished", "run_id", run.ID, "status", snap.Status,
		"succeeded", snap.Progress.Succeeded, "failed", snap.Progress.Failed)
	return snap, nil
}

func (t *Trainer) trainingRequest(ex Example) ollama.GenerateRequest {
	return ollama.GenerateRequest{
		Model:  t.opts.ModelName,
		Prompt: "Pregunta: " + ex.Input,
		System: "Contexto: " + t.excerpt + "\nRespuesta esperada: " + ex.Output,
		Options: &ollama.Options{
			Temperature: *t.opts.Temperature,
			NumCtx:      t.opts.NumCtx,
		},
	}
}

// Ask asks the model one question with the full context. Failures are
// folded into the returned text.
func (t *Trainer) Ask(ctx context.Context, question string) string {
	resp, err := t.backend.Generate(ctx, ollama.GenerateRequest{
		Model:   t.opts.ModelName,
		Prompt:  "Pregunta: " + question,
		System:  "Contexto completo: " + t.excerpt,
		Options: &ollama.Options{Temperature: *t.opts.AskTemperature},
	})
	if err != nil {
		t.log.Warn("sample question failed", "model", t.opts.ModelName, "error", err)
		return "Error: " + err.Error()
	}
	return resp.Response
}

// pause waits for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
