package training

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/storyqa/internal/ollama"
	"github.com/dgallion1/storyqa/internal/reference"
)

type fakeBackend struct {
	mu        sync.Mutex
	generated []ollama.GenerateRequest
	created   []ollama.CreateRequest
	failOn    map[int]bool // call index -> fail
	onFail    func()
	createErr error
	reply     string
}

func (f *fakeBackend) ListModels(ctx context.Context) ([]ollama.Model, error) {
	return []ollama.Model{{Name: "mi-historia:latest"}}, nil
}

func (f *fakeBackend) Generate(ctx context.Context, req ollama.GenerateRequest) (*ollama.GenerateResponse, error) {
	f.mu.Lock()
	n := len(f.generated)
	f.generated = append(f.generated, req)
	f.mu.Unlock()
	if f.failOn[n] {
		if f.onFail != nil {
			f.onFail()
		}
		return nil, errors.New("model busy")
	}
	return &ollama.GenerateResponse{Response: f.reply, Done: true}, nil
}

func (f *fakeBackend) Create(ctx context.Context, req ollama.CreateRequest) error {
	f.created = append(f.created, req)
	return f.createErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func examples(n int) []Example {
	out := make([]Example, n)
	for i := range out {
		out[i] = Example{Input: "p" + string(rune('a'+i%26)), Output: "r"}
	}
	return out
}

func TestRun_RequestsAndCounts(t *testing.T) {
	b := &fakeBackend{}
	doc := reference.FromText("h", "Había una vez.")
	tr := New(b, doc, []Example{{Input: "¿Quién?", Output: "Ana."}}, Options{Epochs: 2}, discardLogger())

	snap, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Status != StatusCompleted || snap.Progress.Attempted != 2 || snap.Progress.Succeeded != 2 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.ID == "" || snap.Epoch != 2 {
		t.Errorf("expected run id and final epoch, got %+v", snap)
	}

	req := b.generated[0]
	if req.Model != "mi-historia" || req.Prompt != "Pregunta: ¿Quién?" {
		t.Errorf("unexpected request %+v", req)
	}
	if req.System != "Contexto: Había una vez.\nRespuesta esperada: Ana." {
		t.Errorf("unexpected system %q", req.System)
	}
	if req.Options == nil || req.Options.NumCtx != 2048 || req.Options.Temperature != 0.4 {
		t.Errorf("unexpected options %+v", req.Options)
	}
}

func TestRun_ZeroTemperatureKept(t *testing.T) {
	b := &fakeBackend{}
	zero := 0.0
	tr := New(b, reference.FromText("h", "x"), examples(1), Options{Epochs: 1, Temperature: &zero, AskTemperature: &zero}, discardLogger())

	if _, err := tr.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr.Ask(context.Background(), "q")
	for i, req := range b.generated {
		if req.Options.Temperature != 0 {
			t.Errorf("call %d: expected temperature 0, got %v", i, req.Options.Temperature)
		}
	}
}

func TestRun_LimitsExamplesPerEpoch(t *testing.T) {
	b := &fakeBackend{}
	tr := New(b, reference.FromText("h", "x"), examples(60), Options{}, discardLogger())

	snap, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.generated) != DefaultEpochs*DefaultLimit {
		t.Errorf("expected %d calls, got %d", DefaultEpochs*DefaultLimit, len(b.generated))
	}
	if snap.Epochs != 3 {
		t.Errorf("expected 3 epochs, got %d", snap.Epochs)
	}
}

func TestRun_FailuresAreCountedAndSkipped(t *testing.T) {
	b := &fakeBackend{failOn: map[int]bool{1: true, 4: true}}
	tr := New(b, reference.FromText("h", "x"), examples(3), Options{Epochs: 2, FailurePause: time.Millisecond}, discardLogger())

	snap, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.generated) != 6 {
		t.Fatalf("loop should continue after failures, got %d calls", len(b.generated))
	}
	if snap.Progress.Failed != 2 || snap.Progress.Succeeded != 4 || snap.Status != StatusPartial {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if len(snap.Progress.Errors) != 2 || !strings.Contains(snap.Progress.Errors[0], "model busy") {
		t.Errorf("unexpected errors %q", snap.Progress.Errors)
	}
}

func TestRun_CancelDuringPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &fakeBackend{failOn: map[int]bool{0: true}, onFail: cancel}
	tr := New(b, reference.FromText("h", "x"), examples(5), Options{FailurePause: time.Hour}, discardLogger())

	done := make(chan struct{})
	var snap RunSnapshot
	var err error
	go func() {
		snap, err = tr.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pause did not honor cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if snap.Status != StatusCancelled || len(b.generated) != 1 {
		t.Errorf("unexpected state %+v after %d calls", snap, len(b.generated))
	}
}

func TestRegister(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Modelfile")
	b := &fakeBackend{}
	doc := reference.FromText("h", "Historia \"citada\".")
	tr := New(b, doc, nil, Options{ModelfilePath: path, BaseModel: "llama3"}, discardLogger())

	if err := tr.Register(context.Background()); err != nil {
		t.Fatalf("register: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("modelfile not written: %v", err)
	}
	if !strings.HasPrefix(string(data), "FROM llama3\nSYSTEM \"Eres un asistente") {
		t.Errorf("unexpected modelfile %q", data)
	}
	if len(b.created) != 1 {
		t.Fatalf("expected one create call, got %d", len(b.created))
	}
	c := b.created[0]
	if c.Model != "mi-historia" || c.From != "llama3" || c.System != SystemPromptPrefix+"Historia \"citada\"." {
		t.Errorf("unexpected create request %+v", c)
	}
}

func TestRegister_CreateFails(t *testing.T) {
	b := &fakeBackend{createErr: &ollama.StatusError{StatusCode: 500, Message: "no space"}}
	tr := New(b, reference.FromText("h", "x"), nil, Options{ModelfilePath: filepath.Join(t.TempDir(), "Modelfile")}, discardLogger())

	err := tr.Register(context.Background())
	var statusErr *ollama.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected wrapped StatusError, got %v", err)
	}
}

func TestAsk(t *testing.T) {
	b := &fakeBackend{reply: "Cambió sus vidas."}
	tr := New(b, reference.FromText("h", "Historia."), nil, Options{}, discardLogger())

	if got := tr.Ask(context.Background(), "¿Impacto?"); got != "Cambió sus vidas." {
		t.Errorf("unexpected answer %q", got)
	}
	req := b.generated[0]
	if req.System != "Contexto completo: Historia." || req.Prompt != "Pregunta: ¿Impacto?" {
		t.Errorf("unexpected request %+v", req)
	}
	if req.Options == nil || req.Options.Temperature != 0.5 || req.Options.NumCtx != 0 {
		t.Errorf("unexpected options %+v", req.Options)
	}

	b = &fakeBackend{failOn: map[int]bool{0: true}}
	tr = New(b, reference.FromText("h", "Historia."), nil, Options{}, discardLogger())
	if got := tr.Ask(context.Background(), "q"); got != "Error: model busy" {
		t.Errorf("expected folded error, got %q", got)
	}
}
