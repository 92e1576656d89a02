package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/storyqa/internal/config"
	"github.com/dgallion1/storyqa/internal/ollama"
	"github.com/dgallion1/storyqa/internal/parser"
	"github.com/dgallion1/storyqa/internal/reference"
	"github.com/dgallion1/storyqa/internal/training"
	"github.com/spf13/cobra"
)

// buildRootCmd wires the trainer commands. Flags default to cfg and write
// back into it, so they take precedence over env and config file values.
func buildRootCmd(cfg *config.Config, log *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "trainer",
		Short:         "Register the story model, replay examples against it, and ask it a sample question",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := newTrainer(cfg, log, true)
			if err != nil {
				return err
			}
			if err := tr.Register(cmd.Context()); err != nil {
				return err
			}
			snap, err := tr.Run(cmd.Context())
			if err != nil {
				return err
			}
			if err := printJSON(cmd, snap); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pregunta: %s\nRespuesta: %s\n", cfg.SampleQuestion, tr.Ask(cmd.Context(), cfg.SampleQuestion))
			return nil
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&cfg.DocumentPath, "document", cfg.DocumentPath, "Reference document (.docx, .md, .html, .pdf, .txt)")
	f.StringVar(&cfg.ModelName, "model", cfg.ModelName, "Name of the model to create and query")
	f.StringVar(&cfg.BaseModel, "base-model", cfg.BaseModel, "Base model the Modelfile derives from")
	f.StringVar(&cfg.ModelfilePath, "modelfile", cfg.ModelfilePath, "Where to write the Modelfile")
	f.StringVar(&cfg.TrainingDataPath, "data", cfg.TrainingDataPath, "Training examples (JSON or YAML)")
	f.StringVar(&cfg.OllamaURL, "ollama-host", cfg.OllamaURL, "Ollama base URL")
	f.IntVar(&cfg.TrainEpochs, "epochs", cfg.TrainEpochs, "Number of passes over the examples")
	f.IntVar(&cfg.TrainLimit, "limit", cfg.TrainLimit, "Examples used per epoch")
	f.DurationVar(&cfg.TrainFailurePause, "failure-pause", cfg.TrainFailurePause, "Pause after a failed example (negative disables)")

	modelfileCmd := &cobra.Command{
		Use:   "modelfile",
		Short: "Write the Modelfile without contacting the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := newTrainer(cfg, log, false)
			if err != nil {
				return err
			}
			if err := tr.WriteModelfile(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.ModelfilePath)
			return nil
		},
	}

	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Write the Modelfile and create the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := newTrainer(cfg, log, false)
			if err != nil {
				return err
			}
			return tr.Register(cmd.Context())
		},
	}

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Replay the training examples against the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := newTrainer(cfg, log, true)
			if err != nil {
				return err
			}
			snap, err := tr.Run(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, snap)
		},
	}

	askCmd := &cobra.Command{
		Use:     "ask <question>",
		Short:   "Ask the model one question with the full context",
		Example: "  trainer ask ¿Quién fundó la plataforma?",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := newTrainer(cfg, log, false)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tr.Ask(cmd.Context(), strings.Join(args, " ")))
			return nil
		},
	}

	root.AddCommand(modelfileCmd, registerCmd, trainCmd, askCmd)
	return root
}

func newTrainer(cfg *config.Config, log *slog.Logger, withExamples bool) (*training.Trainer, error) {
	doc, err := reference.Load(cfg.DocumentPath, parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext})
	if err != nil {
		return nil, err
	}
	log.Info("document loaded", "path", doc.Path(), "chars", doc.Chars())

	var examples []training.Example
	if withExamples {
		examples, err = training.LoadExamples(cfg.TrainingDataPath)
		if err != nil {
			return nil, err
		}
		log.Info("examples loaded", "path", cfg.TrainingDataPath, "count", len(examples))
	}

	// --ollama-host is applied after config.Load normalized the env value.
	client := ollama.NewClient(config.NormalizeURL(cfg.OllamaURL), cfg.OllamaTimeout, nil)
	return training.New(client, doc, examples, training.Options{
		BaseModel:             cfg.BaseModel,
		ModelName:             cfg.ModelName,
		ModelfilePath:         cfg.ModelfilePath,
		ModelfileContextChars: cfg.ModelfileContextChars,
		ContextChars:          cfg.ContextChars,
		Epochs:                cfg.TrainEpochs,
		Limit:                 cfg.TrainLimit,
		Temperature:           &cfg.TrainTemperature,
		AskTemperature:        &cfg.Temperature,
		NumCtx:                cfg.NumCtx,
		FailurePause:          cfg.TrainFailurePause,
	}, log), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
