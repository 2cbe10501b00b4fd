package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/thywilljoshua/expose-generator/internal/ai"
	"github.com/thywilljoshua/expose-generator/internal/config"
	"github.com/thywilljoshua/expose-generator/internal/docs"
	"github.com/thywilljoshua/expose-generator/internal/logging"
	"github.com/thywilljoshua/expose-generator/internal/project"
)

var version = "dev"

const defaultSession = "expose-session"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "exposegen",
		Short:         "Turn casting applications into an editable exposé PDF",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		extractCmd(),
		buildCmd(),
		importCmd(),
		duplicatesCmd(),
		previewCmd(),
		historyCmd(),
		mcpCmd(),
	)
	return root
}

// app bundles what every command builds from the configuration.
type app struct {
	cfg    *config.Config
	log    *logging.Logger
	codec  *project.Codec
	loader *docs.Loader
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	log := cfg.Logger(cmd.Name())
	codec := project.NewCodec(project.WithLogger(log.With("project")))
	return &app{
		cfg:    cfg,
		log:    log,
		codec:  codec,
		loader: docs.NewLoader(codec, log.With("docs")),
	}, nil
}

// generator returns Gemini when a key is configured. Without one the Noop generator
// echoes the supplied text so the Markdown can still be edited by hand.
func (a *app) generator(ctx context.Context) (ai.Generator, string) {
	if a.cfg.APIKey == "" {
		a.log.Warnf("no API key configured, extraction only echoes the supplied text")
		return ai.Noop{}, "noop"
	}
	g, err := ai.NewGemini(ctx, a.cfg.APIKey, a.cfg.Model)
	if err != nil {
		a.log.Warnf("gemini unavailable, falling back to noop: %v", err)
		return ai.Noop{}, "noop"
	}
	return g, g.Model()
}
