// Command vpc trains and applies vertical profile classification schemes.
//
// Usage:
//
//	vpc train     [flags] case-file...
//	vpc classify  -scheme NAME [flags] case-file...
//	vpc centroids -scheme NAME [-sort-by temp_mean] [-out FILE]
//	vpc inspect   -scheme NAME | -list
//	vpc latest    -case ID [-counts] [-out FILE]
//
// Settings come from the environment (see internal/config); a .env file in
// the working directory is loaded first.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/storm-vp-classifier/internal/config"
	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"
)

const usage = "usage: vpc {train|classify|centroids|inspect|latest} [flags] [case-file...]"

type command func(ctx context.Context, env *environment, args []string) error

var commands = map[string]command{
	"train":     runTrain,
	"classify":  runClassify,
	"centroids": runCentroids,
	"inspect":   runInspect,
	"latest":    runLatest,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := newEnvironment(ctx, cfg, logger)
	if err != nil {
		fail(ctx, logger, "failed to initialise", err)
	}
	defer env.Close()

	if err := cmd(ctx, env, os.Args[2:]); err != nil {
		env.Close()
		fail(ctx, logger, os.Args[1]+" failed", err)
	}
}

func fail(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(ctx, msg, slog.Any("error", xerrors.New(err)))
	os.Exit(1)
}
