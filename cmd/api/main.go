package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"pkt.systems/psi"
	"pkt.systems/pslog"
)

func main() {
	psi.Run(func(ctx context.Context) int {
		return submain(ctx)
	})
}

func submain(ctx context.Context) int {
	cmd := newRootCommand(newBaseLogger(os.Stderr))
	ctx = withSignalCancel(ctx)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if err != context.Canceled {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}

// newBaseLogger reads PERMIT_LOG_* from the environment and writes to w.
func newBaseLogger(w io.Writer) pslog.Logger {
	return pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("PERMIT_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(w),
	).With("app", "permit-board")
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}

func withSubsystem(logger pslog.Logger, sys string) pslog.Logger {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return logger.With("sys", sys)
}
