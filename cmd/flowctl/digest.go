package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbukum/streamkit/broadcast"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/transform"
)

func newDigestCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "digest <file>",
		Short: "Print the digest of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.RunTask(cmd.Context(), func(ctx context.Context) error {
				return c.digest(ctx, cmd, args[0])
			})
		},
	}
}

func (c *cli) digest(ctx context.Context, cmd *cobra.Command, file string) error {
	h, err := transform.Hash(transform.HashAlgorithm(c.app.Cfg.Transform.Hash))
	if err != nil {
		return err
	}
	src, err := c.fs.Open(file)
	if err != nil {
		return err
	}
	pipe, err := transform.FromReader(src, true, c.transformOptions()...)
	if err != nil {
		_ = src.Close()
		return err
	}
	if err := pipe.Then(h).Drain(ctx, io.Discard, false); err != nil {
		return err
	}
	return c.announce(ctx, cmd.OutOrStdout(), h, file)
}

// announce writes "<hex>  <file>" to out and to the log through one
// broadcast stream. A failing log sink is isolated; out is required.
func (c *cli) announce(ctx context.Context, out io.Writer, h *transform.HashStage, file string) error {
	log := c.app.Logger.WithComponent(binaryName)
	stream, err := broadcast.New(ctx,
		writerOnly{out},
		&logSink{log: log, algorithm: h.Name()},
		broadcast.OnSecondaryError(func(broadcast.SinkError) {}),
		broadcast.WithLogger(log),
	)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(stream, "%s  %s\n", h.Hex(), file); err != nil {
		_ = stream.Close()
		return err
	}
	return stream.Close()
}

// writerOnly hides Close so releasing the stream leaves stdout open.
type writerOnly struct{ io.Writer }

// logSink logs every line written to it.
type logSink struct {
	log       *logger.Logger
	algorithm string
}

func (s *logSink) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	digest, file, _ := strings.Cut(line, "  ")
	s.log.Info("digest computed", logger.Fields(
		"algorithm", s.algorithm,
		"digest", digest,
		"file", file,
	))
	return len(p), nil
}
