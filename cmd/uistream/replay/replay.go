// Package replaycmder provides the replay command, which rebuilds the
// assistant message of a recorded UI message stream.
package replaycmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/uistream/pkg/cliui"
	"github.com/papercomputeco/uistream/pkg/llm"
	"github.com/papercomputeco/uistream/pkg/logger"
	"github.com/papercomputeco/uistream/pkg/stream"
	"github.com/papercomputeco/uistream/pkg/tools"
	"github.com/papercomputeco/uistream/pkg/worker"
)

type replayCommander struct {
	path      string
	chunkSize int
	follow    bool
	idle      time.Duration
	snapshots bool
	debug     bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer
	logger *zap.Logger
}

const replayLongDesc string = `Rebuild the assistant message of a recorded UI message stream.

The recording is fed through the same decoder and reducer the chat client
uses, and the final message is printed as JSON. Use "-" to read stdin.

--chunk-size splits the input into reads of at most that many bytes, which
is useful to check that a stream reconstructs the same way no matter how it
is fragmented. --follow keeps reading while the file grows, until it stays
unchanged for --idle.

Examples:
  uistream replay session.sse
  uistream replay --chunk-size 1 session.sse
  uistream replay --follow --snapshots session.sse`

const replayShortDesc string = "Rebuild the message of a recorded stream"

func NewReplayCmd() *cobra.Command {
	cmder := &replayCommander{}

	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: replayShortDesc,
		Long:  replayLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.path = args[0]
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&cmder.chunkSize, "chunk-size", "c", 0, "Largest number of bytes handed to the decoder at once (0 for no limit)")
	cmd.Flags().BoolVarP(&cmder.follow, "follow", "f", false, "Keep reading while the recording grows")
	cmd.Flags().DurationVar(&cmder.idle, "idle", 2*time.Second, "With --follow, stop once the recording is unchanged for this long (0 waits forever)")
	cmd.Flags().BoolVar(&cmder.snapshots, "snapshots", false, "Print every intermediate message as a JSON line")

	return cmd
}

func (c *replayCommander) run(ctx context.Context) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	src, err := c.open()
	if err != nil {
		return err
	}

	executor := worker.NewExecutor(&worker.Config{Name: "replay", Logger: c.logger})

	reducer := stream.NewReducer(&stream.ReducerConfig{
		Tools:  tools.Default(),
		Logger: c.logger,
	})

	enc := json.NewEncoder(c.out)
	writes := 0
	var skipped atomic.Int64

	start := time.Now()
	err = stream.Consume(ctx, src, &stream.ConsumeConfig{
		Reducer:  reducer,
		Executor: executor,
		Writer: stream.WriterFunc(func(msg *llm.Message) {
			writes++
			if c.snapshots {
				if err := enc.Encode(msg); err != nil {
					c.logger.Warn("failed to print snapshot", zap.Error(err))
				}
			}
		}),
		OnParseError: func(_ string, _ error) { skipped.Add(1) },
		ReadSize:     c.chunkSize,
		Logger:       c.logger,
	})

	// jobs queued behind a failure still run
	executor.Close()

	if !c.snapshots {
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(reducer.Message()); encErr != nil {
			return errors.Join(err, fmt.Errorf("printing message: %w", encErr))
		}
	}

	mark, summary := cliui.Mark(err), fmt.Sprintf("%d updates, %d skipped payloads", writes, skipped.Load())
	if err == nil && !reducer.Finished() {
		mark, summary = cliui.WarnMark, summary+", no finish chunk"
	}

	fmt.Fprintf(c.errOut, "  %s %s %s\n",
		mark,
		summary,
		cliui.StepStyle.Render(fmt.Sprintf("(%s)", cliui.FormatDuration(time.Since(start)))),
	)

	if err != nil {
		return fmt.Errorf("replaying %s: %w", c.path, err)
	}
	return nil
}

func (c *replayCommander) open() (io.ReadCloser, error) {
	switch {
	case c.path == "-":
		return io.NopCloser(c.in), nil
	case c.follow:
		f, err := newFollowReader(c.path, c.idle, c.logger)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		f, err := os.Open(c.path)
		if err != nil {
			return nil, fmt.Errorf("opening recording: %w", err)
		}
		return f, nil
	}
}
