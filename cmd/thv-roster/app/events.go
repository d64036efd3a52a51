package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/stacklok/toolhive-roster/internal/events"
	"github.com/stacklok/toolhive-roster/internal/logger"
	"github.com/stacklok/toolhive-roster/internal/reconcile"
)

func newConnectCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect ID",
		Short: "Mark a client as connected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			family, _ := cmd.Flags().GetString("family")
			out := st.engine().Connect(cmd.Context(), args[0],
				reconcile.WithDisplayName(name),
				reconcile.WithFamilyID(family),
			)
			return report(cmd, out)
		},
	}
	cmd.Flags().String("name", "", "Display name (defaults to the id for new clients)")
	cmd.Flags().String("family", "", "Family code used for ordering")
	return cmd
}

func newDisconnectCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect ID",
		Short: "Mark a client as disconnected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return report(cmd, st.engine().Disconnect(cmd.Context(), args[0]))
		},
	}
}

func newSyncCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [ID...]",
		Short: "Make the connected set equal to the given ids",
		Long: `sync reconciles the roster against a live snapshot: listed ids become connected
(and are recorded if new), every other client becomes disconnected. With --stdin
the ids are read from standard input, separated by whitespace.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := args
			if fromStdin, _ := cmd.Flags().GetBool("stdin"); fromStdin {
				if isTerminal(cmd.InOrStdin()) {
					logger.Infof("Reading client ids from terminal, end with Ctrl-D...")
				}
				read, err := readIDs(cmd.InOrStdin())
				if err != nil {
					return err
				}
				ids = append(ids, read...)
			}
			return report(cmd, st.engine().ReconcileLiveRoster(cmd.Context(), ids))
		},
	}
	cmd.Flags().Bool("stdin", false, "Read ids from standard input")
	return cmd
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func readIDs(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)
	var ids []string
	for scanner.Scan() {
		ids = append(ids, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ids: %w", err)
	}
	return ids, nil
}

func newIngestCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [FILE]",
		Short: "Apply a stream of JSON lifecycle events",
		Long: `ingest reads newline-delimited JSON events from FILE, or standard input when FILE
is omitted or "-", and applies them in order. Each line is one of:

  {"type":"connect","id":"A","displayName":"Alice","familyId":"7"}
  {"type":"disconnect","id":"A"}
  {"type":"snapshot","ids":["A","B"]}`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, input, closeInput := "stdin", io.Reader(cmd.InOrStdin()), func() {}
			if len(args) == 1 && args[0] != "-" {
				var err error
				if name, input, closeInput, err = openEvents(args[0]); err != nil {
					return err
				}
			}
			defer closeInput()
			return ingest(cmd.Context(), events.NewStreamSource(name, input), st.engine())
		},
	}
}

// ingest runs source against a dispatcher until the source ends, then lets
// the dispatcher drain
func ingest(ctx context.Context, source events.Source, engine *reconcile.Engine) error {
	dispatcher := events.NewDispatcher(events.NewEngineHandler(engine), events.DefaultQueueSize)
	dispatchCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(dispatchCtx)
	})
	g.Go(func() error {
		defer stop()
		return source.Run(gctx, dispatcher)
	})
	return g.Wait()
}
