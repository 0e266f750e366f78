package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/famish99/vidstated/internal/trace"
)

// errReplayFailed is returned when an expectation in a trace did not hold
var errReplayFailed = errors.New("trace expectations failed")

func replayCmd() *cobra.Command {
	var watch, verbose bool

	cmd := &cobra.Command{
		Use:   "replay <trace.yaml>...",
		Short: "Run scripted event traces through the engine",
		Long: `Run each trace against a fresh engine on a virtual surface with a
manual clock and print the state transitions it produced. With --watch the
traces run again whenever one of the files changes.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var logger *log.Logger
			if verbose {
				logger = log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
			}

			err := runReplay(cmd.OutOrStdout(), args, logger)
			if !watch {
				return err
			}
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watchReplay(ctx, cmd.OutOrStdout(), args, logger)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-run when a trace file changes")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show engine log lines")

	return cmd
}

// runReplay runs every trace in paths and prints the results
func runReplay(w io.Writer, paths []string, logger *log.Logger) error {
	failed := false
	for _, path := range paths {
		s, err := trace.Load(path)
		if err != nil {
			return err
		}
		res, err := trace.Run(s, logger)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		renderResult(w, res)
		if !res.Passed() {
			failed = true
		}
	}
	if failed {
		return errReplayFailed
	}
	return nil
}

func renderResult(w io.Writer, res *trace.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("%s", res.Name)
	t.AppendHeader(table.Row{"Step", "At", "From", "To", "After", "Buffering"})
	for _, tr := range res.Transitions {
		buffering := ""
		if tr.BufferingDurationMs != nil {
			buffering = fmt.Sprintf("%dms", *tr.BufferingDurationMs)
		}
		t.AppendRow(table.Row{tr.Step, fmt.Sprintf("%dms", tr.AtMs), tr.From, tr.To, fmt.Sprintf("%dms", tr.TransitionDurationMs), buffering})
	}
	t.Render()

	for _, f := range res.Failures {
		fmt.Fprintf(w, "FAIL %s\n", f)
	}
	status := "PASS"
	if !res.Passed() {
		status = "FAIL"
	}
	fmt.Fprintf(w, "%s %s: %d transitions, final state %s\n", status, res.Name, len(res.Transitions), res.Final.State)
}

// watchReplay re-runs the traces whenever one of them is written, until
// ctx is done. Directories are watched since editors often replace files.
func watchReplay(ctx context.Context, w io.Writer, paths []string, logger *log.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	traces := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to resolve path %s: %w", path, err)
		}
		traces[abs] = true
		dir := filepath.Dir(abs)
		if !dirs[dir] {
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
			dirs[dir] = true
		}
	}

	fmt.Fprintf(w, "Watching %d trace file(s)...\n", len(traces))

	// Debounce rapid file changes
	changeChan := make(chan struct{}, 1)
	var debounceTimer *time.Timer
	var debounceMutex sync.Mutex
	debounceDelay := 100 * time.Millisecond

	triggerChange := func() {
		debounceMutex.Lock()
		defer debounceMutex.Unlock()

		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(debounceDelay, func() {
			select {
			case changeChan <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !traces[event.Name] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				triggerChange()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			_, _ = fmt.Fprintf(os.Stderr, "watch error: %v\n", err)

		case <-changeChan:
			if err := runReplay(w, paths, logger); err != nil {
				fmt.Fprintf(w, "%v\n", err)
			}
		}
	}
}
