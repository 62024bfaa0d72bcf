package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/autoscan/internal/common"
	"github.com/jo-hoe/autoscan/internal/display"
	"github.com/jo-hoe/autoscan/internal/worklog"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show open jobs with live timers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return watch(ctx, a, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// liveView holds the latest elapsed time rendered by the board per job.
type liveView struct {
	mu      sync.Mutex
	elapsed map[string]time.Duration
}

func (v *liveView) set(id string, d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.elapsed[id] = d
}

func (v *liveView) get(id string) (time.Duration, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	d, ok := v.elapsed[id]
	return d, ok
}

// watch reloads the store every tick so changes from other commands show up.
func watch(ctx context.Context, a *app, out io.Writer) error {
	view := &liveView{elapsed: make(map[string]time.Duration)}
	board := display.NewBoard(view.set)
	defer board.Stop()

	ticker := time.NewTicker(common.DisplayTickInterval)
	defer ticker.Stop()
	for {
		a.store.Load()
		logs := a.store.List(worklog.Filter{OpenOnly: true})
		board.Sync(ctx, logs)
		view.draw(out, logs, a.store.Now())

		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case <-ticker.C:
		}
	}
}

func (v *liveView) draw(out io.Writer, logs []worklog.WorkLog, now time.Time) {
	fmt.Fprint(out, "\033[H\033[2J")
	headerColor.Fprintf(out, "open jobs  %s\n\n", now.Format("15:04:05"))
	if len(logs) == 0 {
		fmt.Fprintln(out, faintColor.Sprint("nothing running"))
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, l := range logs {
		d, ok := v.get(l.ID)
		if !ok {
			d = worklog.Elapsed(l, now)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", l.Plate, statusText(l.Status), worklog.FormatClock(d))
	}
	_ = w.Flush()
}
