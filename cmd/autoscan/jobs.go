package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jo-hoe/autoscan/internal/common"
	"github.com/jo-hoe/autoscan/internal/plate"
	"github.com/jo-hoe/autoscan/internal/util"
	"github.com/jo-hoe/autoscan/internal/worklog"
)

var (
	listStatuses []string
	listToday    bool
	listOpen     bool
	statsDay     string
	clearYes     bool
)

var addCmd = &cobra.Command{
	Use:   "add <plate>",
	Short: "Start a job for a manually entered plate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := plate.ValidateManual(args[0])
		if err != nil {
			return err
		}
		job, err := a.store.Create(p, "", "")
		if err != nil {
			return describeCreateError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s started %s (%s)\n", goodColor.Sprint("✔"), job.Plate, shortID(job.ID))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List work logs, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		f := worklog.Filter{OpenOnly: listOpen}
		for _, s := range listStatuses {
			st := worklog.Status(strings.ToLower(strings.TrimSpace(s)))
			if !st.Valid() {
				return fmt.Errorf("unknown status %q", s)
			}
			f.Statuses = append(f.Statuses, st)
		}
		if listToday {
			f.Day = a.store.Now().In(a.loc)
		}
		logs := a.store.List(f)
		if len(logs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), faintColor.Sprint("no work logs"))
			return nil
		}
		printJobs(cmd.OutOrStdout(), logs, a.store.Now())
		return nil
	},
}

var (
	pauseCmd  = transitionCmd("pause", "Pause an active job", (*worklog.Store).Pause)
	resumeCmd = transitionCmd("resume", "Resume a paused job", (*worklog.Store).Resume)
	finishCmd = transitionCmd("finish", "Complete an active or paused job", (*worklog.Store).Finish)
)

// transitionCmd builds a command taking a job id, id prefix or open plate.
func transitionCmd(name, short string, op func(*worklog.Store, string) (worklog.WorkLog, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <id|plate>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := resolveID(a.store, args[0])
			if err != nil {
				return err
			}
			job, err := op(a.store, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", job.Plate, statusText(job.Status),
				worklog.FormatClock(worklog.Elapsed(job, a.store.Now())))
			return nil
		},
	}
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id|plate>",
	Short: "Remove a job regardless of its status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := resolveID(a.store, args[0])
		if err != nil {
			return err
		}
		if err := a.store.Delete(id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", shortID(id))
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every work log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearYes {
			return errors.New("refusing to delete all work logs without --yes")
		}
		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		n := len(a.store.List(worklog.Filter{}))
		if err := a.store.Clear(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d work logs\n", n)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show jobs started today and total time worked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		day := a.store.Now().In(a.loc)
		if statsDay != "" {
			day, err = time.ParseInLocation(common.DayLayout, statsDay, a.loc)
			if err != nil {
				return fmt.Errorf("invalid --day %q, want %s", statsDay, common.DayLayout)
			}
		}
		st := a.store.Stats(day)
		out := cmd.OutOrStdout()
		headerColor.Fprintln(out, day.Format("Monday, 2 January 2006"))
		fmt.Fprintf(out, "  jobs started  %d\n", st.JobsToday)
		fmt.Fprintf(out, "  open jobs     %d\n", st.OpenJobs)
		fmt.Fprintf(out, "  total worked  %s\n", worklog.FormatHours(st.TotalWorked))
		return nil
	},
}

func init() {
	listCmd.Flags().StringSliceVar(&listStatuses, "status", nil, "only these statuses (active, paused, completed)")
	listCmd.Flags().BoolVar(&listToday, "today", false, "only jobs started today")
	listCmd.Flags().BoolVar(&listOpen, "open", false, "only active or paused jobs")
	statsCmd.Flags().StringVar(&statsDay, "day", "", "calendar day as YYYY-MM-DD (default today)")
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "confirm deleting every work log")

	rootCmd.AddCommand(addCmd, listCmd, pauseCmd, resumeCmd, finishCmd, deleteCmd, clearCmd, statsCmd)
}

// resolveID accepts a full id, a unique id prefix, or the plate of an open job.
func resolveID(s *worklog.Store, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if util.IsID(arg) {
		if _, err := s.Get(arg); err != nil {
			return "", err
		}
		return arg, nil
	}
	logs := s.List(worklog.Filter{})
	var match string
	for _, l := range logs {
		if arg != "" && strings.HasPrefix(l.ID, arg) {
			if match != "" {
				return "", fmt.Errorf("id prefix %q is ambiguous", arg)
			}
			match = l.ID
		}
	}
	if match != "" {
		return match, nil
	}
	if p := plate.Normalize(arg); p != "" {
		for _, l := range logs {
			if l.Plate == p && l.Status.Open() {
				return l.ID, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", worklog.ErrNotFound, arg)
}

func describeCreateError(err error) error {
	var dup *worklog.DuplicateActiveJobError
	if errors.As(err, &dup) {
		return fmt.Errorf("%s already has an open job (%s, %s)", dup.Existing.Plate, shortID(dup.Existing.ID), dup.Existing.Status)
	}
	return err
}

func printJobs(out io.Writer, logs []worklog.WorkLog, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, headerColor.Sprint("ID")+"\t"+headerColor.Sprint("PLATE")+"\t"+headerColor.Sprint("STATUS")+"\t"+headerColor.Sprint("ELAPSED")+"\t"+headerColor.Sprint("STARTED"))
	for _, l := range logs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			shortID(l.ID), l.Plate, statusText(l.Status),
			worklog.FormatClock(worklog.Elapsed(l, now)), humanize.Time(l.StartTime))
	}
	_ = w.Flush()
}

func statusText(s worklog.Status) string {
	return statusColor(s).Sprint(string(s))
}

func statusColor(s worklog.Status) *color.Color {
	switch s {
	case worklog.StatusActive:
		return goodColor
	case worklog.StatusPaused:
		return warnColor
	}
	return faintColor
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
