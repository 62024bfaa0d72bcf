package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/autoscan/internal/capture"
	"github.com/jo-hoe/autoscan/internal/config"
	"github.com/jo-hoe/autoscan/internal/llm"
	"github.com/jo-hoe/autoscan/internal/storage"
)

var scanDir string

var scanCmd = &cobra.Command{
	Use:   "scan [image]",
	Short: "Start a job from a photo of the plate",
	Long: `Reads the plate from a single image, or with --dir keeps checking the newest
image in a directory at the configured capture interval until a plate is read.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (scanDir == "") == (len(args) == 0) {
			return errors.New("give either an image path or --dir")
		}
		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		recognizer, err := newRecognizer(a.cfg.Recognition)
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()

		var res capture.Result
		if scanDir != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "watching %s every %s, Ctrl-C to stop\n", scanDir, a.cfg.Capture.Interval)
			session := capture.NewSession(a.log, recognizer, a.cfg.Capture.Interval, a.cfg.Capture.MaxAttempts)
			res, err = session.Run(ctx, capture.NewDirSource(scanDir))
		} else {
			res, err = capture.Once(ctx, a.log, recognizer, capture.FileSource{Path: args[0]})
		}
		switch {
		case errors.Is(err, llm.ErrNoPlate), errors.Is(err, capture.ErrGaveUp):
			return errors.New("no plate recognized, try again or use 'autoscan add <plate>'")
		case err != nil && ctx.Err() != nil:
			fmt.Fprintln(cmd.ErrOrStderr(), faintColor.Sprint("scan abandoned"))
			return nil
		case err != nil:
			return err
		}

		photos := storage.NewPhotos(a.cfg.Server.StorageDir)
		photo, err := photos.SaveBytes(res.Frame.Data, res.Frame.Mime, byteLimit(a.cfg.Server.MaxUploadSize))
		if err != nil {
			a.log.Warn("photo not kept", "err", err)
			photo = storage.Photo{}
		}
		job, err := a.store.Create(res.Plate, "", photo.URL)
		if err != nil {
			_ = photo.Remove()
			return describeCreateError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s started %s (%s)\n", goodColor.Sprint("✔"), job.Plate, shortID(job.ID))
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanDir, "dir", "", "directory to watch for new camera frames")
	rootCmd.AddCommand(scanCmd)
}

func byteLimit(b config.ByteSize) int64 {
	if b > config.ByteSize(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(b) // #nosec G115 - bounded above
}
