package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nir0k/SunLapse/internal/app"
	"github.com/spf13/pflag"
)

func main() {
	var opts app.Options

	pflag.StringVarP(&opts.ConfigPath, "config", "c", "", "Path to a YAML configuration file")
	pflag.StringVarP(&opts.ProjectName, "name", "n", "", "Project name (also the remote folder under /Photos)")
	pflag.StringVarP(&opts.ProjectPath, "path", "p", "", "Directory holding the numbered photos; the driver writes into <path>/raw")
	pflag.IntVar(&opts.StartHint, "start-hint", 0, "Expected next photo index; only checked against the directory scan")
	pflag.DurationVarP(&opts.Interval, "interval", "i", 0, "Capture interval in whole seconds (e.g. 5s, 1m)")
	pflag.BoolVar(&opts.NightMode, "night-mode", false, "Capture around the clock instead of sunrise to sunset")
	pflag.StringVarP(&opts.Upload, "upload", "u", "", "Upload target: none, dropbox, or directory")
	pflag.StringVar(&opts.UploadDir, "upload-dir", "", "Mirror directory for --upload=directory")
	pflag.StringVar(&opts.TokenFile, "token-file", "", "Dropbox access token file (default access_token)")
	pflag.StringVar(&opts.Ledger, "ledger", "", "Optional SQLite file recording upload outcomes")
	pflag.BoolVar(&opts.RetryFailed, "retry-failed", false, "Re-send uploads the ledger marks as failed before capturing")
	pflag.StringVarP(&opts.LogLevel, "log-level", "l", "", "Logging level for both file and console outputs")
	pflag.StringVar(&opts.LogFile, "log-file", "", "Optional log file path (defaults to <path>.sunlapse.log beside the storage directory)")

	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := app.Run(ctx, opts)
	code := app.ExitCode(err)
	if code != 0 {
		fmt.Fprintf(os.Stderr, "sunlapse failed: %v\n", err)
	} else if ctx.Err() != nil {
		fmt.Println("Interrupted, capture stopped.")
	}
	stop()
	os.Exit(code)
}
