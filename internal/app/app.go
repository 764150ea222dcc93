package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/nir0k/SunLapse/internal/capture"
	"github.com/nir0k/SunLapse/internal/config"
	"github.com/nir0k/SunLapse/internal/dropbox"
	"github.com/nir0k/SunLapse/internal/harvest"
	"github.com/nir0k/SunLapse/internal/ledger"
	"github.com/nir0k/SunLapse/internal/logging"
	"github.com/nir0k/SunLapse/internal/project"
	"github.com/nir0k/SunLapse/internal/scheduler"
	"github.com/nir0k/SunLapse/internal/sun"
	"github.com/nir0k/SunLapse/internal/upload"
)

// Run is the main entry point for the CLI workflow. It returns nil after a
// requested shutdown.
func Run(ctx context.Context, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	opts.apply(&cfg)

	if cfg.Log.File == "" {
		cfg.Log.File = defaultLogPath(cfg.Project.Path)
	}
	logInstance, err := logging.New(logging.Options{
		File:    cfg.Log.File,
		Level:   cfg.Log.Level,
		Console: true,
	})
	if err != nil {
		return err
	}
	return run(ctx, cfg, logInstance)
}

// ExitCode maps a Run error to the process exit status: 0 for a requested
// shutdown, 1 for configuration mistakes, 2 for other startup failures.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	case errors.Is(err, config.ErrInvalid),
		errors.Is(err, sun.ErrInvalidTable),
		errors.Is(err, harvest.ErrNonCanonical):
		return 1
	default:
		return 2
	}
}

func run(ctx context.Context, cfg config.Config, log logging.Logger) error {
	infof := log.Infof
	warnf := log.Warningf
	errorf := log.Errorf

	if err := cfg.Validate(); err != nil {
		errorf("%v", err)
		return err
	}
	table, err := sun.ParseTable(cfg.Sun)
	if err != nil {
		errorf("%v", err)
		return err
	}

	proj, err := project.Open(cfg.Project.Name, cfg.Project.Path)
	if err != nil {
		errorf("Project setup failed: %v", err)
		return err
	}
	lock, err := project.Acquire(proj)
	if err != nil {
		errorf("%v", err)
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			warnf("Failed to release project lock: %v", err)
		}
	}()

	infof("Starting SunLapse project=%s path=%s interval=%s nightMode=%t driver=%s order=%s upload=%s",
		proj.Name, proj.StoragePath, cfg.Capture.Interval, cfg.Capture.NightMode, cfg.Capture.Driver, cfg.Capture.Order, cfg.Upload.Target)

	counter, err := harvest.Recover(proj.StoragePath, project.RawDirName)
	if err != nil {
		errorf("Refusing to use %s: %v", proj.StoragePath, err)
		return err
	}
	if hint := harvest.Counter(cfg.Project.StartHint); hint > 0 && hint != counter {
		warnf("Start hint %d disagrees with directory contents; continuing from %d", hint, counter)
	}

	sink, closeSink, err := buildSink(ctx, cfg, proj, log)
	if err != nil {
		errorf("Upload setup failed: %v", err)
		return err
	}
	defer closeSink()

	order, err := harvest.ParseOrder(cfg.Capture.Order)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	harvester := harvest.New(harvest.Config{
		Project:  proj.Name,
		PhotoDir: proj.StoragePath,
		RawDir:   proj.RawPath,
		Order:    order,
	}, sink, log)

	// Anything the driver wrote before a crash is numbered before capture resumes.
	recovered, err := harvester.Harvest(ctx, counter)
	if err != nil {
		errorf("Startup harvest failed: %v", err)
		return err
	}
	if recovered > counter {
		infof("Recovered %d leftover photo(s) from %s", int(recovered-counter), proj.RawPath)
	}
	counter = recovered
	infof("Next photo will be %s", harvest.CanonicalName(counter))

	interval := cfg.Capture.Interval
	supervisor := capture.NewSupervisor(capture.Command{
		Path:        cfg.Capture.Driver,
		Args:        capture.ExpandArgs(cfg.Capture.Args, interval),
		Dir:         proj.RawPath,
		Interval:    interval,
		GracePeriod: cfg.Capture.GracePeriod,
	}, log)

	var restart backoff.BackOff
	if cfg.Capture.RestartBackoff {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = interval
		eb.MaxInterval = cfg.Capture.MaxBackoff
		restart = eb
	}

	sched, err := scheduler.New(scheduler.Config{
		Interval:       interval,
		RestartBackoff: restart,
		FailureAlert:   cfg.Capture.FailureAlert,
	}, sun.Window{Table: table, NightMode: cfg.Capture.NightMode}, supervisor, harvester, nil, log)
	if err != nil {
		return err
	}

	counter, err = sched.Run(ctx, counter)
	if err != nil {
		errorf("Scheduler stopped: %v", err)
		return err
	}
	infof("Shutdown complete. Next photo will be %s", harvest.CanonicalName(counter))
	return nil
}

func buildSink(ctx context.Context, cfg config.Config, proj project.Project, log logging.Logger) (upload.Sink, func(), error) {
	noop := func() {}

	var sink upload.Sink
	switch cfg.Upload.Target {
	case config.UploadDirectory:
		sink = upload.NewDirectory(cfg.Upload.Directory)
	case config.UploadDropbox:
		token, err := dropbox.LoadToken(cfg.Upload.TokenFile)
		if err != nil {
			return nil, noop, err
		}
		log.Infof("Connecting to Dropbox")
		storage, err := upload.Connect(ctx, func(ctx context.Context) (upload.Storage, error) {
			return dropbox.New(ctx, token), nil
		}, log, nil)
		if err != nil {
			return nil, noop, err
		}
		sink = upload.NewRemote(storage)
	default:
		return nil, noop, nil
	}

	if cfg.Upload.Ledger == "" {
		return sink, noop, nil
	}
	store, err := ledger.Open(cfg.Upload.Ledger)
	if err != nil {
		return nil, noop, err
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			log.Warningf("Failed to close upload ledger: %v", err)
		}
	}
	sink = ledger.Tracked(sink, store, log)

	if cfg.Upload.RetryFailed {
		if _, err := ledger.RetryFailed(ctx, store, sink, proj.Name, proj.StoragePath, log); err != nil {
			closeStore()
			return nil, noop, err
		}
	}
	return sink, closeStore, nil
}
