package ledger

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/nir0k/SunLapse/internal/logging"
	"github.com/nir0k/SunLapse/internal/upload"
)

// Tracked wraps sink so every attempt is written to the ledger. The upload
// error is returned unchanged; ledger write failures are only logged. The
// outcome is recorded even when ctx was cancelled during the upload.
func Tracked(sink upload.Sink, store *Store, log logging.Logger) upload.Sink {
	return upload.SinkFunc(func(ctx context.Context, localPath, project string) error {
		uploadErr := sink.Upload(ctx, localPath, project)
		if err := store.Record(context.WithoutCancel(ctx), project, filepath.Base(localPath), uploadErr); err != nil {
			log.Warningf("Upload ledger: %v", err)
		}
		return uploadErr
	})
}

// RetryFailed re-submits every ledger failure for project once, in canonical
// order, and returns how many now succeeded. sink should be the Tracked sink
// so outcomes are recorded.
func RetryFailed(ctx context.Context, store *Store, sink upload.Sink, project, photoDir string, log logging.Logger) (int, error) {
	failed, err := store.Failed(ctx, project)
	if err != nil {
		return 0, err
	}
	if len(failed) == 0 {
		return 0, nil
	}

	log.Infof("Retrying %d failed upload(s)", len(failed))
	recovered := 0
	for _, e := range failed {
		if err := ctx.Err(); err != nil {
			return recovered, err
		}
		if err := sink.Upload(ctx, filepath.Join(photoDir, e.File), project); err != nil {
			if errors.Is(err, context.Canceled) {
				return recovered, err
			}
			log.Warningf("Retry of %s failed (attempt %d): %v", e.File, e.Attempts+1, err)
			continue
		}
		recovered++
		log.Infof("Uploaded %s on retry", e.File)
	}
	return recovered, nil
}
