package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/nir0k/SunLapse/internal/logging"
)

// Connector opens a Storage client.
type Connector func(ctx context.Context) (Storage, error)

// DefaultBackOff paces connection attempts: quick at first, never slower than 30s.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	return b
}

// Connect retries connect and account validation until both succeed or ctx
// is done. Each failure is reported as a status line.
func Connect(ctx context.Context, connect Connector, log logging.Logger, b backoff.BackOff) (Storage, error) {
	if b == nil {
		b = DefaultBackOff()
	}
	attempt := 0
	op := func() (Storage, error) {
		attempt++
		storage, err := connect(ctx)
		if err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		account, err := storage.AccountInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("account info: %w", err)
		}
		log.Infof("Connected to remote storage as %s <%s> after %d attempt(s)", account.Name, account.Email, attempt)
		return storage, nil
	}

	storage, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warningf("Remote storage unavailable (%v), retrying in %s", err, next.Round(time.Millisecond))
		}),
	)
	if err != nil {
		return nil, err
	}
	return storage, nil
}
