package websocket

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	riot "github.com/bjoelf/riot-adapter/adapter"
)

// ErrCredentialsUnavailable is the retry signal while the supplier has nothing yet
var ErrCredentialsUnavailable = errors.New("credentials not available yet")

// acquireCredentials polls supplier on a fixed interval until it yields credentials.
// It never gives up on its own; only ctx ends it.
func acquireCredentials(ctx context.Context, supplier riot.CredentialSupplier, interval time.Duration,
	timer retry.Timer, metrics *clientMetrics, logger *slog.Logger) (riot.Credentials, error) {

	opts := []retry.Option{
		retry.Attempts(0),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			metrics.credentialRetries.Inc()
			logger.Debug("Credentials not available, retrying",
				"function", "acquireCredentials",
				"attempt", n,
				"interval", interval)
		}),
	}
	if timer != nil {
		opts = append(opts, retry.WithTimer(timer))
	}

	creds, err := retry.DoWithData(func() (riot.Credentials, error) {
		creds, ok := supplier()
		if !ok || creds == nil {
			return riot.Credentials{}, ErrCredentialsUnavailable
		}
		return *creds, nil
	}, opts...)
	if err != nil {
		return riot.Credentials{}, err
	}
	return creds, nil
}
