package tariff

import "errors"

var (
	// ErrConnection covers unreachable hosts and rejected credentials;
	// retryable at the job level.
	ErrConnection = errors.New("connection failed")

	// ErrProtocol covers malformed or unexpected server responses after the
	// adapter has exhausted its internal fallbacks.
	ErrProtocol = errors.New("protocol error")

	ErrNotFound = errors.New("not found")

	// ErrTransferVerification marks a size mismatch after a copy-based move.
	ErrTransferVerification = errors.New("transfer verification failed")

	// ErrSourceNotRemoved marks a move whose copy succeeded and verified but
	// whose source could not be deleted; the caller decides re-run safety.
	ErrSourceNotRemoved = errors.New("file copied but source could not be removed")

	ErrRetriesExhausted = errors.New("retries exhausted")

	ErrJobStuck = errors.New("job made no progress within the allowed window")

	// ErrProviderBusy is the immediate non-blocking answer when another run
	// holds the provider's advisory lock.
	ErrProviderBusy = errors.New("a run is already active for this provider")

	ErrUnsupportedProtocol = errors.New("unsupported protocol")
)
