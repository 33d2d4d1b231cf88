package smartcmd

import (
	"errors"

	"github.com/fentz26/smartterm/internal/scheduler"
)

var (
	// ErrHostServiceUnavailable is reported when a collaborator fails or is
	// shutting down. The pipeline treats it as "feature disabled".
	ErrHostServiceUnavailable = errors.New("host service unavailable")
	// ErrTransport is reported when control bytes cannot be written to the
	// session input.
	ErrTransport = errors.New("transport failure")
	// ErrScheduledWork is reported when a deferred preview lookup fails.
	ErrScheduledWork = scheduler.ErrScheduledWork
)
