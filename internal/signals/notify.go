package signals

import (
	"context"
	"os/signal"
)

// notifyContext is signal.NotifyContext; tests replace it.
var notifyContext = signal.NotifyContext

// Context returns a context cancelled on the first shutdown signal.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	return notifyContext(parent, ShutdownSignals()...)
}
