package otpflow

import "errors"

var (
	// ErrTelemetrySinkRequired is returned by Build when no telemetry sink was configured.
	ErrTelemetrySinkRequired = errors.New("telemetry sink required")
	// ErrControllerClosed is returned by HandleIntent after Close.
	ErrControllerClosed = errors.New("controller closed")
	// ErrCodeStoreUnavailable wraps infrastructure failures of the code store.
	ErrCodeStoreUnavailable = errors.New("code store unavailable")
	// ErrBuilderUsed is returned when Build is called twice on one Builder.
	ErrBuilderUsed = errors.New("builder already used")
)
