// Package notify defines the user-facing notification and haptics channels.
// The shell provides the real implementations; business logic only sees these
// interfaces.
package notify

import (
	"time"

	"go.uber.org/zap"

	"github.com/beekyynd/taxi/pkg/logger"
)

// Kind classifies a toast message.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Notifier shows a user-visible toast.
type Notifier interface {
	Notify(title, message string, kind Kind)
}

// Haptics triggers a device vibration.
type Haptics interface {
	Vibrate(duration time.Duration)
}

// LongPulse is the single long vibration used when a new driver bid arrives.
const LongPulse = time.Second

// TapPulse is the short vibration used for fare increment/decrement taps.
const TapPulse = 42 * time.Millisecond

// LogNotifier writes toasts to the structured log, the headless shell default.
type LogNotifier struct{}

// Notify logs the toast.
func (LogNotifier) Notify(title, message string, kind Kind) {
	logger.Info("notification",
		zap.String("title", title),
		zap.String("message", message),
		zap.String("kind", string(kind)),
	)
}

// LogHaptics records vibrations in the log, the headless shell default.
type LogHaptics struct{}

// Vibrate logs the pulse.
func (LogHaptics) Vibrate(duration time.Duration) {
	logger.Debug("haptic pulse", zap.Duration("duration", duration))
}
