package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// SlowOperation is the duration above which OperationTimer warns.
const SlowOperation = 10 * time.Second

// OperationTimer logs how long an operation took when the returned func is called.
//
//	defer utils.OperationTimer("reconcile", log)()
func OperationTimer(operation string, log zerolog.Logger) func() time.Duration {
	start := time.Now()

	return func() time.Duration {
		duration := time.Since(start)

		log.Debug().
			Str("operation", operation).
			Dur("duration_ms", duration).
			Msg("Operation completed")

		if duration > SlowOperation {
			log.Warn().
				Str("operation", operation).
				Dur("duration", duration).
				Msg("Slow operation detected")
		}
		return duration
	}
}
