// Package effect marks side effects whose failure must not affect the
// operation that triggered them.
package effect

import (
	"fmt"

	"go.uber.org/zap"
)

// BestEffort runs fn, logging and discarding any error or panic.
func BestEffort(log *zap.Logger, name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			if log != nil {
				log.Error("best effort side effect panicked", zap.String("effect", name), zap.String("panic", fmt.Sprint(r)))
			}
		}
	}()

	if err := fn(); err != nil && log != nil {
		log.Warn("best effort side effect failed", zap.String("effect", name), zap.Error(err))
	}
}
