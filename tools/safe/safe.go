package safe

import (
	"PPRealtime/logger"
	"PPRealtime/tools/errs"

	"go.uber.org/zap"
)

// Go starts f in a goroutine that recovers and logs panics.
func Go(name string, f func()) {
	go func() {
		if err := Call(f); err != nil {
			logger.Error("[safe.Go] panic recovered", zap.String("task", name), zap.Error(err))
		}
	}()
}

// Call runs f and converts a panic into an error.
func Call(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.ErrPanic(r)
		}
	}()
	f()
	return nil
}
