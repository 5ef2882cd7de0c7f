//go:build !linux || !cgo

package media

import (
	"context"
	"time"
)

func openMicrophone(context.Context, time.Duration) (SampleReader, error) {
	return nil, ErrCaptureUnsupported
}
