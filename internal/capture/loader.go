package capture

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is returned by a load that finished after a newer one was started
var ErrSuperseded = errors.New("image load superseded by a newer selection")

// Loader converts selected files into meter images, accepting only the latest request.
// Starting a new load cancels the one still in flight.
type Loader struct {
	maxBytes int64
	convert  func(context.Context, Source, int64) (MeterImage, error)

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// NewLoader creates a Loader that rejects files larger than maxBytes
func NewLoader(maxBytes int64) *Loader {
	return &Loader{
		maxBytes: maxBytes,
		convert:  ToDataURI,
	}
}

// Load reads src and hands the converted image to apply. apply runs under the
// loader lock and only for the latest request: if another Load started before
// this one completed, the result is discarded and ErrSuperseded is returned.
func (l *Loader) Load(ctx context.Context, src Source, apply func(MeterImage)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.seq++
	ticket := l.seq
	l.cancel = cancel
	l.mu.Unlock()

	img, err := l.convert(ctx, src, l.maxBytes)

	l.mu.Lock()
	defer l.mu.Unlock()
	if ticket != l.seq {
		return ErrSuperseded
	}
	l.cancel = nil
	if err != nil {
		return err
	}
	apply(img)
	return nil
}
