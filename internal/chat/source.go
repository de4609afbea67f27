package chat

import (
	"context"
	"errors"
)

// ErrStreamEnded is returned by Source.Next when the broadcast chat is over.
var ErrStreamEnded = errors.New("chat: stream ended")

// Source is a lazy sequence of chat messages for one broadcast. Next blocks
// until a message is available, the stream ends (ErrStreamEnded), or an I/O
// error occurs. Implementations must honor ctx cancellation in Next: the
// collector cancels its context on stop, and that cancel is what frees a
// Next waiting on a stream that has gone quiet or silently hung.
type Source interface {
	Next(ctx context.Context) (*Message, error)
	Close() error
}

// SourceFactory opens a Source for a watch URL. The collector calls it once
// per (re)start so a fresh connection is made after every restart.
type SourceFactory func(ctx context.Context, url string) (Source, error)
