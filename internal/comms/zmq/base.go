// Package zmq implements the four client roles (publisher, subscriber,
// pull worker, dealer requester) and their router-side counterpart, over
// github.com/go-zeromq/zmq4.
package zmq

import (
	"context"
	"math/rand"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/aierrors"
)

// SocketOptions is the socket option block a client is built with:
// 5-minute RCV/SND timeouts, TCP keepalive, LINGER=0, IMMEDIATE=1. Only the
// timeout reaches the socket; see buildOptions.
type SocketOptions struct {
	Timeout      time.Duration
	KeepAlive    bool
	Linger       time.Duration
	Immediate    bool
}

// Retry backoff bounds shared by every client role that retries sends
const (
	baseRetryDelay = 50 * time.Millisecond
	maxRetryDelay  = 2 * time.Second
)

// DefaultSocketOptions is the standard option set applied at initialize.
func DefaultSocketOptions() SocketOptions {
	return SocketOptions{
		Timeout:   5 * time.Minute,
		KeepAlive: true,
		Linger:    0,
		Immediate: true,
	}
}

// buildOptions translates SocketOptions into zmq4 dial/listen options: the
// timeout, plus automatic reconnect. KeepAlive, Linger and Immediate are not
// passed to the socket here, and no client role sets them either.
func buildOptions(so SocketOptions) []zmq4.Option {
	return []zmq4.Option{
		zmq4.WithTimeout(so.Timeout),
		zmq4.WithAutomaticReconnect(true),
	}
}

// baseClient holds the fields every client role shares: its socket, a
// logger, and the options it was built with. Concrete roles embed it.
type baseClient struct {
	logger  zerolog.Logger
	opts    SocketOptions
	closed  bool
}

func newBaseClient(logger zerolog.Logger, opts SocketOptions) baseClient {
	return baseClient{logger: logger, opts: opts}
}

// retryWithBackoff retries fn up to maxAttempts times with a capped,
// jittered doubling backoff. It returns the last error if every attempt
// fails, wrapped as a Communication-kind error.
func retryWithBackoff(ctx context.Context, op string, maxAttempts int, base, cap time.Duration, fn func() error) error {
	var lastErr error
	delay := base
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return aierrors.Wrap(aierrors.KindCommunication, op, ctx.Err())
		case <-time.After(jitter(delay)):
		}

		delay *= 2
		if delay > cap {
			delay = cap
		}
	}
	return aierrors.Wrap(aierrors.KindCommunication, op, lastErr)
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	// +/- 20% jitter, same shape as a token-bucket refill smoothing burst.
	delta := time.Duration(rand.Int63n(int64(d) / 5))
	if rand.Intn(2) == 0 {
		return d - delta
	}
	return d + delta
}
