package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout is returned when no response arrives in time.
var ErrTimeout = errors.New("ipc: timed out waiting for response")

// Client submits requests and waits for their responses.
type Client struct {
	queue   *Queue
	poll    time.Duration
	maxWait time.Duration
	newID   func() string
	timeNow func() time.Time
}

// NewClient returns a client polling every poll for up to maxWait.
func NewClient(q *Queue, poll, maxWait time.Duration) *Client {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	if maxWait <= 0 {
		maxWait = 60 * time.Second
	}
	return &Client{
		queue:   q,
		poll:    poll,
		maxWait: maxWait,
		newID:   func() string { return uuid.NewString() },
		timeNow: time.Now,
	}
}

// Ping asks the daemon for a liveness reply.
func (c *Client) Ping(ctx context.Context) (Pong, error) {
	req := Request{ID: c.newID(), Type: KindPing, Timestamp: unix(c.timeNow())}
	if err := c.queue.Submit(req); err != nil {
		return Pong{}, err
	}
	var p Pong
	if err := c.await(ctx, req.ID, &p); err != nil {
		return Pong{}, err
	}
	if p.Type != PongType {
		if p.Error != "" {
			return p, fmt.Errorf("ipc: ping failed: %s", p.Error)
		}
		return p, fmt.Errorf("ipc: unexpected reply type %q", p.Type)
	}
	return p, nil
}

// Transcribe asks the daemon to transcribe audioFile.
func (c *Client) Transcribe(ctx context.Context, audioFile string) (Response, error) {
	req := Request{ID: c.newID(), Type: KindTranscribe, AudioFile: audioFile, Timestamp: unix(c.timeNow())}
	if err := c.queue.Submit(req); err != nil {
		return Response{}, err
	}
	var r Response
	if err := c.await(ctx, req.ID, &r); err != nil {
		return Response{}, err
	}
	if !r.Success {
		return r, fmt.Errorf("ipc: transcription failed: %s", r.Error)
	}
	return r, nil
}

func (c *Client) await(ctx context.Context, id string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.maxWait)
	defer cancel()

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		ok, err := c.queue.Take(id, v)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			if err := c.queue.Withdraw(id); err != nil {
				slog.Warn("[ipc] cannot withdraw abandoned request", "id", id, "error", err)
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: request %s after %s", ErrTimeout, id, c.maxWait)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func unix(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
