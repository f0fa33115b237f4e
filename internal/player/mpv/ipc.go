// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

var (
	// ErrClosed is returned by commands issued after the IPC connection closed.
	ErrClosed = errors.New("mpv: ipc closed")
	// ErrCommand wraps an mpv-side command failure.
	ErrCommand = errors.New("mpv: command failed")
)

const maxMessageSize = 4 << 20

// message is any line mpv writes: a command reply or an event.
type message struct {
	RequestID *int64          `json:"request_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`

	Event     string `json:"event,omitempty"`
	ID        int    `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Reason    string `json:"reason,omitempty"`
	FileError string `json:"file_error,omitempty"`
}

type request struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

// ipc speaks mpv's line-delimited JSON protocol. Events are queued without
// bound so a slow consumer never stalls command replies.
type ipc struct {
	conn    io.ReadWriteCloser
	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan message
	queue   []message
	closed  bool

	wake chan struct{}
	done chan struct{}
}

func newIPC(conn io.ReadWriteCloser) *ipc {
	c := &ipc{
		conn:    conn,
		pending: make(map[int64]chan message),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *ipc) command(ctx context.Context, args ...any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	reply := make(chan message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[id] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	line, err := json.Marshal(request{Command: args, RequestID: id})
	if err != nil {
		return nil, fmt.Errorf("mpv: encode command: %w", err)
	}
	line = append(line, '\n')

	c.writeMu.Lock()
	_, err = c.conn.Write(line)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClosed, err)
	}

	select {
	case msg := <-reply:
		if msg.Error != "" && msg.Error != "success" {
			return nil, fmt.Errorf("%w: %v: %s", ErrCommand, args[0], msg.Error)
		}
		return msg.Data, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *ipc) readLoop() {
	sc := bufio.NewScanner(c.conn)
	sc.Buffer(make([]byte, 64<<10), maxMessageSize)
	for sc.Scan() {
		var msg message
		if err := json.Unmarshal(sc.Bytes(), &msg); err != nil {
			continue
		}
		c.mu.Lock()
		if msg.RequestID != nil && msg.Event == "" {
			if ch, ok := c.pending[*msg.RequestID]; ok {
				ch <- msg
			}
			c.mu.Unlock()
			continue
		}
		if msg.Event != "" {
			c.queue = append(c.queue, msg)
		}
		c.mu.Unlock()
		c.signal()
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	close(c.done)
}

func (c *ipc) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// events drains queued events; ok is false once the connection has closed
// and the queue is empty.
func (c *ipc) events() ([]message, bool) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			batch := c.queue
			c.queue = nil
			c.mu.Unlock()
			return batch, true
		}
		c.mu.Unlock()

		select {
		case <-c.wake:
		case <-c.done:
			c.mu.Lock()
			batch := c.queue
			c.queue = nil
			c.mu.Unlock()
			return batch, len(batch) > 0
		}
	}
}

func (c *ipc) close() error {
	err := c.conn.Close()
	<-c.done
	return err
}
