// File: client/client.go
// Package client provides a remote api.Circuit over WebSocket.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Calls are synchronous: one request in flight per connection, matched to
// its response by ID. Tag metadata and the sample rate are fetched once at
// dial time; Refresh re-reads them. Transport failures are wrapped with
// xerrors, remote failures come back as *api.Error with the server-side
// code so errors.Is against the api sentinels keeps working.

package client

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/xerrors"
	"periph.io/x/conn/v3/physic"

	"github.com/momentics/hioload-dsp/api"
	"github.com/momentics/hioload-dsp/protocol"
)

// ErrClosed is returned by calls on a closed client.
var ErrClosed = xerrors.New("client closed")

// Config holds all configurable parameters for the remote client.
type Config struct {
	HandshakeTimeout time.Duration // dial + upgrade deadline
	CallTimeout      time.Duration // per-call read/write deadline (0 = none)
	ReconnectMax     int           // extra dial attempts (0 = no retries)
	ReconnectDelay   time.Duration // pause between dial attempts
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout: 5 * time.Second,
		CallTimeout:      10 * time.Second,
		ReconnectMax:     0,
		ReconnectDelay:   500 * time.Millisecond,
	}
}

// Remote is an api.Circuit backed by a tag server.
type Remote struct {
	cfg  *Config
	conn *websocket.Conn

	mu     sync.Mutex
	next   uint64
	tags   []api.TagInfo
	byName map[string]api.TagInfo
	rate   physic.Frequency
	closed atomic.Bool
}

var _ api.Circuit = (*Remote)(nil)

// Dial connects to a tag server at url (ws://host:port/path).
func Dial(ctx context.Context, url string, cfg *Config) (*Remote, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	var (
		conn    *websocket.Conn
		lastErr error
	)
	for attempt := 0; attempt <= cfg.ReconnectMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, xerrors.Errorf("dial %s: %w", url, ctx.Err())
			case <-time.After(cfg.ReconnectDelay):
			}
		}
		c, _, err := dialer.DialContext(ctx, url, nil)
		if err == nil {
			conn = c
			break
		}
		lastErr = err
	}
	if conn == nil {
		return nil, xerrors.Errorf("dial %s: %w", url, lastErr)
	}
	r := &Remote{cfg: cfg, conn: conn}
	if err := r.Refresh(); err != nil {
		conn.Close()
		return nil, err
	}
	return r, nil
}

// Refresh re-reads tag metadata and the sample rate.
func (r *Remote) Refresh() error {
	resp, err := r.call(&protocol.Request{Op: protocol.OpTags})
	if err != nil {
		return err
	}
	tags := resp.Tags
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	byName := make(map[string]api.TagInfo, len(tags))
	for _, t := range tags {
		byName[t.Name] = t
	}
	resp, err = r.call(&protocol.Request{Op: protocol.OpRate})
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.tags, r.byName, r.rate = tags, byName, resp.Rate
	r.mu.Unlock()
	return nil
}

func (r *Remote) call(req *protocol.Request) (*protocol.Response, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	req.ID = r.next
	if d := r.cfg.CallTimeout; d > 0 {
		deadline := time.Now().Add(d)
		r.conn.SetWriteDeadline(deadline)
		r.conn.SetReadDeadline(deadline)
	}
	if err := r.conn.WriteJSON(req); err != nil {
		return nil, xerrors.Errorf("send %s %s: %w", req.Op, req.Tag, err)
	}
	var resp protocol.Response
	if err := r.conn.ReadJSON(&resp); err != nil {
		return nil, xerrors.Errorf("receive %s %s: %w", req.Op, req.Tag, err)
	}
	if resp.ID != req.ID {
		return nil, xerrors.Errorf("response id %d does not match request %d", resp.ID, req.ID)
	}
	if resp.Error != nil {
		return &resp, resp.Error.Err()
	}
	return &resp, nil
}

// Tag looks up cached tag metadata.
func (r *Remote) Tag(name string) (api.TagInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byName[name]
	return t, ok
}

// Tags returns the cached tag list.
func (r *Remote) Tags() []api.TagInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]api.TagInfo, len(r.tags))
	copy(out, r.tags)
	return out
}

// SampleRate returns the cached device rate.
func (r *Remote) SampleRate() physic.Frequency {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rate
}

// GetScalar reads a remote scalar.
func (r *Remote) GetScalar(tag string) (float64, error) {
	resp, err := r.call(&protocol.Request{Op: protocol.OpGet, Tag: tag})
	if err != nil {
		return 0, err
	}
	return resp.Value, nil
}

// SetScalar writes a remote scalar.
func (r *Remote) SetScalar(tag string, value float64) error {
	_, err := r.call(&protocol.Request{Op: protocol.OpSet, Tag: tag, Value: value})
	return err
}

// RawLength returns a remote buffer capacity in slots.
func (r *Remote) RawLength(tag string) (int, error) {
	resp, err := r.call(&protocol.Request{Op: protocol.OpLength, Tag: tag})
	if err != nil {
		return 0, err
	}
	return resp.Length, nil
}

// ReadRaw reads slots from a remote buffer.
func (r *Remote) ReadRaw(tag string, offset, length int, src, dst api.SampleFormat, channels int) (api.Block, error) {
	resp, err := r.call(&protocol.Request{
		Op: protocol.OpRead, Tag: tag, Offset: offset, Length: length,
		Src: src, Dst: dst, Channels: channels,
	})
	if err != nil {
		return nil, err
	}
	if resp.Block == nil {
		// zero-length reads omit the block on the wire
		return api.NewBlock(channels, 0), nil
	}
	return resp.Block, nil
}

// WriteRaw writes interleaved samples to a remote buffer.
func (r *Remote) WriteRaw(tag string, offset int, data []float64) error {
	_, err := r.call(&protocol.Request{Op: protocol.OpWrite, Tag: tag, Offset: offset, Data: data})
	return err
}

// Trigger fires a remote trigger.
func (r *Remote) Trigger(id api.TriggerID) error {
	_, err := r.call(&protocol.Request{Op: protocol.OpTrigger, Trigger: &id})
	return err
}

// Close sends a close frame and releases the connection; idempotent.
func (r *Remote) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return r.conn.Close()
}
