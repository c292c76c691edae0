// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ZaparooProject/go-flowbird"
	"github.com/ZaparooProject/go-flowbird/internal/syncutil"
)

// DefaultCallTimeout bounds synchronous daemon calls
const DefaultCallTimeout = 2 * time.Second

// eventConnectionLost is queued locally when the read loop stops
const eventConnectionLost = "connectionLost"

// Client is a flowbird.Binder backed by a remote driver daemon. It owns the
// connection and runs a read loop until Close or a connection error.
type Client struct {
	conn        Conn
	pending     map[string]chan Frame
	exchanges   map[string]flowbird.ExchangeCallback
	listeners   map[string]flowbird.HuntListener
	services    map[string]any
	callbacks   *flowbird.BindCallbacks
	events      *frameQueue
	results     *frameQueue
	done        chan struct{}
	readErr     error
	callTimeout time.Duration
	writeMu     syncutil.Mutex
	mu          syncutil.Mutex
	wg          sync.WaitGroup
	closeOnce   sync.Once
	bindID      string
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithCallTimeout overrides DefaultCallTimeout
func WithCallTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// NewClient starts serving conn
func NewClient(conn Conn, opts ...ClientOption) *Client {
	c := &Client{
		conn:        conn,
		pending:     make(map[string]chan Frame),
		exchanges:   make(map[string]flowbird.ExchangeCallback),
		listeners:   make(map[string]flowbird.HuntListener),
		services:    make(map[string]any),
		events:      newFrameQueue(),
		results:     newFrameQueue(),
		done:        make(chan struct{}),
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.wg.Add(3)
	go c.readLoop()
	go c.dispatchLoop(c.events)
	go c.dispatchLoop(c.results)
	return c
}

// Done is closed when the read loop stops
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that stopped the read loop
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// Close closes the connection and waits for the client goroutines. It must
// not be called from a bind callback or hunt listener.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	c.wg.Wait()
	return err
}

// Bind sends the bind request. The daemon answers asynchronously with the
// joined services; OnJoined fires from the client goroutine.
func (c *Client) Bind(services map[string]flowbird.ServiceRequest, callbacks flowbird.BindCallbacks) error {
	id := uuid.NewString()
	c.mu.Lock()
	if c.callbacks != nil {
		c.mu.Unlock()
		return errors.New("bridge already bound")
	}
	c.callbacks = &callbacks
	c.bindID = id
	c.mu.Unlock()

	frame := Frame{ID: id, Type: FrameRequest, Method: MethodBind, Services: services}
	if err := c.write(frame); err != nil {
		c.mu.Lock()
		c.callbacks = nil
		c.bindID = ""
		c.mu.Unlock()
		return err
	}
	return nil
}

// Unbind releases the remote services
func (c *Client) Unbind() error {
	c.mu.Lock()
	bound := c.callbacks != nil
	c.callbacks = nil
	c.bindID = ""
	c.services = make(map[string]any)
	c.listeners = make(map[string]flowbird.HuntListener)
	c.mu.Unlock()
	if !bound {
		return nil
	}
	_, err := c.call(context.Background(), Frame{Method: MethodUnbind})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// Service returns the joined facade for name, nil if the daemon did not join it
func (c *Client) Service(name string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.services[name]
}

func (c *Client) write(frame Frame) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteFrame(frame); err != nil {
		return fmt.Errorf("send %s: %w", frame.Method, err)
	}
	return nil
}

// call sends a request and waits for the matching response
func (c *Client) call(ctx context.Context, frame Frame) (Frame, error) {
	if frame.ID == "" {
		frame.ID = uuid.NewString()
	}
	frame.Type = FrameRequest
	reply := make(chan Frame, 1)

	c.mu.Lock()
	c.pending[frame.ID] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, frame.ID)
		c.mu.Unlock()
	}()

	if err := c.write(frame); err != nil {
		return Frame{}, err
	}

	timer := time.NewTimer(c.callTimeout)
	defer timer.Stop()

	select {
	case resp := <-reply:
		if resp.Error != "" {
			return resp, &RemoteError{Method: frame.Method, Message: resp.Error}
		}
		return resp, nil
	case <-timer.C:
		return Frame{}, fmt.Errorf("%s: no response after %v", frame.Method, c.callTimeout)
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-c.done:
		return Frame{}, ErrClosed
	}
}

// exchange submits an exchange. The daemon acknowledges the submission with
// a response and reports the outcome later with a callback frame carrying
// the same id, possibly before the acknowledgement.
func (c *Client) exchange(method string, target int64, commands [][]byte, callback flowbird.ExchangeCallback) error {
	id := uuid.NewString()
	c.mu.Lock()
	c.exchanges[id] = callback
	c.mu.Unlock()

	_, err := c.call(context.Background(), Frame{
		ID:       id,
		Service:  flowbird.ServiceAPDUReader,
		Method:   method,
		Target:   target,
		Commands: commands,
	})
	if err != nil {
		c.mu.Lock()
		delete(c.exchanges, id)
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer c.results.close()
	defer c.events.close()
	for {
		frame, err := c.conn.ReadFrame()
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			close(c.done)
			c.events.push(Frame{Type: FrameEvent, Method: eventConnectionLost, Error: err.Error()})
			return
		}
		c.route(frame)
	}
}

func (c *Client) route(frame Frame) {
	switch frame.Type {
	case FrameResponse:
		c.mu.Lock()
		if frame.ID == c.bindID && c.bindID != "" {
			c.mu.Unlock()
			c.events.push(frame)
			return
		}
		reply, ok := c.pending[frame.ID]
		c.mu.Unlock()
		if ok {
			reply <- frame
			return
		}
		flowbird.Debugf("bridge: response %s without pending request", frame.ID)

	case FrameCallback:
		c.results.push(frame)

	case FrameEvent:
		c.events.push(frame)

	default:
		flowbird.Debugf("bridge: ignoring frame type %q", frame.Type)
	}
}

// dispatchLoop drains one lane. Exchange results and hunt events use
// separate lanes so a listener that blocks, such as the error backoff or a
// synchronous rearm, never delays an exchange callback. Neither runs on the
// read loop because listeners call back into the client.
func (c *Client) dispatchLoop(lane *frameQueue) {
	defer c.wg.Done()
	lane.run(c.dispatch)
}

func (c *Client) dispatch(frame Frame) {
	switch frame.Type {
	case FrameResponse:
		c.joined(frame)
	case FrameCallback:
		c.mu.Lock()
		callback, ok := c.exchanges[frame.ID]
		delete(c.exchanges, frame.ID)
		c.mu.Unlock()
		if !ok {
			flowbird.Debugf("bridge: callback %s without pending exchange", frame.ID)
			return
		}
		callback(frame.Target, frame.OK, frame.Responses)
	case FrameEvent:
		c.event(frame)
	}
}

func (c *Client) joined(frame Frame) {
	c.mu.Lock()
	callbacks := c.callbacks
	c.bindID = ""
	if callbacks == nil {
		c.mu.Unlock()
		return
	}
	if frame.Error != "" {
		c.callbacks = nil
		c.mu.Unlock()
		flowbird.Debugf("bridge: bind rejected: %s", frame.Error)
		if callbacks.OnBindLost != nil {
			callbacks.OnBindLost("")
		}
		return
	}
	for _, name := range frame.Joined {
		c.services[name] = c.facade(name)
	}
	c.mu.Unlock()

	flowbird.Debugf("bridge: joined %v (initDone=%t)", frame.Joined, frame.InitDone)
	if callbacks.OnJoined != nil {
		callbacks.OnJoined(frame.InitDone)
	}
}

func (c *Client) event(frame Frame) {
	if frame.Method == eventConnectionLost {
		c.connectionLost(frame.Error)
		return
	}
	if frame.Method == EventBindLost {
		c.mu.Lock()
		callbacks := c.callbacks
		c.callbacks = nil
		c.mu.Unlock()
		if callbacks != nil && callbacks.OnBindLost != nil {
			callbacks.OnBindLost(frame.Service)
		}
		return
	}

	c.mu.Lock()
	listener, ok := c.listeners[frame.Listener]
	c.mu.Unlock()
	if !ok {
		flowbird.Debugf("bridge: %s event for unknown listener %q", frame.Method, frame.Listener)
		return
	}

	payload := decodeEventPayload(frame.Payload)
	switch frame.Method {
	case EventDetected:
		listener.OnDetected(payload)
	case EventRemoved:
		listener.OnRemoved(payload)
	case EventError:
		listener.OnError(payload)
	default:
		flowbird.Debugf("bridge: unknown hunt event %q", frame.Method)
	}
}

func (c *Client) connectionLost(reason string) {
	c.mu.Lock()
	callbacks := c.callbacks
	c.callbacks = nil
	exchanges := c.exchanges
	c.exchanges = make(map[string]flowbird.ExchangeCallback)
	c.mu.Unlock()

	flowbird.Debugf("bridge: connection lost: %s (%d exchanges abandoned)", reason, len(exchanges))
	if callbacks != nil && callbacks.OnBindLost != nil {
		callbacks.OnBindLost("")
	}
}

func (c *Client) facade(name string) any {
	switch name {
	case flowbird.ServiceAPDUReader:
		return &apduReader{client: c}
	case flowbird.ServiceHunter:
		return &hunter{client: c, service: name}
	case flowbird.ServiceLEDs, flowbird.ServiceLEDPatterns:
		return &led{client: c, service: name}
	case flowbird.ServiceSound:
		return &sound{client: c}
	case flowbird.ServiceTextDisplay:
		return &text{client: c}
	default:
		return &Remote{client: c, name: name}
	}
}
