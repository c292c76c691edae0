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

	"github.com/ZaparooProject/go-flowbird"
	"github.com/ZaparooProject/go-flowbird/internal/syncutil"
)

// Server exposes a local flowbird.Binder to a remote Client. It is the
// daemon half of the protocol and is used to run the reader against a
// simulated driver.
type Server struct {
	binder    flowbird.Binder
	conn      Conn
	listeners map[string]*remoteListener
	writeMu   syncutil.Mutex
	mu        syncutil.Mutex
}

// NewServer returns a server answering frames from conn with binder
func NewServer(conn Conn, binder flowbird.Binder) *Server {
	return &Server{
		binder:    binder,
		conn:      conn,
		listeners: make(map[string]*remoteListener),
	}
}

// Serve handles frames until the connection fails or ctx is cancelled
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	for {
		frame, err := s.conn.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if frame.Type != FrameRequest {
			flowbird.Debugf("bridge server: ignoring %q frame", frame.Type)
			continue
		}
		resp := s.handle(frame)
		resp.ID = frame.ID
		resp.Type = FrameResponse
		if frame.Method == MethodBind && resp.Error == "" {
			// answered by OnJoined
			continue
		}
		if err := s.write(resp); err != nil {
			return err
		}
	}
}

func (s *Server) write(frame Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteFrame(frame)
}

func (s *Server) handle(frame Frame) Frame {
	var err error
	switch frame.Method {
	case MethodBind:
		err = s.bind(frame)
	case MethodUnbind:
		err = s.binder.Unbind()
	case MethodExchangeWithCard, MethodExchangeWithSAM:
		err = s.exchange(frame)
	case MethodStartDetection, MethodStopDetection, MethodAddEventListener, MethodRemoveEventListener:
		err = s.hunt(frame)
	case MethodSetPattern:
		var svc flowbird.LEDService
		if svc, err = lookup[flowbird.LEDService](s.binder, frame.Service); err == nil {
			err = svc.SetPattern(frame.Value)
		}
	case MethodPlay:
		var svc flowbird.SoundService
		if svc, err = lookup[flowbird.SoundService](s.binder, frame.Service); err == nil {
			err = svc.Play(frame.Value)
		}
	case MethodShow:
		var svc flowbird.TextDisplay
		if svc, err = lookup[flowbird.TextDisplay](s.binder, frame.Service); err == nil {
			err = svc.Show(frame.Value)
		}
	default:
		err = fmt.Errorf("unknown method %q", frame.Method)
	}
	if err != nil {
		return Frame{Error: err.Error()}
	}
	return Frame{}
}

func (s *Server) bind(frame Frame) error {
	id := frame.ID
	names := make([]string, 0, len(frame.Services))
	for name := range frame.Services {
		names = append(names, name)
	}
	return s.binder.Bind(frame.Services, flowbird.BindCallbacks{
		OnJoined: func(initDone bool) {
			joined := make([]string, 0, len(names))
			for _, name := range names {
				if s.binder.Service(name) != nil {
					joined = append(joined, name)
				}
			}
			if err := s.write(Frame{ID: id, Type: FrameResponse, Joined: joined, InitDone: initDone}); err != nil {
				flowbird.Debugf("bridge server: send joined: %v", err)
			}
		},
		OnBindLost: func(service string) {
			if err := s.write(Frame{Type: FrameEvent, Method: EventBindLost, Service: service}); err != nil {
				flowbird.Debugf("bridge server: send bind lost: %v", err)
			}
		},
	})
}

func (s *Server) exchange(frame Frame) error {
	reader, err := lookup[flowbird.APDUReader](s.binder, flowbird.ServiceAPDUReader)
	if err != nil {
		return err
	}
	id := frame.ID
	callback := func(target int64, ok bool, responses [][]byte) {
		err := s.write(Frame{ID: id, Type: FrameCallback, Target: target, OK: ok, Responses: responses})
		if err != nil {
			flowbird.Debugf("bridge server: send exchange result: %v", err)
		}
	}
	if frame.Method == MethodExchangeWithSAM {
		return reader.ExchangeWithSAM(frame.Target, frame.Commands, callback)
	}
	return reader.ExchangeWithCard(frame.Target, frame.Commands, callback)
}

func (s *Server) hunt(frame Frame) error {
	hunter, err := lookup[flowbird.HuntService](s.binder, frame.Service)
	if err != nil {
		return err
	}
	switch frame.Method {
	case MethodStartDetection:
		return hunter.StartDetection(flowbird.Payload(frame.Payload))
	case MethodStopDetection:
		return hunter.StopDetection()
	case MethodAddEventListener:
		if frame.Listener == "" {
			return errors.New("listener id required")
		}
		listener := &remoteListener{id: frame.Listener, server: s}
		if err := hunter.AddEventListener(listener); err != nil {
			return err
		}
		s.mu.Lock()
		s.listeners[frame.Listener] = listener
		s.mu.Unlock()
		return nil
	default:
		s.mu.Lock()
		listener, ok := s.listeners[frame.Listener]
		delete(s.listeners, frame.Listener)
		s.mu.Unlock()
		if !ok {
			return nil
		}
		return hunter.RemoveEventListener(listener)
	}
}

func lookup[T any](binder flowbird.Binder, name string) (T, error) {
	svc, ok := binder.Service(name).(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %q", flowbird.ErrServiceUnavailable, name)
	}
	return svc, nil
}

// remoteListener forwards hunt events to the client
type remoteListener struct {
	server *Server
	id     string
}

func (l *remoteListener) ListenerID() string { return l.id }

func (l *remoteListener) OnDetected(data flowbird.Payload) { l.send(EventDetected, data) }

func (l *remoteListener) OnRemoved(data flowbird.Payload) { l.send(EventRemoved, data) }

func (l *remoteListener) OnError(data flowbird.Payload) { l.send(EventError, data) }

func (l *remoteListener) send(event string, data flowbird.Payload) {
	err := l.server.write(Frame{
		Type:     FrameEvent,
		Service:  flowbird.ServiceHunter,
		Method:   event,
		Listener: l.id,
		Payload:  data,
	})
	if err != nil {
		flowbird.Debugf("bridge server: send %s event: %v", event, err)
	}
}
