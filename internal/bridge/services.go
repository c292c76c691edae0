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

	"github.com/ZaparooProject/go-flowbird"
)

type apduReader struct {
	client *Client
}

func (r *apduReader) ExchangeWithCard(cardID int64, commands [][]byte, callback flowbird.ExchangeCallback) error {
	return r.client.exchange(MethodExchangeWithCard, cardID, commands, callback)
}

func (r *apduReader) ExchangeWithSAM(slotID int64, commands [][]byte, callback flowbird.ExchangeCallback) error {
	return r.client.exchange(MethodExchangeWithSAM, slotID, commands, callback)
}

// hunter forwards hunt control to the daemon. Listeners stay local and
// are addressed by id in event frames.
type hunter struct {
	client  *Client
	service string
}

func (h *hunter) StartDetection(config flowbird.Payload) error {
	_, err := h.client.call(context.Background(), Frame{
		Service: h.service,
		Method:  MethodStartDetection,
		Payload: config,
	})
	return err
}

func (h *hunter) StopDetection() error {
	_, err := h.client.call(context.Background(), Frame{Service: h.service, Method: MethodStopDetection})
	return err
}

func (h *hunter) AddEventListener(listener flowbird.HuntListener) error {
	id := listener.ListenerID()
	h.client.mu.Lock()
	h.client.listeners[id] = listener
	h.client.mu.Unlock()

	_, err := h.client.call(context.Background(), Frame{
		Service:  h.service,
		Method:   MethodAddEventListener,
		Listener: id,
	})
	if err != nil {
		h.client.mu.Lock()
		delete(h.client.listeners, id)
		h.client.mu.Unlock()
	}
	return err
}

func (h *hunter) RemoveEventListener(listener flowbird.HuntListener) error {
	id := listener.ListenerID()
	h.client.mu.Lock()
	delete(h.client.listeners, id)
	h.client.mu.Unlock()

	_, err := h.client.call(context.Background(), Frame{
		Service:  h.service,
		Method:   MethodRemoveEventListener,
		Listener: id,
	})
	return err
}

type led struct {
	client  *Client
	service string
}

func (l *led) SetPattern(pattern string) error {
	_, err := l.client.call(context.Background(), Frame{Service: l.service, Method: MethodSetPattern, Value: pattern})
	return err
}

type sound struct {
	client *Client
}

func (s *sound) Play(name string) error {
	_, err := s.client.call(context.Background(), Frame{Service: flowbird.ServiceSound, Method: MethodPlay, Value: name})
	return err
}

type text struct {
	client *Client
}

func (t *text) Show(value string) error {
	_, err := t.client.call(context.Background(), Frame{Service: flowbird.ServiceTextDisplay, Method: MethodShow, Value: value})
	return err
}

// Remote stands for a joined service the reader only needs to hold, such as
// authentication. Call issues a raw request against it.
type Remote struct {
	client *Client
	name   string
}

// Name returns the service name
func (r *Remote) Name() string { return r.name }

// Call sends method to the service and returns the response payload
func (r *Remote) Call(ctx context.Context, method string, payload map[string]any) (map[string]any, error) {
	resp, err := r.client.call(ctx, Frame{Service: r.name, Method: method, Payload: payload})
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}
