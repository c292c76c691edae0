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

// Package ws connects to the driver daemon over a websocket. Frames travel as
// JSON text messages; the handshake may carry an HS256 bearer token.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ZaparooProject/go-flowbird"
	"github.com/ZaparooProject/go-flowbird/internal/bridge"
)

const (
	// DefaultHandshakeTimeout bounds the websocket upgrade
	DefaultHandshakeTimeout = 5 * time.Second
	// DefaultTokenTTL is the lifetime of a generated bearer token
	DefaultTokenTTL = 5 * time.Minute
	// Path is the daemon endpoint path
	Path = "/driver"
)

// ErrUnauthorized is returned when the daemon rejects the bearer token
var ErrUnauthorized = errors.New("daemon rejected credentials")

// Conn is a bridge.Conn over a websocket
type Conn struct {
	ws *websocket.Conn
}

// WriteFrame sends frame as a JSON text message
func (c *Conn) WriteFrame(frame bridge.Frame) error {
	if err := c.ws.WriteJSON(frame); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// ReadFrame reads the next JSON message
func (c *Conn) ReadFrame() (bridge.Frame, error) {
	var frame bridge.Frame
	if err := c.ws.ReadJSON(&frame); err != nil {
		return bridge.Frame{}, fmt.Errorf("websocket read: %w", err)
	}
	return frame, nil
}

// Close sends a close message and closes the socket
func (c *Conn) Close() error {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
	return c.ws.Close()
}

// Signer issues short-lived HS256 tokens
type Signer struct {
	Key     []byte
	Subject string
	TTL     time.Duration
}

// Token returns a signed token valid for TTL
func (s Signer) Token() (string, error) {
	if len(s.Key) == 0 {
		return "", errors.New("signing key required")
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   s.Subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify checks a bearer token signed with key and returns its subject
func Verify(key []byte, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return claims.Subject, nil
}

type dialConfig struct {
	signer  *Signer
	timeout time.Duration
}

// DialOption configures Dial
type DialOption func(*dialConfig)

// WithSigner authenticates the handshake with a bearer token
func WithSigner(signer Signer) DialOption {
	return func(c *dialConfig) { c.signer = &signer }
}

// WithHandshakeTimeout overrides DefaultHandshakeTimeout
func WithHandshakeTimeout(timeout time.Duration) DialOption {
	return func(c *dialConfig) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// Dial opens a websocket to the daemon at url (ws:// or wss://)
func Dial(ctx context.Context, url string, opts ...DialOption) (*Conn, error) {
	cfg := dialConfig{timeout: DefaultHandshakeTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	header := http.Header{}
	if cfg.signer != nil {
		token, err := cfg.signer.Token()
		if err != nil {
			return nil, err
		}
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.timeout, Proxy: http.ProxyFromEnvironment}
	ws, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial %s: %w", url, ErrUnauthorized)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	flowbird.Debugf("ws: connected to %s", url)
	return &Conn{ws: ws}, nil
}

// Handler upgrades daemon connections and hands them to serve. When key is
// set, requests need a valid bearer token.
func Handler(key []byte, serve func(ctx context.Context, conn *Conn)) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(key) > 0 {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			subject, err := Verify(key, token)
			if err != nil {
				flowbird.Debugf("ws: rejected %s: %v", r.RemoteAddr, err)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			flowbird.Debugf("ws: %s authenticated as %q", r.RemoteAddr, subject)
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			flowbird.Debugf("ws: upgrade failed: %v", err)
			return
		}
		serve(r.Context(), &Conn{ws: ws})
	})
}
