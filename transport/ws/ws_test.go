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

package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ZaparooProject/go-flowbird"
	"github.com/ZaparooProject/go-flowbird/internal/bridge"
	testutil "github.com/ZaparooProject/go-flowbird/internal/testing"
	"github.com/ZaparooProject/go-flowbird/transport/ws"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("validator-shared-secret")

func newDaemon(t *testing.T, key []byte) (url string, binder *testutil.FakeBinder) {
	t.Helper()
	binder, _, _ = testutil.NewDriver()
	mux := http.NewServeMux()
	mux.Handle(ws.Path, ws.Handler(key, func(ctx context.Context, conn *ws.Conn) {
		_ = bridge.NewServer(conn, binder).Serve(ctx)
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + ws.Path, binder
}

func TestDial_BindsOverWebsocket(t *testing.T) {
	t.Parallel()
	url, binder := newDaemon(t, testKey)

	conn, err := ws.Dial(context.Background(), url, ws.WithSigner(ws.Signer{Key: testKey, Subject: "reader"}))
	require.NoError(t, err)
	client := bridge.NewClient(conn)
	t.Cleanup(func() { _ = client.Close() })

	joined := make(chan bool, 1)
	require.NoError(t, client.Bind(flowbird.DefaultServiceRequests(), flowbird.BindCallbacks{
		OnJoined: func(initDone bool) { joined <- initDone },
	}))
	select {
	case <-joined:
	case <-time.After(2 * time.Second):
		t.Fatal("bind over websocket did not complete")
	}

	apdu, ok := client.Service(flowbird.ServiceAPDUReader).(flowbird.APDUReader)
	require.True(t, ok)
	results := make(chan [][]byte, 1)
	require.NoError(t, apdu.ExchangeWithSAM(3, [][]byte{{0x00, 0x84}}, func(_ int64, _ bool, r [][]byte) {
		results <- r
	}))
	select {
	case r := <-results:
		assert.Equal(t, [][]byte{{0x00, 0x84, 0x90, 0x00}}, r)
	case <-time.After(2 * time.Second):
		t.Fatal("exchange over websocket did not complete")
	}
	assert.Equal(t, 1, binder.Binds())
}

func TestDial_Unauthorized(t *testing.T) {
	t.Parallel()
	url, _ := newDaemon(t, testKey)

	tests := []struct {
		name string
		opts []ws.DialOption
	}{
		{name: "no token"},
		{name: "wrong key", opts: []ws.DialOption{ws.WithSigner(ws.Signer{Key: []byte("other")})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ws.Dial(context.Background(), url, tt.opts...)
			require.ErrorIs(t, err, ws.ErrUnauthorized)
		})
	}
}

func TestDial_OpenDaemonAcceptsAnyone(t *testing.T) {
	t.Parallel()
	url, _ := newDaemon(t, nil)

	conn, err := ws.Dial(context.Background(), url, ws.WithHandshakeTimeout(time.Second))
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestSigner_TokenRoundTrip(t *testing.T) {
	t.Parallel()
	token, err := ws.Signer{Key: testKey, Subject: "reader-7"}.Token()
	require.NoError(t, err)

	subject, err := ws.Verify(testKey, token)
	require.NoError(t, err)
	assert.Equal(t, "reader-7", subject)

	_, err = ws.Signer{}.Token()
	require.Error(t, err)
}

func TestVerify_Rejects(t *testing.T) {
	t.Parallel()
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString(testKey)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "x"}).SignedString(testKey)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":     "",
		"garbage":   "not-a-token",
		"expired":   expired,
		"no expiry": noExpiry,
	} {
		_, err := ws.Verify(testKey, token)
		require.ErrorIs(t, err, ws.ErrUnauthorized, name)
	}
}
