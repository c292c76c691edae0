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

package flowbird

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/go-flowbird/internal/syncutil"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Session log rotation limits
const (
	sessionLogMaxSizeMB  = 5
	sessionLogMaxBackups = 3
	sessionLogMaxAgeDays = 14
)

var sessionLog struct {
	writer io.Writer
	closer io.Closer
	path   string
	mu     syncutil.Mutex
}

// InitSessionLog opens a size-rotated session log at path. An empty path
// selects flowbird_<timestamp>.log in the current directory.
// Returns the log file path for display to the user.
func InitSessionLog(path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("flowbird_%s.log", time.Now().Format("20060102_150405"))
	}

	logger := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    sessionLogMaxSizeMB,
		MaxBackups: sessionLogMaxBackups,
		MaxAge:     sessionLogMaxAgeDays,
	}
	if err := writeSessionHeader(logger); err != nil {
		_ = logger.Close()
		return "", fmt.Errorf("failed to create session log: %w", err)
	}

	sessionLog.mu.Lock()
	previous := sessionLog.closer
	sessionLog.writer = logger
	sessionLog.closer = logger
	sessionLog.path = path
	sessionLog.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}
	return path, nil
}

// CloseSessionLog closes the current session log
func CloseSessionLog() error {
	sessionLog.mu.Lock()
	writer, closer := sessionLog.writer, sessionLog.closer
	sessionLog.writer = nil
	sessionLog.closer = nil
	sessionLog.path = ""
	sessionLog.mu.Unlock()

	if writer == nil {
		return nil
	}
	timestamp := time.Now().Format("15:04:05.000")
	_, _ = fmt.Fprintf(writer, "\n%s === Session ended ===\n", timestamp)
	if closer == nil {
		return nil
	}
	if err := closer.Close(); err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// GetSessionLogPath returns the current session log path, empty when none is open
func GetSessionLogPath() string {
	sessionLog.mu.Lock()
	defer sessionLog.mu.Unlock()
	return sessionLog.path
}

func currentSessionLog() io.Writer {
	sessionLog.mu.Lock()
	defer sessionLog.mu.Unlock()
	return sessionLog.writer
}

// writeSessionHeader writes metadata about the session to the log
func writeSessionHeader(w io.Writer) error {
	var b strings.Builder
	b.WriteString("=== Flowbird Reader Session Log ===\n")
	_, _ = fmt.Fprintf(&b, "Started: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&b, "PID: %d\n", os.Getpid())
	_, _ = fmt.Fprintf(&b, "OS: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(&b, "Go Version: %s\n", runtime.Version())
	if exe, err := os.Executable(); err == nil {
		_, _ = fmt.Fprintf(&b, "Executable: %s\n", exe)
	}
	_, _ = fmt.Fprintf(&b, "Command Line: %s\n", strings.Join(os.Args, " "))
	b.WriteString("===================================\n\n")
	_, err := io.WriteString(w, b.String())
	return err
}
