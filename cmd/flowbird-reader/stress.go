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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ZaparooProject/go-flowbird"
	"github.com/ZaparooProject/go-flowbird/reader"
)

// getChallenge asks a SAM for 8 random bytes
var getChallenge = []byte{0x00, 0x84, 0x00, 0x00, 0x08}

// maxLoggedOps bounds the operation log kept for crash reports
const maxLoggedOps = 32

// StressTestResult holds the final result for one SAM reader.
type StressTestResult struct {
	Reader    string
	CrashFile string
	Passed    int
	Failed    int
	Timeouts  int
	Duration  time.Duration
	Skipped   bool
	Success   bool
}

// CrashReport contains the information needed to debug a failed exchange.
type CrashReport struct {
	Timestamp    time.Time  `json:"timestamp"`
	Reader       string     `json:"reader"`
	PowerOnData  string     `json:"power_on_data"`
	Error        string     `json:"error"`
	ResponseHex  string     `json:"response_hex,omitempty"`
	OperationLog []LogEntry `json:"operation_log"`
	Iteration    int        `json:"iteration"`
}

// LogEntry represents a single exchange in the log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	DataHex   string    `json:"data_hex,omitempty"`
	Error     string    `json:"error,omitempty"`
	Success   bool      `json:"success"`
}

func printStressTestBanner(iterations int) {
	_, _ = fmt.Println("================================================================================")
	_, _ = fmt.Println("                          Flowbird SAM Stress Test Mode")
	_, _ = fmt.Println("================================================================================")
	_, _ = fmt.Printf("GET CHALLENGE x %d on every SAM slot with a known ATR\n", iterations)
}

// runStressMode exchanges with every populated SAM slot concurrently and
// writes a crash report to reportDir for the first failure of each slot.
func runStressMode(ctx context.Context, plugin *reader.Plugin, iterations int, reportDir string) error {
	printStressTestBanner(iterations)

	var wg sync.WaitGroup
	results := make([]*StressTestResult, len(flowbird.SamSlots()))
	for i, slot := range flowbird.SamSlots() {
		sam, err := plugin.SAM(slot)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func(i int, sam *reader.SAMReader) {
			defer wg.Done()
			results[i] = runStressTestForSAM(ctx, sam, iterations, reportDir)
		}(i, sam)
	}
	wg.Wait()

	printFinalSummary(results, plugin.Stats())
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, r := range results {
		if !r.Skipped && !r.Success {
			return errors.New("stress test failed")
		}
	}
	return nil
}

func runStressTestForSAM(ctx context.Context, sam *reader.SAMReader, iterations int, reportDir string) *StressTestResult {
	result := &StressTestResult{Reader: sam.Name()}
	present, err := sam.CheckCardPresence()
	if err != nil || !present {
		result.Skipped = true
		return result
	}

	started := time.Now()
	opLog := make([]LogEntry, 0, maxLoggedOps)
	for i := range iterations {
		if ctx.Err() != nil {
			break
		}
		resp, err := sam.TransmitAPDU(ctx, getChallenge)
		entry := LogEntry{
			Timestamp: time.Now(),
			Operation: fmt.Sprintf("get_challenge_%d", i),
			DataHex:   fmt.Sprintf("%X", resp),
			Success:   err == nil && statusOK(resp),
		}
		if err != nil {
			entry.Error = err.Error()
		}
		if len(opLog) == maxLoggedOps {
			opLog = opLog[1:]
		}
		opLog = append(opLog, entry)

		switch {
		case errors.Is(err, flowbird.ErrExchangeTimeout):
			result.Timeouts++
			result.Failed++
		case !entry.Success:
			result.Failed++
			if result.CrashFile == "" {
				result.CrashFile = reportFailure(reportDir, sam, i, resp, err, opLog)
			}
		default:
			result.Passed++
		}
	}

	result.Duration = time.Since(started)
	result.Success = result.Failed == 0 && result.Passed == iterations
	return result
}

func reportFailure(dir string, sam *reader.SAMReader, iteration int, resp []byte, err error, opLog []LogEntry) string {
	report := &CrashReport{
		Timestamp:    time.Now(),
		Reader:       sam.Name(),
		PowerOnData:  sam.PowerOnData(),
		Iteration:    iteration,
		ResponseHex:  fmt.Sprintf("%X", resp),
		OperationLog: append([]LogEntry(nil), opLog...),
	}
	if err != nil {
		report.Error = err.Error()
	} else {
		report.Error = "unexpected status word"
	}
	filename, writeErr := writeCrashReportToFile(dir, report)
	if writeErr != nil {
		_, _ = fmt.Printf("  [!] Failed to write crash report: %v\n", writeErr)
		return ""
	}
	_, _ = fmt.Printf("  [!] %s failed at iteration %d, report: %s\n", sam.Name(), iteration, filename)
	return filename
}

func writeCrashReportToFile(dir string, report *CrashReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode crash report: %w", err)
	}
	filename := filepath.Join(dir,
		fmt.Sprintf("flowbird_crash_%s_%s.json", report.Reader, report.Timestamp.Format("20060102_150405")))
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write crash report: %w", err)
	}
	return filename, nil
}

func printFinalSummary(results []*StressTestResult, stats flowbird.TransceiverStats) {
	_, _ = fmt.Println("================================================================================")
	_, _ = fmt.Println("                              STRESS TEST SUMMARY")
	_, _ = fmt.Println("================================================================================")

	passCount, failCount, skipCount := 0, 0, 0
	for _, r := range results {
		var status string
		switch {
		case r.Skipped:
			status = "SKIP"
			skipCount++
		case r.Success:
			status = "PASS"
			passCount++
		default:
			status = "FAIL"
			failCount++
		}
		_, _ = fmt.Printf("  [%s] %s - %d ok, %d failed (%d timeouts) - %s\n",
			status, r.Reader, r.Passed, r.Failed, r.Timeouts, r.Duration.Round(time.Millisecond))
	}

	_, _ = fmt.Printf("\nOverall: %d PASS, %d FAIL, %d SKIP\n", passCount, failCount, skipCount)
	_, _ = fmt.Printf("Exchanges: %d, timeouts: %d, late responses dropped: %d\n",
		stats.Exchanges, stats.Timeouts, stats.LateResponses)
	_, _ = fmt.Println("================================================================================")
}
