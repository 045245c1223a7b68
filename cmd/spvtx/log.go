// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/btcsuite/btclog"
	"github.com/btcsuite/spvwallet/chain"
	"github.com/btcsuite/spvwallet/waddrmgr"
	"github.com/btcsuite/spvwallet/wallet"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/btcsuite/spvwallet/wallet/rbf"
	"github.com/btcsuite/spvwallet/wallet/txbuilder"
	"github.com/btcsuite/spvwallet/wallet/txbuilder/hodler"
	"github.com/btcsuite/spvwallet/wtxmgr"
	"github.com/jrick/logrotate/rotator"
)

const (
	// logFileName is the name of the log file in the log directory.
	logFileName = "spvtx.log"

	// logRollSize is the size in KB at which the log file is rolled.
	logRollSize = 10 * 1024

	// logMaxRolls is the number of rolled files kept.
	logMaxRolls = 3
)

// logWriter writes to stderr and, once initLogRotator was called, to the
// log rotator. Stdout is kept for command output.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stderr.Write(p)
	if logRotator != nil {
		return logRotator.Write(p)
	}

	return len(p), nil
}

var (
	// backendLog is the logging backend used to create all subsystem
	// loggers.
	backendLog = btclog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs. It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	log = backendLog.Logger("SPVT")

	// subsystemLoggers maps each subsystem identifier to its logger.
	subsystemLoggers = map[string]btclog.Logger{
		"SPVT": log,
		"CSEL": backendLog.Logger("CSEL"),
		"TXBL": backendLog.Logger("TXBL"),
		"RBF":  backendLog.Logger("RBF"),
		"HODL": backendLog.Logger("HODL"),
		"WLLT": backendLog.Logger("WLLT"),
		"TMGR": backendLog.Logger("TMGR"),
		"AMGR": backendLog.Logger("AMGR"),
		"CHIO": backendLog.Logger("CHIO"),
	}
)

// Initialize package-global logger variables.
func init() {
	coinselect.UseLogger(subsystemLoggers["CSEL"])
	txbuilder.UseLogger(subsystemLoggers["TXBL"])
	rbf.UseLogger(subsystemLoggers["RBF"])
	hodler.UseLogger(subsystemLoggers["HODL"])
	wallet.UseLogger(subsystemLoggers["WLLT"])
	wtxmgr.UseLogger(subsystemLoggers["TMGR"])
	waddrmgr.UseLogger(subsystemLoggers["AMGR"])
	chain.UseLogger(subsystemLoggers["CHIO"])
}

// initLogRotator initializes the log rotator to write logs to logFile and
// create roll files in the same directory. It must be called before the
// package-global log rotator variable is used.
func initLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	r, err := rotator.New(logFile, logRollSize, false, logMaxRolls)
	if err != nil {
		return fmt.Errorf("create file rotator: %w", err)
	}
	logRotator = r

	return nil
}

// setLogLevel sets the logging level for the provided subsystem. Invalid
// subsystems are ignored.
func setLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}

	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// setLogLevels sets the log level for all subsystem loggers to the passed
// level.
func setLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		setLogLevel(subsystemID, logLevel)
	}
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)

	return subsystems
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	_, ok := btclog.LevelFromString(logLevel)
	return ok
}

// parseAndSetDebugLevels parses the debug level, either a single level for
// all subsystems or a comma separated list of <subsystem>=<level> pairs, and
// applies it.
func parseAndSetDebugLevels(debugLevel string) error {
	if !strings.Contains(debugLevel, ",") &&
		!strings.Contains(debugLevel, "=") {

		if !validLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", debugLevel)
		}
		setLogLevels(debugLevel)

		return nil
	}

	for _, pair := range strings.Split(debugLevel, ",") {
		fields := strings.Split(pair, "=")
		if len(fields) != 2 {
			return fmt.Errorf("the specified debug level contains "+
				"an invalid subsystem/level pair [%v]", pair)
		}

		subsysID, logLevel := fields[0], fields[1]
		if _, exists := subsystemLoggers[subsysID]; !exists {
			return fmt.Errorf("the specified subsystem [%v] is "+
				"invalid -- supported subsystems %v", subsysID,
				supportedSubsystems())
		}
		if !validLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}
