// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gostlink

import (
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var (
	logger *logrus.Logger = nil
)

const MaxLogLevel = logrus.TraceLevel

func init() {
	logger = logrus.New()
	logger.SetFormatter(&prefixed.TextFormatter{
		DisableColors:   false,
		ForceFormatting: true,
		FullTimestamp:   false,
	})
	logger.SetLevel(logrus.InfoLevel)
}

// SetLogger replaces the package-wide logger, e.g. to redirect output or
// change formatting from an embedding application.
func SetLogger(loggerInstance *logrus.Logger) {
	logger = loggerInstance
}

// SetVerbosity maps the CLI's -v count (0..4) onto a logrus level, the
// way the original command line's "verbose" integer gated stderr output.
func SetVerbosity(level int) {
	switch {
	case level <= 0:
		logger.SetLevel(logrus.WarnLevel)
	case level == 1:
		logger.SetLevel(logrus.InfoLevel)
	case level == 2:
		logger.SetLevel(logrus.DebugLevel)
	default:
		logger.SetLevel(logrus.TraceLevel)
	}
}
