// Package logflags mirrors delve's pkg/logflags: one boolean per logging
// component, parsed once from a comma-separated --log-output flag, each
// backed by its own *logrus.Entry so call sites never nil-check a logger.
package logflags

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	codec   = false
	replay  = false
	session = false
	rpc     = false
)

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup parses logstr (a comma-separated component list) when logFlag is
// set, exactly like delve's Setup(logFlag, logstr).
func Setup(logFlag bool, logstr string) error {
	if !logFlag {
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "session"
	}
	for _, name := range strings.Split(logstr, ",") {
		switch name {
		case "codec":
			codec = true
		case "replay":
			replay = true
		case "session":
			session = true
		case "rpc":
			rpc = true
		}
	}
	return nil
}

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New()
	logger.Out = logWriter()
	logger.Formatter = &logrus.TextFormatter{
		ForceColors:   isatty.IsTerminal(os.Stderr.Fd()),
		FullTimestamp: true,
	}
	logger.Level = logrus.DebugLevel
	if !flag {
		logger.Level = logrus.PanicLevel
	}
	return logger.WithFields(fields)
}

// logWriter wraps stderr in go-colorable so ANSI color codes survive on
// terminals that don't natively expand them (e.g. Windows conhost),
// mirroring pkg/terminal's isatty-gated color detection applied to a log
// sink instead of a paged transcript.
func logWriter() io.Writer {
	return colorable.NewColorableStderr()
}

// Codec reports whether the codec component was named in --log-output.
// Nothing in rspd consults it or CodecLogger: pkg/rsp's Conn logs framed
// packets through the logger its Server was given (the session logger).
func Codec() bool { return codec }

// CodecLogger returns a logger for pkg/rsp's wire-level codec.
func CodecLogger() *logrus.Entry {
	return makeLogger(codec, logrus.Fields{"component": "codec"})
}

// Replay reports whether the replay component was named in --log-output.
// pkg/replay does no logging, so nothing consults it or ReplayLogger.
func Replay() bool { return replay }

// ReplayLogger returns a logger for pkg/replay.
func ReplayLogger() *logrus.Entry {
	return makeLogger(replay, logrus.Fields{"component": "replay"})
}

// Session reports whether dispatcher-level command tracing should log.
func Session() bool { return session }

// SessionLogger returns a logger for pkg/rsp's command dispatcher.
func SessionLogger() *logrus.Entry {
	return makeLogger(session, logrus.Fields{"component": "session"})
}

// RPC is reserved for parity with delve's component set; rspd has no RPC
// surface today, but a future service layer would log under this flag.
func RPC() bool { return rpc }
