package logger

import (
	"io"
	"log"
)

func Null() *log.Logger {
	return log.New(io.Discard, "", log.LstdFlags)
}

func Default() *log.Logger {
	return log.Default()
}

type Option func(*log.Logger) *log.Logger

// By applies options to l in order.
//
// Options may modify the logger in place. Put Copied() first to keep l untouched.
func By(l *log.Logger, opt ...Option) *log.Logger {
	for _, o := range opt {
		l = o(l)
	}
	return l
}

func Copied() Option {
	return func(l *log.Logger) *log.Logger {
		return log.New(l.Writer(), l.Prefix(), l.Flags())
	}
}

func WithPrefix(pre string) Option {
	return func(l *log.Logger) *log.Logger {
		l.SetPrefix(pre)
		return l
	}
}

func WithTimestamp() Option {
	return func(l *log.Logger) *log.Logger {
		l.SetFlags(l.Flags() | log.Ldate | log.Ltime | log.Lmicroseconds)
		return l
	}
}

// Debug returns a logger for debug messages.
//
// When verbose is false, messages are discarded.
// Otherwise, it is a copy of l writing with the prefix "<prefix of l>[debug] ".
func Debug(l *log.Logger, verbose bool) *log.Logger {
	if !verbose {
		return Null()
	}
	return By(l, Copied(), WithPrefix(l.Prefix()+"[debug] "))
}
