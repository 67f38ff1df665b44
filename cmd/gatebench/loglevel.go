package main

import "go.uber.org/zap/zapcore"

// logLevelFlag is the value behind --loglevel. It accepts the names zap
// prints for its levels (debug, info, warn, error, ...) and stores the
// parsed level in place, so the flag can point straight at the level the
// logger config is built from.
type logLevelFlag zapcore.Level

func (f *logLevelFlag) Set(name string) error {
	return (*zapcore.Level)(f).UnmarshalText([]byte(name))
}

func (f logLevelFlag) String() string {
	return zapcore.Level(f).String()
}

func (logLevelFlag) Type() string { return "level" }
