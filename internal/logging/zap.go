// Package logging adapts zap to gateway.Logger, the capability
// interface the gateway and its providers log through. Grounded on the
// teacher's use of zap (carried over into pkg/metrics/metrics.go) rather
// than the ad hoc loggers other pack repos roll by hand.
package logging

import (
	"go.uber.org/zap"
)

// ZapLogger implements gateway.Logger over a *zap.SugaredLogger, so call
// sites can keep passing (msg string, args ...interface{}) with args as
// alternating key/value pairs in zap's Infow style.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// New wraps an existing *zap.Logger.
func New(l *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: l.Sugar()}
}

// NewProduction builds a production zap.Logger (JSON encoding, info
// level) and wraps it. Call Sync on the returned *zap.Logger before
// process exit.
func NewProduction() (*ZapLogger, *zap.Logger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, nil, err
	}
	return New(l), l, nil
}

func (z *ZapLogger) Debug(msg string, args ...interface{}) { z.sugar.Debugw(msg, args...) }
func (z *ZapLogger) Info(msg string, args ...interface{})  { z.sugar.Infow(msg, args...) }
func (z *ZapLogger) Warn(msg string, args ...interface{})  { z.sugar.Warnw(msg, args...) }
func (z *ZapLogger) Error(msg string, args ...interface{}) { z.sugar.Errorw(msg, args...) }
