package services

import (
	"context"

	"github.com/sufield/certifier/internal/core/ports"
)

// NoopLogger discards all log output.
type NoopLogger struct{}

func (NoopLogger) Debug(context.Context, string, ...ports.LogAttribute) {}
func (NoopLogger) Info(context.Context, string, ...ports.LogAttribute) {}
func (NoopLogger) Warn(context.Context, string, ...ports.LogAttribute) {}
func (NoopLogger) Error(context.Context, string, ...ports.LogAttribute) {}

func (l NoopLogger) WithAttrs(...ports.LogAttribute) ports.Logger { return l }
func (l NoopLogger) WithGroup(string) ports.Logger { return l }
