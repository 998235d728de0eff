package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds a JSON production logger writing to stdout at level.
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()

	atomic, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg.Level = atomic
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stdout"}
	cfg.Sampling = nil

	return cfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}
