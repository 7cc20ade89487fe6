package logger

import (
	"go.uber.org/zap"
)

// New builds a zap logger for the given environment. Development gets a
// human-readable console encoder with debug enabled; anything else gets
// production JSON output.
func New(environment string) (*zap.Logger, error) {
	if environment == "development" {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
