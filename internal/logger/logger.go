package logger

import (
	"fmt"

	"go.uber.org/zap"

	"tiffinbill/internal/config"
)

// New builds the process logger. Development mode switches to a console
// encoder at debug level; a configured level or encoding overrides either
// preset.
func New(cfg config.LoggerConfig, development bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if development {
		zcfg = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zcfg.Level = level
	}
	if cfg.Encoding != "" {
		zcfg.Encoding = cfg.Encoding
	}
	zcfg.DisableCaller = cfg.DisableCaller
	zcfg.DisableStacktrace = cfg.DisableStacktrace

	return zcfg.Build()
}
