package obs

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogConfig struct {
	Level  string
	Pretty bool
	App    string
	Env    string
	Ver    string
	// Global also installs the logger as zap.L().
	Global bool
}

func NewLogger(c LogConfig) (*zap.Logger, error) {
	var cfg zap.Config
	if c.Pretty {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	// skipped dispatch ticks and per-item debug lines repeat verbatim; keep them all
	if level == zapcore.DebugLevel {
		cfg.Sampling = nil
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build(zap.Fields(staticFields(c)...))
	if err != nil {
		return nil, err
	}
	if c.Global {
		zap.ReplaceGlobals(l)
	}
	return l, nil
}

func staticFields(c LogConfig) []zap.Field {
	fields := make([]zap.Field, 0, 3)
	for _, kv := range [][2]string{{"service", c.App}, {"env", c.Env}, {"version", c.Ver}} {
		if kv[1] != "" {
			fields = append(fields, zap.String(kv[0], kv[1]))
		}
	}
	return fields
}

// Component returns l scoped to a named component, falling back to zap.L().
func Component(l *zap.Logger, name string) *zap.Logger {
	if l == nil {
		l = zap.L()
	}
	return l.With(zap.String("component", name))
}
