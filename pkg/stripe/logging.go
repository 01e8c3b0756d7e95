package stripe

import (
	"github.com/rs/zerolog"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// leveledLogger routes stripe-go's internal logging into the service logger.
type leveledLogger struct {
	logg *logger.Logger
}

func (l leveledLogger) Debugf(format string, v ...any) { l.log(zerolog.DebugLevel, format, v...) }
func (l leveledLogger) Infof(format string, v ...any)  { l.log(zerolog.InfoLevel, format, v...) }
func (l leveledLogger) Warnf(format string, v ...any)  { l.log(zerolog.WarnLevel, format, v...) }
func (l leveledLogger) Errorf(format string, v ...any) { l.log(zerolog.ErrorLevel, format, v...) }

func (l leveledLogger) log(level zerolog.Level, format string, v ...any) {
	l.logg.Logf(level, "stripe", format, v...)
}
