package logger

import (
	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
)

// Logger is the eigensdk structured logger, aliased so packages only import this one.
type Logger = sdklogging.Logger

// New builds the zap backed logger. verbose forces development level output, which includes debug lines.
func New(env sdklogging.LogLevel, verbose bool) (Logger, error) {
	if verbose || env == "" {
		env = sdklogging.Development
	}
	return sdklogging.NewZapLogger(env)
}
