package resilience

import (
	"time"

	"github.com/Jinn-Network/jinn-worker/infrastructure/logging"
	"github.com/sirupsen/logrus"
)

// ExternalCallConfig provides preconfigured circuit breaker settings for
// the worker's calls to external collaborators (indexer, claim service,
// credential bridge, chain RPC, middleware daemon) — flaky enough to need
// protection, but not disposable enough to fail fast as aggressively as
// an internal service mesh call.
type ExternalCallConfig struct {
	MaxFailures    int
	TimeoutSeconds int
	HalfOpenMax    int
	Logger         *logging.Logger
}

// DefaultExternalCBConfig returns the breaker settings used for every
// collaborator client in clients/: MaxFailures 5, Timeout 30s,
// HalfOpenMax 3.
func DefaultExternalCBConfig(logger *logging.Logger) Config {
	return ExternalCBConfig(ExternalCallConfig{
		MaxFailures:    5,
		TimeoutSeconds: 30,
		HalfOpenMax:    3,
		Logger:         logger,
	})
}

// ExternalCBConfig builds a Config from an ExternalCallConfig, wiring
// OnStateChange to the supplied logger when present.
func ExternalCBConfig(cfg ExternalCallConfig) Config {
	cbConfig := Config{
		MaxFailures: cfg.MaxFailures,
		Timeout:     SecondsToDuration(cfg.TimeoutSeconds),
		HalfOpenMax: cfg.HalfOpenMax,
	}

	if cbConfig.MaxFailures <= 0 {
		cbConfig.MaxFailures = 5
	}
	if cbConfig.Timeout <= 0 {
		cbConfig.Timeout = 30 * time.Second
	}
	if cbConfig.HalfOpenMax <= 0 {
		cbConfig.HalfOpenMax = 3
	}

	if cfg.Logger != nil {
		cbConfig.OnStateChange = func(from, to State) {
			cfg.Logger.WithFields(logrus.Fields{
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Warn("circuit breaker state changed")
		}
	}

	return cbConfig
}

// SecondsToDuration converts seconds to a Duration.
func SecondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
