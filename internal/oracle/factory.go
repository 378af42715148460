package oracle

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/internal/config"
)

// NewSet is a factory function that builds the oracles selected by the
// configuration. The estimator is only wired when oracle.estimate is set.
func NewSet(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (*Set, error) {
	type oracle interface {
		Decider
		Evaluator
		Estimator
	}

	var o oracle
	switch cfg.Provider {
	case "http":
		c, err := NewHTTPClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		o = c
	case "gemini":
		c, err := NewGeminiClient(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		o = c
	default:
		return nil, fmt.Errorf("unknown or unsupported oracle provider configured: '%s'. Supported: [http, gemini]", cfg.Provider)
	}

	set := &Set{Decider: o, Evaluator: o}
	if cfg.Estimate {
		set.Estimator = o
	}
	return set, nil
}
