/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/valpere/perevod/internal/config"
	"github.com/valpere/perevod/internal/detector"
	"github.com/valpere/perevod/internal/orchestrator"
	"github.com/valpere/perevod/internal/retry"
	"github.com/valpere/perevod/internal/store"
	"github.com/valpere/perevod/internal/translator"
	"github.com/valpere/perevod/internal/validator"
)

// buildServices constructs the primary and secondary providers from cfg.
// Both share one pooled client carrying the retry policy.
func buildServices(c *config.Config) (primary, secondary translator.TranslationService, err error) {
	client := retry.NewClient(c.RetryPolicy(), c.HTTPTimeouts())

	primary = translator.NewOpenAIService(c.Primary, client)

	switch strings.ToLower(strings.TrimSpace(c.Secondary.Provider)) {
	case config.SecondaryDeepL:
		secondary = translator.NewDeepLService(c.Secondary.ServiceConfig, client)
	case config.SecondaryGoogle:
		secondary = translator.NewGoogleService(c.Secondary.ServiceConfig, client)
	default:
		return nil, nil, fmt.Errorf("unknown secondary provider: %s", c.Secondary.Provider)
	}
	return primary, secondary, nil
}

// buildGate loads the language detector only for the strict tier, where the
// plausibility check needs it.
func buildGate(c *config.Config) *validator.Gate {
	strictness := c.GateStrictness()
	var det validator.LanguageDetector
	if strictness == validator.Strict {
		det = detector.New()
	}
	return validator.New(strictness, det)
}

// buildRouter wires the routing engine. The returned store is nil when
// history is disabled; callers close it.
func buildRouter(c *config.Config) (*orchestrator.Orchestrator, *store.Store, error) {
	primary, secondary, err := buildServices(c)
	if err != nil {
		return nil, nil, err
	}

	opts := []orchestrator.Option{orchestrator.WithLogger(logger)}

	var db *store.Store
	if c.DBPath != "" {
		db, err = store.New(c.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		opts = append(opts, orchestrator.WithObserver(db.Observer(logger)))
	}

	if err := primary.IsAvailable(context.Background()); err != nil {
		logger.Warn().Str("provider", primary.Name()).Msg("primary provider is not configured; every request will use the secondary")
	}
	if err := secondary.IsAvailable(context.Background()); err != nil {
		logger.Warn().Str("provider", secondary.Name()).Msg("secondary provider is not configured")
	}

	return orchestrator.New(primary, secondary, buildGate(c), opts...), db, nil
}
