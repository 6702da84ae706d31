package main

import (
	"context"
	"fmt"
	"os"

	"classbook/internal/config"
	"classbook/internal/models"
	"classbook/internal/service"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

type seedFile struct {
	Classes []struct {
		Date     string `yaml:"date"`
		Time     string `yaml:"time"`
		Capacity int    `yaml:"capacity"`
	} `yaml:"classes"`
}

func loadSeedFile(path string) ([]models.ClassSession, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	classes := make([]models.ClassSession, 0, len(f.Classes))
	for _, c := range f.Classes {
		classes = append(classes, models.ClassSession{Date: c.Date, Time: c.Time, Capacity: c.Capacity})
	}
	return classes, nil
}

// seedClasses fills an empty schedule from the seed file, or from the
// built-in defaults when seed_defaults is set.
func seedClasses(ctx context.Context, cfg config.DatabaseConfig, classes *service.ClassService, logger *zerolog.Logger) error {
	var seeds []models.ClassSession
	switch {
	case cfg.SeedFile != "":
		var err error
		seeds, err = loadSeedFile(cfg.SeedFile)
		if err != nil {
			logger.Error().Err(err).Str("seed_file", cfg.SeedFile).Msg("load class seed")
			return err
		}
		if len(seeds) == 0 {
			return nil
		}
	case cfg.SeedDefaults:
		seeds = service.DefaultSchedule()
	default:
		return nil
	}

	n, err := classes.SeedDefaults(ctx, seeds)
	if err != nil {
		logger.Error().Err(err).Msg("seed classes")
		return err
	}
	if n > 0 {
		logger.Info().Int("classes", n).Msg("schedule seeded")
	}
	return nil
}
