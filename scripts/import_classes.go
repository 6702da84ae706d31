package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"classbook/internal/config"
	"classbook/internal/database"
	"classbook/internal/models"
	"classbook/internal/service"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type ClassesFile struct {
	Classes []struct {
		Date     string `yaml:"date"`
		Time     string `yaml:"time"`
		Capacity int    `yaml:"capacity"`
	} `yaml:"classes"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		classesPath = flag.String("classes", "configs/classes.yaml", "path to classes.yaml")
		driver      = flag.String("driver", database.DriverSQLite, "sqlite or postgres")
		dbPath      = flag.String("db", "./data/classbook.db", "path to sqlite db")
		pgHost   = flag.String("pg-host", "localhost", "postgres host")
		pgPort      = flag.Int("pg-port", 5432, "postgres port")
		pgUser      = flag.String("pg-user", "classbook", "postgres user")
		pgPassword  = flag.String("pg-password", os.Getenv("POSTGRES_PASSWORD"), "postgres password")
		pgName      = flag.String("pg-db", "classbook", "postgres database")
	)
	flag.Parse()

	data, err := os.ReadFile(*classesPath)
	if err != nil {
		return fmt.Errorf("read classes: %w", err)
	}
	var file ClassesFile
	if err = yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse classes: %w", err)
	}
	if len(file.Classes) == 0 {
		return fmt.Errorf("no classes in yaml")
	}

	db, err := database.Open(config.DatabaseConfig{
		Driver: *driver,
		Path:   *dbPath,
		Postgres: config.PostgresConfig{
			Host:     *pgHost,
			Port:     *pgPort,
			User:     *pgUser,
			Password: *pgPassword,
			DBName:   *pgName,
			SSLMode:  "disable",
		},
	}, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created := 0
	updated := 0
	for _, c := range file.Classes {
		class := models.ClassSession{Date: c.Date, Time: c.Time, Capacity: c.Capacity}
		if err = service.ValidateClass(&class); err != nil {
			return fmt.Errorf("class %s %s: %w", c.Date, c.Time, err)
		}

		existing, err := db.GetClassBySchedule(ctx, class.Date, class.Time)
		if err == nil {
			// Уже есть такой слот: обновляем только вместимость
			class.ID = existing.ID
			if err = db.UpdateClass(ctx, &class); err != nil {
				return fmt.Errorf("update %s %s: %w", class.Date, class.Time, err)
			}
			updated++
			continue
		}
		if !errors.Is(err, database.ErrClassNotFound) {
			return fmt.Errorf("get %s %s: %w", class.Date, class.Time, err)
		}
		if err = db.CreateClass(ctx, &class); err != nil {
			return fmt.Errorf("create %s %s: %w", class.Date, class.Time, err)
		}
		created++
	}

	logger.Info().Int("created", created).Int("updated", updated).Msg("classes import finished")
	return nil
}
