// Package export renders class rosters and booking passes.
package export

import (
	"errors"
	"fmt"
	"time"

	"classbook/internal/config"
)

var ErrInvalidPass = errors.New("invalid booking pass")

// Exporter formats documents in the configured timezone and signs passes
// with the configured secret.
type Exporter struct {
	secret []byte
	loc    *time.Location
}

func NewExporter(cfg config.ExportConfig) (*Exporter, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load export timezone %q: %w", cfg.Timezone, err)
		}
	}
	return &Exporter{secret: []byte(cfg.PassSecret), loc: loc}, nil
}

func (e *Exporter) formatTime(t time.Time) string {
	return t.In(e.loc).Format("02/01/2006 15:04")
}
