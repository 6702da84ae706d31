package service

import (
	"context"
	"strings"
	"time"

	"classbook/internal/database"
	"classbook/internal/domain"
	"classbook/internal/models"

	"github.com/rs/zerolog"
)

// DefaultSchedule is seeded when the classes table is empty and no seed
// file is configured.
func DefaultSchedule() []models.ClassSession {
	return []models.ClassSession{
		{Date: "2025-09-06", Time: "19:00", Capacity: 20},
		{Date: "2025-09-07", Time: "19:00", Capacity: 15},
	}
}

type ClassService struct {
	repo          domain.ClassRepository
	minEnrollment int
	logger        *zerolog.Logger
}

func NewClassService(repo domain.ClassRepository, minEnrollment int, logger *zerolog.Logger) *ClassService {
	if minEnrollment < 0 {
		minEnrollment = models.DefaultMinEnrollment
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ClassService{repo: repo, minEnrollment: minEnrollment, logger: logger}
}

// ValidateClass normalizes and checks the schedule fields.
func ValidateClass(class *models.ClassSession) error {
	class.Date = strings.TrimSpace(class.Date)
	class.Time = strings.TrimSpace(class.Time)
	date, err := time.Parse(models.DateLayout, class.Date)
	if err != nil {
		return ErrInvalidSchedule
	}
	clock, err := time.Parse(models.TimeLayout, class.Time)
	if err != nil {
		return ErrInvalidSchedule
	}
	// "9:30" parses too; store "09:30" so ORDER BY class_time stays chronological.
	class.Date = date.Format(models.DateLayout)
	class.Time = clock.Format(models.TimeLayout)
	if class.Capacity < 0 {
		return database.ErrInvalidCapacity
	}
	return nil
}

func (s *ClassService) CreateClass(ctx context.Context, class *models.ClassSession) error {
	if err := ValidateClass(class); err != nil {
		return err
	}
	if err := s.repo.CreateClass(ctx, class); err != nil {
		return err
	}
	s.logger.Info().Int64("class_id", class.ID).Str("date", class.Date).Str("time", class.Time).
		Int("capacity", class.Capacity).Msg("class created")
	return nil
}

// UpdateClass may lower capacity below the current booking count; existing
// bookings are kept and new attempts report ClassFull.
func (s *ClassService) UpdateClass(ctx context.Context, class *models.ClassSession) error {
	if err := ValidateClass(class); err != nil {
		return err
	}
	if err := s.repo.UpdateClass(ctx, class); err != nil {
		return err
	}
	s.logger.Info().Int64("class_id", class.ID).Int("capacity", class.Capacity).Msg("class updated")
	return nil
}

func (s *ClassService) DeleteClass(ctx context.Context, id int64) error {
	if err := s.repo.DeleteClass(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("class_id", id).Msg("class deleted")
	return nil
}

func (s *ClassService) GetClassSession(ctx context.Context, id int64) (*models.ClassSession, error) {
	return s.repo.GetClassSession(ctx, id)
}

// Dashboard is the admin overview: every class with its bookers and status.
func (s *ClassService) Dashboard(ctx context.Context) ([]models.ClassRoster, error) {
	classes, err := s.repo.ListClassesWithOccupancy(ctx)
	if err != nil {
		return nil, err
	}
	names, err := s.repo.ListBookedUsernames(ctx)
	if err != nil {
		return nil, err
	}

	rosters := make([]models.ClassRoster, 0, len(classes))
	for _, occ := range classes {
		usernames := names[occ.Class.ID]
		if usernames == nil {
			usernames = []string{}
		}
		rosters = append(rosters, models.ClassRoster{
			ClassOccupancy: occ,
			Usernames:      usernames,
			Status:         models.OccupancyStatusFor(occ.Booked, occ.Class.Capacity, s.minEnrollment),
			MinEnrollment:  s.minEnrollment,
		})
	}
	return rosters, nil
}

// SeedDefaults inserts seeds only into an empty schedule.
func (s *ClassService) SeedDefaults(ctx context.Context, seeds []models.ClassSession) (int, error) {
	if len(seeds) == 0 {
		seeds = DefaultSchedule()
	}
	for i := range seeds {
		if err := ValidateClass(&seeds[i]); err != nil {
			return 0, err
		}
	}
	return s.repo.SeedClasses(ctx, seeds)
}
