package models

import (
	"fmt"
	"time"
)

// ClassSession is a scheduled class occurrence with a fixed seat capacity.
// Date and Time are kept in their storage layouts (DateLayout, TimeLayout)
// so lexical order equals chronological order.
type ClassSession struct {
	ID        int64     `json:"id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Capacity  int       `json:"capacity"`
	CreatedAt time.Time `json:"created_at"`
}

// StartsAt combines Date and Time in loc.
func (c *ClassSession) StartsAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, c.Date+" "+c.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid class schedule %q %q: %w", c.Date, c.Time, err)
	}
	return t, nil
}

// ClassOccupancy pairs a class with its live booking count.
type ClassOccupancy struct {
	Class  ClassSession `json:"class"`
	Booked int          `json:"booked"`
}

// Available returns the number of free seats, never negative.
func (o ClassOccupancy) Available() int {
	if free := o.Class.Capacity - o.Booked; free > 0 {
		return free
	}
	return 0
}

// ClassRoster is the admin view of a class: who booked it and how full it is.
type ClassRoster struct {
	ClassOccupancy
	Usernames     []string        `json:"usernames"`
	Status        OccupancyStatus `json:"status"`
	MinEnrollment int             `json:"min_enrollment"`
}

// OccupancyStatus is derived from the booking count, never stored.
type OccupancyStatus string

const (
	OccupancyOK           OccupancyStatus = "ok"
	OccupancyUnderMinimum OccupancyStatus = "sotto_minimo"
	OccupancyFull         OccupancyStatus = "piena"
)

// OccupancyStatusFor applies the display rule: full wins over under-minimum.
func OccupancyStatusFor(booked, capacity, minEnrollment int) OccupancyStatus {
	switch {
	case booked >= capacity:
		return OccupancyFull
	case booked < minEnrollment:
		return OccupancyUnderMinimum
	default:
		return OccupancyOK
	}
}
