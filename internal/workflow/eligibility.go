package workflow

import (
	"fmt"
	"time"

	"github.com/noah-isme/doctorat-api/internal/models"
	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
)

// Bucket classifies a doctorate duration.
type Bucket string

const (
	BucketNormal             Bucket = "normal"
	BucketDerogationRequired Bucket = "derogation_required"
	BucketHardBlocked        Bucket = "hard_blocked"
)

// DurationPolicy holds the thresholds in whole years.
type DurationPolicy struct {
	Initial int
	Maximum int
	Alert   int
}

// DefaultDurationPolicy is 3 years nominal, 6 maximum, alert from 5.
var DefaultDurationPolicy = DurationPolicy{Initial: 3, Maximum: 6, Alert: 5}

// Assessment is the duration classification at a point in time.
type Assessment struct {
	ElapsedYears   int
	Bucket         Bucket
	Alert          bool
	YearsRemaining int
}

// ElapsedYears counts completed calendar years between initial and now.
func ElapsedYears(initial, now time.Time) int {
	initial = initial.UTC()
	now = now.UTC()
	if now.Before(initial) {
		return 0
	}
	years := now.Year() - initial.Year()
	if now.Month() < initial.Month() || (now.Month() == initial.Month() && now.Day() < initial.Day()) {
		years--
	}
	return years
}

// Assess classifies the duration since initial.
func (p DurationPolicy) Assess(initial, now time.Time) Assessment {
	elapsed := ElapsedYears(initial, now)
	a := Assessment{ElapsedYears: elapsed, Bucket: BucketNormal, Alert: elapsed >= p.Alert}
	switch {
	case elapsed > p.Maximum:
		a.Bucket = BucketHardBlocked
	case elapsed > p.Initial:
		a.Bucket = BucketDerogationRequired
	}
	if remaining := p.Maximum - elapsed; remaining > 0 {
		a.YearsRemaining = remaining
	}
	return a
}

// CheckReenrollment blocks beyond the maximum, and beyond the nominal duration without a derogation.
func (p DurationPolicy) CheckReenrollment(initial time.Time, hasDerogation bool, now time.Time) (Assessment, error) {
	a := p.Assess(initial, now)
	switch a.Bucket {
	case BucketHardBlocked:
		return a, appErrors.DureeDepassee(
			fmt.Sprintf("maximum doctoral duration of %d years exceeded (%d years)", p.Maximum, a.ElapsedYears),
			a.ElapsedYears, true)
	case BucketDerogationRequired:
		if !hasDerogation {
			return a, appErrors.DureeDepassee(
				fmt.Sprintf("doctoral duration of %d years exceeded (%d years), a derogation is required", p.Initial, a.ElapsedYears),
				a.ElapsedYears, false)
		}
	}
	return a, nil
}

// CheckDefense blocks a defense request beyond the maximum unless a derogation is held.
func (p DurationPolicy) CheckDefense(initial time.Time, hasDerogation bool, now time.Time) (Assessment, error) {
	a := p.Assess(initial, now)
	if a.Bucket == BucketHardBlocked && !hasDerogation {
		return a, appErrors.DureeDepassee(
			fmt.Sprintf("maximum doctoral duration of %d years exceeded (%d years)", p.Maximum, a.ElapsedYears),
			a.ElapsedYears, true)
	}
	return a, nil
}

// ReenrollmentStatus summarises CheckReenrollment for read endpoints.
func (p DurationPolicy) ReenrollmentStatus(initial *models.InitialInscription, now time.Time) models.ReenrollmentStatus {
	status := models.ReenrollmentStatus{InitialDuration: p.Initial, MaximumDuration: p.Maximum}
	if initial == nil {
		status.Reason = "no previous inscription found"
		return status
	}
	a, err := p.CheckReenrollment(initial.Date, initial.Derogation, now)
	status.ElapsedYears = a.ElapsedYears
	status.HasDerogation = initial.Derogation
	status.DerogationRequired = a.Bucket != BucketNormal
	status.DurationAlert = a.Alert
	status.YearsRemaining = a.YearsRemaining
	status.Eligible = err == nil
	if err != nil {
		status.Reason = appErrors.FromError(err).Message
	}
	return status
}
