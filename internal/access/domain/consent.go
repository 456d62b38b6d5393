package domain

import "time"

// Age thresholds for the consent state machine.
const (
	// MinPlatformAge is the floor below which a profile may not exist in
	// the app at all.
	MinPlatformAge = 14
	// AdultAge grants full access with no consent requirement.
	AdultAge = 18
)

// ConsentValidity is how long a guardian's consent grant remains effective
// before it must be renewed.
const ConsentValidity = 365 * 24 * time.Hour

// AgeUnknown marks a missing birth year in a ConsentEvaluation.
const AgeUnknown = -1

// ConsentEvaluation is the outcome of the pure consent decision for one
// claimed profile.
type ConsentEvaluation struct {
	// AgeYears is the conservative age, or AgeUnknown.
	AgeYears int
	// AccessLevel the profile record starts at (or would start at).
	AccessLevel AccessLevel
	// RequiresConsent reports that a guardian grant is needed before the
	// profile can be used.
	RequiresConsent bool
	// Eligible reports whether a ProfileAccessRecord may be created at all.
	// Under-14 claims are ineligible: no record, terminal block until a
	// birth-year correction triggers re-evaluation.
	Eligible bool
}

// EvaluateConsent computes the access level and required next action for a
// claimed profile. It is pure: same inputs, same answer, no side effects.
//
// Age is computed conservatively as currentYear - birthYear, i.e. assuming
// the latest possible birthday. That can overestimate age by at most one
// year in the caller-visible number, but the thresholds are applied so that
// someone who might still be under a threshold is never treated as over it,
// the safe direction for a minor-protection rule.
func EvaluateConsent(birthYear *int, relationship Relationship, now time.Time) ConsentEvaluation {
	// A parent claims their own relationship to an alumnus; parents are
	// adults and are not age-gated.
	if relationship == RelationshipParent {
		return ConsentEvaluation{
			AgeYears:    AgeUnknown,
			AccessLevel: AccessFull,
			Eligible:    true,
		}
	}

	// A child claim without a birth year cannot prove any age band. Treat
	// it like the consent-required band rather than a terminal block: a
	// guardian grant is a recovery path, an uncorrectable block is not.
	if birthYear == nil {
		return ConsentEvaluation{
			AgeYears:        AgeUnknown,
			AccessLevel:     AccessBlocked,
			RequiresConsent: true,
			Eligible:        true,
		}
	}

	age := now.Year() - *birthYear

	switch {
	case age < MinPlatformAge:
		return ConsentEvaluation{
			AgeYears:    age,
			AccessLevel: AccessBlocked,
			Eligible:    false,
		}
	case age < AdultAge:
		return ConsentEvaluation{
			AgeYears:        age,
			AccessLevel:     AccessBlocked,
			RequiresConsent: true,
			Eligible:        true,
		}
	default:
		return ConsentEvaluation{
			AgeYears:    age,
			AccessLevel: AccessFull,
			Eligible:    true,
		}
	}
}
