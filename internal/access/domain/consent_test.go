package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvaluateConsentAgeBands(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	year := now.Year()

	tests := []struct {
		name      string
		birthYear int
		want      ConsentEvaluation
	}{
		{
			name:      "13 is terminal blocked, no record",
			birthYear: year - 13,
			want: ConsentEvaluation{
				AgeYears:    13,
				AccessLevel: AccessBlocked,
				Eligible:    false,
			},
		},
		{
			name:      "14 requires consent",
			birthYear: year - 14,
			want: ConsentEvaluation{
				AgeYears:        14,
				AccessLevel:     AccessBlocked,
				RequiresConsent: true,
				Eligible:        true,
			},
		},
		{
			name:      "17 requires consent",
			birthYear: year - 17,
			want: ConsentEvaluation{
				AgeYears:        17,
				AccessLevel:     AccessBlocked,
				RequiresConsent: true,
				Eligible:        true,
			},
		},
		{
			name:      "18 is full access",
			birthYear: year - 18,
			want: ConsentEvaluation{
				AgeYears:    18,
				AccessLevel: AccessFull,
				Eligible:    true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateConsent(&tt.birthYear, RelationshipChild, now)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateConsentConservativeAge(t *testing.T) {
	t.Parallel()

	// Age is whole calendar years regardless of the date within the year;
	// the band a claim lands in cannot drift mid-year.
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	birthYear := 2012 // turns 14 sometime during 2026

	got := EvaluateConsent(&birthYear, RelationshipChild, now)
	require.Equal(t, 14, got.AgeYears)
	require.True(t, got.RequiresConsent)
	require.True(t, got.Eligible)
}

func TestEvaluateConsentParent(t *testing.T) {
	t.Parallel()

	got := EvaluateConsent(nil, RelationshipParent, time.Now())
	require.Equal(t, AccessFull, got.AccessLevel)
	require.False(t, got.RequiresConsent)
	require.True(t, got.Eligible)
	require.Equal(t, AgeUnknown, got.AgeYears)
}

func TestEvaluateConsentUnknownBirthYear(t *testing.T) {
	t.Parallel()

	got := EvaluateConsent(nil, RelationshipChild, time.Now())
	require.Equal(t, AccessBlocked, got.AccessLevel)
	require.True(t, got.RequiresConsent)
	require.True(t, got.Eligible)
}

func TestConsentActive(t *testing.T) {
	t.Parallel()

	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	require.True(t, ProfileAccessRecord{
		ConsentGiven:     true,
		ConsentExpiresAt: &future,
	}.ConsentActive(now))

	require.False(t, ProfileAccessRecord{
		ConsentGiven:     true,
		ConsentExpiresAt: &past,
	}.ConsentActive(now))

	require.False(t, ProfileAccessRecord{
		ConsentGiven: false,
	}.ConsentActive(now))

	require.False(t, ProfileAccessRecord{
		ConsentGiven: true,
	}.ConsentActive(now))
}
