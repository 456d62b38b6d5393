package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sgsgita/alumnigate/internal/access/domain"
	"github.com/sgsgita/alumnigate/internal/access/store"
	"github.com/sgsgita/alumnigate/pkg/idx"
	"github.com/sgsgita/alumnigate/pkg/slogx"
)

// ProfileClaim is one alumni record an account claims during onboarding.
type ProfileClaim struct {
	AlumniRecordID string
	Relationship   domain.Relationship
	BirthYear      *int
}

// ClaimOutcome reports what happened to a single claim.
type ClaimOutcome struct {
	AlumniRecordID string
	// Record is set when a profile record was created.
	Record *domain.ProfileAccessRecord
	// Blocked is set for under-14 claims: no record exists or will exist;
	// the claim stays data-only in the alumni source table.
	Blocked bool
	// ConsentRequired signals the next step for 14-17 claims.
	ConsentRequired bool
}

// OnboardingService turns claimed alumni records into profile access
// records, applying the consent evaluation per claim.
type OnboardingService struct {
	Store store.Store

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// ClaimProfiles evaluates every claim and persists the eligible ones as one
// all-or-nothing unit: either every eligible claim gets its record or none
// do. Under-14 claims never produce a record, only a blocking outcome.
func (s *OnboardingService) ClaimProfiles(
	ctx context.Context,
	accountID string,
	claims []ProfileClaim,
) ([]ClaimOutcome, error) {
	log := slogx.FromContext(ctx)

	if accountID == "" || len(claims) == 0 {
		return nil, ErrInvalidRequest
	}

	now := s.now()
	outcomes := make([]ClaimOutcome, 0, len(claims))
	records := make([]domain.ProfileAccessRecord, 0, len(claims))

	for _, claim := range claims {
		if claim.AlumniRecordID == "" {
			return nil, ErrInvalidRequest
		}

		eval := domain.EvaluateConsent(claim.BirthYear, claim.Relationship, now)

		if !eval.Eligible {
			log.Info("claim blocked by age gate",
				slog.String("account_id", accountID),
				slog.String("alumni_record_id", claim.AlumniRecordID),
				slog.Int("age_years", eval.AgeYears),
			)
			outcomes = append(outcomes, ClaimOutcome{
				AlumniRecordID: claim.AlumniRecordID,
				Blocked:        true,
			})
			continue
		}

		rec := domain.ProfileAccessRecord{
			ID:              idx.New().String(),
			AccountID:       accountID,
			AlumniRecordID:  claim.AlumniRecordID,
			Relationship:    claim.Relationship,
			BirthYear:       claim.BirthYear,
			AccessLevel:     eval.AccessLevel,
			RequiresConsent: eval.RequiresConsent,
		}
		records = append(records, rec)

		outcome := ClaimOutcome{
			AlumniRecordID:  claim.AlumniRecordID,
			ConsentRequired: eval.RequiresConsent,
		}
		outcomes = append(outcomes, outcome)
	}

	if len(records) > 0 {
		err := s.Store.WithTx(ctx, func(tx store.Tx) error {
			return tx.Profiles().CreateProfileRecords(ctx, records)
		})
		if err != nil {
			log.Error("failed to persist onboarding batch",
				slog.String("account_id", accountID),
				slog.Int("records", len(records)),
				slog.Any("error", err),
			)
			return nil, err
		}
	}

	// Attach the persisted records to their outcomes only after the
	// transaction committed; a failed batch reports no records at all.
	ri := 0
	for i := range outcomes {
		if outcomes[i].Blocked {
			continue
		}
		rec := records[ri]
		outcomes[i].Record = &rec
		ri++
	}

	log.Info("onboarding claims processed",
		slog.String("account_id", accountID),
		slog.Int("claimed", len(claims)),
		slog.Int("created", len(records)),
	)

	return outcomes, nil
}

func (s *OnboardingService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
