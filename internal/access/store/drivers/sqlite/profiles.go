package sqlite

import (
	"context"
	"database/sql"

	"github.com/sgsgita/alumnigate/internal/access/domain"
)

type profilesRepo struct {
	db querier
}

func (r *profilesRepo) CreateProfileRecords(ctx context.Context, records []domain.ProfileAccessRecord) error {
	for _, rec := range records {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO profile_access_records
				(id, account_id, alumni_record_id, relationship, birth_year,
				 access_level, requires_consent, consent_given,
				 consent_granted_at, consent_expires_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
			rec.ID, rec.AccountID, rec.AlumniRecordID, string(rec.Relationship),
			mapIntNull(rec.BirthYear), string(rec.AccessLevel),
			rec.RequiresConsent, rec.ConsentGiven,
			mapTimeNull(rec.ConsentGrantedAt), mapTimeNull(rec.ConsentExpiresAt))
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *profilesRepo) GetProfileRecord(ctx context.Context, id string) (domain.ProfileAccessRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, alumni_record_id, relationship, birth_year,
		       access_level, requires_consent, consent_given,
		       consent_granted_at, consent_expires_at, created_at, updated_at
		FROM profile_access_records WHERE id = ?`, id)

	rec, err := scanProfileRecord(row)
	if err != nil {
		return domain.ProfileAccessRecord{}, mapNotFound(err)
	}
	return rec, nil
}

func (r *profilesRepo) ListProfileRecordsByAccount(ctx context.Context, accountID string) ([]domain.ProfileAccessRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, alumni_record_id, relationship, birth_year,
		       access_level, requires_consent, consent_given,
		       consent_granted_at, consent_expires_at, created_at, updated_at
		FROM profile_access_records
		WHERE account_id = ?
		ORDER BY created_at DESC, id DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.ProfileAccessRecord
	for rows.Next() {
		rec, err := scanProfileRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *profilesRepo) UpdateProfileConsent(ctx context.Context, rec domain.ProfileAccessRecord) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE profile_access_records
		SET access_level = ?, requires_consent = ?, consent_given = ?,
		    consent_granted_at = ?, consent_expires_at = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		string(rec.AccessLevel), rec.RequiresConsent, rec.ConsentGiven,
		mapTimeNull(rec.ConsentGrantedAt), mapTimeNull(rec.ConsentExpiresAt),
		rec.ID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfileRecord(row rowScanner) (domain.ProfileAccessRecord, error) {
	var (
		rec          domain.ProfileAccessRecord
		relationship string
		accessLevel  string
		birthYear    sql.NullInt64
		grantedAt    sql.NullTime
		expiresAt    sql.NullTime
	)

	err := row.Scan(&rec.ID, &rec.AccountID, &rec.AlumniRecordID, &relationship,
		&birthYear, &accessLevel, &rec.RequiresConsent, &rec.ConsentGiven,
		&grantedAt, &expiresAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return domain.ProfileAccessRecord{}, err
	}

	rec.Relationship = domain.Relationship(relationship)
	rec.AccessLevel = domain.AccessLevel(accessLevel)
	rec.BirthYear = mapNullInt(birthYear)
	rec.ConsentGrantedAt = mapNullTime(grantedAt)
	rec.ConsentExpiresAt = mapNullTime(expiresAt)
	return rec, nil
}
