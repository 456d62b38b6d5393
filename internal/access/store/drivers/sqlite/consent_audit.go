package sqlite

import (
	"context"

	"github.com/sgsgita/alumnigate/internal/access/domain"
)

// consentAuditRepo is append-only by construction: there is no UPDATE or
// DELETE statement for the audit table anywhere in this driver.
type consentAuditRepo struct {
	db querier
}

func (r *consentAuditRepo) AppendConsentAudit(ctx context.Context, e domain.ConsentAuditEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO consent_audit_entries
			(id, parent_profile_id, child_profile_id, action, ip, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		e.ID, e.ParentProfileID, e.ChildProfileID, string(e.Action),
		e.IP, e.UserAgent)
	return err
}

func (r *consentAuditRepo) ListConsentAuditByChild(ctx context.Context, childProfileID string) ([]domain.ConsentAuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, parent_profile_id, child_profile_id, action, ip, user_agent, created_at
		FROM consent_audit_entries
		WHERE child_profile_id = ?
		ORDER BY created_at ASC, id ASC`, childProfileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.ConsentAuditEntry
	for rows.Next() {
		var (
			e      domain.ConsentAuditEntry
			action string
		)
		if err := rows.Scan(&e.ID, &e.ParentProfileID, &e.ChildProfileID,
			&action, &e.IP, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = domain.ConsentAction(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
