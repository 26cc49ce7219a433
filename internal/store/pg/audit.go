package pg

import (
	"context"

	"qagaz.org/internal/audit"
	"qagaz.org/internal/ids"
)

// Append writes an activity-log row. The table is insert-only.
func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into activity_log (id, actor_id, document_id, branch_code, action, occurred_at, ip, user_agent)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.ActorID, e.DocumentID, e.BranchCode, e.Action, e.OccurredAt,
		nullIfEmpty(e.IP), nullIfEmpty(e.UserAgent))
	return err
}

// Activity returns the activity-log rows of a document, newest first.
func (s *Store) Activity(ctx context.Context, documentID string, limit int) ([]audit.Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, actor_id, document_id, branch_code, action, occurred_at,
			coalesce(ip, ''), coalesce(user_agent, '')
		from activity_log
		where document_id = $1
		order by occurred_at desc, id desc
		limit $2
	`, documentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.DocumentID, &e.BranchCode, &e.Action,
			&e.OccurredAt, &e.IP, &e.UserAgent); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
