package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"qagaz.org/internal/document"
)

const documentColumns = `id, branch_code, ref_no, ref_date, subject, amount, status,
	disb_stage, disb_date, uploader_id, received_paper_at, sent_back_at, due_at,
	created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (document.Document, error) {
	var (
		doc      document.Document
		stage    string
		disbDate sql.NullTime
		received sql.NullTime
		sentBack sql.NullTime
		dueAt    sql.NullTime
	)
	err := row.Scan(&doc.ID, &doc.BranchCode, &doc.RefNo, &doc.RefDate, &doc.Subject,
		&doc.Amount, &doc.Status, &stage, &disbDate, &doc.UploaderID,
		&received, &sentBack, &dueAt, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return document.Document{}, err
	}
	doc.Disbursement.Stage = document.DisbursementStage(stage)
	if disbDate.Valid {
		t := disbDate.Time
		doc.Disbursement.Date = &t
	}
	if received.Valid {
		t := received.Time
		doc.ReceivedPaperAt = &t
	}
	if sentBack.Valid && dueAt.Valid {
		doc.Deadline = &document.Deadline{SentBackAt: sentBack.Time, DueAt: dueAt.Time}
	}
	return doc, nil
}

func (s *Store) Create(ctx context.Context, doc document.Document) error {
	_, err := s.db.ExecContext(ctx, `
		insert into documents (id, branch_code, ref_no, ref_date, subject, amount, status,
			disb_stage, uploader_id, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, doc.ID, doc.BranchCode, doc.RefNo, doc.RefDate, doc.Subject, doc.Amount,
		doc.Status, doc.Disbursement.Stage, doc.UploaderID, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return fmt.Errorf("document %s already exists", doc.ID)
			case pgErrForeignKeyViolation:
				return fmt.Errorf("%w: branch %d", document.ErrNotFound, doc.BranchCode)
			}
		}
		return err
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (document.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+documentColumns+`
		from documents
		where id = $1
	`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Document{}, fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	if err != nil {
		return document.Document{}, err
	}
	return doc, nil
}

func (s *Store) GetBatch(ctx context.Context, ids []string) ([]document.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+documentColumns+`
		from documents
		where id in (`+strings.Join(placeholders, ", ")+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]document.Document, len(ids))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		byID[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]document.Document, 0, len(ids))
	for _, id := range ids {
		doc, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", document.ErrNotFound, id)
		}
		out = append(out, doc)
	}
	return out, nil
}

const updateDocumentSQL = `
	update documents
	set status = $2, disb_stage = $3, disb_date = $4,
		received_paper_at = $5, sent_back_at = $6, due_at = $7, updated_at = $8
	where id = $1
`

func updateArgs(doc document.Document) []any {
	var sentBack, dueAt sql.NullTime
	if doc.Deadline != nil {
		sentBack = sql.NullTime{Time: doc.Deadline.SentBackAt, Valid: true}
		dueAt = sql.NullTime{Time: doc.Deadline.DueAt, Valid: true}
	}
	return []any{
		doc.ID, doc.Status, doc.Disbursement.Stage, nullIfZeroTime(doc.Disbursement.Date),
		nullIfZeroTime(doc.ReceivedPaperAt), sentBack, dueAt, doc.UpdatedAt,
	}
}

func (s *Store) Update(ctx context.Context, doc document.Document) error {
	res, err := s.db.ExecContext(ctx, updateDocumentSQL, updateArgs(doc)...)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: %s", document.ErrNotFound, doc.ID)
	}
	return nil
}

// UpdateBatch writes every document inside one serializable transaction:
// either all rows change or the transaction rolls back.
func (s *Store) UpdateBatch(ctx context.Context, docs []document.Document) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, doc := range docs {
		res, err := tx.ExecContext(ctx, updateDocumentSQL, updateArgs(doc)...)
		if err != nil {
			return err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if aff == 0 {
			return fmt.Errorf("%w: %s", document.ErrNotFound, doc.ID)
		}
	}
	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from documents where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	return nil
}

func (s *Store) List(ctx context.Context, f document.Filter) ([]document.Document, error) {
	var (
		conds []string
		args  []any
		idx   = 1
	)
	if f.BranchCode != nil {
		conds = append(conds, fmt.Sprintf("branch_code = $%d", idx))
		args = append(args, *f.BranchCode)
		idx++
	}
	if f.Status != nil {
		conds = append(conds, fmt.Sprintf("status = $%d", idx))
		args = append(args, *f.Status)
		idx++
	}
	if f.Stage != nil {
		conds = append(conds, fmt.Sprintf("disb_stage = $%d", idx))
		args = append(args, *f.Stage)
		idx++
	}
	query := `select ` + documentColumns + ` from documents`
	if len(conds) > 0 {
		query += ` where ` + strings.Join(conds, " and ")
	}
	query += ` order by created_at desc, id desc`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []document.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) AddComment(ctx context.Context, c document.Comment) error {
	_, err := s.db.ExecContext(ctx, `
		insert into document_comments (id, document_id, author_id, body, created_at)
		values ($1, $2, $3, $4, $5)
	`, c.ID, c.DocumentID, c.AuthorID, c.Body, c.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: %s", document.ErrNotFound, c.DocumentID)
		}
		return err
	}
	return nil
}

func (s *Store) Comments(ctx context.Context, documentID string) ([]document.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, document_id, author_id, body, created_at
		from document_comments
		where document_id = $1
		order by created_at, id
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []document.Comment
	for rows.Next() {
		var c document.Comment
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) AddFile(ctx context.Context, f document.File) error {
	_, err := s.db.ExecContext(ctx, `
		insert into document_files (id, document_id, item_index, name, storage_key, size_bytes, uploader_id, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, f.ID, f.DocumentID, f.ItemIndex, f.Name, f.StorageKey, f.Size, f.UploaderID, f.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: %s", document.ErrNotFound, f.DocumentID)
		}
		return err
	}
	return nil
}

func (s *Store) Files(ctx context.Context, documentID string) ([]document.File, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, document_id, item_index, name, storage_key, size_bytes, uploader_id, created_at
		from document_files
		where document_id = $1
		order by item_index, created_at
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []document.File
	for rows.Next() {
		var f document.File
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.ItemIndex, &f.Name, &f.StorageKey, &f.Size, &f.UploaderID, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
