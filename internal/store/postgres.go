package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email=$1)`, user.Email).Scan(&exists); err != nil {
		return User{}, fmt.Errorf("check user email: %w", err)
	}
	if exists {
		return User{}, &DuplicateError{Kind: "user", Field: "email"}
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash).Scan(&user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at
		FROM users
		WHERE email=$1
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ListUsersByEmailPrefix returns users whose email starts with the prefix.
// This is the partner-discovery lookup; LIKE metacharacters in the prefix
// are escaped so they match literally.
func (s *PostgresStore) ListUsersByEmailPrefix(ctx context.Context, prefix string) ([]User, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, email, created_at
		FROM users
		WHERE email LIKE $1 || '%' ESCAPE '\'
		ORDER BY email ASC
		LIMIT 20
	`, escaped)
	if err != nil {
		return nil, fmt.Errorf("list users by email prefix: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.DisplayName, &user.Email, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

// DeleteUser removes an account. Notes, tags, share grants, and refresh
// sessions cascade away with it.
func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ChangeUserName(ctx context.Context, userID, newName string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET display_name=$2 WHERE id=$1`, userID, newName)
	if err != nil {
		return fmt.Errorf("change user name: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("change user name rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) CreateNote(ctx context.Context, note Note) (Note, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notes (id, owner_id, heading, text)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, note.ID, note.OwnerID, note.Heading, note.Text).Scan(&note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}
	note.TagNames = []string{}
	note.Partners = []User{}
	return note, nil
}

// GetNote returns the note with its derived tag names and partner list. Every
// mutation path re-reads through here so callers always see durable state.
func (s *PostgresStore) GetNote(ctx context.Context, noteID string) (Note, error) {
	var note Note
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, heading, text, created_at, updated_at
		FROM notes
		WHERE id=$1
	`, noteID).Scan(&note.ID, &note.OwnerID, &note.Heading, &note.Text, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return Note{}, err
	}

	note.TagNames, err = s.noteTagNames(ctx, noteID)
	if err != nil {
		return Note{}, err
	}
	note.Partners, err = s.ListPartners(ctx, noteID)
	if err != nil {
		return Note{}, err
	}
	return note, nil
}

func (s *PostgresStore) noteTagNames(ctx context.Context, noteID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name
		FROM tags t
		JOIN note_tags nt ON nt.tag_id = t.id
		WHERE nt.note_id=$1
		ORDER BY t.name ASC
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("list note tag names: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tag name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag names: %w", err)
	}
	return names, nil
}

func (s *PostgresStore) ListPartners(ctx context.Context, noteID string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.display_name, u.email, u.created_at
		FROM users u
		JOIN shared_notes sn ON sn.user_id = u.id
		WHERE sn.note_id=$1
		ORDER BY u.display_name ASC
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("list partners: %w", err)
	}
	defer rows.Close()

	partners := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.DisplayName, &user.Email, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan partner: %w", err)
		}
		partners = append(partners, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partners: %w", err)
	}
	return partners, nil
}

func (s *PostgresStore) ListNotesByOwner(ctx context.Context, ownerID string) ([]Note, error) {
	return s.listNotes(ctx, `
		SELECT id, owner_id, heading, text, created_at, updated_at
		FROM notes
		WHERE owner_id=$1
		ORDER BY updated_at DESC
	`, ownerID)
}

func (s *PostgresStore) ListNotesByTag(ctx context.Context, tagID string) ([]Note, error) {
	return s.listNotes(ctx, `
		SELECT n.id, n.owner_id, n.heading, n.text, n.created_at, n.updated_at
		FROM notes n
		JOIN note_tags nt ON nt.note_id = n.id
		WHERE nt.tag_id=$1
		ORDER BY n.updated_at DESC
	`, tagID)
}

func (s *PostgresStore) listNotes(ctx context.Context, query string, arg any) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]Note, 0)
	for rows.Next() {
		var item Note
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Heading, &item.Text, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}

	for i := range items {
		if items[i].TagNames, err = s.noteTagNames(ctx, items[i].ID); err != nil {
			return nil, err
		}
		if items[i].Partners, err = s.ListPartners(ctx, items[i].ID); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// ListSharedWithUser returns the notes shared to a partner, with each note's
// owner resolved.
func (s *PostgresStore) ListSharedWithUser(ctx context.Context, partnerID string) ([]SharedNote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.heading, n.text, n.created_at, n.updated_at,
			u.id, u.display_name, u.email, u.created_at
		FROM notes n
		JOIN users u ON u.id = n.owner_id
		JOIN shared_notes sn ON sn.note_id = n.id
		WHERE sn.user_id=$1
		ORDER BY n.updated_at DESC
	`, partnerID)
	if err != nil {
		return nil, fmt.Errorf("list shared notes: %w", err)
	}
	defer rows.Close()

	items := make([]SharedNote, 0)
	for rows.Next() {
		var item SharedNote
		if err := rows.Scan(
			&item.ID,
			&item.Heading,
			&item.Text,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.Owner.ID,
			&item.Owner.DisplayName,
			&item.Owner.Email,
			&item.Owner.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan shared note: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shared notes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ChangeNoteHeading(ctx context.Context, noteID, newHeading string) error {
	return s.changeNoteField(ctx, `UPDATE notes SET heading=$2, updated_at=NOW() WHERE id=$1`, noteID, newHeading)
}

func (s *PostgresStore) ChangeNoteText(ctx context.Context, noteID, newText string) error {
	return s.changeNoteField(ctx, `UPDATE notes SET text=$2, updated_at=NOW() WHERE id=$1`, noteID, newText)
}

func (s *PostgresStore) changeNoteField(ctx context.Context, query, noteID, value string) error {
	result, err := s.db.ExecContext(ctx, query, noteID, value)
	if err != nil {
		return fmt.Errorf("change note field: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("change note field rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteNote(ctx context.Context, noteID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id=$1`, noteID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete note rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) CreateTag(ctx context.Context, tag Tag) (Tag, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM tags WHERE owner_id=$1 AND name=$2)
	`, tag.OwnerID, tag.Name).Scan(&exists); err != nil {
		return Tag{}, fmt.Errorf("check tag name: %w", err)
	}
	if exists {
		return Tag{}, &DuplicateError{Kind: "tag", Field: "name"}
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO tags (id, owner_id, name)
		VALUES ($1, $2, $3)
	`, tag.ID, tag.OwnerID, tag.Name); err != nil {
		return Tag{}, fmt.Errorf("insert tag: %w", err)
	}
	return tag, nil
}

func (s *PostgresStore) GetTag(ctx context.Context, tagID string) (Tag, error) {
	var tag Tag
	err := s.db.QueryRowContext(ctx, `SELECT id, owner_id, name FROM tags WHERE id=$1`, tagID).
		Scan(&tag.ID, &tag.OwnerID, &tag.Name)
	if err != nil {
		return Tag{}, err
	}
	return tag, nil
}

func (s *PostgresStore) ListTagsByOwner(ctx context.Context, ownerID string) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name
		FROM tags
		WHERE owner_id=$1
		ORDER BY name ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	items := make([]Tag, 0)
	for rows.Next() {
		var item Tag
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListTagsByNote(ctx context.Context, noteID string) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.owner_id, t.name
		FROM tags t
		JOIN note_tags nt ON nt.tag_id = t.id
		WHERE nt.note_id=$1
		ORDER BY t.name ASC
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("list note tags: %w", err)
	}
	defer rows.Close()

	items := make([]Tag, 0)
	for rows.Next() {
		var item Tag
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Name); err != nil {
			return nil, fmt.Errorf("scan note tag: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate note tags: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ChangeTagName(ctx context.Context, tagID, newName string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE tags SET name=$2 WHERE id=$1`, tagID, newName)
	if err != nil {
		return fmt.Errorf("change tag name: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("change tag name rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteTag(ctx context.Context, tagID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE id=$1`, tagID)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete tag rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AddNoteTag creates a note↔tag edge. Both endpoints must exist; adding an
// edge that is already present reports changed=false without touching the
// unique constraint.
func (s *PostgresStore) AddNoteTag(ctx context.Context, noteID, tagID string) (bool, error) {
	if err := s.requireExists(ctx, "note_tags", "note", `SELECT EXISTS(SELECT 1 FROM notes WHERE id=$1)`, noteID); err != nil {
		return false, err
	}
	if err := s.requireExists(ctx, "note_tags", "tag", `SELECT EXISTS(SELECT 1 FROM tags WHERE id=$1)`, tagID); err != nil {
		return false, err
	}

	var present bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM note_tags WHERE note_id=$1 AND tag_id=$2)
	`, noteID, tagID).Scan(&present); err != nil {
		return false, fmt.Errorf("check note tag edge: %w", err)
	}
	if present {
		return false, nil
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO note_tags (note_id, tag_id)
		VALUES ($1, $2)
		ON CONFLICT (note_id, tag_id) DO NOTHING
	`, noteID, tagID); err != nil {
		return false, fmt.Errorf("insert note tag edge: %w", err)
	}
	return true, nil
}

// RemoveNoteTag deletes a note↔tag edge. Removing an absent edge is not an
// error; the return reports whether an edge actually went away.
func (s *PostgresStore) RemoveNoteTag(ctx context.Context, noteID, tagID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM note_tags WHERE note_id=$1 AND tag_id=$2
	`, noteID, tagID)
	if err != nil {
		return false, fmt.Errorf("delete note tag edge: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete note tag edge rows: %w", err)
	}
	return affected > 0, nil
}

// ShareNote grants a user read access to a note, with the same contract as
// AddNoteTag.
func (s *PostgresStore) ShareNote(ctx context.Context, noteID, userID string) (bool, error) {
	if err := s.requireExists(ctx, "shared_notes", "note", `SELECT EXISTS(SELECT 1 FROM notes WHERE id=$1)`, noteID); err != nil {
		return false, err
	}
	if err := s.requireExists(ctx, "shared_notes", "user", `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, userID); err != nil {
		return false, err
	}

	var present bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM shared_notes WHERE note_id=$1 AND user_id=$2)
	`, noteID, userID).Scan(&present); err != nil {
		return false, fmt.Errorf("check share edge: %w", err)
	}
	if present {
		return false, nil
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO shared_notes (note_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (note_id, user_id) DO NOTHING
	`, noteID, userID); err != nil {
		return false, fmt.Errorf("insert share edge: %w", err)
	}
	return true, nil
}

// RevokeShare removes a user's read access. Idempotent.
func (s *PostgresStore) RevokeShare(ctx context.Context, noteID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM shared_notes WHERE note_id=$1 AND user_id=$2
	`, noteID, userID)
	if err != nil {
		return false, fmt.Errorf("delete share edge: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete share edge rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) requireExists(ctx context.Context, relation, kind, query, id string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return fmt.Errorf("check %s existence: %w", kind, err)
	}
	if !exists {
		return &RelationNotFoundError{Relation: relation, Kind: kind, ID: id}
	}
	return nil
}

func (s *PostgresStore) InsertAttachment(ctx context.Context, attachment Attachment) (Attachment, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO attachments (id, note_id, file_name, content_type, size_bytes, object_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, attachment.ID, attachment.NoteID, attachment.FileName, attachment.ContentType, attachment.SizeBytes, attachment.ObjectKey).Scan(&attachment.CreatedAt)
	if err != nil {
		return Attachment{}, fmt.Errorf("insert attachment: %w", err)
	}
	return attachment, nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, noteID, attachmentID string) (Attachment, error) {
	var item Attachment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, note_id, file_name, content_type, size_bytes, object_key, created_at
		FROM attachments
		WHERE note_id=$1 AND id=$2
	`, noteID, attachmentID).Scan(&item.ID, &item.NoteID, &item.FileName, &item.ContentType, &item.SizeBytes, &item.ObjectKey, &item.CreatedAt)
	if err != nil {
		return Attachment{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListAttachments(ctx context.Context, noteID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, note_id, file_name, content_type, size_bytes, object_key, created_at
		FROM attachments
		WHERE note_id=$1
		ORDER BY created_at ASC
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	items := make([]Attachment, 0)
	for rows.Next() {
		var item Attachment
		if err := rows.Scan(&item.ID, &item.NoteID, &item.FileName, &item.ContentType, &item.SizeBytes, &item.ObjectKey, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteAttachment(ctx context.Context, noteID, attachmentID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE note_id=$1 AND id=$2`, noteID, attachmentID)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete attachment rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, user.ID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.created_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}
