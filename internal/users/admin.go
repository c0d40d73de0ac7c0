package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
)

// ListPending returns accounts awaiting approval, newest request first.
func (s *Store) ListPending(ctx context.Context) ([]models.PendingUser, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT u.id, u.name, u.username, u.email, u.approved, u.role, u.created_at, u.password_hash, p.requested_at
		FROM pending_users p
		JOIN users u ON u.id = p.user_id
		ORDER BY p.requested_at DESC, u.rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("users: list pending: %w", err)
	}
	defer rows.Close()

	out := []models.PendingUser{}
	for rows.Next() {
		var p models.PendingUser
		var role, hash string
		if err := rows.Scan(&p.ID, &p.Name, &p.Username, &p.Email, &p.Approved, &role, &p.CreatedAt,
			&hash, &p.RequestedAt); err != nil {
			return nil, err
		}
		p.Role = models.Role(role)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListActive returns approved accounts, newest first. A non-empty query
// keeps only accounts whose name, email, or username contains it under
// Unicode case folding.
func (s *Store) ListActive(ctx context.Context, query string) ([]models.User, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE approved = 1 ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("users: list active: %w", err)
	}
	defer rows.Close()

	fold := cases.Fold()
	q := fold.String(strings.TrimSpace(query))
	out := []models.User{}
	for rows.Next() {
		u, _, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		if q != "" &&
			!strings.Contains(fold.String(u.Name), q) &&
			!strings.Contains(fold.String(u.Email), q) &&
			!strings.Contains(fold.String(u.Username), q) {
			continue
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Approve marks the account approved and removes it from the pending queue.
func (s *Store) Approve(ctx context.Context, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("users: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.ExecContext(ctx, `UPDATE users SET approved = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("users: approve: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("users: approve %s: %w", id, apperr.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_users WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("users: clear pending: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info("users: approved", slog.String("id", id))
	return nil
}

// Reject deletes the account along with its pending entry.
func (s *Store) Reject(ctx context.Context, id string) error {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if u.Role == models.RoleAdmin {
		return fmt.Errorf("users: reject %s: administrators cannot be removed: %w", id, apperr.ErrForbidden)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("users: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	for _, stmt := range []string{
		`DELETE FROM pending_users WHERE user_id = ?`,
		`DELETE FROM reset_tokens WHERE user_id = ?`,
		`DELETE FROM users WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("users: reject: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info("users: rejected", slog.String("id", id))
	return nil
}

// ChangeRole sets a non-admin account's role to user or moderator.
func (s *Store) ChangeRole(ctx context.Context, id string, role models.Role) error {
	if role != models.RoleUser && role != models.RoleModerator {
		return fmt.Errorf("users: role %q cannot be assigned: %w", role, apperr.ErrInvalidInput)
	}
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if u.Role == models.RoleAdmin {
		return fmt.Errorf("users: change role %s: %w", id, apperr.ErrForbidden)
	}
	if _, err := s.conn.ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, string(role), id); err != nil {
		return fmt.Errorf("users: change role: %w", err)
	}
	s.logger.Info("users: role changed", slog.String("id", id), slog.String("role", string(role)))
	return nil
}
