package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stridebuddy/backend/internal/db"
	"github.com/stridebuddy/backend/internal/models"
)

// PostgresAccountRepository provides PostgreSQL-backed persistence for accounts.
type PostgresAccountRepository struct {
	pool db.Pool
}

// NewPostgresAccountRepository constructs an account repository backed by PostgreSQL.
func NewPostgresAccountRepository(pool db.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

// Create persists a new account record.
func (r *PostgresAccountRepository) Create(ctx context.Context, account models.Account) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO accounts (id, screen_name, screen_name_key, password_hash, avatar_url, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, account.ID, account.ScreenName, account.ScreenNameKey, account.Password, account.AvatarURL, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

const accountColumns = `id, screen_name, screen_name_key, password_hash, avatar_url, created_at, updated_at, reset_code, reset_expires_at`

// FindByScreenName fetches an account by its case-insensitive screen name.
func (r *PostgresAccountRepository) FindByScreenName(ctx context.Context, name string) (models.Account, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Account{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+accountColumns+`
        FROM accounts
        WHERE screen_name_key = $1
    `, models.NormalizeScreenName(name))

	return scanAccount(row)
}

// FindByID fetches an account by its identifier.
func (r *PostgresAccountRepository) FindByID(ctx context.Context, id string) (models.Account, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Account{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+accountColumns+`
        FROM accounts
        WHERE id = $1
    `, id)

	return scanAccount(row)
}

// UpdateCredential rotates the password hash and clears any pending reset code.
func (r *PostgresAccountRepository) UpdateCredential(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE accounts
        SET password_hash = $2, reset_code = NULL, reset_expires_at = NULL, updated_at = $3
        WHERE id = $1
    `, id, passwordHash, updatedAt)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetResetCode stores a password reset code and its expiry on the account.
func (r *PostgresAccountRepository) SetResetCode(ctx context.Context, id, code string, expiresAt time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE accounts
        SET reset_code = $2, reset_expires_at = $3
        WHERE id = $1
    `, id, code, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("set reset code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAvatarURL records the public location of the account's avatar image.
func (r *PostgresAccountRepository) SetAvatarURL(ctx context.Context, id, url string, updatedAt time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE accounts
        SET avatar_url = $2, updated_at = $3
        WHERE id = $1
    `, id, url, updatedAt)
	if err != nil {
		return fmt.Errorf("set avatar url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (models.Account, error) {
	var (
		account   models.Account
		resetCode sql.NullString
		resetExp  sql.NullTime
	)
	err := row.Scan(
		&account.ID, &account.ScreenName, &account.ScreenNameKey, &account.Password,
		&account.AvatarURL, &account.CreatedAt, &account.UpdatedAt, &resetCode, &resetExp,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, ErrNotFound
		}
		return models.Account{}, fmt.Errorf("scan account: %w", err)
	}

	if resetCode.Valid {
		account.ResetCode = resetCode.String
	}
	if resetExp.Valid {
		t := resetExp.Time.UTC()
		account.ResetExpiresAt = &t
	}
	return account, nil
}

// PostgresBuddyRepository provides PostgreSQL-backed persistence for buddy entries.
type PostgresBuddyRepository struct {
	pool db.Pool
}

// NewPostgresBuddyRepository constructs a buddy repository backed by PostgreSQL.
func NewPostgresBuddyRepository(pool db.Pool) *PostgresBuddyRepository {
	return &PostgresBuddyRepository{pool: pool}
}

// Add persists a new buddy entry.
func (r *PostgresBuddyRepository) Add(ctx context.Context, entry models.BuddyEntry) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO buddy_entries (id, owner_id, target_id, group_name, muted, blocked, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, entry.ID, entry.OwnerID, entry.TargetID, entry.Group, entry.Muted, entry.Blocked, entry.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrConflict
			case "23503":
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert buddy entry: %w", err)
	}

	return nil
}

// Remove deletes the owner's entry for the target. Deleting an absent entry
// is not an error.
func (r *PostgresBuddyRepository) Remove(ctx context.Context, ownerID, targetID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        DELETE FROM buddy_entries
        WHERE owner_id = $1 AND target_id = $2
    `, ownerID, targetID)
	if err != nil {
		return fmt.Errorf("delete buddy entry: %w", err)
	}
	return nil
}

// SetMute updates the mute flag on an existing entry.
func (r *PostgresBuddyRepository) SetMute(ctx context.Context, ownerID, targetID string, muted bool) error {
	return r.setFlag(ctx, "muted", ownerID, targetID, muted)
}

// SetBlock updates the block flag on an existing entry.
func (r *PostgresBuddyRepository) SetBlock(ctx context.Context, ownerID, targetID string, blocked bool) error {
	return r.setFlag(ctx, "blocked", ownerID, targetID, blocked)
}

func (r *PostgresBuddyRepository) setFlag(ctx context.Context, column, ownerID, targetID string, value bool) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE buddy_entries
        SET `+column+` = $3
        WHERE owner_id = $1 AND target_id = $2
    `, ownerID, targetID, value)
	if err != nil {
		return fmt.Errorf("update buddy %s flag: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForOwner returns the owner's entries joined with target account details,
// ordered by group name then target screen name.
func (r *PostgresBuddyRepository) ListForOwner(ctx context.Context, ownerID string) ([]models.BuddyEntry, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT b.id, b.owner_id, b.target_id, b.group_name, b.muted, b.blocked, b.created_at,
               a.screen_name, a.avatar_url
        FROM buddy_entries b
        JOIN accounts a ON a.id = b.target_id
        WHERE b.owner_id = $1
        ORDER BY b.group_name, a.screen_name_key
    `, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query buddy entries: %w", err)
	}
	defer rows.Close()

	var entries []models.BuddyEntry
	for rows.Next() {
		var entry models.BuddyEntry
		if err := rows.Scan(
			&entry.ID, &entry.OwnerID, &entry.TargetID, &entry.Group, &entry.Muted,
			&entry.Blocked, &entry.CreatedAt, &entry.TargetScreenName, &entry.TargetAvatarURL,
		); err != nil {
			return nil, fmt.Errorf("scan buddy entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buddy entries: %w", err)
	}

	return entries, nil
}

// IsBlocked reports whether either account's entry for the other carries the
// block flag. The record is directional; the check is deliberately not.
func (r *PostgresBuddyRepository) IsBlocked(ctx context.Context, accountA, accountB string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM buddy_entries
            WHERE blocked
              AND ((owner_id = $1 AND target_id = $2) OR (owner_id = $2 AND target_id = $1))
        )
    `, accountA, accountB)

	var blocked bool
	if err := row.Scan(&blocked); err != nil {
		return false, fmt.Errorf("check block: %w", err)
	}
	return blocked, nil
}

var _ AccountRepository = (*PostgresAccountRepository)(nil)
var _ BuddyRepository = (*PostgresBuddyRepository)(nil)
