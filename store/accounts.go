package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Account is one linked user. user_token and discord_id are each unique across
// all rows; no two accounts may share either.
type Account struct {
	ID           int64     `json:"-" db:"id"`
	UserToken    string    `json:"-" db:"user_token"`
	DiscordID    int64     `json:"discord_id" db:"discord_id"`
	BetaTester   bool      `json:"beta_tester" db:"beta_tester"`
	HighestLevel int       `json:"highest_level" db:"highest_level"`
	TotalDeaths  int       `json:"total_deaths" db:"total_deaths"`
	GameComplete bool      `json:"game_complete" db:"game_complete"`
	SecretsFound int       `json:"secrets_found" db:"secrets_found"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Progress is the client-submitted snapshot of game state. An update replaces
// the stored attribute set wholesale.
type Progress struct {
	HighestLevel int  `json:"highest_level"`
	TotalDeaths  int  `json:"total_deaths"`
	GameComplete bool `json:"game_complete"`
	SecretsFound int  `json:"secrets_found"`
}

// Store provides manual-SQL data access to accounts.
type Store struct {
	DB *DB
}

func New(db *DB) *Store {
	return &Store{DB: db}
}

func (s *Store) ensureDB() (*sqlx.DB, error) {
	if s == nil || s.DB == nil || s.DB.DB == nil {
		return nil, fmt.Errorf("nil db")
	}
	return s.DB.DB, nil
}

// Acquire verifies a usable storage handle before a workflow runs. The pool
// owns connection liveness; this only rejects an unconfigured store.
func (s *Store) Acquire(ctx context.Context) error {
	_, err := s.ensureDB()
	return err
}

func (s *Store) AccountByToken(ctx context.Context, token string) (*Account, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	stmt := s.DB.Rebind("SELECT * FROM accounts WHERE user_token = ?")
	var acct Account
	if err := db.GetContext(ctx, &acct, stmt, token); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (s *Store) AccountByDiscordID(ctx context.Context, discordID int64) (*Account, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	stmt := s.DB.Rebind("SELECT * FROM accounts WHERE discord_id = ?")
	var acct Account
	if err := db.GetContext(ctx, &acct, stmt, discordID); err != nil {
		return nil, err
	}
	return &acct, nil
}

// CreateAccount inserts a new account row. Uniqueness of user_token and
// discord_id is enforced by the schema; a loser of a concurrent create
// surfaces here as a unique violation.
func (s *Store) CreateAccount(ctx context.Context, token string, discordID int64, betaTester bool, progress Progress) (*Account, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	stmt := s.DB.Rebind(`INSERT INTO accounts(
		user_token, discord_id, beta_tester, highest_level, total_deaths, game_complete, secrets_found, created_at, updated_at
	) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	res, err := db.ExecContext(ctx, stmt,
		token,
		discordID,
		betaTester,
		progress.HighestLevel,
		progress.TotalDeaths,
		progress.GameComplete,
		progress.SecretsFound,
		now,
		now,
	)
	if err != nil {
		return nil, err
	}
	acct := Account{
		UserToken:    token,
		DiscordID:    discordID,
		BetaTester:   betaTester,
		HighestLevel: progress.HighestLevel,
		TotalDeaths:  progress.TotalDeaths,
		GameComplete: progress.GameComplete,
		SecretsFound: progress.SecretsFound,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if id, err := res.LastInsertId(); err == nil {
		acct.ID = id
	}
	return &acct, nil
}

// UpdateAccount replaces the channel flag and progress attributes of the row
// keyed by token and returns the post-update account. Updating a token with no
// row is an error, never an implicit create.
func (s *Store) UpdateAccount(ctx context.Context, token string, betaTester bool, progress Progress) (*Account, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	stmt := s.DB.Rebind(`UPDATE accounts SET
		beta_tester = ?, highest_level = ?, total_deaths = ?, game_complete = ?, secrets_found = ?, updated_at = ?
		WHERE user_token = ?`)
	res, err := db.ExecContext(ctx, stmt,
		betaTester,
		progress.HighestLevel,
		progress.TotalDeaths,
		progress.GameComplete,
		progress.SecretsFound,
		time.Now().UTC(),
		token,
	)
	if err != nil {
		return nil, err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, sql.ErrNoRows
	}
	return s.AccountByToken(ctx, token)
}

// IsNotFound returns true if the provided error is a not found error.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, sql.ErrNoRows) || strings.Contains(err.Error(), "no rows")
}

// IsUniqueViolation returns true when err is a unique-constraint failure from
// either driver (sqlite "UNIQUE constraint failed", postgres SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "23505")
}
