package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"pulsebot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- settings ----

func (s *sqliteStore) SaveSettings(ctx context.Context, u UserSettings) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	anchors, err := json.Marshal(u.Cadence.Anchors)
	if err != nil {
		return err
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings(user_id, chat_id, enabled, anchors, randomize, skip_weekends, work_start, work_end, timezone, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   chat_id=excluded.chat_id, enabled=excluded.enabled, anchors=excluded.anchors,
		   randomize=excluded.randomize, skip_weekends=excluded.skip_weekends,
		   work_start=excluded.work_start, work_end=excluded.work_end,
		   timezone=excluded.timezone, updated_at=excluded.updated_at`,
		u.UserID, u.ChatID, boolInt(u.Cadence.Enabled), string(anchors),
		boolInt(u.Cadence.Randomize), boolInt(u.Cadence.SkipWeekends),
		u.WorkStart, u.WorkEnd, u.Timezone, u.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) GetSettings(ctx context.Context, userID int64) (UserSettings, bool, error) {
	if s == nil || s.db == nil {
		return UserSettings{}, false, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, chat_id, enabled, anchors, randomize, skip_weekends, work_start, work_end, timezone, updated_at
		 FROM settings WHERE user_id = ?`, userID)
	u, err := scanSettings(row)
	if errors.Is(err, sql.ErrNoRows) {
		return UserSettings{}, false, nil
	}
	if err != nil {
		return UserSettings{}, false, err
	}
	return u, true, nil
}

func (s *sqliteStore) ListEnabledSettings(ctx context.Context) ([]UserSettings, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, chat_id, enabled, anchors, randomize, skip_weekends, work_start, work_end, timezone, updated_at
		 FROM settings WHERE enabled = 1 ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserSettings
	for rows.Next() {
		u, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettings(r rowScanner) (UserSettings, error) {
	var (
		u        UserSettings
		enabled  int
		anchors  string
		random   int
		weekends int
		updated  string
	)
	err := r.Scan(&u.UserID, &u.ChatID, &enabled, &anchors, &random, &weekends,
		&u.WorkStart, &u.WorkEnd, &u.Timezone, &updated)
	if err != nil {
		return UserSettings{}, err
	}
	u.Cadence.Enabled = enabled != 0
	u.Cadence.Randomize = random != 0
	u.Cadence.SkipWeekends = weekends != 0
	if err := json.Unmarshal([]byte(anchors), &u.Cadence.Anchors); err != nil {
		return UserSettings{}, fmt.Errorf("settings anchors for user %d: %w", u.UserID, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		u.UpdatedAt = t
	}
	return u, nil
}

// ---- claims ----

// TryClaim is the single synchronization point of the whole dispatch path.
// The insert-or-conditional-update below must stay one statement: splitting
// it into a read plus a write reintroduces the duplicate-send race.
func (s *sqliteStore) TryClaim(ctx context.Context, key string, now time.Time, ttl time.Duration, maxAttempts int) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	if key == "" {
		return false, errors.New("empty dedup key")
	}
	nowMS := now.UnixMilli()
	expiredBefore := now.Add(-ttl).UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO claims(dedup_key, status, claimed_at, attempts, last_error, updated_at)
		 VALUES(?1, ?2, ?3, 1, NULL, ?3)
		 ON CONFLICT(dedup_key) DO UPDATE SET
		   status = ?2, claimed_at = ?3, attempts = claims.attempts + 1, updated_at = ?3
		 WHERE (claims.status = ?2 AND claims.claimed_at <= ?4)
		    OR (claims.status = ?5 AND claims.attempts < ?6)`,
		key, string(ClaimClaimed), nowMS, expiredBefore, string(ClaimFailedTransient), maxAttempts,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) FinishClaim(ctx context.Context, key string, to ClaimStatus, lastErr string, maxAttempts int) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	nowMS := time.Now().UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`UPDATE claims SET
		   status = CASE WHEN ?1 = ?2 AND attempts >= ?3 THEN ?4 ELSE ?1 END,
		   last_error = ?5,
		   updated_at = ?6
		 WHERE dedup_key = ?7 AND status = ?8`,
		string(to), string(ClaimFailedTransient), maxAttempts, string(ClaimFailedPermanent),
		nullStr(lastErr), nowMS, key, string(ClaimClaimed),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) GetClaim(ctx context.Context, key string) (Claim, bool, error) {
	if s == nil || s.db == nil {
		return Claim{}, false, ErrDisabled
	}
	var (
		c         Claim
		status    string
		claimedMS int64
		lastErr   sql.NullString
		updatedMS int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT dedup_key, status, claimed_at, attempts, last_error, updated_at
		 FROM claims WHERE dedup_key = ?`, key,
	).Scan(&c.DedupKey, &status, &claimedMS, &c.Attempts, &lastErr, &updatedMS)
	if errors.Is(err, sql.ErrNoRows) {
		return Claim{}, false, nil
	}
	if err != nil {
		return Claim{}, false, err
	}
	c.Status = ClaimStatus(status)
	c.ClaimedAt = time.UnixMilli(claimedMS)
	c.UpdatedAt = time.UnixMilli(updatedMS)
	c.LastError = lastErr.String
	return c, true, nil
}

func (s *sqliteStore) PruneClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM claims WHERE status IN (?, ?) AND updated_at < ?`,
		string(ClaimSent), string(ClaimFailedPermanent), cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- audit ----

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, user_id, dedup_key, action, category, err, took_ms)
		 VALUES(?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.UserID, e.DedupKey, e.Action,
		nullStr(e.Category), nullStr(e.Error), e.TookMS,
	)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
