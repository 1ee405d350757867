package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver registration.
	_ "modernc.org/sqlite"             // SQLite driver registration.

	"release_bot/internal/model"
	"release_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// Supported SQL dialects.
const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)

// SQL implements Storage on top of database/sql, backed by SQLite or Postgres.
type SQL struct {
	db      *sql.DB
	dialect string
}

// DialectFor returns the dialect implied by a database URL.
// Postgres URLs select Postgres; anything else is treated as a SQLite path.
func DialectFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// DriverName returns the database/sql driver registered for a dialect.
func DriverName(dialect string) string {
	if dialect == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// NewSQL opens the database at dsn and runs pending migrations.
func NewSQL(dsn string) (*SQL, error) {
	dialect := DialectFor(dsn)
	db, err := sql.Open(DriverName(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// One connection serializes writes and keeps ":memory:" databases shared.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}

	if err := migrations.Run(db, dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQL{db: db, dialect: dialect}, nil
}

// Close closes the underlying database connection.
func (s *SQL) Close() error {
	return s.db.Close()
}

// GetEpisode returns the announcement record for an episode ID.
func (s *SQL) GetEpisode(ctx context.Context, id string) (*model.AnnouncedEpisode, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, title, description, series_id, series_title, season_id, season_number, number, audio_locale, announced_at
		 FROM episodes WHERE id = ?`), id,
	)
	var ep model.AnnouncedEpisode
	var desc sql.NullString
	var announced string
	err := row.Scan(&ep.ID, &ep.Title, &desc, &ep.SeriesID, &ep.SeriesTitle, &ep.SeasonID,
		&ep.SeasonNumber, &ep.EpisodeNumber, &ep.AudioLocale, &announced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan episode: %w", err)
	}
	ep.Description = desc.String
	ep.AnnouncedAt, _ = time.Parse(timeLayout, announced)
	return &ep, nil
}

// HasEpisode checks whether an episode has already been announced.
func (s *SQL) HasEpisode(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM episodes WHERE id = ?`), id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check episode: %w", err)
	}
	return count > 0, nil
}

// CreateEpisode inserts an announcement record if none exists for its ID.
// It returns ErrDuplicate when the episode was already recorded.
func (s *SQL) CreateEpisode(ctx context.Context, ep *model.AnnouncedEpisode) error {
	if ep.AnnouncedAt.IsZero() {
		ep.AnnouncedAt = time.Now().UTC().Truncate(time.Second)
	}
	res, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO episodes (id, title, description, series_id, series_title, season_id, season_number, number, audio_locale, announced_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`),
		ep.ID, ep.Title, ep.Description, ep.SeriesID, ep.SeriesTitle, ep.SeasonID,
		ep.SeasonNumber, ep.EpisodeNumber, ep.AudioLocale, ep.AnnouncedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("insert episode %s: %w", ep.ID, ErrDuplicate)
	}
	return nil
}

// GetUser returns a single user by chat-platform ID.
func (s *SQL) GetUser(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, name, username, is_admin, created_at FROM users WHERE id = ?`), id,
	)
	var u model.User
	var username sql.NullString
	var created string
	err := row.Scan(&u.ID, &u.Name, &username, &u.IsAdmin, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Username = username.String
	u.CreatedAt, _ = time.Parse(timeLayout, created)
	return &u, nil
}

// GetOrCreateUser returns the stored user, inserting u first if it is unknown.
// Name and username of an existing user are left untouched.
func (s *SQL) GetOrCreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	now := time.Now().UTC().Format(timeLayout)
	var username *string
	if u.Username != "" {
		username = &u.Username
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO users (id, name, username, is_admin, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`),
		u.ID, u.Name, username, false, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetUser(ctx, u.ID)
}

// SetAdmin updates the admin flag of an existing user.
func (s *SQL) SetAdmin(ctx context.Context, id int64, isAdmin bool) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE users SET is_admin = ? WHERE id = ?`), isAdmin, id)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// rebind rewrites ? placeholders into the dialect's bind syntax.
func (s *SQL) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
