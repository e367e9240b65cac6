package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foxseedlab/bonfire/internal/dbpool"
	"github.com/foxseedlab/bonfire/internal/repository"
	"github.com/jackc/pgx/v5"
)

const storeCallTimeout = 5 * time.Second

type connPool interface {
	Acquire(ctx context.Context) (dbpool.Conn, error)
	Release(conn dbpool.Conn)
}

type PostgresRepository struct {
	pool connPool
}

func NewPostgresRepository(pool connPool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

// withConn runs fn on a pooled connection and logs any failure. The
// connection goes back to the pool on every path.
func (r *PostgresRepository) withConn(ctx context.Context, op string, fn func(ctx context.Context, conn dbpool.Conn) error) bool {
	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		slog.Error("failed to acquire database connection", "op", op, "error", err)
		return false
	}
	defer r.pool.Release(conn)

	if err := fn(ctx, conn); err != nil {
		slog.Error("database operation failed", "op", op, "error", err)
		return false
	}
	return true
}

func (r *PostgresRepository) IsTrackedUser(ctx context.Context, userID string) bool {
	var found bool
	r.withConn(ctx, "is_tracked_user", func(ctx context.Context, conn dbpool.Conn) error {
		return conn.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM tracked_users WHERE user_id = $1)`,
			userID).Scan(&found)
	})
	return found
}

func (r *PostgresRepository) IsTrackedChannel(ctx context.Context, channelID string) bool {
	var found bool
	r.withConn(ctx, "is_tracked_channel", func(ctx context.Context, conn dbpool.Conn) error {
		return conn.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM tracked_channels WHERE channel_id = $1 AND enabled = TRUE)`,
			channelID).Scan(&found)
	})
	return found
}

func (r *PostgresRepository) UpsertTrackedUser(ctx context.Context, user repository.TrackedUser) bool {
	return r.withConn(ctx, "upsert_tracked_user", func(ctx context.Context, conn dbpool.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO tracked_users (user_id, username, nickname, role_name)
			 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
			 ON CONFLICT (user_id) DO UPDATE SET
			   username = EXCLUDED.username,
			   nickname = EXCLUDED.nickname,
			   role_name = EXCLUDED.role_name`,
			user.UserID, user.Username, user.Nickname, user.RoleName)
		return err
	})
}

func (r *PostgresRepository) UpsertTrackedChannel(ctx context.Context, channel repository.TrackedChannel) bool {
	return r.withConn(ctx, "upsert_tracked_channel", func(ctx context.Context, conn dbpool.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO tracked_channels (channel_id, name, enabled)
			 VALUES ($1, $2, TRUE)
			 ON CONFLICT (channel_id) DO UPDATE SET name = EXCLUDED.name, enabled = TRUE`,
			channel.ChannelID, channel.Name)
		return err
	})
}

func (r *PostgresRepository) ListTrackedUsers(ctx context.Context) []repository.TrackedUser {
	var list []repository.TrackedUser
	r.withConn(ctx, "list_tracked_users", func(ctx context.Context, conn dbpool.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT user_id, username, COALESCE(nickname, ''), COALESCE(role_name, '')
			 FROM tracked_users ORDER BY username ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var u repository.TrackedUser
			if err := rows.Scan(&u.UserID, &u.Username, &u.Nickname, &u.RoleName); err != nil {
				return err
			}
			list = append(list, u)
		}
		return rows.Err()
	})
	return list
}

func (r *PostgresRepository) ListTrackedChannels(ctx context.Context) []repository.TrackedChannel {
	var list []repository.TrackedChannel
	r.withConn(ctx, "list_tracked_channels", func(ctx context.Context, conn dbpool.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT channel_id, name, enabled FROM tracked_channels WHERE enabled = TRUE ORDER BY name ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c repository.TrackedChannel
			if err := rows.Scan(&c.ChannelID, &c.Name, &c.Enabled); err != nil {
				return err
			}
			list = append(list, c)
		}
		return rows.Err()
	})
	return list
}

func (r *PostgresRepository) DeleteTrackedUser(ctx context.Context, userID string) bool {
	return r.withConn(ctx, "delete_tracked_user", func(ctx context.Context, conn dbpool.Conn) error {
		_, err := conn.Exec(ctx,
			`WITH removed_sessions AS (DELETE FROM voice_sessions WHERE user_id = $1)
			 DELETE FROM tracked_users WHERE user_id = $1`,
			userID)
		return err
	})
}

func (r *PostgresRepository) DisableTrackedChannel(ctx context.Context, channelID string) bool {
	return r.withConn(ctx, "disable_tracked_channel", func(ctx context.Context, conn dbpool.Conn) error {
		_, err := conn.Exec(ctx,
			`UPDATE tracked_channels SET enabled = FALSE WHERE channel_id = $1`,
			channelID)
		return err
	})
}

func (r *PostgresRepository) FindOpenRecordKey(ctx context.Context, userID string, startTime time.Time) (int64, bool) {
	var (
		id    int64
		found bool
	)
	r.withConn(ctx, "find_open_record_key", func(ctx context.Context, conn dbpool.Conn) error {
		var err error
		id, found, err = findRecordKey(ctx, conn, userID, startTime)
		return err
	})
	return id, found
}

func findRecordKey(ctx context.Context, conn dbpool.Conn, userID string, startTime time.Time) (int64, bool, error) {
	var id int64
	err := conn.QueryRow(ctx,
		`SELECT id FROM voice_sessions WHERE user_id = $1 AND start_time = $2`,
		userID, startTime).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

// CloseOrInsertSession persists a finished interval. A second close for the
// same (user_id, start_time) rewrites the existing row, so retries never
// produce duplicates. Check-then-act is safe here because only the tracker
// that opened an interval ever closes it.
func (r *PostgresRepository) CloseOrInsertSession(ctx context.Context, record repository.SessionRecord) bool {
	if record.DurationSec < int64(repository.MinSessionDuration/time.Second) {
		slog.Debug("discarding session below minimum duration", "user_id", record.UserID, "duration_sec", record.DurationSec)
		return false
	}
	return r.withConn(ctx, "close_or_insert_session", func(ctx context.Context, conn dbpool.Conn) error {
		id, found, err := findRecordKey(ctx, conn, record.UserID, record.StartTime)
		if err != nil {
			return fmt.Errorf("lookup existing record: %w", err)
		}
		if found {
			_, err = conn.Exec(ctx,
				`UPDATE voice_sessions SET end_time = $2, duration_sec = $3, created_at = $4 WHERE id = $1`,
				id, record.EndTime, record.DurationSec, record.EndTime)
			return err
		}
		_, err = conn.Exec(ctx,
			`INSERT INTO voice_sessions (user_id, username, channel_id, channel_name, start_time, end_time, duration_sec)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			record.UserID, record.Username, record.ChannelID, record.ChannelName,
			record.StartTime, record.EndTime, record.DurationSec)
		return err
	})
}

const selectRecordColumns = `SELECT id, user_id, username, channel_id, channel_name, start_time, end_time, duration_sec, created_at FROM voice_sessions`

func buildRecordQuery(filter repository.RecordFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		conds = append(conds, fmt.Sprintf("start_time >= $%d", len(args)))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until)
		conds = append(conds, fmt.Sprintf("start_time <= $%d", len(args)))
	}
	query := selectRecordColumns
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query + " ORDER BY username ASC, start_time ASC", args
}

func (r *PostgresRepository) QueryRecords(ctx context.Context, filter repository.RecordFilter) []repository.SessionRecord {
	var list []repository.SessionRecord
	query, args := buildRecordQuery(filter)
	r.withConn(ctx, "query_records", func(ctx context.Context, conn dbpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var rec repository.SessionRecord
			if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Username, &rec.ChannelID, &rec.ChannelName,
				&rec.StartTime, &rec.EndTime, &rec.DurationSec, &rec.CreatedAt); err != nil {
				return err
			}
			list = append(list, rec)
		}
		return rows.Err()
	})
	return list
}

func (r *PostgresRepository) QueryHeatmapRecords(ctx context.Context, since time.Time) []repository.SessionRecord {
	var list []repository.SessionRecord
	r.withConn(ctx, "query_heatmap_records", func(ctx context.Context, conn dbpool.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT vs.id, vs.user_id, COALESCE(tu.username, vs.username), COALESCE(tu.nickname, ''),
			        vs.start_time, vs.duration_sec
			 FROM voice_sessions vs
			 LEFT JOIN tracked_users tu ON vs.user_id = tu.user_id
			 WHERE vs.start_time >= $1
			 ORDER BY vs.start_time ASC`,
			since)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var rec repository.SessionRecord
			if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Username, &rec.Nickname, &rec.StartTime, &rec.DurationSec); err != nil {
				return err
			}
			list = append(list, rec)
		}
		return rows.Err()
	})
	return list
}

func (r *PostgresRepository) ListRecordedUsers(ctx context.Context) []repository.RecordedUser {
	var list []repository.RecordedUser
	r.withConn(ctx, "list_recorded_users", func(ctx context.Context, conn dbpool.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT DISTINCT user_id, username FROM voice_sessions ORDER BY username ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var u repository.RecordedUser
			if err := rows.Scan(&u.UserID, &u.Username); err != nil {
				return err
			}
			list = append(list, u)
		}
		return rows.Err()
	})
	return list
}

func (r *PostgresRepository) InsertNote(ctx context.Context, note repository.ScarNote) bool {
	return r.withConn(ctx, "insert_note", func(ctx context.Context, conn dbpool.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO scar_notes (target_user_id, target_username, added_by_id, added_by_name, content)
			 VALUES ($1, $2, $3, $4, $5)`,
			note.TargetUserID, note.TargetUsername, note.AddedByID, note.AddedByName, note.Content)
		return err
	})
}

func (r *PostgresRepository) ListNotes(ctx context.Context) []repository.ScarNote {
	var list []repository.ScarNote
	r.withConn(ctx, "list_notes", func(ctx context.Context, conn dbpool.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT id, target_user_id, target_username, content, added_by_id, added_by_name, created_at
			 FROM scar_notes ORDER BY id DESC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var n repository.ScarNote
			if err := rows.Scan(&n.ID, &n.TargetUserID, &n.TargetUsername, &n.Content, &n.AddedByID, &n.AddedByName, &n.CreatedAt); err != nil {
				return err
			}
			list = append(list, n)
		}
		return rows.Err()
	})
	return list
}
