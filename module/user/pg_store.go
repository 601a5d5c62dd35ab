package user

import (
	"context"
	"errors"

	"PPRealtime/module/chat/model"
	"PPRealtime/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore keeps device tokens and notification settings in Postgres.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(ctx context.Context, dsn string) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errs.WrapMsg(err, "pgxpool new")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.WrapMsg(err, "postgres ping")
	}
	s := &PgStore{pool: pool}
	if err := s.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgStore) Close() {
	s.pool.Close()
}

func (s *PgStore) init(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS device_tokens (
			user_id    TEXT NOT NULL,
			token      TEXT NOT NULL,
			platform   TEXT NOT NULL,
			is_active  BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (token)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_device_tokens_user ON device_tokens(user_id) WHERE is_active`,
		`CREATE TABLE IF NOT EXISTS notification_settings (
			user_id               TEXT PRIMARY KEY,
			enabled               BOOLEAN NOT NULL DEFAULT TRUE,
			show_preview          BOOLEAN NOT NULL DEFAULT TRUE,
			message_notifications BOOLEAN NOT NULL DEFAULT TRUE,
			group_notifications   BOOLEAN NOT NULL DEFAULT TRUE,
			sound                 BOOLEAN NOT NULL DEFAULT TRUE
		)`,
	}
	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return errs.WrapMsg(err, "init schema")
		}
	}
	return nil
}

// RegisterToken binds token to userID; a token moving to another user is
// re-owned.
func (s *PgStore) RegisterToken(ctx context.Context, t model.DeviceToken) error {
	if t.UserID == "" || t.Token == "" {
		return errs.ErrArgs.WrapMsg("user id and token required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO device_tokens (user_id, token, platform, is_active, updated_at)
		VALUES ($1, $2, $3, TRUE, now())
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform, is_active = TRUE, updated_at = now()`,
		t.UserID, t.Token, string(t.Platform))
	return errs.Wrap(err)
}

func (s *PgStore) DeactivateToken(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE device_tokens SET is_active = FALSE, updated_at = now() WHERE token = $1`, token)
	return errs.Wrap(err)
}

func (s *PgStore) ActiveTokens(ctx context.Context, userID string) ([]model.DeviceToken, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, token, platform, is_active FROM device_tokens
		 WHERE user_id = $1 AND is_active ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	defer rows.Close()

	var out []model.DeviceToken
	for rows.Next() {
		var (
			t        model.DeviceToken
			platform string
		)
		if err := rows.Scan(&t.UserID, &t.Token, &platform, &t.Active); err != nil {
			return nil, errs.Wrap(err)
		}
		t.Platform = model.ParsePlatform(platform)
		out = append(out, t)
	}
	return out, errs.Wrap(rows.Err())
}

// Settings falls back to the defaults when the user never saved any.
func (s *PgStore) Settings(ctx context.Context, userID string) (model.NotificationSettings, error) {
	st := model.NotificationSettings{UserID: userID}
	err := s.pool.QueryRow(ctx, `
		SELECT enabled, show_preview, message_notifications, group_notifications, sound
		FROM notification_settings WHERE user_id = $1`, userID).
		Scan(&st.Enabled, &st.ShowPreview, &st.MessageNotifications, &st.GroupNotifications, &st.Sound)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DefaultNotificationSettings(userID), nil
	}
	if err != nil {
		return st, errs.Wrap(err)
	}
	return st, nil
}

func (s *PgStore) SaveSettings(ctx context.Context, st model.NotificationSettings) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_settings
			(user_id, enabled, show_preview, message_notifications, group_notifications, sound)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			show_preview = EXCLUDED.show_preview,
			message_notifications = EXCLUDED.message_notifications,
			group_notifications = EXCLUDED.group_notifications,
			sound = EXCLUDED.sound`,
		st.UserID, st.Enabled, st.ShowPreview, st.MessageNotifications, st.GroupNotifications, st.Sound)
	return errs.Wrap(err)
}
