package changefeed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NotifyChannel is the channel the row triggers in the room schema notify on
const NotifyChannel = "watchparty_changes"

// PGListener relays Postgres row notifications into a Publisher
type PGListener struct {
	pool *pgxpool.Pool
	pub  Publisher
	log  *slog.Logger
}

func NewPGListener(pool *pgxpool.Pool, pub Publisher, log *slog.Logger) *PGListener {
	return &PGListener{pool, pub, log}
}

// Listen blocks until ctx is done or the connection fails. A cancelled
// ctx returns nil; anything else is returned as is, without reconnecting
func (l *PGListener) Listen(ctx context.Context) error {
	pooled, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listener connection: %w", err)
	}
	// LISTEN state is per connection, keep it out of the pool
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err)
	}

	l.log.Info("listening for row changes", "channel", NotifyChannel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.log.Info("row change listener stopped")
				return nil
			}
			return fmt.Errorf("failed waiting for notification: %w", err)
		}

		e, err := DecodeEvent([]byte(n.Payload))
		if err != nil {
			l.log.Warn("skipping malformed notification",
				"channel", n.Channel,
				"error", err)
			continue
		}

		l.pub.Publish(e)
	}
}
