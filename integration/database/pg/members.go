package pg

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmitrymomot/mailbox/core/logger"
	"github.com/dmitrymomot/mailbox/core/stream"
)

// DefaultUserHeader carries the caller's user ID, set by the upstream gateway.
const DefaultUserHeader = "X-User-ID"

const (
	membershipQuery = `SELECT
	EXISTS (SELECT 1 FROM channels WHERE id = $1),
	EXISTS (SELECT 1 FROM channel_members WHERE channel_id = $1 AND user_id = $2)`

	createChannelQuery = `INSERT INTO channels (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`
	addMemberQuery     = `INSERT INTO channel_members (channel_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	removeMemberQuery  = `DELETE FROM channel_members WHERE channel_id = $1 AND user_id = $2`
)

// MemberStore keeps channel membership in Postgres and authorizes stream
// requests against it.
type MemberStore struct {
	pool   Pool
	header string
	logger *slog.Logger
}

var _ stream.Authorizer = (*MemberStore)(nil)

// MemberStoreOption configures a MemberStore.
type MemberStoreOption func(*MemberStore)

// WithUserHeader sets the request header holding the user ID.
func WithUserHeader(name string) MemberStoreOption {
	return func(s *MemberStore) {
		if name != "" {
			s.header = name
		}
	}
}

// WithLogger sets the logger for lookup failures.
func WithLogger(l *slog.Logger) MemberStoreOption {
	return func(s *MemberStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewMemberStore creates a store that borrows connections from pool.
func NewMemberStore(pool Pool, opts ...MemberStoreOption) (*MemberStore, error) {
	if pool == nil {
		return nil, ErrNilPool
	}
	s := &MemberStore{
		pool:   pool,
		header: DefaultUserHeader,
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Authorize allows the request when the user in the header belongs to the
// channel named by topic.
func (s *MemberStore) Authorize(r *http.Request, topic string) (string, error) {
	userID := strings.TrimSpace(r.Header.Get(s.header))
	if userID == "" {
		return "", stream.ErrUnauthorized
	}

	var exists, member bool
	err := withQuerier(r.Context(), s.pool, func(ctx context.Context, q Querier) error {
		return q.QueryRow(ctx, membershipQuery, topic, userID).Scan(&exists, &member)
	})
	if err != nil {
		s.logger.ErrorContext(r.Context(), "membership lookup failed",
			logger.Topic(topic),
			logger.Error(err))
		return "", errors.Join(ErrMembershipLookup, err)
	}

	switch {
	case !exists:
		return "", stream.ErrTopicNotFound
	case !member:
		return "", stream.ErrForbidden
	}
	return userID, nil
}

// CreateChannel registers a channel. Creating an existing channel is a no-op.
func (s *MemberStore) CreateChannel(ctx context.Context, channelID string) error {
	return withQuerier(ctx, s.pool, func(ctx context.Context, q Querier) error {
		_, err := q.Exec(ctx, createChannelQuery, channelID)
		return err
	})
}

// AddMember adds userID to the channel. Adding an existing member is a no-op.
func (s *MemberStore) AddMember(ctx context.Context, channelID, userID string) error {
	return withQuerier(ctx, s.pool, func(ctx context.Context, q Querier) error {
		_, err := q.Exec(ctx, addMemberQuery, channelID, userID)
		return err
	})
}

// RemoveMember removes userID from the channel and reports whether it was a member.
func (s *MemberStore) RemoveMember(ctx context.Context, channelID, userID string) (bool, error) {
	var removed bool
	err := withQuerier(ctx, s.pool, func(ctx context.Context, q Querier) error {
		tag, err := q.Exec(ctx, removeMemberQuery, channelID, userID)
		removed = tag.RowsAffected() > 0
		return err
	})
	return removed, err
}
