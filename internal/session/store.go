// Package session keeps per-user session state in Redis behind a signed
// cookie holding only the session id.
package session

import (
	"context"
	"encoding/base32"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "session:"

var _ sessions.Store = (*RedisStore)(nil)

// RedisStore is a sessions.Store that keeps gob-encoded session values in
// Redis. The cookie carries the session id signed with the store's codecs.
type RedisStore struct {
	client  redis.UniversalClient
	codecs  []securecookie.Codec
	options sessions.Options
	prefix  string
	ser     securecookie.GobEncoder
}

// StoreOption customizes a RedisStore.
type StoreOption func(*RedisStore)

// WithOptions sets the cookie options applied to new sessions.
func WithOptions(opts sessions.Options) StoreOption {
	return func(s *RedisStore) { s.options = opts }
}

// WithKeyPrefix sets the Redis key prefix.
func WithKeyPrefix(prefix string) StoreOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// NewRedisStore creates a store. keyPairs are passed to
// securecookie.CodecsFromPairs and allow key rotation.
func NewRedisStore(client redis.UniversalClient, keyPairs [][]byte, opts ...StoreOption) *RedisStore {
	s := &RedisStore{
		client: client,
		codecs: securecookie.CodecsFromPairs(keyPairs...),
		options: sessions.Options{
			Path:     "/",
			MaxAge:   86400 * 14,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
		prefix: defaultKeyPrefix,
	}
	for _, o := range opts {
		o(s)
	}
	for _, c := range s.codecs {
		if sc, ok := c.(*securecookie.SecureCookie); ok {
			sc.MaxAge(s.options.MaxAge)
		}
	}
	return s
}

// Get returns the session cached in the request registry, loading it on
// first use.
func (s *RedisStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session named by the request cookie. A missing, tampered or
// expired cookie yields a fresh session without error. A Redis failure is
// returned together with a fresh session.
func (s *RedisStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := s.options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	var id string
	if err := securecookie.DecodeMulti(name, c.Value, &id, s.codecs...); err != nil {
		return session, nil
	}

	found, err := s.load(r.Context(), id, session)
	if err != nil {
		return session, errors.Wrap(err, "load session")
	}
	if found {
		session.ID = id
		session.IsNew = false
	}
	return session, nil
}

// Save writes the session to Redis and sets the id cookie. A negative
// MaxAge deletes the session.
func (s *RedisStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	ctx := r.Context()

	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.client.Del(ctx, s.key(session.ID)).Err(); err != nil {
				return errors.Wrap(err, "delete session")
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = newID()
	}
	if err := s.store(ctx, session); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return errors.Wrap(err, "encode session cookie")
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

func (s *RedisStore) load(ctx context.Context, id string, session *sessions.Session) (bool, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.ser.Deserialize(data, &session.Values); err != nil {
		// Undecodable state is treated as a new session.
		return false, nil
	}
	return true, nil
}

func (s *RedisStore) store(ctx context.Context, session *sessions.Session) error {
	data, err := s.ser.Serialize(session.Values)
	if err != nil {
		return errors.Wrap(err, "serialize session")
	}
	ttl := time.Duration(session.Options.MaxAge) * time.Second
	if err := s.client.Set(ctx, s.key(session.ID), data, ttl).Err(); err != nil {
		return errors.Wrap(err, "store session")
	}
	return nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func newID() string {
	return strings.TrimRight(
		base32.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)), "=")
}
