package session

import (
	"encoding/base32"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "session:"
	// used when the cookie is a browser-session cookie (MaxAge 0)
	defaultRedisTTL = 24 * time.Hour
)

var _ sessions.Store = (*RedisStore)(nil)

// RedisStore keeps session values in Redis. The cookie only carries the
// signed session id.
type RedisStore struct {
	client     redis.UniversalClient
	codecs     []securecookie.Codec
	options    *sessions.Options
	keyPrefix  string
	serializer securecookie.GobEncoder
}

func NewRedisStore(client redis.UniversalClient, opts *sessions.Options, keyPairs ...[]byte) *RedisStore {
	codecs := securecookie.CodecsFromPairs(keyPairs...)
	for _, c := range codecs {
		if sc, ok := c.(*securecookie.SecureCookie); ok {
			sc.MaxAge(opts.MaxAge)
		}
	}
	return &RedisStore{
		client:    client,
		codecs:    codecs,
		options:   opts,
		keyPrefix: defaultKeyPrefix,
	}
}

func (s *RedisStore) key(id string) string {
	return s.keyPrefix + id
}

func (s *RedisStore) ttl(opts *sessions.Options) time.Duration {
	if opts.MaxAge > 0 {
		return time.Duration(opts.MaxAge) * time.Second
	}
	return defaultRedisTTL
}

// Get returns the session cached on the request, loading it on first use.
func (s *RedisStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session named by the request cookie. A missing cookie or an
// expired key gives a new, empty session.
func (s *RedisStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}

	var id string
	if err := securecookie.DecodeMulti(name, c.Value, &id, s.codecs...); err != nil {
		return session, err
	}

	data, err := s.client.Get(r.Context(), s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return session, nil
	}
	if err != nil {
		return session, fmt.Errorf("failed to load session: %w", err)
	}
	if err := s.serializer.Deserialize(data, &session.Values); err != nil {
		return session, err
	}

	session.ID = id
	session.IsNew = false
	return session, nil
}

// Save writes the values to Redis and refreshes the cookie. A negative MaxAge
// deletes both.
func (s *RedisStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	ctx := r.Context()

	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.client.Del(ctx, s.key(session.ID)).Err(); err != nil {
				return fmt.Errorf("failed to delete session: %w", err)
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = newSessionID()
	}

	data, err := s.serializer.Serialize(session.Values)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(session.ID), data, s.ttl(session.Options)).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// Rotate drops the stored copy of the session and clears its id; the next
// Save issues a new one.
func (s *RedisStore) Rotate(r *http.Request, session *sessions.Session) error {
	if session.ID == "" {
		return nil
	}
	if err := s.client.Del(r.Context(), s.key(session.ID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	session.ID = ""
	return nil
}

func newSessionID() string {
	return strings.TrimRight(base32.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)), "=")
}
