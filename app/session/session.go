package session

import (
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"github.com/FACorreiaa/mic-data-portal/internal/types"
)

const tokenKey = "identity"

func init() {
	// Flashes are kept as []interface{} holding types.Message values.
	gob.Register([]interface{}(nil))
	gob.Register(types.Message{})
}

// rotator is implemented by stores that can issue a fresh session id.
type rotator interface {
	Rotate(r *http.Request, s *sessions.Session) error
}

// Manager reads and writes the identity token and the flash outbox of the
// session named by the configuration.
type Manager struct {
	store  sessions.Store
	name   string
	logger *slog.Logger
}

func NewManager(store sessions.Store, name string, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		name:   name,
		logger: logger,
	}
}

// Session returns the session for this request. The store caches it on the
// request, so later calls in the same request see the same values. A cookie
// that no longer decodes (rotated secret, tampering) yields a fresh session.
func (m *Manager) Session(r *http.Request) (*sessions.Session, error) {
	s, err := m.store.Get(r, m.name)
	if err == nil {
		return s, nil
	}

	var cookieErr securecookie.Error
	if errors.As(err, &cookieErr) && cookieErr.IsDecode() {
		m.logger.WarnContext(r.Context(), "Discarding undecodable session cookie", slog.Any("error", err))
		if s == nil {
			s = sessions.NewSession(m.store, m.name)
			s.IsNew = true
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: session: %w", types.ErrStoreUnavailable, err)
}

// Token returns the identity token, or "" for an anonymous session.
func (m *Manager) Token(s *sessions.Session) string {
	token, _ := s.Values[tokenKey].(string)
	return token
}

// SetToken stores the identity token. Server-side stores get a new session id
// so an id known before login cannot be reused after it.
func (m *Manager) SetToken(r *http.Request, s *sessions.Session, token string) error {
	if err := m.rotate(r, s); err != nil {
		return err
	}
	s.Values[tokenKey] = token
	return nil
}

// ClearToken drops the identity token and keeps the session id.
func (m *Manager) ClearToken(s *sessions.Session) {
	delete(s.Values, tokenKey)
}

// RevokeToken drops the identity token and, on server-side stores, the
// session id it was issued under. Pending flashes are kept.
func (m *Manager) RevokeToken(r *http.Request, s *sessions.Session) error {
	if err := m.rotate(r, s); err != nil {
		return err
	}
	delete(s.Values, tokenKey)
	return nil
}

func (m *Manager) rotate(r *http.Request, s *sessions.Session) error {
	rot, ok := m.store.(rotator)
	if !ok {
		return nil
	}
	if err := rot.Rotate(r, s); err != nil {
		return fmt.Errorf("%w: failed to rotate session: %w", types.ErrStoreUnavailable, err)
	}
	return nil
}

// AddFlash queues a message for the next request.
func (m *Manager) AddFlash(s *sessions.Session, msg types.Message) {
	s.AddFlash(msg)
}

// Flashes drains the outbox in the order messages were added. The caller must
// save the session for the drain to stick.
func (m *Manager) Flashes(s *sessions.Session) []types.Message {
	raw := s.Flashes()
	if len(raw) == 0 {
		return nil
	}
	msgs := make([]types.Message, 0, len(raw))
	for _, v := range raw {
		switch msg := v.(type) {
		case types.Message:
			msgs = append(msgs, msg)
		case string:
			msgs = append(msgs, types.NewMessage(types.MessageSuccess, msg))
		}
	}
	return msgs
}

func (m *Manager) Save(w http.ResponseWriter, r *http.Request, s *sessions.Session) error {
	if err := s.Save(r, w); err != nil {
		return fmt.Errorf("%w: failed to save session: %w", types.ErrStoreUnavailable, err)
	}
	return nil
}
