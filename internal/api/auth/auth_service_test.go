package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/FACorreiaa/mic-data-portal/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockUserFinder is a mock implementation of the UserFinder interface
type MockUserFinder struct {
	mock.Mock
}

func (m *MockUserFinder) FindByEmail(ctx context.Context, email string) (*types.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockUserFinder) FindByID(ctx context.Context, id string) (*types.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

// memoryUsers is an in-memory credential store.
type memoryUsers struct {
	mu     sync.Mutex
	byID   map[string]*types.User
	nextID int
	err    error
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byID: make(map[string]*types.User)}
}

func (m *memoryUsers) add(t *testing.T, name, email, password string) *types.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u := &types.User{ID: fmt.Sprintf("user-%d", m.nextID), Name: name, Email: email, PasswordHash: string(hash)}
	m.byID[u.ID] = u
	cp := *u
	return &cp
}

func (m *memoryUsers) delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}

func (m *memoryUsers) update(id string, fn func(u *types.User)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.byID[id])
}

func (m *memoryUsers) failWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *memoryUsers) FindByEmail(_ context.Context, email string) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, types.ErrNotFound
}

func (m *memoryUsers) FindByID(_ context.Context, id string) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.byID[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	hasher := NewBcryptHasher(bcrypt.MinCost)
	hash, err := hasher.Hash("password123")
	require.NoError(t, err)
	stored := &types.User{ID: "user123", Name: "Test", Email: "test@example.com", PasswordHash: hash}

	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockUserFinder)
		service := NewAuthService(mockRepo, hasher, discardLogger())
		mockRepo.On("FindByEmail", mock.Anything, "test@example.com").Return(stored, nil).Once()

		u, err := service.Authenticate(ctx, "test@example.com", "password123")
		require.NoError(t, err)
		assert.Equal(t, "user123", u.ID)
		mockRepo.AssertExpectations(t)
		mockRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})

	t.Run("UserNotFound", func(t *testing.T) {
		mockRepo := new(MockUserFinder)
		service := NewAuthService(mockRepo, hasher, discardLogger())
		mockRepo.On("FindByEmail", mock.Anything, "no-such@x.com").Return(nil, types.ErrNotFound).Once()

		_, err := service.Authenticate(ctx, "no-such@x.com", "anything")
		assert.ErrorIs(t, err, types.ErrUserNotFound)
		assert.Contains(t, err.Error(), "no-such@x.com")
		mockRepo.AssertExpectations(t)
	})

	t.Run("InvalidCredentials", func(t *testing.T) {
		mockRepo := new(MockUserFinder)
		service := NewAuthService(mockRepo, hasher, discardLogger())
		mockRepo.On("FindByEmail", mock.Anything, "test@example.com").Return(stored, nil).Once()

		_, err := service.Authenticate(ctx, "test@example.com", "wrongpassword")
		assert.ErrorIs(t, err, types.ErrInvalidCredentials)
		mockRepo.AssertExpectations(t)
	})

	t.Run("MalformedHash", func(t *testing.T) {
		mockRepo := new(MockUserFinder)
		service := NewAuthService(mockRepo, hasher, discardLogger())
		broken := &types.User{ID: "user123", Email: "test@example.com", PasswordHash: "not-a-bcrypt-hash"}
		mockRepo.On("FindByEmail", mock.Anything, "test@example.com").Return(broken, nil).Once()

		_, err := service.Authenticate(ctx, "test@example.com", "password123")
		assert.ErrorIs(t, err, types.ErrVerification)
		assert.NotErrorIs(t, err, types.ErrInvalidCredentials)
	})

	t.Run("StoreUnavailable", func(t *testing.T) {
		mockRepo := new(MockUserFinder)
		service := NewAuthService(mockRepo, hasher, discardLogger())
		mockRepo.On("FindByEmail", mock.Anything, "test@example.com").Return(nil, errors.New("connection refused")).Once()

		_, err := service.Authenticate(ctx, "test@example.com", "password123")
		assert.ErrorIs(t, err, types.ErrStoreUnavailable)
		assert.NotErrorIs(t, err, types.ErrUserNotFound)
	})
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	hash, err := h.Hash("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	ok, err := h.Verify("hunter2", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("hunter3", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Verify("hunter2", "short")
	assert.Error(t, err)

	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).cost)
}

// Scenario: create a@b.com/hunter2, log in, fail with a wrong password,
// delete the user and watch an earlier token go stale.
func TestAuthenticationScenario(t *testing.T) {
	ctx := context.Background()
	users := newMemoryUsers()
	service := NewAuthService(users, NewBcryptHasher(bcrypt.MinCost), discardLogger())
	codec := NewJWTIdentityCodec(users, "secret", time.Hour, "test-issuer", discardLogger())

	created := users.add(t, "Ann", "a@b.com", "hunter2")

	u, err := service.Authenticate(ctx, "a@b.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)

	_, err = service.Authenticate(ctx, "a@b.com", "wrong")
	assert.ErrorIs(t, err, types.ErrInvalidCredentials)

	token, err := codec.Serialize(u)
	require.NoError(t, err)

	resolved, err := codec.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, resolved.ID)

	users.delete(created.ID)
	_, err = codec.Resolve(ctx, token)
	assert.ErrorIs(t, err, types.ErrStaleIdentity)
}
