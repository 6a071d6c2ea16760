package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"denote/internal/auth"
	apperr "denote/internal/errors"
	"denote/internal/model"
	"denote/internal/repository"
)

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	if args.Error(0) == nil && user.ID == "" {
		user.ID = "generated-id"
	}
	return args.Error(0)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func TestAuthService_Register(t *testing.T) {
	tests := []struct {
		name          string
		username      string
		password      string
		setupMock     func(*MockUserRepository)
		expectedError error
	}{
		{
			name:     "successful registration",
			username: "alice",
			password: "pw123",
			setupMock: func(m *MockUserRepository) {
				m.On("FindByUsername", mock.Anything, "alice").Return(nil, repository.ErrNotFound)
				m.On("Create", mock.Anything, mock.AnythingOfType("*model.User")).Return(nil)
			},
		},
		{
			name:     "username already exists",
			username: "alice",
			password: "pw123",
			setupMock: func(m *MockUserRepository) {
				m.On("FindByUsername", mock.Anything, "alice").Return(&model.User{ID: "u1", Username: "alice"}, nil)
			},
			expectedError: apperr.ErrConflict,
		},
		{
			name:     "concurrent registration hits unique index",
			username: "alice",
			password: "pw123",
			setupMock: func(m *MockUserRepository) {
				m.On("FindByUsername", mock.Anything, "alice").Return(nil, repository.ErrNotFound)
				m.On("Create", mock.Anything, mock.AnythingOfType("*model.User")).Return(repository.ErrDuplicate)
			},
			expectedError: apperr.ErrConflict,
		},
		{
			name:          "missing username",
			username:      "   ",
			password:      "pw123",
			setupMock:     func(m *MockUserRepository) {},
			expectedError: apperr.ErrValidation,
		},
		{
			name:          "missing password",
			username:      "alice",
			password:      "",
			setupMock:     func(m *MockUserRepository) {},
			expectedError: apperr.ErrValidation,
		},
		{
			name:          "password too long for bcrypt",
			username:      "alice",
			password:      strings.Repeat("p", 73),
			setupMock:     func(m *MockUserRepository) {},
			expectedError: apperr.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockUserRepository)
			tt.setupMock(mockRepo)

			svc := NewAuthService(mockRepo, auth.NewJWTService("test-secret", time.Hour))
			user, token, err := svc.Register(context.Background(), tt.username, tt.password)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, user)
				assert.Nil(t, token)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.username, user.Username)
				assert.NotEqual(t, tt.password, user.PasswordHash)
				assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(tt.password)))
				require.NotNil(t, token)
				assert.NotEmpty(t, token.Value)

				identity, err := svc.Validate(token.Value)
				require.NoError(t, err)
				assert.Equal(t, user.ID, identity.UserID)
			}

			mockRepo.AssertExpectations(t)
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("pw123"), bcrypt.MinCost)
	require.NoError(t, err)
	alice := &model.User{ID: "user-1", Username: "alice", PasswordHash: string(hashedPassword)}

	tests := []struct {
		name          string
		username      string
		password      string
		setupMock     func(*MockUserRepository)
		expectedError error
	}{
		{
			name:     "successful login",
			username: "alice",
			password: "pw123",
			setupMock: func(m *MockUserRepository) {
				m.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)
			},
		},
		{
			name:     "unknown user",
			username: "bob",
			password: "pw123",
			setupMock: func(m *MockUserRepository) {
				m.On("FindByUsername", mock.Anything, "bob").Return(nil, repository.ErrNotFound)
			},
			expectedError: apperr.ErrInvalidCredentials,
		},
		{
			name:     "wrong password",
			username: "alice",
			password: "nope",
			setupMock: func(m *MockUserRepository) {
				m.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)
			},
			expectedError: apperr.ErrInvalidCredentials,
		},
		{
			name:          "missing fields",
			username:      "",
			password:      "",
			setupMock:     func(m *MockUserRepository) {},
			expectedError: apperr.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockUserRepository)
			tt.setupMock(mockRepo)

			svc := NewAuthService(mockRepo, auth.NewJWTService("test-secret", time.Hour))
			token, user, err := svc.Login(context.Background(), tt.username, tt.password)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, token)
				assert.Nil(t, user)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "user-1", user.ID)

				identity, err := svc.Validate(token.Value)
				require.NoError(t, err)
				assert.Equal(t, auth.Identity{UserID: "user-1", Username: "alice"}, *identity)
			}

			mockRepo.AssertExpectations(t)
		})
	}
}

func TestAuthService_LoginFailuresLookAlike(t *testing.T) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("pw123"), bcrypt.MinCost)
	require.NoError(t, err)

	mockRepo := new(MockUserRepository)
	mockRepo.On("FindByUsername", mock.Anything, "alice").Return(&model.User{ID: "u1", Username: "alice", PasswordHash: string(hashedPassword)}, nil)
	mockRepo.On("FindByUsername", mock.Anything, "bob").Return(nil, repository.ErrNotFound)

	svc := NewAuthService(mockRepo, auth.NewJWTService("test-secret", time.Hour))
	_, _, wrongPassword := svc.Login(context.Background(), "alice", "bad")
	_, _, unknownUser := svc.Login(context.Background(), "bob", "bad")

	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestAuthService_Validate(t *testing.T) {
	svc := NewAuthService(new(MockUserRepository), auth.NewJWTService("test-secret", time.Hour))

	foreign, _, err := auth.NewJWTService("other-secret", time.Hour).GenerateToken("u1", "alice")
	require.NoError(t, err)

	for name, token := range map[string]string{
		"missing":      "",
		"malformed":    "abc.def",
		"wrong secret": foreign,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Validate(token)
			assert.ErrorIs(t, err, apperr.ErrUnauthorized)
		})
	}
}

func TestAuthService_GetProfile(t *testing.T) {
	mockRepo := new(MockUserRepository)
	mockRepo.On("FindByID", mock.Anything, "u1").Return(&model.User{ID: "u1", Username: "alice"}, nil)
	mockRepo.On("FindByID", mock.Anything, "gone").Return(nil, repository.ErrNotFound)
	mockRepo.On("FindByID", mock.Anything, "broken").Return(nil, errors.New("connection refused"))

	svc := NewAuthService(mockRepo, auth.NewJWTService("test-secret", time.Hour))

	user, err := svc.GetProfile(context.Background(), auth.Identity{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = svc.GetProfile(context.Background(), auth.Identity{UserID: "gone"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.GetProfile(context.Background(), auth.Identity{UserID: "broken"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, apperr.ErrNotFound)
}
