package services

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func setupAuthConfig() {
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
}

func TestAuthService_Register(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupAuthConfig()
	service := NewAuthService(db, nil)

	t.Run("successful registration", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO users").
			WithArgs(sqlmock.AnyArg(), "acme-ltd", "accounts@acme.example", sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		body := []byte(`{"username":"Acme-Ltd","email":"Accounts@acme.example","password":"password123"}`)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, "acme-ltd", response.User.Username)
		assert.Equal(t, "accounts@acme.example", response.User.Email)
		assert.False(t, response.User.IsAdmin)
	})

	t.Run("duplicate username", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO users").
			WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "users_username_key"`))

		body := []byte(`{"username":"acme-ltd","email":"accounts@acme.example","password":"password123"}`)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer([]byte("invalid")))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("short password is rejected", func(t *testing.T) {
		body := []byte(`{"username":"acme-ltd","email":"accounts@acme.example","password":"short"}`)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthService_Login(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupAuthConfig()
	service := NewAuthService(db, nil)
	now := time.Now().UTC()

	userColumns := []string{"id", "username", "email", "password", "is_admin", "created_at", "updated_at"}

	t.Run("successful login", func(t *testing.T) {
		hashedPassword, err := hashPassword("password123")
		assert.NoError(t, err)

		mock.ExpectQuery("SELECT id, username, email, password, is_admin, created_at, updated_at FROM users").
			WithArgs("acme-ltd").
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow("user-1", "acme-ltd", "accounts@acme.example", hashedPassword, false, now, now))

		body := []byte(`{"username":"acme-ltd","password":"password123"}`)
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, "user-1", response.User.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		hashedPassword, err := hashPassword("password123")
		assert.NoError(t, err)

		mock.ExpectQuery("SELECT id, username, email, password, is_admin, created_at, updated_at FROM users").
			WithArgs("acme-ltd").
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow("user-1", "acme-ltd", "accounts@acme.example", hashedPassword, false, now, now))

		body := []byte(`{"username":"acme-ltd","password":"wrong-password"}`)
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, username, email, password, is_admin, created_at, updated_at FROM users").
			WithArgs("nobody").
			WillReturnError(sql.ErrNoRows)

		body := []byte(`{"username":"nobody","password":"password123"}`)
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthService_Logout(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupAuthConfig()

	t.Run("logout without redis still succeeds", func(t *testing.T) {
		service := NewAuthService(db, nil)

		r := httptest.NewRequest("POST", "/auth/logout", nil)
		r.Header.Set("Authorization", "Bearer some-token")
		w := httptest.NewRecorder()

		service.Logout(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestPasswordHashing(t *testing.T) {
	setupAuthConfig()

	t.Run("hash and verify round trip", func(t *testing.T) {
		hashed, err := hashPassword("password123")
		assert.NoError(t, err)
		assert.NotEqual(t, "password123", hashed)

		assert.True(t, verifyPassword("password123", hashed))
		assert.False(t, verifyPassword("wrong-password", hashed))
	})

	t.Run("same password hashes differently", func(t *testing.T) {
		first, err := hashPassword("password123")
		assert.NoError(t, err)
		second, err := hashPassword("password123")
		assert.NoError(t, err)

		assert.NotEqual(t, first, second)
	})

	t.Run("garbage hash never verifies", func(t *testing.T) {
		assert.False(t, verifyPassword("password123", "not-a-real-hash"))
	})
}
