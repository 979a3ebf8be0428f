package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartwater-ai/smartwater-backend/internal/database"
	apperrors "github.com/smartwater-ai/smartwater-backend/internal/errors"
)

func newTestService(t *testing.T) (*Service, *database.Repository) {
	t.Helper()
	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := database.NewRepository(db)
	return NewService(repo, "test-secret"), repo
}

func seedAccount(t *testing.T, repo *database.Repository, username, password, mcCode, mcName string) {
	t.Helper()
	require.NoError(t, repo.UpsertMunicipal(&database.Municipal{
		MCCode: mcCode,
		MCName: mcName,
	}))
	require.NoError(t, repo.CreateUser(database.NewUser(username, HashPassword(password), mcCode)))
}

func TestHashPassword(t *testing.T) {
	// SHA-256 of "password" is a fixed value; seeded accounts depend on it.
	assert.Equal(t,
		"5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8",
		HashPassword("password"))
	assert.NotEqual(t, HashPassword("a"), HashPassword("b"))
}

func TestLogin(t *testing.T) {
	svc, repo := newTestService(t)
	seedAccount(t, repo, "operator", "secret123", "MC001", "Pune Municipal Corporation")

	result, err := svc.Login("operator", "secret123", "MC001")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, "MC001", result.MCCode)
	assert.Equal(t, "Pune Municipal Corporation", result.MCName)

	identity, err := svc.VerifyToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "operator", identity.Username)
	assert.Equal(t, "MC001", identity.MCCode)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, repo := newTestService(t)
	seedAccount(t, repo, "operator", "secret123", "MC001", "Pune Municipal Corporation")

	tests := []struct {
		name               string
		username, password string
		mcCode             string
	}{
		{"wrong password", "operator", "wrong", "MC001"},
		{"unknown user", "ghost", "secret123", "MC001"},
		{"wrong corporation", "operator", "secret123", "MC002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(tt.username, tt.password, tt.mcCode)
			require.Error(t, err)

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, http.StatusForbidden, appErr.HTTPStatus)
			// The response never reveals which part of the triple was wrong.
			assert.Contains(t, appErr.Error(), "Invalid username, password, or corporation")
		})
	}
}

func TestVerifyTokenRejectsTampering(t *testing.T) {
	svc, _ := newTestService(t)

	token, err := svc.GenerateToken("operator", "MC001")
	require.NoError(t, err)

	_, err = svc.VerifyToken(token + "x")
	assert.Error(t, err)

	other := NewService(nil, "different-secret")
	_, err = other.VerifyToken(token)
	assert.Error(t, err)
}

func TestRequireAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := newTestService(t)

	token, err := svc.GenerateToken("operator", "MC001")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/protected", RequireAuth(svc), func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"mc_code": identity.MCCode})
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusForbidden},
		{"not a bearer token", "Basic abc", http.StatusForbidden},
		{"garbage token", "Bearer garbage", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRequireMC(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := newTestService(t)

	token, err := svc.GenerateToken("operator", "MC001")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/mc/:mc_code/data", RequireAuth(svc), func(c *gin.Context) {
		if _, ok := RequireMC(c, c.Param("mc_code")); !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Own MC passes.
	req := httptest.NewRequest(http.MethodGet, "/mc/MC001/data", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// A foreign MC is rejected even with a valid token.
	req = httptest.NewRequest(http.MethodGet, "/mc/MC002/data", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
