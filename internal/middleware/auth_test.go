package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"stocktracker/internal/models"
)

func setupAuthRouter() *gin.Engine {
	r := gin.New()
	r.Use(AuthMiddleware())
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(UserIDKey)})
	})
	return r
}

func doAuthRequest(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", http.NoBody)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	user := &models.User{Base: models.Base{ID: "0190a1b2-0000-7000-8000-000000000001"}, Email: "a@test.com"}
	access, err := GenerateAccessToken(user)
	if err != nil {
		t.Fatalf("failed to generate access token: %v", err)
	}
	refresh, err := GenerateRefreshToken(user)
	if err != nil {
		t.Fatalf("failed to generate refresh token: %v", err)
	}

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{
		UserID:    user.ID,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	forgedString, _ := forged.SignedString([]byte("not-the-secret"))

	tests := []struct {
		name          string
		header        string
		wantStatus    int
		wantErrorCode string
	}{
		{"returns 200 with access token", "Bearer " + access, http.StatusOK, ""},
		{"returns 401 without header", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"returns 401 on bad format", "Token " + access, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"returns 401 on refresh token", "Bearer " + refresh, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"returns 401 on wrong signature", "Bearer " + forgedString, http.StatusUnauthorized, "INVALID_TOKEN"},
	}

	r := setupAuthRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doAuthRequest(r, tt.header)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			body := parseBody(t, rec)
			if tt.wantErrorCode == "" {
				if body["user_id"] != user.ID {
					t.Errorf("expected user_id %q, got %v", user.ID, body["user_id"])
				}
				return
			}
			errObj, ok := body["error"].(map[string]interface{})
			if !ok {
				t.Fatalf("expected error object, got %v", body)
			}
			if errObj["code"] != tt.wantErrorCode {
				t.Errorf("expected error code %q, got %v", tt.wantErrorCode, errObj["code"])
			}
		})
	}
}

func TestValidateRefreshToken(t *testing.T) {
	user := &models.User{Base: models.Base{ID: "u-1"}, Email: "b@test.com"}
	refresh, _ := GenerateRefreshToken(user)
	access, _ := GenerateAccessToken(user)

	claims, err := ValidateRefreshToken(refresh)
	if err != nil {
		t.Fatalf("expected valid refresh token, got %v", err)
	}
	if claims.UserID != "u-1" {
		t.Errorf("expected user id u-1, got %s", claims.UserID)
	}

	if _, err := ValidateRefreshToken(access); err == nil {
		t.Error("expected access token to be rejected as refresh token")
	}
	if _, err := ValidateRefreshToken("garbage"); err == nil {
		t.Error("expected garbage token to be rejected")
	}
}

func TestHashToken(t *testing.T) {
	h := HashToken("abc")
	if len(h) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h))
	}
	if h != HashToken("abc") {
		t.Error("expected hash to be deterministic")
	}
}
