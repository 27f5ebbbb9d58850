package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "splithaus/internal/errors"
	"splithaus/internal/middleware"
	"splithaus/internal/models"
	"splithaus/internal/validator"
)

// --- mock services ---

type mockUserService struct {
	registerFn         func(email, password, name string) (*models.User, error)
	loginFn            func(email, password string) (*models.User, error)
	getUserByIDFn      func(id string) (*models.User, error)
	searchByEmailFn    func(query string, limit int) ([]models.User, error)
	connectWithCodeFn  func(ctx context.Context, userID, code, redirectURI string) (*models.User, error)
	connectionStatusFn func(userID string) (bool, string, error)
}

func (m *mockUserService) Register(email, password, name string) (*models.User, error) {
	if m.registerFn != nil {
		return m.registerFn(email, password, name)
	}
	return &models.User{}, nil
}

func (m *mockUserService) Login(email, password string) (*models.User, error) {
	if m.loginFn != nil {
		return m.loginFn(email, password)
	}
	return &models.User{}, nil
}

func (m *mockUserService) GetUserByID(id string) (*models.User, error) {
	if m.getUserByIDFn != nil {
		return m.getUserByIDFn(id)
	}
	return &models.User{}, nil
}

func (m *mockUserService) SearchByEmail(query string, limit int) ([]models.User, error) {
	if m.searchByEmailFn != nil {
		return m.searchByEmailFn(query, limit)
	}
	return nil, nil
}

func (m *mockUserService) ConnectWithCode(ctx context.Context, userID, code, redirectURI string) (*models.User, error) {
	if m.connectWithCodeFn != nil {
		return m.connectWithCodeFn(ctx, userID, code, redirectURI)
	}
	return &models.User{}, nil
}

func (m *mockUserService) ConnectionStatus(userID string) (bool, string, error) {
	if m.connectionStatusFn != nil {
		return m.connectionStatusFn(userID)
	}
	return false, "", nil
}

type mockAuditService struct{}

func (m *mockAuditService) Log(_, _, _, _, _ string, _ map[string]interface{}) {}

// --- test helpers ---

func init() {
	gin.SetMode(gin.TestMode)
	validator.Register()
}

func performRequest(router *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func authHeaderFor(t *testing.T, user *models.User) map[string]string {
	t.Helper()
	token, err := middleware.GenerateAccessToken(user)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, w)
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %s", w.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

// --- tests ---

func newAuthRouter(svc *mockUserService) *gin.Engine {
	router := gin.New()
	handler := NewAuthHandler(svc)
	router.POST("/auth/register", handler.Register)
	router.POST("/auth/login", handler.Login)
	protected := router.Group("/", middleware.AuthMiddleware())
	protected.GET("/profile", handler.GetProfile)
	return router
}

func TestAuthRegister(t *testing.T) {
	t.Run("returns a token and the user", func(t *testing.T) {
		svc := &mockUserService{
			registerFn: func(email, password, name string) (*models.User, error) {
				return &models.User{
					Base:  models.Base{ID: "user-1"},
					Email: email,
					Name:  name,
				}, nil
			},
		}
		router := newAuthRouter(svc)

		w := performRequest(router, http.MethodPost, "/auth/register",
			`{"email":"new@test.com","password":"supersecret","name":"New User"}`, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		if body["token"] == "" || body["token"] == nil {
			t.Error("expected a token in the response")
		}
		user, _ := body["user"].(map[string]interface{})
		if user["email"] != "new@test.com" {
			t.Errorf("unexpected user payload: %v", user)
		}
	})

	t.Run("rejects invalid payloads", func(t *testing.T) {
		router := newAuthRouter(&mockUserService{})

		w := performRequest(router, http.MethodPost, "/auth/register",
			`{"email":"not-an-email","password":"supersecret","name":"X"}`, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
		if code := errorCode(t, w); code != "INVALID_INPUT" {
			t.Errorf("expected INVALID_INPUT, got %s", code)
		}
	})

	t.Run("maps duplicate email to 409", func(t *testing.T) {
		svc := &mockUserService{
			registerFn: func(email, password, name string) (*models.User, error) {
				return nil, apperrors.ErrDuplicateEmail
			},
		}
		router := newAuthRouter(svc)

		w := performRequest(router, http.MethodPost, "/auth/register",
			`{"email":"dup@test.com","password":"supersecret","name":"Dup"}`, nil)
		if w.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", w.Code)
		}
	})
}

func TestAuthLogin(t *testing.T) {
	t.Run("maps bad credentials to 401", func(t *testing.T) {
		svc := &mockUserService{
			loginFn: func(email, password string) (*models.User, error) {
				return nil, apperrors.ErrInvalidCredentials
			},
		}
		router := newAuthRouter(svc)

		w := performRequest(router, http.MethodPost, "/auth/login",
			`{"email":"a@test.com","password":"wrong"}`, nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
		if code := errorCode(t, w); code != "INVALID_CREDENTIALS" {
			t.Errorf("expected INVALID_CREDENTIALS, got %s", code)
		}
	})
}

func TestGetProfile(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		router := newAuthRouter(&mockUserService{})
		w := performRequest(router, http.MethodGet, "/profile", "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("returns the authenticated user", func(t *testing.T) {
		user := &models.User{Base: models.Base{ID: "user-1"}, Email: "me@test.com", Name: "Me"}
		svc := &mockUserService{
			getUserByIDFn: func(id string) (*models.User, error) {
				if id != "user-1" {
					t.Errorf("expected lookup for user-1, got %s", id)
				}
				return user, nil
			},
		}
		router := newAuthRouter(svc)

		w := performRequest(router, http.MethodGet, "/profile", "", authHeaderFor(t, user))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		got, _ := body["user"].(map[string]interface{})
		if got["email"] != "me@test.com" {
			t.Errorf("unexpected profile: %v", got)
		}
		if got["splitwise_connected"] != false {
			t.Error("expected splitwise_connected false")
		}
	})
}
