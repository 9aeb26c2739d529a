package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wbtrack-rest-api/internal/cache"
	"wbtrack-rest-api/internal/middleware"
	"wbtrack-rest-api/internal/model"
	"wbtrack-rest-api/internal/repository"
	"wbtrack-rest-api/internal/service"
	"wbtrack-rest-api/pkg/password"
)

var fastParams = password.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    *struct {
		Page  int   `json:"page"`
		Limit int   `json:"limit"`
		Total int64 `json:"total"`
	} `json:"meta"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	env := decode(t, rec)
	require.True(t, env.Success, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, v))
}

type fakeFetcher struct {
	details map[string]*model.ProductDetails
	errs    map[string]error
}

func (f *fakeFetcher) FetchDetails(ctx context.Context, artikul string) (*model.ProductDetails, error) {
	if err, ok := f.errs[artikul]; ok {
		return nil, err
	}
	if d, ok := f.details[artikul]; ok {
		copied := *d
		return &copied, nil
	}
	return nil, model.ErrProductNotFound
}

type fixture struct {
	auth     *AuthHandler
	products *ProductHandler
	authSvc  *service.AuthService
	tokens   *service.TokenService
	users    *repository.SQLUserRepository
	fetcher  *fakeFetcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := repository.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := cache.NewMemoryCache()
	t.Cleanup(func() { store.Close() })

	tokens, err := service.NewTokenService(store, service.TokenConfig{
		Secret:   []byte("handler-test-secret"),
		Lifetime: time.Hour,
	})
	require.NoError(t, err)

	users := repository.NewSQLUserRepository(db)
	authSvc := service.NewAuthService(users, tokens, password.NewHasher(fastParams))

	fetcher := &fakeFetcher{
		details: map[string]*model.ProductDetails{
			"12345": {Artikul: "12345", Name: "Mug", StandardPrice: 500, SellPrice: 399.5, TotalQuantity: 7, Rating: 4.8},
		},
		errs: map[string]error{
			"99999": model.ErrUpstreamUnavailable,
		},
	}
	products := service.NewProductService(repository.NewSQLProductRepository(db), fetcher)

	return &fixture{
		auth:     NewAuthHandler(authSvc),
		products: NewProductHandler(products),
		authSvc:  authSvc,
		tokens:   tokens,
		users:    users,
		fetcher:  fetcher,
	}
}

func (f *fixture) register(t *testing.T, username, pw string) *model.User {
	t.Helper()
	user, err := f.authSvc.Register(context.Background(), model.NewUser{Username: username, Password: pw})
	require.NoError(t, err)
	return user
}

func withUser(r *http.Request, user *model.User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.UserKey, user))
}

func withArtikul(r *http.Request, artikul string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("artikul", artikul)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
		wantField  string
	}{
		{name: "created", body: `{"username":"alice","password":"password123","first_name":"Alice"}`, wantStatus: http.StatusCreated},
		{name: "duplicate", body: `{"username":"alice","password":"password123"}`, wantStatus: http.StatusBadRequest, wantCode: "BAD_REQUEST"},
		{name: "short password", body: `{"username":"bob","password":"short"}`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR", wantField: "password"},
		{name: "missing username", body: `{"password":"password123"}`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR", wantField: "username"},
		{name: "malformed json", body: `{"username":`, wantStatus: http.StatusBadRequest, wantCode: "BAD_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			f.auth.Register(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			env := decode(t, rec)
			if tt.wantCode == "" {
				var user model.User
				require.NoError(t, json.Unmarshal(env.Data, &user))
				assert.NotZero(t, user.ID)
				assert.Equal(t, "alice", user.Username)
				require.NotNil(t, user.FirstName)
				assert.Equal(t, "Alice", *user.FirstName)
				assert.NotContains(t, rec.Body.String(), "password")
				return
			}
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
			if tt.wantField != "" {
				require.Len(t, env.Error.Details, 1)
				assert.Equal(t, tt.wantField, env.Error.Details[0].Field)
			}
		})
	}
}

func TestRegister_ExplicitUserID(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register",
		strings.NewReader(`{"user_id":424242,"username":"tg_user","password":"password123","is_bot":false}`))
	rec := httptest.NewRecorder()
	f.auth.Register(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var user model.User
	decodeData(t, rec, &user)
	assert.Equal(t, int64(424242), user.ID)
}

func TestLoginByUsername(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "password123")

	login := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/auth-by-username", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		f.auth.LoginByUsername(rec, req)
		return rec
	}

	rec := login(url.Values{"username": {"alice"}, "password": {"wrong-password"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = login(url.Values{"username": {"nobody"}, "password": {"password123"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = login(url.Values{"username": {"alice"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = login(url.Values{"username": {"alice"}, "password": {"password123"}})
	require.Equal(t, http.StatusOK, rec.Code)
	var pair model.TokenPair
	decodeData(t, rec, &pair)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Equal(t, "bearer", pair.TokenType)
}

func TestLoginByUserID(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "alice", "password123")

	login := func(query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/auth-by-user-id?"+query, nil)
		rec := httptest.NewRecorder()
		f.auth.LoginByUserID(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusBadRequest, login("user_id=abc&password=password123").Code)
	assert.Equal(t, http.StatusBadRequest, login("user_id=1").Code)
	assert.Equal(t, http.StatusUnauthorized, login("user_id=777&password=password123").Code)

	rec := login(url.Values{"user_id": {strconv.FormatInt(user.ID, 10)}, "password": {"password123"}}.Encode())
	require.Equal(t, http.StatusOK, rec.Code)
	var pair model.TokenPair
	decodeData(t, rec, &pair)

	subject, err := f.tokens.Validate(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, subject)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "alice", "password123")

	change := func(query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/change-password?"+query, nil)
		rec := httptest.NewRecorder()
		f.auth.ChangePassword(rec, withUser(req, user))
		return rec
	}

	rec := change("old_password=not-it-at-all&new_password=newpassword1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", decode(t, rec).Error.Code)

	rec = change("old_password=password123&new_password=short")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, rec).Error.Code)

	rec = change("old_password=password123&new_password=newpassword1")
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := f.authSvc.LoginByUsername(context.Background(), "alice", "newpassword1")
	require.NoError(t, err)

	require.NoError(t, f.tokens.Revoke(context.Background(), user.ID))
	rec = change("old_password=newpassword1&new_password=anotherpass1")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserInfoAndLogout(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "alice", "password123")

	rec := httptest.NewRecorder()
	f.auth.UserInfo(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/user-info", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	f.auth.UserInfo(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/auth/user-info", nil), user))
	require.Equal(t, http.StatusOK, rec.Code)
	var info model.User
	decodeData(t, rec, &info)
	assert.Equal(t, "alice", info.Username)

	ghost := &model.User{ID: 999, Username: "ghost"}
	rec = httptest.NewRecorder()
	f.auth.UserInfo(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/auth/user-info", nil), ghost))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	f.auth.Logout(rec, withUser(httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil), user))
	require.Equal(t, http.StatusOK, rec.Code)
	var msg MessageResponse
	decodeData(t, rec, &msg)
	assert.Contains(t, msg.Message, "alice")

	revoked, err := f.tokens.IsRevoked(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestGetProductDetails(t *testing.T) {
	f := newFixture(t)

	get := func(artikul string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/third-party/wildberries/get-product-details/"+artikul, nil)
		rec := httptest.NewRecorder()
		f.products.GetProductDetails(rec, withArtikul(req, artikul))
		return rec
	}

	rec := get("12345")
	require.Equal(t, http.StatusOK, rec.Code)
	var details model.ProductDetails
	decodeData(t, rec, &details)
	assert.Equal(t, "Mug", details.Name)
	assert.InDelta(t, 399.5, details.SellPrice, 1e-9)

	assert.Equal(t, http.StatusNotFound, get("11111").Code)
	assert.Equal(t, http.StatusBadGateway, get("99999").Code)
	assert.Equal(t, http.StatusBadRequest, get("abc").Code)

	// details tracked the product as a side effect
	rec = httptest.NewRecorder()
	f.products.ListProducts(rec, httptest.NewRequest(http.MethodGet, "/api/v1/third-party/wildberries/products", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	require.NotNil(t, env.Meta)
	assert.Equal(t, int64(1), env.Meta.Total)
}

func TestAddProduct(t *testing.T) {
	f := newFixture(t)

	add := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/third-party/wildberries/add-product", strings.NewReader(body))
		rec := httptest.NewRecorder()
		f.products.AddProduct(rec, req)
		return rec
	}

	rec := add(`{"artikul": 12345}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tracked model.TrackedProduct
	decodeData(t, rec, &tracked)
	assert.Equal(t, "12345", tracked.Product.Artikul)
	assert.Equal(t, tracked.Product.ID, tracked.Snapshot.ProductID)

	assert.Equal(t, http.StatusConflict, add(`{"artikul": "12345"}`).Code)
	assert.Equal(t, http.StatusNotFound, add(`{"artikul": 11111}`).Code)
	assert.Equal(t, http.StatusNotFound, add(`{"artikul": 99999}`).Code)
	assert.Equal(t, http.StatusBadRequest, add(`{}`).Code)
	assert.Equal(t, http.StatusBadRequest, add(`{"artikul": "abc"}`).Code)
}

func TestProductHistoryEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.products.AddProduct(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"artikul": 12345}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	history := func(query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/get-lasted-products-by-artikul/12345"+query, nil)
		rec := httptest.NewRecorder()
		f.products.GetHistory(rec, withArtikul(req, "12345"))
		return rec
	}

	rec = history("")
	require.Equal(t, http.StatusOK, rec.Code)
	var snapshots []model.Snapshot
	decodeData(t, rec, &snapshots)
	assert.Len(t, snapshots, 1)

	assert.Equal(t, http.StatusOK, history("?count=100").Code)
	assert.Equal(t, http.StatusBadRequest, history("?count=101").Code)
	assert.Equal(t, http.StatusBadRequest, history("?count=0").Code)
	assert.Equal(t, http.StatusBadRequest, history("?count=ten").Code)

	rec = httptest.NewRecorder()
	f.products.GetLatest(rec, withArtikul(httptest.NewRequest(http.MethodGet, "/", nil), "12345"))
	require.Equal(t, http.StatusOK, rec.Code)
	var latest model.Snapshot
	decodeData(t, rec, &latest)
	assert.Equal(t, 7, latest.TotalQuantity)

	rec = httptest.NewRecorder()
	f.products.GetLatest(rec, withArtikul(httptest.NewRequest(http.MethodGet, "/", nil), "55555"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	f.products.GetPriceDynamics(rec, withArtikul(httptest.NewRequest(http.MethodGet, "/", nil), "12345"))
	require.Equal(t, http.StatusOK, rec.Code)
	var dynamics model.PriceDynamics
	decodeData(t, rec, &dynamics)
	assert.Equal(t, 1, dynamics.Samples)
	assert.Zero(t, dynamics.PriceChange)

	rec = httptest.NewRecorder()
	f.products.GetPriceDynamics(rec, withArtikul(httptest.NewRequest(http.MethodGet, "/", nil), "55555"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListProducts_Validation(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.products.ListProducts(rec, httptest.NewRequest(http.MethodGet, "/products?per_page=1000", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	f.products.ListProducts(rec, httptest.NewRequest(http.MethodGet, "/products?page=2&per_page=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 2, env.Meta.Page)
	assert.Equal(t, 5, env.Meta.Limit)
}

func TestHealthAndReady(t *testing.T) {
	rec := httptest.NewRecorder()
	New("1.2.3").Health(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	decodeData(t, rec, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "1.2.3", health.Version)

	ok := ReadinessCheck{Name: "database", Ping: func(context.Context) error { return nil }}
	down := ReadinessCheck{Name: "cache", Ping: func(context.Context) error { return errors.New("connection refused") }}

	rec = httptest.NewRecorder()
	New("1.2.3", ok).Ready(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var ready ReadyResponse
	decodeData(t, rec, &ready)
	assert.True(t, ready.Ready)
	assert.Contains(t, ready.Checks, Check{Name: "database", Status: "ok"})

	rec = httptest.NewRecorder()
	New("1.2.3", ok, down).Ready(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	env := decode(t, rec)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "SERVICE_UNAVAILABLE", env.Error.Code)
	require.Len(t, env.Error.Details, 1)
	assert.Equal(t, "cache", env.Error.Details[0].Field)
	assert.Equal(t, "unavailable", env.Error.Details[0].Message)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{model.NewValidationError("count", "bad"), http.StatusBadRequest},
		{model.ErrUserExists, http.StatusBadRequest},
		{model.ErrInvalidCredentials, http.StatusUnauthorized},
		{model.ErrInvalidToken, http.StatusUnauthorized},
		{model.ErrAccountBlocked, http.StatusUnauthorized},
		{model.ErrInvalidOldPassword, http.StatusBadRequest},
		{model.ErrNotFound, http.StatusNotFound},
		{model.ErrProductNotFound, http.StatusNotFound},
		{model.ErrAlreadyTracked, http.StatusConflict},
		{model.ErrUpstreamUnavailable, http.StatusBadGateway},
		{errors.New("pq: connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotContains(t, rec.Body.String(), "pq:")
		})
	}
}
