package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/farellandr/cashback/config"
	"github.com/farellandr/cashback/internal/helpers"
	"github.com/farellandr/cashback/internal/ledger"
	"github.com/farellandr/cashback/internal/models"
	"github.com/farellandr/cashback/internal/sweeper"
	"github.com/farellandr/cashback/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	postbackSecret = "postback-secret"
	callbackToken  = "xendit-callback-token"
	opsKey         = "ops-key"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Pagination *struct {
		Total      int64 `json:"total"`
		Page       int   `json:"page"`
		TotalPages int   `json:"totalPages"`
		Limit      int   `json:"limit"`
	} `json:"pagination"`
	Error string `json:"error"`
	Field string `json:"field"`
}

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	app    *App
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := &config.Config{
		JWTSecret:               "access-secret-access-secret-access-secret",
		JWTRefreshSecret:        "refresh-secret-refresh-secret-refresh-secret",
		AccessTokenTTL:          15 * time.Minute,
		RefreshTokenTTL:         7 * 24 * time.Hour,
		ConfirmationWindow:      30 * 24 * time.Hour,
		MinWithdrawal:           decimal.RequireFromString("10.00"),
		PageLimitMax:            100,
		RequestTimeout:          5 * time.Second,
		SweepBatchSize:          500,
		LeaseTTL:                4 * time.Minute,
		BlacklistBackend:        "memory",
		AdminAPIKey:             opsKey,
		AffiliatePostbackSecret: postbackSecret,
		UploadDir:               t.TempDir(),
		Xendit:                  config.XenditConfig{CallbackToken: callbackToken, Currency: "IDR"},
	}
	app, err := Wire(cfg, db, testutil.Logger(t))
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return &testServer{t: t, db: db, app: app, router: NewRouter(app)}
}

func (s *testServer) do(method, path, token string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var raw []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		raw = b
	default:
		var err error
		if raw, err = json.Marshal(b); err != nil {
			s.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	if raw != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "image/png" {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			s.t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, env
}

func (s *testServer) login(email string, role models.Role) (string, *models.User) {
	s.t.Helper()
	u := testutil.SeedUser(s.t, s.db, email, role)
	w, env := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": testutil.Password})
	if w.Code != http.StatusOK {
		s.t.Fatalf("login %s: %d %s", email, w.Code, w.Body.String())
	}
	var session struct {
		AccessToken string `json:"accessToken"`
	}
	decode(s.t, env.Data, &session)
	return session.AccessToken, u
}

func decode(t *testing.T, raw json.RawMessage, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, env envelope, status int, kind string) {
	t.Helper()
	if w.Code != status || env.Success || env.Error != kind {
		t.Fatalf("got %d %s, want %d %s", w.Code, w.Body.String(), status, kind)
	}
}

func TestRedeemOverHTTP(t *testing.T) {
	s := newTestServer(t)
	tokenA, _ := s.login("a@example.com", models.RoleUser)
	tokenB, _ := s.login("b@example.com", models.RoleUser)
	now := time.Now().UTC()

	save20 := testutil.SeedCoupon(t, s.db, &models.Coupon{
		Code: "SAVE20", Discount: 20, IsActive: true,
		ExpiryDate: testutil.TimePtr(now.Add(7 * 24 * time.Hour)), UsageLimit: testutil.IntPtr(100),
	})
	inactive := testutil.SeedCoupon(t, s.db, &models.Coupon{Code: "OFF10", Discount: 10, IsActive: false})
	expired := testutil.SeedCoupon(t, s.db, &models.Coupon{
		Code: "OLD5", Discount: 5, IsActive: true, ExpiryDate: testutil.TimePtr(now.Add(-24 * time.Hour)),
	})
	full := testutil.SeedCoupon(t, s.db, &models.Coupon{
		Code: "FULL", Discount: 5, IsActive: true, UsageLimit: testutil.IntPtr(100), UsageCount: 100,
	})

	w, env := s.do(http.MethodPost, "/api/coupons/"+save20.ID.String()+"/redeem", tokenA, nil)
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("redeem: %d %s", w.Code, w.Body.String())
	}
	var res struct {
		Coupon         models.Coupon `json:"coupon"`
		RedemptionDate time.Time     `json:"redemptionDate"`
	}
	decode(t, env.Data, &res)
	if res.Coupon.UsageCount != 1 || res.RedemptionDate.IsZero() {
		t.Fatalf("result = %+v", res)
	}

	w, env = s.do(http.MethodPost, "/api/coupons/"+save20.ID.String()+"/redeem", tokenA, nil)
	expectError(t, w, env, http.StatusBadRequest, "AlreadyRedeemed")

	tests := []struct {
		name string
		id   string
		kind string
	}{
		{"inactive", inactive.ID.String(), "Inactive"},
		{"expired", expired.ID.String(), "Expired"},
		{"limit reached", full.ID.String(), "LimitReached"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := s.do(http.MethodPost, "/api/coupons/"+tt.id+"/redeem", tokenB, nil)
			expectError(t, w, env, http.StatusBadRequest, tt.kind)
		})
	}

	var stored models.Coupon
	s.db.First(&stored, "id = ?", save20.ID)
	if stored.UsageCount != 1 {
		t.Fatalf("usageCount = %d, want 1", stored.UsageCount)
	}
}

func TestStatusMapping(t *testing.T) {
	s := newTestServer(t)
	userToken, _ := s.login("user@example.com", models.RoleUser)
	adminToken, _ := s.login("admin@example.com", models.RoleAdmin)
	st := testutil.SeedStore(t, s.db, "acme", "5")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		status int
		kind   string
		field  string
	}{
		{"no token", http.MethodGet, "/api/coupons", "", nil, http.StatusUnauthorized, "Unauthorized", ""},
		{"garbage token", http.MethodGet, "/api/coupons", "not-a-jwt", nil, http.StatusUnauthorized, "Unauthorized", ""},
		{"user creating coupon", http.MethodPost, "/api/coupons", userToken,
			map[string]interface{}{"code": "NEW1", "title": "x", "store": st.ID, "discount": 10}, http.StatusForbidden, "Forbidden", ""},
		{"unknown coupon", http.MethodGet, "/api/coupons/6f1c2b8e-7d0a-4a53-9d1e-2f9b1a8c7e11", userToken, nil, http.StatusNotFound, "NotFound", ""},
		{"malformed id", http.MethodGet, "/api/coupons/abc", userToken, nil, http.StatusBadRequest, "ValidationError", "id"},
		{"discount out of range", http.MethodPost, "/api/coupons", adminToken,
			map[string]interface{}{"code": "BIG", "title": "x", "store": st.ID, "discount": 150}, http.StatusBadRequest, "ValidationError", "discount"},
		{"withdraw below minimum", http.MethodPost, "/api/cashback/withdraw", userToken,
			map[string]string{"method": "BANK", "destination": "123"}, http.StatusBadRequest, "InsufficientFunds", ""},
		{"bad sort", http.MethodGet, "/api/coupons?sort=password", userToken, nil, http.StatusBadRequest, "ValidationError", "sort"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := s.do(tt.method, tt.path, tt.token, tt.body)
			expectError(t, w, env, tt.status, tt.kind)
			if env.Field != tt.field {
				t.Errorf("field = %q, want %q", env.Field, tt.field)
			}
		})
	}

	body := map[string]interface{}{"code": "dup1", "title": "first", "store": st.ID, "discount": 10}
	if w, _ := s.do(http.MethodPost, "/api/coupons", adminToken, body); w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	w, env := s.do(http.MethodPost, "/api/coupons", adminToken, body)
	expectError(t, w, env, http.StatusBadRequest, "Conflict")
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.login("admin@example.com", models.RoleAdmin)

	if w, _ := s.do(http.MethodGet, "/api/auth/me", token, nil); w.Code != http.StatusOK {
		t.Fatalf("me before logout: %d", w.Code)
	}
	w, _ := s.do(http.MethodPost, "/api/auth/logout", token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout: %d %s", w.Code, w.Body.String())
	}
	w, env := s.do(http.MethodGet, "/api/auth/me", token, nil)
	expectError(t, w, env, http.StatusUnauthorized, "Unauthorized")

	if w, _ := s.do(http.MethodPost, "/api/auth/logout", token, nil); w.Code != http.StatusNoContent {
		t.Fatalf("second logout: %d", w.Code)
	}
}

func TestRegisterRefreshAndRevokeAll(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "New.User@Example.com", "password": "long-enough-pw", "name": "New User",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	var session struct {
		AccessToken  string      `json:"accessToken"`
		RefreshToken string      `json:"refreshToken"`
		User         models.User `json:"user"`
	}
	decode(t, env.Data, &session)
	if session.User.Email != "new.user@example.com" || session.User.Role != models.RoleUser {
		t.Fatalf("user = %+v", session.User)
	}

	w, env = s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "new.user@example.com", "password": "long-enough-pw", "name": "Again",
	})
	expectError(t, w, env, http.StatusBadRequest, "ValidationError")

	w, env = s.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": session.RefreshToken})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", w.Code, w.Body.String())
	}

	if w, _ := s.do(http.MethodPost, "/api/auth/revoke-all", session.AccessToken, nil); w.Code != http.StatusNoContent {
		t.Fatalf("revoke-all: %d", w.Code)
	}
	w, env = s.do(http.MethodGet, "/api/auth/me", session.AccessToken, nil)
	expectError(t, w, env, http.StatusUnauthorized, "Unauthorized")
	w, env = s.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": session.RefreshToken})
	expectError(t, w, env, http.StatusUnauthorized, "Unauthorized")

	w, env = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "new.user@example.com", "password": "wrong-password"})
	expectError(t, w, env, http.StatusUnauthorized, "Unauthorized")
}

func TestWithdrawalLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	userToken, user := s.login("saver@example.com", models.RoleUser)
	adminToken, _ := s.login("admin@example.com", models.RoleAdmin)
	st := testutil.SeedStore(t, s.db, "acme", "5")

	record := func(gross string, purchased time.Time) {
		t.Helper()
		w, _ := s.do(http.MethodPost, "/api/admin/cashback/transactions", adminToken, map[string]interface{}{
			"userId": user.ID, "storeId": st.ID, "grossAmount": gross, "rate": "10", "purchaseDate": purchased,
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("record: %d %s", w.Code, w.Body.String())
		}
	}
	record("300.00", time.Now().Add(-40*24*time.Hour))
	if rep := s.app.Sweeper.Tick(ctx); rep.Result != sweeper.ResultOK || rep.Confirmed != 1 {
		t.Fatalf("sweep = %+v", rep)
	}
	record("450.00", time.Now().Add(-time.Hour))

	balance := func() ledger.Balance {
		t.Helper()
		w, env := s.do(http.MethodGet, "/api/cashback/balance", userToken, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("balance: %d %s", w.Code, w.Body.String())
		}
		var b ledger.Balance
		decode(t, env.Data, &b)
		return b
	}
	b := balance()
	if !b.Available.Equal(decimal.NewFromInt(30)) || !b.Pending.Equal(decimal.NewFromInt(45)) {
		t.Fatalf("balance before withdrawal = %+v", b)
	}

	w, env := s.do(http.MethodPost, "/api/cashback/withdraw", userToken, map[string]string{"method": "ID_OVO", "destination": "081234567890"})
	if w.Code != http.StatusOK {
		t.Fatalf("withdraw: %d %s", w.Code, w.Body.String())
	}
	var wd models.Withdrawal
	decode(t, env.Data, &wd)
	if b := balance(); !b.Available.IsZero() {
		t.Fatalf("available after request = %s", b.Available)
	}

	callback := map[string]interface{}{
		"event": "payout.succeeded",
		"data":  map[string]string{"id": "disb-1", "reference_id": wd.Reference, "status": "SUCCEEDED"},
	}
	w, env = s.do(http.MethodPost, "/api/cashback/withdrawals/callback", "", callback)
	expectError(t, w, env, http.StatusUnauthorized, "Unauthorized")

	w, _ = s.do(http.MethodPost, "/api/cashback/withdrawals/callback", "", callback, "x-callback-token", callbackToken)
	if w.Code != http.StatusOK {
		t.Fatalf("callback: %d %s", w.Code, w.Body.String())
	}

	b = balance()
	if !b.Available.IsZero() || !b.TotalRedeemed.Equal(decimal.NewFromInt(30)) || !b.Pending.Equal(decimal.NewFromInt(45)) {
		t.Fatalf("balance after settlement = %+v", b)
	}

	w, env = s.do(http.MethodGet, "/api/admin/users/"+user.ID.String()+"/balance-check", adminToken, nil)
	var check ledger.BalanceCheck
	decode(t, env.Data, &check)
	if w.Code != http.StatusOK || !check.Consistent {
		t.Fatalf("balance check: %d %+v", w.Code, check)
	}

	w, env = s.do(http.MethodGet, "/api/cashback?status=paid", userToken, nil)
	if w.Code != http.StatusOK || env.Pagination == nil || env.Pagination.Total != 1 {
		t.Fatalf("paid transactions: %d %s", w.Code, w.Body.String())
	}
}

func TestPostbackRecordsOnce(t *testing.T) {
	s := newTestServer(t)
	token, user := s.login("shopper@example.com", models.RoleUser)
	st := testutil.SeedStore(t, s.db, "acme", "5")

	w, env := s.do(http.MethodPost, "/api/stores/"+st.ID.String()+"/click", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("click: %d %s", w.Code, w.Body.String())
	}
	var click struct {
		ClickRef    string `json:"clickRef"`
		TrackingURL string `json:"trackingUrl"`
	}
	decode(t, env.Data, &click)
	if click.ClickRef == "" || click.TrackingURL == "" {
		t.Fatalf("click = %+v", click)
	}

	body, _ := json.Marshal(map[string]string{"clickRef": click.ClickRef, "orderId": "ORD-9", "amount": "120.00"})
	sig := helpers.SignPayload(postbackSecret, body)

	w, env = s.do(http.MethodPost, "/api/cashback/postback", "", body, helpers.SignatureHeader, "sha256=00")
	expectError(t, w, env, http.StatusUnauthorized, "Unauthorized")

	w, env = s.do(http.MethodPost, "/api/cashback/postback", "", body, helpers.SignatureHeader, sig)
	if w.Code != http.StatusCreated {
		t.Fatalf("postback: %d %s", w.Code, w.Body.String())
	}
	var first models.CashbackTransaction
	decode(t, env.Data, &first)
	if first.UserID != user.ID || !first.CashbackAmount.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("transaction = %+v", first)
	}

	w, env = s.do(http.MethodPost, "/api/cashback/postback", "", body, helpers.SignatureHeader, sig)
	var replay models.CashbackTransaction
	decode(t, env.Data, &replay)
	if w.Code != http.StatusOK || replay.ID != first.ID {
		t.Fatalf("replay: %d id %s, want 200 id %s", w.Code, replay.ID, first.ID)
	}
}

func TestCouponQRAndCategories(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.login("user@example.com", models.RoleUser)
	c := testutil.SeedCoupon(t, s.db, &models.Coupon{Code: "SCANME", Discount: 5, IsActive: true, Category: "food"})

	w, _ := s.do(http.MethodGet, "/api/coupons/"+c.ID.String()+"/qr", token, nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("qr: %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatal("qr body is not a PNG")
	}

	w, env := s.do(http.MethodGet, "/api/categories", token, nil)
	var cats []string
	decode(t, env.Data, &cats)
	if w.Code != http.StatusOK || len(cats) != 2 || cats[0] != "fashion" || cats[1] != "food" {
		t.Fatalf("categories: %d %v", w.Code, cats)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	if w, _ := s.do(http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}
	w, env := s.do(http.MethodGet, "/health/detailed", "", nil)
	expectError(t, w, env, http.StatusUnauthorized, "Unauthorized")

	w, env = s.do(http.MethodGet, "/health/detailed", "", nil, "X-API-Key", opsKey)
	if w.Code != http.StatusOK {
		t.Fatalf("detailed: %d %s", w.Code, w.Body.String())
	}
	var detail struct {
		Components map[string]struct {
			Status string `json:"status"`
		} `json:"components"`
		Blacklist string `json:"blacklistBackend"`
	}
	decode(t, env.Data, &detail)
	if detail.Components["database"].Status != "up" || detail.Blacklist != "memory" {
		t.Fatalf("detail = %+v", detail)
	}
}

func TestRequestsCarryDeadline(t *testing.T) {
	s := newTestServer(t)
	var remaining time.Duration
	var bounded bool
	s.router.GET("/test/deadline", func(c *gin.Context) {
		deadline, ok := c.Request.Context().Deadline()
		bounded, remaining = ok, time.Until(deadline)
		c.Status(http.StatusNoContent)
	})

	if w, _ := s.do(http.MethodGet, "/test/deadline", "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if !bounded || remaining <= 0 || remaining > 5*time.Second {
		t.Fatalf("request deadline set = %v, remaining %v", bounded, remaining)
	}
}

func TestPostbackRejectsMalformedBodies(t *testing.T) {
	s := newTestServer(t)

	missing, _ := json.Marshal(map[string]string{"clickRef": "abc", "amount": "10"})
	w, env := s.do(http.MethodPost, "/api/cashback/postback", "", missing,
		helpers.SignatureHeader, helpers.SignPayload(postbackSecret, missing))
	expectError(t, w, env, http.StatusBadRequest, "ValidationError")
	if env.Field != "orderId" {
		t.Errorf("field = %q, want orderId", env.Field)
	}

	huge := bytes.Repeat([]byte("a"), 65<<10)
	w, env = s.do(http.MethodPost, "/api/cashback/postback", "", huge,
		helpers.SignatureHeader, helpers.SignPayload(postbackSecret, huge))
	expectError(t, w, env, http.StatusBadRequest, "ValidationError")
}
