package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/jimdaga/ideaforge/internal/quota"
	"github.com/jimdaga/ideaforge/internal/store/storetest"
)

func TestUpsertUserCreatesWithFullAllotment(t *testing.T) {
	st, _ := storetest.Open(t)
	now := time.Date(2026, 10, 16, 15, 0, 0, 0, time.UTC)
	ledger := quota.NewLedger(st, quota.WithClock(func() time.Time { return now }))

	user, err := UpsertUser(context.Background(), st, ledger, "ada@example.com", "Ada")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if user.ID == 0 {
		t.Fatal("expected persisted user")
	}
	if user.Credits != quota.DefaultAllotment {
		t.Errorf("expected %d credits, got %d", quota.DefaultAllotment, user.Credits)
	}
	if !user.LastCreditReset.Equal(now) {
		t.Errorf("expected reset stamp %s, got %s", now, user.LastCreditReset)
	}

	// A user created mid-day must not be reset on first use.
	checked, err := ledger.CheckAndReset(context.Background(), user)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if checked != user {
		t.Error("expected no reset for a brand new user")
	}
}

func TestUpsertUserUpdatesExisting(t *testing.T) {
	st, _ := storetest.Open(t)
	ledger := quota.NewLedger(st)

	first, err := UpsertUser(context.Background(), st, ledger, "ada@example.com", "Ada")
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if _, err := st.ConsumeCredit(context.Background(), first.ID); err != nil {
		t.Fatalf("consume: %v", err)
	}

	second, err := UpsertUser(context.Background(), st, ledger, "ada@example.com", "Ada Lovelace")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected same user, got %d and %d", first.ID, second.ID)
	}

	reloaded, err := st.GetUser(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Name != "Ada Lovelace" {
		t.Errorf("expected updated name, got %q", reloaded.Name)
	}
	if reloaded.Credits != quota.DefaultAllotment-1 {
		t.Errorf("login must not refill credits, got %d", reloaded.Credits)
	}
	if reloaded.LastLoginAt == nil {
		t.Error("expected last login to be recorded")
	}
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions("ideaforge_session", cookie.NewStore([]byte("test-secret"))))

	r.GET("/test-login", func(c *gin.Context) {
		session := sessions.Default(c)
		session.Set("user_id", uint(7))
		session.Set("user_email", "ada@example.com")
		_ = session.Save()
		c.Status(http.StatusNoContent)
	})
	private := func(c *gin.Context) {
		id, ok := UserID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": id})
	}
	r.GET("/private", RequireAuth(), private)
	r.GET("/api/private", RequireAuth(), private)
	return r
}

func TestRequireAuth(t *testing.T) {
	r := newAuthRouter()

	t.Run("json client without session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set("Accept", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})

	t.Run("api path without session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/private", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401 for api path, got %d", w.Code)
		}
	})

	t.Run("browser without session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusFound || w.Header().Get("Location") != "/login" {
			t.Errorf("expected redirect to /login, got %d %s", w.Code, w.Header().Get("Location"))
		}
	})

	t.Run("with session", func(t *testing.T) {
		login := httptest.NewRecorder()
		r.ServeHTTP(login, httptest.NewRequest(http.MethodGet, "/test-login", nil))

		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		for _, cookie := range login.Result().Cookies() {
			req.AddCookie(cookie)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if w.Body.String() != `{"user_id":7}` {
			t.Errorf("unexpected body %s", w.Body.String())
		}
	})
}
