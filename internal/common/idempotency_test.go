package common_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-bff/internal/common"
)

func newIdem(t *testing.T) (common.Idem, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return common.Idem{R: client}, mr
}

func checkoutRequest(sid, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.Header.Set(common.IdempotencyHeader, key)
	return req.WithContext(common.WithSessionID(req.Context(), sid))
}

func TestIdemRejectsReplay(t *testing.T) {
	idem, _ := newIdem(t)
	calls := 0
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, checkoutRequest("s1", "key-1"))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, checkoutRequest("s1", "key-1"))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "IDEMPOTENT_REPLAY")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, checkoutRequest("s2", "key-1"))
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, 2, calls)
}

func TestIdemReleasesKeyOnFailure(t *testing.T) {
	idem, mr := newIdem(t)
	status := http.StatusBadGateway
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, checkoutRequest("s1", "key-2"))
	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.Empty(t, mr.Keys())

	status = http.StatusCreated
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, checkoutRequest("s1", "key-2"))
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Len(t, mr.Keys(), 1)
}

func TestIdemPassesThroughWithoutKey(t *testing.T) {
	idem, mr := newIdem(t)
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil))
		require.Equal(t, http.StatusCreated, rr.Code)
	}
	require.Empty(t, mr.Keys())
}
