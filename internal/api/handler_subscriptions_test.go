package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSubscriptionRouter() *gin.Engine {
	r := gin.New()
	handler := NewHandler(Deps{})
	r.PUT("/api/subscriptions", handler.PutSubscription)
	return r
}

func TestPutSubscription(t *testing.T) {
	router := setupSubscriptionRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/subscriptions", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())
}

func TestSubscriptionLifecycle(t *testing.T) {
	f := newFixture(t, "")
	eq, _ := f.seed(t)
	endpoint := "https://push.example.com/send/abc%2Bdef"

	w := f.do(http.MethodPut, "/api/subscriptions", gin.H{
		"endpoint": endpoint, "p256dh": "key", "auth": "secret", "subscribed_equipment": []int64{eq.ID},
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"subscribed_equipment":[%d]}`, eq.ID), w.Body.String())

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/subscriptions", nil, "").Code)

	w = f.do(http.MethodDelete, "/api/subscriptions", gin.H{"endpoint": endpoint}, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetVAPIDPublicKey(t *testing.T) {
	r := gin.New()
	r.GET("/key", NewHandler(Deps{}).GetVAPIDPublicKey)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/key", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	r = gin.New()
	r.GET("/key", NewHandler(Deps{WebPush: &webpush.Options{VAPIDPublicKey: "pub"}}).GetVAPIDPublicKey)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.JSONEq(t, `{"public_key":"pub"}`, w.Body.String())
}
