package verify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient("AC123", "secret", "VA456", nil).WithBaseURL(srv.URL)
}

func TestStartVerificationPostsForm(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/Services/VA456/Verifications", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+15551234567", r.PostForm.Get("To"))
		assert.Equal(t, ChannelSMS, r.PostForm.Get("Channel"))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"sid":"VE1","status":"pending","to":"+15551234567","channel":"sms"}`)
	})

	v, err := c.StartVerification(context.Background(), "+15551234567", "")
	require.NoError(t, err)
	assert.Equal(t, "VE1", v.SID)
	assert.False(t, v.Approved())
}

func TestCheckVerificationApproved(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/Services/VA456/VerificationCheck", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "123456", r.PostForm.Get("Code"))
		fmt.Fprint(w, `{"sid":"VE1","status":"approved","to":"+15551234567","valid":true}`)
	})

	v, err := c.CheckVerification(context.Background(), "+15551234567", "123456")
	require.NoError(t, err)
	assert.True(t, v.Approved())
}

func TestCheckVerificationNotFoundIsNotApproved(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"code":20404,"message":"The requested resource was not found","status":404}`)
	})

	v, err := c.CheckVerification(context.Background(), "+15551234567", "000000")
	require.NoError(t, err)
	assert.False(t, v.Approved())
}

func TestCheckVerificationEmptyCodeSkipsCall(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	})
	v, err := c.CheckVerification(context.Background(), "+15551234567", " ")
	require.NoError(t, err)
	assert.False(t, v.Approved())
}

func TestTwilioErrorSurfaced(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":60200,"message":"Invalid parameter: To","status":400}`)
	})

	_, err := c.StartVerification(context.Background(), "+1555", ChannelSMS)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "code 60200: Invalid parameter: To"), err.Error())
}

func TestMissingCredentials(t *testing.T) {
	c := NewClient("", "", "", nil)
	_, err := c.StartVerification(context.Background(), "+15551234567", ChannelSMS)
	require.Error(t, err)
}

func TestFormatTwilioErrorFallbacks(t *testing.T) {
	assert.Equal(t, "status 500", formatTwilioError(500, []byte("  ")))
	assert.Equal(t, "status 502: bad gateway", formatTwilioError(502, []byte("bad gateway")))
	assert.Equal(t, "status 429: Too many requests", formatTwilioError(429, []byte(`{"message":"Too many requests"}`)))
}
