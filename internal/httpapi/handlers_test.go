package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockstash.org/internal/auth"
	"mockstash.org/internal/docstore"
)

// apiClient drives the API the way an HTTP caller would. bearer and ip are
// attached to every request when set.
type apiClient struct {
	t      *testing.T
	base   string
	bearer string
	ip     string
}

func (c *apiClient) do(method, path, body string) (int, map[string]any) {
	c.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.ip != "" {
		req.Header.Set("X-Forwarded-For", c.ip)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(c.t, json.Unmarshal(raw, &decoded), "response body: %s", raw)
	}
	return resp.StatusCode, decoded
}

func newTestAPI(t *testing.T, storeOpts ...docstore.Option) (*API, *apiClient) {
	t.Helper()
	t.Setenv("MOCKSTASH_AUTH_SECRET", "handler-test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	docs := docstore.NewInMemory(storeOpts...)
	api := New(ReadyProbe{}, "test", docs, auth.NewService(auth.NewInMemoryUsers()))
	api.RateLimits(10000, 10000)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return api, &apiClient{t: t, base: srv.URL, ip: "203.0.113.1"}
}

func (c *apiClient) register(email, password string) (int, map[string]any) {
	return c.do(http.MethodPost, "/register",
		fmt.Sprintf(`{"email":%q,"password":%q,"first_name":"Test","last_name":"User"}`, email, password))
}

func (c *apiClient) login(email, password string) string {
	c.t.Helper()
	status, body := c.do(http.MethodPost, "/login",
		fmt.Sprintf(`{"email":%q,"password":%q}`, email, password))
	require.Equal(c.t, http.StatusOK, status, "login response: %v", body)
	token, _ := body["token"].(string)
	require.NotEmpty(c.t, token)
	return token
}

func TestHealthEndpoints(t *testing.T) {
	_, c := newTestAPI(t)

	status, body := c.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "mockstash-api", body["service"])
	assert.Equal(t, "test", body["version"])

	status, body = c.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	status, body = c.do(http.MethodGet, "/v1/info", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "mockstash-api", body["name"])
	assert.NotEmpty(t, body["time"])
}

func TestMetricsEndpoint(t *testing.T) {
	_, c := newTestAPI(t)

	resp, err := http.Get(c.base + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownPathIsProblem(t *testing.T) {
	_, c := newTestAPI(t)

	status, body := c.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Not Found", body["title"])
	assert.Equal(t, float64(http.StatusNotFound), body["status"])
	assert.NotEmpty(t, body["request_id"])
}

func TestRegisterLoginAndChangePassword(t *testing.T) {
	_, c := newTestAPI(t)

	status, body := c.register("a@b.com", "s3cret")
	require.Equal(t, http.StatusOK, status, "register response: %v", body)
	assert.Equal(t, "ok", body["status"])

	status, body = c.register("a@b.com", "other")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "email is already registered", body["detail"])

	status, body = c.do(http.MethodPost, "/login", `{"email":"a@b.com","password":"wrong"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "email or password is incorrect", body["detail"])

	token := c.login("a@b.com", "s3cret")

	// password change requires a verified identity
	status, body = c.do(http.MethodPost, "/change-password",
		`{"password":"s3cret","new_password":"n3w","repeat_password":"n3w"}`)
	assert.Equal(t, http.StatusUnauthorized, status, "response: %v", body)

	c.bearer = token
	status, body = c.do(http.MethodPost, "/change-password",
		`{"password":"s3cret","new_password":"n3w","repeat_password":"different"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["detail"], "should be same")

	status, _ = c.do(http.MethodPost, "/change-password",
		`{"password":"s3cret","new_password":"n3w","repeat_password":"n3w"}`)
	assert.Equal(t, http.StatusOK, status)

	c.bearer = ""
	c.login("a@b.com", "n3w")
}

func TestMe(t *testing.T) {
	_, c := newTestAPI(t)

	status, _ := c.do(http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = c.register("a@b.com", "pw")
	require.Equal(t, http.StatusOK, status)
	c.bearer = c.login("a@b.com", "pw")

	status, body := c.do(http.MethodGet, "/me", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "a@b.com", body["email"])
	assert.Equal(t, "Test User", body["full_name"])
}

func TestRegisterValidationErrors(t *testing.T) {
	_, c := newTestAPI(t)

	status, body := c.do(http.MethodPost, "/register", `{"email":"not-an-email","password":"pw"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["detail"], "email format is incorrect")

	status, _ = c.do(http.MethodPost, "/register", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = c.do(http.MethodPost, "/register", `{"email":"a@b.com","password":"pw","bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestInvalidBearerIsRejected(t *testing.T) {
	_, c := newTestAPI(t)

	c.bearer = "not-a-valid-jwt"
	status, body := c.do(http.MethodPost, "/widgets", `{"name":"a"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid token", body["detail"])
}

func TestMalformedAuthorizationScheme(t *testing.T) {
	_, c := newTestAPI(t)

	req, err := http.NewRequest(http.MethodPost, c.base+"/widgets", bytes.NewReader([]byte(`{"a":1}`)))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
