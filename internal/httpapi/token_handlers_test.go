package httpapi

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockstash.org/internal/docstore"
)

func TestIssueTokenRequiresIdentity(t *testing.T) {
	_, c := newTestAPI(t)

	status, body := c.do(http.MethodGet, "/api/token", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Unauthorized", body["title"])
}

func TestIssueTokenIsStablePerUser(t *testing.T) {
	_, c := newTestAPI(t)

	status, _ := c.register("a@b.com", "pw")
	require.Equal(t, http.StatusOK, status)
	c.bearer = c.login("a@b.com", "pw")

	status, body := c.do(http.MethodGet, "/api/token", "")
	require.Equal(t, http.StatusOK, status, "response: %v", body)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	_, err := uuid.Parse(token)
	require.NoError(t, err, "token value must be a canonical UUID")
	assert.Nil(t, body["expires_at"])

	status, body = c.do(http.MethodGet, "/api/token", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, token, body["token"], "repeated calls must return the same token")
}

func TestTokenDocumentFlow(t *testing.T) {
	_, c := newTestAPI(t)
	value := uuid.NewString()

	// First write provisions the token.
	status, body := c.do(http.MethodPost, "/api/"+value+"/notes", `{"text":"hello"}`)
	require.Equal(t, http.StatusOK, status, "response: %v", body)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)

	status, body = c.do(http.MethodGet, "/api/"+value+"/notes/1/10", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total_count"])

	status, body = c.do(http.MethodGet, fmt.Sprintf("/api/%s/notes/%s", value, id), "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hello", body["text"])
	assert.Equal(t, id, body["_id"])

	status, body = c.do(http.MethodPut, fmt.Sprintf("/api/%s/notes/%s", value, id), `{"text":"edited"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, body = c.do(http.MethodDelete, fmt.Sprintf("/api/%s/notes/%s", value, id), "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, _ = c.do(http.MethodGet, fmt.Sprintf("/api/%s/notes/%s", value, id), "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestTokenScopesAreIsolated(t *testing.T) {
	_, c := newTestAPI(t)
	first := uuid.NewString()
	second := uuid.NewString()

	status, body := c.do(http.MethodPost, "/api/"+first+"/notes", `{"text":"mine"}`)
	require.Equal(t, http.StatusOK, status)
	id, _ := body["id"].(string)

	status, _ = c.do(http.MethodPost, "/api/"+second+"/other", `{"seed":true}`)
	require.Equal(t, http.StatusOK, status)

	status, _ = c.do(http.MethodGet, fmt.Sprintf("/api/%s/notes/%s", second, id), "")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = c.do(http.MethodGet, "/api/"+second+"/notes/1/10", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["total_count"])
}

func TestTokenMustLookLikeUUID(t *testing.T) {
	_, c := newTestAPI(t)

	status, body := c.do(http.MethodPost, "/api/not-a-uuid/notes", `{"a":1}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid token", body["detail"])
}

func TestReadsDoNotProvisionTokens(t *testing.T) {
	_, c := newTestAPI(t)
	value := uuid.NewString()

	status, body := c.do(http.MethodGet, "/api/"+value+"/notes/1/10", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid token", body["detail"])

	status, _ = c.do(http.MethodGet, fmt.Sprintf("/api/%s/notes/%s", value, uuid.NewString()), "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = c.do(http.MethodDelete, fmt.Sprintf("/api/%s/notes/%s", value, uuid.NewString()), "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestPayloadRulesPrecedeProvisioning(t *testing.T) {
	_, c := newTestAPI(t)
	value := uuid.NewString()

	status, body := c.do(http.MethodPost, "/api/"+value+"/notes", `[1,2,3]`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "input body is not valid", body["detail"])

	// The invalid write must not have registered the token.
	status, _ = c.do(http.MethodGet, "/api/"+value+"/notes/1/10", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	_, c := newTestAPI(t, docstore.WithProvisionTTL(-time.Minute))
	value := uuid.NewString()

	status, body := c.do(http.MethodPost, "/api/"+value+"/notes", `{"a":1}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "token expired", body["detail"])

	status, body = c.do(http.MethodGet, "/api/"+value+"/notes/1/10", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "token expired", body["detail"])
}

func TestTrialTokenQuotaOverHTTP(t *testing.T) {
	trial := uuid.NewString()
	_, c := newTestAPI(t, docstore.WithTrialToken(trial))

	for i := 0; i < docstore.TrialResourceCap; i++ {
		status, body := c.do(http.MethodPost, "/api/"+trial+"/notes", fmt.Sprintf(`{"i":%d}`, i))
		require.Equal(t, http.StatusOK, status, "create %d: %v", i+1, body)
	}

	status, body := c.do(http.MethodPost, "/api/"+trial+"/notes", `{"i":6}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "trial token quota exceeded", body["detail"])

	// Reads keep working at the cap.
	status, body = c.do(http.MethodGet, "/api/"+trial+"/notes/1/10", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(docstore.TrialResourceCap), body["total_count"])
}
