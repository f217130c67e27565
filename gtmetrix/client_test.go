package gtmetrix

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(ts *httptest.Server) *Client {
	c := New(ts.URL, "aaa", nil, "debug")
	c.pollInterval = time.Millisecond
	return c
}

func serveJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	data, _ := json.Marshal(v)
	_, _ = w.Write(data)
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{"data": data}
}

func testData(id, state string, links map[string]string) map[string]interface{} {
	d := map[string]interface{}{
		"type":       "test",
		"id":         id,
		"attributes": map[string]interface{}{"state": state},
	}
	if links != nil {
		d["links"] = links
	}
	return d
}

func reportData(id string, attrs map[string]interface{}, links map[string]string) map[string]interface{} {
	if links == nil {
		links = map[string]string{}
	}
	return map[string]interface{}{
		"type":       "report",
		"id":         id,
		"attributes": attrs,
		"links":      links,
	}
}

func TestClient_StartTest(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tests", r.URL.String())
		assert.Equal(t, http.MethodPost, r.Method)
		// API key as basic auth user, empty password
		assert.Equal(t, "Basic YWFhOg==", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.api+json", r.Header.Get("Content-Type"))

		var p startTestPayload
		err := json.NewDecoder(r.Body).Decode(&p)
		if err != nil {
			t.Error(err)
		}
		assert.Equal(t, "test", p.Data.Type)
		assert.Equal(t, "http://example.com", p.Data.Attributes["url"])
		assert.Equal(t, "none", p.Data.Attributes["report"])

		serveJSON(w, http.StatusCreated, envelope(testData("abc123", StateQueued, nil)))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	test, err := c.StartTest("http://example.com", map[string]interface{}{"report": "none"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", test.ID())
	assert.Equal(t, StateQueued, test.State())
	assert.False(t, test.Done())
}

func TestClient_StartTestInvalidUrl(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"errors": []map[string]string{
				{"status": "422", "code": "E42200", "title": "Validation error", "detail": "invalid url"},
			},
		})
	}))
	defer ts.Close()

	c := newTestClient(ts)
	_, err := c.StartTest("not-an-url", nil)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnprocessableEntity, reqErr.StatusCode)
	assert.Equal(t, "invalid url", reqErr.Message())
}

func TestClient_ConnectionError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(ts)
	ts.Close()

	_, err := c.StartTest("http://example.com", nil)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Error(t, errors.Unwrap(connErr))
}

func TestClient_RateLimitRetry(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("X-RateLimit-Reset", "2")
			serveJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"errors": []map[string]string{
					{"status": "429", "code": "E42901", "title": "Rate limit exceeded"},
				},
			})
			return
		}
		serveJSON(w, http.StatusOK, envelope(testData("abc123", StateQueued, nil)))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }

	test, err := c.StartTest("http://example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, "abc123", test.ID())
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{2 * time.Second}, slept)
}

func TestClient_RateLimitRetryGivesUp(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		serveJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"errors": []map[string]string{
				{"status": "429", "code": "E42900", "title": "Too many tests pending"},
			},
		})
	}))
	defer ts.Close()

	c := newTestClient(ts)
	c.sleep = func(time.Duration) {}

	_, err := c.StartTest("http://example.com", nil)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusTooManyRequests, reqErr.StatusCode)
	assert.Equal(t, maxRateLimitRetries+1, calls)
}

func TestClient_ConfigureRateLimit(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		serveJSON(w, http.StatusOK, envelope(testData("abc123", StateQueued, nil)))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	c.ConfigureRateLimit(100, 1)
	assert.Equal(t, float64(100), float64(c.limiter.Limit()))

	test := c.TestFromID("abc123")
	for i := 0; i < 2; i++ {
		_, err := test.Fetch()
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)
}

func TestClient_ListTests(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tests", r.URL.Path)
		assert.Equal(t, "-created", r.URL.Query().Get("sort"))
		assert.Equal(t, "completed", r.URL.Query().Get("filter[state]"))

		serveJSON(w, http.StatusOK, envelope([]interface{}{
			testData("abc123", StateCompleted, nil),
			testData("def456", StateCompleted, nil),
		}))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	tests, err := c.ListTests("-created", map[string]string{"state": StateCompleted})
	require.NoError(t, err)
	require.Len(t, tests, 2)
	// server ordering is kept as-is
	assert.Equal(t, "abc123", tests[0].ID())
	assert.Equal(t, "def456", tests[1].ID())
	assert.Equal(t, StateCompleted, tests[0].State())
}

func TestClient_Status(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.String())
		serveJSON(w, http.StatusOK, envelope(map[string]interface{}{
			"type": "user",
			"id":   "aaa",
			"attributes": map[string]interface{}{
				"api_credits": 1497,
				"api_refill":  1618437519,
			},
		}))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	status, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, float64(1497), status["api_credits"])
}

func TestClient_ReportFromIDNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveJSON(w, http.StatusNotFound, map[string]interface{}{
			"errors": []map[string]string{
				{"status": "404", "code": "E40400", "title": "Report not found"},
			},
		})
	}))
	defer ts.Close()

	c := newTestClient(ts)
	_, err := c.ReportFromID("gone")
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusNotFound, reqErr.StatusCode)
	assert.Equal(t, "Report not found", reqErr.Message())
}
