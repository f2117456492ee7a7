package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// MockResponse defines the behavior of one mock upstream response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is a configurable mock of the Twitter GraphQL API. Pages
// are keyed by cursor; the empty key serves the first page. Unknown
// operations fall through to a default empty timeline.
type MockUpstream struct {
	server *httptest.Server
	mu     sync.RWMutex

	pages    map[string]MockResponse
	users    map[string]string
	failures []MockResponse

	// Tracking
	RequestCount      int
	Cursors           []string
	LastRequestHeader http.Header
}

// NewMockUpstream creates a mock upstream server.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		pages: make(map[string]MockResponse),
		users: make(map[string]string),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()

		// Queued failures take precedence over scripted pages.
		if len(mock.failures) > 0 {
			resp := mock.failures[0]
			mock.failures = mock.failures[1:]
			mock.mu.Unlock()
			writeMockResponse(w, resp)
			return
		}
		mock.mu.Unlock()

		switch {
		case strings.HasSuffix(r.URL.Path, "/UserTweets"):
			mock.handleUserTweets(w, r)
		case strings.HasSuffix(r.URL.Path, "/UserByScreenName"):
			mock.handleUserByScreenName(w, r)
		default:
			http.NotFound(w, r)
		}
	}))

	return mock
}

// URL returns the mock server origin.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// SetPage scripts the response for a cursor. Use the empty cursor for
// the first page.
func (m *MockUpstream) SetPage(cursor string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[cursor] = resp
}

// SetTimeline scripts a page built from the fixture builder.
func (m *MockUpstream) SetTimeline(cursor, nextCursor string, tweets ...Tweet) {
	m.SetPage(cursor, MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(TimelineBody(nextCursor, tweets...)),
	})
}

// SetUser registers a screen name to rest_id mapping.
func (m *MockUpstream) SetUser(screenName, restID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[screenName] = restID
}

// QueueFailure makes the next request fail with the given response,
// regardless of operation. Queued failures are consumed in order.
func (m *MockUpstream) QueueFailure(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, resp)
}

// GetRequestCount returns the number of requests served.
func (m *MockUpstream) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetCursors returns the cursor of every UserTweets request in order.
func (m *MockUpstream) GetCursors() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Cursors...)
}

func (m *MockUpstream) handleUserTweets(w http.ResponseWriter, r *http.Request) {
	cursor := gjson.Get(r.URL.Query().Get("variables"), "cursor").String()

	m.mu.Lock()
	m.Cursors = append(m.Cursors, cursor)
	resp, ok := m.pages[cursor]
	m.mu.Unlock()

	if !ok {
		resp = MockResponse{
			StatusCode: http.StatusOK,
			Body:       string(TimelineBody("")),
		}
	}
	writeMockResponse(w, resp)
}

func (m *MockUpstream) handleUserByScreenName(w http.ResponseWriter, r *http.Request) {
	screenName := gjson.Get(r.URL.Query().Get("variables"), "screen_name").String()

	m.mu.RLock()
	restID, ok := m.users[screenName]
	m.mu.RUnlock()

	if !ok {
		writeMockResponse(w, MockResponse{StatusCode: http.StatusOK, Body: `{"data":{}}`})
		return
	}
	writeMockResponse(w, MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"data":{"user":{"result":{"rest_id":"` + restID + `"}}}}`,
	})
}

func writeMockResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewRateLimitResponse creates a 429 response with budget headers.
func NewRateLimitResponse(resetIn time.Duration) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"errors":[{"message":"Rate limit exceeded"}]}`,
		Headers: map[string]string{
			"x-rate-limit-remaining": "0",
			"x-rate-limit-reset":     strconv.FormatInt(time.Now().Add(resetIn).Unix(), 10),
		},
	}
}

// NewServerErrorResponse creates a 500 response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errors":[{"message":"Internal server error"}]}`,
	}
}
