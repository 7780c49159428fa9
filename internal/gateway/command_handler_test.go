package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCommands struct {
	startErr error
	pauseErr error

	startedOwner    string
	startedDuration int64
	paused          int
	resumed         int
	cancelled       int
}

func (s *stubCommands) Start(ownerID string, durationMs int64) error {
	s.startedOwner = ownerID
	s.startedDuration = durationMs
	return s.startErr
}

func (s *stubCommands) Pause() error  { s.paused++; return s.pauseErr }
func (s *stubCommands) Resume() error { s.resumed++; return nil }
func (s *stubCommands) Cancel() error { s.cancelled++; return nil }

func postCommand(t *testing.T, mux *http.ServeMux, path, body string) (*httptest.ResponseRecorder, commandResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var resp commandResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	}
	return rec, resp
}

func newCommandMux(stub *stubCommands) *http.ServeMux {
	mux := http.NewServeMux()
	NewCommandHandler(stub).RegisterRoutes(mux)
	return mux
}

func TestStartCommandAcksAndForwardsArguments(t *testing.T) {
	stub := &stubCommands{}
	mux := newCommandMux(stub)

	rec, resp := postCommand(t, mux, "/api/giveaway/start", `{"owner_id":"owner-1","duration_ms":60000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.OK)
	assert.Equal(t, "owner-1", stub.startedOwner)
	assert.Equal(t, int64(60000), stub.startedDuration)
}

func TestStartCommandConflictAcksFalse(t *testing.T) {
	stub := &stubCommands{startErr: assert.AnError}
	mux := newCommandMux(stub)

	rec, resp := postCommand(t, mux, "/api/giveaway/start", `{"owner_id":"owner-1","duration_ms":60000}`)
	require.Equal(t, http.StatusOK, rec.Code, "a conflict is an ack, not an HTTP error")
	assert.False(t, resp.OK)
}

func TestStartCommandValidatesBody(t *testing.T) {
	stub := &stubCommands{}
	mux := newCommandMux(stub)

	for _, body := range []string{
		`not json`,
		`{"owner_id":"","duration_ms":60000}`,
		`{"owner_id":"owner-1","duration_ms":0}`,
		`{"owner_id":"owner-1","duration_ms":-5}`,
	} {
		rec, _ := postCommand(t, mux, "/api/giveaway/start", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", body)
	}
	assert.Empty(t, stub.startedOwner, "invalid requests never reach the state machine")
}

func TestSimpleCommandsAckTrue(t *testing.T) {
	stub := &stubCommands{}
	mux := newCommandMux(stub)

	for _, path := range []string{"/api/giveaway/pause", "/api/giveaway/resume", "/api/giveaway/cancel"} {
		rec, resp := postCommand(t, mux, path, "")
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.True(t, resp.OK, path)
	}
	assert.Equal(t, 1, stub.paused)
	assert.Equal(t, 1, stub.resumed)
	assert.Equal(t, 1, stub.cancelled)
}

func TestSimpleCommandFailureAcksFalse(t *testing.T) {
	stub := &stubCommands{pauseErr: assert.AnError}
	mux := newCommandMux(stub)

	rec, resp := postCommand(t, mux, "/api/giveaway/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, resp.OK)
}

func TestCommandsRejectNonPost(t *testing.T) {
	mux := newCommandMux(&stubCommands{})

	for _, path := range []string{"/api/giveaway/start", "/api/giveaway/pause", "/api/giveaway/resume", "/api/giveaway/cancel"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
	}
}
