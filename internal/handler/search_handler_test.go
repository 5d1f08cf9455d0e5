package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/octobees/leads-discovery/internal/dto"
	"github.com/octobees/leads-discovery/internal/entity"
	middleware "github.com/octobees/leads-discovery/internal/middleware"
	"github.com/octobees/leads-discovery/internal/source"
)

type stubStreamer struct {
	events    []entity.ProgressEvent
	brief     entity.SearchBrief
	principal entity.Principal
	requestID string
	calls     int
}

func (s *stubStreamer) Stream(ctx context.Context, brief entity.SearchBrief, principal entity.Principal) <-chan entity.ProgressEvent {
	s.calls++
	s.brief = brief
	s.principal = principal
	s.requestID = source.RequestIDFromContext(ctx)
	ch := make(chan entity.ProgressEvent, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch
}

type stubRunStore struct {
	mu    sync.Mutex
	saved []entity.SearchRun
	ctxOK bool
	err   error
}

func (s *stubRunStore) SaveRun(ctx context.Context, run entity.SearchRun) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, hasDeadline := ctx.Deadline()
	s.ctxOK = ctx.Err() == nil && hasDeadline
	s.saved = append(s.saved, run)
	if s.err != nil {
		return uuid.Nil, s.err
	}
	return uuid.New(), nil
}

func completeRun() []entity.ProgressEvent {
	return []entity.ProgressEvent{
		{Kind: entity.EventProgress, Tier: "directory", Status: entity.StatusStarted, Target: 5, Logs: []string{"tier directory started"}},
		{Kind: entity.EventProgress, Tier: "directory", Status: entity.StatusTierComplete, Found: 1, Target: 5, CurrentSource: "directory", Logs: []string{"tier directory started"}},
		{Kind: entity.EventComplete, Contacts: []entity.Contact{{IdentityKey: "email:a@x.io", Email: "a@x.io"}}, Total: 1, Logs: []string{"tier directory started"}},
	}
}

func newStreamContext(target string, principal *entity.Principal) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(middleware.ContextKeyRequestID, "rid-1")
	if principal != nil {
		c.Set(middleware.ContextKeyPrincipal, *principal)
	}
	return c, rec
}

func readFrames(t *testing.T, body string) []map[string]any {
	t.Helper()
	var frames []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		require.True(t, strings.HasPrefix(line, "data: "), "unexpected line %q", line)
		var frame map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame))
		frames = append(frames, frame)
	}
	return frames
}

var streamLimits = dto.SearchLimits{DefaultTargetCount: 50, MaxTargetCount: 100}

func TestSearchHandler_StreamsFramesAndPersists(t *testing.T) {
	streamer := &stubStreamer{events: completeRun()}
	store := &stubRunStore{}
	h := NewSearchHandler(streamer, store, streamLimits, zap.NewNop())

	principal := entity.Principal{ID: "user-1"}
	c, rec := newStreamContext("/search/stream?contactTypes=playlist_curator&markets=za&searchDepth=quick&targetCount=5&genre=amapiano", &principal)

	require.NoError(t, h.Stream(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))

	frames := readFrames(t, rec.Body.String())
	require.Len(t, frames, 3)
	assert.Equal(t, "progress", frames[0]["kind"])
	assert.Equal(t, "started", frames[0]["status"])
	assert.Equal(t, "tier_complete", frames[1]["status"])
	assert.Equal(t, "complete", frames[2]["kind"])
	assert.Len(t, frames[2]["contacts"], 1)
	assert.EqualValues(t, 1, frames[2]["total"])

	assert.Equal(t, []string{"playlist_curator"}, streamer.brief.ContactTypes)
	assert.Equal(t, []string{"ZA"}, streamer.brief.Markets)
	assert.Equal(t, entity.DepthQuick, streamer.brief.Depth)
	assert.Equal(t, 5, streamer.brief.TargetCount)
	assert.Equal(t, principal, streamer.principal)
	assert.Equal(t, "rid-1", streamer.requestID)

	require.Len(t, store.saved, 1)
	assert.Equal(t, "rid-1", store.saved[0].CorrelationID)
	assert.Equal(t, "user-1", store.saved[0].PrincipalID)
	assert.Len(t, store.saved[0].Contacts, 1)
	assert.True(t, store.ctxOK)
}

func TestSearchHandler_UsesExplicitCorrelationID(t *testing.T) {
	store := &stubRunStore{}
	h := NewSearchHandler(&stubStreamer{events: completeRun()}, store, streamLimits, zap.NewNop())

	c, _ := newStreamContext("/search/stream?contactTypes=dj&markets=US&correlationId=job-42", &entity.Principal{ID: "user-1"})
	require.NoError(t, h.Stream(c))

	require.Len(t, store.saved, 1)
	assert.Equal(t, "job-42", store.saved[0].CorrelationID)
}

func TestSearchHandler_ErrorRunIsNotPersisted(t *testing.T) {
	store := &stubRunStore{}
	streamer := &stubStreamer{events: []entity.ProgressEvent{{Kind: entity.EventError, Message: "search cancelled"}}}
	h := NewSearchHandler(streamer, store, streamLimits, zap.NewNop())

	c, rec := newStreamContext("/search/stream?contactTypes=dj&markets=US", &entity.Principal{ID: "user-1"})
	require.NoError(t, h.Stream(c))

	frames := readFrames(t, rec.Body.String())
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0]["kind"])
	assert.Equal(t, "search cancelled", frames[0]["message"])
	assert.Empty(t, store.saved)
}

func TestSearchHandler_PersistFailureIsLoggedOnly(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := &stubRunStore{err: errors.New("db down")}
	h := NewSearchHandler(&stubStreamer{events: completeRun()}, store, streamLimits, zap.New(core))

	c, rec := newStreamContext("/search/stream?contactTypes=dj&markets=US", &entity.Principal{ID: "user-1"})
	require.NoError(t, h.Stream(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, readFrames(t, rec.Body.String()), 3)
	assert.Equal(t, 1, logs.FilterMessage("persist search run failed").Len())
}

func TestSearchHandler_NoStoreConfigured(t *testing.T) {
	h := NewSearchHandler(&stubStreamer{events: completeRun()}, nil, streamLimits, zap.NewNop())
	c, rec := newStreamContext("/search/stream?contactTypes=dj&markets=US", &entity.Principal{ID: "user-1"})
	require.NoError(t, h.Stream(c))
	assert.Len(t, readFrames(t, rec.Body.String()), 3)
}

func TestSearchHandler_RejectsBeforeStreaming(t *testing.T) {
	cases := map[string]string{
		"missing types":   "/search/stream?markets=US",
		"missing markets": "/search/stream?contactTypes=dj",
		"bad depth":       "/search/stream?contactTypes=dj&markets=US&searchDepth=wide",
		"bad target":      "/search/stream?contactTypes=dj&markets=US&targetCount=-3",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			streamer := &stubStreamer{events: completeRun()}
			h := NewSearchHandler(streamer, nil, streamLimits, zap.NewNop())
			c, rec := newStreamContext(target, &entity.Principal{ID: "user-1"})

			require.NoError(t, h.Stream(c))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, streamer.calls)

			var payload APIResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
			assert.Equal(t, "error", payload.Status)
			assert.Contains(t, payload.Message, "invalid search brief")
		})
	}
}

func TestSearchHandler_RequiresPrincipal(t *testing.T) {
	streamer := &stubStreamer{}
	h := NewSearchHandler(streamer, nil, streamLimits, zap.NewNop())
	c, rec := newStreamContext("/search/stream?contactTypes=dj&markets=US", nil)

	require.NoError(t, h.Stream(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, streamer.calls)
}
