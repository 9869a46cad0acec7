package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// modelReply scripts how the fake proxy answers one model
type modelReply struct {
	status int
	body   string
	frames []string
	done   bool
}

type fakeProxy struct {
	server  *httptest.Server
	replies map[string]modelReply

	mu       sync.Mutex
	requests []completionRequest
	headers  []http.Header
}

func newFakeProxy(t *testing.T, replies map[string]modelReply) *fakeProxy {
	t.Helper()
	p := &fakeProxy{replies: replies}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, CompletionPath, r.URL.Path)

		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		p.mu.Lock()
		p.requests = append(p.requests, req)
		p.headers = append(p.headers, r.Header.Clone())
		p.mu.Unlock()

		reply, ok := p.replies[req.Model]
		if !ok {
			reply = modelReply{status: http.StatusNotFound, body: `{"error":"unknown model"}`}
		}
		if reply.status != 0 && reply.status != http.StatusOK {
			w.WriteHeader(reply.status)
			fmt.Fprint(w, reply.body)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range reply.frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
		}
		if reply.done {
			fmt.Fprint(w, "data: [DONE]\n\n")
		}
	}))
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProxy) models() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	models := make([]string, len(p.requests))
	for i, r := range p.requests {
		models[i] = r.Model
	}
	return models
}

func contentFrames(parts ...string) []string {
	frames := make([]string, len(parts))
	for i, part := range parts {
		data, _ := json.Marshal(map[string]string{"content": part})
		frames[i] = string(data)
	}
	return frames
}

func newTestTransport(t *testing.T, proxy *fakeProxy, fallbacks []string) *StreamingTransport {
	t.Helper()
	transport, err := NewStreamingTransport(Config{
		EndpointBaseURL: proxy.server.URL + "/",
		PrimaryAPIKey:   "proxy-key",
		FallbackModels:  fallbacks,
	})
	require.NoError(t, err)
	return transport
}

func TestStreamingTransport_ChunkOrdering(t *testing.T) {
	sizes := []int{0, 1, 150}
	for _, n := range sizes {
		t.Run(fmt.Sprintf("%d frames", n), func(t *testing.T) {
			parts := make([]string, n)
			for i := range parts {
				parts[i] = fmt.Sprintf("p%d ", i)
			}
			proxy := newFakeProxy(t, map[string]modelReply{
				"m": {frames: contentFrames(parts...), done: true},
			})
			transport := newTestTransport(t, proxy, []string{})

			var chunks []string
			result, log, err := transport.Stream(context.Background(), StreamRequest{
				Message: "hi",
				Model:   "m",
				OnChunk: func(s string) { chunks = append(chunks, s) },
			})

			require.NoError(t, err)
			assert.Empty(t, log)
			assert.Equal(t, len(parts), len(chunks))
			if n > 0 {
				assert.Equal(t, parts, chunks)
			}
			assert.Equal(t, strings.Join(parts, ""), result.Text)
			assert.Equal(t, "m", result.Model)
		})
	}
}

func TestStreamingTransport_TerminationIsIdempotent(t *testing.T) {
	frames := contentFrames("Hello", ", ", "world")
	proxy := newFakeProxy(t, map[string]modelReply{
		"with-done": {frames: frames, done: true},
		"eof":       {frames: frames},
	})
	transport := newTestTransport(t, proxy, []string{})

	withDone, _, err := transport.Stream(context.Background(), StreamRequest{Message: "x", Model: "with-done"})
	require.NoError(t, err)
	atEOF, _, err := transport.Stream(context.Background(), StreamRequest{Message: "x", Model: "eof"})
	require.NoError(t, err)

	assert.Equal(t, withDone.Text, atEOF.Text)
	assert.Equal(t, withDone.TokenCount, atEOF.TokenCount)
	assert.Equal(t, "Hello, world", atEOF.Text)
}

func TestStreamingTransport_TokenCount(t *testing.T) {
	proxy := newFakeProxy(t, map[string]modelReply{
		"estimated": {frames: contentFrames("abcdefghi"), done: true},
		"reported":  {frames: append(contentFrames("abcdefghi"), `{"usage":{"total_tokens":321}}`), done: true},
	})
	transport := newTestTransport(t, proxy, []string{})

	result, _, err := transport.Stream(context.Background(), StreamRequest{Message: "x", Model: "estimated"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.TokenCount)

	result, _, err = transport.Stream(context.Background(), StreamRequest{Message: "x", Model: "reported"})
	require.NoError(t, err)
	assert.Equal(t, 321, result.TokenCount)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("a"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 1, EstimateTokens("héé"))
}

func TestStreamingTransport_MalformedFrameIgnored(t *testing.T) {
	proxy := newFakeProxy(t, map[string]modelReply{
		"m": {frames: []string{`{"content":"one"}`, "not-json", `{"content":"two"}`}, done: true},
	})
	transport := newTestTransport(t, proxy, []string{})

	var chunks []string
	result, _, err := transport.Stream(context.Background(), StreamRequest{
		Message: "x",
		Model:   "m",
		OnChunk: func(s string) { chunks = append(chunks, s) },
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, chunks)
	assert.Equal(t, "onetwo", result.Text)
}

func TestStreamingTransport_ModelFallback(t *testing.T) {
	proxy := newFakeProxy(t, map[string]modelReply{
		"A": {status: http.StatusInternalServerError, body: `{"error":"A exploded"}`},
		"B": {status: http.StatusTooManyRequests, body: `{"error":{"message":"rate limited"}}`},
		"C": {frames: contentFrames("ok"), done: true},
	})
	transport := newTestTransport(t, proxy, []string{"B", "C"})

	result, log, err := transport.Stream(context.Background(), StreamRequest{Message: "x", Model: "A"})

	require.NoError(t, err)
	assert.Equal(t, "C", result.Model)
	assert.Equal(t, "ok", result.Text)
	require.Len(t, log, 2)
	assert.Equal(t, []string{"A", "B"}, log.Models())
	assert.Equal(t, []string{"A", "B", "C"}, proxy.models())

	var first *TransportError
	require.ErrorAs(t, log[0].Err, &first)
	assert.Equal(t, http.StatusInternalServerError, first.StatusCode)
	assert.Equal(t, "A exploded", first.Error())
	assert.Equal(t, "rate limited", log[1].Err.Error())
}

func TestStreamingTransport_ErrorFrameFailsAttempt(t *testing.T) {
	proxy := newFakeProxy(t, map[string]modelReply{
		"A": {frames: append(contentFrames("Hal"), `{"error":"connection reset"}`)},
		"B": {frames: contentFrames("Hello"), done: true},
	})
	transport := newTestTransport(t, proxy, []string{"B"})

	var chunks, retried []string
	result, log, err := transport.Stream(context.Background(), StreamRequest{
		Message: "x",
		Model:   "A",
		OnChunk: func(s string) { chunks = append(chunks, s) },
		OnRetry: func(model string, _ error) { retried = append(retried, model) },
	})

	require.NoError(t, err)
	assert.Equal(t, "B", result.Model)
	assert.Equal(t, "Hello", result.Text)
	assert.Equal(t, []string{"A", "B"}, proxy.models())
	assert.Equal(t, []string{"A"}, retried)
	assert.Equal(t, []string{"Hal", "Hello"}, chunks)
	require.Len(t, log, 1)
	var terr *TransportError
	require.ErrorAs(t, log[0].Err, &terr)
	assert.Equal(t, "connection reset", terr.Error())
}

func TestStreamingTransport_ErrorFrameOnLastModel(t *testing.T) {
	proxy := newFakeProxy(t, map[string]modelReply{
		"A": {frames: append(contentFrames("Hal"), `{"error":"connection reset"}`)},
	})
	transport := newTestTransport(t, proxy, []string{})

	result, _, err := transport.Stream(context.Background(), StreamRequest{Message: "x", Model: "A"})

	assert.Nil(t, result)
	var exhausted *ExhaustedFallbackError
	require.ErrorAs(t, err, &exhausted)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestStreamingTransport_StatusWithoutBody(t *testing.T) {
	proxy := newFakeProxy(t, map[string]modelReply{
		"m": {status: http.StatusBadGateway, body: "<html>bad gateway</html>"},
	})
	transport := newTestTransport(t, proxy, []string{})

	_, log, err := transport.Stream(context.Background(), StreamRequest{Message: "x", Model: "m"})

	var exhausted *ExhaustedFallbackError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, log, 1)
	assert.Equal(t, "HTTP 502", log[0].Err.Error())
	assert.Equal(t, "all groq models failed. last error: HTTP 502", err.Error())
}

func TestStreamingTransport_RequestShape(t *testing.T) {
	proxy := newFakeProxy(t, map[string]modelReply{
		"m": {frames: contentFrames("ok"), done: true},
	})
	transport := newTestTransport(t, proxy, []string{})

	_, _, err := transport.Stream(context.Background(), StreamRequest{
		Message:      "Hello",
		SystemPrompt: "be nice",
		Model:        "m",
		MaxTokens:    100,
	})
	require.NoError(t, err)

	require.Len(t, proxy.requests, 1)
	req := proxy.requests[0]
	assert.Equal(t, "Hello", req.Message)
	assert.Equal(t, "be nice", req.SystemPrompt)
	assert.Equal(t, 100, req.MaxTokens)
	assert.NotNil(t, req.ConversationHistory)
	assert.Empty(t, req.ConversationHistory)
	assert.Equal(t, "Bearer proxy-key", proxy.headers[0].Get("Authorization"))
	assert.Equal(t, "text/event-stream", proxy.headers[0].Get("Accept"))
}

func TestStreamingTransport_RetryNotification(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 1 {
			// half a stream, then a dropped connection
			w.Header().Set("Content-Length", "1000")
			fmt.Fprint(w, "data: {\"content\":\"partial\"}\n\n")
			return
		}
		fmt.Fprint(w, "data: {\"content\":\"full\"}\n\ndata: [DONE]\n\n")
	}))
	defer server.Close()

	transport, err := NewStreamingTransport(Config{EndpointBaseURL: server.URL, FallbackModels: []string{"B"}})
	require.NoError(t, err)

	var chunks, retried []string
	result, log, err := transport.Stream(context.Background(), StreamRequest{
		Message: "x",
		Model:   "A",
		OnChunk: func(s string) { chunks = append(chunks, s) },
		OnRetry: func(model string, _ error) { retried = append(retried, model) },
	})

	require.NoError(t, err)
	assert.Equal(t, "full", result.Text)
	assert.Equal(t, "B", result.Model)
	assert.Equal(t, []string{"partial", "full"}, chunks)
	assert.Equal(t, []string{"A"}, retried)
	assert.Len(t, log, 1)
}

func TestStreamingTransport_Cancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"content\":\"first\"}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	transport, err := NewStreamingTransport(Config{EndpointBaseURL: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var chunks []string
	_, _, err = transport.Stream(ctx, StreamRequest{
		Message: "x",
		Model:   "A",
		OnChunk: func(s string) {
			chunks = append(chunks, s)
			cancel()
		},
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"first"}, chunks)
}

func TestNewStreamingTransport_RequiresEndpoint(t *testing.T) {
	_, err := NewStreamingTransport(Config{})

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "EndpointBaseURL", cfgErr.Field)
}

func TestStreamingTransport_RecordsMetrics(t *testing.T) {
	proxy := newFakeProxy(t, map[string]modelReply{
		"A": {status: http.StatusServiceUnavailable},
		"B": {frames: contentFrames("abcd"), done: true},
	})
	metrics := NewMetricsCollector()
	transport, err := NewStreamingTransport(Config{
		EndpointBaseURL: proxy.server.URL,
		FallbackModels:  []string{"B"},
	}, WithStreamMetrics(metrics))
	require.NoError(t, err)

	_, _, err = transport.Stream(context.Background(), StreamRequest{Message: "x", Model: "A"})
	require.NoError(t, err)

	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.Requests["groq:A"])
	assert.Equal(t, int64(1), snap.Errors["groq:A"])
	assert.Equal(t, int64(1), snap.Requests["groq:B"])
	assert.Zero(t, snap.Errors["groq:B"])
	assert.Equal(t, int64(1), snap.Tokens[PrimaryProvider])
}
