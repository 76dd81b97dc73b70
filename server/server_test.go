package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teilomillet/assure/config"
	"github.com/teilomillet/assure/server/mocks"
	"github.com/teilomillet/assure/server/processing"
	"github.com/teilomillet/assure/server/provider"
	"github.com/teilomillet/assure/server/validation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Prompt.System = config.DefaultSystemPrompt
	cfg.Prompt.UserTemplate = config.DefaultUserTemplate
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) (*Server, *mocks.MockConfigWatcher, *mocks.MockCompleter) {
	t.Helper()
	watcher := mocks.NewMockConfigWatcher(cfg)
	completer := mocks.NewStaticCompleter("Consider a term life policy.")
	opts = append([]Option{
		WithCompleter(completer),
		WithTokenCounter(validation.NewApproximateCounter()),
	}, opts...)

	s, err := NewServer(watcher, zap.NewNop(), opts...)
	require.NoError(t, err)
	return s, watcher, completer
}

func postChat(t *testing.T, url, message, profile string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("message", message))
	require.NoError(t, mw.WriteField("profile", profile))
	fw, err := mw.CreateFormFile("files", "policy.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url+"/chat", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func TestNewServerRequiresConfig(t *testing.T) {
	_, err := NewServer(mocks.NewMockConfigWatcher(nil), zap.NewNop())
	assert.Error(t, err)
}

func TestNewServerEchoProvider(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.Provider = "echo"
	s, err := NewServer(config.NewStaticWatcher(cfg), zap.NewNop(),
		WithTokenCounter(validation.NewApproximateCounter()))
	require.NoError(t, err)
	assert.Equal(t, "echo", s.guard.Name())

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("message", "hello"))
	require.NoError(t, mw.WriteField("profile", `{"age":"34","gender":""}`))
	for _, name := range []string{"p.pdf", "q.pdf"} {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte("%PDF-1.4"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/chat", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var chat processing.ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&chat))
	assert.Equal(t, processing.ChatResponse{
		Response:        "Received message: 'hello' | Age: 34 | Files: 2 uploaded",
		ProfileReceived: true,
		FilesReceived:   2,
	}, chat)
}

func TestServerChatEndToEnd(t *testing.T) {
	s, _, completer := newTestServer(t, testConfig())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp := postChat(t, ts.URL, "Evaluate my policy", `{"age":"34","smokingStatus":"never"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var chat processing.ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&chat))
	assert.Equal(t, processing.ChatResponse{
		Response:        "Consider a term life policy.",
		ProfileReceived: true,
		FilesReceived:   1,
	}, chat)

	user := completer.LastCall()[1].Content
	assert.Equal(t, "User Profile Information:\n- age: 34\n- smokingStatus: never\n\nUploaded policy documents: policy.pdf\n\nUser Query:\nEvaluate my policy", user)
}

func TestServerServeAndShutdown(t *testing.T) {
	s, _, _ := newTestServer(t, testConfig())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}

	_, err = http.Get(url + "/")
	assert.Error(t, err, "listener must be closed after shutdown")
}

// Requests that queue behind slow completions must still get an answer
// before http.Server's WriteTimeout closes the connection.
func TestServerAnswersQueuedRequestsWithinWriteTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Server.WriteTimeout = 2 * time.Second
	cfg.LLM.Timeout = time.Second
	cfg.Queue = config.QueueConfig{Enabled: true, MaxConcurrent: 1, MaxWaiting: 4}

	slow := mocks.NewMockCompleter(func(ctx context.Context, _ []provider.Message) (string, error) {
		select {
		case <-time.After(700 * time.Millisecond):
			return "ok", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	s, _, _ := newTestServer(t, cfg, WithCompleter(slow))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-done
	}()
	url := "http://" + ln.Addr().String() + "/chat"

	const requests = 3
	var (
		wg       sync.WaitGroup
		statuses = make([]int, requests)
		errs     = make([]error, requests)
	)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			_ = mw.WriteField("message", "hello")
			_ = mw.WriteField("profile", "{}")
			_ = mw.Close()

			resp, err := http.Post(url, mw.FormDataContentType(), &body)
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()
			statuses[i] = resp.StatusCode

			var payload map[string]interface{}
			errs[i] = json.NewDecoder(resp.Body).Decode(&payload)
		}(i)
	}
	wg.Wait()

	ok := 0
	for i := 0; i < requests; i++ {
		require.NoError(t, errs[i], "request %d", i)
		assert.Contains(t, []int{http.StatusOK, http.StatusServiceUnavailable, http.StatusGatewayTimeout}, statuses[i])
		if statuses[i] == http.StatusOK {
			ok++
		}
	}
	assert.GreaterOrEqual(t, ok, 1)
	assert.Contains(t, statuses, http.StatusGatewayTimeout, "the last request runs out of write budget")
}

func TestServerAppliesReloadedConfig(t *testing.T) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg := testConfig()
	cfg.Queue = config.QueueConfig{Enabled: true, MaxConcurrent: 2, MaxWaiting: 4}
	s, watcher, _ := newTestServer(t, cfg, WithLogLevel(level))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.watchConfig(ctx)
	require.Eventually(t, func() bool { return watcher.Subscribers() == 1 }, time.Second, time.Millisecond)

	next := testConfig()
	next.Queue = cfg.Queue
	next.Prompt.System = "Only discuss travel insurance."
	next.Logging.Level = "debug"
	next.Chat.LogRequests = true
	watcher.UpdateConfig(next)

	require.Eventually(t, func() bool {
		return s.processor.SystemPrompt() == "Only discuss travel insurance."
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, zapcore.DebugLevel, level.Level())
	assert.Same(t, next, s.Config())

	// A broken template is rejected and the previous prompt stays.
	broken := testConfig()
	broken.Queue = cfg.Queue
	broken.Prompt.System = "ignored"
	broken.Prompt.UserTemplate = "{{"
	watcher.UpdateConfig(broken)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "Only discuss travel insurance.", s.processor.SystemPrompt())
	assert.Same(t, next, s.Config())
}

func TestNeedsRestart(t *testing.T) {
	base := testConfig()

	same := testConfig()
	same.Prompt.System = "different prompt"
	same.Logging.Level = "debug"
	assert.False(t, needsRestart(base, same))

	port := testConfig()
	port.Server.Port = 9000
	assert.True(t, needsRestart(base, port))

	model := testConfig()
	model.LLM.Model = "other-model"
	assert.True(t, needsRestart(base, model))
}
