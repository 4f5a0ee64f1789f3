package action

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, stub *stubClient, apiKey string, ready func() bool) *httptest.Server {
	t.Helper()
	d, err := NewDispatcher(stub, discardLogger(), nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	d.Start(ctx)

	srv := NewServer(ServerConfig{
		APIKey:     apiKey,
		Dispatcher: d,
		Ready:      ready,
		Logger:     discardLogger(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postAction(t *testing.T, ts *httptest.Server, apiKey string, req Request) (*http.Response, Response) {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	httpReq, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/discord/action", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if apiKey != "" {
		httpReq.Header.Set("X-API-Key", apiKey)
	}
	resp, err := ts.Client().Do(httpReq)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	var envelope Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp, envelope
}

func TestActionEndpointAlwaysReturns200(t *testing.T) {
	stub := newStubClient()
	ts := newTestServer(t, stub, "", nil)

	resp, envelope := postAction(t, ts, "", Request{Action: "noSuchAction"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if envelope.Success {
		t.Fatalf("expected failure envelope")
	}
	if envelope.Error != "Unknown action: noSuchAction" {
		t.Fatalf("error = %q", envelope.Error)
	}
}

func TestActionEndpointSendMessage(t *testing.T) {
	stub := newStubClient()
	stub.addTextChannel("chan-1", "guild-1", "general")
	ts := newTestServer(t, stub, "", nil)

	resp, envelope := postAction(t, ts, "", Request{
		Action:    "sendMessage",
		ChannelID: "chan-1",
		Content:   "hello",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !envelope.Success {
		t.Fatalf("sendMessage failed: %s", envelope.Error)
	}
	if envelope.Data["message_id"] == nil {
		t.Fatalf("missing message_id: %v", envelope.Data)
	}
}

func TestActionEndpointRequiresAPIKey(t *testing.T) {
	stub := newStubClient()
	ts := newTestServer(t, stub, "secret", nil)

	body := bytes.NewReader([]byte(`{"action":"sendMessage"}`))
	resp, err := ts.Client().Post(ts.URL+"/v1/discord/action", "application/json", body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	httpResp, envelope := postAction(t, ts, "secret", Request{Action: "noSuchAction"})
	if httpResp.StatusCode != http.StatusOK {
		t.Fatalf("authed status = %d", httpResp.StatusCode)
	}
	if envelope.Success {
		t.Fatalf("expected failure envelope")
	}
}

func TestActionEndpointBotNotReady(t *testing.T) {
	stub := newStubClient()
	stub.addTextChannel("chan-1", "guild-1", "general")
	ts := newTestServer(t, stub, "", func() bool { return false })

	resp, envelope := postAction(t, ts, "", Request{
		Action:    "sendMessage",
		ChannelID: "chan-1",
		Content:   "hello",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if envelope.Success || envelope.Error != "Bot is not ready yet" {
		t.Fatalf("envelope = %+v", envelope)
	}
	if stub.callCount() != 0 {
		t.Fatalf("expected no client calls while not ready, got %v", stub.calls)
	}
}

func TestHealthReportsBotReadiness(t *testing.T) {
	stub := newStubClient()
	ts := newTestServer(t, stub, "", func() bool { return true })

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health["ok"] != true || health["bot_ready"] != true {
		t.Fatalf("health = %v", health)
	}
}
