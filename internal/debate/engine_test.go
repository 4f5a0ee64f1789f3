package debate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"cinderella/internal/action"
	"cinderella/internal/agent"
	"cinderella/internal/debate/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubGateway returns scripted agent replies in order.
type stubGateway struct {
	replies []string
	calls   int
	err     error
}

func (g *stubGateway) Run(ctx context.Context, req agent.RunRequest) (agent.RunResult, error) {
	g.calls++
	if g.err != nil {
		return agent.RunResult{}, g.err
	}
	reply := ""
	if len(g.replies) > 0 {
		reply = g.replies[0]
		if len(g.replies) > 1 {
			g.replies = g.replies[1:]
		}
	}
	payload, _ := json.Marshal(map[string]string{"result": reply})
	return agent.RunResult{StdoutJSON: payload}, nil
}

// stubActions records every dispatched request and always succeeds.
type stubActions struct {
	dispatched []action.Request
}

func (a *stubActions) Dispatch(ctx context.Context, req action.Request) action.Response {
	a.dispatched = append(a.dispatched, req)
	return action.Response{Success: true, Data: map[string]any{"message_id": "m1"}}
}

// memStore collects turns in memory.
type memStore struct {
	turns []store.Turn
}

func (s *memStore) SaveTurn(ctx context.Context, turn store.Turn) error {
	s.turns = append(s.turns, turn)
	return nil
}

func newTestEngine(gw *stubGateway, acts *stubActions, st *memStore) *Engine {
	cfg := EngineConfig{
		Gateway: gw,
		Actions: acts,
		Manager: NewManager(5),
		Logger:  discardLogger(),
	}
	if st != nil {
		cfg.Store = st
	}
	return NewEngine(cfg)
}

func fencedSendMessage(channelID, content string) string {
	return fmt.Sprintf("```json\n{\"action\": \"sendMessage\", \"channelId\": %q, \"content\": %q}\n```", channelID, content)
}

func TestInactiveChannelIgnored(t *testing.T) {
	gw := &stubGateway{}
	acts := &stubActions{}
	e := newTestEngine(gw, acts, nil)

	handled, err := e.ProcessMessage(context.Background(), "chan-1", nil)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if handled {
		t.Fatalf("expected no handling without an active debate")
	}
	if gw.calls != 0 || len(acts.dispatched) != 0 {
		t.Fatalf("expected no gateway or action calls, got %d / %d", gw.calls, len(acts.dispatched))
	}
}

func TestNoActionSentinelDispatchesNothing(t *testing.T) {
	gw := &stubGateway{replies: []string{"ここで終了します [NO_ACTION]"}}
	acts := &stubActions{}
	e := newTestEngine(gw, acts, nil)
	e.Start(context.Background(), "chan-1", "AIの未来", "optimist")

	handled, err := e.ProcessMessage(context.Background(), "chan-1", nil)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if handled {
		t.Fatalf("sentinel reply should not count as handled")
	}
	if len(acts.dispatched) != 0 {
		t.Fatalf("expected zero dispatches, got %v", acts.dispatched)
	}
	if c, ok := e.Manager().Get("chan-1"); !ok || c.TurnCount != 0 {
		t.Fatalf("turn count changed: %+v ok=%v", c, ok)
	}
}

func TestFencedActionDispatchedAndTurnCounted(t *testing.T) {
	gw := &stubGateway{replies: []string{fencedSendMessage("chan-1", "私は賛成です")}}
	acts := &stubActions{}
	st := &memStore{}
	e := newTestEngine(gw, acts, st)
	e.Start(context.Background(), "chan-1", "AIの未来", "optimist")

	handled, err := e.ProcessMessage(context.Background(), "chan-1", []Message{
		{ID: "m0", AuthorName: "慎重派AI", Content: "リスクはどうする"},
	})
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if !handled {
		t.Fatalf("expected action to run")
	}
	if len(acts.dispatched) != 1 || acts.dispatched[0].Action != "sendMessage" {
		t.Fatalf("dispatched = %+v", acts.dispatched)
	}
	c, ok := e.Manager().Get("chan-1")
	if !ok || c.TurnCount != 1 {
		t.Fatalf("turn count = %+v ok=%v", c, ok)
	}
	if len(st.turns) != 1 || st.turns[0].Turn != 1 || st.turns[0].Topic != "AIの未来" {
		t.Fatalf("stored turns = %+v", st.turns)
	}
}

func TestReactDoesNotCountAsTurn(t *testing.T) {
	reply := "```json\n{\"action\": \"react\", \"channelId\": \"chan-1\", \"messageId\": \"m0\", \"emoji\": \"👀\"}\n```"
	gw := &stubGateway{replies: []string{reply}}
	acts := &stubActions{}
	e := newTestEngine(gw, acts, nil)
	e.Start(context.Background(), "chan-1", "AIの未来", "optimist")

	handled, err := e.ProcessMessage(context.Background(), "chan-1", nil)
	if err != nil || !handled {
		t.Fatalf("handled=%v err=%v", handled, err)
	}
	if len(acts.dispatched) != 1 || acts.dispatched[0].Action != "react" {
		t.Fatalf("dispatched = %+v", acts.dispatched)
	}
	if c, _ := e.Manager().Get("chan-1"); c.TurnCount != 0 {
		t.Fatalf("react incremented turn count: %d", c.TurnCount)
	}
}

func TestRawTextBecomesTruncatedSendMessage(t *testing.T) {
	long := strings.Repeat("あ", 2500)
	gw := &stubGateway{replies: []string{long}}
	acts := &stubActions{}
	e := newTestEngine(gw, acts, nil)
	e.Start(context.Background(), "chan-1", "AIの未来", "optimist")

	handled, err := e.ProcessMessage(context.Background(), "chan-1", nil)
	if err != nil || !handled {
		t.Fatalf("handled=%v err=%v", handled, err)
	}
	if len(acts.dispatched) != 1 {
		t.Fatalf("dispatched = %+v", acts.dispatched)
	}
	req := acts.dispatched[0]
	if req.Action != "sendMessage" || req.ChannelID != "chan-1" {
		t.Fatalf("req = %+v", req)
	}
	if got := len([]rune(req.Content)); got != 1900 {
		t.Fatalf("content length = %d runes, want 1900", got)
	}
}

func TestDisallowedActionIgnored(t *testing.T) {
	reply := "```json\n{\"action\": \"deleteMessage\", \"channelId\": \"chan-1\", \"messageId\": \"m0\"}\n```"
	gw := &stubGateway{replies: []string{reply}}
	acts := &stubActions{}
	e := newTestEngine(gw, acts, nil)
	e.Start(context.Background(), "chan-1", "AIの未来", "optimist")

	handled, err := e.ProcessMessage(context.Background(), "chan-1", nil)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if handled || len(acts.dispatched) != 0 {
		t.Fatalf("disallowed action ran: handled=%v dispatched=%+v", handled, acts.dispatched)
	}
}

func TestConclusionKeywordEndsDebate(t *testing.T) {
	gw := &stubGateway{replies: []string{fencedSendMessage("chan-1", "結論としては両論併記です。ご清聴ありがとうございました。")}}
	acts := &stubActions{}
	e := newTestEngine(gw, acts, nil)
	e.Start(context.Background(), "chan-1", "AIの未来", "optimist")

	handled, err := e.ProcessMessage(context.Background(), "chan-1", nil)
	if err != nil || !handled {
		t.Fatalf("handled=%v err=%v", handled, err)
	}
	if e.Manager().Active("chan-1") {
		t.Fatalf("debate still active after conclusion")
	}

	// Ended debates stay ended: further messages do nothing.
	handled, err = e.ProcessMessage(context.Background(), "chan-1", nil)
	if err != nil {
		t.Fatalf("ProcessMessage after end: %v", err)
	}
	if handled || len(acts.dispatched) != 1 {
		t.Fatalf("debate resurrected: handled=%v dispatched=%d", handled, len(acts.dispatched))
	}
}

func TestTurnLimitHardStop(t *testing.T) {
	gw := &stubGateway{replies: []string{fencedSendMessage("chan-1", "続けます")}}
	acts := &stubActions{}
	e := newTestEngine(gw, acts, nil)
	e.Start(context.Background(), "chan-1", "AIの未来", "optimist")
	for i := 0; i < 5; i++ {
		if _, ok := e.Manager().IncrementTurn("chan-1"); !ok {
			t.Fatalf("increment %d failed", i)
		}
	}

	handled, err := e.ProcessMessage(context.Background(), "chan-1", nil)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if handled {
		t.Fatalf("expected no agent action at the turn limit")
	}
	if gw.calls != 0 {
		t.Fatalf("gateway called %d times at turn limit", gw.calls)
	}
	if len(acts.dispatched) != 1 || acts.dispatched[0].Action != "sendMessage" {
		t.Fatalf("expected one notice message, got %+v", acts.dispatched)
	}
	if !strings.Contains(acts.dispatched[0].Content, "議論を終了") {
		t.Fatalf("notice content = %q", acts.dispatched[0].Content)
	}
	if e.Manager().Active("chan-1") {
		t.Fatalf("debate still active after hard stop")
	}
}

func TestStartReplacesExistingDebate(t *testing.T) {
	gw := &stubGateway{}
	acts := &stubActions{}
	e := newTestEngine(gw, acts, nil)
	e.Start(context.Background(), "chan-1", "旧トピック", "optimist")
	e.Manager().IncrementTurn("chan-1")

	c, persona := e.Start(context.Background(), "chan-1", "新トピック", "pessimist")
	if c.Topic != "新トピック" || c.TurnCount != 0 {
		t.Fatalf("context = %+v", c)
	}
	if persona.Name != "慎重派AI" {
		t.Fatalf("persona = %+v", persona)
	}
}

func TestParseAction(t *testing.T) {
	if req, ok := parseAction(fencedSendMessage("c", "hi")); !ok || req.Action != "sendMessage" || req.Content != "hi" {
		t.Fatalf("fenced json: req=%+v ok=%v", req, ok)
	}
	if req, ok := parseAction("```\n{\"action\": \"react\", \"emoji\": \"✅\"}\n```"); !ok || req.Action != "react" {
		t.Fatalf("plain fence: req=%+v ok=%v", req, ok)
	}
	if req, ok := parseAction(`{"action": "sendMessage", "content": "bare"}`); !ok || req.Content != "bare" {
		t.Fatalf("bare json: req=%+v ok=%v", req, ok)
	}
	if _, ok := parseAction("just some prose, no json at all"); ok {
		t.Fatalf("prose parsed as action")
	}
	if _, ok := parseAction(`{"content": "no action field"}`); ok {
		t.Fatalf("json without action field accepted")
	}
}

func TestConclusionPolicy(t *testing.T) {
	p := DefaultConclusionPolicy()
	for _, content := range []string{
		"以上でまとめとします",
		"ご清聴ありがとうございました",
		"結論に達しました",
		"これで終了です",
		"In conclusion, both sides agree",
	} {
		if !p.IsConclusion(content) {
			t.Fatalf("expected conclusion: %q", content)
		}
	}
	if p.IsConclusion("まだまだ議論は続きます") {
		t.Fatalf("false positive conclusion")
	}
}

func TestPromptIncludesHistoryWindow(t *testing.T) {
	c := Context{ChannelID: "chan-1", Topic: "AIの未来", Personality: "optimist", MaxTurns: 5, TurnCount: 2}
	var recent []Message
	for i := 0; i < 15; i++ {
		recent = append(recent, Message{ID: fmt.Sprintf("m%d", i), AuthorName: "ai", Content: fmt.Sprintf("発言%d", i)})
	}
	prompt := buildPrompt(c, recent)

	if !strings.Contains(prompt, "AIの未来") {
		t.Fatalf("topic missing from prompt")
	}
	if !strings.Contains(prompt, "2/5") {
		t.Fatalf("turn counter missing from prompt")
	}
	if strings.Contains(prompt, "発言4") {
		t.Fatalf("prompt includes history beyond the last 10 messages")
	}
	if !strings.Contains(prompt, "発言14") || !strings.Contains(prompt, "発言5") {
		t.Fatalf("prompt missing expected history entries")
	}
	if !strings.Contains(prompt, "直前のメッセージID: m14") {
		t.Fatalf("last message id missing")
	}
	if !strings.Contains(prompt, noActionSentinel) {
		t.Fatalf("sentinel contract missing")
	}
}
