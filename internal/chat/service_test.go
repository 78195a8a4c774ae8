package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/healthyai/internal/ai"
	"github.com/suPer8Hu/healthyai/internal/common"
	"gorm.io/gorm"
)

type fakeProvider struct {
	mu      sync.Mutex
	calls   []string
	reply   *ai.Reply
	err     error
	block   string
	started chan struct{}
	ready   bool
}

func (p *fakeProvider) SendMessage(ctx context.Context, text, sessionID string) (*ai.Reply, error) {
	p.mu.Lock()
	p.calls = append(p.calls, text)
	p.mu.Unlock()

	if p.block != "" && text == p.block {
		close(p.started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.reply != nil {
		r := *p.reply
		return &r, nil
	}
	return &ai.Reply{SessionID: sessionID, Reply: "echo: " + text}, nil
}

func (p *fakeProvider) CheckReady(ctx context.Context) (*ai.Readiness, error) {
	return &ai.Readiness{Ready: p.ready, Status: "ok"}, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&Session{}, &Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, prov *fakeProvider) (*Service, *Repo) {
	t.Helper()
	repo := NewRepo(openTestDB(t))
	reg := ai.NewRegistry()
	reg.Register("fake", func(ctx context.Context) (ai.Provider, error) {
		return prov, nil
	})
	return NewService(repo, reg, "fake"), repo
}

func strPtr(s string) *string { return &s }

func TestLoadSession_InfersRolesDropsEmptyAndDedupes(t *testing.T) {
	svc, repo := newTestService(t, &fakeProvider{})
	ctx := context.Background()
	sid := "sess-merge"
	base := time.Now().Add(-time.Hour)

	seed := []Message{
		{Text: "hi", CreatedAt: base},
		{Text: "hi", AIResponse: strPtr("Hello there"), CreatedAt: base.Add(time.Second)},
		{Text: "   ", CreatedAt: base.Add(2 * time.Second)},
		{Text: "hi", CreatedAt: base.Add(3 * time.Second)},
		{Role: "assistant", Text: "", AIResponse: strPtr(""), CreatedAt: base.Add(4 * time.Second)},
		{Role: "user", Text: "how tall?", CreatedAt: base.Add(5 * time.Second)},
	}
	for i := range seed {
		seed[i].SessionID = sid
		seed[i].UserID = 1
		if err := repo.InsertMessage(ctx, &seed[i]); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	got := svc.LoadMessages(ctx, 1, sid)
	want := []ChatMessage{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "Hello there"},
		{Role: RoleUser, Content: "how tall?"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i].Role != want[i].Role || got[i].Content != want[i].Content {
			t.Fatalf("message %d: got %s/%q want %s/%q", i, got[i].Role, got[i].Content, want[i].Role, want[i].Content)
		}
	}

	again := svc.LoadMessages(ctx, 1, sid)
	if len(again) != len(got) {
		t.Fatalf("second load differs: %d vs %d", len(again), len(got))
	}
	for i := range got {
		if again[i].Role != got[i].Role || again[i].Content != got[i].Content {
			t.Fatalf("second load differs at %d", i)
		}
	}
}

func TestLoadSession_KeyedRecordsAreNotCollapsed(t *testing.T) {
	svc, repo := newTestService(t, &fakeProvider{})
	ctx := context.Background()

	for _, k := range []string{"k1", "k2"} {
		if err := repo.InsertMessage(ctx, &Message{SessionID: "s", UserID: 1, Role: "user", Text: "yes", IdempotencyKey: strPtr(k)}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if got := svc.LoadMessages(ctx, 1, "s"); len(got) != 2 {
		t.Fatalf("expected 2 distinct keyed messages, got %d", len(got))
	}
}

func TestLoadSession_EmptyYieldsGreeting(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})
	got := svc.LoadMessages(context.Background(), 1, "nothing-here")
	if len(got) != 1 || got[0].Role != RoleAssistant || got[0].Content != Greeting {
		t.Fatalf("expected greeting, got %+v", got)
	}
}

func TestSend_ReplacesPlaceholderAndSavesSession(t *testing.T) {
	prov := &fakeProvider{reply: &ai.Reply{Reply: "Drink water.", Intent: "nutrition", IntentConfidence: 0.9, Stage: "answer"}}
	svc, repo := newTestService(t, prov)
	ws := NewWorkspaces(svc).Open(Identity{UserID: 7, Email: "a@example.com"})
	ctx := context.Background()

	view, err := ws.StartNewChat(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	res, err := ws.Send(ctx, view.SessionID, "  How much water should I drink each day when running?  ", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Reply != "Drink water." || res.Metadata == nil || res.Metadata.Intent != "nutrition" {
		t.Fatalf("unexpected result: %+v", res)
	}

	msgs := ws.View().Messages
	if len(msgs) != 3 {
		t.Fatalf("expected greeting, user, reply; got %+v", msgs)
	}
	for _, m := range msgs {
		if m.Pending {
			t.Fatalf("placeholder left in view: %+v", msgs)
		}
	}
	if msgs[1].Content != "How much water should I drink each day when running?" {
		t.Fatalf("user text not trimmed: %q", msgs[1].Content)
	}

	recs, err := repo.ListSessionMessages(ctx, 7, view.SessionID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 || recs[0].Role != "user" || recs[1].Role != "assistant" {
		t.Fatalf("unexpected records: %+v", recs)
	}
	if recs[1].AIResponse == nil || *recs[1].AIResponse != "Drink water." {
		t.Fatalf("assistant record missing ai_response")
	}
	if !strings.Contains(string(recs[1].Metadata), "nutrition") {
		t.Fatalf("metadata not persisted: %s", recs[1].Metadata)
	}

	sess, err := repo.GetSession(ctx, 7, view.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.Title != "How much water should I drink each da..." {
		t.Fatalf("unexpected title: %q", sess.Title)
	}
	if sess.LastMessage != "Drink water." || sess.MessageCount != 3 {
		t.Fatalf("unexpected preview: %+v", sess)
	}
}

func TestSend_NewRequestSupersedesInFlight(t *testing.T) {
	prov := &fakeProvider{block: "slow question", started: make(chan struct{})}
	svc, repo := newTestService(t, prov)
	ws := NewWorkspaces(svc).Open(Identity{UserID: 3})
	ctx := context.Background()

	view, err := ws.StartNewChat(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	firstErr := make(chan error, 1)
	go func() {
		_, err := ws.Send(ctx, view.SessionID, "slow question", "")
		firstErr <- err
	}()
	<-prov.started

	res, err := ws.Send(ctx, view.SessionID, "fast question", "")
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	if res.Reply != "echo: fast question" {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}

	select {
	case err := <-firstErr:
		if !errors.Is(err, ErrSuperseded) {
			t.Fatalf("expected ErrSuperseded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("first send never returned")
	}

	var pending, replies int
	for _, m := range ws.View().Messages {
		if m.Pending {
			pending++
		}
		if m.Role == RoleAssistant && m.Content != Greeting {
			replies++
		}
	}
	if pending != 0 || replies != 1 {
		t.Fatalf("expected one reply and no placeholder, got %+v", ws.View().Messages)
	}

	recs, _ := repo.ListSessionMessages(ctx, 3, view.SessionID)
	for _, r := range recs {
		if r.Role == "assistant" && r.AIResponse != nil && strings.Contains(*r.AIResponse, "slow") {
			t.Fatalf("superseded reply was persisted")
		}
	}
}

func TestSend_NotReadyPersistsErrorAndRechecks(t *testing.T) {
	prov := &fakeProvider{err: fmt.Errorf("%w: loading models", ai.ErrNotReady), ready: true}
	svc, repo := newTestService(t, prov)
	svc.ReadyRecheckDelay = 10 * time.Millisecond
	ws := NewWorkspaces(svc).Open(Identity{UserID: 4})
	ctx := context.Background()

	view, _ := ws.StartNewChat(ctx)
	_, err := ws.Send(ctx, view.SessionID, "hello", "")
	if !errors.Is(err, ai.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}

	recs, _ := repo.ListSessionMessages(ctx, 4, view.SessionID)
	if len(recs) != 2 || recs[1].AIResponse == nil || *recs[1].AIResponse != replyNotReadyMessage {
		t.Fatalf("error reply not persisted: %+v", recs)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if r := svc.Readiness(); r != nil && r.Ready {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("readiness was never rechecked")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSend_TimeoutMapsToCommonTimeout(t *testing.T) {
	prov := &fakeProvider{err: ai.ErrTimeout}
	svc, _ := newTestService(t, prov)
	ws := NewWorkspaces(svc).Open(Identity{UserID: 5})
	view, _ := ws.StartNewChat(context.Background())

	_, err := ws.Send(context.Background(), view.SessionID, "hello", "")
	if !errors.Is(err, common.ErrTimeout) {
		t.Fatalf("expected common.ErrTimeout, got %v", err)
	}
	msgs := ws.View().Messages
	if last := msgs[len(msgs)-1]; last.Content != replyTimeoutMessage || last.Pending {
		t.Fatalf("placeholder not replaced with timeout message: %+v", last)
	}
}

func TestSend_ReplayedKeyReturnsStoredReply(t *testing.T) {
	prov := &fakeProvider{}
	svc, _ := newTestService(t, prov)
	ws := NewWorkspaces(svc).Open(Identity{UserID: 6})
	ctx := context.Background()
	view, _ := ws.StartNewChat(ctx)

	first, err := ws.Send(ctx, view.SessionID, "hello", "client-key-1")
	if err != nil {
		t.Fatalf("first send: %v", err)
	}
	second, err := ws.Send(ctx, view.SessionID, "hello", "client-key-1")
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	if !second.Replayed || second.Reply != first.Reply {
		t.Fatalf("expected replayed reply %q, got %+v", first.Reply, second)
	}
	if prov.callCount() != 1 {
		t.Fatalf("expected one inference call, got %d", prov.callCount())
	}
}

func TestSend_UnknownSessionIsNotFound(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})
	ws := NewWorkspaces(svc).Open(Identity{UserID: 8})
	_, err := ws.Send(context.Background(), "someone-elses", "hi", "")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendUserMessage_RequiresUserAndText(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})
	reg := NewWorkspaces(svc)

	anon := reg.Open(Identity{})
	if err := anon.AppendUserMessage(context.Background(), "s", "hi", ""); !errors.Is(err, common.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	ws := reg.Open(Identity{UserID: 9})
	view, _ := ws.StartNewChat(context.Background())
	if err := ws.AppendUserMessage(context.Background(), view.SessionID, "   ", ""); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestAppendUserMessage_SkipsImmediateDuplicate(t *testing.T) {
	svc, repo := newTestService(t, &fakeProvider{})
	ws := NewWorkspaces(svc).Open(Identity{UserID: 10})
	ctx := context.Background()
	view, _ := ws.StartNewChat(ctx)

	for i := 0; i < 2; i++ {
		if err := ws.AppendUserMessage(ctx, view.SessionID, "same", ""); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if n := len(ws.View().Messages); n != 2 {
		t.Fatalf("expected greeting + one user message, got %d", n)
	}
	recs, _ := repo.ListSessionMessages(ctx, 10, view.SessionID)
	if len(recs) != 1 {
		t.Fatalf("expected one stored message, got %d", len(recs))
	}
}

func TestDeleteSession_RemovesSessionAndMessages(t *testing.T) {
	svc, repo := newTestService(t, &fakeProvider{})
	ws := NewWorkspaces(svc).Open(Identity{UserID: 11})
	ctx := context.Background()
	view, _ := ws.StartNewChat(ctx)
	if _, err := ws.Send(ctx, view.SessionID, "hello", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := ws.DeleteSession(ctx, view.SessionID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetSession(ctx, 11, view.SessionID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("session still present: %v", err)
	}
	recs, _ := repo.ListSessionMessages(ctx, 11, view.SessionID)
	if len(recs) != 0 {
		t.Fatalf("messages still present: %d", len(recs))
	}
	if ws.View() != nil {
		t.Fatalf("active view should be closed")
	}
	if got := ws.LoadSession(ctx, view.SessionID); len(got) != 1 || got[0].Content != Greeting {
		t.Fatalf("deleted session should load as greeting, got %+v", got)
	}
}

func TestWorkspace_SessionsAreIsolatedPerUser(t *testing.T) {
	svc, repo := newTestService(t, &fakeProvider{})
	reg := NewWorkspaces(svc)
	owner := reg.Open(Identity{UserID: 20})
	other := reg.Open(Identity{UserID: 21})
	ctx := context.Background()

	view, _ := owner.StartNewChat(ctx)
	if _, err := owner.Send(ctx, view.SessionID, "private", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := other.OpenSession(ctx, view.SessionID); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound opening a foreign session, got %v", err)
	}
	if got := other.LoadSession(ctx, view.SessionID); len(got) != 1 || got[0].Content != Greeting {
		t.Fatalf("foreign session should render as greeting, got %+v", got)
	}
	if other.View() != nil {
		t.Fatalf("foreign session must not become active")
	}
	if err := other.AppendUserMessage(ctx, view.SessionID, "injected", ""); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound appending to a foreign session, got %v", err)
	}
	if _, err := other.Send(ctx, view.SessionID, "injected", ""); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound sending to a foreign session, got %v", err)
	}
	if err := other.DeleteSession(ctx, view.SessionID); err != nil {
		t.Fatalf("foreign delete should be a no-op, got %v", err)
	}

	if got := svc.LoadMessages(ctx, 21, view.SessionID); len(got) != 1 || got[0].Content != Greeting {
		t.Fatalf("other user must not see owner's records, got %+v", got)
	}
	if _, err := repo.GetSession(ctx, 20, view.SessionID); err != nil {
		t.Fatalf("owner's session removed by other user: %v", err)
	}
	got, err := owner.OpenSession(ctx, view.SessionID)
	if err != nil {
		t.Fatalf("owner open: %v", err)
	}
	if len(got) != 2 || got[0].Content != "private" || got[1].Content != "echo: private" {
		t.Fatalf("owner's messages changed: %+v", got)
	}
}

func TestWorkspaces_SweepEvictsIdle(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})
	reg := NewWorkspaces(svc)
	clock := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return clock }
	ctx := context.Background()

	stale := reg.Open(Identity{UserID: 30})
	if _, err := stale.StartNewChat(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock = clock.Add(90 * time.Minute)
	reg.Open(Identity{UserID: 31})

	clock = clock.Add(time.Minute)
	if n := reg.Sweep(time.Hour); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected the recent workspace to remain, got %d", reg.Len())
	}
	if stale.View() != nil {
		t.Fatalf("evicted workspace should be closed")
	}
	if again := reg.Open(Identity{UserID: 30}); again == stale {
		t.Fatalf("reopening after eviction should build a fresh workspace")
	}
}

func TestWorkspaces_SweepKeepsBusy(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})
	reg := NewWorkspaces(svc)
	clock := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return clock }

	ws := reg.Open(Identity{UserID: 32})
	ws.mu.Lock()
	ws.inflight = func() {}
	ws.mu.Unlock()

	clock = clock.Add(2 * time.Hour)
	if n := reg.Sweep(time.Hour); n != 0 {
		t.Fatalf("busy workspace evicted")
	}
}

func TestListSessions_NewestFirst(t *testing.T) {
	svc, repo := newTestService(t, &fakeProvider{})
	ctx := context.Background()
	now := time.Now()
	for i, sid := range []string{"old", "new", "mid"} {
		offset := []time.Duration{-2 * time.Hour, 0, -time.Hour}[i]
		if err := repo.SaveSession(ctx, &Session{SessionID: sid, UserID: 12, Title: sid, UpdatedAt: now.Add(offset), CreatedAt: now.Add(offset)}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	out, err := svc.ListSessions(ctx, 12)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 3 || out[0].SessionID != "new" || out[2].SessionID != "old" {
		t.Fatalf("unexpected order: %+v", out)
	}
}

func TestWorkspaceListSessions_FirstLoginOpensNewChat(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})
	ws := NewWorkspaces(svc).Open(Identity{UserID: 13, Email: "new@example.com"})

	out, err := ws.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 1 || out[0].Title != DefaultTitle || out[0].LastMessage != Greeting {
		t.Fatalf("expected one fresh chat, got %+v", out)
	}
	v := ws.View()
	if v == nil || v.SessionID != out[0].SessionID {
		t.Fatalf("expected the new chat to be active, got %+v", v)
	}
}

func TestSaveSession_UpsertsByUserAndSession(t *testing.T) {
	_, repo := newTestService(t, &fakeProvider{})
	ctx := context.Background()
	if err := repo.SaveSession(ctx, &Session{SessionID: "s", UserID: 1, Title: "one"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.SaveSession(ctx, &Session{SessionID: "s", UserID: 1, Title: "two", MessageCount: 4}); err != nil {
		t.Fatalf("update: %v", err)
	}
	out, _ := repo.ListSessions(ctx, 1)
	if len(out) != 1 || out[0].Title != "two" || out[0].MessageCount != 4 {
		t.Fatalf("expected single updated row, got %+v", out)
	}
}

func TestBuildTitle(t *testing.T) {
	if got := BuildTitle("short"); got != "short" {
		t.Fatalf("got %q", got)
	}
	long := strings.Repeat("a", 41)
	if got := BuildTitle(long); got != strings.Repeat("a", 37)+"..." {
		t.Fatalf("got %q", got)
	}
	if got := BuildTitle(strings.Repeat("ă", 45)); len([]rune(got)) != 40 {
		t.Fatalf("expected 40 runes, got %d", len([]rune(got)))
	}
	if got := BuildTitle("  "); got != DefaultTitle {
		t.Fatalf("got %q", got)
	}
}
