package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"leadline/internal/assist"
	"leadline/internal/db"
	"leadline/internal/domain"
	"leadline/internal/migrate"
	"leadline/internal/seed"
	"leadline/internal/store"
)

// scriptedGateway fakes the assistant for handler tests. When block is
// non-nil, Chat waits on it before returning.
type scriptedGateway struct {
	reply string
	err   error
	block chan struct{}
}

func (g *scriptedGateway) Chat(ctx context.Context, message string, snapshot domain.Snapshot) (string, error) {
	if g.block != nil {
		<-g.block
	}
	return g.reply, g.err
}

func (g *scriptedGateway) DraftEmail(context.Context, string, string) (string, error) {
	return g.reply, g.err
}

func (g *scriptedGateway) ExplainLeadScore(context.Context, domain.Lead) (string, error) {
	return g.reply, g.err
}

func (g *scriptedGateway) QuickInsights(context.Context, []domain.Lead, []domain.Deal) (string, error) {
	return g.reply, g.err
}

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T, gw assist.Gateway, demo bool) *testServer {
	t.Helper()
	conn, err := db.Open()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.New(conn)
	if demo {
		if err := seed.Apply(context.Background(), st); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	handler, err := New(Config{Store: st, Gateway: gw, BasePath: "/api/v1"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &scriptedGateway{}, false)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v1/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, data)
	}
}

func TestLeadListAndCreate(t *testing.T) {
	srv := newTestServer(t, &scriptedGateway{}, true)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/leads", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, data)
	}
	var leads []domain.Lead
	if err := json.Unmarshal(data, &leads); err != nil {
		t.Fatalf("unmarshal leads: %v", err)
	}
	if len(leads) != 4 || leads[0].ID != "l1" {
		t.Fatalf("unexpected seeded leads: %d first=%s", len(leads), leads[0].ID)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/leads", map[string]any{
		"name":    "New Person",
		"email":   "new@example.com",
		"company": "Example Co",
		"status":  "WARM",
		"value":   1500,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, data)
	}
	var created domain.Lead
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal created: %v", err)
	}
	if created.ID == "" {
		t.Fatal("server should assign an id when none is given")
	}
	if created.LastContacted == "" {
		t.Fatal("server should default last_contacted")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/leads", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("relist status %d", res.StatusCode)
	}
	if err := json.Unmarshal(data, &leads); err != nil {
		t.Fatalf("unmarshal leads: %v", err)
	}
	if len(leads) != 5 || leads[0].ID != created.ID {
		t.Fatalf("new lead should be first, got %s", leads[0].ID)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/leads?search=techcorp", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("search status %d", res.StatusCode)
	}
	if err := json.Unmarshal(data, &leads); err != nil {
		t.Fatalf("unmarshal search: %v", err)
	}
	if len(leads) != 1 || leads[0].ID != "l1" {
		t.Fatalf("search should match TechCorp only, got %+v", leads)
	}
}

func TestCreateLeadRejectsNegativeValue(t *testing.T) {
	srv := newTestServer(t, &scriptedGateway{}, false)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/leads", map[string]any{
		"name":   "Bad",
		"status": "HOT",
		"value":  -10,
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400, got %d: %s", res.StatusCode, data)
	}
}

func TestContactDeleteIdempotent(t *testing.T) {
	srv := newTestServer(t, &scriptedGateway{}, true)
	client := srv.Client()

	for _, id := range []string{"c3", "c3", "never-existed"} {
		res, data := doJSON(t, client, http.MethodDelete, srv.URL+"/api/v1/contacts/"+id, nil)
		if res.StatusCode != http.StatusNoContent {
			t.Fatalf("delete %s status %d: %s", id, res.StatusCode, data)
		}
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/contacts", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d", res.StatusCode)
	}
	var contacts []ContactResponse
	if err := json.Unmarshal(data, &contacts); err != nil {
		t.Fatalf("unmarshal contacts: %v", err)
	}
	if len(contacts) != 3 {
		t.Fatalf("expected 3 contacts after deletes, got %d", len(contacts))
	}
	for _, c := range contacts {
		if c.AvatarURL == "" {
			t.Fatalf("contact %s missing resolved avatar", c.ID)
		}
	}
}

func TestDealBoardAndAdvance(t *testing.T) {
	srv := newTestServer(t, &scriptedGateway{}, true)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/deals/d1/advance", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("advance status %d: %s", res.StatusCode, data)
	}
	var deal domain.Deal
	if err := json.Unmarshal(data, &deal); err != nil {
		t.Fatalf("unmarshal deal: %v", err)
	}
	if deal.Stage != domain.StageClosedWon {
		t.Fatalf("NEGOTIATION should advance to CLOSED_WON, got %s", deal.Stage)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/deals/no-such-deal/advance", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404 for unknown deal, got %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/api/v1/deals/d2/stage", map[string]string{"stage": "CLOSED_LOST"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set stage status %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/deals/board", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("board status %d", res.StatusCode)
	}
	var board []StageGroupResponse
	if err := json.Unmarshal(data, &board); err != nil {
		t.Fatalf("unmarshal board: %v", err)
	}
	if len(board) != 5 {
		t.Fatalf("expected 5 columns, got %d", len(board))
	}
	for _, g := range board {
		if g.Stage == domain.StageClosedLost {
			t.Fatal("CLOSED_LOST must not be a board column")
		}
		for _, d := range g.Deals {
			if d.ID == "d2" {
				t.Fatal("lost deal should be archived off the board")
			}
		}
	}

	// Lost deals still count toward the summary total.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/dashboard/summary", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("summary status %d", res.StatusCode)
	}
	var summary SummaryResponse
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if summary.PipelineTotal != 16000 {
		t.Fatalf("want pipeline total 16000, got %v", summary.PipelineTotal)
	}
	if summary.PendingTasks != 2 {
		t.Fatalf("want 2 pending tasks, got %d", summary.PendingTasks)
	}
}

func TestLeadExportCSV(t *testing.T) {
	srv := newTestServer(t, &scriptedGateway{}, true)
	res, err := srv.Client().Get(srv.URL + "/api/v1/leads/export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer res.Body.Close()
	data, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("export status %d: %s", res.StatusCode, data)
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("want text/csv, got %s", ct)
	}
	wantName := fmt.Sprintf("leadline_leads_%s.csv", time.Now().UTC().Format("2006-01-02"))
	if cd := res.Header.Get("Content-Disposition"); !strings.Contains(cd, wantName) {
		t.Fatalf("content-disposition %q should carry %q", cd, wantName)
	}
	lines := strings.Split(string(data), "\n")
	if lines[0] != "ID,Name,Email,Company,Status,Value ($),Last Contacted,Notes" {
		t.Fatalf("header mismatch: %q", lines[0])
	}
	if len(lines) != 5 {
		t.Fatalf("expected header plus 4 rows, got %d", len(lines))
	}
}

func TestLeadExportEmpty(t *testing.T) {
	srv := newTestServer(t, &scriptedGateway{}, false)
	res, err := srv.Client().Get(srv.URL + "/api/v1/leads/export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer res.Body.Close()
	data, _ := io.ReadAll(res.Body)
	// Nothing to export is informational, never an error status.
	if res.StatusCode != http.StatusOK {
		t.Fatalf("empty export status %d: %s", res.StatusCode, data)
	}
	var msg map[string]string
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if !strings.Contains(msg["message"], "No leads") {
		t.Fatalf("unexpected message: %q", msg["message"])
	}
}

func TestChatRoundTrip(t *testing.T) {
	gw := &scriptedGateway{reply: "Prioritize Alice Brown."}
	srv := newTestServer(t, gw, true)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/assist/chat", map[string]string{"message": "who first?"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("chat status %d: %s", res.StatusCode, data)
	}
	var reply domain.Message
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if reply.Role != domain.RoleAssistant || reply.Content != "Prioritize Alice Brown." {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/assist/chat", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("transcript status %d", res.StatusCode)
	}
	var conv ConversationResponse
	if err := json.Unmarshal(data, &conv); err != nil {
		t.Fatalf("unmarshal conversation: %v", err)
	}
	if conv.State != "idle" || len(conv.Messages) != 3 {
		t.Fatalf("unexpected conversation: state=%s turns=%d", conv.State, len(conv.Messages))
	}
}

func TestChatFailureDegradesGracefully(t *testing.T) {
	gw := &scriptedGateway{err: assist.ErrUnavailable}
	srv := newTestServer(t, gw, true)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/assist/chat", map[string]string{"message": "hello"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("a failed gateway call still yields an assistant turn, got %d: %s", res.StatusCode, data)
	}
	var reply domain.Message
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if reply.Role != domain.RoleAssistant || !strings.Contains(reply.Content, "unavailable") {
		t.Fatalf("expected the generic apology turn, got %+v", reply)
	}
}

func TestChatWhileBusyConflicts(t *testing.T) {
	gw := &scriptedGateway{reply: "slow answer", block: make(chan struct{})}
	srv := newTestServer(t, gw, true)
	client := srv.Client()

	first := make(chan int, 1)
	go func() {
		res, _ := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/assist/chat", map[string]string{"message": "first"})
		first <- res.StatusCode
	}()

	// Wait for the first send to reach the awaiting state.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/assist/chat", nil)
		var conv ConversationResponse
		if res.StatusCode == http.StatusOK && json.Unmarshal(data, &conv) == nil && conv.State == "awaiting" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/assist/chat", map[string]string{"message": "second"})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("want 409 while awaiting, got %d: %s", res.StatusCode, data)
	}

	close(gw.block)
	if status := <-first; status != http.StatusOK {
		t.Fatalf("first send should complete, got %d", status)
	}
}

func TestInsightsUnavailable(t *testing.T) {
	gw := &scriptedGateway{err: assist.ErrUnavailable}
	srv := newTestServer(t, gw, true)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v1/assist/insights", nil)
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d: %s", res.StatusCode, data)
	}
	if !strings.Contains(string(data), "ai_unavailable") {
		t.Fatalf("expected the ai_unavailable code, got %s", data)
	}
}

func TestEventsLogMutations(t *testing.T) {
	srv := newTestServer(t, &scriptedGateway{}, true)
	client := srv.Client()

	doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/leads", map[string]any{
		"name": "Logged Lead", "status": "HOT", "value": 1,
	})
	doJSON(t, client, http.MethodDelete, srv.URL+"/api/v1/contacts/c4", nil)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/events", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, data)
	}
	var events []EventResponse
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("seeding is silent, so exactly 2 events, got %d", len(events))
	}
	if events[0].Type != "contact.deleted" || events[1].Type != "lead.added" {
		t.Fatalf("unexpected event order: %s, %s", events[0].Type, events[1].Type)
	}
}
