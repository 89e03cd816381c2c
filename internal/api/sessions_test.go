package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/seantiz/tally/internal/engine"
	"github.com/seantiz/tally/internal/model"
)

const validJournal = `2020-12-17 * Valid transaction
    Assets:Testing  $1000
    Equity
`

const wantBalance = "               $1000  Assets:Testing\n" +
	"              $-1000  Equity\n" +
	"--------------------\n" +
	"                   0\n"

// do sends a request and returns the status code and body.
func do(t *testing.T, method, url string, body io.Reader) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func commandBody(line string) io.Reader {
	data, _ := json.Marshal(commandRequest{Command: line})
	return bytes.NewReader(data)
}

func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	status, body := do(t, "POST", ts.URL+"/v1/sessions", nil)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", status, body)
	}
	rec := decode[sessionResponse](t, body)
	if rec.ID == "" {
		t.Fatal("created session has empty id")
	}
	if rec.Status != model.SessionActive {
		t.Errorf("status = %q, want %q", rec.Status, model.SessionActive)
	}
	return rec.ID
}

func TestSessionScenario(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := createSession(t, ts)
	base := ts.URL + "/v1/sessions/" + id

	status, body := do(t, "PUT", base+"/journal?source=main.ledger", strings.NewReader(validJournal))
	if status != http.StatusOK {
		t.Fatalf("load status = %d, want 200: %s", status, body)
	}
	rec := decode[sessionResponse](t, body)
	if rec.Loads != 1 || rec.Transactions != 1 {
		t.Errorf("loads/transactions = %d/%d, want 1/1", rec.Loads, rec.Transactions)
	}
	if len(rec.Sources) != 1 || rec.Sources[0] != "main.ledger" {
		t.Errorf("sources = %v, want [main.ledger]", rec.Sources)
	}

	status, body = do(t, "POST", base+"/commands", commandBody("balance"))
	if status != http.StatusOK {
		t.Fatalf("execute status = %d, want 200: %s", status, body)
	}
	if out := decode[commandResponse](t, body).Output; out != wantBalance {
		t.Errorf("output = %q, want %q", out, wantBalance)
	}
}

func TestSessionErrors(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := createSession(t, ts)
	base := ts.URL + "/v1/sessions/" + id

	status, body := do(t, "PUT", base+"/journal", strings.NewReader("2020-12-18 Broken\n    A  $10\n    B  $-5\n"))
	if status != http.StatusUnprocessableEntity {
		t.Errorf("unbalanced load status = %d, want 422", status)
	}
	if kind := decode[errorResponse](t, body).Kind; kind != engine.KindParse {
		t.Errorf("kind = %q, want %q", kind, engine.KindParse)
	}

	status, _ = do(t, "PUT", base+"/journal", strings.NewReader(strings.Repeat(";\n", 4096)))
	if status != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized load status = %d, want 413", status)
	}

	tests := []struct {
		line string
		want int
	}{
		{"nonexistent-command", http.StatusNotFound},
		{"", http.StatusBadRequest},
		{"bal -f x.ledger", http.StatusBadRequest},
		{"bal Liabilities", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		status, body := do(t, "POST", base+"/commands", commandBody(tt.line))
		if status != tt.want {
			t.Errorf("%q status = %d, want %d: %s", tt.line, status, tt.want, body)
		}
	}

	status, _ = do(t, "POST", base+"/commands", strings.NewReader("not json"))
	if status != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want 400", status)
	}

	status, _ = do(t, "POST", ts.URL+"/v1/sessions/unknown/commands", commandBody("bal"))
	if status != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", status)
	}
}

func TestDeleteSession(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := createSession(t, ts)
	base := ts.URL + "/v1/sessions/" + id

	for i := range 2 {
		status, body := do(t, "DELETE", base, nil)
		if status != http.StatusOK {
			t.Fatalf("delete #%d status = %d, want 200", i+1, status)
		}
		rec := decode[sessionResponse](t, body)
		if rec.Status != model.SessionClosed {
			t.Errorf("delete #%d status = %q, want %q", i+1, rec.Status, model.SessionClosed)
		}
		if rec.ClosedAt == nil {
			t.Errorf("delete #%d closed_at is nil", i+1)
		}
	}

	status, _ := do(t, "POST", base+"/commands", commandBody("bal"))
	if status != http.StatusGone {
		t.Errorf("execute after close status = %d, want 410", status)
	}
	status, _ = do(t, "PUT", base+"/journal", strings.NewReader(validJournal))
	if status != http.StatusGone {
		t.Errorf("load after close status = %d, want 410", status)
	}

	status, _ = do(t, "DELETE", ts.URL+"/v1/sessions/unknown", nil)
	if status != http.StatusNotFound {
		t.Errorf("delete unknown status = %d, want 404", status)
	}
}

func TestListSessions(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for range 3 {
		createSession(t, ts)
	}

	status, body := do(t, "GET", ts.URL+"/v1/sessions?limit=2", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	list := decode[listSessionsResponse](t, body)
	if list.Total != 3 {
		t.Errorf("total = %d, want 3", list.Total)
	}
	if len(list.Sessions) != 2 {
		t.Errorf("len(sessions) = %d, want 2", len(list.Sessions))
	}
	if list.Limit != 2 {
		t.Errorf("limit = %d, want 2", list.Limit)
	}
}

func TestExecutionHistory(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := createSession(t, ts)
	base := ts.URL + "/v1/sessions/" + id
	do(t, "PUT", base+"/journal", strings.NewReader(validJournal))
	do(t, "POST", base+"/commands", commandBody("balance"))

	status, body := do(t, "GET", base+"/executions", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	list := decode[listExecutionsResponse](t, body)
	if list.Total != 1 || len(list.Executions) != 1 {
		t.Fatalf("total = %d, len = %d, want 1", list.Total, len(list.Executions))
	}

	status, body = do(t, "GET", ts.URL+"/v1/executions/"+list.Executions[0].ID, nil)
	if status != http.StatusOK {
		t.Fatalf("get execution status = %d, want 200", status)
	}
	exec := decode[model.Execution](t, body)
	if exec.Output != wantBalance {
		t.Errorf("output = %q, want %q", exec.Output, wantBalance)
	}
	if exec.Status != model.ExecutionSucceeded {
		t.Errorf("status = %q, want %q", exec.Status, model.ExecutionSucceeded)
	}

	status, _ = do(t, "GET", ts.URL+"/v1/executions/nonexistent", nil)
	if status != http.StatusNotFound {
		t.Errorf("missing execution status = %d, want 404", status)
	}
	status, _ = do(t, "GET", ts.URL+"/v1/sessions/nonexistent/executions", nil)
	if status != http.StatusNotFound {
		t.Errorf("missing session status = %d, want 404", status)
	}
}

func TestGlobalCommands(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	status, _ := do(t, "POST", ts.URL+"/v1/commands", commandBody("balance"))
	if status != http.StatusBadRequest {
		t.Errorf("run without journal status = %d, want 400", status)
	}

	path := filepath.Join(t.TempDir(), "main.ledger")
	if err := os.WriteFile(path, []byte(validJournal), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := srv.engine.LoadActiveFile(path); err != nil {
		t.Fatalf("LoadActiveFile: %v", err)
	}
	status, body := do(t, "POST", ts.URL+"/v1/commands", commandBody("balance"))
	if status != http.StatusOK {
		t.Fatalf("run status = %d, want 200: %s", status, body)
	}
	if out := decode[commandResponse](t, body).Output; out != wantBalance {
		t.Errorf("output = %q, want %q", out, wantBalance)
	}

	status, body = do(t, "GET", ts.URL+"/v1/commands", nil)
	if status != http.StatusOK {
		t.Fatalf("list status = %d, want 200", status)
	}
	if !strings.Contains(string(body), `"name":"balance"`) {
		t.Errorf("command list missing balance: %s", body)
	}
}

func TestGlobalCommandsDoNotReadServerFiles(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	path := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(path, []byte("hunter2-api-key\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	for _, line := range []string{"balance -f " + path, "-f " + path + " bal", "bal --file=" + path} {
		status, body := do(t, "POST", ts.URL+"/v1/commands", commandBody(line))
		if status != http.StatusBadRequest {
			t.Errorf("%q status = %d, want 400: %s", line, status, body)
		}
		if strings.Contains(string(body), "hunter2") {
			t.Errorf("%q leaked file content: %s", line, body)
		}
		if kind := decode[errorResponse](t, body).Kind; kind != engine.KindInvalidArguments {
			t.Errorf("%q kind = %q, want %q", line, kind, engine.KindInvalidArguments)
		}
	}
}
