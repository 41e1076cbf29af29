package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/assistant"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/auth"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/credentials"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/dispatch"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/intent"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/logging"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/metadata"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/remote"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/remote/remotetest"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/storage/smb"
)

const rootListing = " Volume in drive \\\\nas\\share is DATA\r\n" +
	" Volume Serial Number is 1A2B-3C4D\r\n" +
	"\r\n" +
	" Directory of \\\\nas\\share\r\n" +
	"\r\n" +
	"15-11-2023  10:30    <DIR>          photos\r\n" +
	"15-11-2023  10:30             2,048 notes.txt\r\n" +
	"16-11-2023  11:00         1,048,576 beach.jpg\r\n" +
	"               2 File(s)      1,050,624 bytes\r\n"

const photosListing = " Volume in drive \\\\nas\\share is DATA\r\n" +
	" Volume Serial Number is 1A2B-3C4D\r\n" +
	"\r\n" +
	" Directory of \\\\nas\\share\\photos\r\n" +
	"\r\n" +
	"01-01-2024  09:00             4,096 sunset.png\r\n" +
	"               1 File(s)          4,096 bytes\r\n"

type testEnv struct {
	server *httptest.Server
	rec    *remotetest.Recorder
	svc    *assistant.Service
	store  *metadata.Store
}

func newTestEnv(t *testing.T, rules ...remotetest.Rule) *testEnv {
	t.Helper()
	rec := remotetest.New(rules...)
	return newTestEnvWith(t, rec, rec)
}

func newTestEnvWith(t *testing.T, exec remote.Executor, rec *remotetest.Recorder) *testEnv {
	t.Helper()
	logging.InitNop()

	store, err := metadata.Open("sqlite://" + filepath.Join(t.TempDir(), "nas.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	client := smb.NewClient(exec)
	sealer, err := credentials.NewSealer("test-key")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	registry := credentials.NewRegistry(store, sealer, client)
	svc := assistant.New(intent.NewClassifier(), dispatch.New(client), registry, store, time.Second)

	srv := NewServer(svc, registry, client, auth.New("jwt-secret", time.Hour), store, 1<<20, 4<<20)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		svc.Close()
		store.Close()
	})
	return &testEnv{server: ts, rec: rec, svc: svc, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, e.server.URL+path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (e *testEnv) connect(t *testing.T) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/v1/auth/connect", "", map[string]string{
		"host": "nas", "share": "share", "username": "alice", "password": "hunter2",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("connect: status %d body %v", resp.StatusCode, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("connect returned no token: %v", body)
	}
	return token
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health = %d %v", resp.StatusCode, body)
	}
}

func TestConnectChecksShare(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)

	want := "net use /delete,net use,dir,net use /delete"
	if got := strings.Join(env.rec.Names(), ","); got != want {
		t.Errorf("connect commands = %s, want %s", got, want)
	}
}

func TestConnectFailures(t *testing.T) {
	env := newTestEnv(t, remotetest.Rule{Match: "hunter3", Result: remote.Result{ExitCode: 2, Stderr: "System error 86 has occurred."}})

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"missing fields", map[string]string{"host": "nas"}, http.StatusBadRequest},
		{"bad host", map[string]string{"host": "nas;x", "share": "s", "username": "u", "password": "p"}, http.StatusBadRequest},
		{"rejected", map[string]string{"host": "nas", "share": "share", "username": "alice", "password": "hunter3"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		resp, body := env.do(t, http.MethodPost, "/api/v1/auth/connect", "", tt.body)
		if resp.StatusCode != tt.want {
			t.Errorf("%s: status = %d, want %d (%v)", tt.name, resp.StatusCode, tt.want, body)
		}
		if _, ok := body["error"].(string); !ok {
			t.Errorf("%s: body %v has no error", tt.name, body)
		}
	}
}

func TestChatRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodPost, "/api/v1/ai/chat", "", map[string]string{"message": "hi"})
	if resp.StatusCode != http.StatusUnauthorized || body["error"] != "No token provided" {
		t.Errorf("chat without token = %d %v", resp.StatusCode, body)
	}
}

func TestChatFlow(t *testing.T) {
	env := newTestEnv(t, remotetest.Rule{Match: `dir \\nas\share`, Result: remote.Result{Stdout: rootListing}})
	token := env.connect(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/ai/chat", token, map[string]string{"message": "Show me files in the root directory"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat: %d %v", resp.StatusCode, body)
	}
	if body["response"] != "Files in root:" {
		t.Errorf("response = %v", body["response"])
	}
	action, _ := body["action"].(map[string]any)
	if action["action"] != "list" || action["path"] != "" {
		t.Errorf("action = %v", action)
	}
	files, _ := body["files"].([]any)
	if len(files) != 3 {
		t.Errorf("files = %v", files)
	}
	env.svc.Close()

	resp, body = env.do(t, http.MethodPost, "/api/v1/ai/chat", token, map[string]any{"message": "delete the old_backup folder"})
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(body["response"].(string), "Are you sure") {
		t.Errorf("unconfirmed delete = %d %v", resp.StatusCode, body)
	}

	env.svc.Close()
	resp, body = env.do(t, http.MethodGet, "/api/v1/ai/history?limit=10", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history: %d %v", resp.StatusCode, body)
	}
	history, _ := body["history"].([]any)
	if len(history) != 2 {
		t.Fatalf("history = %v", history)
	}
	newest := history[0].(map[string]any)
	if newest["query"] != "delete the old_backup folder" || newest["action"] != "delete_folder" {
		t.Errorf("newest history row = %v", newest)
	}
}

func TestChatErrors(t *testing.T) {
	env := newTestEnv(t, remotetest.Rule{Match: "mkdir", Result: remote.Result{ExitCode: 1, Stderr: "Access is denied."}})
	token := env.connect(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"empty message", map[string]string{"message": ""}, http.StatusBadRequest},
		{"bad path", map[string]string{"message": "list files in ../secret"}, http.StatusBadRequest},
		{"remote failure", map[string]string{"message": "create folder x"}, http.StatusBadGateway},
		{"not json", "nope", http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp, body := env.do(t, http.MethodPost, "/api/v1/ai/chat", token, tt.body)
		if resp.StatusCode != tt.want {
			t.Errorf("%s: status = %d, want %d (%v)", tt.name, resp.StatusCode, tt.want, body)
		}
		if msg, _ := body["error"].(string); msg == "" {
			t.Errorf("%s: no error message in %v", tt.name, body)
		}
	}
}

func TestUnknownConnection(t *testing.T) {
	env := newTestEnv(t)
	token, _, _ := auth.New("jwt-secret", time.Hour).Issue("00000000-0000-4000-8000-000000000000", "ghost")

	resp, body := env.do(t, http.MethodPost, "/api/v1/ai/chat", token, map[string]string{"message": "list files"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("chat for unknown connection = %d %v", resp.StatusCode, body)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/v1/files", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("files for unknown connection = %d", resp.StatusCode)
	}
}

func TestHistoryLimit(t *testing.T) {
	env := newTestEnv(t)
	token := env.connect(t)

	for _, q := range []string{"?limit=0", "?limit=abc", "?limit=-1"} {
		resp, _ := env.do(t, http.MethodGet, "/api/v1/ai/history"+q, token, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("history%s = %d, want 400", q, resp.StatusCode)
		}
	}
	resp, body := env.do(t, http.MethodGet, "/api/v1/ai/history?limit=100000", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("clamped limit = %d", resp.StatusCode)
	}
	if h, ok := body["history"].([]any); !ok || len(h) != 0 {
		t.Errorf("history = %v, want empty list", body["history"])
	}
}

func TestListFilesAndBreakdown(t *testing.T) {
	env := newTestEnv(t,
		remotetest.Rule{Match: `dir \\nas\share\photos`, Result: remote.Result{Stdout: photosListing}},
		remotetest.Rule{Match: `dir \\nas\share`, Result: remote.Result{Stdout: rootListing}},
	)
	token := env.connect(t)

	resp, body := env.do(t, http.MethodGet, "/api/v1/files?path=photos", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("files: %d %v", resp.StatusCode, body)
	}
	files, _ := body["files"].([]any)
	if len(files) != 1 || files[0].(map[string]any)["path"] != `photos\sunset.png` {
		t.Errorf("files = %v", files)
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/files/breakdown", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("breakdown: %d %v", resp.StatusCode, body)
	}
	cats, _ := body["categories"].(map[string]any)
	if cats["image"] != float64(1048576+4096) || cats["document"] != float64(2048) || cats["video"] != float64(0) {
		t.Errorf("categories = %v", cats)
	}
	if body["total"] != float64(1048576+4096+2048) {
		t.Errorf("total = %v", body["total"])
	}
}

func TestRequestBodyLimit(t *testing.T) {
	env := newTestEnv(t)
	token := env.connect(t)
	big := map[string]string{"message": strings.Repeat("a", 1<<20)}
	resp, _ := env.do(t, http.MethodPost, "/api/v1/ai/chat", token, big)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized body = %d, want 413", resp.StatusCode)
	}
}

// shareDir serves copy commands against a local directory standing in for
// \\nas\share. Every other command goes to the embedded Recorder.
type shareDir struct {
	*remotetest.Recorder
	root string
}

func (d *shareDir) Run(ctx context.Context, cmd remote.Command) (remote.Result, error) {
	res, err := d.Recorder.Run(ctx, cmd)
	if err != nil || cmd.Program != "copy" || len(cmd.Args) != 3 {
		return res, err
	}
	b, err := os.ReadFile(d.local(cmd.Args[1]))
	if err != nil {
		return remote.Result{ExitCode: 1, Stderr: "The system cannot find the file specified."}, nil
	}
	if err := os.WriteFile(d.local(cmd.Args[2]), b, 0o600); err != nil {
		return remote.Result{ExitCode: 1, Stderr: "The system cannot find the path specified."}, nil
	}
	return remote.Result{Stdout: "        1 file(s) copied.\r\n"}, nil
}

func (d *shareDir) local(p string) string {
	rest, ok := strings.CutPrefix(p, `\\nas\share\`)
	if !ok {
		return p
	}
	return filepath.Join(d.root, filepath.FromSlash(strings.ReplaceAll(rest, `\`, "/")))
}

func newShareEnv(t *testing.T) (*testEnv, string) {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "docs"), 0o755); err != nil {
		t.Fatal(err)
	}
	rec := remotetest.New()
	return newTestEnvWith(t, &shareDir{Recorder: rec, root: root}, rec), root
}

func (e *testEnv) upload(t *testing.T, token, dir, name string, content []byte) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if dir != "" {
		mw.WriteField("path", dir)
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(content)
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, e.server.URL+"/api/v1/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestUploadThenDownload(t *testing.T) {
	env, root := newShareEnv(t)
	token := env.connect(t)
	content := []byte("quarterly numbers\n")

	resp, body := env.upload(t, token, "docs", "report.txt", content)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload: %d %v", resp.StatusCode, body)
	}
	if body["path"] != `docs\report.txt` || body["size"] != float64(len(content)) {
		t.Errorf("upload body = %v", body)
	}
	got, err := os.ReadFile(filepath.Join(root, "docs", "report.txt"))
	if err != nil || !bytes.Equal(got, content) {
		t.Fatalf("share file = %q, %v", got, err)
	}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/v1/files/download?path=docs/report.txt", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	dl, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer dl.Body.Close()
	data, _ := io.ReadAll(dl.Body)
	if dl.StatusCode != http.StatusOK || !bytes.Equal(data, content) {
		t.Errorf("download = %d %q", dl.StatusCode, data)
	}
	if cd := dl.Header.Get("Content-Disposition"); cd != `attachment; filename=report.txt` {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestTransferErrors(t *testing.T) {
	env, _ := newShareEnv(t)
	token := env.connect(t)

	resp, body := env.do(t, http.MethodGet, "/api/v1/files/download?path=docs/missing.txt", token, nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("missing download = %d %v", resp.StatusCode, body)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/v1/files/download", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("download without path = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/v1/files/download?path=../etc/passwd", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("download outside share = %d", resp.StatusCode)
	}
	resp, _ = env.upload(t, token, "../etc", "x.txt", []byte("x"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("upload outside share = %d", resp.StatusCode)
	}
	resp, _ = env.upload(t, token, "docs", "big.bin", bytes.Repeat([]byte("x"), 5<<20))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized upload = %d, want 413", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodPost, "/api/v1/files/upload", token, map[string]string{"path": "docs"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("upload without form = %d", resp.StatusCode)
	}
}

func TestDirectFileActions(t *testing.T) {
	env := newTestEnv(t,
		remotetest.Rule{Match: `dir \\nas\share\photos /a-d /b`, Result: remote.Result{Stdout: "a.jpg\r\nb.jpg\r\n"}},
		remotetest.Rule{Match: `mkdir \\nas\share\locked`, Result: remote.Result{ExitCode: 1, Stderr: "Access is denied."}},
	)
	token := env.connect(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		msg    string
	}{
		{"count", http.MethodGet, "/api/v1/files/count?path=photos", nil, http.StatusOK, "Found 2 files in photos"},
		{"create folder", http.MethodPost, "/api/v1/files/folders", map[string]string{"path": "archive/2024"}, http.StatusOK, "Successfully created folder archive/2024"},
		{"move", http.MethodPost, "/api/v1/files/move", map[string]string{"source": "a.txt", "destination": "docs"}, http.StatusOK, ""},
		{"folder without path", http.MethodPost, "/api/v1/files/folders", map[string]string{}, http.StatusBadRequest, ""},
		{"move without destination", http.MethodPost, "/api/v1/files/move", map[string]string{"source": "a.txt"}, http.StatusBadRequest, ""},
		{"denied", http.MethodPost, "/api/v1/files/folders", map[string]string{"path": "locked"}, http.StatusBadGateway, ""},
	}
	for _, tt := range tests {
		resp, body := env.do(t, tt.method, tt.path, token, tt.body)
		if resp.StatusCode != tt.status {
			t.Errorf("%s: status = %d, want %d (%v)", tt.name, resp.StatusCode, tt.status, body)
			continue
		}
		if tt.msg != "" && body["message"] != tt.msg {
			t.Errorf("%s: message = %v, want %q", tt.name, body["message"], tt.msg)
		}
	}

	var ran []string
	for _, c := range env.rec.Calls() {
		if strings.HasPrefix(c, "mkdir") || strings.HasPrefix(c, "move") {
			ran = append(ran, c)
		}
	}
	want := []string{
		`mkdir \\nas\share\archive\2024`,
		`move \\nas\share\a.txt \\nas\share\docs`,
		`mkdir \\nas\share\locked`,
	}
	if strings.Join(ran, "|") != strings.Join(want, "|") {
		t.Errorf("share commands = %q, want %q", ran, want)
	}
}
