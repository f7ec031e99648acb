package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeWebFile(t *testing.T, root, rel, body string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestStaticServesFrontEnd(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	writeWebFile(t, env.webRoot, "index.html", "<h1>board</h1>")
	writeWebFile(t, env.webRoot, "app.js", "console.log('kiosk')")
	writeWebFile(t, env.webRoot, "kiosk/index.html", "<h1>kiosk</h1>")

	cases := []struct {
		path string
		want string
	}{
		{"/", "<h1>board</h1>"},
		{"/app.js", "console.log('kiosk')"},
		{"/kiosk/", "<h1>kiosk</h1>"},
		{"/kiosk", "<h1>kiosk</h1>"},
	}
	for _, tc := range cases {
		rec := env.do(t, http.MethodGet, tc.path, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", tc.path, rec.Code)
		}
		if rec.Body.String() != tc.want {
			t.Fatalf("%s: body %q", tc.path, rec.Body.String())
		}
	}
	if ct := env.do(t, http.MethodGet, "/app.js", "", nil).Header().Get("Content-Type"); !strings.Contains(ct, "javascript") {
		t.Fatalf("app.js content-type = %q", ct)
	}
}

func TestStaticDenyList(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	writeWebFile(t, env.webRoot, "status.json", `{"jobs":[]}`)
	writeWebFile(t, env.webRoot, "status.json.tmp-123", `{}`)
	writeWebFile(t, env.webRoot, "server.go", "package main")
	writeWebFile(t, env.webRoot, "go.mod", "module x")
	writeWebFile(t, env.webRoot, ".env", "RW_SECRET_KEY=x")
	writeWebFile(t, env.webRoot, "assets/.git/config", "[core]")
	writeWebFile(t, env.webRoot, "notes.txt", "visible")

	for _, path := range []string{
		"/users.json",
		"/USERS.JSON",
		"/status.json",
		"/status.json.tmp-123",
		"/server.go",
		"/go.mod",
		"/.env",
		"/assets/.git/config",
		"/../users.json",
		"/assets/../users.json",
		"/missing.html",
		"/",
	} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: status %d, want 404", path, rec.Code)
		}
	}
	if rec := env.do(t, http.MethodGet, "/notes.txt", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("notes.txt: %d", rec.Code)
	}
}

func TestDenyListRules(t *testing.T) {
	d := DenyList{Names: []string{"users.json"}, Prefixes: []string{"status.json.tmp"}}
	cases := map[string]bool{
		"index.html":             false,
		"css/site.css":           false,
		"users.json":             true,
		"nested/users.json":      true,
		"status.json.tmp":        true,
		"status.json.tmp-8812":   true,
		"main.go":                true,
		"go.sum":                 true,
		".htaccess":              true,
		"img/.DS_Store":          true,
		"status.json.bak":        false,
		"departments/kiln1.json": false,
	}
	for rel, want := range cases {
		if got := d.Denies(rel); got != want {
			t.Fatalf("Denies(%q) = %v, want %v", rel, got, want)
		}
	}
}

func TestRelativePath(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/", ".", true},
		{"/index.html", "index.html", true},
		{"/a//b/", "a/b", true},
		{"/a/./b", "a/b", true},
		{"/../x", "", false},
		{"/a/../../x", "", false},
		{"/a\\..\\x", "", false},
	}
	for _, tc := range cases {
		got, ok := relativePath(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("relativePath(%q) = %q,%v want %q,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
