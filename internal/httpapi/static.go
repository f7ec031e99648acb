package httpapi

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"pkt.systems/pslog"
)

// DenyList names files under the web root that must never be served. The
// board's own data files usually live next to the front-end, so the server
// passes their base names here.
type DenyList struct {
	// Names are base names matched case-insensitively.
	Names []string
	// Prefixes are base name prefixes, such as the state file's temp files.
	Prefixes []string
}

// Denies reports whether rel, a slash-separated path below the web root, is
// hidden. Dot-files, Go sources and module files are always hidden.
func (d DenyList) Denies(rel string) bool {
	for _, segment := range strings.Split(rel, "/") {
		if strings.HasPrefix(segment, ".") && segment != "." {
			return true
		}
	}
	base := strings.ToLower(path.Base(rel))
	switch {
	case strings.HasSuffix(base, ".go"), base == "go.mod", base == "go.sum", base == "go.work":
		return true
	}
	for _, name := range d.Names {
		if name != "" && base == strings.ToLower(name) {
			return true
		}
	}
	for _, prefix := range d.Prefixes {
		if prefix != "" && strings.HasPrefix(base, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

type staticFiles struct {
	root   string
	deny   DenyList
	logger pslog.Logger
}

// NewStatic serves files below root. Directories resolve to their
// index.html; there are no listings. Requests for hidden files or paths that
// leave root get 404.
func NewStatic(root string, deny DenyList, logger pslog.Logger) http.Handler {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &staticFiles{root: root, deny: deny, logger: logger.With("sys", "api.http.static")}
}

func (s *staticFiles) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rel, ok := relativePath(r.URL.Path)
	if !ok || s.deny.Denies(rel) {
		s.logger.Debug("static.denied", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
		http.NotFound(w, r)
		return
	}
	f, info, err := s.open(rel)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("static.open_failed", "path", rel, "error", err)
		}
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *staticFiles) open(rel string) (*os.File, os.FileInfo, error) {
	f, err := os.OpenInRoot(s.root, filepath.FromSlash(rel))
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if !info.IsDir() {
		return f, info, nil
	}
	f.Close()
	index := path.Join(rel, "index.html")
	if s.deny.Denies(index) {
		return nil, nil, fs.ErrNotExist
	}
	f, err = os.OpenInRoot(s.root, filepath.FromSlash(index))
	if err != nil {
		return nil, nil, err
	}
	info, err = f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, nil, fs.ErrNotExist
	}
	return f, info, nil
}

// relativePath turns a URL path into a slash-separated path below the web
// root. Any ".." segment is rejected rather than cleaned away.
func relativePath(urlPath string) (string, bool) {
	if strings.ContainsRune(urlPath, 0) || strings.Contains(urlPath, "\\") {
		return "", false
	}
	trimmed := strings.Trim(urlPath, "/")
	if trimmed == "" {
		return ".", true
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == ".." {
			return "", false
		}
	}
	return path.Clean(trimmed), true
}
