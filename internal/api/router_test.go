package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	h "github.com/frodejac/writeups/internal/api/handlers"
	"github.com/frodejac/writeups/internal/auth"
	"github.com/frodejac/writeups/internal/auth/static"
	"github.com/frodejac/writeups/internal/database"
	"github.com/frodejac/writeups/internal/database/sessions"
	"github.com/frodejac/writeups/internal/files"
	"github.com/frodejac/writeups/internal/metadata"
	"github.com/frodejac/writeups/internal/uploads"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const adminPassword = "correct horse battery staple"

var storedName = regexp.MustCompile(`^\d{8}_\d{6}_report\.pdf$`)

type testServer struct {
	handler http.Handler
	files   *files.DiskStore
	records *metadata.JSONStore
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	dir := t.TempDir()

	db, err := database.Open(filepath.Join(dir, "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sessionStore, err := sessions.NewSessionStore(db)
	require.NoError(t, err)
	sessionService := auth.NewSessionService(sessionStore, &auth.SessionCookieConfig{
		Name:     "session",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Lifetime: time.Hour,
	}, []byte("router-test-secret"))

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)
	staticAuth, err := static.NewAuthFromConfig(&static.Config{PasswordHash: string(hash)})
	require.NoError(t, err)

	fileStore, err := files.NewDiskStore(filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	records, err := metadata.NewJSONStore(filepath.Join(dir, "data", "metadata.json"))
	require.NoError(t, err)
	uploadService := uploads.NewUploadService(records, fileStore, &uploads.Config{
		MaxFileSize:       1024,
		AllowedExtensions: []string{".pdf"},
	})

	templates, err := h.LoadTemplates(filepath.Join("..", "..", "web", "templates"))
	require.NoError(t, err)

	cfg := &Config{
		StaticPath:         filepath.Join("..", "..", "web", "static"),
		LoginRateLimit:     100,
		LoginRateBurst:     100,
		UseSecurityHeaders: true,
	}
	if mutate != nil {
		mutate(cfg)
	}
	router := NewRouter(templates, sessionService, staticAuth, uploadService, cfg)
	return &testServer{handler: router.Handler(), files: fileStore, records: records}
}

func (s *testServer) do(r *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		r.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	return w
}

func (s *testServer) get(path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, path, nil), cookie)
}

func (s *testServer) login(t *testing.T, password string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"password": {password}}
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(r, nil)
}

func (s *testServer) adminCookie(t *testing.T) *http.Cookie {
	t.Helper()
	w := s.login(t, adminPassword)
	require.Equal(t, http.StatusFound, w.Code)
	for _, c := range w.Result().Cookies() {
		if c.Name == "session" && c.Value != "" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func (s *testServer) isAdmin(t *testing.T, cookie *http.Cookie) bool {
	t.Helper()
	w := s.get("/api/check-auth", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["is_admin"]
}

func (s *testServer) list(t *testing.T) []metadata.Record {
	t.Helper()
	w := s.get("/api/pdfs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []metadata.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	return records
}

func (s *testServer) assertNothingStored(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(s.files.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, s.list(t))
}

// uploadRequest builds a multipart upload. An empty filename with withFile set
// mimics a file input left empty by the browser.
func uploadRequest(t *testing.T, fields map[string]string, withFile bool, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if withFile {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	r := httptest.NewRequest(http.MethodPost, "/upload", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body["error"]
}

func TestLoginCheckAuthLogout(t *testing.T) {
	s := newTestServer(t, nil)

	assert.False(t, s.isAdmin(t, nil))

	w := s.login(t, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid password")
	assert.Empty(t, w.Result().Cookies())

	cookie := s.adminCookie(t)
	assert.True(t, s.isAdmin(t, cookie))

	w = s.get("/logout", cookie)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/ctf.html", w.Header().Get("Location"))
	cleared := w.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Empty(t, cleared[0].Value)

	// The old cookie no longer maps to a session
	assert.False(t, s.isAdmin(t, cookie))
}

func TestLoginPage(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.get("/login", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="password"`)

	w = s.get("/login", s.adminCookie(t))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/ctf.html", w.Header().Get("Location"))
}

func TestLoginThrottled(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.LoginRateLimit = 0.001
		c.LoginRateBurst = 2
	})

	assert.Equal(t, http.StatusUnauthorized, s.login(t, "a").Code)
	assert.Equal(t, http.StatusUnauthorized, s.login(t, "b").Code)
	w := s.login(t, adminPassword)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Empty(t, w.Result().Cookies())
}

func TestUploadReport(t *testing.T) {
	s := newTestServer(t, nil)
	cookie := s.adminCookie(t)
	content := []byte("%PDF-1.4\n\n")

	w := s.do(uploadRequest(t, map[string]string{"title": "Writeup A"}, true, "report.pdf", content), cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Success  bool   `json:"success"`
		Filename string `json:"filename"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Regexp(t, storedName, resp.Filename)

	records := s.list(t)
	require.Len(t, records, 1)
	assert.Equal(t, resp.Filename, records[0].Filename)
	assert.Equal(t, "Writeup A", records[0].Title)
	assert.Equal(t, int64(10), records[0].Size)

	w = s.get("/uploads/"+resp.Filename, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "inline"))

	w = s.get("/ctf.html", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Writeup A")
	assert.NotContains(t, w.Body.String(), `class="delete"`)

	w = s.get("/ctf.html", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `class="delete"`)
	assert.Contains(t, w.Body.String(), `id="upload-form"`)
}

func TestUploadRejected(t *testing.T) {
	tests := []struct {
		name     string
		admin    bool
		fields   map[string]string
		withFile bool
		filename string
		content  []byte
		status   int
		message  string
	}{
		{"anonymous", false, nil, true, "report.pdf", []byte("%PDF"), http.StatusUnauthorized, "Unauthorized"},
		{"executable", true, nil, true, "malware.exe", []byte("%PDF-1.4"), http.StatusBadRequest, "Only PDF files are allowed"},
		{"too large", true, nil, true, "big.pdf", bytes.Repeat([]byte("a"), 1025), http.StatusBadRequest, "File too large (max 1.0 KiB)"},
		{"no file", true, map[string]string{"title": "x"}, false, "", nil, http.StatusBadRequest, "No file provided"},
		{"no selection", true, nil, true, "", nil, http.StatusBadRequest, "No file selected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			var cookie *http.Cookie
			if tt.admin {
				cookie = s.adminCookie(t)
			}
			w := s.do(uploadRequest(t, tt.fields, tt.withFile, tt.filename, tt.content), cookie)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.message, errorMessage(t, w))
			s.assertNothingStored(t)
		})
	}
}

func TestUploadBodyOverCap(t *testing.T) {
	s := newTestServer(t, nil)
	cookie := s.adminCookie(t)

	big := bytes.Repeat([]byte("a"), 1024+2<<20)
	w := s.do(uploadRequest(t, nil, true, "huge.pdf", big), cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorMessage(t, w), "File too large")
	s.assertNothingStored(t)
}

func TestDelete(t *testing.T) {
	s := newTestServer(t, nil)
	cookie := s.adminCookie(t)

	w := s.do(uploadRequest(t, nil, true, "report.pdf", []byte("%PDF")), cookie)
	require.Equal(t, http.StatusOK, w.Code)
	filename := s.list(t)[0].Filename

	w = s.do(httptest.NewRequest(http.MethodPost, "/api/delete/"+filename, nil), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Len(t, s.list(t), 1)

	w = s.do(httptest.NewRequest(http.MethodPost, "/api/delete/"+filename, nil), cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
	s.assertNothingStored(t)
	assert.Equal(t, http.StatusNotFound, s.get("/uploads/"+filename, nil).Code)

	// Deleting something that is not there still succeeds
	w = s.do(httptest.NewRequest(http.MethodPost, "/api/delete/missing.pdf", nil), cookie)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListEmpty(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.get("/api/pdfs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestServeFileNotFound(t *testing.T) {
	s := newTestServer(t, nil)
	_, err := s.files.Put(context.Background(), "notes.txt", strings.NewReader("x"), 1)
	require.NoError(t, err)

	for _, name := range []string{"missing.pdf", "notes.txt", ".hidden.pdf"} {
		w := s.get("/uploads/"+name, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, name)
		assert.Equal(t, "File not found", errorMessage(t, w))
	}
}

func TestStaticFiles(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.get("/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<html")

	w = s.get("/style.css", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/css")

	w = s.get("/nope.js", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStaticDirectoriesAreNotListed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "a.txt"), []byte("hello"), 0644))
	s := newTestServer(t, func(c *Config) { c.StaticPath = dir })

	w := s.get("/assets/a.txt", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())

	assert.Equal(t, http.StatusNotFound, s.get("/assets/", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.get("/assets", nil).Code)
	// No index.html in this static root
	assert.Equal(t, http.StatusNotFound, s.get("/", nil).Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.get("/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	w = s.get("/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "writeups_http_requests_total")
}

func TestMiddlewareHeaders(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.get("/healthz", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set("X-Request-ID", "abc")
	w = s.do(r, nil)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))

	s = newTestServer(t, func(c *Config) { c.UseHsts = true })
	w = s.get("/healthz", nil)
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestCors(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.CorsAllowedOrigins = []string{"https://blog.example"} })

	r := httptest.NewRequest(http.MethodGet, "/api/pdfs", nil)
	r.Header.Set("Origin", "https://blog.example")
	w := s.do(r, nil)
	assert.Equal(t, "https://blog.example", w.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodGet, "/api/pdfs", nil)
	r.Header.Set("Origin", "https://evil.example")
	w = s.do(r, nil)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestUploadMalformedForm(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"empty body", "multipart/form-data; boundary=X", ""},
		{"truncated part", "multipart/form-data; boundary=X",
			"--X\r\nContent-Disposition: form-data; name=\"file\"; filename=\"report.pdf\"\r\n\r\n%PDF-1.4"},
		{"no boundary", "multipart/form-data", "--X--\r\n"},
		{"not multipart", "application/x-www-form-urlencoded", "title=x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			r := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", tt.contentType)
			w := s.do(r, s.adminCookie(t))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "No file provided", errorMessage(t, w))
			s.assertNothingStored(t)
		})
	}
}

// A body over the cap is rejected while the form is read, before the file
// name is known, so the size error wins over the type error.
func TestUploadBodyOverCapWithWrongType(t *testing.T) {
	s := newTestServer(t, nil)
	big := bytes.Repeat([]byte("a"), 3<<20)
	w := s.do(uploadRequest(t, nil, true, "huge.exe", big), s.adminCookie(t))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "File too large (max 1.0 KiB)", errorMessage(t, w))
	s.assertNothingStored(t)
}

func TestCtfPageListsNewestFirst(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	require.NoError(t, s.records.Append(ctx, metadata.Record{
		Filename: "old.pdf", Title: "Older writeup", UploadDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, s.records.Append(ctx, metadata.Record{
		Filename: "new.pdf", Title: "Newer writeup", UploadDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}))

	w := s.get("/ctf.html", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := w.Body.String()
	newer := strings.Index(page, "Newer writeup")
	older := strings.Index(page, "Older writeup")
	require.True(t, newer >= 0 && older >= 0)
	assert.Less(t, newer, older)

	// The API keeps the stored order
	records := s.list(t)
	require.Len(t, records, 2)
	assert.Equal(t, "old.pdf", records[0].Filename)
	assert.Equal(t, "new.pdf", records[1].Filename)
}
