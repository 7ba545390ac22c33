package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/luthierworks/tabliste/backend/internal/auth"
	"github.com/luthierworks/tabliste/backend/internal/tabs"
)

type stubSessionValidator struct {
	claims auth.SessionClaims
	err    error
}

func (s stubSessionValidator) ValidateRequest(*http.Request) (auth.SessionClaims, error) {
	if s.err != nil {
		return auth.SessionClaims{}, s.err
	}
	return s.claims, nil
}

func validSession() stubSessionValidator {
	return stubSessionValidator{claims: auth.SessionClaims{UserID: "user-1"}}
}

// stubTokenService keeps issued tokens in memory with single-use semantics.
type stubTokenService struct {
	mu     sync.Mutex
	next   int
	issued map[string]string
}

func newStubTokenService() *stubTokenService {
	return &stubTokenService{issued: map[string]string{}}
}

func (s *stubTokenService) Issue(_ context.Context, tabID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	value := "token-" + strconv.Itoa(s.next)
	s.issued[value] = tabID
	return value, nil
}

func (s *stubTokenService) Consume(_ context.Context, value, tabID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.issued[value]
	if !ok {
		return errors.New("invalid token")
	}
	delete(s.issued, value)
	if stored != tabID {
		return errors.New("token mismatch")
	}
	return nil
}

type stubCounter struct {
	mu    sync.Mutex
	value uint64
}

func (c *stubCounter) Next(context.Context, string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value++
	return c.value, nil
}

type testEnv struct {
	handler http.Handler
	store   *tabs.Store
	tokens  *stubTokenService
}

func newTestEnv(t *testing.T, sessions SessionValidator) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := tabs.NewStore(tabs.StoreConfig{
		RootDir: t.TempDir(),
		Counter: &stubCounter{},
		Clock:   time.Now,
	})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}

	tokens := newStubTokenService()
	handler, err := NewHTTPHandler(Dependencies{
		Sessions: sessions,
		TabStore: store,
		Tokens:   tokens,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	return testEnv{handler: handler, store: store, tokens: tokens}
}

func (e testEnv) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	recorder := httptest.NewRecorder()
	e.handler.ServeHTTP(recorder, request)
	return recorder
}

func (e testEnv) doJSON(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return e.do(t, method, path, body, "application/json")
}

func multipartUpload(t *testing.T, filename string, data []byte, fields map[string]string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed to write form field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return buf.Bytes(), writer.FormDataContentType()
}

func decodeJSONBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	decoded := map[string]any{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return decoded
}

func createTestTab(t *testing.T, env testEnv, title string) string {
	t.Helper()
	body, contentType := multipartUpload(t, "song.gp5", []byte("tab-bytes"), map[string]string{"title": title})
	recorder := env.do(t, http.MethodPost, "/api/new-tab", body, contentType)
	if recorder.Code != http.StatusOK {
		t.Fatalf("failed to create tab: %d %s", recorder.Code, recorder.Body.String())
	}
	decoded := decodeJSONBody(t, recorder)
	id, _ := decoded["id"].(string)
	if id == "" {
		t.Fatalf("expected tab id in response, got %v", decoded)
	}
	return id
}
