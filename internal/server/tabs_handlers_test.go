package server

import (
	"net/http"
	"testing"

	"github.com/luthierworks/tabliste/backend/internal/auth"
)

func TestNewTabCreatesDocumentAndReturnsIdentifier(t *testing.T) {
	env := newTestEnv(t, validSession())
	id := createTestTab(t, env, "Thunderstruck")
	if id != "1" {
		t.Fatalf("expected first allocated identifier, got %q", id)
	}

	recorder := env.do(t, http.MethodGet, "/api/tab/"+id, nil, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected tab to be readable, got %d %s", recorder.Code, recorder.Body.String())
	}
	decoded := decodeJSONBody(t, recorder)
	tab, _ := decoded["tab"].(map[string]any)
	if tab["title"] != "Thunderstruck" {
		t.Fatalf("unexpected tab payload: %v", decoded)
	}
	if tab["filename"] != "tab.gp5" {
		t.Fatalf("expected normalized filename, got %v", tab["filename"])
	}
}

func TestNewTabRejectsUnsupportedFormat(t *testing.T) {
	env := newTestEnv(t, validSession())
	body, contentType := multipartUpload(t, "song.pdf", []byte("x"), nil)
	recorder := env.do(t, http.MethodPost, "/api/new-tab", body, contentType)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported format, got %d", recorder.Code)
	}
}

func TestNewTabDefaultsTitleToFilename(t *testing.T) {
	env := newTestEnv(t, validSession())
	body, contentType := multipartUpload(t, "riff.gpx", []byte("x"), nil)
	recorder := env.do(t, http.MethodPost, "/api/new-tab", body, contentType)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", recorder.Code, recorder.Body.String())
	}
	id := decodeJSONBody(t, recorder)["id"].(string)

	read := env.do(t, http.MethodGet, "/api/tab/"+id, nil, "")
	tab := decodeJSONBody(t, read)["tab"].(map[string]any)
	if tab["title"] != "riff.gpx" {
		t.Fatalf("expected filename fallback title, got %v", tab["title"])
	}
}

func TestGetTabRequiresSessionUnlessPublic(t *testing.T) {
	owner := newTestEnv(t, validSession())
	id := createTestTab(t, owner, "Private Song")

	anonymous, err := NewHTTPHandler(Dependencies{
		Sessions: stubSessionValidator{err: auth.ErrMissingSessionToken},
		TabStore: owner.store,
		Tokens:   owner.tokens,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	anonEnv := testEnv{handler: anonymous, store: owner.store, tokens: owner.tokens}

	if recorder := anonEnv.do(t, http.MethodGet, "/api/tab/"+id, nil, ""); recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected private tab to require a session, got %d", recorder.Code)
	}

	update := map[string]any{"title": "Private Song", "public": true}
	if recorder := owner.doJSON(t, http.MethodPost, "/api/tab/"+id, update); recorder.Code != http.StatusOK {
		t.Fatalf("failed to publish tab: %d %s", recorder.Code, recorder.Body.String())
	}

	if recorder := anonEnv.do(t, http.MethodGet, "/api/tab/"+id, nil, ""); recorder.Code != http.StatusOK {
		t.Fatalf("expected public tab to be readable anonymously, got %d", recorder.Code)
	}
}

func TestUpdateTabValidatesPayload(t *testing.T) {
	env := newTestEnv(t, validSession())
	id := createTestTab(t, env, "Song")

	if recorder := env.doJSON(t, http.MethodPost, "/api/tab/"+id, map[string]any{"artist": "nobody"}); recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected missing title to fail binding, got %d", recorder.Code)
	}
	if recorder := env.do(t, http.MethodPost, "/api/tab/"+id, []byte("not json"), "application/json"); recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected malformed body to fail, got %d", recorder.Code)
	}
}

func TestUpdateMissingTabReturnsNotFound(t *testing.T) {
	env := newTestEnv(t, validSession())
	recorder := env.doJSON(t, http.MethodPost, "/api/tab/999", map[string]any{"title": "Ghost"})
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing tab, got %d", recorder.Code)
	}
}

func TestSetFavoriteRoundTrip(t *testing.T) {
	env := newTestEnv(t, validSession())
	id := createTestTab(t, env, "Song")

	if recorder := env.doJSON(t, http.MethodPost, "/api/tab/"+id+"/fav", map[string]any{"fav": true}); recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	read := env.do(t, http.MethodGet, "/api/tab/"+id, nil, "")
	tab := decodeJSONBody(t, read)["tab"].(map[string]any)
	if fav, _ := tab["fav"].(bool); !fav {
		t.Fatalf("expected tab to be favorited, got %v", tab)
	}
}

func TestListTabsReturnsCreatedTabs(t *testing.T) {
	env := newTestEnv(t, validSession())
	createTestTab(t, env, "First")
	createTestTab(t, env, "Second")

	recorder := env.do(t, http.MethodGet, "/api/tabs", nil, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	decoded := decodeJSONBody(t, recorder)
	listed, _ := decoded["tabs"].([]any)
	if len(listed) != 2 {
		t.Fatalf("expected two tabs, got %v", decoded)
	}
}

func TestDeleteTabRemovesItFromListings(t *testing.T) {
	env := newTestEnv(t, validSession())
	id := createTestTab(t, env, "Doomed")

	if recorder := env.do(t, http.MethodDelete, "/api/tab/"+id, nil, ""); recorder.Code != http.StatusOK {
		t.Fatalf("unexpected delete status: %d", recorder.Code)
	}
	if recorder := env.do(t, http.MethodGet, "/api/tab/"+id, nil, ""); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected deleted tab to be gone, got %d", recorder.Code)
	}
	if recorder := env.do(t, http.MethodDelete, "/api/tab/"+id, nil, ""); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected second delete to 404, got %d", recorder.Code)
	}
}

func TestReplaceTabSwapsFileAndMetadata(t *testing.T) {
	env := newTestEnv(t, validSession())
	id := createTestTab(t, env, "Song")

	body, contentType := multipartUpload(t, "revised.gpx", []byte("new-bytes"), nil)
	if recorder := env.do(t, http.MethodPost, "/api/tab/"+id+"/replace", body, contentType); recorder.Code != http.StatusOK {
		t.Fatalf("unexpected replace status: %d %s", recorder.Code, recorder.Body.String())
	}

	read := env.do(t, http.MethodGet, "/api/tab/"+id, nil, "")
	tab := decodeJSONBody(t, read)["tab"].(map[string]any)
	if tab["filename"] != "tab.gpx" || tab["originalFilename"] != "revised.gpx" {
		t.Fatalf("unexpected metadata after replace: %v", tab)
	}
}
