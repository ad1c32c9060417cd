package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeAvatarStore struct {
	name        string
	contentType string
	data        []byte
	err         error
}

func (f *fakeAvatarStore) Save(_ context.Context, name, contentType string, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.name = name
	f.contentType = contentType
	f.data = data
	return "https://cdn.example.com/" + name, nil
}

func TestAvatarUpload(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp("Wave", "hunter2hunter2")

	store := &fakeAvatarStore{}
	handler := AvatarHandler{Sessions: env.sessions, Accounts: env.accounts, Storage: store}

	payload := []byte{0x89, 'P', 'N', 'G'}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/avatar", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "image/png")
	rec := httptest.NewRecorder()

	handler.Upload(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("upload returned %d: %s", rec.Code, rec.Body.String())
	}
	if store.contentType != "image/png" {
		t.Fatalf("unexpected content type %q", store.contentType)
	}
	if !bytes.Equal(store.data, payload) {
		t.Fatal("stored payload does not match the upload")
	}

	account, err := env.accounts.FindByScreenName(t.Context(), "wave")
	if err != nil {
		t.Fatalf("account lookup failed: %v", err)
	}
	if account.AvatarURL != "https://cdn.example.com/"+store.name {
		t.Fatalf("avatar url not recorded, got %q", account.AvatarURL)
	}
}

func TestAvatarUploadRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp("Wave", "hunter2hunter2")

	handler := AvatarHandler{Sessions: env.sessions, Accounts: env.accounts, Storage: &fakeAvatarStore{}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/avatar", bytes.NewReader([]byte("plain text")))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()

	handler.Upload(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}
}

func TestAvatarUploadWithoutStorage(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp("Wave", "hunter2hunter2")

	handler := AvatarHandler{Sessions: env.sessions, Accounts: env.accounts}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/avatar", bytes.NewReader([]byte{1}))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "image/png")
	rec := httptest.NewRecorder()

	handler.Upload(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a configured bucket, got %d", rec.Code)
	}
}

func TestAvatarUploadRequiresSession(t *testing.T) {
	env := newTestEnv(t)

	handler := AvatarHandler{Sessions: env.sessions, Accounts: env.accounts, Storage: &fakeAvatarStore{}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/avatar", bytes.NewReader([]byte{1}))
	req.Header.Set("Content-Type", "image/png")
	rec := httptest.NewRecorder()

	handler.Upload(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
