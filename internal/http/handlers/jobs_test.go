package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/adapter/repo/memory"
	"server/internal/catalog"
	"server/internal/domain"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/infra/credentials"
	"server/internal/ledger"
	"server/internal/provider"
	"server/internal/scheduler"
	"server/internal/storage"
)

type fixture struct {
	server *httptest.Server
	store  *memory.Store
	sched  *scheduler.Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	svc := ledger.NewService(store.Ledger(), zerolog.Nop())

	registry := provider.NewRegistry()
	registry.Register(provider.NewSyntheticGenerator(), true)

	fs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	sched := scheduler.New(scheduler.Config{
		Retry: scheduler.RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond, Retryable: provider.IsTransient},
	}, scheduler.Deps{
		Jobs:      store.Jobs(),
		Tasks:     store.Tasks(),
		Ledger:    svc,
		Providers: registry,
		Catalog:   catalog.Default(),
		Store:     fs,
		Logger:    zerolog.Nop(),
	})
	sched.Open()

	app := &handlers.App{
		Logger:      zerolog.Nop(),
		Scheduler:   sched,
		Ledger:      svc,
		Catalog:     catalog.Default(),
		Providers:   registry,
		Users:       store.Users(),
		Jobs:        store.Jobs(),
		Tasks:       store.Tasks(),
		Store:       fs,
		Credentials: credentials.NewStore(nil),
		FreeCredits: 10,
		AdminToken:  "admin-secret",
	}
	server := httptest.NewServer(httpapi.NewRouter(app, httpapi.Options{AllowedOrigins: []string{"*"}}))
	t.Cleanup(server.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sched.Shutdown(ctx)
	})
	return &fixture{server: server, store: store, sched: sched}
}

func (f *fixture) do(t *testing.T, method, path, userID string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	return resp, buf.Bytes()
}

func (f *fixture) signup(t *testing.T) string {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/v1/users", "", map[string]string{"email": "a@b.c", "name": "Tester"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d: %s", resp.StatusCode, body)
	}
	var out struct {
		ID      string `json:"id"`
		Balance int    `json:"balance"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if out.Balance != 10 {
		t.Fatalf("signup balance = %d, want 10", out.Balance)
	}
	return out.ID
}

func (f *fixture) upload(t *testing.T, userID string) string {
	t.Helper()
	// Smallest valid PNG header so content sniffing accepts it.
	png := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 64)...)
	resp, body := f.do(t, http.MethodPost, "/v1/uploads", userID, png)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Key string `json:"product_image_key"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	return out.Key
}

type jobPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Tasks  []struct {
		ID       string `json:"id"`
		SceneID  string `json:"scene_id"`
		Status   string `json:"status"`
		ImageURL string `json:"image_url"`
	} `json:"tasks"`
}

func (f *fixture) waitTerminal(t *testing.T, userID, jobID string) jobPayload {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, body := f.do(t, http.MethodGet, "/v1/jobs/"+jobID, userID, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get job status = %d: %s", resp.StatusCode, body)
		}
		var job jobPayload
		if err := json.Unmarshal(body, &job); err != nil {
			t.Fatal(err)
		}
		if job.Status != string(domain.JobStatusRunning) {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal status")
	return jobPayload{}
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	userID := f.signup(t)
	imageKey := f.upload(t, userID)

	resp, body := f.do(t, http.MethodPost, "/v1/jobs", userID, map[string]any{
		"product_type":      "food",
		"scenes":            []string{"studio_white", "marble_counter"},
		"style_id":          "elegant",
		"product_image_key": imageKey,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("create job status = %d: %s", resp.StatusCode, body)
	}
	var created jobPayload
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatal(err)
	}
	if len(created.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(created.Tasks))
	}

	job := f.waitTerminal(t, userID, created.ID)
	if job.Status != string(domain.JobStatusSucceeded) {
		t.Fatalf("job status = %s, want succeeded", job.Status)
	}

	// Download one generated image.
	if job.Tasks[0].ImageURL == "" {
		t.Fatal("succeeded task has no image_url")
	}
	resp, data := f.do(t, http.MethodGet, job.Tasks[0].ImageURL, userID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("image status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	if len(data) == 0 {
		t.Fatal("empty image body")
	}

	// Two debits landed in the ledger.
	resp, body = f.do(t, http.MethodGet, "/v1/credits", userID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("balance status = %d", resp.StatusCode)
	}
	var balance struct {
		Balance int `json:"balance"`
	}
	if err := json.Unmarshal(body, &balance); err != nil {
		t.Fatal(err)
	}
	if balance.Balance != 8 {
		t.Fatalf("balance = %d, want 8", balance.Balance)
	}

	resp, body = f.do(t, http.MethodGet, "/v1/credits/history?limit=10", userID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d", resp.StatusCode)
	}
	var history struct {
		Transactions []struct {
			Amount int `json:"amount"`
		} `json:"transactions"`
	}
	if err := json.Unmarshal(body, &history); err != nil {
		t.Fatal(err)
	}
	if len(history.Transactions) != 3 {
		t.Fatalf("transactions = %d, want 3 (grant + 2 debits)", len(history.Transactions))
	}
}

func TestJobValidationErrorsOverHTTP(t *testing.T) {
	f := newFixture(t)
	userID := f.signup(t)
	imageKey := f.upload(t, userID)

	cases := []struct {
		name string
		body map[string]any
		code int
	}{
		{"no scenes", map[string]any{"product_type": "food", "style_id": "elegant", "product_image_key": imageKey}, http.StatusBadRequest},
		{"unknown style", map[string]any{"product_type": "food", "scenes": []string{"studio_white"}, "style_id": "brutalist", "product_image_key": imageKey}, http.StatusUnprocessableEntity},
		{"unknown provider", map[string]any{"product_type": "food", "scenes": []string{"studio_white"}, "style_id": "elegant", "provider": "dalle", "product_image_key": imageKey}, http.StatusBadRequest},
		{"wrong product type", map[string]any{"product_type": "fashion", "scenes": []string{"studio_white"}, "style_id": "elegant", "product_image_key": imageKey}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, "/v1/jobs", userID, tc.body)
			if resp.StatusCode != tc.code {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tc.code, body)
			}
		})
	}
}

func TestInsufficientCreditsOverHTTP(t *testing.T) {
	f := newFixture(t)
	userID := f.signup(t)
	imageKey := f.upload(t, userID)

	// Burn the whole allowance.
	svc := ledger.NewService(f.store.Ledger(), zerolog.Nop())
	if _, err := svc.Debit(context.Background(), userID, 10, "drain", ledger.Ref{}); err != nil {
		t.Fatal(err)
	}

	resp, body := f.do(t, http.MethodPost, "/v1/jobs", userID, map[string]any{
		"product_type":      "food",
		"scenes":            []string{"studio_white"},
		"style_id":          "elegant",
		"product_image_key": imageKey,
	})
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402: %s", resp.StatusCode, body)
	}
}

func TestJobOwnershipIsEnforced(t *testing.T) {
	f := newFixture(t)
	owner := f.signup(t)
	stranger := f.signup(t)
	imageKey := f.upload(t, owner)

	resp, body := f.do(t, http.MethodPost, "/v1/jobs", owner, map[string]any{
		"product_type":      "food",
		"scenes":            []string{"studio_white"},
		"style_id":          "elegant",
		"product_image_key": imageKey,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("create status = %d: %s", resp.StatusCode, body)
	}
	var created jobPayload
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatal(err)
	}

	resp, _ = f.do(t, http.MethodGet, "/v1/jobs/"+created.ID, stranger, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign job read = %d, want 404", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodGet, "/v1/jobs/"+created.ID, "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous job read = %d, want 401", resp.StatusCode)
	}
}

func TestCatalogEndpoints(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/v1/catalog/templates?product_type=food", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("templates status = %d", resp.StatusCode)
	}
	var templates struct {
		Templates []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"templates"`
	}
	if err := json.Unmarshal(body, &templates); err != nil {
		t.Fatal(err)
	}
	if len(templates.Templates) != 5 {
		t.Fatalf("food templates = %d, want 5", len(templates.Templates))
	}
	for _, tpl := range templates.Templates {
		if tpl.ID == "studio_white" && tpl.Name != "Studio White" {
			t.Fatalf("humanized name = %q", tpl.Name)
		}
	}

	resp, body = f.do(t, http.MethodGet, "/v1/catalog/styles", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("styles status = %d", resp.StatusCode)
	}
	var styles struct {
		Styles []struct {
			ID string `json:"id"`
		} `json:"styles"`
	}
	if err := json.Unmarshal(body, &styles); err != nil {
		t.Fatal(err)
	}
	if len(styles.Styles) != 4 {
		t.Fatalf("styles = %d, want 4", len(styles.Styles))
	}
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	f := newFixture(t)

	req, _ := http.NewRequest(http.MethodGet, f.server.URL+"/v1/admin/providers", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("no token status = %d, want 403", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, f.server.URL+"/v1/admin/providers", nil)
	req.Header.Set("Authorization", "Bearer admin-secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", resp.StatusCode)
	}
	var out struct {
		Providers []string `json:"providers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(out.Providers) != "[synthetic]" {
		t.Fatalf("providers = %v", out.Providers)
	}
}
