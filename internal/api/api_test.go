package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/starford/permitflow/internal/models"
	"github.com/starford/permitflow/internal/testutil"
)

func testEnv(t *testing.T) http.Handler {
	t.Helper()
	return NewRouter(testutil.TestService(t), nil)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func createApp(t *testing.T, h http.Handler, name string) ApplicationView {
	t.Helper()
	w := doJSON(t, h, http.MethodPost, "/applications", map[string]string{"applicationName": name})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var view struct {
		models.Application
		CompletedSteps int `json:"completedSteps"`
		Progress       int `json:"progress"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return ApplicationView{Application: &view.Application, CompletedSteps: view.CompletedSteps, Progress: view.Progress}
}

func getApp(t *testing.T, h http.Handler, id string) *models.Application {
	t.Helper()
	w := doJSON(t, h, http.MethodGet, "/applications/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", w.Code, w.Body.String())
	}
	var app models.Application
	if err := json.Unmarshal(w.Body.Bytes(), &app); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return &app
}

func TestCreateAndGetApplication(t *testing.T) {
	router := testEnv(t)

	created := createApp(t, router, "  North Ridge Quarry  ")
	if created.ApplicationName != "North Ridge Quarry" {
		t.Errorf("name = %q, want trimmed", created.ApplicationName)
	}
	if len(created.ProcessSteps) != 12 {
		t.Fatalf("steps = %d, want 12", len(created.ProcessSteps))
	}
	if created.Progress != 0 || created.CompletedSteps != 0 {
		t.Errorf("progress = %d/%d, want 0/0", created.CompletedSteps, created.Progress)
	}

	got := getApp(t, router, created.ID)
	for i, s := range got.ProcessSteps {
		if s.StepNumber != i+1 || s.StepTitle != models.Template[i].StepTitle {
			t.Errorf("step %d = (%d, %q)", i, s.StepNumber, s.StepTitle)
		}
		if s.Status != models.StatusNotStarted {
			t.Errorf("step %d status = %q", s.StepNumber, s.Status)
		}
		if s.Documents == nil || len(s.Documents) != 0 {
			t.Errorf("step %d documents = %v, want empty array", s.StepNumber, s.Documents)
		}
	}
}

func TestCreateWireFormat(t *testing.T) {
	router := testEnv(t)

	w := doJSON(t, router, http.MethodPost, "/applications", map[string]string{"applicationName": "Wire"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	var raw map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"_id", "applicationName", "createdAt", "processSteps", "completedSteps", "progress"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q in %s", key, w.Body.String())
		}
	}
	step := raw["processSteps"].([]any)[0].(map[string]any)
	if docs, ok := step["documents"].([]any); !ok || len(docs) != 0 {
		t.Errorf("documents = %#v, want []", step["documents"])
	}
	if step["notes"] != "" {
		t.Errorf("notes = %#v, want empty string", step["notes"])
	}
}

func TestCreateValidation(t *testing.T) {
	router := testEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty name", `{"applicationName":""}`, http.StatusBadRequest},
		{"blank name", `{"applicationName":"   "}`, http.StatusBadRequest},
		{"missing name", `{}`, http.StatusBadRequest},
		{"too long", `{"applicationName":"` + strings.Repeat("q", 201) + `"}`, http.StatusBadRequest},
		{"invalid json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/applications", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	w := doJSON(t, router, http.MethodGet, "/applications", nil)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("list after failed creates = %s, want []", w.Body.String())
	}
}

func TestValidationFieldsInBody(t *testing.T) {
	router := testEnv(t)

	w := doJSON(t, router, http.MethodPost, "/applications", map[string]string{"applicationName": ""})
	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "validation failed" {
		t.Errorf("error = %q", body.Error)
	}
	if body.Fields["applicationName"] == "" {
		t.Errorf("fields = %v, want applicationName entry", body.Fields)
	}
}

func TestListApplications(t *testing.T) {
	router := testEnv(t)

	w := doJSON(t, router, http.MethodGet, "/applications", nil)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("empty list = %d %s", w.Code, w.Body.String())
	}

	a := createApp(t, router, "Alpha Granite")
	b := createApp(t, router, "Beta Sandstone")
	c := createApp(t, router, "Gamma granite works")

	w = doJSON(t, router, http.MethodGet, "/applications", nil)
	var all []models.Application
	_ = json.Unmarshal(w.Body.Bytes(), &all)
	if len(all) != 3 || all[0].ID != a.ID || all[1].ID != b.ID || all[2].ID != c.ID {
		t.Fatalf("list order = %v", all)
	}

	w = doJSON(t, router, http.MethodGet, "/applications?q=GRANITE", nil)
	var filtered []models.Application
	_ = json.Unmarshal(w.Body.Bytes(), &filtered)
	if len(filtered) != 2 || filtered[0].ID != a.ID || filtered[1].ID != c.ID {
		t.Errorf("filtered = %v", filtered)
	}
}

func TestGetApplicationErrors(t *testing.T) {
	router := testEnv(t)

	w := doJSON(t, router, http.MethodGet, "/applications/not-an-id", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed id = %d, want 400", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/applications/65f1c2a9b3e4d5f6a7b8c9d0", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id = %d, want 404", w.Code)
	}
}

func TestUpdateStepStatus(t *testing.T) {
	router := testEnv(t)
	app := createApp(t, router, "Status")

	w := doJSON(t, router, http.MethodPut, "/applications/"+app.ID,
		map[string]any{"stepNumber": 3, "newStatus": "In Progress"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var msg MessageResponse
	_ = json.Unmarshal(w.Body.Bytes(), &msg)
	if msg.Message != "Status updated successfully" {
		t.Errorf("message = %q", msg.Message)
	}

	got := getApp(t, router, app.ID)
	for _, s := range got.ProcessSteps {
		want := models.StatusNotStarted
		if s.StepNumber == 3 {
			want = models.StatusInProgress
		}
		if s.Status != want {
			t.Errorf("step %d = %q, want %q", s.StepNumber, s.Status, want)
		}
	}

	// Idempotent, and backwards transitions are allowed.
	for _, status := range []string{"In Progress", "Completed", "Not Started"} {
		w = doJSON(t, router, http.MethodPut, "/applications/"+app.ID,
			map[string]any{"stepNumber": 3, "newStatus": status})
		if w.Code != http.StatusOK {
			t.Errorf("set %q = %d", status, w.Code)
		}
	}
	if s := getApp(t, router, app.ID).Step(3); s.Status != models.StatusNotStarted {
		t.Errorf("final status = %q", s.Status)
	}
}

func TestUpdateStepStatusErrors(t *testing.T) {
	router := testEnv(t)
	app := createApp(t, router, "Errors")

	tests := []struct {
		name string
		id   string
		body map[string]any
		want int
	}{
		{"unknown status", app.ID, map[string]any{"stepNumber": 1, "newStatus": "Done"}, http.StatusBadRequest},
		{"missing status", app.ID, map[string]any{"stepNumber": 1}, http.StatusBadRequest},
		{"missing step", app.ID, map[string]any{"newStatus": "Completed"}, http.StatusBadRequest},
		{"malformed id", "xyz", map[string]any{"stepNumber": 1, "newStatus": "Completed"}, http.StatusBadRequest},
		{"step out of range", app.ID, map[string]any{"stepNumber": 13, "newStatus": "Completed"}, http.StatusNotFound},
		{"negative step", app.ID, map[string]any{"stepNumber": -1, "newStatus": "Completed"}, http.StatusNotFound},
		{"unknown id", "65f1c2a9b3e4d5f6a7b8c9d0", map[string]any{"stepNumber": 1, "newStatus": "Completed"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPut, "/applications/"+tt.id, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
			if tt.want == http.StatusNotFound && !strings.Contains(w.Body.String(), "Application or step not found") {
				t.Errorf("body = %s", w.Body.String())
			}
		})
	}

	for _, s := range getApp(t, router, app.ID).ProcessSteps {
		if s.Status != models.StatusNotStarted {
			t.Errorf("step %d changed to %q by a failed request", s.StepNumber, s.Status)
		}
	}
}

func TestAppendDocument(t *testing.T) {
	router := testEnv(t)
	app := createApp(t, router, "Docs")

	for _, name := range []string{"aadhaar.pdf", "aadhaar.pdf"} {
		w := doJSON(t, router, http.MethodPut, "/applications/"+app.ID+"/documents",
			map[string]any{"stepNumber": 1, "fileName": name})
		if w.Code != http.StatusOK {
			t.Fatalf("append = %d, body = %s", w.Code, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), "Document added successfully") {
			t.Errorf("body = %s", w.Body.String())
		}
	}

	step := getApp(t, router, app.ID).Step(1)
	if len(step.Documents) != 2 {
		t.Fatalf("documents = %v, want two duplicates", step.Documents)
	}
	if step.Status != models.StatusNotStarted {
		t.Errorf("status = %q, append must not change it", step.Status)
	}

	w := doJSON(t, router, http.MethodPut, "/applications/"+app.ID+"/documents",
		map[string]any{"stepNumber": 1, "fileName": "  "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank file name = %d, want 400", w.Code)
	}
	w = doJSON(t, router, http.MethodPut, "/applications/"+app.ID+"/documents",
		map[string]any{"stepNumber": 99, "fileName": "x.pdf"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown step = %d, want 404", w.Code)
	}
}

func TestProgressInView(t *testing.T) {
	router := testEnv(t)
	app := createApp(t, router, "Progress")

	for _, step := range []int{1, 2, 3, 4} {
		doJSON(t, router, http.MethodPut, "/applications/"+app.ID,
			map[string]any{"stepNumber": step, "newStatus": "Completed"})
	}
	w := doJSON(t, router, http.MethodGet, "/applications/"+app.ID, nil)
	var view struct {
		CompletedSteps int `json:"completedSteps"`
		Progress       int `json:"progress"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &view)
	if view.CompletedSteps != 4 || view.Progress != 33 {
		t.Errorf("progress = %d steps, %d%%, want 4, 33%%", view.CompletedSteps, view.Progress)
	}
}

func TestConcurrentDisjointUpdates(t *testing.T) {
	router := testEnv(t)
	app := createApp(t, router, "Concurrent")

	var wg sync.WaitGroup
	for step := 1; step <= 12; step++ {
		wg.Add(2)
		go func(step int) {
			defer wg.Done()
			doJSON(t, router, http.MethodPut, "/applications/"+app.ID,
				map[string]any{"stepNumber": step, "newStatus": "Completed"})
		}(step)
		go func(step int) {
			defer wg.Done()
			doJSON(t, router, http.MethodPut, "/applications/"+app.ID+"/documents",
				map[string]any{"stepNumber": step, "fileName": "f.pdf"})
		}(step)
	}
	wg.Wait()

	for _, s := range getApp(t, router, app.ID).ProcessSteps {
		if s.Status != models.StatusCompleted || len(s.Documents) != 1 {
			t.Errorf("step %d = %q with %d docs", s.StepNumber, s.Status, len(s.Documents))
		}
	}
}

func TestStepTemplate(t *testing.T) {
	router := testEnv(t)

	w := doJSON(t, router, http.MethodGet, "/steps/template", nil)
	var tpl []models.StepTemplate
	if err := json.Unmarshal(w.Body.Bytes(), &tpl); err != nil {
		t.Fatal(err)
	}
	if len(tpl) != 12 || tpl[11].StepTitle != "Permit Issued (upload)" {
		t.Errorf("template = %v", tpl)
	}
}

func TestEventsMounted(t *testing.T) {
	called := false
	sse := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	router := NewRouter(testutil.TestService(t), sse)

	doJSON(t, router, http.MethodGet, "/events", nil)
	if !called {
		t.Error("sse handler not mounted at /events")
	}
}

func TestGetApplicationETag(t *testing.T) {
	router := testEnv(t)
	app := createApp(t, router, "Cached")

	w := doJSON(t, router, http.MethodGet, "/applications/"+app.ID, nil)
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	req := httptest.NewRequest(http.MethodGet, "/applications/"+app.ID, nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional get = %d, want 304", w.Code)
	}

	doJSON(t, router, http.MethodPut, "/applications/"+app.ID,
		map[string]any{"stepNumber": 1, "newStatus": "Completed"})

	req = httptest.NewRequest(http.MethodGet, "/applications/"+app.ID, nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("get after update = %d, want 200", w.Code)
	}
	if w.Header().Get("ETag") == etag {
		t.Error("ETag unchanged after update")
	}
}
