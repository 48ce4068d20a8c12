package api

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"cvforge/internal/errcode"
	"cvforge/internal/storage"
	"cvforge/internal/tasks"
	"cvforge/internal/templates"
)

type templateFixture struct {
	accounts *fakeAccounts
	store    *fakeTemplateStore
	queue    *fakeQueue
	canceler *fakeCanceler
	uploader *fakeUploader
	scanner  *fakeScanner
	counter  *fakeCounter
	handler  *TemplateHandler
}

func newTemplateFixture(tier string) *templateFixture {
	f := &templateFixture{
		accounts: &fakeAccounts{caps: capsFor(tier)},
		store:    &fakeTemplateStore{},
		queue:    &fakeQueue{},
		canceler: &fakeCanceler{},
		uploader: newFakeUploader(),
		scanner:  &fakeScanner{},
		counter:  &fakeCounter{},
	}
	f.handler = NewTemplateHandler(f.accounts, f.store, f.queue, f.canceler, f.uploader, f.scanner, f.counter, 90*time.Second)
	f.handler.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	return f
}

func TestListTemplates_FreePlan(t *testing.T) {
	f := newTemplateFixture("free")
	w := serve(http.MethodGet, "/v1/templates", "/v1/templates", 1, f.handler.ListTemplates, nil, "")
	expectStatus(t, w, http.StatusOK)

	body := decodeBody(t, w)
	builtIns, _ := body["built_in"].([]any)
	if len(builtIns) != 3 {
		t.Fatalf("expected 3 built-ins, got %d", len(builtIns))
	}
	allowed := map[string]bool{}
	for _, item := range builtIns {
		m := item.(map[string]any)
		allowed[m["id"].(string)] = m["allowed"].(bool)
	}
	if !allowed["minimal"] || allowed["classic"] || allowed["modern"] {
		t.Fatalf("unexpected allowed flags %v", allowed)
	}
	if body["custom_enabled"] != false {
		t.Fatalf("free plan must not enable custom templates")
	}
}

func TestListTemplates_Unauthenticated(t *testing.T) {
	f := newTemplateFixture("pro")
	w := serve(http.MethodGet, "/v1/templates", "/v1/templates", 0, f.handler.ListTemplates, nil, "")
	expectStatus(t, w, http.StatusUnauthorized)
}

func TestTemplateMutations(t *testing.T) {
	cases := []struct {
		name   string
		target string
		err    error
		status int
		call   string
	}{
		{"activate", "/v1/templates/tpl-1/activate", nil, http.StatusNoContent, "activate:tpl-1"},
		{"activate addressed id", "/v1/templates/custom:tpl-1/activate", nil, http.StatusNoContent, "activate:tpl-1"},
		{"activate after downgrade", "/v1/templates/tpl-9/activate", templates.ErrTemplateNotAllowed, http.StatusForbidden, "activate:tpl-9"},
		{"activate foreign", "/v1/templates/tpl-2/activate", templates.ErrNotFound, http.StatusNotFound, "activate:tpl-2"},
		{"activate built-in", "/v1/templates/classic/activate", nil, http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newTemplateFixture("pro")
			f.store.err = tc.err
			w := serve(http.MethodPost, "/v1/templates/:id/activate", tc.target, 1, f.handler.ActivateTemplate, nil, "")
			expectStatus(t, w, tc.status)
			if tc.call == "" {
				if len(f.store.calls) != 0 {
					t.Fatalf("store should not be called, got %v", f.store.calls)
				}
				return
			}
			if len(f.store.calls) != 1 || f.store.calls[0] != tc.call {
				t.Fatalf("unexpected store calls %v", f.store.calls)
			}
			if f.store.lastQuota != capsFor("pro").Quota() {
				t.Fatalf("activation must use the live quota, got %+v", f.store.lastQuota)
			}
		})
	}
}

func TestActivate_NotAllowedMessage(t *testing.T) {
	f := newTemplateFixture("pro")
	f.store.err = templates.ErrTemplateNotAllowed
	w := serve(http.MethodPost, "/v1/templates/:id/activate", "/v1/templates/tpl-1/activate", 1, f.handler.ActivateTemplate, nil, "")
	expectStatus(t, w, http.StatusForbidden)
	body := decodeBody(t, w)
	if body["error"] != msgTemplateNotAllowed {
		t.Fatalf("unexpected message %v", body["error"])
	}
}

func TestDeactivateAndDelete(t *testing.T) {
	f := newTemplateFixture("pro")
	w := serve(http.MethodPost, "/v1/templates/:id/deactivate", "/v1/templates/tpl-1/deactivate", 1, f.handler.DeactivateTemplate, nil, "")
	expectStatus(t, w, http.StatusNoContent)
	w = serve(http.MethodDelete, "/v1/templates/:id", "/v1/templates/tpl-1", 1, f.handler.DeleteTemplate, nil, "")
	expectStatus(t, w, http.StatusNoContent)
	if strings.Join(f.store.calls, ",") != "deactivate:tpl-1,delete:tpl-1" {
		t.Fatalf("unexpected calls %v", f.store.calls)
	}
}

func TestGenerateTemplate_FreePlanRejected(t *testing.T) {
	f := newTemplateFixture("free")
	w := serve(http.MethodPost, "/v1/templates/generate", "/v1/templates/generate", 1, f.handler.GenerateTemplate,
		jsonBody(t, map[string]string{"brief": "two column, teal accents"}), "application/json")
	expectStatus(t, w, http.StatusForbidden)
	expectCode(t, w, errcode.TemplateNotAllowed)
	if len(f.queue.tasks) != 0 {
		t.Fatalf("nothing should be enqueued")
	}
}

func TestGenerateTemplate_MissingReference(t *testing.T) {
	f := newTemplateFixture("pro")
	w := serve(http.MethodPost, "/v1/templates/generate", "/v1/templates/generate", 1, f.handler.GenerateTemplate,
		jsonBody(t, map[string]string{"name": "Empty"}), "application/json")
	expectStatus(t, w, http.StatusBadRequest)
	expectCode(t, w, errcode.InvalidRequest)
	if len(f.counter.counts) != 0 {
		t.Fatalf("invalid requests must not consume the daily limit")
	}
}

func TestGenerateTemplate_Enqueues(t *testing.T) {
	f := newTemplateFixture("pro")
	w := serve(http.MethodPost, "/v1/templates/generate", "/v1/templates/generate", 7, f.handler.GenerateTemplate,
		jsonBody(t, map[string]string{
			"name":          "Teal",
			"brief":         "two column, teal accents",
			"reference_url": "https://example.com/cv",
		}), "application/json")
	expectStatus(t, w, http.StatusAccepted)

	var payload tasks.TemplateGeneratePayload
	f.queue.payload(t, &payload)
	if f.queue.tasks[0].Type() != tasks.TypeTemplateGenerate {
		t.Fatalf("unexpected task type %s", f.queue.tasks[0].Type())
	}
	if payload.OwnerID != 7 || payload.Name != "Teal" || payload.Brief != "two column, teal accents" || payload.ReferenceURL != "https://example.com/cv" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.ReferenceImageKey != "" {
		t.Fatalf("no reference image was sent")
	}
}

func TestGenerateTemplate_DailyLimit(t *testing.T) {
	f := newTemplateFixture("pro")
	limit := capsFor("pro").MaxGenerationsPerDay
	for i := 0; i < limit; i++ {
		w := serve(http.MethodPost, "/v1/templates/generate", "/v1/templates/generate", 1, f.handler.GenerateTemplate,
			jsonBody(t, map[string]string{"brief": "minimal"}), "application/json")
		expectStatus(t, w, http.StatusAccepted)
	}
	w := serve(http.MethodPost, "/v1/templates/generate", "/v1/templates/generate", 1, f.handler.GenerateTemplate,
		jsonBody(t, map[string]string{"brief": "minimal"}), "application/json")
	expectStatus(t, w, http.StatusTooManyRequests)
	if len(f.queue.tasks) != limit {
		t.Fatalf("expected %d tasks, got %d", limit, len(f.queue.tasks))
	}
	if got := f.counter.counts["gen_quota:1:20240501"]; got != int64(limit) {
		t.Fatalf("rejected request should not consume quota, counter=%d", got)
	}
	if ttl := f.counter.expires["gen_quota:1:20240501"]; ttl != 24*time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestGenerateTemplate_EnqueueFailureReleasesQuota(t *testing.T) {
	f := newTemplateFixture("pro")
	f.queue.err = errors.New("redis down")
	w := serve(http.MethodPost, "/v1/templates/generate", "/v1/templates/generate", 1, f.handler.GenerateTemplate,
		jsonBody(t, map[string]string{"brief": "minimal"}), "application/json")
	expectStatus(t, w, http.StatusInternalServerError)
	if got := f.counter.counts["gen_quota:1:20240501"]; got != 0 {
		t.Fatalf("failed enqueue should give the quota back, counter=%d", got)
	}
}

func TestGenerateTemplate_ReferenceImage(t *testing.T) {
	f := newTemplateFixture("pro")
	body, contentType := newMultipartUpload(t, "reference", "ref.png", pngHeader, map[string]string{"name": "From image"})
	w := serve(http.MethodPost, "/v1/templates/generate", "/v1/templates/generate", 3, f.handler.GenerateTemplate, body, contentType)
	expectStatus(t, w, http.StatusAccepted)

	var payload tasks.TemplateGeneratePayload
	f.queue.payload(t, &payload)
	if !storage.ValidReferenceImageKey(3, payload.ReferenceImageKey) {
		t.Fatalf("unexpected reference key %q", payload.ReferenceImageKey)
	}
	if payload.ReferenceImageType != "image/png" {
		t.Fatalf("unexpected reference type %q", payload.ReferenceImageType)
	}
	if _, ok := f.uploader.uploaded[payload.ReferenceImageKey]; !ok {
		t.Fatalf("reference image was not uploaded")
	}
	if f.scanner.scanned != 1 {
		t.Fatalf("reference image must be scanned")
	}
}

func TestGenerateTemplate_MaliciousReference(t *testing.T) {
	f := newTemplateFixture("pro")
	f.scanner.err = ErrMaliciousFile
	body, contentType := newMultipartUpload(t, "reference", "ref.png", pngHeader, nil)
	w := serve(http.MethodPost, "/v1/templates/generate", "/v1/templates/generate", 3, f.handler.GenerateTemplate, body, contentType)
	expectStatus(t, w, http.StatusBadRequest)
	if len(f.uploader.uploaded) != 0 || len(f.queue.tasks) != 0 {
		t.Fatalf("malicious reference must not be stored or enqueued")
	}
}

func TestGenerateTemplate_UnsupportedReferenceType(t *testing.T) {
	f := newTemplateFixture("pro")
	body, contentType := newMultipartUpload(t, "reference", "ref.png", []byte("plain text pretending to be png"), nil)
	w := serve(http.MethodPost, "/v1/templates/generate", "/v1/templates/generate", 3, f.handler.GenerateTemplate, body, contentType)
	expectStatus(t, w, http.StatusBadRequest)
	expectCode(t, w, errcode.InvalidRequest)
}

func TestCancelGeneration(t *testing.T) {
	t.Run("foreign task", func(t *testing.T) {
		f := newTemplateFixture("pro")
		w := serve(http.MethodDelete, "/v1/templates/generate/:taskID", "/v1/templates/generate/gen-2-abc", 1, f.handler.CancelGeneration, nil, "")
		expectStatus(t, w, http.StatusNotFound)
		if len(f.canceler.deleted)+len(f.canceler.canceled) != 0 {
			t.Fatalf("foreign tasks must not be touched")
		}
	})

	t.Run("pending task", func(t *testing.T) {
		f := newTemplateFixture("pro")
		w := serve(http.MethodDelete, "/v1/templates/generate/:taskID", "/v1/templates/generate/gen-1-abc", 1, f.handler.CancelGeneration, nil, "")
		expectStatus(t, w, http.StatusNoContent)
		if len(f.canceler.deleted) != 1 || f.canceler.deleted[0] != tasks.QueueGenerate+"/gen-1-abc" {
			t.Fatalf("unexpected deletes %v", f.canceler.deleted)
		}
	})

	t.Run("running task", func(t *testing.T) {
		f := newTemplateFixture("pro")
		f.canceler.deleteErr = errors.New("cannot delete task in active state")
		w := serve(http.MethodDelete, "/v1/templates/generate/:taskID", "/v1/templates/generate/gen-1-abc", 1, f.handler.CancelGeneration, nil, "")
		expectStatus(t, w, http.StatusAccepted)
		if len(f.canceler.canceled) != 1 || f.canceler.canceled[0] != "gen-1-abc" {
			t.Fatalf("running task should receive a cancel signal, got %v", f.canceler.canceled)
		}
	})
}

func TestGetCapabilities(t *testing.T) {
	f := newTemplateFixture("pro")
	f.store.usage = templates.Usage{Count: 2, TotalBytes: 4096}
	w := serve(http.MethodGet, "/v1/capabilities", "/v1/capabilities", 1, f.handler.GetCapabilities, nil, "")
	expectStatus(t, w, http.StatusOK)
	body := decodeBody(t, w)
	if body["fallback"] != "minimal" || body["custom_enabled"] != true {
		t.Fatalf("unexpected body %v", body)
	}
	usage := body["template_usage"].(map[string]any)
	if usage["count"].(float64) != 2 {
		t.Fatalf("unexpected usage %v", usage)
	}
}
