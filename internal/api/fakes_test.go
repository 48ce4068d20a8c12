package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"

	"cvforge/internal/api/middleware"
	"cvforge/internal/capability"
	"cvforge/internal/cv"
	"cvforge/internal/document"
	"cvforge/internal/render"
	"cvforge/internal/templates"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func capsFor(tier string) capability.RenderCapabilities {
	return capability.Resolve(capability.SubscriptionState{Tier: tier, Status: capability.StatusActive})
}

type fakeAccounts struct {
	caps  capability.RenderCapabilities
	err   error
	pref  *document.RenderConfig
	saved []document.RenderConfig
}

func (f *fakeAccounts) Capabilities(ctx context.Context, accountID uint) (capability.RenderCapabilities, error) {
	return f.caps, f.err
}

func (f *fakeAccounts) RenderPreference(ctx context.Context, accountID uint, caps capability.RenderCapabilities) (document.RenderConfig, error) {
	if f.pref != nil {
		return *f.pref, nil
	}
	return document.DefaultRenderConfig(caps), nil
}

func (f *fakeAccounts) SaveRenderPreference(ctx context.Context, accountID uint, cfg document.RenderConfig) error {
	f.saved = append(f.saved, cfg)
	return nil
}

type fakeTemplateStore struct {
	list      []templates.CustomTemplate
	active    *templates.CustomTemplate
	usage     templates.Usage
	err       error
	calls     []string
	lastQuota templates.Quota
}

func (f *fakeTemplateStore) List(ctx context.Context, ownerID uint) ([]templates.CustomTemplate, error) {
	return f.list, nil
}

func (f *fakeTemplateStore) Active(ctx context.Context, ownerID uint) (templates.CustomTemplate, error) {
	if f.active == nil {
		return templates.CustomTemplate{}, templates.ErrNotFound
	}
	return *f.active, nil
}

func (f *fakeTemplateStore) Activate(ctx context.Context, ownerID uint, quota templates.Quota, templateID string) error {
	f.calls = append(f.calls, "activate:"+templateID)
	f.lastQuota = quota
	return f.err
}

func (f *fakeTemplateStore) Deactivate(ctx context.Context, ownerID uint, templateID string) error {
	f.calls = append(f.calls, "deactivate:"+templateID)
	return f.err
}

func (f *fakeTemplateStore) Delete(ctx context.Context, ownerID uint, templateID string) error {
	f.calls = append(f.calls, "delete:"+templateID)
	return f.err
}

func (f *fakeTemplateStore) Usage(ctx context.Context, ownerID uint) (templates.Usage, error) {
	return f.usage, nil
}

type fakeQueue struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func (f *fakeQueue) payload(t *testing.T, v any) {
	t.Helper()
	if len(f.tasks) != 1 {
		t.Fatalf("expected exactly one enqueued task, got %d", len(f.tasks))
	}
	if err := json.Unmarshal(f.tasks[0].Payload(), v); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
}

type fakeCanceler struct {
	deleteErr error
	deleted   []string
	canceled  []string
}

func (f *fakeCanceler) DeleteTask(queue, id string) error {
	f.deleted = append(f.deleted, queue+"/"+id)
	return f.deleteErr
}

func (f *fakeCanceler) CancelProcessing(id string) error {
	f.canceled = append(f.canceled, id)
	return nil
}

type fakeUploader struct {
	uploaded map[string][]byte
	types    map[string]string
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{uploaded: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeUploader) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, contentType string) (*minio.UploadInfo, error) {
	b, _ := io.ReadAll(reader)
	f.uploaded[objectName] = b
	f.types[objectName] = contentType
	return &minio.UploadInfo{Key: objectName}, nil
}

type fakeScanner struct {
	err     error
	scanned int
}

func (f *fakeScanner) Scan(r io.Reader) error {
	f.scanned++
	_, _ = io.Copy(io.Discard, r)
	return f.err
}

type fakeCounter struct {
	counts  map[string]int64
	expires map[string]time.Duration
}

func (f *fakeCounter) add(ctx context.Context, key string, delta int64) *redis.IntCmd {
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[key] += delta
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(f.counts[key])
	return cmd
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	return f.add(ctx, key, 1)
}

func (f *fakeCounter) Decr(ctx context.Context, key string) *redis.IntCmd {
	return f.add(ctx, key, -1)
}

func (f *fakeCounter) ExpireNX(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	if f.expires == nil {
		f.expires = map[string]time.Duration{}
	}
	cmd := redis.NewBoolCmd(ctx)
	if _, ok := f.expires[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	f.expires[key] = expiration
	cmd.SetVal(true)
	return cmd
}

type fakePreviewer struct {
	result   render.Result
	err      error
	requests []render.Request
}

func (f *fakePreviewer) Preview(ctx context.Context, req render.Request) (render.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return render.Result{State: render.StateFailed}, f.err
	}
	res := f.result
	res.TemplateID = req.Config.TemplateID
	return res, nil
}

type fakeLinks struct {
	existing map[string]bool
}

func (f fakeLinks) ObjectExists(ctx context.Context, objectKey string) (bool, error) {
	return f.existing[objectKey], nil
}

func (f fakeLinks) GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration, filename string) (string, error) {
	return "https://files.example.invalid/" + objectKey, nil
}

type fakeRecords struct {
	record cv.Record
	saved  []cv.Record
}

func (f *fakeRecords) Fetch(ctx context.Context, accountID uint) (cv.Record, error) {
	r := f.record
	r.ProfileURL = "https://cv.example.invalid/1"
	return r, nil
}

func (f *fakeRecords) Save(ctx context.Context, accountID uint, record cv.Record) error {
	f.saved = append(f.saved, record)
	return nil
}

// serve 通过真实路由执行处理器，userID 为 0 表示未认证。
func serve(method, route, target string, userID uint, handler gin.HandlerFunc, body io.Reader, contentType string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Handle(method, route, func(c *gin.Context) {
		if userID != 0 {
			c.Set(middleware.UserIDKey, userID)
		}
		c.Next()
	}, handler)

	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(data)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected %d got %d body=%s", status, w.Code, w.Body.String())
	}
}

func expectCode(t *testing.T, w *httptest.ResponseRecorder, code int) {
	t.Helper()
	body := decodeBody(t, w)
	got, _ := body["code"].(float64)
	if int(got) != code {
		t.Fatalf("expected error code %d got %v body=%s", code, body["code"], w.Body.String())
	}
}

func newMultipartUpload(t *testing.T, field, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if content != nil {
		part, err := writer.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}
