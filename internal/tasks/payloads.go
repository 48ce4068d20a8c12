package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"cvforge/internal/document"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeTemplateGenerate = "template:generate"
	TypeDocumentExport   = "document:export"
)

// 队列名称。
const (
	QueueGenerate = "generate"
	QueueExport   = "export"
)

// TemplateGeneratePayload 描述一次 AI 模板生成。参考图先上传到对象存储，任务中只传键。
type TemplateGeneratePayload struct {
	OwnerID            uint   `json:"owner_id"`
	CorrelationID      string `json:"correlation_id"`
	Name               string `json:"name"`
	Description        string `json:"description,omitempty"`
	Brief              string `json:"brief,omitempty"`
	ReferenceURL       string `json:"reference_url,omitempty"`
	ReferenceImageKey  string `json:"reference_image_key,omitempty"`
	ReferenceImageType string `json:"reference_image_type,omitempty"`
	LayoutHint         string `json:"layout_hint,omitempty"`
	ColorHint          string `json:"color_hint,omitempty"`
}

// DocumentExportPayload 描述一次 PDF 导出。
type DocumentExportPayload struct {
	OwnerID       uint                  `json:"owner_id"`
	CorrelationID string                `json:"correlation_id"`
	ExportID      string                `json:"export_id"`
	Config        document.RenderConfig `json:"config"`
}

// NewTemplateGenerateTask 构造模板生成任务。
func NewTemplateGenerateTask(p TemplateGeneratePayload, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTemplateGenerate, payload, opts...), nil
}

// NewDocumentExportTask 构造导出任务。
func NewDocumentExportTask(p DocumentExportPayload, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDocumentExport, payload, opts...), nil
}
