package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"cvforge/internal/render"
)

// ErrEmptyDocument 表示导出定义没有任何内容。
var ErrEmptyDocument = errors.New("document definition has no content")

// Backend 把 HTML 打印为 PDF。
type Backend interface {
	Print(ctx context.Context, htmlContent string, setup PageSetup) ([]byte, error)
}

// Exporter 把导出定义交给后端生成 PDF。
type Exporter struct {
	backend Backend
}

// NewExporter 构造 Exporter。
func NewExporter(backend Backend) *Exporter {
	return &Exporter{backend: backend}
}

// Export 生成 PDF 字节。
func (e *Exporter) Export(ctx context.Context, def render.DocumentDefinition) ([]byte, error) {
	if len(def.Content) == 0 {
		return nil, ErrEmptyDocument
	}
	return e.backend.Print(ctx, HTML(def), Setup(def))
}

// RodBackend 使用 go-rod 在无头浏览器中渲染 HTML。每次调用都启动独立的浏览器进程。
type RodBackend struct {
	Timeout time.Duration
}

// NewRodBackend 构造 RodBackend。
func NewRodBackend(timeout time.Duration) *RodBackend {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RodBackend{Timeout: timeout}
}

// Print 实现 Backend。ctx 取消会中断浏览器操作。
func (r *RodBackend) Print(ctx context.Context, htmlContent string, setup PageSetup) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	launch := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(true)

	if path, ok := launcher.LookPath(); ok {
		launch = launch.Bin(path)
	}

	browserURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	defer launch.Cleanup()

	browser := rod.New().ControlURL(browserURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	defer func() {
		_ = browser.Close()
	}()

	page, err := browser.Timeout(r.Timeout).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() {
		_ = page.Close()
	}()

	page = page.Timeout(r.Timeout)
	if err := page.SetDocumentContent(htmlContent); err != nil {
		return nil, fmt.Errorf("set document content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	if err := (proto.EmulationSetEmulatedMedia{Media: "print"}).Call(page); err != nil {
		return nil, fmt.Errorf("set emulated media to print: %w", err)
	}

	reader, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground: true,
		PaperWidth:      float64Ptr(setup.Width),
		PaperHeight:     float64Ptr(setup.Height),
		MarginTop:       float64Ptr(setup.MarginTop),
		MarginRight:     float64Ptr(setup.MarginRight),
		MarginBottom:    float64Ptr(setup.MarginBottom),
		MarginLeft:      float64Ptr(setup.MarginLeft),
	})
	if err != nil {
		return nil, fmt.Errorf("export pdf: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf bytes: %w", err)
	}
	return data, nil
}

func float64Ptr(value float64) *float64 {
	return &value
}
