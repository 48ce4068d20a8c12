package pdf

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"cvforge/internal/render"
)

func sampleDefinition() render.DocumentDefinition {
	return render.DocumentDefinition{
		TemplateID:   "classic",
		PageSize:     "A4",
		PageMargins:  [4]float64{72, 36, 54, 18},
		DefaultStyle: render.TextStyle{Font: "Georgia", FontSize: 10},
		Styles: map[string]render.TextStyle{
			"sectionTitle": {Bold: true, Color: "#333"},
			"name":         {FontSize: 20},
		},
		Content: []render.Node{
			{Kind: render.NodeSection, Section: "profile", Children: []render.Node{
				{Kind: render.NodeHeading, Style: "name", Text: "Ada <Lovelace>"},
				{Kind: render.NodeImage, Image: "data:image/png;base64,AAAA", Width: 80},
				{Kind: render.NodeImage, Width: 80},
			}},
			{Kind: render.NodeSection, Section: "work", PageBreak: "before", Children: []render.Node{
				{Kind: render.NodeHeading, Style: "sectionTitle", Text: "Experience"},
				{Kind: render.NodeGroup, Unbreakable: true, Children: []render.Node{
					{Kind: render.NodeHeading, Style: "entryTitle", Text: "Lead"},
					{Kind: render.NodeList, Items: []string{"a & b"}},
				}},
			}},
		},
	}
}

func TestHTML(t *testing.T) {
	out := HTML(sampleDefinition())

	for _, want := range []string{
		"@page{size:A4;margin:0}",
		`<h1 class="cv-heading s-name">Ada &lt;Lovelace&gt;</h1>`,
		`data-section="work"`,
		"cv-break",
		"cv-group",
		"<li>a &amp; b</li>",
		".s-name{font-size:20pt}",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("html missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, `class="cv-photo"`) != 1 {
		t.Fatalf("image nodes without a source must be skipped")
	}
	if strings.Index(out, ".s-name") > strings.Index(out, ".s-sectionTitle") {
		t.Fatalf("styles must be emitted in a stable order")
	}
	if HTML(sampleDefinition()) != out {
		t.Fatalf("html output must be deterministic")
	}
}

func TestHTMLStylesheetStaysInsideStyleElement(t *testing.T) {
	def := sampleDefinition()
	def.Stylesheet = `.x{content:"</style><script>fetch('http://internal/')</script>"}`
	out := HTML(def)
	if strings.Contains(strings.ToLower(out), "<script") {
		t.Fatalf("stylesheet must not be able to inject elements:\n%s", out)
	}
	if strings.Count(out, "</style>") != 1 {
		t.Fatalf("expected exactly one closing style tag")
	}
}

func TestSetup(t *testing.T) {
	s := Setup(sampleDefinition())
	if s.Width != 8.27 || s.Height != 11.69 {
		t.Fatalf("unexpected paper size %+v", s)
	}
	// 上 右 下 左
	want := [4]float64{1, 0.5, 0.75, 0.25}
	got := [4]float64{s.MarginTop, s.MarginRight, s.MarginBottom, s.MarginLeft}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("unexpected margins %+v", s)
		}
	}

	def := sampleDefinition()
	def.PageSize = "letter"
	if s := Setup(def); s.Width != 8.5 {
		t.Fatalf("letter size not honoured: %+v", s)
	}
	def.PageSize = "unknown"
	if s := Setup(def); s.Width != 8.27 {
		t.Fatalf("unknown size should fall back to A4: %+v", s)
	}
}

type fakeBackend struct {
	html  string
	setup PageSetup
}

func (f *fakeBackend) Print(ctx context.Context, htmlContent string, setup PageSetup) ([]byte, error) {
	f.html = htmlContent
	f.setup = setup
	return []byte("%PDF-1.7"), nil
}

func TestExporter(t *testing.T) {
	backend := &fakeBackend{}
	exp := NewExporter(backend)

	data, err := exp.Export(context.Background(), sampleDefinition())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if string(data) != "%PDF-1.7" || !strings.Contains(backend.html, "cv-document") {
		t.Fatalf("backend did not receive the rendered document")
	}

	if _, err := exp.Export(context.Background(), render.DocumentDefinition{}); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
}
