package render

import (
	"strings"
	"testing"

	"cvforge/internal/templates"
)

func TestScopeStylesheet(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"class rule", `.cv-custom { color: #333 }`, `#cv-preview .cv-custom{ color: #333 }`},
		{"selector list", `h1, .a > p{margin:0}`, `#cv-preview h1,#cv-preview .a > p{margin:0}`},
		{"root selectors", `body{margin:0} html .x{color:red}`, `#cv-preview{margin:0}#cv-preview .x{color:red}`},
		{"function keeps commas", `:is(h1, h2) span{color:red}`, `#cv-preview :is(h1, h2) span{color:red}`},
		{"media block", `@media print { .a{color:red} }`, `@media print{#cv-preview .a{color:red}}`},
		{"font face untouched", `@font-face{font-family:X;src:local(X)}`, `@font-face{font-family:X;src:local(X)}`},
		{"keyframes untouched", `@keyframes fade{from{opacity:0}to{opacity:1}}`, `@keyframes fade{from{opacity:0}to{opacity:1}}`},
		{"comments dropped", `/* hi */.a{color:red}`, `#cv-preview .a{color:red}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ScopeStylesheet(tc.in, "#"+PreviewRootID); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestStyleTextCannotCloseStyleElement(t *testing.T) {
	got := StyleText(`.a{content:"</style><script>x()</script>"}`)
	if strings.Contains(got, "<") {
		t.Fatalf("'<' must be escaped: %s", got)
	}
}

func TestCustomPreviewStylesheetIsScopedAndEscaped(t *testing.T) {
	tpl := templates.CustomTemplate{
		ID:         "tpl-1",
		Markup:     sampleMarkup,
		Stylesheet: `body{background:#000} .cv-custom{color:#333} .x{content:"</style><script>alert(1)</script>"}`,
	}
	r, style, err := NewRegistry(&stubCoder{}).Custom(tpl)
	if err != nil {
		t.Fatalf("custom: %v", err)
	}
	out := r.RenderPreview(mapFull(t, templates.BuiltinMinimal, false, false), style).HTML
	if strings.Contains(strings.ToLower(out), "<script") {
		t.Fatalf("preview must not contain a script element: %s", out)
	}
	if strings.Contains(out, "body{background") || !strings.Contains(out, "#cv-preview .cv-custom{color:#333}") {
		t.Fatalf("custom stylesheet should be scoped to the preview root: %s", out)
	}
}

func TestPreviewPaddingFollowsMarginOrder(t *testing.T) {
	style := StyleMeta{PageMargins: [4]float64{10, 20, 30, 40}, FontSize: 10, LineHeight: 1.4}
	if css := previewCSS(style, false); !strings.Contains(css, "padding:10pt 20pt 30pt 40pt") {
		t.Fatalf("padding should be top right bottom left: %s", css)
	}
}
