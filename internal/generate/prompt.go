package generate

import (
	"fmt"
	"strings"

	"cvforge/internal/cv"
	"cvforge/internal/render"
)

const systemPrompt = `You design HTML layouts for professional CVs.
Respond with a single JSON object and nothing else:
{"markup": "<html fragment>", "stylesheet": "<css>"}

Rules:
- markup is a static HTML fragment: no <script>, <iframe>, <form>, <link>, <style> or <meta> elements, no event handler attributes, no template directives.
- Mark where content goes with data-cv-slot attributes. Leave slot elements empty; they are filled at render time.
- stylesheet is plain CSS: no @import, no url() pointing at remote hosts, no expression().
- Use class names prefixed with "cv-".`

// buildPrompt 组装用户消息正文。
func buildPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("Create a CV template.\n\n")
	if d := strings.TrimSpace(req.Description); d != "" {
		fmt.Fprintf(&b, "Design brief:\n%s\n\n", d)
	}
	if u := strings.TrimSpace(req.ReferenceURL); u != "" {
		fmt.Fprintf(&b, "Take visual inspiration from the page at %s.\n\n", u)
	}
	if len(req.ReferenceImage) > 0 {
		b.WriteString("Match the layout and visual style of the attached reference image.\n\n")
	}
	if h := strings.TrimSpace(req.LayoutHint); h != "" {
		fmt.Fprintf(&b, "Layout: %s\n", h)
	}
	if h := strings.TrimSpace(req.ColorHint); h != "" {
		fmt.Fprintf(&b, "Colors: %s\n", h)
	}

	b.WriteString("\nAvailable slots (data-cv-slot values):\n")
	for _, key := range cv.CanonicalOrder {
		fmt.Fprintf(&b, "- %s\n", key)
	}
	fmt.Fprintf(&b, "- %s (profile photo, optional)\n", render.SlotPhoto)
	fmt.Fprintf(&b, "- %s (QR code linking to the online CV, optional)\n", render.SlotLinkBack)
	return b.String()
}

// stripCodeFences 去掉模型有时包裹在 JSON 外的 ``` 代码块。
func stripCodeFences(text string) string {
	cleaned := strings.TrimSpace(text)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	if nl := strings.IndexByte(cleaned, '\n'); nl >= 0 {
		cleaned = cleaned[nl+1:]
	} else {
		cleaned = strings.TrimPrefix(cleaned, "```")
	}
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}
