package generate

import (
	"fmt"
	"io"
	"strings"

	"github.com/gorilla/css/scanner"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"cvforge/internal/render"
)

// Sanitized 是通过安全检查并经过规范化的模板内容，可以直接存储。
type Sanitized struct {
	Markup     string
	Stylesheet string
	Slots      []string
}

// 这些元素出现即拒绝，而不是静默剥离。
var forbiddenElements = map[string]bool{
	"script": true, "iframe": true, "frame": true, "frameset": true,
	"object": true, "embed": true, "applet": true, "form": true,
	"input": true, "button": true, "select": true, "textarea": true,
	"base": true, "meta": true, "link": true, "template": true,
	"svg": true, "math": true, "noscript": true, "portal": true,
}

var urlAttributes = map[string]bool{
	"href": true, "src": true, "action": true, "formaction": true,
	"xlink:href": true, "poster": true, "background": true,
	"srcset": true, "data": true, "cite": true, "longdesc": true,
}

// 服务端模板指令，任何一种都视为注入。
var directiveMarkers = []string{"{{", "{%", "<%", "${", "#{"}

var forbiddenCSSIdents = []string{"behavior", "-moz-binding", "expression"}

// Sanitize 检查生成的 markup/stylesheet，任何不安全的结构都整体拒绝并返回
// ErrUnsafeTemplateContent；通过检查后再经 bluemonday 规范化。
func Sanitize(markup, stylesheet string) (Sanitized, error) {
	markup = strings.TrimSpace(markup)
	stylesheet = strings.TrimSpace(stylesheet)
	if markup == "" {
		return Sanitized{}, rejected("markup is empty")
	}

	for _, marker := range directiveMarkers {
		if strings.Contains(markup, marker) || strings.Contains(stylesheet, marker) {
			return Sanitized{}, rejected("template directive %q", marker)
		}
	}
	if err := checkMarkup(markup); err != nil {
		return Sanitized{}, err
	}
	if err := checkStylesheet(stylesheet); err != nil {
		return Sanitized{}, err
	}

	clean := strings.TrimSpace(markupPolicy().Sanitize(markup))
	if clean == "" {
		return Sanitized{}, rejected("markup has no renderable content")
	}
	slots, err := render.Slots(clean)
	if err != nil {
		return Sanitized{}, rejected("markup cannot be compiled: %v", err)
	}
	known := slots[:0]
	for _, s := range slots {
		if render.KnownSlot(s) {
			known = append(known, s)
		}
	}
	return Sanitized{Markup: clean, Stylesheet: stylesheet, Slots: known}, nil
}

func rejected(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsafeTemplateContent, fmt.Sprintf(format, args...))
}

// markupPolicy 在 UGC 策略基础上放开布局元素和占位属性。style 属性一律剥离，
// 样式只能来自单独清洗过的 stylesheet。
func markupPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("header", "footer", "main", "nav", "article", "aside", "section", "div", "span")
	p.AllowAttrs(render.SlotAttr).Matching(bluemonday.SpaceSeparatedTokens).Globally()
	p.AllowAttrs("id").Matching(bluemonday.SpaceSeparatedTokens).Globally()
	p.AllowStyling()
	p.AllowDataURIImages()
	return p
}

func checkMarkup(markup string) error {
	z := html.NewTokenizer(strings.NewReader(markup))
	inStyle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return rejected("markup cannot be parsed: %v", err)
			}
			return nil
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			name := strings.ToLower(tok.Data)
			if forbiddenElements[name] {
				return rejected("<%s> element", name)
			}
			for _, a := range tok.Attr {
				if err := checkAttr(name, a); err != nil {
					return err
				}
			}
			inStyle = name == "style" && tok.Type == html.StartTagToken
		case html.EndTagToken:
			inStyle = false
		case html.TextToken:
			if inStyle {
				if err := checkStylesheet(string(z.Text())); err != nil {
					return err
				}
			}
		}
	}
}

func checkAttr(element string, a html.Attribute) error {
	key := strings.ToLower(a.Key)
	if a.Namespace != "" {
		key = strings.ToLower(a.Namespace) + ":" + key
	}
	if strings.HasPrefix(key, "on") {
		return rejected("event handler attribute %s on <%s>", key, element)
	}
	if key == "style" {
		return checkStylesheet(a.Val)
	}
	if key == "http-equiv" || key == "srcdoc" {
		return rejected("%s attribute", key)
	}
	if urlAttributes[key] {
		return checkURL(a.Val)
	}
	return nil
}

// checkURL 只允许相对地址、锚点、mailto 以及内联位图。
func checkURL(raw string) error {
	v := strings.ToLower(strings.Join(strings.Fields(raw), ""))
	// 浏览器把 '\' 当作 '/'，"/\host" 等同于协议相对地址。
	if strings.Contains(v, `\`) {
		return rejected("backslash in url %q", raw)
	}
	switch {
	case v == "", strings.HasPrefix(v, "#"), strings.HasPrefix(v, "mailto:"):
		return nil
	case strings.HasPrefix(v, "javascript:"), strings.HasPrefix(v, "vbscript:"):
		return rejected("script url")
	case strings.HasPrefix(v, "data:"):
		if isInlineBitmap(v) {
			return nil
		}
		return rejected("data url that is not a bitmap image")
	case strings.HasPrefix(v, "//"), strings.Contains(v, "://"):
		return rejected("remote url %q", raw)
	case strings.Contains(v, ":") && !strings.ContainsAny(v[:strings.Index(v, ":")], "/?#"):
		return rejected("url scheme in %q", raw)
	}
	return nil
}

func isInlineBitmap(v string) bool {
	for _, t := range []string{"data:image/png", "data:image/jpeg", "data:image/gif", "data:image/webp"} {
		if strings.HasPrefix(v, t) {
			return true
		}
	}
	return false
}

// checkStylesheet 用 CSS 词法扫描器检查 @import、url()、expression() 等。
func checkStylesheet(stylesheet string) error {
	if strings.TrimSpace(stylesheet) == "" {
		return nil
	}
	// '<' 能提前结束 <style> 元素（</style>、<!--），合法 CSS 不需要它。
	if strings.Contains(stylesheet, "<") || strings.Contains(stylesheet, "-->") {
		return rejected("markup in stylesheet")
	}
	lower := strings.ToLower(stylesheet)
	if strings.Contains(lower, "javascript:") || strings.Contains(lower, "vbscript:") {
		return rejected("script url in stylesheet")
	}

	s := scanner.New(stylesheet)
	for {
		tok := s.Next()
		switch tok.Type {
		case scanner.TokenEOF:
			return nil
		case scanner.TokenError:
			return rejected("stylesheet cannot be parsed at line %d", tok.Line)
		case scanner.TokenAtKeyword:
			kw := strings.ToLower(tok.Value)
			if strings.Contains(kw, `\`) || kw == "@import" || kw == "@namespace" {
				return rejected("%s rule", tok.Value)
			}
		case scanner.TokenURI:
			if err := checkCSSURL(tok.Value); err != nil {
				return err
			}
		case scanner.TokenFunction, scanner.TokenIdent:
			v := strings.ToLower(tok.Value)
			if strings.Contains(v, `\`) {
				return rejected("escaped identifier %q", tok.Value)
			}
			name := strings.TrimSuffix(v, "(")
			for _, bad := range forbiddenCSSIdents {
				if name == bad {
					return rejected("%s in stylesheet", name)
				}
			}
			if tok.Type == scanner.TokenFunction && (name == "url" || name == "image-set" || name == "image") {
				// url("...") 以函数形式出现时参数是字符串，同样只允许内联位图。
				next := s.Next()
				for next.Type == scanner.TokenS {
					next = s.Next()
				}
				if next.Type == scanner.TokenString && !isInlineBitmap(strings.ToLower(strings.Trim(next.Value, `"'`))) {
					return rejected("url() in stylesheet")
				}
			}
		}
	}
}

func checkCSSURL(token string) error {
	v := strings.TrimSpace(token)
	v = strings.TrimPrefix(strings.TrimPrefix(v, "url("), "URL(")
	v = strings.TrimSuffix(v, ")")
	v = strings.Trim(strings.TrimSpace(v), `"'`)
	if isInlineBitmap(strings.ToLower(v)) {
		return nil
	}
	return rejected("url(%s) in stylesheet", v)
}
