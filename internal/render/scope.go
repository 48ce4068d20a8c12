package render

import (
	"strings"

	"github.com/gorilla/css/scanner"
)

// 这些 at-rule 的块里仍是普通规则，需要继续加作用域。
var groupingAtRules = map[string]bool{
	"@media": true, "@supports": true, "@container": true, "@layer": true,
}

// 指向文档根的选择器，替换为作用域本身。
var rootSelectors = map[string]bool{"html": true, "body": true, ":root": true}

// ScopeStylesheet 把每条规则的选择器限定在 scope 之下（如 "#cv-preview"），
// 使自定义模板的样式只作用于预览节点。@font-face、@keyframes 等块原样保留。
func ScopeStylesheet(css, scope string) string {
	var out strings.Builder
	var prelude []*scanner.Token
	// rawDepth > 0 时处于声明块或非分组 at-rule 中，原样复制。
	rawDepth := 0

	s := scanner.New(css)
	for {
		tok := s.Next()
		if tok.Type == scanner.TokenEOF || tok.Type == scanner.TokenError {
			break
		}
		switch tok.Type {
		case scanner.TokenComment, scanner.TokenCDO, scanner.TokenCDC, scanner.TokenBOM:
			continue
		}

		if rawDepth > 0 {
			out.WriteString(tok.Value)
			if tok.Type == scanner.TokenChar {
				switch tok.Value {
				case "{":
					rawDepth++
				case "}":
					rawDepth--
				}
			}
			continue
		}

		if tok.Type != scanner.TokenChar {
			prelude = append(prelude, tok)
			continue
		}
		switch tok.Value {
		case "{":
			at := atKeyword(prelude)
			switch {
			case at == "":
				out.WriteString(scopeSelectors(prelude, scope))
				rawDepth = 1
			case groupingAtRules[at]:
				out.WriteString(joinTokens(prelude))
			default:
				out.WriteString(joinTokens(prelude))
				rawDepth = 1
			}
			out.WriteString("{")
			prelude = nil
		case ";":
			out.WriteString(joinTokens(prelude))
			out.WriteString(";")
			prelude = nil
		case "}":
			// 分组 at-rule 结束。
			prelude = nil
			out.WriteString("}")
		default:
			prelude = append(prelude, tok)
		}
	}
	return out.String()
}

func atKeyword(tokens []*scanner.Token) string {
	for _, t := range tokens {
		if t.Type == scanner.TokenS {
			continue
		}
		if t.Type == scanner.TokenAtKeyword {
			return strings.ToLower(t.Value)
		}
		return ""
	}
	return ""
}

func joinTokens(tokens []*scanner.Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.Value)
	}
	return strings.TrimSpace(b.String())
}

// scopeSelectors 按顶层逗号拆分选择器列表，逐个加上作用域前缀。
func scopeSelectors(tokens []*scanner.Token, scope string) string {
	var parts []string
	var cur []*scanner.Token
	depth := 0
	flush := func() {
		sel := joinTokens(cur)
		cur = nil
		if sel == "" {
			return
		}
		parts = append(parts, scopeSelector(sel, scope))
	}
	for _, t := range tokens {
		switch {
		case t.Type == scanner.TokenFunction:
			depth++
		case t.Type == scanner.TokenChar && t.Value == "(":
			depth++
		case t.Type == scanner.TokenChar && t.Value == ")":
			depth--
		case t.Type == scanner.TokenChar && t.Value == "," && depth == 0:
			flush()
			continue
		}
		cur = append(cur, t)
	}
	flush()
	return strings.Join(parts, ",")
}

func scopeSelector(sel, scope string) string {
	head, rest, _ := strings.Cut(sel, " ")
	if rootSelectors[strings.ToLower(head)] {
		if rest = strings.TrimSpace(rest); rest == "" {
			return scope
		}
		return scope + " " + rest
	}
	return scope + " " + sel
}

// StyleText 让 CSS 可以安全地写进 <style> 元素：'<' 改写为 CSS 转义，
// 任何内容都无法提前结束 style 元素。
func StyleText(css string) string {
	return strings.ReplaceAll(css, "<", `\3c `)
}
