package templates

import "strings"

// 内置模板 ID。内置模板不归属任何账号，也不占用配额。
const (
	BuiltinMinimal = "minimal"
	BuiltinClassic = "classic"
	BuiltinModern  = "modern"

	// CustomFamily 出现在允许列表中时，表示账号可以使用自己的自定义模板。
	CustomFamily = "custom"
	customPrefix = CustomFamily + ":"
)

// BuiltIn 描述一个内置模板。
type BuiltIn struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var builtIns = []BuiltIn{
	{ID: BuiltinMinimal, Name: "Minimal", Description: "Single column, generous whitespace."},
	{ID: BuiltinClassic, Name: "Classic", Description: "Serif typography with ruled section headings."},
	{ID: BuiltinModern, Name: "Modern", Description: "Two columns with an accent sidebar."},
}

// BuiltIns returns the closed set of built-in templates.
func BuiltIns() []BuiltIn {
	out := make([]BuiltIn, len(builtIns))
	copy(out, builtIns)
	return out
}

// IsBuiltIn reports whether id names a built-in template.
func IsBuiltIn(id string) bool {
	for _, b := range builtIns {
		if b.ID == id {
			return true
		}
	}
	return false
}

// CustomID 返回自定义模板在模板寻址空间中的 ID（custom:<uuid>）。
func CustomID(templateID string) string {
	return customPrefix + templateID
}

// ParseCustomID 解析 custom:<uuid> 形式的模板 ID。
func ParseCustomID(id string) (string, bool) {
	if !strings.HasPrefix(id, customPrefix) {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(id, customPrefix))
	if raw == "" {
		return "", false
	}
	return raw, true
}

// IsCustomID reports whether id addresses a custom template.
func IsCustomID(id string) bool {
	_, ok := ParseCustomID(id)
	return ok
}
