package render

import (
	"fmt"

	"cvforge/internal/templates"
)

// Registry 把模板 ID 解析为渲染器及其样式元数据。
type Registry struct {
	coder    LinkBackCoder
	builtins map[string]Renderer
}

// NewRegistry 注册全部内置模板渲染器。
func NewRegistry(coder LinkBackCoder) *Registry {
	r := &Registry{coder: coder, builtins: make(map[string]Renderer)}
	for _, renderer := range []Renderer{NewMinimal(coder), NewClassic(coder), NewModern(coder)} {
		r.builtins[renderer.ID()] = renderer
	}
	return r
}

// Builtin 返回内置模板的渲染器与样式。
func (r *Registry) Builtin(id string) (Renderer, StyleMeta, error) {
	renderer, ok := r.builtins[id]
	if !ok {
		return nil, StyleMeta{}, fmt.Errorf("%w: %q", ErrUnknownStyle, id)
	}
	style, err := LoadStyle(id)
	if err != nil {
		return nil, StyleMeta{}, err
	}
	return renderer, style, nil
}

// Custom 编译自定义模板并返回通用渲染器，样式为默认样式叠加模板自身的 stylesheet。
func (r *Registry) Custom(tpl templates.CustomTemplate) (Renderer, StyleMeta, error) {
	renderer, err := NewCustom(tpl, r.coder)
	if err != nil {
		return nil, StyleMeta{}, err
	}
	style, err := LoadStyle(templates.CustomFamily)
	if err != nil {
		return nil, StyleMeta{}, err
	}
	style.Stylesheet = tpl.Stylesheet
	return renderer, style, nil
}
