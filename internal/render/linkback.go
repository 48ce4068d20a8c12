package render

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/skip2/go-qrcode"

	"cvforge/internal/document"
)

// ErrCoderUnavailable 表示没有配置二维码生成器。
var ErrCoderUnavailable = errors.New("link-back coder unavailable")

// LinkBackCoder 把在线简历地址编码为 PNG 二维码。
type LinkBackCoder interface {
	Encode(url string, size int) ([]byte, error)
}

// QRCoder 使用 go-qrcode 生成二维码。
type QRCoder struct {
	Level qrcode.RecoveryLevel
}

func (q QRCoder) Encode(url string, size int) ([]byte, error) {
	if size <= 0 {
		size = 96
	}
	return qrcode.Encode(url, q.Level, size)
}

// prepare 在生成预览/导出之前统一处理可选资源，保证两种输出的内容一致：
// 为 link-back 块生成二维码（失败则省略并记录降级），并移除没有解析出图片地址的图片块。
func prepare(model document.Model, style StyleMeta, coder LinkBackCoder) (document.Model, []Degradation) {
	model = model.Clone()
	var degradations []Degradation

	dropped := false
	for si := range model.Sections {
		blocks := model.Sections[si].Blocks
		for bi := range blocks {
			b := &blocks[bi]
			switch b.Kind {
			case document.KindLinkBack:
				src, err := encodeLinkBack(coder, b.URL, style.LinkBackSize)
				if err != nil {
					degradations = append(degradations, Degradation{Asset: AssetLinkBack, Key: b.URL, Reason: err.Error()})
					dropped = true
					continue
				}
				b.Src = src
			case document.KindImage:
				if strings.TrimSpace(b.Src) == "" {
					degradations = append(degradations, Degradation{Asset: AssetPhoto, Key: b.AssetKey, Reason: "image source not resolved"})
					dropped = true
				}
			}
		}
	}
	if dropped {
		removeUnresolved(&model)
	}
	return model, degradations
}

func encodeLinkBack(coder LinkBackCoder, url string, size int) (string, error) {
	if coder == nil {
		return "", ErrCoderUnavailable
	}
	png, err := coder.Encode(url, size)
	if err != nil {
		return "", err
	}
	if len(png) == 0 {
		return "", errors.New("empty link-back image")
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

func removeUnresolved(model *document.Model) {
	sections := model.Sections[:0]
	for _, s := range model.Sections {
		blocks := s.Blocks[:0]
		for _, b := range s.Blocks {
			asset := b.Kind == document.KindImage || b.Kind == document.KindLinkBack
			if asset && strings.TrimSpace(b.Src) == "" {
				continue
			}
			blocks = append(blocks, b)
		}
		s.Blocks = blocks
		if len(s.Blocks) > 0 {
			sections = append(sections, s)
		}
	}
	model.Sections = sections
}
