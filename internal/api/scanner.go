package api

import (
	"errors"
	"fmt"
	"io"

	"github.com/dutchcoders/go-clamd"
)

// ErrMaliciousFile 表示病毒扫描未通过。
var ErrMaliciousFile = errors.New("malicious file detected")

// VirusScanner 扫描上传内容。
type VirusScanner interface {
	Scan(r io.Reader) error
}

// ClamdScanner 通过 clamd 的 INSTREAM 扫描文件。
type ClamdScanner struct {
	addr string
}

// NewClamdScanner 返回连接到 addr 的扫描器。
func NewClamdScanner(addr string) *ClamdScanner {
	return &ClamdScanner{addr: addr}
}

// Scan 在任一结果不是 OK 时返回 ErrMaliciousFile。
func (s *ClamdScanner) Scan(r io.Reader) error {
	abortChan := make(chan bool)
	defer close(abortChan)

	scanChan, err := clamd.NewClamd(s.addr).ScanStream(r, abortChan)
	if err != nil {
		return fmt.Errorf("scan stream: %w", err)
	}

	var verdict error
	for result := range scanChan {
		switch result.Status {
		case clamd.RES_OK:
		case clamd.RES_FOUND:
			verdict = ErrMaliciousFile
		default:
			if verdict == nil {
				verdict = fmt.Errorf("clamd: %s %s", result.Status, result.Description)
			}
		}
	}
	return verdict
}
