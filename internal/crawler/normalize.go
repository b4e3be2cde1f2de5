package crawler

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalized 规范化后的内容，哈希只依赖这里的字段
type Normalized struct {
	Title string
	Body  string
	Hash  string
}

// Normalize NFC 规范化，折叠空白；正文保留段落换行
func Normalize(title, body string) Normalized {
	n := Normalized{
		Title: collapseLine(norm.NFC.String(title)),
		Body:  collapseBody(norm.NFC.String(body)),
	}
	n.Hash = ContentHash(n.Title, n.Body)
	return n
}

// ContentHash 对已规范化的标题和正文计算 SHA-256
func ContentHash(title, body string) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}

func collapseLine(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// collapseBody 每行内折叠空白，多个空行合并为一个
func collapseBody(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = collapseLine(line)
		if line == "" {
			if len(out) > 0 && !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
