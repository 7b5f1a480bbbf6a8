package imgutil

import (
	"fmt"
	"net/http"
	"strings"
)

// DefaultMIMEType は MIME タイプを判別できなかった場合に用いる既定値です。
const DefaultMIMEType = "image/png"

// DetectImageMIME はバイト列の先頭から MIME タイプを判定します。
// 画像 (image/*) と判定できない場合はエラーを返します。
func DetectImageMIME(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("画像データが空です")
	}
	mimeType := http.DetectContentType(data)
	if !IsImageMIME(mimeType) {
		return "", fmt.Errorf("画像ではないデータです (detected: %s)", mimeType)
	}
	return mimeType, nil
}

// SniffMIME は DetectImageMIME の寛容版です。判定できなければ DefaultMIMEType を返します。
func SniffMIME(data []byte) string {
	if mimeType, err := DetectImageMIME(data); err == nil {
		return mimeType
	}
	return DefaultMIMEType
}

// IsImageMIME は MIME タイプ文字列が image/* かどうかを返します。
// "image/png; charset=..." のようなパラメータ付きも受け付けます。
func IsImageMIME(mimeType string) bool {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(base)), "image/")
}
