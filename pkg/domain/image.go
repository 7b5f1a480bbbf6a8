package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/shouni/meme-genius-lab/pkg/imgutil"
)

const (
	dataURIScheme = "data:"
	base64Marker  = ";base64"

	// DownloadExtension はダウンロード時に付与する固定の拡張子です。
	DownloadExtension = ".png"
	downloadPrefix    = "meme-"
)

// Image は MIME タイプとバイト列を組で持つ、自己記述的な画像ペイロードです。
// 寸法・形式・サイズの検証は行いません（リモートサービス側に委ねます）。
type Image struct {
	MimeType string
	Data     []byte
}

// NewImage は MIME タイプが空ならデータから推定して Image を作ります。
func NewImage(data []byte, mimeType string) Image {
	if mimeType == "" {
		mimeType = imgutil.SniffMIME(data)
	}
	return Image{MimeType: mimeType, Data: data}
}

// ParseImage は "data:<mime>;base64,<payload>" 形式、またはヘッダなしの
// base64 文字列を Image に変換します。
func ParseImage(payload string) (Image, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Image{}, fmt.Errorf("画像ペイロードが空です")
	}

	mimeType := ""
	encoded := payload
	if strings.HasPrefix(payload, dataURIScheme) {
		header, body, ok := strings.Cut(payload[len(dataURIScheme):], ",")
		if !ok {
			return Image{}, fmt.Errorf("data URI にカンマ区切りがありません")
		}
		if !strings.HasSuffix(header, base64Marker) {
			return Image{}, fmt.Errorf("base64 以外のエンコーディングには対応していません: %q", header)
		}
		mimeType = strings.TrimSuffix(header, base64Marker)
		encoded = body
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Image{}, fmt.Errorf("base64 デコードに失敗しました: %w", err)
	}
	return NewImage(data, mimeType), nil
}

// DataURI は画像を "data:<mime>;base64,<payload>" 形式で返します。
func (i Image) DataURI() string {
	mimeType := i.MimeType
	if mimeType == "" {
		mimeType = imgutil.DefaultMIMEType
	}
	return dataURIScheme + mimeType + base64Marker + "," + base64.StdEncoding.EncodeToString(i.Data)
}

// IsZero はペイロードを持たないかどうかを返します。
func (i Image) IsZero() bool {
	return len(i.Data) == 0
}

// Clone はバイト列を複製した Image を返します。
func (i Image) Clone() Image {
	return Image{MimeType: i.MimeType, Data: append([]byte(nil), i.Data...)}
}

// DownloadFilename は保存用のファイル名 (meme-<unix ms>.png) を返します。
func DownloadFilename(t time.Time) string {
	return fmt.Sprintf("%s%d%s", downloadPrefix, t.UnixMilli(), DownloadExtension)
}
