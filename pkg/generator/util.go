package generator

import (
	"errors"
	"strings"

	"google.golang.org/genai"
)

// ServiceMessage はエラーチェーン中の genai.APIError からサービス側のメッセージを取り出します。
// 見つからない場合は空文字を返します。
func ServiceMessage(err error) string {
	if err == nil {
		return ""
	}

	// SDK は値型で返すが、ポインタで包まれている場合にも対応する。
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return strings.TrimSpace(apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return strings.TrimSpace(apiErrPtr.Message)
	}
	return ""
}
