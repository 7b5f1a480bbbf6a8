package generator

import "errors"

const (
	// DefaultModel は画像編集に使う既定のモデルです (Nano Banana)。
	DefaultModel = "gemini-2.5-flash-image"

	// editPromptTemplate はユーザーの指示を包む固定の文言です。
	editPromptTemplate = "Transform this image according to this prompt for a high-quality meme: %s. Return only the edited image."
)

// ErrNoImage は通信は成功したものの、応答に画像データが含まれていなかったことを示します。
var ErrNoImage = errors.New("no image in Gemini response")
