package generator

import (
	"context"

	"github.com/shouni/meme-genius-lab/pkg/domain"
	"google.golang.org/genai"
)

// ImageEditor はセッション層が利用する画像編集の窓口です。
type ImageEditor interface {
	// EditImage は source を instruction に従って編集した画像を返します。
	// 通信は成功したが画像が得られなかった場合は ErrNoImage を返します。
	EditImage(ctx context.Context, source domain.Image, instruction string) (*domain.Image, error)
}

// GenerativeModel は Gemini へのリクエストを抽象化するインターフェースです。
type GenerativeModel interface {
	// GenerateWithParts は parts を1つのユーザーコンテンツとして送信し、生のレスポンスを返します。
	GenerateWithParts(ctx context.Context, model string, parts []*genai.Part) (*genai.GenerateContentResponse, error)
}
