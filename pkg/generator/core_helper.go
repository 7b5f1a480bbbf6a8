package generator

import (
	"fmt"

	"github.com/shouni/meme-genius-lab/pkg/domain"
	"github.com/shouni/meme-genius-lab/pkg/imgutil"
	"google.golang.org/genai"
)

// framePrompt はユーザーの指示を固定の文言で包みます。
func framePrompt(instruction string) string {
	return fmt.Sprintf(editPromptTemplate, instruction)
}

// buildEditParts は [画像, テキスト] の順でパーツを組み立てます。
func buildEditParts(source domain.Image, instruction string) ([]*genai.Part, error) {
	imgPart := toPart(source)
	if imgPart == nil {
		return nil, fmt.Errorf("編集元の画像が空です")
	}
	return []*genai.Part{
		imgPart,
		{Text: framePrompt(instruction)},
	}, nil
}

// toPart は Image を genai.Part (InlineData) に変換します。
func toPart(img domain.Image) *genai.Part {
	if img.IsZero() {
		return nil
	}
	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = imgutil.SniffMIME(img.Data)
	}
	return &genai.Part{
		InlineData: &genai.Blob{
			MIMEType: mimeType,
			Data:     img.Data,
		},
	}
}

// parseToResponse は Gemini のレスポンスから最初の画像パーツを取り出します。
// 画像が無い場合はすべて ErrNoImage（理由付き）になります。
func parseToResponse(resp *genai.GenerateContentResponse) (*domain.Image, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, fmt.Errorf("%w: 候補がありません", ErrNoImage)
	}

	// 最初の候補 (Candidate) のみを利用する。
	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mimeType := part.InlineData.MIMEType
			if mimeType == "" {
				mimeType = imgutil.DefaultMIMEType
			}
			return &domain.Image{MimeType: mimeType, Data: part.InlineData.Data}, nil
		}
	}

	// 安全フィルター等によるブロックの確認
	switch candidate.FinishReason {
	case "", genai.FinishReasonUnspecified, genai.FinishReasonStop:
	default:
		return nil, fmt.Errorf("%w: 画像生成が異常終了しました (FinishReason: %s)", ErrNoImage, candidate.FinishReason)
	}
	return nil, ErrNoImage
}
