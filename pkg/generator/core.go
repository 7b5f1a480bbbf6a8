package generator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shouni/meme-genius-lab/pkg/domain"
)

// GeminiImageEditor は Gemini を使って画像を編集する ImageEditor の実装です。
// 呼び出し間で状態を持ちません。
type GeminiImageEditor struct {
	aiClient GenerativeModel
	model    string
}

var _ ImageEditor = (*GeminiImageEditor)(nil)

// NewGeminiImageEditor は依存関係を注入して GeminiImageEditor を初期化します。
// model が空の場合は DefaultModel を使います。
func NewGeminiImageEditor(aiClient GenerativeModel, model string) (*GeminiImageEditor, error) {
	if aiClient == nil {
		return nil, fmt.Errorf("aiClient is required")
	}
	if model == "" {
		model = DefaultModel
	}
	return &GeminiImageEditor{
		aiClient: aiClient,
		model:    model,
	}, nil
}

// Model は使用するモデル名を返します。
func (e *GeminiImageEditor) Model() string {
	return e.model
}

// EditImage は画像と指示文を1回のリクエストにまとめて送信し、最初の画像パーツを返します。
func (e *GeminiImageEditor) EditImage(ctx context.Context, source domain.Image, instruction string) (*domain.Image, error) {
	logger := zerolog.Ctx(ctx)

	parts, err := buildEditParts(source, instruction)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("model", e.model).
		Str("mime_type", source.MimeType).
		Int("image_bytes", len(source.Data)).
		Msg("Geminiに画像編集をリクエストします")

	resp, err := e.aiClient.GenerateWithParts(ctx, e.model, parts)
	if err != nil {
		logger.Error().Err(err).Str("model", e.model).Msg("Gemini画像編集に失敗しました")
		return nil, fmt.Errorf("Gemini画像編集エラー: %w", err)
	}

	out, err := parseToResponse(resp)
	if err != nil {
		logger.Warn().Err(err).Str("model", e.model).Msg("Geminiの応答に画像が見つかりませんでした")
		return nil, err
	}
	return out, nil
}
