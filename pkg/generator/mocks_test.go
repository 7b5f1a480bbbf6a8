package generator

import (
	"context"

	"google.golang.org/genai"
)

// --- Mocks ---

// mockAIClient は GenerativeModel のテスト用モックなのだ。
type mockAIClient struct {
	generateFunc func(ctx context.Context, model string, parts []*genai.Part) (*genai.GenerateContentResponse, error)
	calls        int
	lastModel    string
	lastParts    []*genai.Part
}

func (m *mockAIClient) GenerateWithParts(ctx context.Context, model string, parts []*genai.Part) (*genai.GenerateContentResponse, error) {
	m.calls++
	m.lastModel = model
	m.lastParts = parts
	if m.generateFunc != nil {
		return m.generateFunc(ctx, model, parts)
	}
	return imageResponse("image/png", []byte("fake")), nil
}

// imageResponse は画像パーツを1つだけ持つレスポンスを作るヘルパーなのだ。
func imageResponse(mimeType string, data []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []*genai.Part{{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}},
			},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}
