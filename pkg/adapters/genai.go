package adapters

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/shouni/meme-genius-lab/pkg/generator"
	"google.golang.org/genai"
)

// Options は GenaiModel の接続設定です。
type Options struct {
	APIKey     string
	BaseURL    string       // 空なら SDK 既定のエンドポイント
	HTTPClient *http.Client // nil なら SDK 既定のクライアント
}

// GenaiModel は genai SDK を使って generator.GenerativeModel を実装するアダプターです。
// SDK クライアントは最初の呼び出し時に生成するため、API キーの不足は
// 起動時ではなくリクエスト時のエラーとして現れます。
type GenaiModel struct {
	opts Options

	mu     sync.Mutex
	client *genai.Client
}

var _ generator.GenerativeModel = (*GenaiModel)(nil)

// NewGenaiModel は GenaiModel を作成します。ここでは通信も検証も行いません。
func NewGenaiModel(opts Options) *GenaiModel {
	opts.APIKey = strings.TrimSpace(opts.APIKey)
	opts.BaseURL = strings.TrimSpace(opts.BaseURL)
	return &GenaiModel{opts: opts}
}

// GenerateWithParts は parts を1つのユーザーコンテンツとして GenerateContent に送信します。
func (m *GenaiModel) GenerateWithParts(ctx context.Context, model string, parts []*genai.Part) (*genai.GenerateContentResponse, error) {
	client, err := m.getClient(ctx)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("GenerateContent failed: %w", err)
	}
	return resp, nil
}

func (m *GenaiModel) getClient(ctx context.Context) (*genai.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		return m.client, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     m.opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: m.opts.HTTPClient,
	}
	if m.opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: m.opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		// 失敗はキャッシュしない。次回の呼び出しで再試行する。
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	m.client = client
	return client, nil
}
