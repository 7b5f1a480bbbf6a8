package session

import (
	"context"
	"sync"

	"github.com/shouni/meme-genius-lab/pkg/domain"
)

// mockEditor は generator.ImageEditor のテスト用モックなのだ。
type mockEditor struct {
	mu       sync.Mutex
	editFunc func(ctx context.Context, source domain.Image, instruction string) (*domain.Image, error)
	calls    int
	lastSrc  domain.Image
	lastText string
}

func (m *mockEditor) EditImage(ctx context.Context, source domain.Image, instruction string) (*domain.Image, error) {
	m.mu.Lock()
	m.calls++
	m.lastSrc = source
	m.lastText = instruction
	fn := m.editFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, source, instruction)
	}
	return &domain.Image{MimeType: "image/png", Data: []byte("edited")}, nil
}

func (m *mockEditor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// blockingEditor は release が閉じられるまで応答を返さないモックなのだ。
type blockingEditor struct {
	started chan struct{}
	release chan struct{}
	result  *domain.Image
	err     error
}

func newBlockingEditor(result *domain.Image, err error) *blockingEditor {
	return &blockingEditor{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
		result:  result,
		err:     err,
	}
}

func (b *blockingEditor) EditImage(ctx context.Context, source domain.Image, instruction string) (*domain.Image, error) {
	b.started <- struct{}{}
	<-b.release
	return b.result, b.err
}
