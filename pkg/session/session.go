package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shouni/meme-genius-lab/pkg/domain"
	"github.com/shouni/meme-genius-lab/pkg/generator"
)

// Session は編集元画像・編集結果・指示文・状態・履歴を保持し、
// ImageEditor の呼び出しを取りまとめるコントローラーです。
//
// 状態を変える操作（リセット・アップロード・履歴選択）はエポックを進めます。
// 生成開始時のエポックと完了時のエポックが異なる場合、その結果は破棄されます。
type Session struct {
	editor       generator.ImageEditor
	now          func() time.Time
	historyLimit int

	mu          sync.Mutex
	source      *domain.Image
	edited      *domain.Image
	instruction string
	status      domain.Status
	errMsg      string
	history     []domain.EditRecord
	epoch       uint64
}

// Option は Session の設定を変更します。
type Option func(*Session)

// WithHistoryLimit は履歴の最大件数を設定します。0 以下なら無制限です。
func WithHistoryLimit(n int) Option {
	return func(s *Session) {
		s.historyLimit = n
	}
}

// WithClock は記録時刻の取得元を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// New は ImageEditor を注入して Session を作成します。
func New(editor generator.ImageEditor, opts ...Option) (*Session, error) {
	if editor == nil {
		return nil, fmt.Errorf("editor is required")
	}
	s := &Session{
		editor: editor,
		now:    time.Now,
		status: domain.StatusIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// UploadTicket は BeginUpload で発行され、CompleteUpload で照合されます。
type UploadTicket struct {
	epoch uint64
}

// BeginUpload は uploading 状態に移行します。
func (s *Session) BeginUpload() UploadTicket {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	s.status = domain.StatusUploading
	return UploadTicket{epoch: s.epoch}
}

// CompleteUpload は読み込んだ画像を編集元として保存し、編集結果を消して idle に戻します。
func (s *Session) CompleteUpload(ticket UploadTicket, img domain.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket.epoch != s.epoch {
		return ErrStaleResult
	}
	s.epoch++
	src := img.Clone()
	s.source = &src
	s.edited = nil
	s.status = domain.StatusIdle
	return nil
}

// AbortUpload は読み込みに失敗したアップロードを error 状態として記録します。画像は変更しません。
func (s *Session) AbortUpload(ticket UploadTicket, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket.epoch != s.epoch {
		return
	}
	s.epoch++
	s.status = domain.StatusError
	s.errMsg = "Could not read the uploaded image."
	if cause != nil {
		s.errMsg = cause.Error()
	}
}

// SetInstruction は指示文を置き換えます。
func (s *Session) SetInstruction(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instruction = text
}

// ClearInstruction は指示文を空にします。
func (s *Session) ClearInstruction() {
	s.SetInstruction("")
}

// Submit は現在の編集元画像と指示文で画像編集を実行します。
//
// 編集元が無い・指示文が空・生成中・アップロード中のいずれかの場合は状態を変えずにエラーを返します。
// 失敗時は error 状態になり、画像と履歴はそのまま残ります。
func (s *Session) Submit(ctx context.Context) (*domain.EditRecord, error) {
	return s.submit(ctx, nil)
}

// SubmitInstruction は指示文を text に置き換えてから Submit します。
// 生成中・アップロード中で拒否された場合、指示文は変更しません。
func (s *Session) SubmitInstruction(ctx context.Context, text string) (*domain.EditRecord, error) {
	return s.submit(ctx, &text)
}

func (s *Session) submit(ctx context.Context, text *string) (*domain.EditRecord, error) {
	logger := zerolog.Ctx(ctx)

	s.mu.Lock()
	accepting := s.status == domain.StatusIdle || s.status == domain.StatusError
	if text != nil && accepting {
		s.instruction = *text
	}
	switch {
	case s.source == nil:
		s.mu.Unlock()
		return nil, ErrNoSourceImage
	case strings.TrimSpace(s.instruction) == "":
		s.mu.Unlock()
		return nil, ErrEmptyInstruction
	case s.status == domain.StatusGenerating:
		s.mu.Unlock()
		return nil, ErrGenerationInProgress
	case !accepting:
		s.mu.Unlock()
		return nil, ErrUploadInProgress
	}
	s.status = domain.StatusGenerating
	s.errMsg = ""
	epoch := s.epoch
	source := s.source.Clone()
	prompt := s.instruction
	s.mu.Unlock()

	out, err := s.editor.EditImage(ctx, source, prompt)
	if err == nil && (out == nil || out.IsZero()) {
		err = generator.ErrNoImage
	}

	var rec domain.EditRecord
	if err == nil {
		rec, err = domain.NewEditRecord(source, *out, prompt, s.now())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch {
		logger.Info().Err(err).Msg("生成中にセッションが変更されたため結果を破棄しました")
		return nil, ErrStaleResult
	}

	if err != nil {
		s.status = domain.StatusError
		s.errMsg = userMessage(err)
		logger.Warn().Err(err).Str("message", s.errMsg).Msg("画像編集に失敗しました")
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	edited := rec.Result()
	s.edited = &edited
	s.history = append([]domain.EditRecord{rec}, s.history...)
	if s.historyLimit > 0 && len(s.history) > s.historyLimit {
		s.history = s.history[:s.historyLimit]
	}
	s.status = domain.StatusIdle

	logger.Info().Str("record_id", rec.ID()).Int("history", len(s.history)).Msg("画像編集が完了しました")
	return &rec, nil
}

// Reset は編集元・編集結果・指示文・エラーを消して idle に戻します。
// 生成中のリクエストは取り消されませんが、その結果は破棄されます。
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	s.source = nil
	s.edited = nil
	s.instruction = ""
	s.errMsg = ""
	s.status = domain.StatusIdle
}

// Select は履歴の記録を作業状態として復元します。
func (s *Session) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.find(id)
	if !ok {
		return ErrRecordNotFound
	}

	s.epoch++
	result, origin := rec.Result(), rec.Origin()
	s.edited = &result
	s.source = &origin
	s.instruction = rec.Prompt()
	// エポックが進んだので、進行中の生成やアップロードの結果はもう反映されない
	if s.status == domain.StatusGenerating || s.status == domain.StatusUploading {
		s.status = domain.StatusIdle
	}
	return nil
}

// ClearHistory は履歴をすべて破棄します。作業状態は変わりません。
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// Record は ID に対応する履歴を返します。
func (s *Session) Record(id string) (domain.EditRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(id)
}

func (s *Session) find(id string) (domain.EditRecord, bool) {
	for _, rec := range s.history {
		if rec.ID() == id {
			return rec, true
		}
	}
	return domain.EditRecord{}, false
}

// userMessage はエラーを画面表示用の文言に変換します。
// サービスからのメッセージが無いエラーの詳細はログにだけ残します。
func userMessage(err error) string {
	if errors.Is(err, generator.ErrNoImage) {
		return MessageNoImage
	}
	if msg := generator.ServiceMessage(err); msg != "" {
		return msg
	}
	return MessageGeneric
}
