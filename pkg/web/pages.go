package web

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/shouni/meme-genius-lab/pkg/domain"
	"github.com/shouni/meme-genius-lab/pkg/session"
)

type pageData struct {
	session.Snapshot
	Suggestions []string
	// StageURL はメイン表示領域に出す画像の URL です。編集結果があればそちらを優先します。
	StageURL  string
	ShowsEdit bool
	Busy      bool
}

// Index はメイン画面を描画します。
func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	data := pageData{
		Snapshot:    snap,
		Suggestions: s.opts.Suggestions,
		Busy:        snap.Status == domain.StatusGenerating || snap.Status == domain.StatusUploading,
	}
	switch {
	case snap.Edited != nil:
		data.StageURL = "/images/edited"
		data.ShowsEdit = true
	case snap.Source != nil:
		data.StageURL = "/images/source"
	}

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("画面の描画に失敗しました")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

// Upload はフォームから送られた画像を編集元として読み込みます。
// ファイルが選ばれていない場合は何もしません。
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	logger := hlog.FromRequest(r)

	file, err := s.openMultipartImage(w, r)
	if errors.Is(err, http.ErrMissingFile) {
		redirectHome(w, r)
		return
	}

	ticket := s.session.BeginUpload()
	var img domain.Image
	if err == nil {
		img, err = s.readImage(file)
		_ = file.Close()
	}
	if err := s.finishUpload(ticket, img, err); err != nil {
		logger.Warn().Err(err).Msg("画像の読み込みに失敗しました")
	} else {
		logger.Info().Str("mime", img.MimeType).Int("bytes", len(img.Data)).Msg("画像を読み込みました")
	}
	redirectHome(w, r)
}

// SetPrompt は指示文だけを更新します。候補ボタンから使われます。
func (s *Server) SetPrompt(w http.ResponseWriter, r *http.Request) {
	s.session.SetInstruction(r.PostFormValue("prompt"))
	redirectHome(w, r)
}

// ClearPrompt は指示文を空にします。
func (s *Server) ClearPrompt(w http.ResponseWriter, r *http.Request) {
	s.session.ClearInstruction()
	redirectHome(w, r)
}

// Generate はフォームの指示文で編集を実行し、完了後にメイン画面へ戻します。
// 失敗内容はセッションのエラーとして画面に表示されます。
func (s *Server) Generate(w http.ResponseWriter, r *http.Request) {
	prompt := r.PostFormValue("prompt")
	if _, err := s.generate(r, &prompt); err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("生成リクエストが完了しませんでした")
	}
	redirectHome(w, r)
}

// Reset は作業状態をすべて消します。履歴は残ります。
func (s *Server) Reset(w http.ResponseWriter, r *http.Request) {
	s.session.Reset()
	redirectHome(w, r)
}

// ClearHistory は履歴を消します。
func (s *Server) ClearHistory(w http.ResponseWriter, r *http.Request) {
	s.session.ClearHistory()
	redirectHome(w, r)
}

// SelectHistory は履歴の記録を作業状態に復元します。
func (s *Server) SelectHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Select(chi.URLParam(r, "id")); err != nil {
		http.NotFound(w, r)
		return
	}
	redirectHome(w, r)
}
