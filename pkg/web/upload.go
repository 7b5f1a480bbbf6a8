package web

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/shouni/meme-genius-lab/pkg/domain"
	"github.com/shouni/meme-genius-lab/pkg/imgutil"
	"github.com/shouni/meme-genius-lab/pkg/session"
)

// UploadError はアップロード失敗時にそのまま画面へ表示するエラーです。
type UploadError string

func (e UploadError) Error() string { return string(e) }

const (
	ErrNotAnImage       UploadError = "The selected file is not an image."
	ErrUploadTooLarge   UploadError = "The image is too large."
	ErrUploadUnreadable UploadError = "Could not read the uploaded image."
)

const multipartField = "image"

// openMultipartImage はフォームの image フィールドを開きます。
// ファイルが選ばれていなければ http.ErrMissingFile を返します。
func (s *Server) openMultipartImage(w http.ResponseWriter, r *http.Request) (io.ReadCloser, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, ErrUploadTooLarge
		}
		return nil, ErrUploadUnreadable
	}
	file, _, err := r.FormFile(multipartField)
	if err != nil {
		return nil, err
	}
	return file, nil
}

// readImage は上限サイズまで読み込み、中身が画像であることを確認します。
func (s *Server) readImage(src io.Reader) (domain.Image, error) {
	data, err := io.ReadAll(io.LimitReader(src, s.opts.MaxUploadBytes+1))
	if err != nil {
		return domain.Image{}, ErrUploadUnreadable
	}
	if int64(len(data)) > s.opts.MaxUploadBytes {
		return domain.Image{}, ErrUploadTooLarge
	}
	mimeType, err := imgutil.DetectImageMIME(data)
	if err != nil {
		return domain.Image{}, ErrNotAnImage
	}
	return domain.NewImage(data, mimeType), nil
}

// validateImage はデータURIから得た画像を検証します。宣言された MIME が画像でなければ中身から判定し直します。
func (s *Server) validateImage(img domain.Image) (domain.Image, error) {
	if int64(len(img.Data)) > s.opts.MaxUploadBytes {
		return domain.Image{}, ErrUploadTooLarge
	}
	detected, err := imgutil.DetectImageMIME(img.Data)
	if err != nil {
		return domain.Image{}, ErrNotAnImage
	}
	if !imgutil.IsImageMIME(img.MimeType) {
		img.MimeType = detected
	}
	return img, nil
}

// finishUpload は読み込み結果をセッションへ反映します。
func (s *Server) finishUpload(ticket session.UploadTicket, img domain.Image, err error) error {
	if err != nil {
		s.session.AbortUpload(ticket, err)
		return err
	}
	return s.session.CompleteUpload(ticket, img)
}

// generate はクライアントの切断に影響されないコンテキストで編集を実行します。
// prompt が nil でなければ、送信が受け付けられた場合に限り指示文を置き換えます。
func (s *Server) generate(r *http.Request, prompt *string) (*domain.EditRecord, error) {
	ctx := context.WithoutCancel(r.Context())
	if s.opts.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.GenerateTimeout)
		defer cancel()
	}
	if prompt != nil {
		return s.session.SubmitInstruction(ctx, *prompt)
	}
	return s.session.Submit(ctx)
}
