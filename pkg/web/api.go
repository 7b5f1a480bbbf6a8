package web

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/shouni/meme-genius-lab/pkg/domain"
	"github.com/shouni/meme-genius-lab/pkg/session"
)

type recordView struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"createdAt"`
	Origin    string    `json:"origin"`
	Result    string    `json:"result"`
}

type sessionView struct {
	Source      string       `json:"source,omitempty"`
	Edited      string       `json:"edited,omitempty"`
	Instruction string       `json:"instruction"`
	Status      string       `json:"status"`
	Error       string       `json:"error,omitempty"`
	CanSubmit   bool         `json:"canSubmit"`
	History     []recordView `json:"history"`
}

type errorResponse struct {
	Error   string       `json:"error"`
	Session *sessionView `json:"session,omitempty"`
}

type uploadRequest struct {
	Image string `json:"image"`
}

type editRequest struct {
	Prompt *string `json:"prompt"`
}

func newSessionView(snap session.Snapshot) sessionView {
	v := sessionView{
		Instruction: snap.Instruction,
		Status:      string(snap.Status),
		Error:       snap.Error,
		CanSubmit:   snap.CanSubmit(),
		History:     make([]recordView, 0, len(snap.History)),
	}
	if snap.Source != nil {
		v.Source = snap.Source.DataURI()
	}
	if snap.Edited != nil {
		v.Edited = snap.Edited.DataURI()
	}
	for _, rec := range snap.History {
		v.History = append(v.History, recordView{
			ID:        rec.ID(),
			Prompt:    rec.Prompt(),
			CreatedAt: rec.CreatedAt(),
			Origin:    rec.Origin().DataURI(),
			Result:    rec.Result().DataURI(),
		})
	}
	return v
}

func (s *Server) writeSession(w http.ResponseWriter, code int) {
	s.json(w, code, newSessionView(s.session.Snapshot()))
}

// APISession は現在のセッション状態を返します。画像はデータURIで埋め込みます。
func (s *Server) APISession(w http.ResponseWriter, r *http.Request) {
	s.writeSession(w, http.StatusOK)
}

// APIUpload は JSON ({"image": "data:..."}) または multipart の画像を編集元として読み込みます。
func (s *Server) APIUpload(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		ticket session.UploadTicket
		img    domain.Image
		err    error
	)
	if mediaType == "application/json" {
		var req uploadRequest
		r.Body = http.MaxBytesReader(w, r.Body, 2*s.opts.MaxUploadBytes+(1<<20))
		if decErr := json.NewDecoder(r.Body).Decode(&req); decErr != nil {
			s.json(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}
		ticket = s.session.BeginUpload()
		img, err = domain.ParseImage(req.Image)
		if err != nil {
			err = ErrNotAnImage
		} else {
			img, err = s.validateImage(img)
		}
	} else {
		file, openErr := s.openMultipartImage(w, r)
		if errors.Is(openErr, http.ErrMissingFile) {
			s.json(w, http.StatusBadRequest, errorResponse{Error: "image field is required"})
			return
		}
		ticket = s.session.BeginUpload()
		err = openErr
		if err == nil {
			img, err = s.readImage(file)
			_ = file.Close()
		}
	}

	if err := s.finishUpload(ticket, img, err); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("画像の読み込みに失敗しました")
		s.writeError(w, err)
		return
	}
	s.writeSession(w, http.StatusOK)
}

// APIEdit は指示文（省略時は現在の指示文）で編集を実行し、結果のセッション状態を返します。
func (s *Server) APIEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.json(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if _, err := s.generate(r, req.Prompt); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSession(w, http.StatusOK)
}

// APIReset は作業状態を消します。
func (s *Server) APIReset(w http.ResponseWriter, r *http.Request) {
	s.session.Reset()
	s.writeSession(w, http.StatusOK)
}

// APIClearHistory は履歴を消します。
func (s *Server) APIClearHistory(w http.ResponseWriter, r *http.Request) {
	s.session.ClearHistory()
	s.writeSession(w, http.StatusOK)
}

// APISelectHistory は履歴の記録を作業状態に復元します。
func (s *Server) APISelectHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Select(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSession(w, http.StatusOK)
}

// writeError はセッションのエラーを HTTP ステータスに対応付けて返します。
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusCode(err)
	resp := errorResponse{Error: err.Error()}
	if code == http.StatusBadGateway {
		// 生成失敗時は画面表示用の文言とセッション状態を返す
		view := newSessionView(s.session.Snapshot())
		resp.Session = &view
		if view.Error != "" {
			resp.Error = view.Error
		}
	}
	s.json(w, code, resp)
}

func statusCode(err error) int {
	var uploadErr UploadError
	switch {
	case errors.As(err, &uploadErr):
		if uploadErr == ErrUploadTooLarge {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNoSourceImage), errors.Is(err, session.ErrEmptyInstruction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrGenerationInProgress), errors.Is(err, session.ErrUploadInProgress),
		errors.Is(err, session.ErrStaleResult):
		return http.StatusConflict
	case errors.Is(err, session.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrGenerationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
