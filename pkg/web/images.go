package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shouni/meme-genius-lab/pkg/domain"
)

// Download は現在の編集結果を meme-<unix-ms>.png として返します。
func (s *Server) Download(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	if snap.Edited == nil {
		http.NotFound(w, r)
		return
	}
	name := domain.DownloadFilename(s.opts.Now())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	writeImage(w, *snap.Edited)
}

// CurrentImage は編集元 (source) または編集結果 (edited) の画像を返します。
func (s *Server) CurrentImage(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	var img *domain.Image
	switch chi.URLParam(r, "slot") {
	case "source":
		img = snap.Source
	case "edited":
		img = snap.Edited
	}
	if img == nil {
		http.NotFound(w, r)
		return
	}
	writeImage(w, *img)
}

// HistoryImage は履歴の編集結果 (result) または編集元 (origin) の画像を返します。
func (s *Server) HistoryImage(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.session.Record(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	switch chi.URLParam(r, "slot") {
	case "result":
		writeImage(w, rec.Result())
	case "origin":
		writeImage(w, rec.Origin())
	default:
		http.NotFound(w, r)
	}
}

func writeImage(w http.ResponseWriter, img domain.Image) {
	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(img.Data)
}
