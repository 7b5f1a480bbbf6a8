package web

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/shouni/meme-genius-lab/pkg/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// DefaultSuggestions はプロンプト入力欄の下に並べる指示文の候補です。
var DefaultSuggestions = []string{
	"Add a retro 90s filter",
	"Replace the background with a futuristic city",
	"Make this look like a painting",
	"Add dramatic movie lighting",
	"Remove the background",
	"Turn characters into zombies",
	"Add a cinematic motion blur",
	"Add explosions in the background",
}

// Options は Server の設定です。
type Options struct {
	// MaxUploadBytes はアップロード画像の上限サイズです。0 以下なら 20MiB。
	MaxUploadBytes int64
	// GenerateTimeout は1回の生成に掛けられる時間の上限です。0 なら無制限。
	GenerateTimeout time.Duration
	// Suggestions が空なら DefaultSuggestions を使います。
	Suggestions []string
	// Now はダウンロードファイル名の時刻取得に使います。
	Now func() time.Time
}

// Server はセッションを HTML フォームと JSON API で操作する HTTP ハンドラー群です。
type Server struct {
	session *session.Session
	opts    Options
	page    *template.Template
}

// NewServer は Session を注入して Server を作成します。
func NewServer(sess *session.Session, opts Options) (*Server, error) {
	if sess == nil {
		return nil, fmt.Errorf("session is required")
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if len(opts.Suggestions) == 0 {
		opts.Suggestions = DefaultSuggestions
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	page, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("テンプレートの読み込みに失敗しました: %w", err)
	}
	return &Server{session: sess, opts: opts, page: page}, nil
}

// Router はミドルウェアとルートを登録した http.Handler を返します。
func (s *Server) Router(logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		hlog.NewHandler(logger),
		requestIDField,
		hlog.MethodHandler("method"),
		hlog.URLHandler("url"),
		hlog.AccessHandler(accessLog),
		middleware.Recoverer,
	)

	r.Get("/healthz", s.Health)

	r.Get("/", s.Index)
	r.Post("/upload", s.Upload)
	r.Post("/prompt", s.SetPrompt)
	r.Post("/prompt/clear", s.ClearPrompt)
	r.Post("/generate", s.Generate)
	r.Post("/reset", s.Reset)
	r.Post("/history/clear", s.ClearHistory)
	r.Post("/history/{id}/select", s.SelectHistory)

	r.Get("/download", s.Download)
	r.Get("/images/{slot}", s.CurrentImage)
	r.Get("/images/history/{id}/{slot}", s.HistoryImage)

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", s.APISession)
		r.Post("/upload", s.APIUpload)
		r.Post("/edits", s.APIEdit)
		r.Post("/reset", s.APIReset)
		r.Post("/history/clear", s.APIClearHistory)
		r.Post("/history/{id}/select", s.APISelectHistory)
	})

	return r
}

// requestIDField は chi の RequestID をリクエストスコープのロガーに付与します。
func requestIDField(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("request_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}

// Health は死活監視用のエンドポイントです。
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	s.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
