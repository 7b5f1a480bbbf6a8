package infra

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/shouni/meme-genius-lab/internal/config"
)

// HTTPServer は http.Server の起動と graceful shutdown をまとめたラッパーです。
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer は設定値のタイムアウトを反映した HTTPServer を作成します。
func NewHTTPServer(cfg *config.Config, handler http.Handler) *HTTPServer {
	return &HTTPServer{server: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}}
}

// Addr は待ち受けアドレスを返します。
func (s *HTTPServer) Addr() string {
	return s.server.Addr
}

// Start は呼び出し元の goroutine でサーバーを動かします。
// Shutdown による停止は正常終了として nil を返します。
func (s *HTTPServer) Start() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown は処理中のリクエストを待ってからサーバーを停止します。
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
