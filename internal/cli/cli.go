package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shouni/meme-genius-lab/internal/config"
	"github.com/shouni/meme-genius-lab/internal/infra"
	"github.com/shouni/meme-genius-lab/pkg/adapters"
	"github.com/shouni/meme-genius-lab/pkg/domain"
	"github.com/shouni/meme-genius-lab/pkg/generator"
	"github.com/shouni/meme-genius-lab/pkg/imgutil"
	"github.com/shouni/meme-genius-lab/pkg/session"
	"github.com/shouni/meme-genius-lab/pkg/web"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// NewCLI は memelab のルートコマンドを返します。
func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "memelab",
		Short: "Edit images into memes with Gemini",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SilenceUsage = true
		},
	}
	rootCmd.PersistentFlags().String("model", "", "Gemini model name (overrides GEMINI_MODEL)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web editor",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().StringP("port", "p", "", "Listen port (overrides PORT)")

	editCmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit a single image and write the result",
		Args:  cobra.NoArgs,
		RunE:  runEdit,
	}
	editCmd.Flags().StringP("image", "i", "", "Source image file")
	editCmd.Flags().StringP("prompt", "m", "", "Edit instruction")
	editCmd.Flags().StringP("out", "o", "", "Output file (default meme-<unix-ms>.png)")
	_ = editCmd.MarkFlagRequired("image")
	_ = editCmd.MarkFlagRequired("prompt")

	rootCmd.AddCommand(serveCmd, editCmd)
	return rootCmd
}

// loadConfig は環境変数の設定にフラグの上書きを反映します。
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg := config.Load()
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.GeminiModel = model
	}
	if cmd.Flags().Lookup("port") != nil {
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.Port = port
		}
	}
	return cfg
}

func newEditor(cfg *config.Config) (*generator.GeminiImageEditor, error) {
	model := adapters.NewGenaiModel(adapters.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
	})
	return generator.NewGeminiImageEditor(model, cfg.GeminiModel)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	editor, err := newEditor(cfg)
	if err != nil {
		return err
	}
	sess, err := session.New(editor, session.WithHistoryLimit(cfg.HistoryLimit))
	if err != nil {
		return err
	}
	srv, err := web.NewServer(sess, web.Options{
		MaxUploadBytes:  cfg.MaxUploadBytes,
		GenerateTimeout: cfg.GenerateTimeout,
	})
	if err != nil {
		return err
	}
	server := infra.NewHTTPServer(cfg, srv.Router(logger))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr()).Str("model", editor.Model()).Msg("memelab listening")
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runEdit(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)
	ctx := logger.WithContext(cmd.Context())

	imagePath, _ := cmd.Flags().GetString("image")
	prompt, _ := cmd.Flags().GetString("prompt")
	outPath, _ := cmd.Flags().GetString("out")

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("画像ファイルの読み込みに失敗しました: %w", err)
	}
	mimeType, err := imgutil.DetectImageMIME(data)
	if err != nil {
		return fmt.Errorf("%s: %w", imagePath, err)
	}

	editor, err := newEditor(cfg)
	if err != nil {
		return err
	}
	out, err := editImage(ctx, editor, domain.NewImage(data, mimeType), prompt)
	if err != nil {
		return err
	}

	if outPath == "" {
		outPath = domain.DownloadFilename(time.Now())
	}
	if err := os.WriteFile(outPath, out.Data, 0o644); err != nil {
		return fmt.Errorf("編集結果の書き込みに失敗しました: %w", err)
	}
	zerolog.Ctx(ctx).Info().Str("path", outPath).Str("mime", out.MimeType).Msg("編集結果を保存しました")
	fmt.Fprintln(cmd.OutOrStdout(), filepath.Clean(outPath))
	return nil
}

// editImage は1回限りのセッションで編集を実行します。
// Web と同じく、画像の得られない応答は ErrNoImage として扱われます。
func editImage(ctx context.Context, editor generator.ImageEditor, src domain.Image, prompt string) (domain.Image, error) {
	sess, err := session.New(editor)
	if err != nil {
		return domain.Image{}, err
	}
	ticket := sess.BeginUpload()
	if err := sess.CompleteUpload(ticket, src); err != nil {
		return domain.Image{}, err
	}
	rec, err := sess.SubmitInstruction(ctx, prompt)
	if err != nil {
		return domain.Image{}, err
	}
	return rec.Result(), nil
}
