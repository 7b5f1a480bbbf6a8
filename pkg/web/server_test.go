package web

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shouni/meme-genius-lab/pkg/domain"
	"github.com/shouni/meme-genius-lab/pkg/generator"
	"github.com/shouni/meme-genius-lab/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEditor は generator.ImageEditor のテスト用実装なのだ。
type fakeEditor struct {
	mu       sync.Mutex
	editFunc func(ctx context.Context, source domain.Image, instruction string) (*domain.Image, error)
}

func (f *fakeEditor) EditImage(ctx context.Context, source domain.Image, instruction string) (*domain.Image, error) {
	f.mu.Lock()
	fn := f.editFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, source, instruction)
	}
	return &domain.Image{MimeType: "image/png", Data: pngBytes(nil)}, nil
}

func pngBytes(t *testing.T) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil && t != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

type testEnv struct {
	server  *httptest.Server
	session *session.Session
	editor  *fakeEditor
	client  *http.Client
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	editor := &fakeEditor{}
	sess, err := session.New(editor)
	require.NoError(t, err)

	if opts.Now == nil {
		opts.Now = func() time.Time { return time.UnixMilli(1700000000123) }
	}
	srv, err := NewServer(sess, opts)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Router(zerolog.Nop()))
	t.Cleanup(ts.Close)

	client := ts.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return &testEnv{server: ts, session: sess, editor: editor, client: client}
}

func (e *testEnv) postForm(t *testing.T, path string, values url.Values) *http.Response {
	t.Helper()
	resp, err := e.client.PostForm(e.server.URL+path, values)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) postMultipart(t *testing.T, path, filename string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := e.client.Post(e.server.URL+path, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) postJSON(t *testing.T, path string, v any) *http.Response {
	t.Helper()
	var body io.Reader = http.NoBody
	if v != nil {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	resp, err := e.client.Post(e.server.URL+path, "application/json", body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(nil, Options{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Options{})
	resp := env.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"status": "ok"}, decodeJSON[map[string]string](t, resp))
	assert.NotEmpty(t, resp.Header.Get("Content-Type"))
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t, Options{})

	t.Run("初期画面には候補とアップロード案内が出るのだ", func(t *testing.T) {
		resp := env.get(t, "/")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		html := string(body)
		assert.Contains(t, html, "Upload an image to get started.")
		for _, s := range DefaultSuggestions {
			assert.Contains(t, html, s)
		}
		assert.Contains(t, html, "disabled", "編集元が無い間は送信できないのだ")
	})

	t.Run("アップロード直後は指示文が空でも送信ボタンが押せるのだ", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.postMultipart(t, "/upload", "a.png", pngBytes(t))
		require.Empty(t, env.session.Snapshot().Instruction)

		body, _ := io.ReadAll(env.get(t, "/").Body)
		html := string(body)
		assert.Contains(t, html, `<button type="submit">Generate</button>`)
		assert.NotContains(t, html, `disabled>Generate`)

		// 空のまま送信しても状態は変わらないのだ
		resp := env.postForm(t, "/generate", url.Values{"prompt": {"   "}})
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, domain.StatusIdle, env.session.Snapshot().Status)
		assert.Empty(t, env.session.Snapshot().History)
	})

	t.Run("アップロード中は送信ボタンが押せないのだ", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.postMultipart(t, "/upload", "a.png", pngBytes(t))
		env.session.BeginUpload()

		body, _ := io.ReadAll(env.get(t, "/").Body)
		assert.Contains(t, string(body), `<button type="submit" disabled>Generate</button>`)
	})

	t.Run("編集結果があればそれを表示するのだ", func(t *testing.T) {
		require.NoError(t, env.session.CompleteUpload(env.session.BeginUpload(), domain.NewImage(pngBytes(t), "")))
		env.session.SetInstruction("Add a retro 90s filter")
		_, err := env.session.Submit(context.Background())
		require.NoError(t, err)

		body, _ := io.ReadAll(env.get(t, "/").Body)
		html := string(body)
		assert.Contains(t, html, `src="/images/edited"`)
		assert.Contains(t, html, `href="/download"`)
		assert.Contains(t, html, "/images/history/")
	})
}

func TestUploadForm(t *testing.T) {
	t.Run("画像をアップロードすると編集元になるのだ", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		resp := env.postMultipart(t, "/upload", "a.png", pngBytes(t))
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/", resp.Header.Get("Location"))

		snap := env.session.Snapshot()
		require.NotNil(t, snap.Source)
		assert.Equal(t, "image/png", snap.Source.MimeType)
		assert.Equal(t, domain.StatusIdle, snap.Status)
	})

	t.Run("画像以外は error 状態になるのだ", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.postMultipart(t, "/upload", "a.txt", []byte("hello, world"))

		snap := env.session.Snapshot()
		assert.Nil(t, snap.Source)
		assert.Equal(t, domain.StatusError, snap.Status)
		assert.Equal(t, ErrNotAnImage.Error(), snap.Error)
	})

	t.Run("上限を超える画像は受け付けないのだ", func(t *testing.T) {
		env := newTestEnv(t, Options{MaxUploadBytes: 16})
		env.postMultipart(t, "/upload", "a.png", pngBytes(t))

		snap := env.session.Snapshot()
		assert.Nil(t, snap.Source)
		assert.Equal(t, ErrUploadTooLarge.Error(), snap.Error)
	})

	t.Run("ファイル未選択なら何もしないのだ", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		resp := env.postMultipart(t, "/upload", "", nil)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, domain.StatusIdle, env.session.Snapshot().Status)
	})
}

func TestGenerateForm(t *testing.T) {
	t.Run("指示文で編集して結果と履歴ができるのだ", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.postMultipart(t, "/upload", "a.png", pngBytes(t))

		resp := env.postForm(t, "/generate", url.Values{"prompt": {"Add a retro 90s filter"}})
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

		snap := env.session.Snapshot()
		require.NotNil(t, snap.Edited)
		require.Len(t, snap.History, 1)
		assert.Equal(t, "Add a retro 90s filter", snap.History[0].Prompt())
	})

	t.Run("リクエストがキャンセルされても生成は続けるのだ", func(t *testing.T) {
		var seenErr error
		var hasDeadline bool
		editor := &fakeEditor{editFunc: func(ctx context.Context, _ domain.Image, _ string) (*domain.Image, error) {
			seenErr = ctx.Err()
			_, hasDeadline = ctx.Deadline()
			return &domain.Image{MimeType: "image/png", Data: pngBytes(nil)}, nil
		}}
		sess, err := session.New(editor)
		require.NoError(t, err)
		require.NoError(t, sess.CompleteUpload(sess.BeginUpload(), domain.NewImage(pngBytes(t), "")))
		sess.SetInstruction("x")
		srv, err := NewServer(sess, Options{GenerateTimeout: time.Minute})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodPost, "/api/edits", nil).WithContext(ctx)

		_, err = srv.generate(req, nil)
		require.NoError(t, err)
		assert.NoError(t, seenErr, "切断済みのリクエストでもキャンセルされないのだ")
		assert.True(t, hasDeadline, "GenerateTimeout が期限として設定されるのだ")
	})

	t.Run("失敗は画面のエラーとして表示されるのだ", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.editor.editFunc = func(context.Context, domain.Image, string) (*domain.Image, error) {
			return nil, generator.ErrNoImage
		}
		env.postMultipart(t, "/upload", "a.png", pngBytes(t))
		env.postForm(t, "/generate", url.Values{"prompt": {"x"}})

		body, _ := io.ReadAll(env.get(t, "/").Body)
		assert.Contains(t, string(body), session.MessageNoImage)
	})
}

func TestPromptAndResetForms(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.postMultipart(t, "/upload", "a.png", pngBytes(t))

	env.postForm(t, "/prompt", url.Values{"prompt": {"Remove the background"}})
	assert.Equal(t, "Remove the background", env.session.Snapshot().Instruction)

	env.postForm(t, "/prompt/clear", nil)
	assert.Empty(t, env.session.Snapshot().Instruction)

	env.postForm(t, "/reset", nil)
	assert.Nil(t, env.session.Snapshot().Source)
}

func TestImagesAndDownload(t *testing.T) {
	env := newTestEnv(t, Options{})
	data := pngBytes(t)

	t.Run("編集結果が無ければ 404 なのだ", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, env.get(t, "/download").StatusCode)
		assert.Equal(t, http.StatusNotFound, env.get(t, "/images/edited").StatusCode)
		assert.Equal(t, http.StatusNotFound, env.get(t, "/images/unknown").StatusCode)
	})

	env.postMultipart(t, "/upload", "a.png", data)
	env.postForm(t, "/generate", url.Values{"prompt": {"x"}})
	rec := env.session.Snapshot().History[0]

	t.Run("ダウンロードは meme-<ミリ秒>.png の添付ファイルなのだ", func(t *testing.T) {
		resp := env.get(t, "/download")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, `attachment; filename="meme-1700000000123.png"`, resp.Header.Get("Content-Disposition"))
		assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	})

	t.Run("編集元の画像をそのまま返すのだ", func(t *testing.T) {
		resp := env.get(t, "/images/source")
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, data, body)
	})

	t.Run("履歴の画像を返すのだ", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, env.get(t, "/images/history/"+rec.ID()+"/result").StatusCode)
		assert.Equal(t, http.StatusOK, env.get(t, "/images/history/"+rec.ID()+"/origin").StatusCode)
		assert.Equal(t, http.StatusNotFound, env.get(t, "/images/history/"+rec.ID()+"/other").StatusCode)
		assert.Equal(t, http.StatusNotFound, env.get(t, "/images/history/missing/result").StatusCode)
	})
}

func TestHistoryForms(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.postMultipart(t, "/upload", "a.png", pngBytes(t))
	env.postForm(t, "/generate", url.Values{"prompt": {"first"}})
	rec := env.session.Snapshot().History[0]
	env.postForm(t, "/reset", nil)

	resp := env.postForm(t, "/history/"+rec.ID()+"/select", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	snap := env.session.Snapshot()
	assert.Equal(t, "first", snap.Instruction)
	assert.NotNil(t, snap.Edited)

	assert.Equal(t, http.StatusNotFound, env.postForm(t, "/history/missing/select", nil).StatusCode)

	env.postForm(t, "/history/clear", nil)
	assert.Empty(t, env.session.Snapshot().History)
	assert.NotNil(t, env.session.Snapshot().Source, "作業状態は残るのだ")
}

func TestAPI(t *testing.T) {
	dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t))

	t.Run("JSON でアップロードして編集できるのだ", func(t *testing.T) {
		env := newTestEnv(t, Options{})

		resp := env.postJSON(t, "/api/upload", uploadRequest{Image: dataURI})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		view := decodeJSON[sessionView](t, resp)
		assert.Equal(t, dataURI, view.Source)
		assert.False(t, view.CanSubmit)

		prompt := "Add dramatic movie lighting"
		resp = env.postJSON(t, "/api/edits", editRequest{Prompt: &prompt})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		view = decodeJSON[sessionView](t, resp)
		assert.Equal(t, "idle", view.Status)
		assert.True(t, strings.HasPrefix(view.Edited, "data:image/png;base64,"))
		require.Len(t, view.History, 1)
		assert.Equal(t, prompt, view.History[0].Prompt)
		assert.Equal(t, dataURI, view.History[0].Origin)

		resp = env.get(t, "/api/session")
		assert.Equal(t, view.History[0].ID, decodeJSON[sessionView](t, resp).History[0].ID)
	})

	t.Run("multipart でもアップロードできるのだ", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		resp := env.postMultipart(t, "/api/upload", "a.png", pngBytes(t))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, dataURI, decodeJSON[sessionView](t, resp).Source)

		resp = env.postMultipart(t, "/api/upload", "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("不正なアップロードはステータスで区別できるのだ", func(t *testing.T) {
		env := newTestEnv(t, Options{MaxUploadBytes: 16})

		resp := env.postJSON(t, "/api/upload", uploadRequest{Image: "data:text/plain;base64,aGVsbG8="})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, ErrNotAnImage.Error(), decodeJSON[errorResponse](t, resp).Error)

		resp = env.postJSON(t, "/api/upload", uploadRequest{Image: dataURI})
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

		resp, err := env.client.Post(env.server.URL+"/api/upload", "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("送信できない状態は 422 なのだ", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		prompt := "x"
		resp := env.postJSON(t, "/api/edits", editRequest{Prompt: &prompt})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, session.ErrNoSourceImage.Error(), decodeJSON[errorResponse](t, resp).Error)

		env.postJSON(t, "/api/upload", uploadRequest{Image: dataURI})
		blank := "   "
		resp = env.postJSON(t, "/api/edits", editRequest{Prompt: &blank})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "指示文が空なのだ")
		assert.Equal(t, session.ErrEmptyInstruction.Error(), decodeJSON[errorResponse](t, resp).Error)
	})

	t.Run("生成失敗は 502 で画面用の文言を返すのだ", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.editor.editFunc = func(context.Context, domain.Image, string) (*domain.Image, error) {
			return nil, generator.ErrNoImage
		}
		env.postJSON(t, "/api/upload", uploadRequest{Image: dataURI})
		prompt := "x"
		resp := env.postJSON(t, "/api/edits", editRequest{Prompt: &prompt})
		require.Equal(t, http.StatusBadGateway, resp.StatusCode)

		body := decodeJSON[errorResponse](t, resp)
		assert.Equal(t, session.MessageNoImage, body.Error)
		require.NotNil(t, body.Session)
		assert.Equal(t, "error", body.Session.Status)
		assert.Empty(t, body.Session.History)
	})

	t.Run("生成中の再送信は 409 なのだ", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		started, release := make(chan struct{}), make(chan struct{})
		env.editor.editFunc = func(context.Context, domain.Image, string) (*domain.Image, error) {
			close(started)
			<-release
			return &domain.Image{MimeType: "image/png", Data: pngBytes(nil)}, nil
		}
		env.postJSON(t, "/api/upload", uploadRequest{Image: dataURI})
		env.session.SetInstruction("x")

		done := make(chan int, 1)
		go func() {
			resp, err := env.client.Post(env.server.URL+"/api/edits", "application/json", http.NoBody)
			if err != nil {
				done <- 0
				return
			}
			resp.Body.Close()
			done <- resp.StatusCode
		}()
		<-started

		other := "Turn characters into zombies"
		resp := env.postJSON(t, "/api/edits", editRequest{Prompt: &other})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "x", env.session.Snapshot().Instruction, "拒否された送信で指示文は変わらないのだ")

		resp = env.postForm(t, "/generate", url.Values{"prompt": {other}})
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "x", env.session.Snapshot().Instruction)

		close(release)
		assert.Equal(t, http.StatusOK, <-done)
	})

	t.Run("履歴の選択と消去ができるのだ", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.postJSON(t, "/api/upload", uploadRequest{Image: dataURI})
		prompt := "x"
		view := decodeJSON[sessionView](t, env.postJSON(t, "/api/edits", editRequest{Prompt: &prompt}))
		id := view.History[0].ID

		view = decodeJSON[sessionView](t, env.postJSON(t, "/api/reset", nil))
		assert.Empty(t, view.Source)
		assert.Len(t, view.History, 1)

		resp := env.postJSON(t, "/api/history/"+id+"/select", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		view = decodeJSON[sessionView](t, resp)
		assert.Equal(t, dataURI, view.Source)
		assert.Equal(t, "x", view.Instruction)

		assert.Equal(t, http.StatusNotFound, env.postJSON(t, "/api/history/missing/select", nil).StatusCode)

		view = decodeJSON[sessionView](t, env.postJSON(t, "/api/history/clear", nil))
		assert.Empty(t, view.History)
		assert.Equal(t, dataURI, view.Source)
	})
}

func TestStatusCode(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"not image":    {err: ErrNotAnImage, want: http.StatusUnprocessableEntity},
		"too large":    {err: ErrUploadTooLarge, want: http.StatusRequestEntityTooLarge},
		"no source":    {err: session.ErrNoSourceImage, want: http.StatusUnprocessableEntity},
		"empty prompt": {err: session.ErrEmptyInstruction, want: http.StatusUnprocessableEntity},
		"busy":         {err: session.ErrGenerationInProgress, want: http.StatusConflict},
		"uploading":    {err: session.ErrUploadInProgress, want: http.StatusConflict},
		"stale":        {err: session.ErrStaleResult, want: http.StatusConflict},
		"not found":    {err: session.ErrRecordNotFound, want: http.StatusNotFound},
		"failed":       {err: errors.Join(session.ErrGenerationFailed, generator.ErrNoImage), want: http.StatusBadGateway},
		"unknown":      {err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusCode(tc.err))
		})
	}
}
