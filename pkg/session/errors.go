package session

import "errors"

var (
	// ErrNoSourceImage は編集元の画像が未選択のまま送信されたことを示します。
	ErrNoSourceImage = errors.New("no source image selected")
	// ErrEmptyInstruction は指示文が空（空白のみ）のまま送信されたことを示します。
	ErrEmptyInstruction = errors.New("instruction is empty")
	// ErrGenerationInProgress は生成中に再送信されたことを示します。
	ErrGenerationInProgress = errors.New("a generation is already in progress")
	// ErrUploadInProgress はアップロードの完了前に送信されたことを示します。
	ErrUploadInProgress = errors.New("an upload is in progress")
	// ErrRecordNotFound は指定 ID の履歴が存在しないことを示します。
	ErrRecordNotFound = errors.New("edit record not found")
	// ErrStaleResult は生成中にリセット等が行われ、結果が破棄されたことを示します。
	ErrStaleResult = errors.New("session changed while generating; result discarded")
	// ErrGenerationFailed は生成失敗（通信エラー・画像なし）を示します。
	// 詳細は errors.Unwrap で元のエラーを辿れます。
	ErrGenerationFailed = errors.New("generation failed")
)

const (
	// MessageNoImage は画像が得られなかった場合にユーザーへ表示する文言です。
	MessageNoImage = "Failed to generate image. Please try again."
	// MessageGeneric はエラー本文が取れなかった場合の文言です。
	MessageGeneric = "Something went wrong during generation."
)
