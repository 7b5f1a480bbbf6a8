package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status は編集セッションの状態です。
type Status string

const (
	StatusIdle       Status = "idle"
	StatusUploading  Status = "uploading"
	StatusGenerating Status = "generating"
	StatusError      Status = "error"
)

// EditRecord は完了した1回の編集結果です。作成後は変更しません。
type EditRecord struct {
	id        string
	result    Image
	origin    Image
	prompt    string
	createdAt time.Time
}

// NewEditRecord は UUIDv7 の ID を採番して EditRecord を作ります。
// v7 は作成時刻順に並ぶため、ID 同士でも新旧を区別できます。
func NewEditRecord(origin, result Image, prompt string, now time.Time) (EditRecord, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return EditRecord{}, err
	}
	return EditRecord{
		id:        id.String(),
		result:    result.Clone(),
		origin:    origin.Clone(),
		prompt:    prompt,
		createdAt: now,
	}, nil
}

func (r EditRecord) ID() string           { return r.id }
func (r EditRecord) Prompt() string       { return r.prompt }
func (r EditRecord) CreatedAt() time.Time { return r.createdAt }

// Result は生成された画像のコピーを返します。
func (r EditRecord) Result() Image { return r.result.Clone() }

// Origin は編集元画像のコピーを返します。
func (r EditRecord) Origin() Image { return r.origin.Clone() }
