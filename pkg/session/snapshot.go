package session

import (
	"strings"

	"github.com/shouni/meme-genius-lab/pkg/domain"
)

// Snapshot はある時点のセッション状態のコピーです。
type Snapshot struct {
	Source      *domain.Image
	Edited      *domain.Image
	Instruction string
	Status      domain.Status
	Error       string
	History     []domain.EditRecord
}

// CanSubmit は現在の状態のまま送信すれば受け付けられるかを返します。
func (s Snapshot) CanSubmit() bool {
	return s.Source != nil && s.Status != domain.StatusGenerating && strings.TrimSpace(s.Instruction) != ""
}

// Snapshot は現在の状態を一貫したコピーとして返します。
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Instruction: s.instruction,
		Status:      s.status,
		Error:       s.errMsg,
		History:     append([]domain.EditRecord(nil), s.history...),
	}
	if s.source != nil {
		src := s.source.Clone()
		snap.Source = &src
	}
	if s.edited != nil {
		edited := s.edited.Clone()
		snap.Edited = &edited
	}
	return snap
}
