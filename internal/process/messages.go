package process

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/sgi/internal/domain"
)

func createdMessage(title string) string {
	return fmt.Sprintf("Processo \"%s\" criado com sucesso", title)
}

func statusMessage(to domain.ProcessStatus) string {
	return "Status alterado para: " + to.Label()
}

func assignmentMessage(assignee *uuid.UUID) string {
	if assignee == nil {
		return "Responsável removido"
	}
	return "Responsável atribuído: " + assignee.String()
}

func fieldsMessage(fields []string) string {
	return "Dados do processo atualizados: " + strings.Join(fields, ", ")
}

// ReleaseEvent builds the atribuicao event recorded when p loses its assignee
// because the assignee's membership was revoked by actor.
func ReleaseEvent(p *domain.Process, actor uuid.UUID) *domain.Event {
	return &domain.Event{
		ID:        uuid.New(),
		TenantID:  p.TenantID,
		ProcessID: p.ID,
		Type:      domain.EventAtribuicao,
		Message:   assignmentMessage(nil),
		AuthorID:  &actor,
		CreatedAt: time.Now(),
	}
}
