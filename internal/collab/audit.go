package collab

import (
	"context"
	"time"

	"github.com/bastionhq/sessiongate/internal/logger"
	"github.com/bastionhq/sessiongate/internal/models"
	"github.com/bastionhq/sessiongate/internal/repository"
)

// PostgresAuditSubmitter submits audit records to the event
// repository on a background goroutine per call, so a slow or failing
// database write never blocks the session that produced the record
// (spec §5: "Audit-record submissions do not guarantee ordering
// against session close").
type PostgresAuditSubmitter struct {
	events *repository.EventRepository
	log    *logger.Logger
}

func NewPostgresAuditSubmitter(events *repository.EventRepository, log *logger.Logger) *PostgresAuditSubmitter {
	return &PostgresAuditSubmitter{events: events, log: log}
}

func (s *PostgresAuditSubmitter) Submit(ctx context.Context, rec models.AuditRecord) {
	go func() {
		submitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.events.Create(submitCtx, &rec); err != nil {
			s.log.Error("audit submission failed", map[string]interface{}{
				"type":  rec.Type,
				"error": err.Error(),
			})
		}
	}()
}

// PostgresBlocklist adapts repository.BlocklistRepository to
// BlocklistSource.
type PostgresBlocklist struct {
	repo *repository.BlocklistRepository
}

func NewPostgresBlocklist(repo *repository.BlocklistRepository) *PostgresBlocklist {
	return &PostgresBlocklist{repo: repo}
}

func (b *PostgresBlocklist) Snapshot(ctx context.Context) (map[string]struct{}, error) {
	return b.repo.Snapshot(ctx)
}
