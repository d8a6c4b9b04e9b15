package derivative

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/imgpipe/image-deriver/internal/model"
)

// Repository persists one row per settled resize task. The table is an
// audit trail: successes carry their destination path, failures carry the
// error text.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// SaveResult inserts one settled task result.
func (r *Repository) SaveResult(ctx context.Context, eventID uuid.UUID, event model.ObjectEvent, res model.TaskResult) error {
	query := `
		INSERT INTO derivatives (event_id, bucket, source_path, size_name, dest_path, width, height, content_type, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	errText := ""
	if res.Err != nil {
		errText = res.Err.Error()
	}

	_, err := r.db.ExecContext(
		ctx, query,
		eventID, event.Bucket, event.Name,
		res.SizeName, res.DestPath, res.Width, res.Height,
		event.ContentType, res.Status(), errText,
	)
	if err != nil {
		return fmt.Errorf("failed to save derivative record: %w", err)
	}

	return nil
}
