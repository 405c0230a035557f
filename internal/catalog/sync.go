package catalog

import (
	"context"
	"time"

	"opcost/internal/config"
	"opcost/internal/storage"
)

// SyncService refreshes the stored sheet-spec catalog from the
// shop-management API.
type SyncService struct {
	db     *storage.DB
	client *Client
	cfg    config.Config
}

func NewSyncService(db *storage.DB, cfg config.Config) *SyncService {
	return &SyncService{db: db, client: NewClient(cfg), cfg: cfg}
}

func (s *SyncService) Sync(ctx context.Context) (int, error) {
	specs, err := s.client.GetSheetSpecs(ctx)
	if err != nil {
		return 0, err
	}
	if len(specs) > 0 {
		if err := s.db.UpsertSpecs(specs); err != nil {
			return 0, err
		}
	}
	_ = s.db.SetMetadata("catalog.last_sync", time.Now().UTC().Format(time.RFC3339))
	return len(specs), nil
}
