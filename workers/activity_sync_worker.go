// workers/activity_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"log"

	"fitness-competition-service/models"
	"fitness-competition-service/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncedActivity matches the JSON the device sync service returns for
// one measurement recorded by an integration (scale, pedometer, ...).
type SyncedActivity struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	ActivityType string     `json:"activity_type"`
	Value        float64    `json:"value"`
	RecordedAt   time.Time  `json:"recorded_at"`
	Source       string     `json:"source"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ActivitySyncWorker polls the device sync service for activity entries
// recorded through integrations, mirrors them into activity_entries, and
// hands each synced entry to the trigger so affected competitions get
// recalculated.
type ActivitySyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string
	endpointPath string // e.g. "/api/v1/public/activities"
	serviceToken string
	httpClient   *http.Client

	// OnEntriesSynced is invoked after each successful batch upsert.
	OnEntriesSynced func(ctx context.Context, entries []models.ActivityEntry)
}

func NewActivitySyncWorker(db *gorm.DB, syncServiceBaseURL, endpointPath, serviceToken string) *ActivitySyncWorker {
	return &ActivitySyncWorker{
		db:           db,
		interval:     1 * time.Minute,
		baseURL:      syncServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
	}
}

func (w *ActivitySyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Activity Sync Worker (sync-service → activity_entries)…")
	go w.run(ctx)
}

func (w *ActivitySyncWorker) run(ctx context.Context) {
	if err := w.syncBatch(ctx, w.getLastSyncTime()); err != nil {
		log.Printf("⚠️ Initial activity sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Activity sync worker stopped.")
			return
		case <-ticker.C:
			if err := w.syncBatch(ctx, w.getLastSyncTime()); err != nil {
				log.Printf("❌ Activity sync batch failed: %v", err)
			}
		}
	}
}

// GetChangedActivities fetches entries the sync service has seen change
// since the given time.
func (w *ActivitySyncWorker) GetChangedActivities(ctx context.Context, since time.Time) ([]SyncedActivity, error) {
	u, err := url.Parse(w.baseURL + w.endpointPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sync service URL: %w", err)
	}
	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call sync service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Activities []SyncedActivity `json:"activities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode sync service response: %w", err)
	}
	return response.Activities, nil
}

func (w *ActivitySyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	synced, err := w.GetChangedActivities(ctx, since)
	if err != nil {
		return err
	}
	if len(synced) == 0 {
		return nil
	}
	log.Printf("📥 Received %d synced activity entrie(s) since %s", len(synced), since.Format(time.RFC3339))

	entries := make([]models.ActivityEntry, len(synced))
	for i, a := range synced {
		entries[i] = models.ActivityEntry{
			ID:           a.ID,
			UserID:       a.UserID,
			ActivityType: a.ActivityType,
			Value:        a.Value,
			RecordedAt:   a.RecordedAt,
			DateOnly:     models.DateOnly(a.RecordedAt),
			Source:       a.Source,
			DeletedAt:    a.DeletedAt,
		}
	}

	// Bulk upsert in one statement; re-syncing the same window is
	// harmless because rows are keyed by the sync service's ids.
	err = w.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"recorded_at",
			"date_only",
			"source",
			"deleted_at",
			"updated_at",
		}),
	}).Create(&entries).Error
	if err != nil {
		// lastSyncTime is derived from stored rows, so a failed batch
		// is retried on the next tick.
		return fmt.Errorf("failed to upsert %d activity entries: %w", len(entries), err)
	}

	if w.OnEntriesSynced != nil {
		w.OnEntriesSynced(ctx, entries)
	}
	return nil
}

// getLastSyncTime uses the newest mirrored (non-manual) entry as the
// incremental cursor, backfilling a day on a cold start.
func (w *ActivitySyncWorker) getLastSyncTime() time.Time {
	var last models.ActivityEntry
	err := w.db.Where("source <> ?", models.SourceManual).
		Order("updated_at DESC").
		First(&last).Error
	if err != nil {
		return time.Now().UTC().Add(-24 * time.Hour)
	}
	return last.UpdatedAt
}
