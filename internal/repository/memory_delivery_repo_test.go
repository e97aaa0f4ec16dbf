package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/notifyhub/mailqueue/internal/domain"
	"github.com/notifyhub/mailqueue/internal/repository"
)

func ptr[T any](v T) *T { return &v }

func delivery(id string, jobID *string, typ string, status domain.DeliveryStatus, at time.Time) *domain.Delivery {
	return &domain.Delivery{
		ID:        id,
		JobID:     jobID,
		Type:      typ,
		Recipient: "user@example.com",
		Mode:      domain.ModeQueued,
		Status:    status,
		Attempts:  1,
		CreatedAt: at,
	}
}

func mustRecord(t *testing.T, repo *repository.MemoryDeliveryRepository, d *domain.Delivery) {
	t.Helper()
	if err := repo.Record(context.Background(), d); err != nil {
		t.Fatalf("Record %s: %v", d.ID, err)
	}
}

func list(t *testing.T, repo *repository.MemoryDeliveryRepository, f domain.DeliveryFilter) ([]*domain.Delivery, int) {
	t.Helper()
	items, total, err := repo.List(context.Background(), f)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return items, total
}

func TestMemoryDeliveryRepository_ListFiltersAndPages(t *testing.T) {
	repo := repository.NewMemoryDeliveryRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mustRecord(t, repo, delivery("d1", nil, "welcome", domain.DeliverySent, base))
	mustRecord(t, repo, delivery("d2", nil, "welcome", domain.DeliveryFailed, base.Add(time.Minute)))
	mustRecord(t, repo, delivery("d3", nil, "resetPassword", domain.DeliverySent, base.Add(2*time.Minute)))

	all, total := list(t, repo, domain.DeliveryFilter{Page: 1, Limit: 10})
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if all[0].ID != "d3" {
		t.Errorf("first = %s, want newest first (d3)", all[0].ID)
	}

	sent, total := list(t, repo, domain.DeliveryFilter{Status: ptr(domain.DeliverySent), Page: 1, Limit: 10})
	if total != 2 || len(sent) != 2 {
		t.Errorf("sent filter returned %d of %d, want 2 of 2", len(sent), total)
	}

	welcome, _ := list(t, repo, domain.DeliveryFilter{Type: ptr("welcome"), From: ptr(base.Add(30 * time.Second)), Page: 1, Limit: 10})
	if len(welcome) != 1 || welcome[0].ID != "d2" {
		t.Errorf("type+from filter = %v, want [d2]", ids(welcome))
	}

	page2, total := list(t, repo, domain.DeliveryFilter{Page: 2, Limit: 2})
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(page2) != 1 || page2[0].ID != "d1" {
		t.Errorf("page 2 = %v, want [d1]", ids(page2))
	}
}

func TestMemoryDeliveryRepository_UpsertsByJobID(t *testing.T) {
	repo := repository.NewMemoryDeliveryRepository()
	now := time.Now().UTC()

	mustRecord(t, repo, delivery("d1", ptr("job-1"), "welcome", domain.DeliveryFailed, now))
	updated := delivery("d2", ptr("job-1"), "welcome", domain.DeliverySent, now.Add(time.Second))
	updated.Attempts = 2
	mustRecord(t, repo, updated)

	got, err := repo.GetByJobID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByJobID: %v", err)
	}
	if got.ID != "d1" || got.Status != domain.DeliverySent || got.Attempts != 2 {
		t.Errorf("got %s %s after %d attempts, want d1 sent after 2", got.ID, got.Status, got.Attempts)
	}
	if n := len(repo.All()); n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
}

func TestMemoryDeliveryRepository_NotFound(t *testing.T) {
	_, err := repository.NewMemoryDeliveryRepository().GetByJobID(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func ids(ds []*domain.Delivery) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.ID)
	}
	return out
}
