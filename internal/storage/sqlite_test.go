package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testLead(name, email, interest string) Lead {
	return Lead{
		ID:        uuid.New().String(),
		SessionID: uuid.New().String(),
		Name:      name,
		Email:     email,
		Interest:  interest,
		CreatedAt: time.Now().UTC(),
	}
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestIndexesExist verifies that indexes on the leads table are created by the migration.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_leads_session_id", "idx_leads_created_at"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master: %v", err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

func TestSaveAndGetLead(t *testing.T) {
	s := openTestStore(t)

	want := testLead("Alice", "alice@example.com", "Web Development")
	if err := s.SaveLead(want); err != nil {
		t.Fatalf("SaveLead: %v", err)
	}

	got, err := s.GetLead(want.ID)
	if err != nil {
		t.Fatalf("GetLead: %v", err)
	}
	if got.Name != want.Name || got.Email != want.Email || got.Interest != want.Interest {
		t.Errorf("GetLead = %+v, want %+v", got, want)
	}
	if got.SessionID != want.SessionID {
		t.Errorf("SessionID = %q, want %q", got.SessionID, want.SessionID)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not round-tripped")
	}
}

func TestGetLeadNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetLead("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// TestListLeadsOrder verifies leads come back in insertion order regardless of
// created_at values.
func TestListLeadsOrder(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().UTC()
	for i := range 5 {
		l := testLead(fmt.Sprintf("Lead %d", i), fmt.Sprintf("lead%d@example.com", i), "Consulting")
		// Deliberately decreasing timestamps.
		l.CreatedAt = base.Add(-time.Duration(i) * time.Hour)
		if err := s.SaveLead(l); err != nil {
			t.Fatalf("SaveLead %d: %v", i, err)
		}
	}

	leads, err := s.ListLeads(0, 0)
	if err != nil {
		t.Fatalf("ListLeads: %v", err)
	}
	if len(leads) != 5 {
		t.Fatalf("ListLeads returned %d leads, want 5", len(leads))
	}
	for i, l := range leads {
		if want := fmt.Sprintf("Lead %d", i); l.Name != want {
			t.Errorf("leads[%d].Name = %q, want %q", i, l.Name, want)
		}
	}
}

func TestListLeadsLimitOffset(t *testing.T) {
	s := openTestStore(t)

	for i := range 5 {
		if err := s.SaveLead(testLead(fmt.Sprintf("Lead %d", i), "x@example.com", "SEO")); err != nil {
			t.Fatal(err)
		}
	}

	leads, err := s.ListLeads(2, 1)
	if err != nil {
		t.Fatalf("ListLeads: %v", err)
	}
	if len(leads) != 2 {
		t.Fatalf("ListLeads(2, 1) returned %d leads, want 2", len(leads))
	}
	if leads[0].Name != "Lead 1" || leads[1].Name != "Lead 2" {
		t.Errorf("ListLeads(2, 1) = %q, %q; want Lead 1, Lead 2", leads[0].Name, leads[1].Name)
	}
}

func TestCountLeads(t *testing.T) {
	s := openTestStore(t)

	n, err := s.CountLeads()
	if err != nil {
		t.Fatalf("CountLeads: %v", err)
	}
	if n != 0 {
		t.Errorf("CountLeads on empty store = %d, want 0", n)
	}

	for range 3 {
		if err := s.SaveLead(testLead("A", "a@example.com", "Apps")); err != nil {
			t.Fatal(err)
		}
	}

	n, err = s.CountLeads()
	if err != nil {
		t.Fatalf("CountLeads: %v", err)
	}
	if n != 3 {
		t.Errorf("CountLeads = %d, want 3", n)
	}
}
