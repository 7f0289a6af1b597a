package storage

import "testing"

func TestPageStoreLoadMissingPageReturnsEmptyPage(t *testing.T) {
	ps, err := NewPageStore(t.TempDir(), 4)
	if err != nil {
		t.Fatalf("new page store: %v", err)
	}
	id := NewPageID("students", 0, 0, true)
	page, err := ps.LoadPage(id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if page.NumRecords() != 0 {
		t.Fatalf("expected a fresh empty page, got %d records", page.NumRecords())
	}
}

func TestPageStoreStoreThenLoadRoundTripsBasePage(t *testing.T) {
	ps, err := NewPageStore(t.TempDir(), 4)
	if err != nil {
		t.Fatalf("new page store: %v", err)
	}
	id := NewPageID("students", 1, 0, true)
	page := NewPage(id, 4)
	page.Append(10)
	page.Append(20)

	if err := ps.StorePage(page); err != nil {
		t.Fatalf("store: %v", err)
	}
	loaded, err := ps.LoadPage(id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.NumRecords() != 2 {
		t.Fatalf("expected 2 records, got %d", loaded.NumRecords())
	}
	v0, _ := loaded.Read(0)
	v1, _ := loaded.Read(1)
	if v0 != 10 || v1 != 20 {
		t.Fatalf("expected [10,20], got [%d,%d]", v0, v1)
	}
}

func TestPageStoreStoreThenLoadRoundTripsCompressedTailPage(t *testing.T) {
	ps, err := NewPageStore(t.TempDir(), 4)
	if err != nil {
		t.Fatalf("new page store: %v", err)
	}
	id := NewPageID("students", 1, 0, false)
	page := NewPage(id, 4)
	page.Append(42)

	if err := ps.StorePage(page); err != nil {
		t.Fatalf("store: %v", err)
	}
	loaded, err := ps.LoadPage(id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	v, _ := loaded.Read(0)
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestPageStoreListPageFilesFindsStoredPages(t *testing.T) {
	ps, err := NewPageStore(t.TempDir(), 4)
	if err != nil {
		t.Fatalf("new page store: %v", err)
	}
	ids := []PageID{
		NewPageID("students", 0, 0, true),
		NewPageID("students", 1, 0, true),
	}
	for _, id := range ids {
		page := NewPage(id, 4)
		page.Append(1)
		if err := ps.StorePage(page); err != nil {
			t.Fatalf("store %s: %v", id, err)
		}
	}

	found, err := ps.ListPageFiles("students")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 page files, got %d", len(found))
	}
}

func TestPageStoreListPageFilesOnMissingTableReturnsEmpty(t *testing.T) {
	ps, err := NewPageStore(t.TempDir(), 4)
	if err != nil {
		t.Fatalf("new page store: %v", err)
	}
	found, err := ps.ListPageFiles("nonexistent")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected no page files, got %v", found)
	}
}
