package database

import "testing"

func TestLoadMetadataOnFreshDirReturnsEmptyCatalog(t *testing.T) {
	cat, err := loadMetadata(t.TempDir())
	if err != nil {
		t.Fatalf("load metadata: %v", err)
	}
	if len(cat.Tables) != 0 {
		t.Fatalf("expected empty catalog, got %v", cat.Tables)
	}
}

func TestStoreMetadataThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cat := &catalogMeta{Tables: []tableMeta{
		{Name: "students", NumColumns: 3, KeyIndex: 0},
		{Name: "grades", NumColumns: 2, KeyIndex: 1},
	}}
	if err := storeMetadata(dir, cat); err != nil {
		t.Fatalf("store metadata: %v", err)
	}

	loaded, err := loadMetadata(dir)
	if err != nil {
		t.Fatalf("load metadata: %v", err)
	}
	if len(loaded.Tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(loaded.Tables))
	}
}

func TestStoreMetadataOverwritesPreviousCatalog(t *testing.T) {
	dir := t.TempDir()
	if err := storeMetadata(dir, &catalogMeta{Tables: []tableMeta{{Name: "a", NumColumns: 1}}}); err != nil {
		t.Fatalf("store first: %v", err)
	}
	if err := storeMetadata(dir, &catalogMeta{Tables: []tableMeta{{Name: "b", NumColumns: 2}}}); err != nil {
		t.Fatalf("store second: %v", err)
	}

	loaded, err := loadMetadata(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Tables) != 1 || loaded.Tables[0].Name != "b" {
		t.Fatalf("expected only the second catalog to survive, got %v", loaded.Tables)
	}
}
