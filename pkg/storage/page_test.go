package storage

import "testing"

func TestPageAppendAndRead(t *testing.T) {
	p := NewPage(NewPageID("t", 0, 0, true), 2)
	slot, err := p.Append(42)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if slot != 0 {
		t.Fatalf("expected slot 0, got %d", slot)
	}
	v, err := p.Read(0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestPageAppendFailsWhenFull(t *testing.T) {
	p := NewPage(NewPageID("t", 0, 0, true), 1)
	if _, err := p.Append(1); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if _, err := p.Append(2); err == nil {
		t.Fatal("expected append beyond capacity to fail")
	}
}

func TestPageReadOutOfRangeFails(t *testing.T) {
	p := NewPage(NewPageID("t", 0, 0, true), 2)
	if _, err := p.Read(0); err == nil {
		t.Fatal("expected read of an unwritten slot to fail")
	}
}

func TestPageOverwrite(t *testing.T) {
	p := NewPage(NewPageID("t", 0, 0, true), 2)
	p.Append(1)
	if err := p.Overwrite(0, 99); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, _ := p.Read(0)
	if v != 99 {
		t.Fatalf("expected overwritten value 99, got %d", v)
	}
	if err := p.Overwrite(5, 1); err == nil {
		t.Fatal("expected overwrite of an unwritten slot to fail")
	}
}

func TestPageIDStringRoundTrip(t *testing.T) {
	id := NewPageID("students", 2, 7, true)
	s := id.String()
	parsed, err := ParsePageID(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != id {
		t.Fatalf("expected round-trip to preserve id, got %+v from %q", parsed, s)
	}
}

func TestPageIDStringRoundTripWithUnderscoreInTableName(t *testing.T) {
	id := NewPageID("my_table_name", 0, 0, false)
	parsed, err := ParsePageID(id.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != id {
		t.Fatalf("expected round-trip to preserve id, got %+v", parsed)
	}
}

func TestParsePageIDRejectsMalformedInput(t *testing.T) {
	if _, err := ParsePageID("not-a-page-id"); err == nil {
		t.Fatal("expected malformed page id to fail")
	}
}
