package storage

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"
)

// onDiskPage is the human-inspectable JSON body written for every page
// file: "{ page_id, num_records, data[] }".
type onDiskPage struct {
	PageID     string  `json:"page_id"`
	NumRecords int     `json:"num_records"`
	Data       []int64 `json:"data"`
}

// pageEnvelope wraps the page body with an integrity checksum computed over
// the body's canonical JSON encoding.
type pageEnvelope struct {
	Page     onDiskPage `json:"page"`
	Checksum string     `json:"checksum"`
}

// PageStore reads and writes one JSON file per page under
// dataDir/<table>/<page_id>.page.json, implementing the BufferPool's
// Loader contract. Tail page files (the append-only, never-overwritten
// stream) are zstd-compressed on disk since they are never mutated
// in place once written; base page files stay plain JSON because
// Page.Overwrite needs to round-trip through a human-inspectable format
// on every indirection bump.
type PageStore struct {
	mu       sync.Mutex
	dataDir  string
	capacity int
}

// NewPageStore creates a PageStore rooted at dataDir. Fresh pages created
// on a load-miss are sized to capacity.
func NewPageStore(dataDir string, capacity int) (*PageStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("page store: create data dir %s: %w", dataDir, err)
	}
	return &PageStore{dataDir: dataDir, capacity: capacity}, nil
}

func (ps *PageStore) pagePath(id PageID) string {
	return filepath.Join(ps.dataDir, id.Table, id.String()+".page.json")
}

// LoadPage implements Loader. If no file exists for id, a fresh empty page
// stamped with id is returned rather than an error.
func (ps *PageStore) LoadPage(id PageID) (*Page, error) {
	path := ps.pagePath(id)

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewPage(id, ps.capacity), nil
	}
	if err != nil {
		return nil, fmt.Errorf("page store: read %s: %w", path, err)
	}

	body := raw
	if !id.IsBase {
		body, err = decompress(raw)
		if err != nil {
			return nil, fmt.Errorf("page store: decompress %s: %w", path, err)
		}
	}

	var env pageEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("page store: decode %s: %w", path, err)
	}

	want, err := checksumOf(env.Page)
	if err != nil {
		return nil, fmt.Errorf("page store: checksum %s: %w", path, err)
	}
	if want != env.Checksum {
		return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, path)
	}

	page := &Page{
		ID:       id,
		Capacity: ps.capacity,
		Values:   append([]int64(nil), env.Page.Data...),
	}
	return page, nil
}

// StorePage writes p to its page file, creating the owning table directory
// if needed.
func (ps *PageStore) StorePage(p *Page) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	body := onDiskPage{
		PageID:     p.ID.String(),
		NumRecords: len(p.Values),
		Data:       append([]int64(nil), p.Values...),
	}
	sum, err := checksumOf(body)
	if err != nil {
		return fmt.Errorf("page store: checksum %s: %w", p.ID, err)
	}
	env := pageEnvelope{Page: body, Checksum: sum}

	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("page store: encode %s: %w", p.ID, err)
	}
	if !p.ID.IsBase {
		out = compress(out)
	}

	dir := filepath.Join(ps.dataDir, p.ID.Table)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("page store: create table dir %s: %w", dir, err)
	}

	path := ps.pagePath(p.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("page store: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("page store: rename %s: %w", tmp, err)
	}
	return nil
}

// ListPageFiles returns every PageID found on disk for table, used by
// Table.Recover to rebuild the page directory without replaying a log.
func (ps *PageStore) ListPageFiles(table string) ([]PageID, error) {
	dir := filepath.Join(ps.dataDir, table)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("page store: list %s: %w", dir, err)
	}

	ids := make([]PageID, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const suffix = ".page.json"
		if len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
			continue
		}
		stem := name[:len(name)-len(suffix)]
		id, err := ParsePageID(stem)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func checksumOf(body onDiskPage) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func compress(data []byte) []byte {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		// zstd.NewWriter only fails on invalid options; none are used here.
		return data
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data)))
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
