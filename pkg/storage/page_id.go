package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// PageID is the canonical identity of a page: the table it belongs to, the
// physical column it stripes, the page number within that column, and
// whether it is a base or tail stripe. Its string form doubles as a cache
// key, a filename stem, and a log tag.
type PageID struct {
	Table   string
	Column  int
	PageNo  int
	IsBase  bool
}

// NewPageID builds a PageID from its parts.
func NewPageID(table string, column, pageNo int, isBase bool) PageID {
	return PageID{Table: table, Column: column, PageNo: pageNo, IsBase: isBase}
}

// String renders the canonical "<table>_<col>_<page_no>_<isBase01>" form.
func (id PageID) String() string {
	base := 0
	if id.IsBase {
		base = 1
	}
	return fmt.Sprintf("%s_%d_%d_%d", id.Table, id.Column, id.PageNo, base)
}

// ParsePageID recovers a PageID from its string form. Table names themselves
// may contain underscores, so the last three underscore-separated
// fields are taken as column, page_no and is_base, and whatever remains is
// the table name.
func ParsePageID(s string) (PageID, error) {
	parts := strings.Split(s, "_")
	if len(parts) < 4 {
		return PageID{}, fmt.Errorf("%w: %q", ErrInvalidPageID, s)
	}

	n := len(parts)
	baseFlag, err := strconv.Atoi(parts[n-1])
	if err != nil || (baseFlag != 0 && baseFlag != 1) {
		return PageID{}, fmt.Errorf("%w: %q", ErrInvalidPageID, s)
	}
	pageNo, err := strconv.Atoi(parts[n-2])
	if err != nil {
		return PageID{}, fmt.Errorf("%w: %q", ErrInvalidPageID, s)
	}
	column, err := strconv.Atoi(parts[n-3])
	if err != nil {
		return PageID{}, fmt.Errorf("%w: %q", ErrInvalidPageID, s)
	}
	table := strings.Join(parts[:n-3], "_")
	if table == "" {
		return PageID{}, fmt.Errorf("%w: %q", ErrInvalidPageID, s)
	}

	return PageID{Table: table, Column: column, PageNo: pageNo, IsBase: baseFlag == 1}, nil
}
