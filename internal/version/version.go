// Package version derives and parses snapshot identifiers.
//
// An identifier has the form {base}_v{YYYYMMDD_HHMMSS}_{note}. For a fixed
// base name, identifiers sort lexicographically in creation order at
// second granularity.
package version

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Layout is the timestamp layout embedded in identifiers.
const Layout = "20060102_150405"

const defaultBase = "dataset"

var (
	stampRe     = regexp.MustCompile(`_v(\d{8}_\d{6})_`)
	leadStampRe = regexp.MustCompile(`^\d{8}_\d{6}_`)
)

// ID is a parsed snapshot identifier.
type ID struct {
	Base      string
	CreatedAt time.Time
	Note      string
}

// String re-assembles the identifier.
func (id ID) String() string {
	return id.Base + "_v" + id.CreatedAt.Format(Layout) + "_" + id.Note
}

// CleanBase strips directory components and any extension suffix from name.
// Everything from the first dot onward is dropped, so "sales.v2.csv" becomes
// "sales".
func CleanBase(name string) string {
	name = filepath.Base(filepath.ToSlash(strings.TrimSpace(name)))
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	if name == "" || name == "/" {
		return defaultBase
	}
	return name
}

// Name builds the identifier for a snapshot of base created at now.
// The note is used verbatim.
func Name(base, note string, now time.Time) string {
	return ID{Base: CleanBase(base), CreatedAt: now, Note: note}.String()
}

// Prefix returns the identifier prefix shared by every snapshot of base.
func Prefix(base string) string {
	return CleanBase(base) + "_v"
}

// BelongsTo reports whether id is a snapshot of base: the "{base}_v" prefix
// followed directly by a stamp.
func BelongsTo(id, base string) bool {
	prefix := Prefix(base)
	if !strings.HasPrefix(id, prefix) {
		return false
	}
	return leadStampRe.MatchString(id[len(prefix):])
}

// Parse splits id into its parts. The last "_vYYYYMMDD_HHMMSS_" occurrence
// is taken as the separator so that base names may contain "_v" themselves.
// The returned time is in the local zone, matching how Name formats it.
func Parse(id string) (ID, bool) {
	locs := stampRe.FindAllStringSubmatchIndex(id, -1)
	if len(locs) == 0 {
		return ID{}, false
	}
	loc := locs[len(locs)-1]
	ts, err := time.ParseInLocation(Layout, id[loc[2]:loc[3]], time.Local)
	if err != nil {
		return ID{}, false
	}
	return ID{
		Base:      id[:loc[0]],
		CreatedAt: ts,
		Note:      id[loc[1]:],
	}, true
}
