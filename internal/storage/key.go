package storage

import (
	"path"
	"regexp"
	"strings"
)

// Zone identifies which namespace an object key addresses.
type Zone string

const (
	ZoneSource  Zone = "source"
	ZoneArchive Zone = "archive"
	ZoneWide    Zone = "wide"
)

// ObjectKey is the structured form of a remote object key. It round-trips
// the three string layouts:
//
//	source:  {city}/{location_id}/{year}/{filename}
//	archive: {city}/archive/{location_id}/{year}/{filename}
//	wide:    {city}/wide/{location_id}/{year}/{filename}
//
// Archive and wide names carry the filename with the compression suffix
// stripped; source names keep it.
type ObjectKey struct {
	City       string
	LocationID string
	Year       string
	Filename   string
	Zone       Zone
}

// Source key pattern: {city}/{location_id}/{year}/{filename}
// Example: lyon/3647/2022/loc3647-2022-01.csv.gz
var sourceKeyPattern = regexp.MustCompile(`^([^/]+)/([^/]+)/(\d{4})/([^/]+)$`)

// Archive/wide key pattern: {city}/(archive|wide)/{location_id}/{year}/{filename}
// Example: lyon/archive/3647/2022/loc3647-2022-01.csv
var zoneKeyPattern = regexp.MustCompile(`^([^/]+)/(archive|wide)/([^/]+)/(\d{4})/([^/]+)$`)

// Year prefix pattern for enumeration: a 4-digit directory name.
var yearPattern = regexp.MustCompile(`^\d{4}$`)

// ParseObjectKey parses any of the three key forms. Ledger entries may be
// source, archive, or wide keys, so all three are accepted.
func ParseObjectKey(key string) (ObjectKey, bool) {
	if m := zoneKeyPattern.FindStringSubmatch(key); m != nil {
		return ObjectKey{
			City:       m[1],
			LocationID: m[3],
			Year:       m[4],
			Filename:   m[5],
			Zone:       Zone(m[2]),
		}, true
	}
	if m := sourceKeyPattern.FindStringSubmatch(key); m != nil {
		return ObjectKey{
			City:       m[1],
			LocationID: m[2],
			Year:       m[3],
			Filename:   m[4],
			Zone:       ZoneSource,
		}, true
	}
	return ObjectKey{}, false
}

// String renders the key in its zone's layout.
func (k ObjectKey) String() string {
	switch k.Zone {
	case ZoneArchive, ZoneWide:
		return path.Join(k.City, string(k.Zone), k.LocationID, k.Year, k.Filename)
	default:
		return path.Join(k.City, k.LocationID, k.Year, k.Filename)
	}
}

// Source resolves any form back to the source key, restoring the
// compression suffix that the archive and wide names drop.
func (k ObjectKey) Source() ObjectKey {
	name := k.Filename
	if k.Zone != ZoneSource && !IsCompressed(name) {
		name += ".gz"
	}
	return ObjectKey{City: k.City, LocationID: k.LocationID, Year: k.Year, Filename: name, Zone: ZoneSource}
}

// Uncompressed returns the source-zone key with the compression suffix
// dropped. Archive and wide names carry no suffix, so a source name
// restored from one of them is ambiguous: the original object may have
// been a plain .csv. ok is false when there is no suffix to drop.
func (k ObjectKey) Uncompressed() (ObjectKey, bool) {
	if !IsCompressed(k.Filename) {
		return k, false
	}
	return ObjectKey{
		City:       k.City,
		LocationID: k.LocationID,
		Year:       k.Year,
		Filename:   StripCompressionSuffix(k.Filename),
		Zone:       ZoneSource,
	}, true
}

// Archive returns the archive-zone key for this object.
func (k ObjectKey) Archive() ObjectKey {
	return ObjectKey{
		City:       k.City,
		LocationID: k.LocationID,
		Year:       k.Year,
		Filename:   StripCompressionSuffix(k.Filename),
		Zone:       ZoneArchive,
	}
}

// Wide returns the wide-zone key for this object.
func (k ObjectKey) Wide() ObjectKey {
	return ObjectKey{
		City:       k.City,
		LocationID: k.LocationID,
		Year:       k.Year,
		Filename:   StripCompressionSuffix(k.Filename),
		Zone:       ZoneWide,
	}
}

// IsCompressed checks if a filename carries the recognized compressed suffix.
func IsCompressed(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".gz")
}

// IsDataFile checks if a filename looks like a tabular source object.
func IsDataFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".csv.gz") || strings.HasSuffix(lower, ".csv")
}

// StripCompressionSuffix removes a trailing .gz, if present.
func StripCompressionSuffix(name string) string {
	if IsCompressed(name) {
		return name[:len(name)-len(".gz")]
	}
	return name
}

// IsYear checks whether a listed sub-prefix names a 4-digit year.
func IsYear(name string) bool {
	return yearPattern.MatchString(name)
}
