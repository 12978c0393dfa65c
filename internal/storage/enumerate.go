package storage

import (
	"context"
	"fmt"
	"sort"
)

// ListYears discovers which years have data for a location by listing the
// sub-prefixes one level below {city}/{location_id}/. Non-year prefixes
// are skipped. Read-only.
func ListYears(ctx context.Context, store Store, city, locationID string) ([]string, error) {
	prefix := fmt.Sprintf("%s/%s/", city, locationID)

	names, err := store.ListPrefixes(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list years for %s/%s: %w", city, locationID, err)
	}

	var years []string
	for _, name := range names {
		if IsYear(name) {
			years = append(years, name)
		}
	}
	sort.Strings(years)
	return years, nil
}

// ListSourceFiles lists all objects under {city}/{location_id}/{year}/,
// filtered to recognized tabular files, as parsed source keys in listed
// order. Read-only.
func ListSourceFiles(ctx context.Context, store Store, city, locationID, year string) ([]ObjectKey, error) {
	prefix := fmt.Sprintf("%s/%s/%s/", city, locationID, year)

	raw, err := store.ListKeys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list files for %s/%s/%s: %w", city, locationID, year, err)
	}

	var keys []ObjectKey
	for _, r := range raw {
		key, ok := ParseObjectKey(r)
		if !ok || key.Zone != ZoneSource {
			continue
		}
		if !IsDataFile(key.Filename) {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}
