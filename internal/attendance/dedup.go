package attendance

import "time"

// Hashes returns the distinct content hashes of records in input order.
func Hashes(records []Record) []string {
	if len(records) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(records))
	hashes := make([]string, 0, len(records))
	for _, record := range records {
		hash := record.Hash
		if hash == "" {
			hash = HashOf(record)
		}
		if _, ok := seen[hash]; ok {
			continue
		}
		seen[hash] = struct{}{}
		hashes = append(hashes, hash)
	}
	return hashes
}

// Partition separates candidates whose hash is absent from existing. A punch
// that appears twice within candidates is kept once; the repeat is counted as
// a duplicate.
func Partition(candidates []Record, existing map[string]struct{}) (fresh []Record, duplicates int) {
	if len(candidates) == 0 {
		return nil, 0
	}
	accepted := make(map[string]struct{}, len(candidates))
	fresh = make([]Record, 0, len(candidates))
	for _, record := range candidates {
		if record.Hash == "" {
			record.Hash = HashOf(record)
		}
		if _, ok := existing[record.Hash]; ok {
			duplicates++
			continue
		}
		if _, ok := accepted[record.Hash]; ok {
			duplicates++
			continue
		}
		accepted[record.Hash] = struct{}{}
		fresh = append(fresh, record)
	}
	return fresh, duplicates
}

// FilterSince keeps records at or after floor. A nil floor keeps everything.
func FilterSince(records []Record, floor *time.Time) []Record {
	if floor == nil {
		return records
	}
	filtered := make([]Record, 0, len(records))
	for _, record := range records {
		if !record.Time.Before(*floor) {
			filtered = append(filtered, record)
		}
	}
	return filtered
}
