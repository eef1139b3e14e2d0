package devicelist

import "github.com/gobuffalo/nulls"

// ApplyEvent applies the given DiscoveryEvent to the current list of live
// records and returns the new list. The passed slice is never modified.
//
// Adding a device that is already in the list returns the list unchanged.
// Removing a device that is not in the list is a no-op as well.
func ApplyEvent(current []Record, e DiscoveryEvent, config Config) []Record {
	switch e.Kind {
	case EventKindAdd:
		if indexOf(current, e.ID) >= 0 {
			return current
		}
		record := Record{
			ID:      e.ID,
			Name:    stringOrEmpty(e.Name),
			ModelID: config.fallbackModelID(),
			Wired:   IsWired(e.ID, config.DebugTransportWired),
		}
		if e.ModelID.Valid && e.ModelID.String != "" {
			record.ModelID = e.ModelID.String
		}
		updated := make([]Record, 0, len(current)+1)
		updated = append(updated, current...)
		return append(updated, record)
	case EventKindRemove:
		if indexOf(current, e.ID) < 0 {
			return current
		}
		updated := make([]Record, 0, len(current))
		for _, record := range current {
			if record.ID != e.ID {
				updated = append(updated, record)
			}
		}
		return updated
	}
	return current
}

// Merge combines the live records with the known ones. Live records come
// first, followed by known devices that are not live. Known devices are always
// wireless and use the fallback model id.
func Merge(live []Record, known []KnownDevice, config Config) []Record {
	combined := make([]Record, 0, len(live)+len(known))
	seen := make(map[string]struct{}, len(live)+len(known))
	for _, record := range live {
		if _, ok := seen[record.ID]; ok {
			continue
		}
		seen[record.ID] = struct{}{}
		combined = append(combined, record)
	}
	for _, device := range known {
		if _, ok := seen[device.ID]; ok {
			continue
		}
		seen[device.ID] = struct{}{}
		combined = append(combined, Record{
			ID:      device.ID,
			Name:    stringOrEmpty(device.Name),
			ModelID: config.fallbackModelID(),
			Wired:   false,
		})
	}
	return combined
}

// Partition splits the given records into wireless and wired ones while
// keeping the relative order within each group.
func Partition(combined []Record) (wireless []Record, wired []Record) {
	wireless = make([]Record, 0)
	wired = make([]Record, 0)
	for _, record := range combined {
		if record.Wired {
			wired = append(wired, record)
		} else {
			wireless = append(wireless, record)
		}
	}
	return wireless, wired
}

// indexOf returns the index of the record with the given id or -1 if not found.
func indexOf(records []Record, id string) int {
	for i, record := range records {
		if record.ID == id {
			return i
		}
	}
	return -1
}

func stringOrEmpty(s nulls.String) string {
	if !s.Valid {
		return ""
	}
	return s.String
}
