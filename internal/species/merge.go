package species

// Merger accumulates records across queries, keeping the first record seen
// for each key in arrival order. The zero value is ready to use.
type Merger struct {
	seen    map[Key]struct{}
	records []Record
}

// Add folds records into the set and returns how many were new.
func (m *Merger) Add(records []Record) int {
	if m.seen == nil {
		m.seen = make(map[Key]struct{})
	}
	added := 0
	for _, record := range records {
		key := record.Key()
		if _, ok := m.seen[key]; ok {
			continue
		}
		m.seen[key] = struct{}{}
		m.records = append(m.records, record)
		added++
	}
	return added
}

// Len returns the number of distinct records.
func (m *Merger) Len() int {
	return len(m.records)
}

// Records returns a copy of the merged records in first-seen order.
func (m *Merger) Records() []Record {
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Merge deduplicates lists by (chinese, scientific) preserving first-seen
// order across the lists in call order.
func Merge(lists ...[]Record) []Record {
	var m Merger
	for _, list := range lists {
		m.Add(list)
	}
	return m.Records()
}
