package chat

import "sort"

// Merge reconciles the visible message list with a batch from the server.
//
// Temporary (optimistic) entries in existing are dropped first: confirmed
// server data from the same send supersedes them. The lists are then
// concatenated, de-duplicated by id with the first occurrence winning
// (existing entries are scanned before incoming, so a confirmed message is
// never displaced by a later duplicate), and stably sorted ascending by
// timestamp so equal stamps keep their relative input order.
//
// Merge is idempotent and converges under repeated application of the
// same batch, which makes poll/send interleavings safe to re-run.
func Merge(existing, incoming []Message) []Message {
	combined := make([]Message, 0, len(existing)+len(incoming))
	for _, m := range existing {
		if IsTemp(m.ID) {
			continue
		}
		combined = append(combined, m)
	}
	combined = append(combined, incoming...)

	seen := make(map[string]bool, len(combined))
	unique := combined[:0]
	for _, m := range combined {
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		unique = append(unique, m)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Stamp.Before(unique[j].Stamp)
	})
	return unique
}
