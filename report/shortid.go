package report

// ShortIDLen computes the uniform prefix length for a set of case
// identifiers: the longest minimal-unique prefix across the set, never
// shorter than 3.
func ShortIDLen(ids []string) int {
	n := 3
	for i, id := range ids {
		for j, other := range ids {
			if i == j || id == other {
				continue
			}
			need := commonPrefixLen(id, other) + 1
			if need > n {
				n = need
			}
		}
	}
	return n
}

// ShortIDs maps each identifier to its uniformly truncated prefix.
// Distinct inputs produce distinct prefixes.
func ShortIDs(ids []string) map[string]string {
	n := ShortIDLen(ids)
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		out[id] = truncate(id, n)
	}
	return out
}

func truncate(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
