package lending

// Reconcile scales the position's stored balances up to the market's current
// indexes and re-stamps the snapshots. It must run strictly after Accrue for
// the same market within an operation, and before the stored amounts are
// trusted for any read or mutation. Reconciling twice at the same index is a
// no-op.
func (p *Position) Reconcile(m *Market) {
	if p == nil || m == nil {
		return
	}
	p.EnsureDefaults()
	m.EnsureDefaults()

	if p.SupplyIndexSnapshot.IsZero() {
		p.SupplyIndexSnapshot = m.SupplyIndex.Clone()
	} else if p.SupplyIndexSnapshot.Cmp(m.SupplyIndex) != 0 {
		p.Supplied = scaleAmount(p.Supplied, p.SupplyIndexSnapshot, m.SupplyIndex)
		p.SupplyIndexSnapshot = m.SupplyIndex.Clone()
	}

	if p.BorrowIndexSnapshot.IsZero() {
		p.BorrowIndexSnapshot = m.BorrowIndex.Clone()
	} else if p.BorrowIndexSnapshot.Cmp(m.BorrowIndex) != 0 {
		p.Borrowed = scaleAmount(p.Borrowed, p.BorrowIndexSnapshot, m.BorrowIndex)
		p.BorrowIndexSnapshot = m.BorrowIndex.Clone()
	}
}
