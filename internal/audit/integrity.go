package audit

import "github.com/angelmondragon/brokerledger/pkg/db/models"

// IntegrityReport summarizes a recomputation of the audit chain.
type IntegrityReport struct {
	OK              bool    `json:"ok"`
	Checked         int     `json:"checked"`
	FirstID         int64   `json:"firstId,omitempty"`
	LastID          int64   `json:"lastId,omitempty"`
	MismatchedRows  []int64 `json:"mismatchedRows"`
	BrokenPrevRows  []int64 `json:"brokenPrevRows"`
	MissingHashRows []int64 `json:"missingHashRows"`
}

// VerifyChain recomputes every row's hash and checks each prevHash against
// the stored hash of the row before it. predecessor is the row preceding
// rows[0], or nil when rows start at genesis.
func VerifyChain(rows []models.AuditLog, predecessor *models.AuditLog) IntegrityReport {
	report := IntegrityReport{
		MismatchedRows:  []int64{},
		BrokenPrevRows:  []int64{},
		MissingHashRows: []int64{},
	}

	var expectedPrev *string
	// lenient is set when the previous row had no hash; the next link may
	// then cite either nothing or the last hash seen before the gap.
	lenient := false
	var lastKnown *string
	if predecessor != nil {
		expectedPrev = predecessor.Hash
		lastKnown = predecessor.Hash
		lenient = predecessor.Hash == nil
	}

	for _, row := range rows {
		report.Checked++
		if report.FirstID == 0 {
			report.FirstID = row.ID
		}
		report.LastID = row.ID

		if row.Hash == nil || *row.Hash == "" {
			report.MissingHashRows = append(report.MissingHashRows, row.ID)
			expectedPrev = nil
			lenient = true
			continue
		}

		recomputed, err := ComputeHash(row)
		if err != nil || recomputed != *row.Hash {
			report.MismatchedRows = append(report.MismatchedRows, row.ID)
		}

		if !linkMatches(row.PrevHash, expectedPrev, lastKnown, lenient) {
			report.BrokenPrevRows = append(report.BrokenPrevRows, row.ID)
		}

		expectedPrev = row.Hash
		lastKnown = row.Hash
		lenient = false
	}

	report.OK = len(report.MismatchedRows) == 0 && len(report.BrokenPrevRows) == 0
	return report
}

func linkMatches(prev, expected, lastKnown *string, lenient bool) bool {
	if equalPtr(prev, expected) {
		return true
	}
	return lenient && (prev == nil || equalPtr(prev, lastKnown))
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
