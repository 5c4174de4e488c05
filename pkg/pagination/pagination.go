package pagination

const (
	// DefaultTake is the standard page size for commission listings.
	DefaultTake = 20
	// DefaultAuditTake is the standard page size for audit queries.
	DefaultAuditTake = 50
	// MaxTake caps how many rows any listing can request.
	MaxTake = 100
)

// Params holds take/skip pagination inputs from controllers or services.
type Params struct {
	Take int
	Skip int
}

// NormalizeTake enforces fallback as default and MaxTake as the ceiling.
func NormalizeTake(take, fallback int) int {
	if fallback <= 0 || fallback > MaxTake {
		fallback = DefaultTake
	}
	if take <= 0 {
		return fallback
	}
	if take > MaxTake {
		return MaxTake
	}
	return take
}

// NormalizeSkip clamps negative offsets to zero.
func NormalizeSkip(skip int) int {
	if skip < 0 {
		return 0
	}
	return skip
}

// Normalize applies NormalizeTake and NormalizeSkip.
func (p Params) Normalize(fallback int) Params {
	return Params{Take: NormalizeTake(p.Take, fallback), Skip: NormalizeSkip(p.Skip)}
}

// Page is a window of rows plus the total matching count.
type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Take  int   `json:"take"`
	Skip  int   `json:"skip"`
}
