package dataset

import (
	"math/rand/v2"

	"github.com/sells-group/openbuildings-cli/internal/model"
)

// Sample returns n records chosen uniformly at random, in input order. When
// the input has n records or fewer it is returned unchanged. The same seed
// always selects the same records.
func Sample(records []model.Building, n int, seed uint64) []model.Building {
	if n <= 0 {
		return nil
	}
	if len(records) <= n {
		return records
	}

	// Selection sampling: each record is kept with probability
	// remaining-needed / remaining-seen, giving exactly n picks.
	r := rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
	out := make([]model.Building, 0, n)
	need := n
	for i, b := range records {
		left := len(records) - i
		if r.IntN(left) < need {
			out = append(out, b)
			need--
			if need == 0 {
				break
			}
		}
	}
	return out
}
