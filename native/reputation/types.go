package reputation

import "math"

const (
	// InitialRating is assigned to every new record.
	InitialRating uint8 = 100
	// MaxRating is the upper bound of the rating scale.
	MaxRating uint8 = 100

	successWeight  = 70
	disputeWeight  = 30
	weightDivisor  = 100
	percentScale   = 100
	noDisputesRate = 100
)

// Record summarises one user's trading history.
type Record struct {
	User             [20]byte
	SuccessfulTrades uint32
	DisputedTrades   uint32
	DisputesWon      uint32
	DisputesLost     uint32
	Rating           uint8
	CreatedAt        int64
	LastUpdated      int64
}

// Clone returns a copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}

// Outcome describes one trade result to fold into a record.
type Outcome struct {
	Successful bool
	Disputed   bool
	Won        bool
}

// Apply folds outcome into the counters and recomputes the rating. Counters
// saturate instead of wrapping.
func (r *Record) Apply(outcome Outcome) {
	if outcome.Successful {
		r.SuccessfulTrades = saturatingInc(r.SuccessfulTrades)
	}
	if outcome.Disputed {
		r.DisputedTrades = saturatingInc(r.DisputedTrades)
		if outcome.Won {
			r.DisputesWon = saturatingInc(r.DisputesWon)
		} else {
			r.DisputesLost = saturatingInc(r.DisputesLost)
		}
	}
	r.Rating = ComputeRating(r.SuccessfulTrades, r.DisputedTrades, r.DisputesWon)
}

// ComputeRating blends the success rate (70%) with the dispute win rate (30%).
// A user without disputes has a perfect win rate. The result is in [0, 100].
func ComputeRating(successful, disputed, won uint32) uint8 {
	total := uint64(successful) + uint64(disputed)
	if total == 0 {
		return InitialRating
	}
	successRate := uint64(successful) * percentScale / total
	winRate := uint64(noDisputesRate)
	if disputed > 0 {
		w := uint64(won)
		if w > uint64(disputed) {
			w = uint64(disputed)
		}
		winRate = w * percentScale / uint64(disputed)
	}
	rating := (successRate*successWeight + winRate*disputeWeight) / weightDivisor
	if rating > uint64(MaxRating) {
		rating = uint64(MaxRating)
	}
	return uint8(rating)
}

func saturatingInc(v uint32) uint32 {
	if v == math.MaxUint32 {
		return v
	}
	return v + 1
}

type storedRecord struct {
	User             [20]byte
	SuccessfulTrades uint32
	DisputedTrades   uint32
	DisputesWon      uint32
	DisputesLost     uint32
	Rating           uint8
	CreatedAt        uint64
	LastUpdated      uint64
}

func newStoredRecord(r *Record) *storedRecord {
	return &storedRecord{
		User:             r.User,
		SuccessfulTrades: r.SuccessfulTrades,
		DisputedTrades:   r.DisputedTrades,
		DisputesWon:      r.DisputesWon,
		DisputesLost:     r.DisputesLost,
		Rating:           r.Rating,
		CreatedAt:        uint64(r.CreatedAt),
		LastUpdated:      uint64(r.LastUpdated),
	}
}

func (s *storedRecord) toRecord() *Record {
	return &Record{
		User:             s.User,
		SuccessfulTrades: s.SuccessfulTrades,
		DisputedTrades:   s.DisputedTrades,
		DisputesWon:      s.DisputesWon,
		DisputesLost:     s.DisputesLost,
		Rating:           s.Rating,
		CreatedAt:        int64(s.CreatedAt),
		LastUpdated:      int64(s.LastUpdated),
	}
}
