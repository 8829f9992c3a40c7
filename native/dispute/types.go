package dispute

import (
	"fmt"
)

const (
	// JurorCount is the size of every jury.
	JurorCount = 3
	// MajorityVotes ends voting as soon as one side reaches it.
	MajorityVotes = 2
	// MaxReasonLength bounds the dispute reason.
	MaxReasonLength = 200
	// MaxEvidenceURLLength bounds each evidence link.
	MaxEvidenceURLLength = 300
	// MaxEvidencePerParty bounds how many links each party may submit.
	MaxEvidencePerParty = 5

	// DefaultEvidenceWindow is how long parties may submit evidence.
	DefaultEvidenceWindow int64 = 48 * 60 * 60
	// DefaultVotingWindow is how long jurors may vote.
	DefaultVotingWindow int64 = 7 * 24 * 60 * 60
)

// Status is the arbitration phase of a dispute.
type Status uint8

const (
	StatusOpened Status = iota
	StatusJurorsAssigned
	StatusVoting
	StatusVerdictReached
	StatusResolved
)

func (s Status) String() string {
	switch s {
	case StatusOpened:
		return "opened"
	case StatusJurorsAssigned:
		return "jurors_assigned"
	case StatusVoting:
		return "voting"
	case StatusVerdictReached:
		return "verdict_reached"
	case StatusResolved:
		return "resolved"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Outcome records how a resolved dispute ended.
type Outcome uint8

const (
	OutcomeNone Outcome = iota
	OutcomeBuyer
	OutcomeSeller
	OutcomeRefunded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeBuyer:
		return "buyer"
	case OutcomeSeller:
		return "seller"
	case OutcomeRefunded:
		return "refunded"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// Evidence is one link submitted by a party.
type Evidence struct {
	Submitter   [20]byte
	URL         string
	SubmittedAt uint64
}

// Dispute is the arbitration record of one offer.
type Dispute struct {
	ID               [32]byte
	OfferID          [32]byte
	Initiator        [20]byte
	Respondent       [20]byte
	Buyer            [20]byte
	Seller           [20]byte
	Reason           string
	Jurors           [JurorCount][20]byte
	Evidence         []Evidence
	VotesForBuyer    uint8
	VotesForSeller   uint8
	Status           Status
	Outcome          Outcome
	CreatedAt        int64
	EvidenceDeadline int64
	VotingDeadline   int64
	ResolvedAt       int64
}

// Clone returns a deep copy of the dispute.
func (d *Dispute) Clone() *Dispute {
	if d == nil {
		return nil
	}
	out := *d
	out.Evidence = append([]Evidence(nil), d.Evidence...)
	return &out
}

// IsParty reports whether addr is the initiator or the respondent.
func (d *Dispute) IsParty(addr [20]byte) bool {
	return d != nil && addr != ([20]byte{}) && (addr == d.Initiator || addr == d.Respondent)
}

// IsJuror reports whether addr sits on the jury.
func (d *Dispute) IsJuror(addr [20]byte) bool {
	if d == nil || addr == ([20]byte{}) {
		return false
	}
	for _, juror := range d.Jurors {
		if juror == addr {
			return true
		}
	}
	return false
}

// TotalVotes returns the number of ballots cast.
func (d *Dispute) TotalVotes() int {
	return int(d.VotesForBuyer) + int(d.VotesForSeller)
}

// Tied reports whether neither side leads.
func (d *Dispute) Tied() bool { return d.VotesForBuyer == d.VotesForSeller }

// EvidenceCount returns how many items submitter has filed.
func (d *Dispute) EvidenceCount(submitter [20]byte) int {
	n := 0
	for _, item := range d.Evidence {
		if item.Submitter == submitter {
			n++
		}
	}
	return n
}

// Vote is one juror's ballot. At most one exists per (dispute, juror).
type Vote struct {
	DisputeID [32]byte
	Juror     [20]byte
	ForBuyer  bool
	CastAt    int64
}

type storedDispute struct {
	ID               [32]byte
	OfferID          [32]byte
	Initiator        [20]byte
	Respondent       [20]byte
	Buyer            [20]byte
	Seller           [20]byte
	Reason           string
	Jurors           [][20]byte
	Evidence         []Evidence
	VotesForBuyer    uint8
	VotesForSeller   uint8
	Status           uint8
	Outcome          uint8
	CreatedAt        uint64
	EvidenceDeadline uint64
	VotingDeadline   uint64
	ResolvedAt       uint64
}

func newStoredDispute(d *Dispute) *storedDispute {
	return &storedDispute{
		ID:               d.ID,
		OfferID:          d.OfferID,
		Initiator:        d.Initiator,
		Respondent:       d.Respondent,
		Buyer:            d.Buyer,
		Seller:           d.Seller,
		Reason:           d.Reason,
		Jurors:           d.Jurors[:],
		Evidence:         append([]Evidence(nil), d.Evidence...),
		VotesForBuyer:    d.VotesForBuyer,
		VotesForSeller:   d.VotesForSeller,
		Status:           uint8(d.Status),
		Outcome:          uint8(d.Outcome),
		CreatedAt:        uint64(d.CreatedAt),
		EvidenceDeadline: uint64(d.EvidenceDeadline),
		VotingDeadline:   uint64(d.VotingDeadline),
		ResolvedAt:       uint64(d.ResolvedAt),
	}
}

func (s *storedDispute) toDispute() *Dispute {
	d := &Dispute{
		ID:               s.ID,
		OfferID:          s.OfferID,
		Initiator:        s.Initiator,
		Respondent:       s.Respondent,
		Buyer:            s.Buyer,
		Seller:           s.Seller,
		Reason:           s.Reason,
		Evidence:         append([]Evidence(nil), s.Evidence...),
		VotesForBuyer:    s.VotesForBuyer,
		VotesForSeller:   s.VotesForSeller,
		Status:           Status(s.Status),
		Outcome:          Outcome(s.Outcome),
		CreatedAt:        int64(s.CreatedAt),
		EvidenceDeadline: int64(s.EvidenceDeadline),
		VotingDeadline:   int64(s.VotingDeadline),
		ResolvedAt:       int64(s.ResolvedAt),
	}
	copy(d.Jurors[:], s.Jurors)
	return d
}

type storedVote struct {
	DisputeID [32]byte
	Juror     [20]byte
	ForBuyer  bool
	CastAt    uint64
}
