package routes

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"p2pexchange/core"
	"p2pexchange/core/events"
	"p2pexchange/crypto"
	"p2pexchange/native/admin"
	"p2pexchange/native/dispute"
	"p2pexchange/native/offer"
	"p2pexchange/native/reputation"
	"p2pexchange/native/rewards"
)

// requestError marks malformed input caught before the exchange is called.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// decodeBody reads a JSON object into dst. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return badRequest("invalid request body: %v", err)
	}
	if dec.More() {
		return badRequest("invalid request body: trailing data")
	}
	return nil
}

func parseAddress(field, value string) ([20]byte, error) {
	addr, err := crypto.ParseExchangeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, badRequest("%s: %v", field, err)
	}
	return addr, nil
}

func parseID(field, value string) ([32]byte, error) {
	var id [32]byte
	raw := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(value)), "0x")
	decoded, err := hex.DecodeString(raw)
	if err != nil || len(decoded) != len(id) {
		return id, badRequest("%s: expected 32 byte hex identifier", field)
	}
	copy(id[:], decoded)
	return id, nil
}

func parseAmount(field, value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, badRequest("%s: required", field)
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, badRequest("%s: invalid decimal amount %q", field, value)
	}
	return amount, nil
}

// --- request bodies ---

type authoritiesRequest struct {
	Secondary          []string `json:"secondary"`
	RequiredSignatures uint8    `json:"requiredSignatures"`
}

type createOfferRequest struct {
	Amount        string `json:"amount"`
	FiatAmount    uint64 `json:"fiatAmount"`
	FiatCurrency  string `json:"fiatCurrency"`
	PaymentMethod string `json:"paymentMethod"`
	CreatedAt     int64  `json:"createdAt,omitempty"`
}

func (req createOfferRequest) params() (offer.CreateParams, error) {
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return offer.CreateParams{}, err
	}
	return offer.CreateParams{
		Amount:        amount,
		FiatAmount:    req.FiatAmount,
		FiatCurrency:  req.FiatCurrency,
		PaymentMethod: req.PaymentMethod,
		CreatedAt:     req.CreatedAt,
	}, nil
}

type acceptRequest struct {
	Bond string `json:"bond"`
}

type disputeRequest struct {
	Reason string `json:"reason"`
}

type jurorsRequest struct {
	Jurors []string `json:"jurors"`
}

func (req jurorsRequest) jurors() ([dispute.JurorCount][20]byte, error) {
	var out [dispute.JurorCount][20]byte
	if len(req.Jurors) != dispute.JurorCount {
		return out, badRequest("jurors: exactly %d required", dispute.JurorCount)
	}
	for i, raw := range req.Jurors {
		addr, err := parseAddress(fmt.Sprintf("jurors[%d]", i), raw)
		if err != nil {
			return out, err
		}
		out[i] = addr
	}
	return out, nil
}

type evidenceRequest struct {
	URL string `json:"url"`
}

type voteRequest struct {
	ForBuyer *bool `json:"forBuyer"`
}

type outcomeRequest struct {
	Successful bool `json:"successful"`
	Disputed   bool `json:"disputed"`
	Won        bool `json:"won"`
}

func (req outcomeRequest) outcome() reputation.Outcome {
	return reputation.Outcome{Successful: req.Successful, Disputed: req.Disputed, Won: req.Won}
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// --- responses ---

type registryJSON struct {
	Primary            string   `json:"primary"`
	Secondary          []string `json:"secondary"`
	RequiredSignatures uint8    `json:"requiredSignatures"`
	LastRewardUpdate   int64    `json:"lastRewardUpdate"`
	InitializedAt      int64    `json:"initializedAt"`
}

func newRegistryJSON(r *admin.Registry) registryJSON {
	out := registryJSON{
		Primary:            crypto.FormatAddress(r.Primary),
		Secondary:          make([]string, 0, len(r.Secondary)),
		RequiredSignatures: r.RequiredSignatures,
		LastRewardUpdate:   r.LastRewardUpdate,
		InitializedAt:      r.InitializedAt,
	}
	for _, s := range r.Secondary {
		out.Secondary = append(out.Secondary, crypto.FormatAddress(s))
	}
	return out
}

type offerJSON struct {
	ID             string `json:"id"`
	Seller         string `json:"seller"`
	Buyer          string `json:"buyer,omitempty"`
	Amount         string `json:"amount"`
	FiatAmount     uint64 `json:"fiatAmount"`
	FiatCurrency   string `json:"fiatCurrency"`
	PaymentMethod  string `json:"paymentMethod"`
	SecurityBond   string `json:"securityBond"`
	Status         string `json:"status"`
	DisputeID      string `json:"disputeId,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
	ListedAt       int64  `json:"listedAt,omitempty"`
	AcceptedAt     int64  `json:"acceptedAt,omitempty"`
	FiatSentAt     int64  `json:"fiatSentAt,omitempty"`
	FiatReceivedAt int64  `json:"fiatReceivedAt,omitempty"`
	CompletedAt    int64  `json:"completedAt,omitempty"`
	UpdatedAt      int64  `json:"updatedAt"`
}

func newOfferJSON(o *offer.Offer) offerJSON {
	out := offerJSON{
		ID:             events.FormatID(o.ID),
		Seller:         crypto.FormatAddress(o.Seller),
		Amount:         events.FormatAmount(o.Amount),
		FiatAmount:     o.FiatAmount,
		FiatCurrency:   o.FiatCurrency,
		PaymentMethod:  o.PaymentMethod,
		SecurityBond:   events.FormatAmount(o.SecurityBond),
		Status:         o.Status.String(),
		CreatedAt:      o.CreatedAt,
		ListedAt:       o.ListedAt,
		AcceptedAt:     o.AcceptedAt,
		FiatSentAt:     o.FiatSentAt,
		FiatReceivedAt: o.FiatReceivedAt,
		CompletedAt:    o.CompletedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	if o.HasBuyer() {
		out.Buyer = crypto.FormatAddress(o.Buyer)
	}
	if o.DisputeID != ([32]byte{}) {
		out.DisputeID = events.FormatID(o.DisputeID)
	}
	return out
}

type escrowJSON struct {
	OfferID   string `json:"offerId"`
	Vault     string `json:"vault"`
	Funder    string `json:"funder"`
	Reserve   string `json:"reserve"`
	Deposited string `json:"deposited"`
	Balance   string `json:"balance"`
	Closed    bool   `json:"closed"`
	CreatedAt int64  `json:"createdAt"`
	ClosedAt  int64  `json:"closedAt,omitempty"`
}

func newEscrowJSON(v *core.EscrowView) escrowJSON {
	return escrowJSON{
		OfferID:   events.FormatID(v.Vault.OfferID),
		Vault:     crypto.FormatAddress(v.Vault.Address),
		Funder:    crypto.FormatAddress(v.Vault.Funder),
		Reserve:   events.FormatAmount(v.Vault.Reserve),
		Deposited: events.FormatAmount(v.Vault.Deposited),
		Balance:   events.FormatAmount(v.Balance),
		Closed:    v.Vault.Closed,
		CreatedAt: v.Vault.CreatedAt,
		ClosedAt:  v.Vault.ClosedAt,
	}
}

type evidenceJSON struct {
	Submitter   string `json:"submitter"`
	URL         string `json:"url"`
	SubmittedAt uint64 `json:"submittedAt"`
}

type disputeJSON struct {
	ID               string         `json:"id"`
	OfferID          string         `json:"offerId"`
	Initiator        string         `json:"initiator"`
	Respondent       string         `json:"respondent"`
	Buyer            string         `json:"buyer"`
	Seller           string         `json:"seller"`
	Reason           string         `json:"reason"`
	Jurors           []string       `json:"jurors,omitempty"`
	Evidence         []evidenceJSON `json:"evidence"`
	VotesForBuyer    uint8          `json:"votesForBuyer"`
	VotesForSeller   uint8          `json:"votesForSeller"`
	Status           string         `json:"status"`
	Outcome          string         `json:"outcome"`
	CreatedAt        int64          `json:"createdAt"`
	EvidenceDeadline int64          `json:"evidenceDeadline"`
	VotingDeadline   int64          `json:"votingDeadline"`
	ResolvedAt       int64          `json:"resolvedAt,omitempty"`
}

func newDisputeJSON(d *dispute.Dispute) disputeJSON {
	out := disputeJSON{
		ID:               events.FormatID(d.ID),
		OfferID:          events.FormatID(d.OfferID),
		Initiator:        crypto.FormatAddress(d.Initiator),
		Respondent:       crypto.FormatAddress(d.Respondent),
		Buyer:            crypto.FormatAddress(d.Buyer),
		Seller:           crypto.FormatAddress(d.Seller),
		Reason:           d.Reason,
		Evidence:         make([]evidenceJSON, 0, len(d.Evidence)),
		VotesForBuyer:    d.VotesForBuyer,
		VotesForSeller:   d.VotesForSeller,
		Status:           d.Status.String(),
		Outcome:          d.Outcome.String(),
		CreatedAt:        d.CreatedAt,
		EvidenceDeadline: d.EvidenceDeadline,
		VotingDeadline:   d.VotingDeadline,
		ResolvedAt:       d.ResolvedAt,
	}
	if d.Jurors[0] != ([20]byte{}) {
		for _, juror := range d.Jurors {
			out.Jurors = append(out.Jurors, crypto.FormatAddress(juror))
		}
	}
	for _, ev := range d.Evidence {
		out.Evidence = append(out.Evidence, evidenceJSON{
			Submitter:   crypto.FormatAddress(ev.Submitter),
			URL:         ev.URL,
			SubmittedAt: ev.SubmittedAt,
		})
	}
	return out
}

type voteJSON struct {
	DisputeID string `json:"disputeId"`
	Juror     string `json:"juror"`
	ForBuyer  bool   `json:"forBuyer"`
	CastAt    int64  `json:"castAt"`
}

func newVoteJSON(v *dispute.Vote) voteJSON {
	return voteJSON{
		DisputeID: events.FormatID(v.DisputeID),
		Juror:     crypto.FormatAddress(v.Juror),
		ForBuyer:  v.ForBuyer,
		CastAt:    v.CastAt,
	}
}

type voteResponse struct {
	Dispute disputeJSON `json:"dispute"`
	Vote    voteJSON    `json:"vote"`
}

type reputationJSON struct {
	User             string `json:"user"`
	SuccessfulTrades uint32 `json:"successfulTrades"`
	DisputedTrades   uint32 `json:"disputedTrades"`
	DisputesWon      uint32 `json:"disputesWon"`
	DisputesLost     uint32 `json:"disputesLost"`
	Rating           uint8  `json:"rating"`
	CreatedAt        int64  `json:"createdAt"`
	LastUpdated      int64  `json:"lastUpdated"`
}

func newReputationJSON(r *reputation.Record) reputationJSON {
	return reputationJSON{
		User:             crypto.FormatAddress(r.User),
		SuccessfulTrades: r.SuccessfulTrades,
		DisputedTrades:   r.DisputedTrades,
		DisputesWon:      r.DisputesWon,
		DisputesLost:     r.DisputesLost,
		Rating:           r.Rating,
		CreatedAt:        r.CreatedAt,
		LastUpdated:      r.LastUpdated,
	}
}

type rewardsJSON struct {
	User          string `json:"user"`
	TradeEvents   uint64 `json:"tradeEvents"`
	VoteEvents    uint64 `json:"voteEvents"`
	TradingVolume string `json:"tradingVolume"`
	LastTradeAt   int64  `json:"lastTradeAt,omitempty"`
	LastVoteAt    int64  `json:"lastVoteAt,omitempty"`
}

func newRewardsJSON(a *rewards.Account) rewardsJSON {
	return rewardsJSON{
		User:          crypto.FormatAddress(a.User),
		TradeEvents:   a.TradeEvents,
		VoteEvents:    a.VoteEvents,
		TradingVolume: events.FormatAmount(a.TradingVolume),
		LastTradeAt:   a.LastTradeAt,
		LastVoteAt:    a.LastVoteAt,
	}
}

type accountJSON struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}
