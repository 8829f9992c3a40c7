package reputation

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"

	exchangeerrors "p2pexchange/core/errors"
	"p2pexchange/core/events"
	"p2pexchange/native/admin"
)

type mockStorage struct {
	kv map[string][]byte
}

func newMockStorage() *mockStorage { return &mockStorage{kv: make(map[string][]byte)} }

func (m *mockStorage) KVGet(key []byte, out interface{}) (bool, error) {
	data, ok := m.kv[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	return true, rlp.DecodeBytes(data, out)
}

func (m *mockStorage) KVPut(key []byte, value interface{}) error {
	data, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.kv[string(key)] = data
	return nil
}

type staticAuthorizer struct {
	primary [20]byte
}

func (s staticAuthorizer) Authorize(approvals admin.Approvals) (*admin.Registry, error) {
	if !approvals.Contains(s.primary) {
		return nil, exchangeerrors.ErrUnauthorized
	}
	return &admin.Registry{Primary: s.primary, RequiredSignatures: 1}, nil
}

var (
	authority = [20]byte{0xA0}
	user      = [20]byte{0x01}
)

func newTestEngine() (*Engine, *events.Buffer) {
	buf := &events.Buffer{}
	engine := NewEngine(newMockStorage())
	engine.SetAuthorizer(staticAuthorizer{primary: authority})
	engine.SetEmitter(buf)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	return engine, buf
}

func TestComputeRating(t *testing.T) {
	cases := []struct {
		successful, disputed, won uint32
		want                      uint8
	}{
		{0, 0, 0, 100},
		{10, 0, 0, 100},
		{0, 1, 0, 0},
		{0, 1, 1, 30},
		{1, 1, 1, 65},
		{3, 1, 0, 52},
		{math.MaxUint32, math.MaxUint32, math.MaxUint32, 65},
		{1, 2, 5, 53},
	}
	for _, tc := range cases {
		if got := ComputeRating(tc.successful, tc.disputed, tc.won); got != tc.want {
			t.Fatalf("rating(%d,%d,%d) = %d, want %d", tc.successful, tc.disputed, tc.won, got, tc.want)
		}
	}
}

func TestCreateOnce(t *testing.T) {
	engine, buf := newTestEngine()
	record, err := engine.Create(user)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if record.Rating != InitialRating || record.SuccessfulTrades != 0 {
		t.Fatalf("unexpected record %+v", record)
	}
	if _, err := engine.Create(user); !errors.Is(err, exchangeerrors.ErrAlreadyInitialized) {
		t.Fatalf("expected AlreadyInitialized, got %v", err)
	}
	if evts := buf.Events(); len(evts) != 1 || evts[0].EventType() != EventTypeReputationCreated {
		t.Fatalf("unexpected events %+v", evts)
	}
}

func TestUpdateRequiresAdmin(t *testing.T) {
	engine, _ := newTestEngine()
	if _, err := engine.Update(admin.Single(user), user, Outcome{Successful: true}); !errors.Is(err, exchangeerrors.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	record, err := engine.Update(admin.Single(authority), user, Outcome{Disputed: true, Won: true})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if record.DisputedTrades != 1 || record.DisputesWon != 1 || record.Rating != 30 {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestRatingBoundedOverManyUpdates(t *testing.T) {
	engine, _ := newTestEngine()
	rng := rand.New(rand.NewSource(7))
	var successes uint32
	for i := 0; i < 500; i++ {
		outcome := Outcome{
			Successful: rng.Intn(2) == 0,
			Disputed:   rng.Intn(3) == 0,
			Won:        rng.Intn(2) == 0,
		}
		if outcome.Successful {
			successes++
		}
		record, err := engine.Record(user, outcome)
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if record.Rating > MaxRating {
			t.Fatalf("rating %d out of bounds", record.Rating)
		}
		if record.SuccessfulTrades != successes {
			t.Fatalf("successful trades %d, want %d", record.SuccessfulTrades, successes)
		}
		if record.DisputesWon+record.DisputesLost != record.DisputedTrades {
			t.Fatalf("dispute counters inconsistent: %+v", record)
		}
	}
}

func TestCountersSaturate(t *testing.T) {
	record := &Record{SuccessfulTrades: math.MaxUint32, DisputedTrades: math.MaxUint32, DisputesLost: math.MaxUint32}
	record.Apply(Outcome{Successful: true, Disputed: true})
	if record.SuccessfulTrades != math.MaxUint32 || record.DisputedTrades != math.MaxUint32 || record.DisputesLost != math.MaxUint32 {
		t.Fatalf("counters wrapped: %+v", record)
	}
}
