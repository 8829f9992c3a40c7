package eventlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"p2pexchange/core/events"
	"p2pexchange/core/types"
)

// bareEvent carries no attribute payload and is not stored.
type bareEvent struct{}

func (bareEvent) EventType() string { return "bare" }

var _ events.Event = bareEvent{}

func TestAppendAndQuery(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	offerID := "0xAB"
	store.Emit(&types.Event{Type: "offer.created", Attributes: map[string]string{"id": offerID}})
	store.Emit(&types.Event{Type: "escrow.funded", Attributes: map[string]string{"offerId": offerID, "amount": "10"}})
	store.Emit(&types.Event{Type: "reputation.updated", Attributes: map[string]string{"user": "p2p1xyz"}})
	store.Emit(bareEvent{})

	all, err := store.Query(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "offer.created", all[0].Type)
	require.Less(t, all[0].Sequence, all[1].Sequence)

	byOffer, err := store.Query(context.Background(), Filter{OfferID: offerID})
	require.NoError(t, err)
	require.Len(t, byOffer, 2)
	require.Equal(t, "0xab", byOffer[1].OfferID)
	require.Equal(t, "10", byOffer[1].Attributes["amount"])

	byType, err := store.Query(context.Background(), Filter{Type: "reputation.updated"})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	require.Empty(t, byType[0].OfferID)

	after, err := store.Query(context.Background(), Filter{After: all[0].Sequence, Limit: 1})
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.Equal(t, all[1].Sequence, after[0].Sequence)
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	store, err := Open(path)
	require.NoError(t, err)
	_, err = store.Append(context.Background(), &types.Event{Type: "transfer.native", Attributes: map[string]string{}})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	records, err := reopened.Query(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, err = Open("  ")
	require.Error(t, err)
}
