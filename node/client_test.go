package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.stakecore.dev/core/bus"
	"go.stakecore.dev/core/types"
)

func TestReceiveOutputIgnoresForeignAddresses(t *testing.T) {
	b := bus.New()
	c := NewClient("c", b, nil)
	defer c.Stop()

	var foreign types.Address
	foreign[0] = 0x42
	txn := types.NewTransaction(nil, []types.Output{{Amount: 10, Address: foreign}})

	c.ReceiveOutput(txn)
	require.Zero(t, c.Wallet.Balance())
}

func TestReceiveOutputCreditsOwnAddress(t *testing.T) {
	b := bus.New()
	c := NewClient("c", b, nil)
	defer c.Stop()

	addr := c.Wallet.MakeAddress()
	txn := types.NewTransaction(nil, []types.Output{{Amount: 10, Address: addr}})

	c.ReceiveOutput(txn)
	require.EqualValues(t, 10, c.Wallet.Balance())
}

func TestPostTransactionFailsWithoutFunds(t *testing.T) {
	b := bus.New()
	c := NewClient("c", b, nil)
	defer c.Stop()

	addr := c.Wallet.MakeAddress()
	_, err := c.PostTransaction([]types.Output{{Amount: 100, Address: addr}})
	require.Error(t, err)
}

func TestPostTransactionBroadcastsToOtherSubscribers(t *testing.T) {
	bs := bus.New()
	sender := NewClient("sender", bs, nil)
	defer sender.Stop()
	addr := sender.Wallet.MakeAddress()
	sender.ReceiveOutput(types.NewTransaction(nil, []types.Output{{Amount: 20, Address: addr}}))

	var seen []*types.Transaction
	observer := bs.Subscribe()
	observer.On(bus.PostTransaction, func(payload any) {
		seen = append(seen, payload.(*types.Transaction))
	})

	payee := NewClient("payee", bs, nil)
	defer payee.Stop()
	payeeAddr := payee.Wallet.MakeAddress()

	_, err := sender.PostTransaction([]types.Output{{Amount: 5, Address: payeeAddr}})
	require.NoError(t, err)

	deadline := time.Now().Add(time.Second)
	for len(seen) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Len(t, seen, 1)
}
