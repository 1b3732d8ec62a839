package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.stakecore.dev/core/bus"
	"go.stakecore.dev/core/consensus"
	"go.stakecore.dev/core/types"
)

// testConfig uses a zero eligibility target so every miner is eligible to
// mint immediately, and a small mining quantum so findProof yields often
// enough for deterministic interleaving in tests.
func testConfig() Config {
	return Config{
		NumRoundsMining:              64,
		MintEligibilityDifficulty:    0,
		TimeUntilEligibilityDecrease: time.Millisecond,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met before timeout")
}

func TestMinerMintsAndCreditsItself(t *testing.T) {
	b := bus.New()
	registry := NewRegistry()

	var addr types.Address
	bootstrap := NewClient("seed", b, nil)
	addr = bootstrap.Wallet.MakeAddress()
	genesis := consensus.MakeGenesisBlock(
		[]consensus.Balance{{Address: addr, Amount: 1000}},
		[]consensus.Receiver{bootstrap},
	)
	bootstrap.Stop()

	m := NewMiner("solo", b, nil, testConfig(), genesis, registry)
	defer m.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return m.Wallet.Balance() >= consensus.BaseReward
	})
}

func TestTwoMinersConverge(t *testing.T) {
	b := bus.New()
	registry := NewRegistry()

	bootstrapA := NewClient("seedA", b, nil)
	bootstrapB := NewClient("seedB", b, nil)
	addrA := bootstrapA.Wallet.MakeAddress()
	addrB := bootstrapB.Wallet.MakeAddress()
	genesis := consensus.MakeGenesisBlock(
		[]consensus.Balance{{Address: addrA, Amount: 500}, {Address: addrB, Amount: 500}},
		[]consensus.Receiver{bootstrapA, bootstrapB},
	)
	bootstrapA.Stop()
	bootstrapB.Stop()

	a := NewMiner("a", b, nil, testConfig(), genesis, registry)
	defer a.Stop()
	bm := NewMiner("b", b, nil, testConfig(), genesis, registry)
	defer bm.Stop()

	waitFor(t, 3*time.Second, func() bool {
		return a.Wallet.Balance() > 500 && bm.Wallet.Balance() > 500
	})
}

func TestPostTransactionIsAdmittedIntoNextBlock(t *testing.T) {
	b := bus.New()
	registry := NewRegistry()

	bootstrap := NewClient("seed", b, nil)
	addr := bootstrap.Wallet.MakeAddress()
	genesis := consensus.MakeGenesisBlock(
		[]consensus.Balance{{Address: addr, Amount: 1000}},
		[]consensus.Receiver{bootstrap},
	)
	bootstrap.Stop()

	m := NewMiner("solo", b, nil, testConfig(), genesis, registry)
	defer m.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return m.Wallet.Balance() >= consensus.BaseReward
	})

	payee := NewClient("payee", b, nil)
	defer payee.Stop()
	payeeAddr := payee.Wallet.MakeAddress()

	_, err := m.PostTransaction([]types.Output{{Amount: 5, Address: payeeAddr}})
	require.NoError(t, err)

	waitFor(t, 2*time.Second, func() bool {
		return payee.Wallet.Balance() >= 5
	})
}
