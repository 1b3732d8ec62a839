package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.stakecore.dev/core/types"
)

func fixedNow(t time.Time) func() {
	old := now
	now = func() time.Time { return t }
	return func() { now = old }
}

func TestNewGenesisBlockMintsCoinbase(t *testing.T) {
	defer fixedNow(time.Unix(1000, 0))()
	var addr types.Address
	addr[0] = 1

	b := NewGenesisBlock(addr)
	require.Equal(t, GenesisPrevBlockHash, b.PrevBlockHash)
	require.Zero(t, b.ChainLength)
	require.Len(t, b.UTXOs[b.CoinbaseTX.ID()], 1)
	require.EqualValues(t, BaseReward, b.CoinbaseTX.Outputs[0].Amount)
}

func TestNewBlockExtendsParent(t *testing.T) {
	defer fixedNow(time.Unix(1000, 0))()
	var rewardA, rewardB types.Address
	rewardA[0], rewardB[0] = 1, 2

	parent := NewGenesisBlock(rewardA)
	mineProof(parent)

	child := NewBlock(rewardB, parent)
	require.Equal(t, parent.HashVal(), child.PrevBlockHash)
	require.EqualValues(t, 1, child.ChainLength)
	// child's view starts as a clone: parent's coinbase output is still there.
	require.Len(t, child.UTXOs[parent.CoinbaseTX.ID()], 1)
}

func TestAddTransactionCollectsFeeIntoCoinbase(t *testing.T) {
	defer fixedNow(time.Unix(1000, 0))()
	kp := types.GenerateKeypair()
	addr := types.CalcAddress(kp.Public)

	b := NewGenesisBlock(addr)
	coinbaseID := b.CoinbaseTX.ID()
	coinOut := b.CoinbaseTX.Outputs[0]

	spend := types.NewTransaction(
		[]types.Input{{
			TxID:        coinbaseID,
			OutputIndex: 0,
			PubKey:      kp.Public,
			Signature:   types.SignOutput(kp.Private, coinOut),
		}},
		[]types.Output{{Amount: coinOut.Amount - 5, Address: addr}},
	)

	require.True(t, b.WillAcceptTransaction(spend))
	require.NoError(t, b.AddTransaction(spend))
	require.EqualValues(t, BaseReward+5, b.CoinbaseTX.Outputs[0].Amount)
	require.Nil(t, b.UTXOs[coinbaseID][0])
	require.NotNil(t, b.UTXOs[spend.ID()][0])
}

func TestAddTransactionRejectsDoubleSpend(t *testing.T) {
	defer fixedNow(time.Unix(1000, 0))()
	kp := types.GenerateKeypair()
	addr := types.CalcAddress(kp.Public)
	b := NewGenesisBlock(addr)
	coinbaseID := b.CoinbaseTX.ID()
	coinOut := b.CoinbaseTX.Outputs[0]

	mk := func() *types.Transaction {
		return types.NewTransaction(
			[]types.Input{{
				TxID:        coinbaseID,
				OutputIndex: 0,
				PubKey:      kp.Public,
				Signature:   types.SignOutput(kp.Private, coinOut),
			}},
			[]types.Output{{Amount: coinOut.Amount, Address: addr}},
		)
	}
	first := mk()
	require.NoError(t, b.AddTransaction(first))

	second := mk()
	require.False(t, b.WillAcceptTransaction(second))
	require.ErrorIs(t, b.AddTransaction(second), ErrTransactionRejected)
}

type stubReceiver struct{ received []*types.Transaction }

func (s *stubReceiver) ReceiveOutput(txn *types.Transaction) { s.received = append(s.received, txn) }

func TestMakeGenesisBlockCreditsReceivers(t *testing.T) {
	defer fixedNow(time.Unix(1000, 0))()
	var addrA, addrB types.Address
	addrA[0], addrB[0] = 1, 2

	rA, rB := &stubReceiver{}, &stubReceiver{}
	b := MakeGenesisBlock(
		[]Balance{{Address: addrA, Amount: 100}, {Address: addrB, Amount: 200}},
		[]Receiver{rA, rB},
	)

	require.Len(t, b.Transactions, 2)
	require.Len(t, rA.received, 1)
	require.EqualValues(t, 100, rA.received[0].Outputs[0].Amount)
	require.Len(t, rB.received, 1)
	require.EqualValues(t, 200, rB.received[0].Outputs[0].Amount)
}

// mineProof is a test helper that brute-forces a valid proof for b so
// tests that need a sealed block (e.g. to compute HashVal for a child)
// don't depend on the real mining loop living in package node.
func mineProof(b *Block) {
	for !b.VerifyProof() {
		b.Proof++
	}
}

func TestVerifyProofAndHashValAgree(t *testing.T) {
	defer fixedNow(time.Unix(1000, 0))()
	var addr types.Address
	addr[0] = 1
	b := NewGenesisBlock(addr)
	mineProof(b)
	require.True(t, b.VerifyProof())

	before := b.HashVal()
	b.Proof++
	require.NotEqual(t, before, b.HashVal())
}
