package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.stakecore.dev/core/bus"
	"go.stakecore.dev/core/consensus"
	"go.stakecore.dev/core/types"
)

func TestBin16PacksLeadingBytes(t *testing.T) {
	require.EqualValues(t, 0x1234, bin16([]byte{0x12, 0x34, 0x56}))
	require.EqualValues(t, 0x1200, bin16([]byte{0x12}))
	require.EqualValues(t, 0, bin16(nil))
}

func TestMatchingPrefixBits(t *testing.T) {
	require.Equal(t, 16, matchingPrefixBits(0xABCD, 0xABCD))
	require.Equal(t, 0, matchingPrefixBits(0x0000, 0x8000))
	require.Equal(t, 15, matchingPrefixBits(0x0001, 0x0000))
}

func TestIsEligibleToMintRespectsTarget(t *testing.T) {
	var pub [32]byte
	pub[0] = 0xF0
	var hash [32]byte
	hash[0] = 0xF0

	require.True(t, isEligibleToMint(pub, consensus.BlockID(hash), 4))
	hash[0] = 0x00
	require.False(t, isEligibleToMint(pub, consensus.BlockID(hash), 4))
	require.True(t, isEligibleToMint(pub, consensus.BlockID(hash), 0))
}

func TestTargetAtDecaysOverTime(t *testing.T) {
	parent := time.Unix(0, 0)
	require.Equal(t, 3, targetAt(parent, parent, 3, time.Second))
	require.Equal(t, 2, targetAt(parent, parent.Add(time.Second), 3, time.Second))
	require.Equal(t, 0, targetAt(parent, parent.Add(10*time.Second), 3, time.Second))
	require.Equal(t, 3, targetAt(parent, parent.Add(time.Hour), 3, 0))
}

// TestTryEligibilitySuccessRestampsBlockTimestamp guards against a block
// carrying a stale creation-time timestamp after a decay-wait retry: the
// eligibility target a receiver recomputes is targetAt(parent.Timestamp,
// b.Timestamp, ...), so b.Timestamp must reflect the moment eligibility was
// actually confirmed, not the earlier moment the block was opened.
func TestTryEligibilitySuccessRestampsBlockTimestamp(t *testing.T) {
	oldNow := now
	defer func() { now = oldNow }()

	b := bus.New()
	m := &Miner{
		Client:   NewClient("restamp", b, nil),
		cfg:      Config{MintEligibilityDifficulty: 4, TimeUntilEligibilityDecrease: time.Second, NumRoundsMining: 0},
		registry: NewRegistry(),
		blocks:   map[consensus.BlockID]*consensus.Block{},
	}
	defer m.Stop()

	parentTime := time.Unix(1000, 0)
	parent := &consensus.Block{Timestamp: parentTime, UTXOs: make(types.UTXOView)}
	parent.CoinbaseTX = types.NewTransaction(nil, []types.Output{{Amount: consensus.BaseReward}})

	// m.current carries the stale creation-time stamp a real NewBlock call
	// would have frozen before any decay wait began.
	m.current = &consensus.Block{Timestamp: parentTime}

	// Far enough past parentTime that the target has decayed to 0, so the
	// check succeeds regardless of the miner's (here unset) eligibility key.
	decayed := parentTime.Add(10 * time.Second)
	now = func() time.Time { return decayed }

	m.tryEligibility(parent)

	require.True(t, m.current.Timestamp.Equal(decayed))
	require.False(t, m.current.Timestamp.Equal(parentTime))
}
