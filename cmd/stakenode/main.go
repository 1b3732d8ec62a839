package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"go.stakecore.dev/core/bus"
	"go.stakecore.dev/core/consensus"
	"go.stakecore.dev/core/node"
	"go.stakecore.dev/core/types"
	"go.uber.org/zap"
	"lukechampine.com/frand"
)

var config struct {
	Participants      int           `long:"participants" description:"number of miners to run" default:"4"`
	StartingBalance   uint64        `long:"starting-balance" description:"genesis balance credited to each participant" default:"1000"`
	NumRoundsMining   int           `long:"num-rounds-mining" description:"proof guesses per mining quantum" default:"2000"`
	EligibilityBits   int           `long:"eligibility-bits" description:"starting mint-eligibility target, in leading bits" default:"2"`
	EligibilityDecay  time.Duration `long:"eligibility-decay" description:"how long before the eligibility target drops by one" default:"5s"`
	RunFor            time.Duration `long:"run-for" description:"how long to run the simulation before reporting balances" default:"30s"`
	RandomTxnInterval time.Duration `long:"txn-interval" description:"average delay between randomly posted transactions" default:"2s"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	if _, err := flags.ParseArgs(&config, os.Args); err != nil {
		logger.Fatal("failed to parse arguments", zap.Error(err))
	}
	if config.Participants < 1 {
		logger.Fatal("participants must be at least 1")
	}

	cfg := node.Config{
		NumRoundsMining:              config.NumRoundsMining,
		MintEligibilityDifficulty:    config.EligibilityBits,
		TimeUntilEligibilityDecrease: config.EligibilityDecay,
	}

	b := bus.New()
	registry := node.NewRegistry()

	// Each miner needs a reward address before the genesis block can credit
	// it, but a Miner is only fully constructed once it has a genesis block
	// to extend. We build each participant as a plain Client first, mint
	// its genesis address, build the genesis block against those addresses
	// (crediting each Client's wallet directly via the Receiver callback),
	// then promote every Client into a Miner in place — reusing the wallet
	// genesis just funded instead of starting a fresh, empty one.
	balances := make([]consensus.Balance, config.Participants)
	receivers := make([]consensus.Receiver, config.Participants)
	clients := make([]*node.Client, config.Participants)

	for i := range clients {
		name := fmt.Sprintf("miner-%d", i)
		clients[i] = node.NewClient(name, b, logger.Named(name))
		balances[i] = consensus.Balance{Address: clients[i].Wallet.MakeAddress(), Amount: config.StartingBalance}
		receivers[i] = clients[i]
	}
	genesis := consensus.MakeGenesisBlock(balances, receivers)

	miners := make([]*node.Miner, config.Participants)
	for i, c := range clients {
		miners[i] = node.PromoteToMiner(c, cfg, genesis, registry)
	}

	logger.Info("simulation started",
		zap.Int("participants", config.Participants),
		zap.Uint64("starting_balance", config.StartingBalance),
		zap.Duration("run_for", config.RunFor))

	runCtx, cancel := context.WithTimeout(ctx, config.RunFor)
	defer cancel()
	go postRandomTransactions(runCtx, miners, logger)

	<-runCtx.Done()

	for i, m := range miners {
		logger.Info("final balance",
			zap.String("miner", fmt.Sprintf("miner-%d", i)),
			zap.Uint64("balance", m.Wallet.Balance()))
	}
}

// postRandomTransactions periodically has a random miner send a random
// amount to another random miner's wallet, exercising POST_TRANSACTION
// and fee collection while the miners race to extend the chain.
func postRandomTransactions(ctx context.Context, miners []*node.Miner, logger *zap.Logger) {
	if len(miners) < 2 {
		return
	}
	for {
		wait := time.Duration(frand.Intn(int(config.RandomTxnInterval) * 2))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		from := miners[frand.Intn(len(miners))]
		to := miners[frand.Intn(len(miners))]
		if from == to {
			continue
		}
		amount := uint64(1 + frand.Intn(10))
		output := types.Output{Amount: amount, Address: to.Wallet.MakeAddress()}
		if _, err := from.PostTransaction([]types.Output{output}); err != nil {
			logger.Debug("skipping random transaction", zap.String("from", from.Name), zap.Error(err))
		}
	}
}
