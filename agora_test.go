package agora_test

import (
	"context"
	"testing"
	"time"

	"github.com/cmwaters/agora"
	"github.com/cmwaters/agora/consensus"
	"github.com/cmwaters/agora/ledger"
	"github.com/cmwaters/agora/pkg/sign"
	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNodeCommitsOverLibp2p(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	mn, err := mocknet.FullMeshLinked(1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mn.Close() })

	params := consensus.DefaultParameters()
	params.CommitteeSize = 1
	params.BlockSize = 2
	params.ProposalTimeout = 50 * time.Millisecond
	params.VoteTimeout = 200 * time.Millisecond

	chain, err := ledger.New(params.BlockSize, ledger.DefaultCurrencySupply, ledger.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	node, err := agora.New(ctx, mn.Hosts()[0], agora.DefaultNamespace, sign.NewKeySigner(), chain, params, zerolog.Nop())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- node.Start(ctx)
	}()

	require.NoError(t, node.SubmitTransaction(ctx, consensus.Transaction{ID: 1, Sender: ledger.Address(0), Recipient: ledger.Address(1), Amount: 10}))
	require.NoError(t, node.SubmitTransaction(ctx, consensus.Transaction{ID: 2, Sender: ledger.Address(1), Recipient: ledger.Address(0), Amount: 20}))

	require.Eventually(t, func() bool { return chain.Len() == 2 }, 10*time.Second, 10*time.Millisecond)
	require.EqualValues(t, ledger.DefaultCurrencySupply/2+10, chain.Balance(ledger.Address(0)))

	require.NoError(t, node.Stop())
	require.NoError(t, <-errCh)
	require.NoError(t, node.Close())
}
