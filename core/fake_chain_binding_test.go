package core

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const defaultTestTimeout = 5 * time.Second

// fakeBinding is a hand-written contractBinding, letting ChainGateway's
// marshaling logic be exercised without a live RPC endpoint.
type fakeBinding struct {
	market       onChainMarket
	proposal     onChainProposal
	participants []onChainParticipant
	allMarkets   []common.Address
	predicted    common.Address
	finalizeTx   string
	err          error
}

func (b *fakeBinding) MarketInfo(ctx context.Context, market common.Address) (onChainMarket, error) {
	return b.market, b.err
}

func (b *fakeBinding) ActiveProposal(ctx context.Context, market common.Address) (onChainProposal, error) {
	return b.proposal, b.err
}

func (b *fakeBinding) Participants(ctx context.Context, market common.Address) ([]onChainParticipant, error) {
	return b.participants, b.err
}

func (b *fakeBinding) AllMarkets(ctx context.Context, factory common.Address) ([]common.Address, error) {
	return b.allMarkets, b.err
}

func (b *fakeBinding) PredictMarketAddress(ctx context.Context, factory common.Address, salt [32]byte) (common.Address, error) {
	return b.predicted, b.err
}

func (b *fakeBinding) Finalize(ctx context.Context, market common.Address, outcome uint8, signers []common.Address, signatures [][]byte) (string, error) {
	return b.finalizeTx, b.err
}

func testGateway(binding contractBinding) *ChainGateway {
	return &ChainGateway{
		binding:     binding,
		chainID:     big.NewInt(8453),
		readTimeout: defaultTestTimeout,
		writeTimeout: defaultTestTimeout,
	}
}
