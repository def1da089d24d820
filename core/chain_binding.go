package core

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethcore "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// call packs a read-only method call, executes it against the head block,
// and unpacks its return values — the same Pack/CallContract/Unpack
// sequence the t402 facilitator's ReadContract helper follows.
func (b *evmBinding) call(ctx context.Context, contract common.Address, target abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := target.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	result, err := b.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	m, ok := target.Methods[method]
	if !ok {
		return nil, fmt.Errorf("method %s not found in abi", method)
	}
	return m.Outputs.Unpack(result)
}

func (b *evmBinding) MarketInfo(ctx context.Context, market common.Address) (onChainMarket, error) {
	var m onChainMarket
	out, err := b.call(ctx, market, b.marketABI, "topic")
	if err != nil {
		return m, err
	}
	m.Topic = out[0].(string)

	if out, err = b.call(ctx, market, b.marketABI, "thresholdPercent"); err != nil {
		return m, err
	}
	m.ThresholdPercent = out[0].(uint8)

	if out, err = b.call(ctx, market, b.marketABI, "stakingToken"); err != nil {
		return m, err
	}
	m.StakingToken = out[0].(common.Address)

	if out, err = b.call(ctx, market, b.marketABI, "totalStaked"); err != nil {
		return m, err
	}
	m.TotalStaked = out[0].(*big.Int)

	if out, err = b.call(ctx, market, b.marketABI, "status"); err != nil {
		return m, err
	}
	m.Status = out[0].(uint8)

	if out, err = b.call(ctx, market, b.marketABI, "participantCount"); err != nil {
		return m, err
	}
	m.ParticipantCount = out[0].(*big.Int)

	return m, nil
}

func (b *evmBinding) ActiveProposal(ctx context.Context, market common.Address) (onChainProposal, error) {
	var p onChainProposal
	out, err := b.call(ctx, market, b.marketABI, "activeProposal")
	if err != nil {
		return p, err
	}
	p.Proposer = out[0].(common.Address)
	p.Outcome = out[1].(uint8)
	p.DisputeUntil = out[2].(*big.Int)
	p.EvidenceHash = out[3].([32]byte)
	return p, nil
}

func (b *evmBinding) Participants(ctx context.Context, market common.Address) ([]onChainParticipant, error) {
	countOut, err := b.call(ctx, market, b.marketABI, "participantCount")
	if err != nil {
		return nil, err
	}
	count := countOut[0].(*big.Int).Int64()

	participants := make([]onChainParticipant, 0, count)
	for i := int64(0); i < count; i++ {
		out, err := b.call(ctx, market, b.marketABI, "participantAt", big.NewInt(i))
		if err != nil {
			return nil, err
		}
		participants = append(participants, onChainParticipant{
			User:    out[0].(common.Address),
			Stake:   out[1].(*big.Int),
			Outcome: out[2].(uint8),
		})
	}
	return participants, nil
}

func (b *evmBinding) AllMarkets(ctx context.Context, factory common.Address) ([]common.Address, error) {
	out, err := b.call(ctx, factory, b.factoryABI, "allMarkets")
	if err != nil {
		return nil, err
	}
	return out[0].([]common.Address), nil
}

func (b *evmBinding) PredictMarketAddress(ctx context.Context, factory common.Address, salt [32]byte) (common.Address, error) {
	out, err := b.call(ctx, factory, b.factoryABI, "predictMarketAddress", salt)
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// Finalize signs and submits the finalize transaction, then waits for it to
// be mined — PendingNonceAt, SuggestGasPrice, types.SignTx, SendTransaction
// are the same four calls the t402 facilitator's WriteContract helper makes.
func (b *evmBinding) Finalize(ctx context.Context, market common.Address, outcome uint8, signers []common.Address, signatures [][]byte) (string, error) {
	data, err := b.marketABI.Pack("finalize", outcome, signers, signatures)
	if err != nil {
		return "", fmt.Errorf("pack finalize: %w", err)
	}

	from := crypto.PubkeyToAddress(b.signerKey.PublicKey)
	nonce, err := b.client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	tx := gethcore.NewTransaction(nonce, market, big.NewInt(0), 500000, gasPrice, data)
	signedTx, err := gethcore.SignTx(tx, gethcore.LatestSignerForChainID(b.chainID), b.signerKey)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	if err := b.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}

	receipt, err := waitMined(ctx, b.client, signedTx.Hash())
	if err != nil {
		return "", err
	}
	if receipt.Status != gethcore.ReceiptStatusSuccessful {
		return "", fmt.Errorf("finalize transaction reverted: %s", signedTx.Hash().Hex())
	}
	return signedTx.Hash().Hex(), nil
}

func waitMined(ctx context.Context, client *ethclient.Client, hash common.Hash) (*gethcore.Receipt, error) {
	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for transaction receipt: %w", ctx.Err())
		case <-time.After(time.Second):
		}
	}
}
