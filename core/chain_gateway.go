package core

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	_ "embed"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

//go:embed abi/market.json
var marketABIJSON []byte

//go:embed abi/factory.json
var factoryABIJSON []byte

// contractBinding is the seam between ChainGateway and the concrete RPC
// transport, so signature_service/sync_service/finalization_service tests
// can run against an in-memory fake instead of a live chain — the open
// question on "what is the real market ABI" (spec.md §9) is resolved here:
// the gateway only depends on this narrow interface, not on generated
// contract bindings, so the ABI fixtures in core/abi/ can evolve without
// touching callers.
type contractBinding interface {
	MarketInfo(ctx context.Context, market common.Address) (onChainMarket, error)
	ActiveProposal(ctx context.Context, market common.Address) (onChainProposal, error)
	Participants(ctx context.Context, market common.Address) ([]onChainParticipant, error)
	AllMarkets(ctx context.Context, factory common.Address) ([]common.Address, error)
	PredictMarketAddress(ctx context.Context, factory common.Address, salt [32]byte) (common.Address, error)
	Finalize(ctx context.Context, market common.Address, outcome uint8, signers []common.Address, signatures [][]byte) (string, error)
}

type onChainMarket struct {
	Topic            string
	ThresholdPercent uint8
	StakingToken     common.Address
	TotalStaked      *big.Int
	Status           uint8
	ParticipantCount *big.Int
}

type onChainProposal struct {
	Proposer     common.Address
	Outcome      uint8
	DisputeUntil *big.Int
	EvidenceHash [32]byte
}

type onChainParticipant struct {
	User    common.Address
	Stake   *big.Int
	Outcome uint8
}

// ChainGateway is the Relayer's only point of contact with the chain,
// per spec.md §4.1: every read and write the rest of the system needs goes
// through here, so nothing else imports ethclient directly.
type ChainGateway struct {
	client         *ethclient.Client
	binding        contractBinding
	chainID        *big.Int
	relayerAddress string
	readTimeout    time.Duration
	writeTimeout   time.Duration
}

// NewChainGateway dials rpcURL and wires up an EVM-backed contractBinding
// signing with relayerKey, following the realFacilitatorEvmSigner dial/parse
// sequence from the t402 facilitator example (ethclient.Dial, HexToECDSA).
// The chain ID is the chainID argument; it is not read from the endpoint.
func NewChainGateway(ctx context.Context, rpcURL, relayerPrivateKeyHex string, chainID *big.Int, readTimeout, writeTimeout time.Duration) (*ChainGateway, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, WrapError(KindChainUnavailable, "dial rpc endpoint", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(relayerPrivateKeyHex, "0x"))
	if err != nil {
		return nil, WrapError(KindInternal, "parse relayer private key", err)
	}

	marketABI, err := abi.JSON(bytes.NewReader(marketABIJSON))
	if err != nil {
		return nil, WrapError(KindInternal, "parse market abi", err)
	}
	factoryABI, err := abi.JSON(bytes.NewReader(factoryABIJSON))
	if err != nil {
		return nil, WrapError(KindInternal, "parse factory abi", err)
	}

	binding := &evmBinding{
		client:     client,
		marketABI:  marketABI,
		factoryABI: factoryABI,
		signerKey:  key,
		chainID:    chainID,
	}

	return &ChainGateway{
		client:         client,
		binding:        binding,
		chainID:        chainID,
		relayerAddress: NormalizeAddress(crypto.PubkeyToAddress(key.PublicKey).Hex()),
		readTimeout:    readTimeout,
		writeTimeout:   writeTimeout,
	}, nil
}

func (g *ChainGateway) withReadTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.readTimeout)
}

// ChainID returns the configured chain ID this gateway signs for.
func (g *ChainGateway) ChainID() *big.Int { return g.chainID }

// RelayerAddress returns the address derived from the configured relayer
// private key.
func (g *ChainGateway) RelayerAddress() string { return g.relayerAddress }

// Ping checks basic RPC connectivity, used by the health-detailed endpoint.
func (g *ChainGateway) Ping(ctx context.Context) error {
	ctx, cancel := g.withReadTimeout(ctx)
	defer cancel()
	if _, err := g.client.ChainID(ctx); err != nil {
		return WrapError(KindChainUnavailable, "chain connectivity check failed", err)
	}
	return nil
}

// GetMarketInfo fetches the current on-chain snapshot for a single market.
func (g *ChainGateway) GetMarketInfo(ctx context.Context, market string) (*Market, error) {
	ctx, cancel := g.withReadTimeout(ctx)
	defer cancel()

	addr := common.HexToAddress(market)
	info, err := g.binding.MarketInfo(ctx, addr)
	if err != nil {
		return nil, WrapError(KindContractCall, "read market info", err)
	}

	m := &Market{
		Address:          NormalizeAddress(market),
		Topic:            info.Topic,
		ThresholdPercent: int(info.ThresholdPercent),
		StakingToken:     NormalizeAddress(info.StakingToken.Hex()),
		ParticipantCount: int(info.ParticipantCount.Int64()),
		TotalStaked:      info.TotalStaked,
		Status:           MarketStatus(info.Status),
		LastSyncAt:       time.Now().UTC(),
	}
	return m, nil
}

// GetProposal fetches the market's currently active on-chain proposal, if
// any. A nil Proposal with a nil error means the market has none.
func (g *ChainGateway) GetProposal(ctx context.Context, market string) (*Proposal, error) {
	ctx, cancel := g.withReadTimeout(ctx)
	defer cancel()

	addr := common.HexToAddress(market)
	p, err := g.binding.ActiveProposal(ctx, addr)
	if err != nil {
		return nil, WrapError(KindContractCall, "read active proposal", err)
	}
	if p.Proposer == (common.Address{}) {
		return nil, nil
	}

	return &Proposal{
		Market:       NormalizeAddress(market),
		Proposer:     NormalizeAddress(p.Proposer.Hex()),
		Outcome:      int(p.Outcome),
		DisputeUntil: time.Unix(p.DisputeUntil.Int64(), 0).UTC(),
		EvidenceHash: common.BytesToHash(p.EvidenceHash[:]).Hex(),
	}, nil
}

// GetParticipants fetches every participant recorded on-chain for a market.
func (g *ChainGateway) GetParticipants(ctx context.Context, market string) ([]Participant, error) {
	ctx, cancel := g.withReadTimeout(ctx)
	defer cancel()

	addr := common.HexToAddress(market)
	raw, err := g.binding.Participants(ctx, addr)
	if err != nil {
		return nil, WrapError(KindContractCall, "read participants", err)
	}

	out := make([]Participant, 0, len(raw))
	for _, p := range raw {
		out = append(out, Participant{
			Market:  NormalizeAddress(market),
			User:    NormalizeAddress(p.User.Hex()),
			Stake:   p.Stake,
			Outcome: int(p.Outcome),
		})
	}
	return out, nil
}

// GetAllMarkets enumerates every market the factory has deployed, used by
// DiscoverNewMarkets to find markets the Store has never seen.
func (g *ChainGateway) GetAllMarkets(ctx context.Context, factory string) ([]string, error) {
	ctx, cancel := g.withReadTimeout(ctx)
	defer cancel()

	addrs, err := g.binding.AllMarkets(ctx, common.HexToAddress(factory))
	if err != nil {
		return nil, WrapError(KindContractCall, "read all markets", err)
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, NormalizeAddress(a.Hex()))
	}
	return out, nil
}

// PredictMarketAddress computes the deterministic address the factory will
// assign to a new market given salt, without submitting any transaction.
func (g *ChainGateway) PredictMarketAddress(ctx context.Context, factory string, salt [32]byte) (string, error) {
	ctx, cancel := g.withReadTimeout(ctx)
	defer cancel()

	addr, err := g.binding.PredictMarketAddress(ctx, common.HexToAddress(factory), salt)
	if err != nil {
		return "", WrapError(KindContractCall, "predict market address", err)
	}
	return NormalizeAddress(addr.Hex()), nil
}

// eip712Domain is fixed per spec.md §4.3's "one domain for the whole
// Relayer deployment" decision: Name/Version are constant, ChainId is the
// gateway's configured chain ID, and VerifyingContract is the market address.
const (
	eip712DomainName    = "Sidebet"
	eip712DomainVersion = "1"
)

var attestationTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Attestation": {
		{Name: "market", Type: "address"},
		{Name: "outcome", Type: "uint8"},
		{Name: "nonce", Type: "uint256"},
	},
}

// VerifyAttestation recovers the signer of an EIP-712 typed-data signature
// over (market, outcome, nonce) and reports whether it matches
// expectedSigner. The hash/recover sequence (0x19 0x01 prefix over
// domain-separator || struct-hash, then crypto.SigToPub) is the same one the
// t402 facilitator's VerifyTypedData helper uses for settlement signatures.
func (g *ChainGateway) VerifyAttestation(market string, outcome int, nonce *big.Int, signatureHex string, expectedSigner string) (bool, error) {
	typedData := apitypes.TypedData{
		Types:       attestationTypes,
		PrimaryType: "Attestation",
		Domain: apitypes.TypedDataDomain{
			Name:              eip712DomainName,
			Version:           eip712DomainVersion,
			ChainId:           (*math.HexOrDecimal256)(g.chainID),
			VerifyingContract: market,
		},
		Message: apitypes.TypedDataMessage{
			"market":  market,
			"outcome": fmt.Sprintf("%d", outcome),
			"nonce":   nonce.String(),
		},
	}

	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return false, WrapError(KindInternal, "hash attestation struct", err)
	}
	domainHash, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return false, WrapError(KindInternal, "hash attestation domain", err)
	}

	raw := append([]byte{0x19, 0x01}, domainHash...)
	raw = append(raw, structHash...)
	digest := crypto.Keccak256(raw)

	sig, err := decodeSignature(signatureHex)
	if err != nil {
		return false, WrapError(KindSignatureInvalid, "decode signature", err)
	}

	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	recoverable := make([]byte, 65)
	copy(recoverable, sig)
	recoverable[64] = v

	pubKey, err := crypto.SigToPub(digest, recoverable)
	if err != nil {
		return false, WrapError(KindSignatureInvalid, "recover public key", err)
	}
	recovered := crypto.PubkeyToAddress(*pubKey)

	return strings.EqualFold(recovered.Hex(), expectedSigner), nil
}

func decodeSignature(hexSig string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(hexSig, "0x"))
	if err != nil {
		return nil, err
	}
	if len(b) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(b))
	}
	return b, nil
}

// FinalizeMarket submits the finalize transaction with the collected
// signatures and waits for it to be mined, bounded by writeTimeout.
func (g *ChainGateway) FinalizeMarket(ctx context.Context, market string, outcome int, signers []string, signatures [][]byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.writeTimeout)
	defer cancel()

	signerAddrs := make([]common.Address, len(signers))
	for i, s := range signers {
		signerAddrs[i] = common.HexToAddress(s)
	}

	txHash, err := g.binding.Finalize(ctx, common.HexToAddress(market), uint8(outcome), signerAddrs, signatures)
	if err != nil {
		return "", WrapError(KindContractCall, "submit finalize transaction", err)
	}
	return txHash, nil
}

// evmBinding is the contractBinding backed by a live ethclient connection,
// packing/unpacking calldata with the abi.JSON fixtures the same way the
// t402 facilitator's ReadContract/WriteContract helpers do (abi.Pack,
// ethereum.CallMsg, CallContract for reads; PendingNonceAt,
// SuggestGasPrice, types.SignTx for writes).
type evmBinding struct {
	client     *ethclient.Client
	marketABI  abi.ABI
	factoryABI abi.ABI
	signerKey  *ecdsa.PrivateKey
	chainID    *big.Int
}
