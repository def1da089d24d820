package core

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

func TestChainGatewayGetMarketInfo(t *testing.T) {
	binding := &fakeBinding{
		market: onChainMarket{
			Topic:            "will it rain",
			ThresholdPercent: 60,
			StakingToken:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
			TotalStaked:      big.NewInt(1000),
			Status:           uint8(StatusOpen),
			ParticipantCount: big.NewInt(4),
		},
	}
	g := testGateway(binding)

	m, err := g.GetMarketInfo(context.Background(), "0x2222222222222222222222222222222222222222")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Topic != "will it rain" || m.ThresholdPercent != 60 || m.ParticipantCount != 4 {
		t.Errorf("unexpected market: %+v", m)
	}
	if m.Status != StatusOpen {
		t.Errorf("expected StatusOpen, got %s", m.Status)
	}
}

func TestChainGatewayGetProposalNone(t *testing.T) {
	g := testGateway(&fakeBinding{proposal: onChainProposal{}})

	p, err := g.GetProposal(context.Background(), "0x2222222222222222222222222222222222222222")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil proposal for the zero proposer, got %+v", p)
	}
}

func TestChainGatewayGetProposalPresent(t *testing.T) {
	binding := &fakeBinding{
		proposal: onChainProposal{
			Proposer:     common.HexToAddress("0x3333333333333333333333333333333333333333"),
			Outcome:      1,
			DisputeUntil: big.NewInt(1700000000),
		},
	}
	g := testGateway(binding)

	p, err := g.GetProposal(context.Background(), "0x2222222222222222222222222222222222222222")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected a non-nil proposal")
	}
	if p.Outcome != 1 {
		t.Errorf("expected outcome 1, got %d", p.Outcome)
	}
}

func TestChainGatewayGetAllMarkets(t *testing.T) {
	binding := &fakeBinding{
		allMarkets: []common.Address{
			common.HexToAddress("0xAAAA111111111111111111111111111111111111"),
			common.HexToAddress("0xBBBB222222222222222222222222222222222222"),
		},
	}
	g := testGateway(binding)

	addrs, err := g.GetAllMarkets(context.Background(), "0xfactory00000000000000000000000000000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(addrs))
	}
}

func TestChainGatewayFinalizeMarket(t *testing.T) {
	binding := &fakeBinding{finalizeTx: "0xdeadbeef"}
	g := testGateway(binding)

	tx, err := g.FinalizeMarket(context.Background(), "0x2222222222222222222222222222222222222222", 1,
		[]string{"0x3333333333333333333333333333333333333333"}, [][]byte{{0x01}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx != "0xdeadbeef" {
		t.Errorf("got %q", tx)
	}
}

// TestChainGatewayVerifyAttestation signs the exact typed-data structure
// VerifyAttestation reconstructs and confirms the recovered signer matches.
func TestChainGatewayVerifyAttestation(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := crypto.PubkeyToAddress(key.PublicKey).Hex()

	g := testGateway(&fakeBinding{})
	market := "0x2222222222222222222222222222222222222222"
	outcome := 1
	nonce := big.NewInt(42)

	digest := attestationDigest(t, g.chainID, market, outcome, nonce)
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[64] += 27

	ok, err := g.VerifyAttestation(market, outcome, nonce, "0x"+common.Bytes2Hex(sig), signer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected signature to verify against the signing key's address")
	}

	otherKey, _ := crypto.GenerateKey()
	other := crypto.PubkeyToAddress(otherKey.PublicKey).Hex()
	ok, err = g.VerifyAttestation(market, outcome, nonce, "0x"+common.Bytes2Hex(sig), other)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected verification to fail against a different address")
	}
}

func TestChainGatewayVerifyAttestationRejectsMalformedSignature(t *testing.T) {
	g := testGateway(&fakeBinding{})
	_, err := g.VerifyAttestation("0x2222222222222222222222222222222222222222", 0, big.NewInt(1), "0xnothex", "0x3333333333333333333333333333333333333333")
	if err == nil {
		t.Fatal("expected an error for a malformed signature")
	}
}

// attestationDigest reproduces VerifyAttestation's hash construction so the
// test can sign exactly what production verifies.
func attestationDigest(t *testing.T, chainID *big.Int, market string, outcome int, nonce *big.Int) []byte {
	t.Helper()
	typedData := apitypes.TypedData{
		Types:       attestationTypes,
		PrimaryType: "Attestation",
		Domain: apitypes.TypedDataDomain{
			Name:              eip712DomainName,
			Version:           eip712DomainVersion,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: market,
		},
		Message: apitypes.TypedDataMessage{
			"market":  market,
			"outcome": toDecimalString(outcome),
			"nonce":   nonce.String(),
		},
	}

	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		t.Fatalf("hash struct: %v", err)
	}
	domainHash, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		t.Fatalf("hash domain: %v", err)
	}

	raw := append([]byte{0x19, 0x01}, domainHash...)
	raw = append(raw, structHash...)
	return crypto.Keccak256(raw)
}

func toDecimalString(n int) string {
	return big.NewInt(int64(n)).String()
}
