package paybackend

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// usdcABI is the minimal ABI surface a USDC-style EIP-3009 token exposes:
// the gasless transfer authorization entry point plus ERC-20 decimals for
// converting a settled amount into cents.
const usdcABI = `[
  {"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
  {"constant":false,"inputs":[
    {"name":"from","type":"address"},
    {"name":"to","type":"address"},
    {"name":"value","type":"uint256"},
    {"name":"validAfter","type":"uint256"},
    {"name":"validBefore","type":"uint256"},
    {"name":"nonce","type":"bytes32"},
    {"name":"v","type":"uint8"},
    {"name":"r","type":"bytes32"},
    {"name":"s","type":"bytes32"}
  ],"name":"transferWithAuthorization","outputs":[],"type":"function"}
]`

// Eip3009Backend settles USDC payments via the EIP-3009
// transferWithAuthorization entry point, following the teacher's
// ethereum.Client ABI pack/sign/send/wait pattern (pkg/ethereum/client.go),
// adapted from a generic contract-call helper into a single-purpose
// payment backend.
type Eip3009Backend struct {
	client     *ethclient.Client
	chainID    *big.Int
	signerHex  string
	contractABI abi.ABI
}

// NewEip3009Backend dials the configured RPC endpoint and parses the fixed
// USDC ABI once.
func NewEip3009Backend(rpcURL string, chainID int64, settlementSignerKeyHex string) (*Eip3009Backend, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("paybackend: dial %s: %w", rpcURL, err)
	}
	parsedABI, err := abi.JSON(strings.NewReader(usdcABI))
	if err != nil {
		return nil, fmt.Errorf("paybackend: parse usdc abi: %w", err)
	}
	return &Eip3009Backend{
		client:      client,
		chainID:     big.NewInt(chainID),
		signerHex:   strings.TrimPrefix(settlementSignerKeyHex, "0x"),
		contractABI: parsedABI,
	}, nil
}

// Verify checks the payload's shape and that the authorization window is
// currently open. It performs no chain writes.
func (b *Eip3009Backend) Verify(ctx context.Context, payment Payment, req Requirements) (VerifyResult, error) {
	if !common.IsHexAddress(payment.From) {
		return VerifyResult{Valid: false, InvalidReason: "invalid from address"}, nil
	}
	if !common.IsHexAddress(payment.To) || !strings.EqualFold(payment.To, req.PayTo) {
		return VerifyResult{Valid: false, InvalidReason: "payTo mismatch"}, nil
	}
	value, ok := new(big.Int).SetString(payment.Value, 10)
	if !ok || value.Sign() <= 0 {
		return VerifyResult{Valid: false, InvalidReason: "invalid value"}, nil
	}
	required, ok := new(big.Int).SetString(req.Amount, 10)
	if ok && value.Cmp(required) < 0 {
		return VerifyResult{Valid: false, InvalidReason: "amount below required"}, nil
	}
	if len(strings.TrimPrefix(payment.Nonce, "0x")) != 64 {
		return VerifyResult{Valid: false, InvalidReason: "invalid nonce"}, nil
	}
	now := time.Now().Unix()
	if now <= payment.ValidAfter || now >= payment.ValidBefore {
		return VerifyResult{Valid: false, InvalidReason: "authorization window not open"}, nil
	}
	return VerifyResult{Valid: true}, nil
}

// Settle submits transferWithAuthorization and waits for the receipt,
// converting the transferred amount to cents via the token's decimals().
func (b *Eip3009Backend) Settle(ctx context.Context, payment Payment, req Requirements) (SettleResult, error) {
	contractAddr := common.HexToAddress(req.Asset)

	privateKey, err := crypto.HexToECDSA(b.signerHex)
	if err != nil {
		return SettleResult{Success: false, ErrorReason: "invalid settlement signer key"}, fmt.Errorf("paybackend: parse signer key: %w", err)
	}

	v, r, s, err := splitSignature(payment.Signature)
	if err != nil {
		return SettleResult{Success: false, ErrorReason: err.Error()}, nil
	}

	value, ok := new(big.Int).SetString(payment.Value, 10)
	if !ok {
		return SettleResult{Success: false, ErrorReason: "invalid value"}, nil
	}

	callData, err := b.contractABI.Pack("transferWithAuthorization",
		common.HexToAddress(payment.From),
		common.HexToAddress(payment.To),
		value,
		big.NewInt(payment.ValidAfter),
		big.NewInt(payment.ValidBefore),
		common.HexToHash(payment.Nonce),
		v, r, s,
	)
	if err != nil {
		return SettleResult{Success: false, ErrorReason: "failed to encode authorization"}, fmt.Errorf("paybackend: pack transferWithAuthorization: %w", err)
	}

	fromAddress := crypto.PubkeyToAddress(privateKey.PublicKey)
	nonce, err := b.client.PendingNonceAt(ctx, fromAddress)
	if err != nil {
		return SettleResult{}, fmt.Errorf("paybackend: get nonce: %w", err)
	}
	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return SettleResult{}, fmt.Errorf("paybackend: get gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, contractAddr, big.NewInt(0), 200_000, gasPrice, callData)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(b.chainID), privateKey)
	if err != nil {
		return SettleResult{}, fmt.Errorf("paybackend: sign settlement tx: %w", err)
	}
	if err := b.client.SendTransaction(ctx, signedTx); err != nil {
		return SettleResult{Success: false, ErrorReason: "transaction submission failed"}, fmt.Errorf("paybackend: send tx: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, b.client, signedTx)
	if err != nil {
		return SettleResult{}, fmt.Errorf("paybackend: wait for settlement receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return SettleResult{Success: false, ErrorReason: "transaction reverted", Transaction: signedTx.Hash().Hex()}, nil
	}

	cents, err := b.toCents(ctx, contractAddr, value)
	if err != nil {
		return SettleResult{}, err
	}

	return SettleResult{
		Success:     true,
		Transaction: signedTx.Hash().Hex(),
		AmountCents: cents,
	}, nil
}

func (b *Eip3009Backend) toCents(ctx context.Context, contractAddr common.Address, value *big.Int) (int64, error) {
	callData, err := b.contractABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("paybackend: pack decimals call: %w", err)
	}
	raw, err := b.client.CallContract(ctx, asCallMsg(contractAddr, callData), nil)
	if err != nil {
		return 0, fmt.Errorf("paybackend: call decimals: %w", err)
	}
	outputs, err := b.contractABI.Unpack("decimals", raw)
	if err != nil || len(outputs) != 1 {
		return 0, fmt.Errorf("paybackend: unpack decimals: %w", err)
	}
	decimals := outputs[0].(uint8)

	// cents = value / 10^(decimals-2), rounded down.
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)-2), nil)
	if scale.Sign() <= 0 {
		scale = big.NewInt(1)
	}
	cents := new(big.Int).Div(value, scale)
	return cents.Int64(), nil
}

func asCallMsg(to common.Address, data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{To: &to, Data: data}
}

func splitSignature(hexSig string) (uint8, [32]byte, [32]byte, error) {
	raw := common.FromHex(hexSig)
	if len(raw) != 65 {
		return 0, [32]byte{}, [32]byte{}, fmt.Errorf("invalid signature length")
	}
	var r, s [32]byte
	copy(r[:], raw[:32])
	copy(s[:], raw[32:64])
	v := raw[64]
	if v < 27 {
		v += 27
	}
	return v, r, s, nil
}
