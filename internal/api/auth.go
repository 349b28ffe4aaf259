package api

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"FundMe/internal/ledger"
)

// KindUnauthorized marks a transaction whose signature does not prove its sender.
const KindUnauthorized ledger.ErrorKind = "Unauthorized"

var ErrUnauthorized = errors.New("api: transaction is not signed by its sender")

// TxMessage is the text a sender signs to authorize one transaction.
func TxMessage(method string, to common.Address, value *uint256.Int, gasLimit, nonce uint64) []byte {
	return []byte(fmt.Sprintf("FundMe transaction\nmethod: %s\nto: %s\nvalue: %s\ngas: %d\nnonce: %d",
		method, to.Hex(), value.Dec(), gasLimit, nonce))
}

// SignTx signs a transaction the way personal_sign does (EIP-191) and returns
// the hex signature expected in TxRequest.Signature.
func SignTx(key *ecdsa.PrivateKey, method string, to common.Address, value *uint256.Int, gasLimit, nonce uint64) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(TxMessage(method, to, value, gasLimit, nonce)), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// recoverSender returns the account that produced signature over msg.
func recoverSender(msg []byte, signature string) (common.Address, error) {
	if signature == "" {
		return common.Address{}, fmt.Errorf("%w: signature required", ErrUnauthorized)
	}
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: signature is %d bytes", ErrUnauthorized, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(msg), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
