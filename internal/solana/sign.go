package solana

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// SignTransaction deserialises an unsigned transaction produced by the
// aggregator, signs it with the provided key and returns the wire bytes
// ready for broadcast. The payload is signed exactly as received; no
// instructions are added or re-ordered here.
func SignTransaction(rawTx []byte, key solana.PrivateKey) ([]byte, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(rawTx))
	if err != nil {
		return nil, fmt.Errorf("反序列化交易失败: %w", err)
	}

	signer := key.PublicKey()
	if _, err := tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(signer) {
			return &key
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("签名交易失败: %w", err)
	}

	signed, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("序列化已签名交易失败: %w", err)
	}
	return signed, nil
}
