package txbuild

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/wallet/wallettest"
)

var testBlockhash = Hash{1, 2, 3, 4, 5, 6, 7, 8}

func allocations(n int, amount domain.Lamports) []domain.WalletAllocation {
	signers := wallettest.Signers(n)
	out := make([]domain.WalletAllocation, n)
	for i, s := range signers {
		out[i] = domain.WalletAllocation{Index: i, Wallet: s, Amount: amount}
	}
	return out
}

func TestAppendCompactU16(t *testing.T) {
	cases := map[int][]byte{
		0:     {0x00},
		127:   {0x7f},
		128:   {0x80, 0x01},
		255:   {0xff, 0x01},
		16383: {0xff, 0x7f},
		16384: {0x80, 0x80, 0x01},
	}
	for n, want := range cases {
		assert.Equal(t, want, appendCompactU16(nil, n), "n=%d", n)
	}
}

func TestTransfer_Encoding(t *testing.T) {
	from := PublicKey{9}
	to := PublicKey{8}
	ix := Transfer(from, to, 1_500_000_000)

	assert.Equal(t, SystemProgramID, ix.ProgramID)
	require.Len(t, ix.Data, 12)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(ix.Data[:4]))
	assert.Equal(t, uint64(1_500_000_000), binary.LittleEndian.Uint64(ix.Data[4:]))
	assert.True(t, ix.Accounts[0].IsSigner)
	assert.False(t, ix.Accounts[1].IsSigner)
}

func TestCompileMessage_AccountOrder(t *testing.T) {
	payer := PublicKey{1}
	other := PublicKey{2}
	dest := PublicKey{3}

	msg, err := CompileMessage(payer, []Instruction{
		Transfer(other, dest, 10),
		Transfer(payer, dest, 20),
	}, testBlockhash)
	require.NoError(t, err)

	assert.Equal(t, []PublicKey{payer, other, dest, SystemProgramID}, msg.AccountKeys)
	assert.Equal(t, MessageHeader{
		NumRequiredSignatures:       2,
		NumReadonlySignedAccounts:   0,
		NumReadonlyUnsignedAccounts: 1,
	}, msg.Header)
	assert.Equal(t, []PublicKey{payer, other}, msg.Signers())

	require.Len(t, msg.Instructions, 2)
	assert.Equal(t, uint8(3), msg.Instructions[0].ProgramIDIndex)
	assert.Equal(t, []uint8{1, 2}, msg.Instructions[0].Accounts)
	assert.Equal(t, []uint8{0, 2}, msg.Instructions[1].Accounts)
}

func TestCompileMessage_NoInstructions(t *testing.T) {
	_, err := CompileMessage(PublicKey{1}, nil, testBlockhash)
	assert.ErrorIs(t, err, ErrNoInstructions)
}

func TestBuild_SignsMessage(t *testing.T) {
	alloc := allocations(1, 500_000_000)[0]
	b := NewBuilder(TransferInstructor{Destination: PublicKey{7}})

	tx, err := b.Build(context.Background(), alloc, testBlockhash)
	require.NoError(t, err)
	require.Len(t, tx.Signatures, 1)

	pub := alloc.Wallet.PublicKey()
	assert.True(t, ed25519.Verify(pub[:], tx.Message.Serialize(), tx.Signatures[0][:]))
	assert.Equal(t, base58.Encode(tx.Signatures[0][:]), tx.Signature())
	assert.Equal(t, domain.Lamports(domain.LamportsPerSignature), tx.Fee())

	raw, err := tx.Serialize()
	require.NoError(t, err)
	assert.Equal(t, byte(1), raw[0])
	assert.Equal(t, tx.Signatures[0][:], raw[1:65])
}

func TestBuild_NoWallet(t *testing.T) {
	b := NewBuilder(TransferInstructor{Destination: PublicKey{7}})
	_, err := b.Build(context.Background(), domain.WalletAllocation{Index: 3, Amount: 1}, testBlockhash)
	assert.ErrorIs(t, err, ErrNoWallet)
}

func TestBuildMulti_AllWalletsSign(t *testing.T) {
	allocs := allocations(3, 1000)
	b := NewBuilder(TransferInstructor{Destination: PublicKey{7}})

	tx, err := b.BuildMulti(context.Background(), allocs, testBlockhash)
	require.NoError(t, err)
	require.Len(t, tx.Signatures, 3)

	payload := tx.Message.Serialize()
	for i, key := range tx.Message.Signers() {
		assert.True(t, ed25519.Verify(key[:], payload, tx.Signatures[i][:]))
	}
	assert.Equal(t, PublicKey(allocs[0].Wallet.PublicKey()), tx.Message.AccountKeys[0])
	assert.Equal(t, domain.Lamports(3*domain.LamportsPerSignature), tx.Fee())
}

func TestSerialize_SizeLimit(t *testing.T) {
	b := NewBuilder(TransferInstructor{Destination: PublicKey{7}})

	tx, err := b.BuildMulti(context.Background(), allocations(12, 1000), testBlockhash)
	require.NoError(t, err)

	_, err = tx.Serialize()
	assert.ErrorIs(t, err, ErrTransactionSize)
}

func TestPackBundle(t *testing.T) {
	allocs := allocations(8, 1000)
	b := NewBuilder(TransferInstructor{Destination: PublicKey{7}})

	bundle, err := b.PackBundle(context.Background(), allocs, PublicKey{42}, 100_000, testBlockhash, 5)
	require.NoError(t, err)

	require.Len(t, bundle.Transactions, 4)
	require.Len(t, bundle.Chunks, 4)
	for _, chunk := range bundle.Chunks {
		assert.Len(t, chunk, 2)
	}
	require.NotNil(t, bundle.Tip)
	assert.Equal(t, PublicKey(allocs[0].Wallet.PublicKey()), bundle.Tip.Message.AccountKeys[0])

	wire, err := bundle.Wire()
	require.NoError(t, err)
	assert.Len(t, wire, 5)
}

func TestPackBundle_TooSmall(t *testing.T) {
	b := NewBuilder(TransferInstructor{Destination: PublicKey{7}})
	_, err := b.PackBundle(context.Background(), allocations(2, 1), PublicKey{42}, 1, testBlockhash, 1)
	assert.Error(t, err)
}

func TestSplitEven(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	chunks := SplitEven(items, 3)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{0, 1, 2, 3}, chunks[0])
	assert.Equal(t, []int{4, 5, 6}, chunks[1])
	assert.Equal(t, []int{7, 8, 9}, chunks[2])

	assert.Len(t, SplitEven(items[:2], 5), 2)
	assert.Nil(t, SplitEven([]int{}, 3))
}

func TestParsePublicKey(t *testing.T) {
	key, err := ParsePublicKey("11111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, SystemProgramID, key)
	assert.Equal(t, "11111111111111111111111111111111", key.String())

	_, err = ParsePublicKey("abc")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
