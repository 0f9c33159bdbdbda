package txbuild

import (
	"encoding/binary"

	"solana-dispatch/internal/domain"
)

// systemTransfer is the system program's Transfer instruction discriminator.
const systemTransfer uint32 = 2

// Transfer builds a system program lamport transfer.
func Transfer(from, to PublicKey, amount domain.Lamports) Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], systemTransfer)
	binary.LittleEndian.PutUint64(data[4:12], uint64(amount))

	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			{PublicKey: from, IsSigner: true, IsWritable: true},
			{PublicKey: to, IsSigner: false, IsWritable: true},
		},
		Data: data,
	}
}
