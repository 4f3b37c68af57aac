package consensus

import (
	"bytes"
	"crypto"
	_ "crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
)

const (
	// Message types prefixed to every encoding (also used for versioning)
	blockMsgType uint8 = iota + 1
	voteMsgType
)

// DefaultHashFunc is the hash function every node uses to identify blocks
// and votes
const DefaultHashFunc = crypto.SHA256

var ErrInvalidSignedMsgLength = errors.New("invalid signed message length")

// Digest hashes data with the provided hash function and returns the hex encoded sum
func Digest(h crypto.Hash, data []byte) Hash {
	hasher := h.New()
	hasher.Write(data)
	return Hash(hex.EncodeToString(hasher.Sum(nil)))
}

// Hash returns the identity of the block. The timestamp is not part of the
// encoding: two blocks with the same transactions, round, priority and
// previous hash are the same block.
func (b *Block) Hash() Hash {
	return Digest(DefaultHashFunc, EncodeBlock(b))
}

// Hash returns the identity of the vote used for deduplication. The signature
// is excluded.
func (v *Vote) Hash() Hash {
	return Digest(DefaultHashFunc, EncodeVote(v))
}

// EncodeBlock deterministically encodes a block
//
// The format is:
// 1 byte message type
// 4 bytes transaction count
// per transaction: 8 bytes id, length prefixed sender and recipient, 8 bytes amount
// 8 bytes round
// 8 bytes priority
// length prefixed previous block hash
func EncodeBlock(b *Block) []byte {
	buf := bytes.NewBuffer(nil)
	buf.WriteByte(blockMsgType)
	writeUint32(buf, uint32(len(b.Transactions)))
	for _, tx := range b.Transactions {
		writeUint64(buf, uint64(tx.ID))
		writeString(buf, tx.Sender)
		writeString(buf, tx.Recipient)
		writeUint64(buf, uint64(tx.Amount))
	}
	writeUint64(buf, uint64(b.Round))
	writeUint64(buf, uint64(int64(b.Priority)))
	writeString(buf, string(b.PrevBlockHash))
	return buf.Bytes()
}

// EncodeVote encodes the fields of a vote that are signed over and hashed
//
// The format is:
// 1 byte message type
// length prefixed voter
// 8 bytes round
// 8 bytes step
// length prefixed previous block hash
// length prefixed block hash
func EncodeVote(v *Vote) []byte {
	buf := bytes.NewBuffer(nil)
	buf.WriteByte(voteMsgType)
	writeString(buf, v.Voter)
	writeUint64(buf, uint64(v.Round))
	writeUint64(buf, uint64(int64(v.Step)))
	writeString(buf, string(v.PrevBlockHash))
	writeString(buf, string(v.BlockHash))
	return buf.Bytes()
}

// DecodeVote reverses EncodeVote. The signature is not part of the encoding
// and is left empty.
func DecodeVote(msg []byte) (*Vote, error) {
	r := bytes.NewReader(msg)
	msgType, err := r.ReadByte()
	if err != nil || msgType != voteMsgType {
		return nil, ErrInvalidSignedMsgLength
	}
	v := &Vote{}
	if v.Voter, err = readString(r); err != nil {
		return nil, err
	}
	round, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	step, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	v.Round, v.Step = int64(round), int(int64(step))
	prev, err := readString(r)
	if err != nil {
		return nil, err
	}
	hash, err := readString(r)
	if err != nil {
		return nil, err
	}
	v.PrevBlockHash, v.BlockHash = Hash(prev), Hash(hash)
	if r.Len() != 0 {
		return nil, ErrInvalidSignedMsgLength
	}
	return v, nil
}

func writeUint32(buf *bytes.Buffer, n uint32) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	buf.Write(b)
}

func writeUint64(buf *bytes.Buffer, n uint64) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	buf.Write(b)
}

func writeString(buf *bytes.Buffer, s string) {
	buf.Write(binary.AppendUvarint(nil, uint64(len(s))))
	buf.WriteString(s)
}

func readUint64(r *bytes.Reader) (uint64, error) {
	b := make([]byte, 8)
	if n, _ := r.Read(b); n != 8 {
		return 0, ErrInvalidSignedMsgLength
	}
	return binary.BigEndian.Uint64(b), nil
}

func readString(r *bytes.Reader) (string, error) {
	length, err := binary.ReadUvarint(r)
	if err != nil {
		return "", ErrInvalidSignedMsgLength
	}
	if uint64(r.Len()) < length {
		return "", ErrInvalidSignedMsgLength
	}
	b := make([]byte, length)
	if _, err := r.Read(b); err != nil && length > 0 {
		return "", ErrInvalidSignedMsgLength
	}
	return string(b), nil
}
