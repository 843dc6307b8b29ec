// Copyright 2025 Certen Protocol
//
// Canonical encoding: deterministic JSON (sorted object keys, stable
// formatting) and the docket-hash commitment framing.

package canonical

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// MarshalJSON encodes v as JSON with object keys sorted at every level, so
// the same logical value always serializes to the same bytes.
func MarshalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Canonicalize(raw)
}

// Canonicalize re-serializes raw JSON bytes with sorted object keys.
func Canonicalize(raw []byte) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(sortKeys(v))
}

func sortKeys(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(map[string]interface{}, len(vv))
		for _, k := range keys {
			ordered[k] = sortKeys(vv[k])
		}
		return ordered
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = sortKeys(e)
		}
		return out
	default:
		return vv
	}
}

// HashJSON returns the SHA-256 digest of v's canonical JSON encoding, used
// for the transaction payload_hash and similar content-addressed fields.
func HashJSON(v interface{}) ([]byte, error) {
	canon, err := MarshalJSON(v)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(canon)
	return sum[:], nil
}

func HashJSONHex(v interface{}) (string, error) {
	h, err := HashJSON(v)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h), nil
}

// FrameField length-prefixes a field with a 4-byte big-endian length before
// its bytes, so concatenated fields of differing length cannot collide
// (e.g. "ab"+"cd" framed differs from "a"+"bcd" framed).
func FrameField(field []byte) []byte {
	out := make([]byte, 4+len(field))
	binary.BigEndian.PutUint32(out[:4], uint32(len(field)))
	copy(out[4:], field)
	return out
}

// DocketHashInput is the canonical set of fields committed to by a
// docket's hash, framed and concatenated in this fixed order.
type DocketHashInput struct {
	RegisterID        string
	DocketNumber      uint64
	PreviousHash      string
	MerkleRoot        string
	CreatedAt         time.Time
	ProposerValidator string
}

// DocketHash computes sha256 over the length-prefixed concatenation of
// {register_id, docket_number, previous_hash, merkle_root, created_at,
// proposer_validator_id}, in that order. created_at is framed as its
// RFC3339 UTC text, not a Go-specific binary encoding, so any
// independently-implemented validator node hashing the same docket's
// created_at field agrees bit-for-bit.
func DocketHash(in DocketHashInput) []byte {
	numberBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(numberBytes, in.DocketNumber)

	createdAt := in.CreatedAt.UTC().Format(time.RFC3339)

	h := sha256.New()
	h.Write(FrameField([]byte(in.RegisterID)))
	h.Write(FrameField(numberBytes))
	h.Write(FrameField([]byte(in.PreviousHash)))
	h.Write(FrameField([]byte(in.MerkleRoot)))
	h.Write(FrameField([]byte(createdAt)))
	h.Write(FrameField([]byte(in.ProposerValidator)))
	return h.Sum(nil)
}

func DocketHashHex(in DocketHashInput) string {
	return hex.EncodeToString(DocketHash(in))
}
