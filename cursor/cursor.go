// Package cursor implements the client-facing pagination token: a versioned,
// self-describing binary frame carrying the chosen strategy, a digest of the
// predicate set it was minted for, and the store-native continuation token of
// every executor in play.
//
// Cursors are stateless: everything needed to resume travels inside the
// token. Decoding is defensive; a cursor replayed with a different predicate
// set fails closed with ErrInvalid, and an unknown format version fails with
// ErrExpired so callers can restart the search cleanly.
package cursor

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/pierrec/lz4/v4"

	"github.com/scoutdex/scoutdex/predicate"
)

var (
	// ErrInvalid marks a cursor that is malformed or was minted for a
	// different predicate set. Never reinterpreted.
	ErrInvalid = errors.New("cursor: invalid")

	// ErrExpired marks a cursor from an incompatible format version.
	// Retryable by resubmitting the request without a cursor.
	ErrExpired = errors.New("cursor: expired")
)

const (
	version byte = 1

	// flagLZ4 marks an lz4 block-compressed body. Continuation tokens from
	// the store can be large; small bodies stay raw.
	flagLZ4 byte = 1 << 0

	compressThreshold = 128
	maxBodySize       = 1 << 20
	maxDelivered      = 1 << 16
)

// crc32cTable is pre-computed for the CRC32-Castagnoli polynomial.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// State is the decoded cursor content.
type State struct {
	// Strategy is the planner strategy tag the cursor was minted under.
	Strategy uint8

	// Digest is the predicate-set digest; see Digest.
	Digest uint32

	// Projections are the executors in play, in fan-out order.
	Projections []string

	// Tokens holds one store continuation token per projection, parallel
	// to Projections. A nil token means that branch is exhausted.
	Tokens [][]byte

	// Delivered lists entity IDs already returned on earlier pages.
	// Fan-out branches overlap, so a branch may surface an entity that
	// another branch delivered before; executors consult this set to
	// keep delivery exactly-once across pages.
	Delivered []string
}

// Digest computes the replay-safety digest of a predicate set. The set is
// canonicalized first, so predicate order does not matter.
func Digest(set predicate.Set) uint32 {
	h := crc32.New(crc32cTable)
	for _, p := range set.Canonical() {
		repr := p.Repr()
		var lenBuf [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(lenBuf[:], uint64(len(repr)))
		h.Write(lenBuf[:n])
		h.Write([]byte(repr))
	}
	return h.Sum32()
}

// Encode serializes the state into an opaque URL-safe token.
func Encode(st State) (string, error) {
	if len(st.Projections) != len(st.Tokens) {
		return "", fmt.Errorf("cursor: %d projections but %d tokens", len(st.Projections), len(st.Tokens))
	}

	body := make([]byte, 0, 64)
	body = append(body, st.Strategy)
	body = binary.LittleEndian.AppendUint32(body, st.Digest)
	body = binary.AppendUvarint(body, uint64(len(st.Projections)))
	for i, name := range st.Projections {
		body = binary.AppendUvarint(body, uint64(len(name)))
		body = append(body, name...)
		body = binary.AppendUvarint(body, uint64(len(st.Tokens[i])))
		body = append(body, st.Tokens[i]...)
	}
	body = binary.AppendUvarint(body, uint64(len(st.Delivered)))
	for _, id := range st.Delivered {
		body = binary.AppendUvarint(body, uint64(len(id)))
		body = append(body, id...)
	}

	frame := []byte{version, 0}
	if len(body) >= compressThreshold {
		dst := make([]byte, lz4.CompressBlockBound(len(body)))
		n, err := lz4.CompressBlock(body, dst, nil)
		if err == nil && n > 0 && n < len(body) {
			frame[1] |= flagLZ4
			frame = binary.AppendUvarint(frame, uint64(len(body)))
			frame = append(frame, dst[:n]...)
			return base64.RawURLEncoding.EncodeToString(frame), nil
		}
	}
	frame = append(frame, body...)
	return base64.RawURLEncoding.EncodeToString(frame), nil
}

// Decode parses a token and validates it against the digest of the incoming
// predicate set. Any mismatch or malformation fails closed.
func Decode(token string, wantDigest uint32) (State, error) {
	frame, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return State{}, fmt.Errorf("%w: not base64", ErrInvalid)
	}
	if len(frame) < 2 {
		return State{}, fmt.Errorf("%w: short frame", ErrInvalid)
	}
	if frame[0] != version {
		return State{}, fmt.Errorf("%w: version %d", ErrExpired, frame[0])
	}
	flags := frame[1]
	if flags&^flagLZ4 != 0 {
		return State{}, fmt.Errorf("%w: unknown flags %#x", ErrInvalid, flags)
	}

	body := frame[2:]
	if flags&flagLZ4 != 0 {
		rawLen, n := binary.Uvarint(body)
		if n <= 0 || rawLen > maxBodySize {
			return State{}, fmt.Errorf("%w: bad body length", ErrInvalid)
		}
		dst := make([]byte, rawLen)
		sz, err := lz4.UncompressBlock(body[n:], dst)
		if err != nil || uint64(sz) != rawLen {
			return State{}, fmt.Errorf("%w: corrupt body", ErrInvalid)
		}
		body = dst
	}

	st, err := parseBody(body)
	if err != nil {
		return State{}, err
	}
	if st.Digest != wantDigest {
		return State{}, fmt.Errorf("%w: predicate set changed", ErrInvalid)
	}
	return st, nil
}

func parseBody(body []byte) (State, error) {
	if len(body) < 5 {
		return State{}, fmt.Errorf("%w: short body", ErrInvalid)
	}
	st := State{
		Strategy: body[0],
		Digest:   binary.LittleEndian.Uint32(body[1:5]),
	}
	body = body[5:]

	count, n := binary.Uvarint(body)
	if n <= 0 || count > 64 {
		return State{}, fmt.Errorf("%w: bad executor count", ErrInvalid)
	}
	body = body[n:]

	st.Projections = make([]string, 0, count)
	st.Tokens = make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		name, rest, err := readChunk(body)
		if err != nil {
			return State{}, err
		}
		body = rest
		token, rest, err := readChunk(body)
		if err != nil {
			return State{}, err
		}
		body = rest

		st.Projections = append(st.Projections, string(name))
		if len(token) == 0 {
			st.Tokens = append(st.Tokens, nil)
		} else {
			st.Tokens = append(st.Tokens, append([]byte(nil), token...))
		}
	}
	delivered, n := binary.Uvarint(body)
	if n <= 0 || delivered > maxDelivered {
		return State{}, fmt.Errorf("%w: bad delivered count", ErrInvalid)
	}
	body = body[n:]
	if delivered > 0 {
		st.Delivered = make([]string, 0, delivered)
		for i := uint64(0); i < delivered; i++ {
			id, rest, err := readChunk(body)
			if err != nil {
				return State{}, err
			}
			body = rest
			st.Delivered = append(st.Delivered, string(id))
		}
	}

	if len(body) != 0 {
		return State{}, fmt.Errorf("%w: trailing bytes", ErrInvalid)
	}
	return st, nil
}

func readChunk(data []byte) ([]byte, []byte, error) {
	l, n := binary.Uvarint(data)
	if n <= 0 || l > maxBodySize {
		return nil, nil, fmt.Errorf("%w: bad chunk length", ErrInvalid)
	}
	data = data[n:]
	if uint64(len(data)) < l {
		return nil, nil, fmt.Errorf("%w: short chunk", ErrInvalid)
	}
	return data[:l], data[l:], nil
}
