package dynamo

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// LastEvaluatedKey round-trips through the engine cursor, so it needs a
// compact deterministic byte encoding. Only S, N and B key attributes occur
// in DynamoDB primary keys.
//
// Layout: uvarint count, then per attribute: name (uvarint len + bytes),
// one type byte, payload (uvarint len + bytes).

const (
	tokenKindS byte = 'S'
	tokenKindN byte = 'N'
	tokenKindB byte = 'B'
)

func encodeKey(key map[string]types.AttributeValue) ([]byte, error) {
	names := make([]string, 0, len(key))
	for name := range key {
		names = append(names, name)
	}
	sort.Strings(names)

	buf := binary.AppendUvarint(nil, uint64(len(names)))
	for _, name := range names {
		var kind byte
		var payload []byte
		switch t := key[name].(type) {
		case *types.AttributeValueMemberS:
			kind, payload = tokenKindS, []byte(t.Value)
		case *types.AttributeValueMemberN:
			kind, payload = tokenKindN, []byte(t.Value)
		case *types.AttributeValueMemberB:
			kind, payload = tokenKindB, t.Value
		default:
			return nil, fmt.Errorf("unsupported key attribute type %T for %q", key[name], name)
		}
		buf = binary.AppendUvarint(buf, uint64(len(name)))
		buf = append(buf, name...)
		buf = append(buf, kind)
		buf = binary.AppendUvarint(buf, uint64(len(payload)))
		buf = append(buf, payload...)
	}
	return buf, nil
}

func decodeKey(data []byte) (map[string]types.AttributeValue, error) {
	count, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, fmt.Errorf("malformed token header")
	}
	data = data[n:]

	key := make(map[string]types.AttributeValue, count)
	for i := uint64(0); i < count; i++ {
		name, rest, err := readBytes(data)
		if err != nil {
			return nil, err
		}
		data = rest
		if len(data) < 1 {
			return nil, fmt.Errorf("truncated token")
		}
		kind := data[0]
		data = data[1:]
		payload, rest, err := readBytes(data)
		if err != nil {
			return nil, err
		}
		data = rest

		switch kind {
		case tokenKindS:
			key[string(name)] = &types.AttributeValueMemberS{Value: string(payload)}
		case tokenKindN:
			key[string(name)] = &types.AttributeValueMemberN{Value: string(payload)}
		case tokenKindB:
			key[string(name)] = &types.AttributeValueMemberB{Value: payload}
		default:
			return nil, fmt.Errorf("unknown key attribute kind %q", kind)
		}
	}
	if len(data) != 0 {
		return nil, fmt.Errorf("trailing bytes in token")
	}
	return key, nil
}

func readBytes(data []byte) ([]byte, []byte, error) {
	l, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, nil, fmt.Errorf("malformed length")
	}
	data = data[n:]
	if uint64(len(data)) < l {
		return nil, nil, fmt.Errorf("short buffer")
	}
	return data[:l], data[l:], nil
}
