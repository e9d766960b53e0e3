package messages

import (
	"fmt"

	cbor "github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CanonicalEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(err)
	}
}

var decoders = map[Kind]func([]byte) (Message, error){
	KindAssignTask:   decode[AssignTask],
	KindCancelTask:   decode[CancelTask],
	KindChunkData:    decode[ChunkData],
	KindConfigUpdate: decode[ConfigUpdate],
	KindStatsRequest: decode[StatsRequest],
	KindTaskResult:   decode[TaskResult],
	KindChunkRequest: decode[ChunkRequest],
	KindNotification: decode[Notification],
	KindStatsReport:  decode[StatsReport],
}

func decode[T Message](body []byte) (Message, error) {
	var m T
	if err := decMode.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Marshal encodes m as a frame payload.
func Marshal(m Message) ([]byte, error) {
	body, err := encMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	out := make([]byte, 0, 1+len(body))
	out = append(out, byte(m.Kind()))
	return append(out, body...), nil
}

// Unmarshal decodes a frame payload produced by Marshal.
func Unmarshal(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	k := Kind(data[0])
	dec, ok := decoders[k]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, data[0])
	}
	m, err := dec(data[1:])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", k, err)
	}
	return m, nil
}

// EncodeValue encodes an arbitrary value with the message codec. Task params
// and result payloads use it so the whole channel speaks one format.
func EncodeValue(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// DecodeValue is the counterpart of EncodeValue.
func DecodeValue(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
