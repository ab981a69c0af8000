package probe

import (
	"errors"
	"fmt"

	"CyberGuard/internal/model"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// codecVersion is bumped whenever the field set of a packet entry changes.
const codecVersion = 1

var ErrCodecVersion = errors.New("unsupported packet batch version")

// EncodeBatch serializes a batch as a protobuf Struct:
// {"v": 1, "packets": [{...}, ...]}.
func EncodeBatch(batch []model.Packet) ([]byte, error) {
	entries := make([]any, len(batch))
	for i, p := range batch {
		flags := make([]any, 0, 6)
		for _, tok := range p.Flags.Tokens() {
			flags = append(flags, tok)
		}
		entries[i] = map[string]any{
			"id":         p.ID,
			"observedAt": float64(p.ObservedAt),
			"srcAddr":    p.SrcAddr,
			"dstAddr":    p.DstAddr,
			"srcPort":    float64(p.SrcPort),
			"dstPort":    float64(p.DstPort),
			"protocol":   p.Protocol.String(),
			"length":     float64(p.LengthBytes),
			"flags":      flags,
			"payload":    p.PayloadSample,
			"suspicious": p.FlaggedSuspicious,
		}
	}
	msg, err := structpb.NewStruct(map[string]any{
		"v":       float64(codecVersion),
		"packets": entries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build packet batch: %w", err)
	}
	return proto.Marshal(msg)
}

// DecodeBatch parses a message produced by EncodeBatch. Entries that fail
// validation are dropped; the returned error joins the reasons, so callers
// may get both packets and an error.
func DecodeBatch(data []byte) ([]model.Packet, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal packet batch: %w", err)
	}
	if v := msg.GetFields()["v"].GetNumberValue(); v != codecVersion {
		return nil, fmt.Errorf("%w: %v", ErrCodecVersion, v)
	}

	values := msg.GetFields()["packets"].GetListValue().GetValues()
	out := make([]model.Packet, 0, len(values))
	var errs []error
	for i, v := range values {
		p, err := decodePacket(v.GetStructValue())
		if err != nil {
			errs = append(errs, fmt.Errorf("packet %d: %w", i, err))
			continue
		}
		out = append(out, p)
	}
	return out, errors.Join(errs...)
}

func decodePacket(s *structpb.Struct) (model.Packet, error) {
	if s == nil {
		return model.Packet{}, errors.New("entry is not an object")
	}
	f := s.GetFields()

	protocol, err := model.ParseProtocol(f["protocol"].GetStringValue())
	if err != nil {
		return model.Packet{}, err
	}
	var tokens []string
	for _, t := range f["flags"].GetListValue().GetValues() {
		tokens = append(tokens, t.GetStringValue())
	}
	flags, err := model.ParseFlagSet(tokens)
	if err != nil {
		return model.Packet{}, err
	}

	p := model.Packet{
		ID:                f["id"].GetStringValue(),
		ObservedAt:        int64(f["observedAt"].GetNumberValue()),
		SrcAddr:           f["srcAddr"].GetStringValue(),
		DstAddr:           f["dstAddr"].GetStringValue(),
		SrcPort:           uint16(f["srcPort"].GetNumberValue()),
		DstPort:           uint16(f["dstPort"].GetNumberValue()),
		Protocol:          protocol,
		LengthBytes:       uint32(f["length"].GetNumberValue()),
		Flags:             flags,
		PayloadSample:     f["payload"].GetStringValue(),
		FlaggedSuspicious: f["suspicious"].GetBoolValue(),
	}
	if err := p.Validate(); err != nil {
		return model.Packet{}, err
	}
	return p, nil
}
