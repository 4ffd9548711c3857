package ossso

import (
	"fmt"

	"github.com/blueidhq/accesscore/pkg/primitives"
)

const extensionsHeaderSize = 2

// TagValidityStart is the known CustomerExtensions tag carrying a
// timestamp below which access must be denied.
const TagValidityStart uint32 = 0x01

// ExtensionFeature is one decoded {tag, value} record.
type ExtensionFeature struct {
	Tag   uint32
	Value []byte
}

// CustomerExtensions is the parsed extension file: the feature records it
// contains. The 2-byte fileSize header is not kept; Encode recomputes it.
type CustomerExtensions struct {
	Features []ExtensionFeature
}

// MaxExtensionValueLen bounds a single feature's value length; the writer
// refuses to emit anything larger.
const MaxExtensionValueLen = 0xFFFF

// DecodeCustomerExtensions parses the 2-byte fileSize header and the
// trailing BER-TLV-like feature records. Each length/tag field uses a
// self-describing lead byte: 0x00..0x7F is the inline value, 0x81 xx is a
// 1-byte length/tag, 0x82 xxxx is a 2-byte big-endian length/tag.
func DecodeCustomerExtensions(b []byte) (CustomerExtensions, error) {
	if len(b) < extensionsHeaderSize {
		return CustomerExtensions{}, errKind("DecodeCustomerExtensions", KindExtensionFileSizeInvalid, fmt.Errorf("short header: %d bytes", len(b)))
	}
	fileSize, _ := primitives.ReadU16BE(b, 0)
	if int(fileSize) > len(b)-extensionsHeaderSize {
		return CustomerExtensions{}, errKind("DecodeCustomerExtensions", KindExtensionFileSizeTooLarge, fmt.Errorf("fileSize %d exceeds buffer", fileSize))
	}
	body := b[extensionsHeaderSize : extensionsHeaderSize+int(fileSize)]

	var features []ExtensionFeature
	off := 0
	for off < len(body) {
		tag, n, err := decodeSelfDescribing(body[off:])
		if err != nil {
			return CustomerExtensions{}, errKind("DecodeCustomerExtensions", KindInvalidExtensionTag, err)
		}
		off += n

		length, n, err := decodeSelfDescribing(body[off:])
		if err != nil {
			return CustomerExtensions{}, errKind("DecodeCustomerExtensions", KindInvalidExtensionLength, err)
		}
		off += n

		if length > MaxExtensionValueLen {
			return CustomerExtensions{}, errKind("DecodeCustomerExtensions", KindExtensionValueTooLarge, fmt.Errorf("value length %d too large", length))
		}
		if off+int(length) > len(body) {
			return CustomerExtensions{}, errKind("DecodeCustomerExtensions", KindInvalidExtensionLength, fmt.Errorf("value overruns buffer"))
		}
		value := append([]byte{}, body[off:off+int(length)]...)
		off += int(length)

		features = append(features, ExtensionFeature{Tag: tag, Value: value})
		if len(features) > 255 {
			return CustomerExtensions{}, errKind("DecodeCustomerExtensions", KindExtensionTooManyFeatures, fmt.Errorf("too many extension features"))
		}
	}
	return CustomerExtensions{Features: features}, nil
}

// Encode serialises ce's features into the wire form, choosing the
// shortest legal self-describing encoding for every tag/length.
func (ce CustomerExtensions) Encode() ([]byte, error) {
	var body []byte
	for _, f := range ce.Features {
		if len(f.Value) > MaxExtensionValueLen {
			return nil, errKind("CustomerExtensions.Encode", KindExtensionValueTooLarge, fmt.Errorf("value length %d too large", len(f.Value)))
		}
		body = append(body, encodeSelfDescribing(f.Tag)...)
		body = append(body, encodeSelfDescribing(uint32(len(f.Value)))...)
		body = append(body, f.Value...)
	}
	if len(body) > 0xFFFF {
		return nil, errKind("CustomerExtensions.Encode", KindExtensionFileSizeTooLarge, fmt.Errorf("extensions body too large: %d", len(body)))
	}
	out := make([]byte, extensionsHeaderSize)
	_ = primitives.WriteU16BE(out, 0, uint16(len(body)))
	return append(out, body...), nil
}

// Get returns the raw value for tag, if present.
func (ce CustomerExtensions) Get(tag uint32) ([]byte, bool) {
	for _, f := range ce.Features {
		if f.Tag == tag {
			return f.Value, true
		}
	}
	return nil, false
}

// ValidityStart returns the decoded timestamp for TagValidityStart, if
// present.
func (ce CustomerExtensions) ValidityStart() (primitives.LocalTimestamp, bool, error) {
	v, ok := ce.Get(TagValidityStart)
	if !ok {
		return primitives.LocalTimestamp{}, false, nil
	}
	ts, err := DecodeTimestamp(v)
	if err != nil {
		return primitives.LocalTimestamp{}, false, err
	}
	return ts, true, nil
}

func decodeSelfDescribing(b []byte) (uint32, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("unexpected end of buffer")
	}
	lead := b[0]
	switch {
	case lead <= 0x7F:
		return uint32(lead), 1, nil
	case lead == 0x81:
		if len(b) < 2 {
			return 0, 0, fmt.Errorf("truncated 1-byte extended field")
		}
		return uint32(b[1]), 2, nil
	case lead == 0x82:
		if len(b) < 3 {
			return 0, 0, fmt.Errorf("truncated 2-byte extended field")
		}
		return uint32(b[1])<<8 | uint32(b[2]), 3, nil
	default:
		return 0, 0, fmt.Errorf("unsupported lead byte 0x%02X", lead)
	}
}

func encodeSelfDescribing(v uint32) []byte {
	switch {
	case v <= 0x7F:
		return []byte{byte(v)}
	case v <= 0xFF:
		return []byte{0x81, byte(v)}
	default:
		return []byte{0x82, byte(v >> 8), byte(v)}
	}
}
