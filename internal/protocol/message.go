package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// PayloadSeparator divides a message header from its payload.
const PayloadSeparator = "-###"

// Namespaces used by the Bluerial services.
const (
	NamespaceBLE    = "ble"
	NamespaceSerial = "serial"
)

// Message is one parsed protocol message.
type Message struct {
	Namespace string
	Verb      string

	// Payload is the raw text after the separator, unmodified.
	Payload string

	// HasPayload distinguishes "ble-add-###" (empty payload) from "ble-add".
	HasPayload bool
}

// New returns a payload-less message.
func New(namespace, verb string) Message {
	return Message{Namespace: namespace, Verb: verb}
}

// WithPayload returns a message carrying payload.
func WithPayload(namespace, verb, payload string) Message {
	return Message{Namespace: namespace, Verb: verb, Payload: payload, HasPayload: true}
}

// Parse decodes raw into a Message.
//
// The header is matched case-insensitively and normalised to lower case.
// The payload is returned byte-for-byte.
//
// Parameters:
//   - raw: Message text as received from the transport
//
// Returns:
//   - Message: Parsed message
//   - error: ErrEmpty or ErrMalformed (wrapped with the offending header)
func Parse(raw string) (Message, error) {
	header := raw
	var msg Message
	if idx := strings.Index(raw, PayloadSeparator); idx >= 0 {
		header = raw[:idx]
		msg.Payload = raw[idx+len(PayloadSeparator):]
		msg.HasPayload = true
	}

	header = strings.ToLower(strings.TrimSpace(header))
	if header == "" {
		if !msg.HasPayload && strings.TrimSpace(raw) == "" {
			return Message{}, ErrEmpty
		}
		return Message{}, fmt.Errorf("%w: missing header", ErrMalformed)
	}

	ns, verb, ok := strings.Cut(header, "-")
	if !ok || !isToken(ns) || !isVerb(verb) {
		return Message{}, fmt.Errorf("%w: %q", ErrMalformed, header)
	}

	msg.Namespace = ns
	msg.Verb = verb
	return msg, nil
}

// String encodes the message in wire form.
func (m Message) String() string {
	var b strings.Builder
	b.WriteString(m.Namespace)
	b.WriteByte('-')
	b.WriteString(m.Verb)
	if m.HasPayload {
		b.WriteString(PayloadSeparator)
		b.WriteString(m.Payload)
	}
	return b.String()
}

// Bytes returns the wire form as a byte slice, ready for publishing.
func (m Message) Bytes() []byte {
	return []byte(m.String())
}

// isVerb reports whether s is one or more tokens joined by "-".
func isVerb(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, "-") {
		if !isToken(part) {
			return false
		}
	}
	return true
}

func isToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}

// ParseHexBytes parses a comma- or space-separated list of hex bytes such as
// "02,0A" or "0x02 0x0a". An empty or blank list yields nil.
func ParseHexBytes(s string) ([]byte, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(fields) == 0 {
		return nil, nil
	}

	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimPrefix(strings.TrimPrefix(f, "0x"), "0X")
		if f == "" || len(f) > 2 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHex, f)
		}
		v, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHex, f)
		}
		out = append(out, byte(v))
	}
	return out, nil
}

// FormatHexBytes renders b as upper-case two-digit hex joined by sep.
func FormatHexBytes(b []byte, sep string) string {
	if len(b) == 0 {
		return ""
	}
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, sep)
}
