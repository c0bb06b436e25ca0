// Package packet implements the AgentBus packet codec: parsing and
// rendering of the header+body document format, and header validation.
// A packet is a single text document — a JSON header block delimited by
// three-hyphen lines, followed by a free-form body.
package packet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Delimiter is the header fence line. Three hyphens, matching the teacher
// repo's own frontmatter convention (internal/formatter markdown template).
const Delimiter = "---"

// SafeIDPattern is the id validity pattern required by the spec.
var SafeIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,200}$`)

var validate = validator.New()

// KnownSignalKinds enumerates the recognized signals.kind values.
var KnownSignalKinds = map[string]bool{
	"USER_REQUEST":            true,
	"PLAN_REQUEST":            true,
	"EXECUTE":                 true,
	"ORCHESTRATOR_UPDATE":     true,
	"TASK_COMPLETE":           true,
	"REVIEW_ACTION_REQUIRED":  true,
	"OPUS_CONSULT_REQUEST":    true,
	"OPUS_CONSULT_RESPONSE":   true,
	"STATUS":                  true,
}

// Header is the structured portion of a packet. Signals and References are
// kept as generic maps so that unknown fields survive parse/update/render,
// per the spec's forward-compatibility requirement; they are re-encoded on
// render (sorted keys, indented), not copied byte-for-byte.
// Known sub-fields are read and written through the accessor methods below
// rather than promoted to typed struct fields.
type Header struct {
	ID         string         `json:"id" validate:"required"`
	To         []string       `json:"to" validate:"required,min=1"`
	From       string         `json:"from" validate:"required"`
	Priority   string         `json:"priority,omitempty"`
	Title      string         `json:"title" validate:"required"`
	Signals    map[string]any `json:"signals,omitempty"`
	References map[string]any `json:"references,omitempty"`

	// Extra holds any header-level keys this codec does not recognize,
	// preserved verbatim across parse/render.
	Extra map[string]any `json:"-"`
}

// Packet is a fully parsed document: header plus body.
type Packet struct {
	Header Header
	Body   string
}

// SignalKind returns signals.kind, or "" if absent.
func (h *Header) SignalKind() string { return stringField(h.Signals, "kind") }

// SignalString returns a string-valued signals field, or "" if absent/non-string.
func (h *Header) SignalString(key string) string { return stringField(h.Signals, key) }

// SignalBool returns a bool-valued signals field and whether it was present.
func (h *Header) SignalBool(key string) (bool, bool) { return boolField(h.Signals, key) }

// RootID returns signals.rootId, defaulting to the packet's own id per the
// workflow-identity invariant.
func (h *Header) RootID() string {
	if v := stringField(h.Signals, "rootId"); v != "" {
		return v
	}
	return h.ID
}

// ParentID returns signals.parentId, defaulting to RootID() for every
// non-USER_REQUEST packet, per the invariant in spec §3.
func (h *Header) ParentID() string {
	if v := stringField(h.Signals, "parentId"); v != "" {
		return v
	}
	if h.SignalKind() == "USER_REQUEST" {
		return ""
	}
	return h.RootID()
}

// ReferenceString returns a string-valued references field, or "" if absent.
func (h *Header) ReferenceString(key string) string { return stringField(h.References, key) }

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func boolField(m map[string]any, key string) (bool, bool) {
	if m == nil {
		return false, false
	}
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b, true
		}
	}
	return false, false
}

// rawHeader mirrors Header's JSON shape for decode/encode, capturing unknown
// keys via json.RawMessage so they can be split into Extra.
type rawHeader struct {
	ID         string          `json:"id"`
	To         []string        `json:"to"`
	From       string          `json:"from"`
	Priority   string          `json:"priority,omitempty"`
	Title      string          `json:"title"`
	Signals    json.RawMessage `json:"signals,omitempty"`
	References json.RawMessage `json:"references,omitempty"`
}

var knownHeaderKeys = map[string]bool{
	"id": true, "to": true, "from": true, "priority": true,
	"title": true, "signals": true, "references": true,
}

// Parse splits a rendered packet into its header and body. The sentinel for
// "not a packet" is a missing opening delimiter at the very start of the
// (trimmed-of-leading-whitespace) input.
func Parse(raw string) (Header, string, error) {
	trimmed := strings.TrimLeft(raw, " \t\r\n")
	if !strings.HasPrefix(trimmed, Delimiter) {
		return Header{}, "", ErrNotAPacket
	}
	rest := trimmed[len(Delimiter):]
	rest = strings.TrimPrefix(rest, "\n")
	rest = strings.TrimPrefix(rest, "\r\n")

	closeIdx := findClosingDelimiter(rest)
	if closeIdx < 0 {
		return Header{}, "", ErrHeaderUnterminated
	}

	headerBlock := strings.TrimSpace(rest[:closeIdx])
	body := rest[closeIdx:]
	body = strings.TrimPrefix(body, Delimiter)
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimPrefix(body, "\r\n")

	hdr, err := decodeHeader(headerBlock)
	if err != nil {
		return Header{}, "", err
	}
	return hdr, body, nil
}

// findClosingDelimiter finds the index of the line consisting solely of the
// delimiter, searching line-by-line so a delimiter sequence embedded inside
// JSON string values is never mistaken for the fence.
func findClosingDelimiter(s string) int {
	offset := 0
	for {
		nl := strings.IndexByte(s[offset:], '\n')
		var line string
		lineEnd := offset
		if nl < 0 {
			line = s[offset:]
			lineEnd = len(s)
		} else {
			line = s[offset : offset+nl]
			lineEnd = offset + nl
		}
		if strings.TrimSpace(line) == Delimiter {
			return offset
		}
		if nl < 0 {
			return -1
		}
		offset = lineEnd + 1
	}
}

func decodeHeader(block string) (Header, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal([]byte(block), &generic); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrHeaderNotJSON, err)
	}

	var raw rawHeader
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrHeaderNotJSON, err)
	}

	hdr := Header{
		ID:       raw.ID,
		To:       raw.To,
		From:     raw.From,
		Priority: raw.Priority,
		Title:    raw.Title,
		Extra:    map[string]any{},
	}
	if len(raw.Signals) > 0 {
		if err := json.Unmarshal(raw.Signals, &hdr.Signals); err != nil {
			return Header{}, fmt.Errorf("%w: signals: %v", ErrSignalsNotMapping, err)
		}
	}
	if len(raw.References) > 0 {
		if err := json.Unmarshal(raw.References, &hdr.References); err != nil {
			return Header{}, fmt.Errorf("%w: references: %v", ErrReferencesNotMapping, err)
		}
	}
	for k, v := range generic {
		if knownHeaderKeys[k] {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err == nil {
			hdr.Extra[k] = val
		}
	}
	return hdr, nil
}

// Render produces the canonical on-disk encoding: header block first, body
// trailing, normalized to end with exactly one newline.
func Render(h Header, body string) (string, error) {
	encoded, err := encodeHeader(h)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	buf.WriteString(Delimiter)
	buf.WriteString("\n")
	buf.Write(encoded)
	buf.WriteString("\n")
	buf.WriteString(Delimiter)
	buf.WriteString("\n")
	normalizedBody := strings.TrimRight(body, "\n")
	buf.WriteString(normalizedBody)
	buf.WriteString("\n")
	return buf.String(), nil
}

func encodeHeader(h Header) ([]byte, error) {
	obj := map[string]any{
		"id":    h.ID,
		"to":    h.To,
		"from":  h.From,
		"title": h.Title,
	}
	if h.Priority != "" {
		obj["priority"] = h.Priority
	}
	if len(h.Signals) > 0 {
		obj["signals"] = h.Signals
	}
	if len(h.References) > 0 {
		obj["references"] = h.References
	}
	for k, v := range h.Extra {
		if knownHeaderKeys[k] {
			continue
		}
		obj[k] = v
	}
	return json.MarshalIndent(obj, "", "  ")
}

// ValidateHeader enforces required field presence and type, safe-id format,
// non-empty/duplicate-free recipient lists, and signals/references being
// mappings when present. knownAgents, when non-nil, is used to reject
// recipients absent from the roster; pass nil to skip that check (e.g. when
// validating a header before the roster is known).
func ValidateHeader(h Header, knownAgents map[string]bool) error {
	if err := validate.Struct(h); err != nil {
		return classifyValidatorError(err)
	}
	if !SafeIDPattern.MatchString(h.ID) {
		return ErrInvalidID
	}
	seen := make(map[string]bool, len(h.To))
	for _, to := range h.To {
		if seen[to] {
			return ErrDuplicateRecipients
		}
		seen[to] = true
		if knownAgents != nil && !knownAgents[to] {
			return fmt.Errorf("%w: %s", ErrUnknownRecipient, to)
		}
	}
	return nil
}

func classifyValidatorError(err error) error {
	var verrs validator.ValidationErrors
	if !asValidationErrors(err, &verrs) {
		return err
	}
	for _, fe := range verrs {
		switch fe.Field() {
		case "ID":
			return ErrMissingID
		case "To":
			return ErrEmptyRecipients
		case "From":
			return ErrMissingFrom
		case "Title":
			return ErrMissingTitle
		}
	}
	return err
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return false
	}
	*target = verrs
	return true
}
