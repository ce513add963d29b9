package messages

import (
	"encoding/base64"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var jsonNull = []byte(`null`)

// PartType names the kind of a content part.
type PartType string

const (
	PartText      PartType = "text"
	PartImage     PartType = "image"
	PartAudio     PartType = "audio"
	PartFileLink  PartType = "file_link"
	PartReasoning PartType = "reasoning"
)

// Part is a piece of message content. The set of implementations is closed:
// TextPart, ImagePart, AudioPart, FileLinkPart and ReasoningPart.
type Part interface {
	Type() PartType
	part()
}

// Text creates a new TextPart with the given text.
func Text(text string) TextPart {
	return TextPart{Text: text}
}

// TextPart represents a text-only content part.
type TextPart struct {
	Text string   `json:"text"`
	_    struct{} // require keyed usage
}

func (TextPart) part()          {}
func (TextPart) Type() PartType { return PartText }

var tpJSON = []byte(`{"type":"text"}`)

// MarshalJSON serializes the text content with a "type":"text" field.
func (t TextPart) MarshalJSON() ([]byte, error) {
	return sjson.SetBytes(tpJSON, "text", t.Text)
}

// UnmarshalJSON validates and extracts the required 'text' field from the JSON input.
func (t *TextPart) UnmarshalJSON(input []byte) error {
	text := gjson.GetBytes(input, "text")
	if !text.Exists() {
		return errors.New("missing required field 'text'")
	}
	t.Text = text.String()
	return nil
}

// Image creates a new ImagePart for the given URL. Data URLs are allowed.
func Image(url string) ImagePart {
	return ImagePart{URL: url}
}

// ImagePart references an image by URL, optionally with a detail hint and a mime type.
type ImagePart struct {
	URL      string   `json:"image_url"`
	Detail   string   `json:"detail,omitempty"`
	MimeType string   `json:"mime_type,omitempty"`
	_        struct{} // require keyed usage
}

func (ImagePart) part()          {}
func (ImagePart) Type() PartType { return PartImage }

var ipJSON = []byte(`{"type":"image"}`)

// MarshalJSON serializes the image URL with a "type":"image" field.
func (i ImagePart) MarshalJSON() ([]byte, error) {
	b, err := sjson.SetBytes(ipJSON, "image_url", i.URL)
	if err != nil {
		return nil, err
	}
	if i.Detail != "" {
		if b, err = sjson.SetBytes(b, "detail", i.Detail); err != nil {
			return nil, err
		}
	}
	if i.MimeType != "" {
		if b, err = sjson.SetBytes(b, "mime_type", i.MimeType); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// UnmarshalJSON validates and extracts the required 'image_url' field from the JSON input.
func (i *ImagePart) UnmarshalJSON(input []byte) error {
	uri := gjson.GetBytes(input, "image_url")
	if !uri.Exists() {
		return errors.New("missing required field 'image_url'")
	}
	i.URL = uri.String()
	i.Detail = gjson.GetBytes(input, "detail").String()
	i.MimeType = gjson.GetBytes(input, "mime_type").String()
	return nil
}

// Audio creates a new AudioPart with the provided raw audio data and format.
// The format parameter specifies the audio encoding (e.g., "wav", "mp3").
func Audio(data []byte, format string) AudioPart {
	return AudioPart{Data: data, Format: format}
}

// AudioPart carries inline audio input.
type AudioPart struct {
	Data   []byte   `json:"-"`
	Format string   `json:"format"`
	_      struct{} // require keyed usage
}

func (AudioPart) part()          {}
func (AudioPart) Type() PartType { return PartAudio }

var apJSON = []byte(`{"type":"audio"}`)

// MarshalJSON encodes the audio data as base64 with a "type":"audio" field.
func (a AudioPart) MarshalJSON() ([]byte, error) {
	b, err := sjson.SetBytes(apJSON, "input_audio.data", base64.StdEncoding.EncodeToString(a.Data))
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(b, "input_audio.format", a.Format)
}

// UnmarshalJSON validates and extracts the required 'input_audio' object containing 'data' and 'format' fields.
func (a *AudioPart) UnmarshalJSON(input []byte) error {
	if !gjson.ValidBytes(input) {
		return fmt.Errorf("invalid json for audio part")
	}

	audioJSON := gjson.GetBytes(input, "input_audio")
	if !audioJSON.IsObject() {
		return fmt.Errorf("missing required object 'input_audio'")
	}

	data := audioJSON.Get("data")
	format := audioJSON.Get("format")
	if !data.Exists() || !format.Exists() {
		return fmt.Errorf("input_audio requires both 'data' and 'format' fields")
	}

	decoded, err := base64.StdEncoding.DecodeString(data.String())
	if err != nil {
		return fmt.Errorf("invalid base64 data: %w", err)
	}
	a.Data = decoded
	a.Format = format.String()
	return nil
}

// FileLink creates a new FileLinkPart for a previously uploaded or remote file.
func FileLink(uri, mimeType string) FileLinkPart {
	return FileLinkPart{URI: uri, MimeType: mimeType}
}

// FileLinkPart references a file by URI instead of inlining its bytes.
type FileLinkPart struct {
	URI      string   `json:"uri"`
	MimeType string   `json:"mime_type,omitempty"`
	Name     string   `json:"name,omitempty"`
	_        struct{} // require keyed usage
}

func (FileLinkPart) part()          {}
func (FileLinkPart) Type() PartType { return PartFileLink }

var fpJSON = []byte(`{"type":"file_link"}`)

func (f FileLinkPart) MarshalJSON() ([]byte, error) {
	b, err := sjson.SetBytes(fpJSON, "uri", f.URI)
	if err != nil {
		return nil, err
	}
	if f.MimeType != "" {
		if b, err = sjson.SetBytes(b, "mime_type", f.MimeType); err != nil {
			return nil, err
		}
	}
	if f.Name != "" {
		if b, err = sjson.SetBytes(b, "name", f.Name); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (f *FileLinkPart) UnmarshalJSON(input []byte) error {
	uri := gjson.GetBytes(input, "uri")
	if !uri.Exists() {
		return errors.New("missing required field 'uri'")
	}
	f.URI = uri.String()
	f.MimeType = gjson.GetBytes(input, "mime_type").String()
	f.Name = gjson.GetBytes(input, "name").String()
	return nil
}

// Reasoning creates a new ReasoningPart with visible reasoning content.
func Reasoning(content, signature string) ReasoningPart {
	return ReasoningPart{Content: content, Signature: signature}
}

// RedactedReasoning creates a ReasoningPart whose content the vendor withheld.
func RedactedReasoning(signature string) ReasoningPart {
	return ReasoningPart{Signature: signature, Redacted: true}
}

// ReasoningPart holds model reasoning ("thinking") output. Some vendors sign reasoning
// blocks and require the signature to be echoed back verbatim on the next turn.
type ReasoningPart struct {
	Content   string   `json:"content,omitempty"`
	Signature string   `json:"signature,omitempty"`
	Redacted  bool     `json:"redacted,omitempty"`
	_         struct{} // require keyed usage
}

func (ReasoningPart) part()          {}
func (ReasoningPart) Type() PartType { return PartReasoning }

// IsRedacted reports whether the block's content was withheld, either explicitly
// or implicitly by carrying only a signature.
func (r ReasoningPart) IsRedacted() bool {
	return r.Redacted || (r.Content == "" && r.Signature != "")
}

// Validate rejects a redacted block without the signature needed to replay it.
func (r ReasoningPart) Validate() error {
	if r.Redacted && r.Signature == "" {
		return errors.New("redacted reasoning requires a signature")
	}
	return nil
}

var rpJSON = []byte(`{"type":"reasoning"}`)

func (r ReasoningPart) MarshalJSON() ([]byte, error) {
	b := rpJSON
	var err error
	if r.Content != "" {
		if b, err = sjson.SetBytes(b, "content", r.Content); err != nil {
			return nil, err
		}
	}
	if r.Signature != "" {
		if b, err = sjson.SetBytes(b, "signature", r.Signature); err != nil {
			return nil, err
		}
	}
	if r.Redacted {
		if b, err = sjson.SetBytes(b, "redacted", true); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (r *ReasoningPart) UnmarshalJSON(input []byte) error {
	if !gjson.ValidBytes(input) {
		return fmt.Errorf("invalid json for reasoning part")
	}
	r.Content = gjson.GetBytes(input, "content").String()
	r.Signature = gjson.GetBytes(input, "signature").String()
	r.Redacted = gjson.GetBytes(input, "redacted").Bool()
	return r.Validate()
}

// Parts is an ordered list of content parts with a discriminated JSON codec.
type Parts []Part

func (p Parts) MarshalJSON() ([]byte, error) {
	if p == nil {
		return jsonNull, nil
	}
	return json.Marshal([]Part(p))
}

// UnmarshalJSON decodes an array of parts, dispatching on each element's "type".
func (p *Parts) UnmarshalJSON(input []byte) error {
	if !gjson.ValidBytes(input) {
		return fmt.Errorf("invalid json: %s", input)
	}
	jv := gjson.ParseBytes(input)
	if jv.Type == gjson.Null {
		*p = nil
		return nil
	}
	if !jv.IsArray() {
		return errors.New("parts must be a json array")
	}
	aj := jv.Array()
	parts := make(Parts, len(aj))
	for idx, ajv := range aj {
		part, err := decodePart(ajv)
		if err != nil {
			return fmt.Errorf("invalid part at %d: %w", idx, err)
		}
		parts[idx] = part
	}
	*p = parts
	return nil
}

func decodePart(v gjson.Result) (Part, error) {
	raw := []byte(v.Raw)
	switch tpe := PartType(v.Get("type").String()); tpe {
	case PartText:
		var part TextPart
		err := part.UnmarshalJSON(raw)
		return part, err
	case PartImage:
		var part ImagePart
		err := part.UnmarshalJSON(raw)
		return part, err
	case PartAudio:
		var part AudioPart
		err := part.UnmarshalJSON(raw)
		return part, err
	case PartFileLink:
		var part FileLinkPart
		err := part.UnmarshalJSON(raw)
		return part, err
	case PartReasoning:
		var part ReasoningPart
		err := part.UnmarshalJSON(raw)
		return part, err
	default:
		return nil, fmt.Errorf("unknown part type %q", tpe)
	}
}
