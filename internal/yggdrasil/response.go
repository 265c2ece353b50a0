package yggdrasil

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const TexturesPropertyName = "textures"

// Property is a signed key-value pair attached to a verified profile.
// The most important one is "textures", which carries the base64 encoded
// JSON blob with skin and cape URLs
type Property struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Signature string `json:"signature,omitempty"`
}

func (p *Property) Clone() *Property {
	return &Property{
		Name:      p.Name,
		Value:     p.Value,
		Signature: p.Signature,
	}
}

// VerificationResponse is the canonical form of a successful hasJoined
// answer received from one of the configured Yggdrasil session servers.
// The Id is the UUID issued by that service, not the local one
type VerificationResponse struct {
	Id         string
	Name       string
	Properties map[string]*Property
}

// Clone produces a structurally independent copy. The skin restoration
// path replaces the textures property value in place asynchronously,
// so it must never share Property pointers with the login path
func (r *VerificationResponse) Clone() *VerificationResponse {
	properties := make(map[string]*Property, len(r.Properties))
	for name, prop := range r.Properties {
		properties[name] = prop.Clone()
	}

	return &VerificationResponse{
		Id:         r.Id,
		Name:       r.Name,
		Properties: properties,
	}
}

func (r *VerificationResponse) TexturesProperty() *Property {
	return r.Properties[TexturesPropertyName]
}

type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed verification response: %s", e.Reason)
}

type rawResponse struct {
	Id    string      `json:"id"`
	Name  string      `json:"name"`
	Props []*Property `json:"properties"`
}

// Normalize parses a raw hasJoined payload and validates its structural
// shape: the id must be a parseable UUID and the name must not be empty.
// Properties content stays opaque until a downstream decoder consumes it
func Normalize(raw []byte) (*VerificationResponse, error) {
	var parsed rawResponse
	err := json.Unmarshal(raw, &parsed)
	if err != nil {
		return nil, &MalformedResponseError{Reason: err.Error()}
	}

	if parsed.Id == "" {
		return nil, &MalformedResponseError{Reason: "missing id"}
	}

	id, err := uuid.Parse(parsed.Id)
	if err != nil {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("id %q is not a valid uuid", parsed.Id)}
	}

	if parsed.Name == "" {
		return nil, &MalformedResponseError{Reason: "missing name"}
	}

	properties := make(map[string]*Property, len(parsed.Props))
	for _, prop := range parsed.Props {
		if prop == nil || prop.Name == "" {
			continue
		}

		properties[prop.Name] = prop
	}

	return &VerificationResponse{
		Id:         NormalizeUuid(id.String()),
		Name:       parsed.Name,
		Properties: properties,
	}, nil
}

// NormalizeUuid strips dashes and lowercases, matching the format
// Yggdrasil services use on the wire
func NormalizeUuid(id string) string {
	return strings.ReplaceAll(strings.ToLower(id), "-", "")
}

type TexturesProp struct {
	Timestamp   int64             `json:"timestamp"`
	ProfileID   string            `json:"profileId"`
	ProfileName string            `json:"profileName"`
	Textures    *TexturesResponse `json:"textures"`
}

type TexturesResponse struct {
	Skin *SkinTexturesResponse `json:"SKIN,omitempty"`
	Cape *CapeTexturesResponse `json:"CAPE,omitempty"`
}

type SkinTexturesResponse struct {
	Url      string                `json:"url"`
	Metadata *SkinTexturesMetadata `json:"metadata,omitempty"`
}

type SkinTexturesMetadata struct {
	Model string `json:"model"`
}

type CapeTexturesResponse struct {
	Url string `json:"url"`
}

func DecodeTextures(encodedTextures string) (*TexturesProp, error) {
	jsonStr, err := base64.URLEncoding.DecodeString(encodedTextures)
	if err != nil {
		return nil, err
	}

	var result *TexturesProp
	err = json.Unmarshal(jsonStr, &result)
	if err != nil {
		return nil, err
	}

	return result, nil
}

func EncodeTextures(textures *TexturesProp) string {
	jsonSerialized, _ := json.Marshal(textures)
	return base64.URLEncoding.EncodeToString(jsonSerialized)
}
