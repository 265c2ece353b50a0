package yggdrasil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Run("valid response", func(t *testing.T) {
		response, err := Normalize([]byte(`{
			"id": "4566e69f-c907-48ee-8d71-d7ba5aa00d20",
			"name": "Thinkofdeath",
			"properties": [
				{
					"name": "textures",
					"value": "base64 blob",
					"signature": "signature value"
				}
			]
		}`))
		require.NoError(t, err)
		require.Equal(t, "4566e69fc90748ee8d71d7ba5aa00d20", response.Id)
		require.Equal(t, "Thinkofdeath", response.Name)
		require.Len(t, response.Properties, 1)
		require.Equal(t, "base64 blob", response.TexturesProperty().Value)
		require.Equal(t, "signature value", response.TexturesProperty().Signature)
	})

	t.Run("id without dashes", func(t *testing.T) {
		response, err := Normalize([]byte(`{"id": "4566e69fc90748ee8d71d7ba5aa00d20", "name": "Thinkofdeath"}`))
		require.NoError(t, err)
		require.Equal(t, "4566e69fc90748ee8d71d7ba5aa00d20", response.Id)
		require.Empty(t, response.Properties)
		require.Nil(t, response.TexturesProperty())
	})

	t.Run("not a json", func(t *testing.T) {
		response, err := Normalize([]byte(`<html>`))
		require.Nil(t, response)
		var malformed *MalformedResponseError
		require.ErrorAs(t, err, &malformed)
	})

	t.Run("missing id", func(t *testing.T) {
		response, err := Normalize([]byte(`{"name": "Thinkofdeath"}`))
		require.Nil(t, response)
		var malformed *MalformedResponseError
		require.ErrorAs(t, err, &malformed)
		require.Contains(t, malformed.Reason, "missing id")
	})

	t.Run("invalid id", func(t *testing.T) {
		response, err := Normalize([]byte(`{"id": "not an uuid", "name": "Thinkofdeath"}`))
		require.Nil(t, response)
		var malformed *MalformedResponseError
		require.ErrorAs(t, err, &malformed)
	})

	t.Run("missing name", func(t *testing.T) {
		response, err := Normalize([]byte(`{"id": "4566e69fc90748ee8d71d7ba5aa00d20"}`))
		require.Nil(t, response)
		var malformed *MalformedResponseError
		require.ErrorAs(t, err, &malformed)
		require.Contains(t, malformed.Reason, "missing name")
	})
}

func TestVerificationResponseClone(t *testing.T) {
	original := &VerificationResponse{
		Id:   "4566e69fc90748ee8d71d7ba5aa00d20",
		Name: "Thinkofdeath",
		Properties: map[string]*Property{
			"textures": {Name: "textures", Value: "original value", Signature: "original signature"},
		},
	}

	clone := original.Clone()
	clone.TexturesProperty().Value = "replaced value"
	clone.TexturesProperty().Signature = "replaced signature"
	clone.Properties["extra"] = &Property{Name: "extra"}

	require.Equal(t, "original value", original.TexturesProperty().Value)
	require.Equal(t, "original signature", original.TexturesProperty().Signature)
	require.Len(t, original.Properties, 1)
}

func TestTextures(t *testing.T) {
	t.Run("decode encoded", func(t *testing.T) {
		toEncode := &TexturesProp{
			Timestamp:   1614296637987,
			ProfileID:   "4566e69fc90748ee8d71d7ba5aa00d20",
			ProfileName: "Thinkofdeath",
			Textures: &TexturesResponse{
				Skin: &SkinTexturesResponse{
					Url: "http://textures.example.com/skin.png",
					Metadata: &SkinTexturesMetadata{
						Model: "slim",
					},
				},
			},
		}

		decoded, err := DecodeTextures(EncodeTextures(toEncode))
		require.NoError(t, err)
		require.Equal(t, toEncode, decoded)
	})

	t.Run("invalid base64", func(t *testing.T) {
		decoded, err := DecodeTextures("this is not a base64")
		require.Error(t, err)
		require.Nil(t, decoded)
	})

	t.Run("not a json inside", func(t *testing.T) {
		decoded, err := DecodeTextures("bm90IGEganNvbg==")
		require.Error(t, err)
		require.Nil(t, decoded)
	})
}
