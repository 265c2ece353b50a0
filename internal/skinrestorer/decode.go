package skinrestorer

import (
	"net/url"

	"ely.by/multilogin/internal/yggdrasil"
)

type decodedSkin struct {
	Url   *url.URL
	Model string
}

// decodeSkin extracts the skin url and optional model from an encoded
// textures property value. A non-empty skip reason means the payload can't
// be restored and the login must proceed with the textures untouched.
// Undecodable input is a skip, not an error: the engine never fails
// a login over a broken skin
func decodeSkin(encodedTextures string) (*decodedSkin, string) {
	textures, err := yggdrasil.DecodeTextures(encodedTextures)
	if err != nil {
		return nil, "invalid textures payload"
	}

	if textures == nil || textures.Textures == nil || textures.Textures.Skin == nil {
		return nil, "no skin in textures payload"
	}

	skin := textures.Textures.Skin
	skinUrl, err := url.Parse(skin.Url)
	if err != nil || skinUrl.Host == "" {
		return nil, "unparsable skin url"
	}

	model := ""
	if skin.Metadata != nil {
		model = skin.Metadata.Model
	}

	return &decodedSkin{Url: skinUrl, Model: model}, ""
}
