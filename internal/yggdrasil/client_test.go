package yggdrasil

import (
	"context"
	"net/http"
	"testing"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/require"
)

func TestSessionClientHasJoined(t *testing.T) {
	newClient := func() *SessionClient {
		httpClient := &http.Client{}
		gock.InterceptClient(httpClient)

		return NewSessionClient(httpClient)
	}

	t.Run("successfully verified", func(t *testing.T) {
		defer gock.Off()
		gock.New("https://authserver.example.com").
			Get("/session/minecraft/hasJoined").
			MatchParam("username", "Thinkofdeath").
			MatchParam("serverId", "server id hash").
			Reply(200).
			JSON(map[string]any{
				"id":   "4566e69fc90748ee8d71d7ba5aa00d20",
				"name": "Thinkofdeath",
				"properties": []map[string]any{
					{
						"name":      "textures",
						"value":     "base64 blob",
						"signature": "signature value",
					},
				},
			})

		response, err := newClient().HasJoined(
			context.Background(),
			"https://authserver.example.com",
			"Thinkofdeath",
			"server id hash",
			"",
		)
		require.NoError(t, err)
		require.Equal(t, "4566e69fc90748ee8d71d7ba5aa00d20", response.Id)
		require.Equal(t, "Thinkofdeath", response.Name)
		require.Equal(t, "base64 blob", response.TexturesProperty().Value)
	})

	t.Run("unknown player", func(t *testing.T) {
		defer gock.Off()
		gock.New("https://authserver.example.com").
			Get("/session/minecraft/hasJoined").
			Reply(204)

		response, err := newClient().HasJoined(
			context.Background(),
			"https://authserver.example.com",
			"Thinkofdeath",
			"server id hash",
			"",
		)
		require.NoError(t, err)
		require.Nil(t, response)
	})

	t.Run("invalid payload", func(t *testing.T) {
		defer gock.Off()
		gock.New("https://authserver.example.com").
			Get("/session/minecraft/hasJoined").
			Reply(200).
			JSON(map[string]any{"name": "Thinkofdeath"})

		response, err := newClient().HasJoined(
			context.Background(),
			"https://authserver.example.com",
			"Thinkofdeath",
			"server id hash",
			"",
		)
		require.Nil(t, response)
		var malformed *MalformedResponseError
		require.ErrorAs(t, err, &malformed)
	})

	t.Run("too many requests", func(t *testing.T) {
		defer gock.Off()
		gock.New("https://authserver.example.com").
			Get("/session/minecraft/hasJoined").
			Reply(429)

		response, err := newClient().HasJoined(
			context.Background(),
			"https://authserver.example.com",
			"Thinkofdeath",
			"server id hash",
			"",
		)
		require.Nil(t, response)
		require.IsType(t, &TooManyRequestsError{}, err)
	})

	t.Run("server error", func(t *testing.T) {
		defer gock.Off()
		gock.New("https://authserver.example.com").
			Get("/session/minecraft/hasJoined").
			Reply(502)

		response, err := newClient().HasJoined(
			context.Background(),
			"https://authserver.example.com",
			"Thinkofdeath",
			"server id hash",
			"",
		)
		require.Nil(t, response)
		require.IsType(t, &ServerError{}, err)
	})
}
