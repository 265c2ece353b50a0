// Package mineskin implements a client for the MineSkin API, which
// generates a texture payload signed with Mojang's key for an arbitrary
// skin url. See https://mineskin.org/apidocs
package mineskin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const VisibilityPrivate = 1

type GenerateRequest struct {
	Name       string `json:"name"`
	Variant    string `json:"variant"`
	Visibility int    `json:"visibility"`
	Url        string `json:"url"`
}

// SkinData is a re-signed textures property, ready to be substituted
// into a verification response
type SkinData struct {
	Value     string `json:"value"`
	Signature string `json:"signature"`
}

type Client struct {
	http    *http.Client
	baseUrl string
}

func NewClient(http *http.Client, baseUrl string) *Client {
	if baseUrl == "" {
		baseUrl = "https://api.mineskin.org"
	}

	return &Client{
		http:    http,
		baseUrl: strings.TrimSuffix(baseUrl, "/"),
	}
}

func (c *Client) GenerateFromUrl(ctx context.Context, generateReq GenerateRequest) (*SkinData, error) {
	requestBody, _ := json.Marshal(generateReq)
	request, err := http.NewRequestWithContext(ctx, "POST", c.baseUrl+"/generate/url", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, err
	}

	request.Header.Set("Content-Type", "application/json")

	response, err := c.http.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode != 200 {
		return nil, errorFromResponse(response)
	}

	var result struct {
		Data struct {
			Texture SkinData `json:"texture"`
		} `json:"data"`
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(body, &result)
	if err != nil {
		return nil, err
	}

	if result.Data.Texture.Value == "" || result.Data.Texture.Signature == "" {
		return nil, &InvalidGenerateResultError{Body: string(body)}
	}

	return &result.Data.Texture, nil
}

func errorFromResponse(response *http.Response) error {
	switch {
	case response.StatusCode == 400:
		var decodedError struct {
			Error string `json:"error"`
		}

		body, _ := io.ReadAll(response.Body)
		_ = json.Unmarshal(body, &decodedError)

		return &BadRequestError{Message: decodedError.Error}
	case response.StatusCode == 429:
		return &TooManyRequestsError{}
	case response.StatusCode >= 500:
		return &ServerError{Status: response.StatusCode}
	}

	return fmt.Errorf("unexpected response status code: %d", response.StatusCode)
}

// MineSkin reports generation problems (unreachable skin url, invalid
// image and so on) with a 400 status
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("400: %s", e.Message)
}

type TooManyRequestsError struct {
}

func (*TooManyRequestsError) Error() string {
	return "429: Too Many Requests"
}

type ServerError struct {
	Status int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, "Server error")
}

// InvalidGenerateResultError happens when MineSkin responds with 200,
// but the payload misses the signed texture
type InvalidGenerateResultError struct {
	Body string
}

func (e *InvalidGenerateResultError) Error() string {
	return fmt.Sprintf("invalid generate result: %s", e.Body)
}
