package yggdrasil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type SessionClient struct {
	http *http.Client
}

func NewSessionClient(http *http.Client) *SessionClient {
	return &SessionClient{http: http}
}

// HasJoined asks a session server whether the client has performed the join
// handshake. A 200 answer carries the signed profile, 204 and 205 mean the
// service doesn't know this player and the next configured service should
// be tried by the caller
func (c *SessionClient) HasJoined(ctx context.Context, sessionUrl, username, serverId, ip string) (*VerificationResponse, error) {
	query := url.Values{}
	query.Set("username", username)
	query.Set("serverId", serverId)
	if ip != "" {
		query.Set("ip", ip)
	}

	requestUrl := strings.TrimSuffix(sessionUrl, "/") + "/session/minecraft/hasJoined?" + query.Encode()
	request, err := http.NewRequestWithContext(ctx, "GET", requestUrl, nil)
	if err != nil {
		return nil, err
	}

	response, err := c.http.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode == 204 || response.StatusCode == 205 {
		return nil, nil
	}

	if response.StatusCode != 200 {
		return nil, errorFromResponse(response)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}

	return Normalize(body)
}

func errorFromResponse(response *http.Response) error {
	switch {
	case response.StatusCode == 403:
		return &ForbiddenError{}
	case response.StatusCode == 429:
		return &TooManyRequestsError{}
	case response.StatusCode >= 500:
		return &ServerError{Status: response.StatusCode}
	}

	return fmt.Errorf("unexpected response status code: %d", response.StatusCode)
}

// Some services respond with 403 instead of 204 when the player hasn't joined
type ForbiddenError struct {
}

func (*ForbiddenError) Error() string {
	return "403: Forbidden"
}

type TooManyRequestsError struct {
}

func (*TooManyRequestsError) Error() string {
	return "429: Too Many Requests"
}

// ServerError happens when the session server returns any response with 50* status
type ServerError struct {
	Status int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, "Server error")
}
