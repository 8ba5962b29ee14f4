// Package directory implements the client for the external account directory,
// an indexer mapping usernames to previously provisioned accounts.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sessionwallet/provisioning-backend/interfaces"
)

// Client queries a remote account directory over HTTP.
//
// Lookup responses distinguish "not registered" from "directory unreachable":
// any transport failure or unexpected status maps to
// interfaces.ErrDirectoryUnavailable so callers can never mistake an outage
// for an available username.
type Client struct {
	// ServerAddr is the base URL of the directory service.
	ServerAddr string

	// HTTPClient is used for requests; http.DefaultClient when nil.
	HTTPClient *http.Client
}

type lookupResponse struct {
	Found  bool                        `json:"found"`
	Record *interfaces.DirectoryRecord `json:"record,omitempty"`
}

// Lookup queries the directory for a (purpose, username, chain) tuple. A nil
// record with nil error means the username is not registered. The call is
// idempotent and side-effect-free.
func (c *Client) Lookup(ctx context.Context, purpose interfaces.LookupPurpose, username string, chain interfaces.ChainID) (*interfaces.DirectoryRecord, error) {
	query := url.Values{
		"purpose":  []string{string(purpose)},
		"username": []string{username},
		"chainId":  []string{strconv.FormatUint(uint64(chain), 10)},
	}
	reqURL := fmt.Sprintf("%s/api/accounts?%s", c.ServerAddr, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: could not build lookup request: %v", interfaces.ErrDirectoryUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrDirectoryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return nil, fmt.Errorf("%w: lookup returned status %d", interfaces.ErrDirectoryUnavailable, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: lookup returned status %d: %s", interfaces.ErrDirectoryUnavailable, resp.StatusCode, string(bodyBytes))
	}

	var parsed lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: could not parse lookup response: %v", interfaces.ErrDirectoryUnavailable, err)
	}

	// "found but empty" is the same negative result as "not found".
	if !parsed.Found || parsed.Record.Empty() {
		return nil, nil
	}
	return parsed.Record, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}
