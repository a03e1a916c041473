package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Authentication header names sent once on the WebSocket upgrade request.
const (
	HeaderPublicKey     = "X-PUBLIC-KEY"
	HeaderAuthData      = "X-AUTH-DATA"
	HeaderServerName    = "X-SERVER-NAME"
	HeaderClientVersion = "X-CLIENT-VERSION"
)

// Header construction errors.
var (
	ErrMissingPublicKey = errors.New("public key is required")
	ErrMissingSecretKey = errors.New("secret key is required")
)

// CipherFunc produces the authentication token from serialized system
// metadata and the pre-shared secret key. The transport treats the cipher
// as a given routine; pkg/auth provides the default implementation.
type CipherFunc func(plaintext []byte, secretKey string) (string, error)

// Identity holds the credentials and naming an agent presents at connect
// time. The secret key never travels on the wire; only the token derived
// from it does.
type Identity struct {
	PublicKey  string
	SecretKey  string
	ServerName string
}

// BuildAuthHeaders assembles the out-of-band connection metadata: the
// public key, an authentication token (cipher of the JSON-serialized
// system metadata under the secret key), the machine name and the client
// version. The set is transmitted once per connection attempt and never
// retransmitted mid-connection.
func BuildAuthHeaders(id Identity, metadata any, cipher CipherFunc, clientVersion string) (http.Header, error) {
	if id.PublicKey == "" {
		return nil, ErrMissingPublicKey
	}
	if id.SecretKey == "" {
		return nil, ErrMissingSecretKey
	}

	plaintext, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize system metadata: %w", err)
	}

	token, err := cipher(plaintext, id.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to cipher auth data: %w", err)
	}

	headers := http.Header{}
	headers.Set(HeaderPublicKey, id.PublicKey)
	headers.Set(HeaderAuthData, token)
	headers.Set(HeaderServerName, id.ServerName)
	headers.Set(HeaderClientVersion, clientVersion)
	return headers, nil
}
