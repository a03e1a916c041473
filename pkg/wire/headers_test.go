package wire

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
)

// reverseCipher is a stand-in cipher that base64-encodes secret+plaintext,
// good enough to observe what was passed in.
func reverseCipher(plaintext []byte, secretKey string) (string, error) {
	return base64.StdEncoding.EncodeToString(append([]byte(secretKey+":"), plaintext...)), nil
}

func TestBuildAuthHeaders(t *testing.T) {
	id := Identity{
		PublicKey:  "pk-123",
		SecretKey:  "sk-456",
		ServerName: "web-01",
	}
	meta := map[string]string{"hostname": "web-01", "platform": "linux"}

	headers, err := BuildAuthHeaders(id, meta, reverseCipher, "0.3.0")
	if err != nil {
		t.Fatalf("BuildAuthHeaders failed: %v", err)
	}

	if got := headers.Get(HeaderPublicKey); got != "pk-123" {
		t.Errorf("%s = %q, want %q", HeaderPublicKey, got, "pk-123")
	}
	if got := headers.Get(HeaderServerName); got != "web-01" {
		t.Errorf("%s = %q, want %q", HeaderServerName, got, "web-01")
	}
	if got := headers.Get(HeaderClientVersion); got != "0.3.0" {
		t.Errorf("%s = %q, want %q", HeaderClientVersion, got, "0.3.0")
	}

	// The token must carry the ciphered serialized metadata.
	raw, err := base64.StdEncoding.DecodeString(headers.Get(HeaderAuthData))
	if err != nil {
		t.Fatalf("auth data is not base64: %v", err)
	}
	wantMeta, _ := json.Marshal(meta)
	if string(raw) != "sk-456:"+string(wantMeta) {
		t.Errorf("auth data = %q, want secret-keyed metadata", raw)
	}
}

func TestBuildAuthHeadersRequiresKeys(t *testing.T) {
	meta := map[string]string{}

	_, err := BuildAuthHeaders(Identity{SecretKey: "sk"}, meta, reverseCipher, "0.3.0")
	if !errors.Is(err, ErrMissingPublicKey) {
		t.Errorf("error = %v, want ErrMissingPublicKey", err)
	}

	_, err = BuildAuthHeaders(Identity{PublicKey: "pk"}, meta, reverseCipher, "0.3.0")
	if !errors.Is(err, ErrMissingSecretKey) {
		t.Errorf("error = %v, want ErrMissingSecretKey", err)
	}
}

func TestBuildAuthHeadersCipherFailure(t *testing.T) {
	failing := func([]byte, string) (string, error) {
		return "", errors.New("cipher broken")
	}

	_, err := BuildAuthHeaders(Identity{PublicKey: "pk", SecretKey: "sk"}, map[string]string{}, failing, "0.3.0")
	if err == nil {
		t.Error("expected error when cipher fails")
	}
}
