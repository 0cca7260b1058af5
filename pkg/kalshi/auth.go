package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"strconv"
	"strings"
	"time"
)

// Header names the exchange expects on every authenticated request.
const (
	HeaderAccessKey       = "KALSHI-ACCESS-KEY"
	HeaderAccessSignature = "KALSHI-ACCESS-SIGNATURE"
	HeaderAccessTimestamp = "KALSHI-ACCESS-TIMESTAMP"
	HeaderContentType     = "Content-Type"

	contentTypeJSON = "application/json"
)

// Auth signs requests with RSA-PSS, the scheme Kalshi uses to
// authenticate API calls. The key is loaded once at construction;
// a key that fails to parse is fatal.
type Auth struct {
	keyID      string
	privateKey *rsa.PrivateKey
}

// NewAuth loads a PEM private key from disk and returns a signer bound
// to the given API key id.
func NewAuth(keyID, privateKeyPath string) (*Auth, error) {
	if strings.TrimSpace(keyID) == "" {
		return nil, &ConfigError{Reason: "api key id is empty"}
	}
	data, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, &ConfigError{Reason: "read private key " + privateKeyPath, Err: err}
	}
	key, err := parsePrivateKey(data)
	if err != nil {
		return nil, &ConfigError{Reason: "parse private key " + privateKeyPath, Err: err}
	}
	return &Auth{keyID: keyID, privateKey: key}, nil
}

// NewAuthFromKey wraps an already-parsed key. Used by tests to inject
// generated credentials.
func NewAuthFromKey(keyID string, key *rsa.PrivateKey) *Auth {
	return &Auth{keyID: keyID, privateKey: key}
}

// KeyID returns the access key id this signer is bound to.
func (a *Auth) KeyID() string { return a.keyID }

// SignRequest produces the header set for one request. The signed
// message is timestampMillis + METHOD + path, where path is exactly
// the string that will be sent, query included.
func (a *Auth) SignRequest(method, path string) (map[string]string, error) {
	return a.signAt(time.Now().UnixMilli(), method, path)
}

func (a *Auth) signAt(tsMillis int64, method, path string) (map[string]string, error) {
	ts := strconv.FormatInt(tsMillis, 10)
	msg := ts + strings.ToUpper(method) + path

	sig, err := a.signPSS([]byte(msg))
	if err != nil {
		return nil, &SigningError{Err: err}
	}
	return map[string]string{
		HeaderAccessKey:       a.keyID,
		HeaderAccessSignature: sig,
		HeaderAccessTimestamp: ts,
		HeaderContentType:     contentTypeJSON,
	}, nil
}

func (a *Auth) signPSS(message []byte) (string, error) {
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPSS(rand.Reader, a.privateKey, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// parsePrivateKey accepts PKCS#1 ("RSA PRIVATE KEY") and PKCS#8
// ("PRIVATE KEY") PEM blocks, the two formats Kalshi hands out.
func parsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errPEMDecode
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errNotRSAKey
	}
	return key, nil
}

var (
	errPEMDecode = &ConfigError{Reason: "no PEM block found in key file"}
	errNotRSAKey = &ConfigError{Reason: "private key is not RSA"}
)
