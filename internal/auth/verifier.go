package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredential marks any token that fails verification: bad signature,
// expired, malformed, or missing required claims. Callers are expected to drop
// the connection that presented it.
var ErrInvalidCredential = errors.New("AUTH_INVALID")

// Identity is the authenticated principal behind a verified credential.
// Immutable once bound to a connection.
type Identity struct {
	SubjectID string `json:"subjectId"`
	Email     string `json:"email"`
}

// VerifierConfig holds configuration for JWT verification.
type VerifierConfig struct {
	// Algorithm preference: "RS256" or "HS256"
	Algorithm string

	// RS256 configuration
	PublicKeyPEM string
	JWKSURL      string

	// HS256 configuration
	SecretKey string

	// JWKS cache behavior
	JWKSRefreshInterval time.Duration
	JWKSCacheTimeout    time.Duration
}

// jwk represents a single JSON Web Key.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// jwkSet represents a JSON Web Key Set.
type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// jwksCacheEntry is a cached JWKS key with its fetch timestamp.
type jwksCacheEntry struct {
	key       *rsa.PublicKey
	timestamp time.Time
}

// Verifier validates JWTs and resolves the Identity they carry.
type Verifier struct {
	config     VerifierConfig
	publicKey  *rsa.PublicKey
	jwksCache  map[string]*jwksCacheEntry
	jwksMutex  sync.RWMutex
	lastFetch  time.Time
	httpClient *http.Client
}

// NewVerifier creates a new credential verifier.
func NewVerifier(config VerifierConfig) (*Verifier, error) {
	v := &Verifier{
		config:    config,
		jwksCache: make(map[string]*jwksCacheEntry),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	switch config.Algorithm {
	case "RS256":
		if config.PublicKeyPEM != "" {
			if err := v.loadPublicKeyFromPEM(config.PublicKeyPEM); err != nil {
				return nil, fmt.Errorf("failed to load public key from PEM: %w", err)
			}
		}
		if config.JWKSURL != "" {
			if err := v.fetchJWKS(); err != nil {
				return nil, fmt.Errorf("failed to fetch initial JWKS: %w", err)
			}
		}
		if config.PublicKeyPEM == "" && config.JWKSURL == "" {
			return nil, fmt.Errorf("RS256 requires a PEM public key or a JWKS URL")
		}
	case "HS256":
		if config.SecretKey == "" {
			return nil, fmt.Errorf("HS256 requires a secret key")
		}
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", config.Algorithm)
	}

	return v, nil
}

// Verify validates a token and returns the Identity it asserts. All failure
// modes wrap ErrInvalidCredential; the caller never needs to distinguish an
// expired token from a forged one.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}

	var claims *jwt.MapClaims
	var err error
	switch v.config.Algorithm {
	case "RS256":
		claims, err = v.parseRS256(tokenString)
	case "HS256":
		claims, err = v.parseHS256(tokenString)
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %s", ErrInvalidCredential, v.config.Algorithm)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	return identityFromClaims(claims)
}

// parseRS256 parses and validates a token signed with RS256.
func (v *Verifier) parseRS256(tokenString string) (*jwt.MapClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != "RS256" {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok {
			// No kid: fall back to the configured public key.
			if v.publicKey == nil {
				return nil, fmt.Errorf("no public key available")
			}
			return v.publicKey, nil
		}

		key, err := v.keyFromJWKS(kid)
		if err != nil {
			return nil, fmt.Errorf("failed to get key from JWKS: %w", err)
		}
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// parseHS256 parses and validates a token signed with HS256.
func (v *Verifier) parseHS256(tokenString string) (*jwt.MapClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(v.config.SecretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// identityFromClaims extracts the Identity from verified claims.
func identityFromClaims(claims *jwt.MapClaims) (*Identity, error) {
	sub, ok := (*claims)["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: missing or invalid 'sub' claim", ErrInvalidCredential)
	}

	email, ok := (*claims)["email"].(string)
	if !ok || email == "" {
		return nil, fmt.Errorf("%w: missing or invalid 'email' claim", ErrInvalidCredential)
	}

	return &Identity{
		SubjectID: sub,
		Email:     email,
	}, nil
}

// loadPublicKeyFromPEM loads an RSA public key from PEM data.
func (v *Verifier) loadPublicKeyFromPEM(pemData string) error {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return fmt.Errorf("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("not an RSA public key")
	}

	v.publicKey = rsaPub
	return nil
}

// fetchJWKS fetches the JSON Web Key Set from the configured URL.
func (v *Verifier) fetchJWKS() error {
	if v.config.JWKSURL == "" {
		return fmt.Errorf("JWKS URL not configured")
	}

	resp, err := v.httpClient.Get(v.config.JWKSURL)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS fetch failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read JWKS response: %w", err)
	}

	var set jwkSet
	if err := json.Unmarshal(body, &set); err != nil {
		return fmt.Errorf("failed to parse JWKS: %w", err)
	}

	v.jwksMutex.Lock()
	defer v.jwksMutex.Unlock()

	now := time.Now()
	for _, key := range set.Keys {
		if key.Kty == "RSA" && key.Use == "sig" && key.Alg == "RS256" {
			pubKey, err := jwkToRSAPublicKey(key)
			if err != nil {
				continue // skip invalid keys
			}
			v.jwksCache[key.Kid] = &jwksCacheEntry{
				key:       pubKey,
				timestamp: now,
			}
		}
	}

	v.lastFetch = time.Now()
	return nil
}

// keyFromJWKS resolves a public key by kid, refreshing the JWKS when stale.
func (v *Verifier) keyFromJWKS(kid string) (*rsa.PublicKey, error) {
	v.jwksMutex.RLock()
	entry, exists := v.jwksCache[kid]
	v.jwksMutex.RUnlock()

	if exists && time.Since(entry.timestamp) < v.config.JWKSCacheTimeout {
		return entry.key, nil
	}

	if time.Since(v.lastFetch) > v.config.JWKSRefreshInterval {
		v.jwksMutex.Lock()
		stale := time.Since(v.lastFetch) > v.config.JWKSRefreshInterval
		v.jwksMutex.Unlock()
		if stale {
			if err := v.fetchJWKS(); err != nil {
				return nil, fmt.Errorf("failed to refresh JWKS: %w", err)
			}
		}

		v.jwksMutex.RLock()
		entry, exists = v.jwksCache[kid]
		v.jwksMutex.RUnlock()
		if exists {
			return entry.key, nil
		}
	}

	if exists {
		// Expired entry but refresh not due yet; better than nothing.
		return entry.key, nil
	}
	return nil, fmt.Errorf("key not found: %s", kid)
}

// jwkToRSAPublicKey converts a JWK to an RSA public key.
func jwkToRSAPublicKey(key jwk) (*rsa.PublicKey, error) {
	n, err := base64URLDecode(key.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	e, err := base64URLDecode(key.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var exp int
	for _, b := range e {
		exp = exp<<8 + int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: exp,
	}, nil
}

// base64URLDecode decodes base64url encoded data with or without padding.
func base64URLDecode(data string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}
