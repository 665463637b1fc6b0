package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testAppID = "app-test-1"

type fakeDirectory struct {
	mu    sync.Mutex
	users map[string]*User
	calls int
}

func (f *fakeDirectory) FetchUser(_ context.Context, did string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if u, ok := f.users[did]; ok {
		return u, nil
	}
	return &User{ID: did}, nil
}

func (f *fakeDirectory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newKeyPair(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return key, string(pemBytes)
}

func signToken(t *testing.T, key *ecdsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func validClaims(did string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub": did,
		"iss": "privy.io",
		"aud": testAppID,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
}

func newVerifier(t *testing.T, dir UserDirectory) (*PrivyVerifier, *ecdsa.PrivateKey) {
	t.Helper()
	key, pub := newKeyPair(t)
	v, err := NewPrivyVerifier(testAppID, pub, dir)
	require.NoError(t, err)
	return v, key
}

func TestVerifyResolvesWallet(t *testing.T) {
	dir := &fakeDirectory{users: map[string]*User{
		"did:privy:u1": {ID: "did:privy:u1", LinkedAccounts: []LinkedAccount{
			{Type: "email", Address: "u1@example.com"},
			{Type: "wallet", Address: "0xAaAa00000000000000000000000000000000aAaA", ChainType: "ethereum"},
			{Type: "wallet", Address: "0xbBbB00000000000000000000000000000000BbBb", ChainType: "ethereum"},
		}},
	}}
	v, key := newVerifier(t, dir)

	id, err := v.Verify(context.Background(), signToken(t, key, validClaims("did:privy:u1")))
	require.NoError(t, err)
	require.Equal(t, "did:privy:u1", id.UserID)
	// First wallet account wins, normalized lowercase.
	require.Equal(t, "0xaaaa00000000000000000000000000000000aaaa", id.Wallet)
}

func TestVerifyNoWallet(t *testing.T) {
	dir := &fakeDirectory{users: map[string]*User{
		"did:privy:u2": {ID: "did:privy:u2", LinkedAccounts: []LinkedAccount{
			{Type: "email", Address: "u2@example.com"},
		}},
	}}
	v, key := newVerifier(t, dir)

	_, err := v.Verify(context.Background(), signToken(t, key, validClaims("did:privy:u2")))
	require.ErrorIs(t, err, ErrNoWallet)
}

func TestVerifyRejectsExpired(t *testing.T) {
	v, key := newVerifier(t, &fakeDirectory{})
	claims := validClaims("did:privy:u1")
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	_, err := v.Verify(context.Background(), signToken(t, key, claims))
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	v, key := newVerifier(t, &fakeDirectory{})
	claims := validClaims("did:privy:u1")
	claims["aud"] = "some-other-app"
	_, err := v.Verify(context.Background(), signToken(t, key, claims))
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	v, _ := newVerifier(t, &fakeDirectory{})
	otherKey, _ := newKeyPair(t)
	_, err := v.Verify(context.Background(), signToken(t, otherKey, validClaims("did:privy:u1")))
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v, _ := newVerifier(t, &fakeDirectory{})
	_, err := v.Verify(context.Background(), "not.a.token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestIdentityCacheSkipsDirectory(t *testing.T) {
	dir := &fakeDirectory{users: map[string]*User{
		"did:privy:u1": {ID: "did:privy:u1", LinkedAccounts: []LinkedAccount{
			{Type: "wallet", Address: "0xAaAa00000000000000000000000000000000aAaA"},
		}},
	}}
	v, key := newVerifier(t, dir)
	token := signToken(t, key, validClaims("did:privy:u1"))

	for i := 0; i < 3; i++ {
		_, err := v.Verify(context.Background(), token)
		require.NoError(t, err)
	}
	require.Equal(t, 1, dir.callCount())

	// Expired cache entries refetch.
	v.now = func() time.Time { return time.Now().Add(2 * identityTTL) }
	_, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, 2, dir.callCount())
}
