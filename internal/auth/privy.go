package auth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Layr-Labs/zugzwang/internal/obslog"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoWallet     = errors.New("no wallet account linked")
)

const (
	privyIssuer = "privy.io"
	identityTTL = time.Minute
)

// Identity is the resolved caller of an authenticated request.
type Identity struct {
	UserID string
	Wallet string // lowercase hex address
}

// TokenVerifier turns a bearer token into an identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// LinkedAccount is one account record on a Privy user.
type LinkedAccount struct {
	Type      string `json:"type"`
	Address   string `json:"address"`
	ChainType string `json:"chain_type"`
}

// User is the directory record for one Privy DID.
type User struct {
	ID             string          `json:"id"`
	LinkedAccounts []LinkedAccount `json:"linked_accounts"`
}

// UserDirectory fetches users from the identity provider.
type UserDirectory interface {
	FetchUser(ctx context.Context, did string) (*User, error)
}

// PrivyVerifier validates Privy access tokens (ES256 against the app's
// verification key) and resolves the caller's first linked wallet.
type PrivyVerifier struct {
	appID     string
	key       *ecdsa.PublicKey
	directory UserDirectory

	mu    sync.Mutex
	cache map[string]cachedIdentity
	ttl   time.Duration
	now   func() time.Time
}

type cachedIdentity struct {
	identity Identity
	expires  time.Time
}

// NewPrivyVerifier builds a verifier from the app id, its PEM verification
// key, and a user directory.
func NewPrivyVerifier(appID, verificationKeyPEM string, directory UserDirectory) (*PrivyVerifier, error) {
	key, err := jwt.ParseECPublicKeyFromPEM([]byte(verificationKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse verification key: %w", err)
	}
	return &PrivyVerifier{
		appID:     appID,
		key:       key,
		directory: directory,
		cache:     make(map[string]cachedIdentity),
		ttl:       identityTTL,
		now:       time.Now,
	}, nil
}

// Verify checks the token signature and claims, then resolves the wallet
// address through the directory. Identities are cached briefly so a fast
// series of moves does not re-hit the directory.
func (v *PrivyVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	parsed, err := jwt.Parse(token,
		func(t *jwt.Token) (any, error) { return v.key, nil },
		jwt.WithValidMethods([]string{"ES256"}),
		jwt.WithIssuer(privyIssuer),
		jwt.WithAudience(v.appID),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	did, err := parsed.Claims.GetSubject()
	if err != nil || did == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	if id, ok := v.cached(did); ok {
		return id, nil
	}

	user, err := v.directory.FetchUser(ctx, did)
	if err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", did, err)
	}
	wallet := firstWallet(user)
	if wallet == "" {
		return nil, ErrNoWallet
	}

	identity := Identity{UserID: did, Wallet: strings.ToLower(wallet)}
	v.store(did, identity)
	obslog.L().Debug("token_verified",
		zap.String("user_id", did),
		zap.String("wallet", identity.Wallet),
	)
	return &identity, nil
}

func firstWallet(u *User) string {
	for _, acct := range u.LinkedAccounts {
		if acct.Type == "wallet" && strings.TrimSpace(acct.Address) != "" {
			return acct.Address
		}
	}
	return ""
}

func (v *PrivyVerifier) cached(did string) (*Identity, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	entry, ok := v.cache[did]
	if !ok || v.now().After(entry.expires) {
		return nil, false
	}
	id := entry.identity
	return &id, true
}

func (v *PrivyVerifier) store(did string, id Identity) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache[did] = cachedIdentity{identity: id, expires: v.now().Add(v.ttl)}
}
