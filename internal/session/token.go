package session

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/atpline/cab/internal/store"
)

// refreshSkew is how close to its exp claim an access token may get before
// the token source refreshes it pre-emptively.
const refreshSkew = 2 * time.Minute

// storeTokenSource yields the persisted access token, refreshing it
// through the backend when the JWT exp claim says it is about to lapse and
// a refresh token is on hand. Implements oauth2.TokenSource so the gateway
// never touches the store directly.
type storeTokenSource struct {
	st       *store.Store
	resolver *Resolver
	now      func() time.Time
}

// TokenSource builds an oauth2.TokenSource backed by the local store.
func TokenSource(st *store.Store, resolver *Resolver) oauth2.TokenSource {
	return &storeTokenSource{st: st, resolver: resolver, now: time.Now}
}

// Token returns the current access token, refreshing first if needed.
// Tokens the backend issues as opaque strings (no parseable exp claim) are
// returned as-is; rejection is then detected by the gateway on use.
func (ts *storeTokenSource) Token() (*oauth2.Token, error) {
	sess, err := ts.st.LoadSession()
	if err != nil {
		return nil, err
	}

	if sess.RefreshToken != "" && expiresSoon(sess.AccessToken, ts.now(), refreshSkew) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		fresh, err := ts.resolver.Refresh(ctx, sess.BaseURL(), sess.RefreshToken)
		if err == nil {
			if err := ts.st.UpdateAccessToken(fresh); err != nil {
				return nil, fmt.Errorf("session: persist refreshed token: %w", err)
			}
			sess.AccessToken = fresh
		}
		// On refresh failure keep the old token; the next call surfaces
		// the backend's rejection with full detail.
	}

	return &oauth2.Token{AccessToken: sess.AccessToken, TokenType: "Bearer"}, nil
}

// expiresSoon reports whether the token's exp claim falls within skew of
// now. Unparseable tokens or tokens without exp never report true.
func expiresSoon(token string, now time.Time, skew time.Duration) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.Add(skew).After(exp.Time)
}
