package domain

import "time"

// AuthorizationFlowState groups the correlation data of a single sign-in
// attempt. AuthenticationService.CreateSession does not build one: it keeps
// the same three values in local variables for the duration of the call.
type AuthorizationFlowState struct {
	Nonce        string
	CodeVerifier string
	RedirectURI  string
}

// TokenResponse mirrors the token endpoint's JSON response shape.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// StoredSession is the persisted authentication record, serialized as a
// single opaque blob under the "feimaAuth.tokens" secret store key.
type StoredSession struct {
	TokenResponse TokenResponse `json:"tokenResponse"`
	IssuedAt      int64         `json:"issuedAt"` // unix millis
	SessionID     string        `json:"sessionId"`
	AccountID     string        `json:"accountId"`
	AccountLabel  string        `json:"accountLabel"`
}

// Account identifies the signed-in user for display purposes.
type Account struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Session is the public view of a StoredSession handed to the host. Scopes
// is always empty: the gateway does not report granted scopes.
type Session struct {
	ID          string   `json:"id"`
	AccessToken string   `json:"accessToken"`
	Account     Account  `json:"account"`
	Scopes      []string `json:"scopes"`
}

// ShouldRefreshToken reports whether an access token issued at issuedAtMs
// (unix millis) with the given lifetime in seconds should be refreshed now.
// A token with no expiry (expiresIn <= 0) never needs refreshing.
func ShouldRefreshToken(issuedAtMs int64, expiresIn int64, now time.Time) bool {
	if expiresIn <= 0 {
		return false
	}
	expiresAt := time.UnixMilli(issuedAtMs).Add(time.Duration(expiresIn) * time.Second)
	return expiresAt.Sub(now) < 5*time.Minute
}

// ToSession projects a StoredSession into its public view.
func (s StoredSession) ToSession() Session {
	return Session{
		ID:          s.SessionID,
		AccessToken: s.TokenResponse.AccessToken,
		Account:     Account{ID: s.AccountID, Label: s.AccountLabel},
		Scopes:      []string{},
	}
}
