package auth

import "fmt"

// Pair is an access token together with the refresh token issued with it.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Issuer holds the access and refresh codecs.
type Issuer struct {
	Access  *Codec
	Refresh *Codec
}

// NewIssuer pairs two codecs. The secrets must differ so that neither class
// can be forged with the other's key.
func NewIssuer(access, refresh *Codec) (*Issuer, error) {
	if access.class != ClassAccess || refresh.class != ClassRefresh {
		return nil, fmt.Errorf("issuer needs an access and a refresh codec")
	}
	if string(access.secret) == string(refresh.secret) {
		return nil, fmt.Errorf("access and refresh token secrets must differ")
	}
	return &Issuer{Access: access, Refresh: refresh}, nil
}

// IssuePair signs a fresh access and refresh token for s.
func (i *Issuer) IssuePair(s Subject) (Pair, error) {
	access, err := i.Access.Issue(s)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := i.Refresh.Issue(s)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}
