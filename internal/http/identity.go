package http

import (
	nethttp "net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

const (
	identityCookie = "idn"
	identityPrefix = "webbrowser_"
)

// identities reads and issues the per-browser client identifier. With a hash
// key the cookie value is signed and a tampered value counts as absent.
type identities struct {
	sc     *securecookie.SecureCookie
	secure bool
}

func newIdentities(hashKey string, secure bool) *identities {
	id := &identities{secure: secure}
	if hashKey != "" {
		id.sc = securecookie.New([]byte(hashKey), nil)
		id.sc.MaxAge(0)
	}
	return id
}

func newClientID() string {
	return identityPrefix + uuid.NewString()
}

func validClientID(v string) bool {
	rest, ok := strings.CutPrefix(v, identityPrefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}

// read returns the identifier carried by r, if any.
func (id *identities) read(r *nethttp.Request) (string, bool) {
	c, err := r.Cookie(identityCookie)
	if err != nil || c.Value == "" {
		return "", false
	}
	v := c.Value
	if id.sc != nil {
		var decoded string
		if err := id.sc.Decode(identityCookie, c.Value, &decoded); err != nil {
			return "", false
		}
		v = decoded
	}
	if !validClientID(v) {
		return "", false
	}
	return v, true
}

// cookie builds the Set-Cookie value for clientID. No expiry is set.
func (id *identities) cookie(clientID string) (*nethttp.Cookie, error) {
	v := clientID
	if id.sc != nil {
		encoded, err := id.sc.Encode(identityCookie, clientID)
		if err != nil {
			return nil, err
		}
		v = encoded
	}
	return &nethttp.Cookie{
		Name:     identityCookie,
		Value:    v,
		Path:     "/",
		HttpOnly: true,
		Secure:   id.secure,
		SameSite: nethttp.SameSiteStrictMode,
	}, nil
}

// ensure returns the request's identifier, issuing a new one into header
// when it is absent or invalid.
func (id *identities) ensure(r *nethttp.Request, header nethttp.Header) (string, error) {
	if v, ok := id.read(r); ok {
		return v, nil
	}
	v := newClientID()
	c, err := id.cookie(v)
	if err != nil {
		return "", err
	}
	header.Add("Set-Cookie", c.String())
	return v, nil
}
