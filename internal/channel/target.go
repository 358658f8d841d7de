package channel

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/csheth/citejump/internal/citation"
)

const (
	Scheme     = "citejump"
	targetHost = "view"
)

// Target is a decoded navigation address. Exactly one of Bundle and Handle is
// set.
type Target struct {
	File   string
	Active int
	Bundle *citation.Bundle
	Handle Handle
}

// Inline reports whether the bundle travels inside the address.
func (t Target) Inline() bool {
	return t.Bundle != nil
}

// Encode returns the address citejump://view?file=...&active=N&bundle=...
// or ...&handle=KEY. A bundle that cannot be serialized falls back to the
// handle when there is one.
func (t Target) Encode() (string, error) {
	q := url.Values{}
	q.Set("file", t.File)
	if t.Active > 0 {
		q.Set("active", strconv.Itoa(t.Active))
	}
	switch {
	case t.Bundle != nil:
		payload, err := json.Marshal(t.Bundle)
		if err == nil {
			q.Set("bundle", string(payload))
			break
		}
		if t.Handle.IsZero() {
			return "", fmt.Errorf("%w: encode bundle: %v", ErrBadTarget, err)
		}
		q.Set("handle", t.Handle.Key)
	case !t.Handle.IsZero():
		q.Set("handle", t.Handle.Key)
	default:
		return "", fmt.Errorf("%w: neither bundle nor handle", ErrBadTarget)
	}
	u := url.URL{Scheme: Scheme, Host: targetHost, RawQuery: q.Encode()}
	return u.String(), nil
}

// String is Encode without the error; an unencodable target yields "".
func (t Target) String() string {
	address, err := t.Encode()
	if err != nil {
		return ""
	}
	return address
}

// ParseTarget decodes an address produced by Target.String.
func ParseTarget(address string) (Target, error) {
	u, err := url.Parse(address)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrBadTarget, err)
	}
	if u.Scheme != Scheme || u.Host != targetHost {
		return Target{}, fmt.Errorf("%w: unexpected address %q", ErrBadTarget, u.Scheme+"://"+u.Host)
	}
	q := u.Query()
	target := Target{File: q.Get("file")}
	if target.File == "" {
		return Target{}, fmt.Errorf("%w: missing file", ErrBadTarget)
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.Atoi(raw)
		if err != nil || active < 1 {
			return Target{}, fmt.Errorf("%w: active %q", ErrBadTarget, raw)
		}
		target.Active = active
	}

	switch {
	case q.Get("bundle") != "":
		var bundle citation.Bundle
		if err := json.Unmarshal([]byte(q.Get("bundle")), &bundle); err != nil {
			return Target{}, fmt.Errorf("%w: bundle: %v", ErrBadTarget, err)
		}
		if target.Active > 0 {
			bundle = bundle.WithActive(target.Active)
		}
		target.Active = bundle.ActiveDisplayIndex
		target.Bundle = &bundle
	case q.Get("handle") != "":
		handle, err := ParseHandle(q.Get("handle"))
		if err != nil {
			return Target{}, err
		}
		target.Handle = handle
	default:
		return Target{}, fmt.Errorf("%w: neither bundle nor handle", ErrBadTarget)
	}
	if target.Active == 0 {
		target.Active = 1
	}
	return target, nil
}
