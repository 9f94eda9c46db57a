package digest

import "errors"

var (
	ErrMissingHeader  = errors.New("digest: missing authorization header")
	ErrWrongScheme    = errors.New("digest: unexpected authorization scheme")
	ErrMissingField   = errors.New("digest: missing required field")
	ErrUnsupportedQop = errors.New("digest: unsupported qop")
	ErrUnsupportedAlg = errors.New("digest: unsupported algorithm")
	ErrRandom         = errors.New("digest: random source unavailable")
)
