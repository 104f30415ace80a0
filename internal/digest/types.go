package digest

import (
	"errors"
	"fmt"
)

const DefaultAlgorithm = "SHA-256"

var ErrMissingObjectKey = errors.New("object key is required")

// Request identifies the object whose digest must be computed.
type Request struct {
	ObjectKey string `json:"objectKey"`
	Algorithm string `json:"algorithm"`
}

// Response carries the digest computed by the target service.
type Response struct {
	ObjectKey string `json:"objectKey"`
	Algorithm string `json:"algorithm"`
	Digest    string `json:"digest"`
}

// Validate checks the request and fills in the default algorithm. It returns the
// normalized copy, leaving r untouched.
func (r Request) Validate() (Request, error) {
	if r.ObjectKey == "" {
		return r, ErrMissingObjectKey
	}
	if r.Algorithm == "" {
		r.Algorithm = DefaultAlgorithm
	}
	return r, nil
}

func (r Request) String() string {
	return fmt.Sprintf("%s(%s)", r.Algorithm, r.ObjectKey)
}
