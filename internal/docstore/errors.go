package docstore

import "errors"

var (
	ErrNotFound         = errors.New("docstore: not found")
	ErrMalformedPayload = errors.New("docstore: payload is not a JSON object")
	ErrPayloadTooLarge  = errors.New("docstore: payload too large")
	ErrInvalidToken     = errors.New("docstore: invalid access token")
	ErrTokenExpired     = errors.New("docstore: access token expired")
	ErrTokenExists      = errors.New("docstore: user already holds a token")
	ErrQuotaExceeded    = errors.New("docstore: trial token quota exceeded")
)
