package codec

import "errors"

var errInvalidKeyLength = errors.New("public key must be 32 bytes")
