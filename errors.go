// Copyright (c) 2015, RetailNext, Inc.
// All rights reserved.

package hllpp

import "github.com/pkg/errors"

// Fatal/invariant errors: bad arguments, version
// mismatch, or an attempt to combine incompatible counters. These are
// sentinel values rather than wrapped errors because callers are
// expected to branch on identity (errors.Is), not just log them.
var (
	errInvalidError           = errors.New("hllpp: error rate must be in (0, 1)")
	errPrecisionOutOfRange    = errors.New("hllpp: derived precision b is out of range [4, 16]")
	errBinBitsOutOfRange      = errors.New("hllpp: binbits is out of range [4, 6]")
	errIncompatiblePrecision  = errors.New("hllpp: counters have different precision (b)")
	errIncompatibleBinBits    = errors.New("hllpp: counters have different binbits")
	errVersionMismatch        = errors.New("hllpp: stored version does not match STRUCT_VERSION; call Upgrade")
	errNotLegacyVersion       = errors.New("hllpp: Upgrade called on a counter that is not a legacy version")
	errTruncatedHeader        = errors.New("hllpp: data shorter than the on-disk header")
	errLengthMismatch         = errors.New("hllpp: outer length header does not match byte slice length")
	errAlreadyCompressed      = errors.New("hllpp: compress called on an already-compressed counter")
	errNotCompressed          = errors.New("hllpp: decompress called on an uncompressed counter")
)
