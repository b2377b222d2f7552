// Copyright 2021 Converter Systems LLC. All rights reserved.

package ua

// ByteString is stored as a string, to reduce memory allocations and
// to allow equality comparison and use as a map key.
type ByteString string

// NilByteString is the nil value.
var NilByteString = ByteString("")
