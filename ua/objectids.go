// Copyright 2021 Converter Systems LLC. All rights reserved.

package ua

// The binary encoding ids of the channel-layer messages.
var (
	ObjectIDServiceFaultEncodingDefaultBinary               = NewNodeIDNumeric(0, 397)
	ObjectIDOpenSecureChannelRequestEncodingDefaultBinary   = NewNodeIDNumeric(0, 446)
	ObjectIDOpenSecureChannelResponseEncodingDefaultBinary  = NewNodeIDNumeric(0, 449)
	ObjectIDCloseSecureChannelRequestEncodingDefaultBinary  = NewNodeIDNumeric(0, 452)
	ObjectIDCloseSecureChannelResponseEncodingDefaultBinary = NewNodeIDNumeric(0, 455)
)
