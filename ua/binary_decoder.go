// Copyright 2021 Converter Systems LLC. All rights reserved.

package ua

import (
	"encoding/binary"
	"io"
	"math"
	"time"
	"unsafe"

	uuid "github.com/google/uuid"
)

// BinaryDecoder decodes the UA binary protocol.
type BinaryDecoder struct {
	r  io.Reader
	ec EncodingContext
	bs [8]byte
}

// NewBinaryDecoder returns a new decoder that reads from an io.Reader.
func NewBinaryDecoder(r io.Reader, ec EncodingContext) *BinaryDecoder {
	return &BinaryDecoder{r, ec, [8]byte{}}
}

// Decode decodes a value using the UA binary protocol.
func (dec *BinaryDecoder) Decode(value interface{}) error {
	switch v := value.(type) {
	case *RequestHeader:
		return dec.ReadRequestHeader(v)
	case *ResponseHeader:
		return dec.ReadResponseHeader(v)
	case *ChannelSecurityToken:
		return dec.ReadChannelSecurityToken(v)
	case *OpenSecureChannelRequest:
		return dec.ReadOpenSecureChannelRequest(v)
	case *OpenSecureChannelResponse:
		return dec.ReadOpenSecureChannelResponse(v)
	case *CloseSecureChannelRequest:
		return dec.ReadCloseSecureChannelRequest(v)
	case *CloseSecureChannelResponse:
		return dec.ReadCloseSecureChannelResponse(v)
	case *ServiceFault:
		return dec.ReadServiceFault(v)
	case *AsymmetricSecurityHeader:
		return dec.ReadAsymmetricSecurityHeader(v)
	case *SymmetricSecurityHeader:
		return dec.ReadSymmetricSecurityHeader(v)
	case *SequenceHeader:
		return dec.ReadSequenceHeader(v)
	default:
		if d, ok := value.(interface{ DecodeBinary(*BinaryDecoder) error }); ok {
			return d.DecodeBinary(dec)
		}
		return BadDecodingError
	}
}

// ReadBoolean reads a bool.
func (dec *BinaryDecoder) ReadBoolean(value *bool) error {
	if _, err := io.ReadFull(dec.r, dec.bs[:1]); err != nil {
		return BadDecodingError
	}
	*value = dec.bs[0] != 0
	return nil
}

// ReadSByte reads a int8.
func (dec *BinaryDecoder) ReadSByte(value *int8) error {
	if _, err := io.ReadFull(dec.r, dec.bs[:1]); err != nil {
		return BadDecodingError
	}
	*value = int8(dec.bs[0])
	return nil
}

// ReadByte reads a byte.
func (dec *BinaryDecoder) ReadByte(value *byte) error {
	if _, err := io.ReadFull(dec.r, dec.bs[:1]); err != nil {
		return BadDecodingError
	}
	*value = dec.bs[0]
	return nil
}

// ReadInt16 reads a int16.
func (dec *BinaryDecoder) ReadInt16(value *int16) error {
	if _, err := io.ReadFull(dec.r, dec.bs[:2]); err != nil {
		return BadDecodingError
	}
	*value = int16(binary.LittleEndian.Uint16(dec.bs[:2]))
	return nil
}

// ReadUInt16 reads a uint16.
func (dec *BinaryDecoder) ReadUInt16(value *uint16) error {
	if _, err := io.ReadFull(dec.r, dec.bs[:2]); err != nil {
		return BadDecodingError
	}
	*value = binary.LittleEndian.Uint16(dec.bs[:2])
	return nil
}

// ReadInt32 reads a int32.
func (dec *BinaryDecoder) ReadInt32(value *int32) error {
	if _, err := io.ReadFull(dec.r, dec.bs[:4]); err != nil {
		return BadDecodingError
	}
	*value = int32(binary.LittleEndian.Uint32(dec.bs[:4]))
	return nil
}

// ReadUInt32 reads a uint32.
func (dec *BinaryDecoder) ReadUInt32(value *uint32) error {
	if _, err := io.ReadFull(dec.r, dec.bs[:4]); err != nil {
		return BadDecodingError
	}
	*value = binary.LittleEndian.Uint32(dec.bs[:4])
	return nil
}

// ReadInt64 reads a int64.
func (dec *BinaryDecoder) ReadInt64(value *int64) error {
	if _, err := io.ReadFull(dec.r, dec.bs[:8]); err != nil {
		return BadDecodingError
	}
	*value = int64(binary.LittleEndian.Uint64(dec.bs[:8]))
	return nil
}

// ReadUInt64 reads a uint64.
func (dec *BinaryDecoder) ReadUInt64(value *uint64) error {
	if _, err := io.ReadFull(dec.r, dec.bs[:8]); err != nil {
		return BadDecodingError
	}
	*value = binary.LittleEndian.Uint64(dec.bs[:8])
	return nil
}

// ReadFloat reads a float32.
func (dec *BinaryDecoder) ReadFloat(value *float32) error {
	if _, err := io.ReadFull(dec.r, dec.bs[:4]); err != nil {
		return BadDecodingError
	}
	*value = math.Float32frombits(binary.LittleEndian.Uint32(dec.bs[:4]))
	return nil
}

// ReadDouble reads a float64.
func (dec *BinaryDecoder) ReadDouble(value *float64) error {
	if _, err := io.ReadFull(dec.r, dec.bs[:8]); err != nil {
		return BadDecodingError
	}
	*value = math.Float64frombits(binary.LittleEndian.Uint64(dec.bs[:8]))
	return nil
}

// ReadString reads a string.
func (dec *BinaryDecoder) ReadString(value *string) error {
	var num int32
	if err := dec.ReadInt32(&num); err != nil {
		return BadDecodingError
	}
	if num < 0 {
		*value = ""
		return nil
	}
	bs := make([]byte, num)
	if _, err := io.ReadFull(dec.r, bs); err != nil {
		return BadDecodingError
	}
	// eliminate alloc of a second byte array and copying from one byte array to another.
	*value = *(*string)(unsafe.Pointer(&bs))
	return nil
}

// ReadDateTime reads a time.Time.
func (dec *BinaryDecoder) ReadDateTime(value *time.Time) error {
	// ticks are 100 nanosecond intervals since January 1, 1601
	var ticks int64
	if err := dec.ReadInt64(&ticks); err != nil {
		return BadDecodingError
	}
	// zero ticks is the null DateTime, decoded as the zero time.Time
	if ticks <= 0 {
		*value = time.Time{}
		return nil
	}
	if ticks == 0x7FFFFFFFFFFFFFFF {
		ticks = 2650467743990000000
	}
	*value = time.Unix(ticks/10000000-11644473600, (ticks%10000000)*100).UTC()
	return nil
}

// ReadGUID reads a uuid.UUID.
func (dec *BinaryDecoder) ReadGUID(value *uuid.UUID) error {
	if _, err := io.ReadFull(dec.r, dec.bs[:8]); err != nil {
		return BadDecodingError
	}
	value[0] = dec.bs[3]
	value[1] = dec.bs[2]
	value[2] = dec.bs[1]
	value[3] = dec.bs[0]
	value[4] = dec.bs[5]
	value[5] = dec.bs[4]
	value[6] = dec.bs[7]
	value[7] = dec.bs[6]
	if _, err := io.ReadFull(dec.r, value[8:]); err != nil {
		return BadDecodingError
	}
	return nil
}

// ReadByteString reads a ByteString.
func (dec *BinaryDecoder) ReadByteString(value *ByteString) error {
	var num int32
	if err := dec.ReadInt32(&num); err != nil {
		return BadDecodingError
	}
	if num <= 0 {
		*value = ""
		return nil
	}
	bs := make([]byte, num)
	if _, err := io.ReadFull(dec.r, bs); err != nil {
		return BadDecodingError
	}
	*value = *(*ByteString)(unsafe.Pointer(&bs))
	return nil
}

// ReadStatusCode reads a StatusCode.
func (dec *BinaryDecoder) ReadStatusCode(value *StatusCode) error {
	var code uint32
	if err := dec.ReadUInt32(&code); err != nil {
		return BadDecodingError
	}
	*value = StatusCode(code)
	return nil
}

// ReadNodeID reads a NodeID.
func (dec *BinaryDecoder) ReadNodeID(value *NodeID) error {
	var b byte
	if err := dec.ReadByte(&b); err != nil {
		return BadDecodingError
	}
	switch b {
	case 0x00:
		var id byte
		if err := dec.ReadByte(&id); err != nil {
			return BadDecodingError
		}
		*value = NewNodeIDNumeric(uint16(0), uint32(id))
		return nil

	case 0x01:
		var ns byte
		if err := dec.ReadByte(&ns); err != nil {
			return BadDecodingError
		}
		var id uint16
		if err := dec.ReadUInt16(&id); err != nil {
			return BadDecodingError
		}
		*value = NewNodeIDNumeric(uint16(ns), uint32(id))
		return nil

	case 0x02:
		var ns uint16
		if err := dec.ReadUInt16(&ns); err != nil {
			return BadDecodingError
		}
		var id uint32
		if err := dec.ReadUInt32(&id); err != nil {
			return BadDecodingError
		}
		*value = NewNodeIDNumeric(ns, id)
		return nil

	case 0x03:
		var ns uint16
		if err := dec.ReadUInt16(&ns); err != nil {
			return BadDecodingError
		}
		var id string
		if err := dec.ReadString(&id); err != nil {
			return BadDecodingError
		}
		*value = NewNodeIDString(ns, id)
		return nil

	case 0x04:
		var ns uint16
		if err := dec.ReadUInt16(&ns); err != nil {
			return BadDecodingError
		}
		var id uuid.UUID
		if err := dec.ReadGUID(&id); err != nil {
			return BadDecodingError
		}
		*value = NewNodeIDGUID(ns, id)
		return nil

	case 0x05:
		var ns uint16
		if err := dec.ReadUInt16(&ns); err != nil {
			return BadDecodingError
		}
		var id ByteString
		if err := dec.ReadByteString(&id); err != nil {
			return BadDecodingError
		}
		*value = NewNodeIDOpaque(ns, id)
		return nil

	default:
		return BadDecodingError
	}
}

// ReadStringArray reads a string array.
func (dec *BinaryDecoder) ReadStringArray(value *[]string) error {
	var num int32
	if err := dec.ReadInt32(&num); err != nil {
		return BadDecodingError
	}
	if num < 0 {
		*value = nil
		return nil
	}
	list := make([]string, num)
	for i := range list {
		if err := dec.ReadString(&list[i]); err != nil {
			return BadDecodingError
		}
	}
	*value = list
	return nil
}

// ReadRequestHeader reads a RequestHeader.
func (dec *BinaryDecoder) ReadRequestHeader(value *RequestHeader) error {
	if err := dec.ReadNodeID(&value.AuthenticationToken); err != nil {
		return BadDecodingError
	}
	if err := dec.ReadDateTime(&value.Timestamp); err != nil {
		return BadDecodingError
	}
	if err := dec.ReadUInt32(&value.RequestHandle); err != nil {
		return BadDecodingError
	}
	if err := dec.ReadUInt32(&value.ReturnDiagnostics); err != nil {
		return BadDecodingError
	}
	if err := dec.ReadString(&value.AuditEntryID); err != nil {
		return BadDecodingError
	}
	if err := dec.ReadUInt32(&value.TimeoutHint); err != nil {
		return BadDecodingError
	}
	return nil
}

// ReadResponseHeader reads a ResponseHeader.
func (dec *BinaryDecoder) ReadResponseHeader(value *ResponseHeader) error {
	if err := dec.ReadDateTime(&value.Timestamp); err != nil {
		return BadDecodingError
	}
	if err := dec.ReadUInt32(&value.RequestHandle); err != nil {
		return BadDecodingError
	}
	if err := dec.ReadStatusCode(&value.ServiceResult); err != nil {
		return BadDecodingError
	}
	if err := dec.ReadStringArray(&value.StringTable); err != nil {
		return BadDecodingError
	}
	return nil
}

// ReadChannelSecurityToken reads a ChannelSecurityToken.
func (dec *BinaryDecoder) ReadChannelSecurityToken(value *ChannelSecurityToken) error {
	if err := dec.ReadUInt32(&value.ChannelID); err != nil {
		return BadDecodingError
	}
	if err := dec.ReadUInt32(&value.TokenID); err != nil {
		return BadDecodingError
	}
	if err := dec.ReadDateTime(&value.CreatedAt); err != nil {
		return BadDecodingError
	}
	if err := dec.ReadUInt32(&value.RevisedLifetime); err != nil {
		return BadDecodingError
	}
	return nil
}

// ReadOpenSecureChannelRequest reads an OpenSecureChannelRequest.
func (dec *BinaryDecoder) ReadOpenSecureChannelRequest(value *OpenSecureChannelRequest) error {
	if err := dec.ReadRequestHeader(&value.RequestHeader); err != nil {
		return BadDecodingError
	}
	if err := dec.ReadUInt32(&value.ClientProtocolVersion); err != nil {
		return BadDecodingError
	}
	var requestType int32
	if err := dec.ReadInt32(&requestType); err != nil {
		return BadDecodingError
	}
	value.RequestType = SecurityTokenRequestType(requestType)
	var securityMode int32
	if err := dec.ReadInt32(&securityMode); err != nil {
		return BadDecodingError
	}
	value.SecurityMode = MessageSecurityMode(securityMode)
	if err := dec.ReadByteString(&value.ClientNonce); err != nil {
		return BadDecodingError
	}
	if err := dec.ReadUInt32(&value.RequestedLifetime); err != nil {
		return BadDecodingError
	}
	return nil
}

// ReadOpenSecureChannelResponse reads an OpenSecureChannelResponse.
func (dec *BinaryDecoder) ReadOpenSecureChannelResponse(value *OpenSecureChannelResponse) error {
	if err := dec.ReadResponseHeader(&value.ResponseHeader); err != nil {
		return BadDecodingError
	}
	if err := dec.ReadUInt32(&value.ServerProtocolVersion); err != nil {
		return BadDecodingError
	}
	if err := dec.ReadChannelSecurityToken(&value.SecurityToken); err != nil {
		return BadDecodingError
	}
	if err := dec.ReadByteString(&value.ServerNonce); err != nil {
		return BadDecodingError
	}
	return nil
}

// ReadCloseSecureChannelRequest reads a CloseSecureChannelRequest.
func (dec *BinaryDecoder) ReadCloseSecureChannelRequest(value *CloseSecureChannelRequest) error {
	return dec.ReadRequestHeader(&value.RequestHeader)
}

// ReadCloseSecureChannelResponse reads a CloseSecureChannelResponse.
func (dec *BinaryDecoder) ReadCloseSecureChannelResponse(value *CloseSecureChannelResponse) error {
	return dec.ReadResponseHeader(&value.ResponseHeader)
}

// ReadServiceFault reads a ServiceFault.
func (dec *BinaryDecoder) ReadServiceFault(value *ServiceFault) error {
	return dec.ReadResponseHeader(&value.ResponseHeader)
}

// ReadAsymmetricSecurityHeader reads an AsymmetricSecurityHeader.
func (dec *BinaryDecoder) ReadAsymmetricSecurityHeader(value *AsymmetricSecurityHeader) error {
	if err := dec.ReadString(&value.SecurityPolicyURI); err != nil {
		return BadDecodingError
	}
	if err := dec.ReadByteString(&value.SenderCertificate); err != nil {
		return BadDecodingError
	}
	if err := dec.ReadByteString(&value.ReceiverCertificateThumbprint); err != nil {
		return BadDecodingError
	}
	return nil
}

// ReadSymmetricSecurityHeader reads a SymmetricSecurityHeader.
func (dec *BinaryDecoder) ReadSymmetricSecurityHeader(value *SymmetricSecurityHeader) error {
	return dec.ReadUInt32(&value.TokenID)
}

// ReadSequenceHeader reads a SequenceHeader.
func (dec *BinaryDecoder) ReadSequenceHeader(value *SequenceHeader) error {
	if err := dec.ReadUInt32(&value.SequenceNumber); err != nil {
		return BadDecodingError
	}
	if err := dec.ReadUInt32(&value.RequestID); err != nil {
		return BadDecodingError
	}
	return nil
}
