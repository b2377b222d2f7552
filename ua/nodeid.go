// Copyright 2021 Converter Systems LLC. All rights reserved.

package ua

import (
	"fmt"

	uuid "github.com/google/uuid"
)

// NodeID identifies a Node.
type NodeID struct {
	namespaceIndex uint16
	idType         IDType
	nid            uint32
	sid            string
	gid            uuid.UUID
	bid            ByteString
}

// NewNodeIDNumeric constructs a new NodeID of numeric type.
func NewNodeIDNumeric(namespaceIndex uint16, identifier uint32) NodeID {
	return NodeID{namespaceIndex, IDTypeNumeric, identifier, "", uuid.Nil, ""}
}

// NewNodeIDString constructs a new NodeID of string type.
func NewNodeIDString(namespaceIndex uint16, identifier string) NodeID {
	return NodeID{namespaceIndex, IDTypeString, 0, identifier, uuid.Nil, ""}
}

// NewNodeIDGUID constructs a new NodeID of GUID type.
func NewNodeIDGUID(namespaceIndex uint16, identifier uuid.UUID) NodeID {
	return NodeID{namespaceIndex, IDTypeGUID, 0, "", identifier, ""}
}

// NewNodeIDOpaque constructs a new NodeID of opaque type.
func NewNodeIDOpaque(namespaceIndex uint16, identifier ByteString) NodeID {
	return NodeID{namespaceIndex, IDTypeOpaque, 0, "", uuid.Nil, identifier}
}

// NamespaceIndex returns the namespace index.
func (n NodeID) NamespaceIndex() uint16 {
	return n.namespaceIndex
}

// IDType returns the identifier type.
func (n NodeID) IDType() IDType {
	return n.idType
}

// Identifier returns the identifier.
func (n NodeID) Identifier() interface{} {
	switch n.idType {
	case IDTypeNumeric:
		return n.nid
	case IDTypeString:
		return n.sid
	case IDTypeGUID:
		return n.gid
	case IDTypeOpaque:
		return n.bid
	}
	return nil
}

// NilNodeID is the nil value.
var NilNodeID = NodeID{0, 0, 0, "", uuid.Nil, ""}

// IsNil returns true if the nodeId is nil
func (n NodeID) IsNil() bool {
	if n.namespaceIndex > 0 {
		return false
	}
	switch n.idType {
	case IDTypeNumeric:
		return n.nid == 0
	case IDTypeString:
		return len(n.sid) == 0
	case IDTypeGUID:
		return n.gid == uuid.Nil
	case IDTypeOpaque:
		return len(n.bid) == 0
	}
	return true
}

// String returns a string representation, e.g. "i=85"
func (n NodeID) String() string {
	switch n.idType {
	case IDTypeNumeric:
		if n.namespaceIndex == 0 {
			return fmt.Sprintf("i=%d", n.nid)
		}
		return fmt.Sprintf("ns=%d;i=%d", n.namespaceIndex, n.nid)
	case IDTypeString:
		if n.namespaceIndex == 0 {
			return fmt.Sprintf("s=%s", n.sid)
		}
		return fmt.Sprintf("ns=%d;s=%s", n.namespaceIndex, n.sid)
	case IDTypeGUID:
		if n.namespaceIndex == 0 {
			return fmt.Sprintf("g=%s", n.gid)
		}
		return fmt.Sprintf("ns=%d;g=%s", n.namespaceIndex, n.gid)
	case IDTypeOpaque:
		if n.namespaceIndex == 0 {
			return fmt.Sprintf("b=%s", n.bid)
		}
		return fmt.Sprintf("ns=%d;b=%s", n.namespaceIndex, n.bid)
	}
	return ""
}
