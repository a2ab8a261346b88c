package formats

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/Faultbox/otmap/pkg/binio"
	"github.com/Faultbox/otmap/pkg/encoding"
	"github.com/Faultbox/otmap/pkg/nodefile"
)

// otbVersionBlockSize is the declared size of the root version attribute.
const otbVersionBlockSize = 140

// otbRootVersion marks the version attribute on the root node.
const otbRootVersion = 0x01

// OTBAttribute is an item attribute tag in an .otb file.
type OTBAttribute uint8

// Item attribute tags. Only server and client id are interpreted; the rest
// carry a length and are skipped.
const (
	OTBServerID OTBAttribute = 0x10 + iota
	OTBClientID
	OTBName
	OTBDescription
	OTBSpeed
	OTBSlot
	OTBMaxItems
	OTBWeight
	OTBWeapon
	OTBAmmunition
	OTBArmor
	OTBMagicLevel
	OTBMagicFieldType
	OTBWriteable
	OTBRotateTo
	OTBDecay
	OTBSpriteHash
	OTBMinimapColor
	OTBAttr07
	OTBAttr08
	OTBLight
	OTBDecay2
	OTBWeapon2
	OTBAmmunition2
	OTBArmor2
	OTBWriteable2
	OTBLight2
	OTBTopOrder
	OTBWriteable3
	OTBWareID
)

// OTBVersion is the version triple stored in the root node.
type OTBVersion struct {
	Major uint32
	Minor uint32
	Build uint32
}

// String returns the version as "Major.Minor.Build".
func (v OTBVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
}

// ItemType links a server item id to its client sprite id.
type ItemType struct {
	ServerID    uint16
	ClientID    uint16
	HasClientID bool

	Group byte   // node kind of the item record
	Flags uint32 // item flags, not interpreted
}

// ItemTypes is a parsed item-type table, indexed by server id.
type ItemTypes struct {
	Flags       uint32
	Version     OTBVersion
	Description string

	items []*ItemType
}

// Item returns the entry for a server id.
func (t *ItemTypes) Item(serverID uint16) (*ItemType, bool) {
	if int(serverID) >= len(t.items) || t.items[serverID] == nil {
		return nil, false
	}
	return t.items[serverID], true
}

// ClientID returns the client id for a server id. It reports false when
// the server id is unknown or the item has no client sprite.
func (t *ItemTypes) ClientID(serverID uint16) (uint16, bool) {
	item, ok := t.Item(serverID)
	if !ok || !item.HasClientID {
		return 0, false
	}
	return item.ClientID, true
}

// Len returns the number of item records.
func (t *ItemTypes) Len() int {
	n := 0
	for _, item := range t.items {
		if item != nil {
			n++
		}
	}
	return n
}

func (t *ItemTypes) insert(item *ItemType) {
	if n := int(item.ServerID) + 1; n > len(t.items) {
		t.items = append(t.items, make([]*ItemType, n-len(t.items))...)
	}
	t.items[item.ServerID] = item
}

// ParseItemTypes parses the node tree of an item-type file. The leading
// u32 file identifier must already have been consumed.
func ParseItemTypes(r io.Reader) (*ItemTypes, error) {
	root, err := nodefile.Decode(binio.NewReader(buffered(r)), false)
	if err != nil {
		return nil, fmt.Errorf("decoding node tree: %w", err)
	}

	table := &ItemTypes{}
	if err := table.parseRoot(root.Data); err != nil {
		return nil, fmt.Errorf("parsing root: %w", err)
	}

	for i, child := range root.Children {
		item, err := parseItemType(child)
		if err != nil {
			return nil, fmt.Errorf("parsing item record %d: %w", i, err)
		}
		table.insert(item)
	}

	return table, nil
}

// ParseItemTypesFile parses an item-type file from disk.
func ParseItemTypesFile(path string) (*ItemTypes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading otb file: %w", err)
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: missing file identifier", binio.ErrUnexpectedEnd)
	}
	return ParseItemTypes(bytes.NewReader(data[4:]))
}

func (t *ItemTypes) parseRoot(data []byte) error {
	r := binio.FromBytes(data)

	var err error
	if t.Flags, err = r.U32(); err != nil {
		return err
	}
	if r.Empty() {
		return nil
	}

	attr, err := r.U8()
	if err != nil {
		return err
	}
	if attr != otbRootVersion {
		return nil
	}

	size, err := r.U16()
	if err != nil {
		return err
	}
	if size != otbVersionBlockSize {
		return r.Errorf(binio.ErrMalformedStream, "version block size %d, expected %d", size, otbVersionBlockSize)
	}

	if t.Version.Major, err = r.U32(); err != nil {
		return err
	}
	if t.Version.Minor, err = r.U32(); err != nil {
		return err
	}
	if t.Version.Build, err = r.U32(); err != nil {
		return err
	}

	raw, err := r.Bytes(128)
	if err != nil {
		return err
	}
	if t.Description, err = encoding.Windows1252ToUTF8(encoding.TrimNullBytes(raw)); err != nil {
		return fmt.Errorf("%w: description: %v", binio.ErrDecode, err)
	}
	return nil
}

func parseItemType(node *nodefile.Node) (*ItemType, error) {
	r := binio.FromBytes(node.Data)
	item := &ItemType{Group: node.Kind}

	var err error
	if item.Flags, err = r.U32(); err != nil {
		return nil, err
	}

	for !r.Empty() {
		tag, err := r.U8()
		if err != nil {
			return nil, err
		}
		size, err := r.U16()
		if err != nil {
			return nil, err
		}
		value, err := r.Bytes(int(size))
		if err != nil {
			return nil, err
		}

		switch OTBAttribute(tag) {
		case OTBServerID:
			if item.ServerID, err = readU16Value(r, tag, value); err != nil {
				return nil, err
			}
		case OTBClientID:
			if item.ClientID, err = readU16Value(r, tag, value); err != nil {
				return nil, err
			}
			item.HasClientID = true
		}
	}

	return item, nil
}

func readU16Value(r *binio.Reader, tag byte, value []byte) (uint16, error) {
	if len(value) < 2 {
		return 0, r.Errorf(binio.ErrMalformedStream, "attribute 0x%02x has length %d, expected 2", tag, len(value))
	}
	return uint16(value[0]) | uint16(value[1])<<8, nil
}
