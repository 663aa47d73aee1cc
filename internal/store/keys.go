package store

import "encoding/binary"

// Key layout. Variable parts are separated by a NUL byte, which neither addresses,
// identifiers nor denoms may contain.
var (
	prefixFarm           = []byte("farm/")
	prefixFarmByLpDenom  = []byte("farm_lp/")
	prefixFarmByAsset    = []byte("farm_asset/")
	prefixPosition       = []byte("pos/")
	prefixPositionByRecv = []byte("pos_recv/")
	prefixLastClaimed    = []byte("lce/")
	keyFarmCounter       = []byte("counter/farm")
	keyPositionCounter   = []byte("counter/position")
	keyParams            = []byte("params")
)

const sep = 0x00

func join(prefix []byte, parts ...string) []byte {
	n := len(prefix)
	for _, p := range parts {
		n += len(p) + 1
	}
	key := make([]byte, 0, n)
	key = append(key, prefix...)
	for i, p := range parts {
		if i > 0 {
			key = append(key, sep)
		}
		key = append(key, p...)
	}
	return key
}

// withSep returns key followed by the separator, the prefix of every key nested under it.
func withSep(key []byte) []byte {
	out := make([]byte, 0, len(key)+1)
	out = append(out, key...)
	return append(out, sep)
}

// Uint64Key encodes v big-endian so keys sort by value.
func Uint64Key(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func farmKey(id string) []byte { return join(prefixFarm, id) }

func farmByLpDenomKey(lpDenom, id string) []byte { return join(prefixFarmByLpDenom, lpDenom, id) }

func farmByAssetKey(denom, id string) []byte { return join(prefixFarmByAsset, denom, id) }

func positionKey(id string) []byte { return join(prefixPosition, id) }

func positionByReceiverKey(receiver, id string) []byte {
	return join(prefixPositionByRecv, receiver, id)
}

func lastClaimedKey(addr string) []byte { return join(prefixLastClaimed, addr) }
