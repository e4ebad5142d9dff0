// Package babyjub implements the windowed Pedersen hash used by circom
// circuits on top of the Baby Jubjub curve from go-iden3-crypto.
package babyjub

import (
	"math/big"

	curve "github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-iden3-crypto/utils"
)

// Point is an affine Baby Jubjub point.
type Point = curve.Point

// SubOrder is the order of the prime subgroup.
var SubOrder = curve.SubOrder

// Unpack decompresses a point packed as y little-endian with the sign of x
// in the top bit. ok is false when the bytes do not encode a curve point.
func Unpack(buf [32]byte) (*Point, bool) {
	_, y := curve.UnpackSignY(buf)
	if !utils.CheckBigIntInField(y) {
		return nil, false
	}
	p, err := new(Point).Decompress(buf)
	if err != nil {
		return nil, false
	}
	return p, true
}

// LEBytesToInt reads b as a little-endian unsigned integer.
func LEBytesToInt(b []byte) *big.Int {
	return utils.SetBigIntFromLEBytes(new(big.Int), b)
}

// IntToLEBytes writes v as an n-byte little-endian unsigned integer. It
// returns false when v is negative or does not fit.
func IntToLEBytes(v *big.Int, n int) ([]byte, bool) {
	if v.Sign() < 0 || (v.BitLen()+7)/8 > n {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, utils.SwapEndianness(v.Bytes()))
	return out, true
}
