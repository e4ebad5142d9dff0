package babyjub

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/dchest/blake256"
	curve "github.com/iden3/go-iden3-crypto/babyjub"
)

const (
	generatorPrefix    = "PedersenGenerator"
	windowSize         = 4
	windowsPerSegment  = 50
	bitsPerSegment     = windowSize * windowsPerSegment
	maxGeneratorSearch = 1 << 16
)

var cofactor = big.NewInt(8)

var bases = struct {
	sync.Mutex
	points map[int]*Point
}{points: make(map[int]*Point)}

// basePoint returns the generator of segment idx: the first blake-256
// derived candidate that decodes to a curve point, multiplied by the cofactor.
func basePoint(idx int) *Point {
	bases.Lock()
	defer bases.Unlock()
	if p, ok := bases.points[idx]; ok {
		return p
	}
	for try := 0; try < maxGeneratorSearch; try++ {
		seed := fmt.Sprintf("%s_%032d_%032d", generatorPrefix, idx, try)
		h := blake256.New()
		h.Write([]byte(seed))
		var buf [32]byte
		copy(buf[:], h.Sum(nil))
		buf[31] &= 0xbf

		p, ok := Unpack(buf)
		if !ok {
			continue
		}
		p8 := curve.NewPoint().Mul(cofactor, p)
		if !p8.InSubGroup() {
			panic("babyjub: pedersen generator outside subgroup")
		}
		bases.points[idx] = p8
		return p8
	}
	panic("babyjub: no pedersen generator found")
}

func bytesToBits(msg []byte) []bool {
	bits := make([]bool, len(msg)*8)
	for i, b := range msg {
		for j := 0; j < 8; j++ {
			bits[i*8+j] = b&(1<<uint(j)) != 0
		}
	}
	return bits
}

// PedersenPoint hashes msg to a curve point.
func PedersenPoint(msg []byte) *Point {
	bits := bytesToBits(msg)
	acc := curve.NewPoint().Projective()
	if len(bits) == 0 {
		return acc.Affine()
	}
	nSegments := (len(bits)-1)/bitsPerSegment + 1

	for s := 0; s < nSegments; s++ {
		nWindows := windowsPerSegment
		if s == nSegments-1 {
			nWindows = ((len(bits)-(nSegments-1)*bitsPerSegment)-1)/windowSize + 1
		}
		scalar := new(big.Int)
		exp := big.NewInt(1)
		for w := 0; w < nWindows; w++ {
			o := s*bitsPerSegment + w*windowSize
			win := big.NewInt(1)
			for b := 0; b < windowSize-1 && o < len(bits); b++ {
				if bits[o] {
					win.Add(win, new(big.Int).Lsh(big.NewInt(1), uint(b)))
				}
				o++
			}
			if o < len(bits) {
				if bits[o] {
					win.Neg(win)
				}
				o++
			}
			scalar.Add(scalar, new(big.Int).Mul(win, exp))
			exp.Lsh(exp, windowSize+1)
		}
		if scalar.Sign() < 0 {
			scalar.Add(scalar, SubOrder)
		}
		term := curve.NewPoint().Mul(scalar, basePoint(s))
		acc = acc.Add(acc, term.Projective())
	}
	return acc.Affine()
}

// PedersenHash returns the packed Pedersen point of msg.
func PedersenHash(msg []byte) [32]byte {
	return PedersenPoint(msg).Compress()
}

// HashMultipleInputs encodes every input as a 32-byte little-endian word,
// concatenates them and hashes the result.
func HashMultipleInputs(inputs ...*big.Int) ([32]byte, error) {
	buf := make([]byte, 0, 32*len(inputs))
	for i, in := range inputs {
		le, ok := IntToLEBytes(in, 32)
		if !ok {
			return [32]byte{}, fmt.Errorf("input %d does not fit 32 bytes", i)
		}
		buf = append(buf, le...)
	}
	return PedersenHash(buf), nil
}
