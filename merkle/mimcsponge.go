package merkle

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	spongeSeed   = "mimcsponge"
	spongeRounds = 220
)

// spongeConstants are the round constants of the circomlib MiMC sponge:
// iterated keccak of the seed, reduced into the field, with the first and
// last constant forced to zero.
var spongeConstants = func() []fr.Element {
	cts := make([]fr.Element, spongeRounds)
	c := crypto.Keccak256([]byte(spongeSeed))
	for i := 1; i < spongeRounds; i++ {
		c = crypto.Keccak256(c)
		cts[i].SetBigInt(new(big.Int).SetBytes(c))
	}
	cts[0].SetZero()
	cts[spongeRounds-1].SetZero()
	return cts
}()

// feistel runs the MiMC Feistel permutation with exponent 5 on (xL, xR).
func feistel(xL, xR, k fr.Element) (fr.Element, fr.Element) {
	for i := 0; i < spongeRounds; i++ {
		var t, t2, t4 fr.Element
		t.Add(&xL, &k)
		if i > 0 {
			t.Add(&t, &spongeConstants[i])
		}
		t2.Square(&t)
		t4.Square(&t2)
		t4.Mul(&t4, &t)
		if i < spongeRounds-1 {
			xR, xL = xL, *new(fr.Element).Add(&xR, &t4)
		} else {
			xR.Add(&xR, &t4)
		}
	}
	return xL, xR
}

// MiMCSponge absorbs inputs with key zero and squeezes a single output.
func MiMCSponge(inputs ...*big.Int) *big.Int {
	var r, c, k fr.Element
	for _, in := range inputs {
		var e fr.Element
		e.SetBigInt(in)
		r.Add(&r, &e)
		r, c = feistel(r, c, k)
	}
	return r.BigInt(new(big.Int))
}

// HashLeftRight is the two-to-one node hash of the accumulator.
func HashLeftRight(left, right *big.Int) *big.Int {
	return MiMCSponge(left, right)
}
