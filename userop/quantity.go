package userop

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Quantity is an unsigned integer accepted from JSON as a number, a decimal
// string or a 0x-prefixed hex string. It marshals as hex.
type Quantity big.Int

// NewQuantity copies v.
func NewQuantity(v *big.Int) *Quantity {
	return (*Quantity)(new(big.Int).Set(v))
}

// Big returns the value as a new big.Int.
func (q *Quantity) Big() *big.Int {
	if q == nil {
		return nil
	}
	return new(big.Int).Set((*big.Int)(q))
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	b := big.Int(q)
	return json.Marshal((*hexutil.Big)(&b))
}

func (q *Quantity) UnmarshalJSON(input []byte) error {
	var raw interface{}
	dec := json.NewDecoder(strings.NewReader(string(input)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	var s string
	switch v := raw.(type) {
	case json.Number:
		s = v.String()
	case string:
		s = strings.TrimSpace(v)
	default:
		return fmt.Errorf("invalid quantity %s", string(input))
	}
	v, err := ParseQuantity(s)
	if err != nil {
		return err
	}
	*q = Quantity(*v)
	return nil
}

// ParseQuantity parses a decimal or 0x-prefixed hex integer. Negative values
// are rejected.
func ParseQuantity(s string) (*big.Int, error) {
	v := new(big.Int)
	ok := false
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if len(s) == 2 {
			return v, nil
		}
		_, ok = v.SetString(s[2:], 16)
	} else {
		_, ok = v.SetString(s, 10)
	}
	if !ok {
		return nil, fmt.Errorf("invalid quantity %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative quantity %q", s)
	}
	return v, nil
}
