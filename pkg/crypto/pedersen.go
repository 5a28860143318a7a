package crypto

import (
	"fmt"
	"math/big"

	starkcurve "github.com/consensys/gnark-crypto/ecc/stark-curve"
)

// Pedersen constant points P0..P4 published by StarkWare.
// P0 is the shift point; (P1, P2) absorb the low 248 / high 4 bits of the
// first input and (P3, P4) those of the second.
var pedersenPoints = [5]Point{
	mustPoint(
		"0x49ee3eba8c1600700ee1b87eb599f16716b0b1022947733551fde4050ca6804",
		"0x3ca0cfe4b3bc6ddf346d49d06ea0ed34e621062c0e056c1d0405d266e10268a",
	),
	mustPoint(
		"0x234287dcbaffe7f969c748655fca9e58fa8120b6d56eb0c1080d17957ebe47b",
		"0x3b056f100f96fb21e889527d41f4e39940135dd7a6c94cc6ed0268ee89e5615",
	),
	mustPoint(
		"0x4fa56f376c83db33f9dab2656558f3399099ec1de5e3018b7a6932dba8aa378",
		"0x3fa0984c931c9e38113e0c0e47e4401562761f92a7a23b45168f4e80ff5b54d",
	),
	mustPoint(
		"0x4ba4cc166be8dec764910f75b45f74b40c690c74709e90f3aa372f0bd2d6997",
		"0x40301cf5c1751f4b971e46c4ede85fcac5c59a5ce5ae7c48151f27b24b219c",
	),
	mustPoint(
		"0x54302dcb0e6cc1c6e44cca8f61a63bb2ca65048d53fb325d36ff12c49a58202",
		"0x1b77b3e37d13504b348046268d8ae25ce98ad783c25561a879dcc77e99c2426",
	),
}

var low248Mask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 248), big.NewInt(1))

// Pedersen computes the StarkWare Pedersen hash of two field elements.
func Pedersen(a, b *big.Int) (*big.Int, error) {
	var acc starkcurve.G1Jac
	acc.FromAffine(&pedersenPoints[0])

	for i, x := range []*big.Int{a, b} {
		if x.Sign() < 0 || x.Cmp(FieldPrime()) >= 0 {
			return nil, fmt.Errorf("pedersen input %d out of field range", i)
		}
		low := new(big.Int).And(x, low248Mask)
		high := new(big.Int).Rsh(x, 248)
		addScaled(&acc, &pedersenPoints[1+2*i], low)
		addScaled(&acc, &pedersenPoints[2+2*i], high)
	}

	var out Point
	out.FromJacobian(&acc)
	return PointX(&out), nil
}

// PedersenArray hashes a list the way StarkNet does:
// h(h(h(h(0, e0), e1), ...), len).
func PedersenArray(elems ...*big.Int) (*big.Int, error) {
	acc := new(big.Int)
	var err error
	for _, e := range elems {
		if acc, err = Pedersen(acc, e); err != nil {
			return nil, err
		}
	}
	return Pedersen(acc, big.NewInt(int64(len(elems))))
}

func addScaled(acc *starkcurve.G1Jac, p *Point, k *big.Int) {
	if k.Sign() == 0 {
		return
	}
	var base, term starkcurve.G1Jac
	base.FromAffine(p)
	term.ScalarMultiplication(&base, k)
	acc.AddAssign(&term)
}
