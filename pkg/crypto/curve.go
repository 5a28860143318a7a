package crypto

import (
	"math/big"

	starkcurve "github.com/consensys/gnark-crypto/ecc/stark-curve"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fr"
)

// Point is an affine point on the Stark curve y^2 = x^3 + x + beta.
type Point = starkcurve.G1Affine

// generator is the StarkEx base point.
var generator = mustPoint(
	"0x1ef15c18599971b7beced415a40f0c7deacfd9b0d1819e03d723d8bc943cfca",
	"0x5668060aa49730b7be4801df46ec62de53ecd11abe43a32873000c36e8dc1f",
)

// CurveOrder returns the order n of the Stark curve group.
func CurveOrder() *big.Int {
	return fr.Modulus()
}

// Generator returns a copy of the curve base point.
func Generator() Point {
	return generator
}

// ScalarBaseMult returns k*G.
func ScalarBaseMult(k *big.Int) Point {
	return scalarMult(&generator, k)
}

// NewPoint builds a point from affine coordinates. The caller is responsible
// for the coordinates lying on the curve; see Point.IsOnCurve.
func NewPoint(x, y *big.Int) Point {
	var p Point
	p.X.SetBigInt(x)
	p.Y.SetBigInt(y)
	return p
}

// PointX returns the x coordinate as an integer.
func PointX(p *Point) *big.Int {
	return p.X.BigInt(new(big.Int))
}

// PointY returns the y coordinate as an integer.
func PointY(p *Point) *big.Int {
	return p.Y.BigInt(new(big.Int))
}

func scalarMult(p *Point, k *big.Int) Point {
	var out Point
	if k.Sign() == 0 {
		return out
	}
	var jac, res starkcurve.G1Jac
	jac.FromAffine(p)
	res.ScalarMultiplication(&jac, k)
	out.FromJacobian(&res)
	return out
}

// addPoints returns a+b, doubling when both operands are the same point.
func addPoints(a, b *Point) Point {
	var acc starkcurve.G1Jac
	acc.FromAffine(a)
	acc.AddMixed(b)
	var out Point
	out.FromJacobian(&acc)
	return out
}

func mustPoint(xHex, yHex string) Point {
	x, ok := new(big.Int).SetString(xHex[2:], 16)
	if !ok {
		panic("crypto: bad point x " + xHex)
	}
	y, ok := new(big.Int).SetString(yHex[2:], 16)
	if !ok {
		panic("crypto: bad point y " + yHex)
	}
	var p Point
	p.X.SetBigInt(x)
	p.Y.SetBigInt(y)
	return p
}
