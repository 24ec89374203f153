package curve

import "sync"

// Pedersen generator table. Index 0 is the pair (G0, G1) used by
// pedersen.Commit; additional slots are reserved for future suites. These
// MUST match the in-circuit generator derivation bit-for-bit — both sides
// derive them the same way, by hashing a fixed domain label to the curve,
// so no trusted setup or generator file needs to ship with the suite.
var (
	generatorsOnce sync.Once
	pedersenG0     Point
	pedersenG1     Point
	schnorrBase    Point
)

func initGenerators() {
	pedersenG0 = hashToCurve("pedersen-generator-0")
	pedersenG1 = hashToCurve("pedersen-generator-1")
	schnorrBase = hashToCurve("schnorr-base")
}

// PedersenGenerators returns the generator pair (G0, G1) for Pedersen
// generator table index 0.
func PedersenGenerators() (Point, Point) {
	generatorsOnce.Do(initGenerators)
	return pedersenG0, pedersenG1
}

// Base returns the Schnorr base point G.
func Base() Point {
	generatorsOnce.Do(initGenerators)
	return schnorrBase
}
