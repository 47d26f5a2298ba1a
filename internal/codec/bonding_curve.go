package codec

import "pumpfun-engine/internal/domain"

// BondingCurveSize is the minimum account size: discriminator, five u64 and a bool.
const BondingCurveSize = DiscriminatorSize + 5*8 + 1

// DecodeBondingCurve decodes a bonding-curve account blob.
// The discriminator is checked only when it is non-zero, since test
// validators and some indexers zero it.
func DecodeBondingCurve(blob []byte) (domain.ReserveState, bool) {
	var st domain.ReserveState
	if len(blob) < BondingCurveSize {
		return st, false
	}
	r := NewReader(blob)
	disc, _ := r.Discriminator()
	if disc != ([DiscriminatorSize]byte{}) && disc != BondingCurveDiscriminator {
		return st, false
	}
	st.VirtualToken, _ = r.U64()
	st.VirtualSol, _ = r.U64()
	st.RealToken, _ = r.U64()
	st.RealSol, _ = r.U64()
	st.TotalSupply, _ = r.U64()
	st.Complete, _ = r.Bool()
	if r.Failed() {
		return domain.ReserveState{}, false
	}
	return st, true
}
