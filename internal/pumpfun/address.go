package pumpfun

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

var ErrNoViableBump = errors.New("no off-curve program address found")

// DerivePDA finds the program derived address for seeds under programID.
// Bumps are tried from 255 down; the first hash off the ed25519 curve wins.
func DerivePDA(seeds [][]byte, programID string) (string, uint8, error) {
	program, err := decodeKey(programID)
	if err != nil {
		return "", 0, err
	}
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, 128)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, program...)
		data = append(data, "ProgramDerivedAddress"...)

		hash := sha256.Sum256(data)
		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:]), bump, nil
		}
	}
	return "", 0, ErrNoViableBump
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

func decodeKey(key string) ([]byte, error) {
	b, err := base58.Decode(key)
	if err != nil {
		return nil, fmt.Errorf("decode key %q: %w", key, err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("decode key %q: got %d bytes", key, len(b))
	}
	return b, nil
}

// BondingCurveAddress derives the curve account for mint.
func BondingCurveAddress(mint string) (string, error) {
	m, err := decodeKey(mint)
	if err != nil {
		return "", err
	}
	addr, _, err := DerivePDA([][]byte{[]byte("bonding-curve"), m}, ProgramID)
	return addr, err
}

// AssociatedTokenAddress derives the SPL associated token account of owner for mint.
func AssociatedTokenAddress(owner, mint string) (string, error) {
	o, err := decodeKey(owner)
	if err != nil {
		return "", err
	}
	m, err := decodeKey(mint)
	if err != nil {
		return "", err
	}
	tp, _ := decodeKey(TokenProgram)
	addr, _, err := DerivePDA([][]byte{o, tp, m}, AssociatedTokenPgm)
	return addr, err
}

// AssociatedBondingCurveAddress derives the curve's token account for mint.
func AssociatedBondingCurveAddress(mint string) (string, error) {
	curve, err := BondingCurveAddress(mint)
	if err != nil {
		return "", err
	}
	return AssociatedTokenAddress(curve, mint)
}
