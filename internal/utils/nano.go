package utils

import gonanoid "github.com/matoous/go-nanoid/v2"

var (
	NanoidSize     = 24
	nanoidAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Identifier prefixes keep ids self-describing in logs and queue payloads.
const (
	PrefixDonor     = "dnr"
	PrefixSlot      = "slt"
	PrefixRange     = "rng"
	PrefixDonation  = "don"
	PrefixMatch     = "mat"
	PrefixCandidate = "cnd"
	PrefixEvent     = "evt"
	PrefixAudit     = "aud"
)

func NanoID() string {
	return NanoIDSize(NanoidSize)
}

func NanoIDSize(size int) string {
	if size == 0 {
		size = NanoidSize
	}

	return gonanoid.MustGenerate(nanoidAlphabet, size)
}

// PrefixedID returns "<prefix>_<nanoid>".
func PrefixedID(prefix string) string {
	return prefix + "_" + NanoID()
}
