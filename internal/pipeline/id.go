package pipeline

import (
	"github.com/google/uuid"
)

// Namespace for deterministic family IDs. Stable forever: the same household,
// family unit, and county always hash to the same UUID across runs.
var familyNamespace = uuid.MustParse("9f2c41de-8a67-5b1b-b1c4-3f0d2e6a7c55")

func v5(ns uuid.UUID, name string) uuid.UUID {
	return uuid.NewSHA1(ns, []byte(name))
}

// FamilyID derives the deterministic UUID for a composite family key.
func FamilyID(key string) uuid.UUID {
	return v5(familyNamespace, "family:"+key)
}
