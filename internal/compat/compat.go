// Package compat holds the blood type compatibility rule table.
package compat

import (
	_ "embed"
	"fmt"

	"bloodbridge/pkg/types"

	"gopkg.in/yaml.v3"
)

//go:embed compatibility.yaml
var defaultTable []byte

// Table maps a recipient blood type to the donor types it may receive.
type Table map[types.BloodType][]types.BloodType

var Default = MustParse(defaultTable)

func Parse(data []byte) (Table, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse compatibility table: %w", err)
	}

	table := make(Table, len(raw))
	for recipient, donors := range raw {
		rt := types.BloodType(recipient)
		if !rt.Valid() {
			return nil, fmt.Errorf("unknown recipient blood type %q", recipient)
		}
		for _, d := range donors {
			dt := types.BloodType(d)
			if !dt.Valid() {
				return nil, fmt.Errorf("unknown donor blood type %q for recipient %s", d, recipient)
			}
			table[rt] = append(table[rt], dt)
		}
	}

	for _, bt := range types.BloodTypes {
		if _, ok := table[bt]; !ok {
			return nil, fmt.Errorf("compatibility table has no entry for %s", bt)
		}
	}

	return table, nil
}

func MustParse(data []byte) Table {
	t, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return t
}

// CanDonate reports whether a donor of type donor may give to recipient.
func (t Table) CanDonate(donor, recipient types.BloodType) bool {
	for _, d := range t[recipient] {
		if d == donor {
			return true
		}
	}
	return false
}

// Donors lists the donor types acceptable for recipient.
func (t Table) Donors(recipient types.BloodType) []types.BloodType {
	return t[recipient]
}

func CanDonate(donor, recipient types.BloodType) bool {
	return Default.CanDonate(donor, recipient)
}
