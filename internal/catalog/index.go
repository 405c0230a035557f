package catalog

import (
	"math"

	"opcost/internal"
	"opcost/internal/util"
)

// thicknessTolerance is the allowed gap between a group's inferred thickness
// and a catalog spec, in millimeters.
const thicknessTolerance = 0.05

// Index wraps a sheet-spec catalog for lookup by normalized material name
// and thickness. Catalog order is preserved: the first matching entry wins.
type Index struct {
	specs  []internal.SheetSpec
	byName map[string][]int
}

func BuildIndex(specs []internal.SheetSpec) *Index {
	idx := &Index{
		specs:  specs,
		byName: map[string][]int{},
	}
	for i, spec := range specs {
		key := util.NormalizeText(string(spec.MaterialName))
		idx.byName[key] = append(idx.byName[key], i)
	}
	return idx
}

// Find returns the first catalog entry whose material name equals the given
// one (case and diacritic insensitive) with thickness within tolerance.
func (ix *Index) Find(name internal.MaterialName, thicknessMM float64) *internal.SheetSpec {
	key := util.NormalizeText(string(name))
	for _, i := range ix.byName[key] {
		spec := ix.specs[i]
		if math.Abs(spec.ThicknessMM-thicknessMM) <= thicknessTolerance {
			return &spec
		}
	}
	return nil
}

func (ix *Index) Len() int { return len(ix.specs) }
