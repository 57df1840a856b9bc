package catalog

import (
	"sort"

	"catalogsync/internal/models"
)

// IDSet is a set of catalog object ids.
type IDSet map[string]struct{}

func (s IDSet) Add(id string) {
	s[id] = struct{}{}
}

func (s IDSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in lexicographic order.
func (s IDSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DuplicateGroup is a set of variants sharing one UPC. Survivor is the
// member with the highest version; Duplicates are the rest, oldest first.
type DuplicateGroup struct {
	UPC        string
	Survivor   models.Variant
	Duplicates []models.Variant
}

// GroupDuplicates groups live variants by UPC and returns only groups with
// more than one member, ordered by UPC. Variants without a UPC are skipped.
//
// Within a group members are ordered by (Version, ID) ascending, so equal
// versions resolve to the lexicographically greatest id.
func GroupDuplicates(variants []models.Variant) []DuplicateGroup {
	byUPC := make(map[string][]models.Variant)
	for _, v := range variants {
		upc := v.Barcode()
		if upc == "" || v.IsDeleted {
			continue
		}
		byUPC[upc] = append(byUPC[upc], v)
	}

	groups := make([]DuplicateGroup, 0)
	for upc, members := range byUPC {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			if members[i].Version != members[j].Version {
				return members[i].Version < members[j].Version
			}
			return members[i].ID < members[j].ID
		})
		last := len(members) - 1
		groups = append(groups, DuplicateGroup{
			UPC:        upc,
			Survivor:   members[last],
			Duplicates: members[:last],
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].UPC < groups[j].UPC
	})
	return groups
}

// ResolveDuplicates returns the ids of every variant that loses its UPC
// group to a newer version.
func ResolveDuplicates(variants []models.Variant) IDSet {
	toDelete := make(IDSet)
	for _, g := range GroupDuplicates(variants) {
		for _, d := range g.Duplicates {
			toDelete.Add(d.ID)
		}
	}
	return toDelete
}
