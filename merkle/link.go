package merkle

import (
	"sort"

	"github.com/ipfs/go-cid"
)

// Link is a named, sized edge to another node in the DAG. It is a plain
// value; copies never alias.
type Link struct {
	// Name is never nil-equivalent: an unnamed link has Name "".
	Name string
	Cid  cid.Cid
	// Size is the cumulative size in bytes of the target.
	Size uint64
}

// SortLinks orders links ascending by name using byte-wise comparison, so
// an unnamed link sorts first. Links with equal names keep their order.
func SortLinks(links []Link) {
	sort.SliceStable(links, func(i, j int) bool { return links[i].Name < links[j].Name })
}

func sortedCopy(links []Link) []Link {
	if len(links) == 0 {
		return nil
	}
	out := make([]Link, len(links))
	copy(out, links)
	SortLinks(out)
	return out
}
