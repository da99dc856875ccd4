package addon

import (
	"github.com/hazyhaar/prowl/provider"
)

// dsu is a plain union-find over result indices.
type dsu struct {
	parent []int
}

func newDSU(n int) *dsu {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &dsu{parent: p}
}

func (d *dsu) find(x int) int {
	for d.parent[x] != x {
		d.parent[x] = d.parent[d.parent[x]]
		x = d.parent[x]
	}
	return x
}

func (d *dsu) union(a, b int) {
	ra, rb := d.find(a), d.find(b)
	if ra != rb {
		d.parent[rb] = ra
	}
}

// clusterAvatars groups fingerprinted Results: an edge joins two avatars
// with identical sha256 or dHash Hamming distance at or under threshold.
// Cluster ids are integers assigned by first occurrence in result order, so
// repeated scans over the same outcomes produce the same ids. Singletons
// get an id too.
func clusterAvatars(results []provider.Result, fps []*fingerprint, threshold int, updates []provider.Profile) {
	var idx []int
	for i, fp := range fps {
		if fp != nil {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return
	}

	d := newDSU(len(results))
	for a := 0; a < len(idx); a++ {
		for b := a + 1; b < len(idx); b++ {
			fa, fb := fps[idx[a]], fps[idx[b]]
			if fa.sha256 == fb.sha256 || hamming(fa.dhash, fb.dhash) <= threshold {
				d.union(idx[a], idx[b])
			}
		}
	}

	members := map[int][]int{}
	for _, i := range idx {
		root := d.find(i)
		members[root] = append(members[root], i)
	}

	nextID := 0
	ids := map[int]int{}
	for _, i := range idx {
		root := d.find(i)
		if _, seen := ids[root]; !seen {
			ids[root] = nextID
			nextID++
		}
	}

	for root, group := range members {
		id := ids[root]
		names := make([]string, len(group))
		for k, i := range group {
			names[k] = results[i].Provider
		}
		representative := names[0]
		for _, n := range names[1:] {
			if n < representative {
				representative = n
			}
		}
		for _, i := range group {
			updates[i]["avatar_cluster_id"] = id
			updates[i]["avatar_cluster_members"] = names
			updates[i]["avatar_cluster_representative"] = representative
			if len(group) > 1 {
				updates[i]["avatar_cluster_match"] = matchMethod(fps, group, i)
			}
		}
	}
}

// matchMethod reports how Result i joined its cluster: "sha256" when any
// other member carries identical bytes, "dhash" otherwise.
func matchMethod(fps []*fingerprint, group []int, i int) string {
	for _, j := range group {
		if j != i && fps[j].sha256 == fps[i].sha256 {
			return "sha256"
		}
	}
	return "dhash"
}
