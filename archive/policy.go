package archive

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

type CollisionPolicy string

const (
	// CollisionSuffix keeps the first request's name and renames later
	// duplicates to base-N.ext.
	CollisionSuffix CollisionPolicy = "suffix"
	// CollisionOverwrite lets the last request (in input order) win.
	CollisionOverwrite CollisionPolicy = "overwrite"
	// CollisionReject fails the whole batch before anything is fetched.
	CollisionReject CollisionPolicy = "reject"
)

func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch p := CollisionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return CollisionSuffix, nil
	case CollisionSuffix, CollisionOverwrite, CollisionReject:
		return p, nil
	default:
		return "", fmt.Errorf("invalid collision policy %q (suffix|overwrite|reject)", s)
	}
}

type FailurePolicy string

const (
	// FailPartial packages every successful fetch and reports the rest.
	FailPartial FailurePolicy = "partial"
	// FailAtomic delivers nothing if any fetch fails.
	FailAtomic FailurePolicy = "atomic"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return FailPartial, nil
	case FailPartial, FailAtomic:
		return p, nil
	default:
		return "", fmt.Errorf("invalid failure policy %q (partial|atomic)", s)
	}
}

// assignNames sanitizes every request name and resolves duplicates
// according to policy. Under CollisionOverwrite duplicates are returned
// unchanged; packing resolves them.
func assignNames(reqs []Request, policy CollisionPolicy) ([]string, []Rename, error) {
	names := make([]string, len(reqs))
	first := make(map[string]int, len(reqs))
	dups := make(map[string][]int)
	for i, r := range reqs {
		n := SanitizeName(r.Name)
		names[i] = n
		if j, ok := first[n]; ok {
			if len(dups[n]) == 0 {
				dups[n] = append(dups[n], j)
			}
			dups[n] = append(dups[n], i)
			continue
		}
		first[n] = i
	}

	if len(dups) == 0 || policy == CollisionOverwrite {
		return names, nil, nil
	}

	if policy == CollisionReject {
		// Report the collision with the lowest request index.
		keys := make([]string, 0, len(dups))
		for k := range dups {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(a, b int) bool { return dups[keys[a]][0] < dups[keys[b]][0] })
		return nil, nil, &CollisionError{Name: keys[0], Indexes: dups[keys[0]]}
	}

	taken := make(map[string]struct{}, len(first))
	for n := range first {
		taken[n] = struct{}{}
	}
	var renamed []Rename
	for i, n := range names {
		if first[n] == i {
			continue
		}
		alt := nextFreeName(n, taken)
		taken[alt] = struct{}{}
		names[i] = alt
		renamed = append(renamed, Rename{Index: i, From: n, To: alt})
	}
	return names, renamed, nil
}

func nextFreeName(name string, taken map[string]struct{}) string {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		base, ext = name, ""
	}
	for n := 1; ; n++ {
		cand := fmt.Sprintf("%s-%d%s", base, n, ext)
		if _, ok := taken[cand]; !ok {
			return cand
		}
	}
}
