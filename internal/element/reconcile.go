package element

// Reconcile merges remote element states into the local ordered sequence.
//
// Local order is the base. A remote element absent locally is appended; a
// present one replaces the local copy in place when its version is higher, or
// when versions are equal and the nonce differs (last received wins). Lower
// remote versions are stale and ignored. Tombstones are kept.
//
// Neither input is mutated.
func Reconcile(local []Element, remote []Element) []Element {
	out := make([]Element, len(local), len(local)+len(remote))
	index := make(map[string]int, len(local)+len(remote))
	for i, el := range local {
		out[i] = el
		index[el.ID] = i
	}

	for _, r := range remote {
		if r.ID == "" {
			continue
		}
		i, ok := index[r.ID]
		if !ok {
			index[r.ID] = len(out)
			out = append(out, r)
			continue
		}
		if shouldReplace(out[i], r) {
			out[i] = r
		}
	}
	return out
}

func shouldReplace(local, remote Element) bool {
	switch {
	case remote.Version > local.Version:
		return true
	case remote.Version == local.Version:
		return remote.VersionNonce != local.VersionNonce
	default:
		return false
	}
}
