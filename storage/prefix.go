package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cairnbackup/cairn/errs"
)

// FindOneByPrefix resolves a short hex prefix against every key under
// the given namespace prefix (e.g. "archives/"), returning the single
// matching full key's hash suffix. Fails with ErrNoItemForPrefix or
// ErrMultipleItemsForPrefix.
func (f *Facade) FindOneByPrefix(ctx context.Context, namespace, shortHex string) (string, error) {
	matches, err := f.listSuffixes(ctx, namespace+shortHex)
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", errs.ErrNoItemForPrefix, shortHex)
	case 1:
		return shortHex + matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s", errs.ErrMultipleItemsForPrefix, shortHex)
	}
}

// ExpandKeys resolves many short hex prefixes against one namespace at
// once: it lists the whole namespace once (narrowed to the longest
// common prefix shared by every request, to keep large repositories
// cheap to query for a handful of short hashes) and binary-searches the
// sorted result for each requested prefix.
func (f *Facade) ExpandKeys(ctx context.Context, namespace string, prefixes []string) (map[string]string, error) {
	if len(prefixes) == 0 {
		return map[string]string{}, nil
	}

	common := longestCommonPrefix(prefixes)
	all, err := f.listSuffixes(ctx, namespace+common)
	if err != nil {
		return nil, err
	}
	sort.Strings(all)

	out := make(map[string]string, len(prefixes))
	for _, p := range prefixes {
		rest := strings.TrimPrefix(p, common)
		lo := sort.SearchStrings(all, rest)
		var matches []string
		for i := lo; i < len(all) && strings.HasPrefix(all[i], rest); i++ {
			matches = append(matches, all[i])
		}
		switch len(matches) {
		case 0:
			return nil, fmt.Errorf("%w: %s", errs.ErrNoItemForPrefix, p)
		case 1:
			out[p] = common + matches[0]
		default:
			return nil, fmt.Errorf("%w: %s", errs.ErrMultipleItemsForPrefix, p)
		}
	}
	return out, nil
}

func longestCommonPrefix(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	prefix := ss[0]
	for _, s := range ss[1:] {
		for !strings.HasPrefix(s, prefix) {
			prefix = prefix[:len(prefix)-1]
			if prefix == "" {
				return ""
			}
		}
	}
	return prefix
}
