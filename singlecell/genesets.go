package singlecell

import (
	"regexp"
	"strings"
)

// Mitochondrial genes carry the mt- symbol prefix in the mouse annotation
// (MT- in human); matching is case-insensitive to cover both.
var mitoRegExp = regexp.MustCompile(`(?i)^mt-`)

// Ribosomal protein genes are Rps*/Rpl*. The prefix match drags in a handful
// of non-ribosomal genes (Rpsa-ka*, Rpl*-kc*) and pseudogenes (-ps suffixes),
// which are excluded by substring.
var riboRegExp = regexp.MustCompile(`(?i)^rp[sl]`)

var riboExclude = []string{"ka", "kc", "-ps"}

// GeneSet is a set of row indices into a Dataset's gene table.
type GeneSet map[int]bool

// Union returns the elements in either set.
func (s GeneSet) Union(o GeneSet) GeneSet {
	u := make(GeneSet, len(s)+len(o))
	for i := range s {
		u[i] = true
	}
	for i := range o {
		u[i] = true
	}
	return u
}

// MitoGenes returns the indices of mitochondrially encoded genes.
func MitoGenes(genes []Gene) GeneSet {
	set := make(GeneSet)
	for i, g := range genes {
		if mitoRegExp.MatchString(g.Symbol) {
			set[i] = true
		}
	}
	return set
}

// RiboGenes returns the indices of ribosomal protein genes, excluding the
// known false positives.
func RiboGenes(genes []Gene) GeneSet {
	set := make(GeneSet)
	for i, g := range genes {
		if !riboRegExp.MatchString(g.Symbol) {
			continue
		}
		if riboExcluded(g.Symbol) {
			continue
		}
		set[i] = true
	}
	return set
}

func riboExcluded(symbol string) bool {
	s := strings.ToLower(symbol)
	for _, sub := range riboExclude {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
