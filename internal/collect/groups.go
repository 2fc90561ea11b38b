package collect

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// The three base groups every deployment starts with. Sources in the
// registry may declare additional groups; those get a derived config key.
const (
	GroupGov   = "Governo/Multilaterais"
	GroupPhil  = "Filantropia"
	GroupLatam = "América Latina / Brasil"
)

var baseRegexKeys = map[string]string{
	canonKey(GroupGov):   "RE_GOV",
	canonKey(GroupPhil):  "RE_PHIL",
	canonKey(GroupLatam): "RE_LATAM",
}

// DefaultRegex holds the fallback pattern per config key, used when the
// stored value is empty or fails to compile.
var DefaultRegex = map[string]string{
	"RE_GOV":   `bioeconom(y|ia)|biodiversit(y|ade)|forest|amaz(o|ô)nia|innovation|accelerat(or|ora)|impact`,
	"RE_PHIL":  `(climate|biodiversit|health|science|equitable|innovation|impact|accelerator)`,
	"RE_LATAM": `(bioeconom|biodivers|amaz[oô]nia|floresta|inova|acelera|impacto|tecnologia)`,
}

// CanonGroup normalizes a group name for comparison: collapses runs of
// whitespace, removes spaces around slashes, and lowercases.
func CanonGroup(name string) string {
	return canonKey(name)
}

func canonKey(name string) string {
	s := strings.Join(strings.Fields(name), " ")
	s = strings.ReplaceAll(s, " / ", "/")
	s = strings.ReplaceAll(s, "/ ", "/")
	s = strings.ReplaceAll(s, " /", "/")
	return strings.ToLower(s)
}

// RegexKey returns the config key holding the regex for a group. The base
// groups map to fixed keys; any other group gets a stable derived key so a
// new source group can carry its own filter without code changes.
func RegexKey(group string) string {
	if key, ok := baseRegexKeys[canonKey(group)]; ok {
		return key
	}
	h := sha1.Sum([]byte(group))
	return "RE_" + strings.ToUpper(hex.EncodeToString(h[:])[:6])
}

// SameGroup reports whether two group names are equal after normalization.
func SameGroup(a, b string) bool {
	return canonKey(a) == canonKey(b)
}
