package dnsresolver

import (
	"strconv"
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
)

// Question identifies what is being asked: a domain name, a record type and
// a class. Name is understood as a fully qualified domain name; the
// trailing dot is optional.
type Question struct {
	Name  string
	Type  uint16
	Class uint16
}

// NewQuestion returns a Question for recordType ("A", "AAAA", "NS", "ANY",
// ...) and domainName. ok is false if recordType is not a type known to
// this package.
func NewQuestion(domainName, recordType string) (Question, bool) {
	t, ok := dns.StringToType[strings.ToUpper(recordType)]
	if !ok {
		return Question{}, false
	}

	return Question{
		Name:  domainName,
		Type:  t,
		Class: dns.ClassINET,
	}, true
}

// typeName returns the human-readable record type, such as "A" or "AAAA".
func (q Question) typeName() string {
	if s, ok := dns.TypeToString[q.Type]; ok {
		return s
	}
	return "TYPE" + strconv.Itoa(int(q.Type))
}

// fqdn returns q.Name as a canonical, fully qualified, lowercase domain name
// (IDNA-normalized, trailing dot present).
func (q Question) fqdn() string {
	name := dns.CanonicalName(q.Name)

	if ascii, err := idna.Lookup.ToASCII(strings.TrimSuffix(name, ".")); err == nil {
		name = dns.CanonicalName(ascii)
	}

	return name
}

// suppressesEmptyHeuristic reports whether q.Type is one of the types for
// which the "query not answered" heuristic (§4.4) must never apply.
func (q Question) suppressesEmptyHeuristic() bool {
	return q.Type == dns.TypeANY || q.Type == dns.TypeAXFR
}

// CacheKey is the canonical fingerprint used to index the response cache.
// Two Questions that differ only in letter case or a trailing dot produce
// the same CacheKey.
type CacheKey string

// Key returns the cache fingerprint for q: lowercase(name):type:class.
func (q Question) Key() CacheKey {
	name := strings.TrimSuffix(q.fqdn(), ".")
	return CacheKey(name + ":" + q.typeName() + ":" + className(q.Class))
}

func className(class uint16) string {
	if s, ok := dns.ClassToString[class]; ok {
		return s
	}
	return "CLASS" + strconv.Itoa(int(class))
}
