package mesh

import (
	"fmt"
	"sort"
	"strings"

	istionet "istio.io/api/networking/v1alpha3"
)

// Match categories.
const (
	MatchHeaders   = "headers"
	MatchURI       = "uri"
	MatchScheme    = "scheme"
	MatchMethod    = "method"
	MatchAuthority = "authority"
)

// Match operators.
const (
	OpExact  = "exact"
	OpPrefix = "prefix"
	OpRegex  = "regex"
)

// Match is one parsed request match condition.
type Match struct {
	Category string
	Header   string
	Operator string
	Value    string
}

// String formats m in the same textual form ParseMatch accepts.
func (m Match) String() string {
	if m.Category == MatchHeaders {
		return fmt.Sprintf("%s [%s] %s %s", m.Category, m.Header, m.Operator, m.Value)
	}
	return fmt.Sprintf("%s %s %s", m.Category, m.Operator, m.Value)
}

// ParseMatch parses "headers [name] exact value" or "uri prefix /path".
// The value is everything after the operator and may contain spaces.
func ParseMatch(s string) (Match, error) {
	fields := strings.Fields(s)
	if len(fields) < 3 {
		return Match{}, fmt.Errorf("match %q: expected <category> <operator> <value>", s)
	}
	m := Match{Category: strings.ToLower(fields[0])}
	rest := fields[1:]
	switch m.Category {
	case MatchHeaders:
		h := rest[0]
		if !strings.HasPrefix(h, "[") || !strings.HasSuffix(h, "]") || len(h) < 3 {
			return Match{}, fmt.Errorf("match %q: header name must be written as [name]", s)
		}
		m.Header = h[1 : len(h)-1]
		rest = rest[1:]
		if len(rest) < 2 {
			return Match{}, fmt.Errorf("match %q: expected operator and value after header", s)
		}
	case MatchURI, MatchScheme, MatchMethod, MatchAuthority:
	default:
		return Match{}, fmt.Errorf("match %q: unknown category %q", s, fields[0])
	}
	m.Operator = strings.ToLower(rest[0])
	switch m.Operator {
	case OpExact, OpPrefix, OpRegex:
	default:
		return Match{}, fmt.Errorf("match %q: unknown operator %q", s, rest[0])
	}
	m.Value = strings.Join(rest[1:], " ")
	return m, nil
}

func stringMatch(op, value string) *istionet.StringMatch {
	switch op {
	case OpPrefix:
		return &istionet.StringMatch{MatchType: &istionet.StringMatch_Prefix{Prefix: value}}
	case OpRegex:
		return &istionet.StringMatch{MatchType: &istionet.StringMatch_Regex{Regex: value}}
	default:
		return &istionet.StringMatch{MatchType: &istionet.StringMatch_Exact{Exact: value}}
	}
}

func fromStringMatch(sm *istionet.StringMatch) (string, string, bool) {
	if sm == nil {
		return "", "", false
	}
	switch mt := sm.GetMatchType().(type) {
	case *istionet.StringMatch_Exact:
		return OpExact, mt.Exact, true
	case *istionet.StringMatch_Prefix:
		return OpPrefix, mt.Prefix, true
	case *istionet.StringMatch_Regex:
		return OpRegex, mt.Regex, true
	}
	return "", "", false
}

// HTTPMatchRequest combines the textual matches of one rule into a single
// match request; all conditions must hold. Unparsable entries are skipped.
func HTTPMatchRequest(matches []string) *istionet.HTTPMatchRequest {
	if len(matches) == 0 {
		return nil
	}
	req := &istionet.HTTPMatchRequest{}
	for _, s := range matches {
		m, err := ParseMatch(s)
		if err != nil {
			continue
		}
		sm := stringMatch(m.Operator, m.Value)
		switch m.Category {
		case MatchHeaders:
			if req.Headers == nil {
				req.Headers = map[string]*istionet.StringMatch{}
			}
			req.Headers[m.Header] = sm
		case MatchURI:
			req.Uri = sm
		case MatchScheme:
			req.Scheme = sm
		case MatchMethod:
			req.Method = sm
		case MatchAuthority:
			req.Authority = sm
		}
	}
	return req
}

// MatchStrings is the inverse of HTTPMatchRequest. Header matches come last,
// sorted by header name.
func MatchStrings(req *istionet.HTTPMatchRequest) []string {
	if req == nil {
		return nil
	}
	var out []string
	add := func(category string, sm *istionet.StringMatch) {
		if op, v, ok := fromStringMatch(sm); ok {
			out = append(out, Match{Category: category, Operator: op, Value: v}.String())
		}
	}
	add(MatchURI, req.GetUri())
	add(MatchScheme, req.GetScheme())
	add(MatchMethod, req.GetMethod())
	add(MatchAuthority, req.GetAuthority())

	names := make([]string, 0, len(req.GetHeaders()))
	for name := range req.GetHeaders() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if op, v, ok := fromStringMatch(req.GetHeaders()[name]); ok {
			out = append(out, Match{Category: MatchHeaders, Header: name, Operator: op, Value: v}.String())
		}
	}
	return out
}
