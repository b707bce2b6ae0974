package query

import (
	"strconv"
	"strings"
	"time"

	"github.com/icalstore/rcal/rcalerr"
)

// Parse parses raw, a flat whitespace-separated query-property
// sequence with optional parenthesized where-groups (spec §4.7), into
// a Query. deadline bounds parsing cooperatively (spec §4.7/§9,
// ICAL_PARSER_TIMEOUT_MS): once passed, Parse returns ParseTimeout.
// defs supplies the config-driven X-LIMIT/X-GEO DIST= fallbacks; omit
// it (or pass a zero Defaults) to use the package defaults (50, 10KM).
func Parse(raw string, deadline time.Time, defs ...Defaults) (*Query, error) {
	const op = "query.Parse"
	parseTotal.Inc()

	var d Defaults
	if len(defs) > 0 {
		d = defs[0]
	}

	toks := tokenize(raw)
	q := &Query{Limit: d.limit(), TZID: defaultTZID, OrderBy: OrderBy{Kind: OrderDTStart}}

	var treeToks []string
	for i := 0; i < len(toks); i++ {
		if !deadline.IsZero() && time.Now().After(deadline) {
			parseTimeoutTotal.Inc()
			return nil, rcalerr.Newf(rcalerr.ParseTimeout, op, "parser deadline exceeded")
		}
		t := toks[i]
		if t == "(" || t == ")" || t == "AND" || t == "OR" {
			treeToks = append(treeToks, t)
			continue
		}
		name, params, value, err := splitToken(t)
		if err != nil {
			return nil, err
		}
		switch strings.ToUpper(name) {
		case "X-FROM":
			b, err := parseBound(params, value)
			if err != nil {
				return nil, err
			}
			b.Op = defaultOp(b.Op, OpGT)
			q.From = b
		case "X-UNTIL":
			b, err := parseBound(params, value)
			if err != nil {
				return nil, err
			}
			b.Op = defaultOp(b.Op, OpLT)
			q.Until = b
		case "X-LIMIT":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, rcalerr.Newf(rcalerr.Parse, op, "invalid X-LIMIT %q: %v", value, err)
			}
			q.Limit = n
			q.LimitExplicit = true
		case "X-OFFSET":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, rcalerr.Newf(rcalerr.Parse, op, "invalid X-OFFSET %q: %v", value, err)
			}
			q.Offset = n
		case "X-ORDER-BY":
			ob, err := parseOrderBy(value)
			if err != nil {
				return nil, err
			}
			q.OrderBy = ob
		case "X-DISTINCT":
			if strings.ToUpper(value) != "UID" {
				return nil, rcalerr.Newf(rcalerr.Parse, op, "unsupported X-DISTINCT value %q", value)
			}
			q.Distinct = true
		case "X-TZID":
			q.TZID = value
		default:
			treeToks = append(treeToks, t)
		}
	}

	if len(treeToks) == 0 {
		return q, nil
	}
	p := &treeParser{toks: treeToks, deadline: deadline, geoRadiusKM: d.geoRadiusKM()}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, rcalerr.Newf(rcalerr.Parse, op, "unexpected trailing token %q", p.toks[p.pos])
	}
	q.Filter = node
	return q, nil
}

func defaultOp(op BoundOp, def BoundOp) BoundOp {
	if op == "" {
		return def
	}
	return op
}

// tokenize splits raw on whitespace while treating '(' and ')' as
// standalone tokens even when glued to a neighboring property (e.g.
// "(X-CATEGORIES:A" tokenizes as "(", "X-CATEGORIES:A").
func tokenize(raw string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range raw {
		switch {
		case r == '(' || r == ')':
			flush()
			toks = append(toks, string(r))
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}

// splitToken splits "NAME[;PARAM=VALUE...]:VALUE" into name, params,
// and value. The value (everything after the first ':') may itself
// contain ';' (e.g. a GEO "lat;lon" value) — that's left untouched.
func splitToken(tok string) (name string, params map[string]string, value string, err error) {
	colon := strings.IndexByte(tok, ':')
	if colon < 0 {
		return "", nil, "", rcalerr.Newf(rcalerr.Parse, "query.Parse", "malformed query token %q (missing ':')", tok)
	}
	head := tok[:colon]
	value = tok[colon+1:]
	parts := strings.Split(head, ";")
	name = parts[0]
	params = make(map[string]string)
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return "", nil, "", rcalerr.Newf(rcalerr.Parse, "query.Parse", "malformed parameter %q in token %q", p, tok)
		}
		params[strings.ToUpper(kv[0])] = kv[1]
	}
	return name, params, value, nil
}

func parseBound(params map[string]string, value string) (Bound, error) {
	b := Bound{Has: true, Prop: BoundDTStart, TZID: "UTC"}
	if p, ok := params["PROP"]; ok {
		b.Prop = BoundProp(strings.ToUpper(p))
	}
	if op, ok := params["OP"]; ok {
		b.Op = BoundOp(strings.ToUpper(op))
	}
	if tzid, ok := params["TZID"]; ok {
		b.TZID = tzid
	}
	t, err := parseDateTime(value, b.TZID)
	if err != nil {
		return Bound{}, err
	}
	b.Value = t
	return b, nil
}

const dtLayoutUTC = "20060102T150405Z"
const dtLayoutLocal = "20060102T150405"

func parseDateTime(value, tzid string) (time.Time, error) {
	const op = "query.parseDateTime"
	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse(dtLayoutUTC, value)
		if err != nil {
			return time.Time{}, rcalerr.Newf(rcalerr.Parse, op, "invalid date-time %q: %v", value, err)
		}
		return t.UTC(), nil
	}
	loc := time.UTC
	if tzid != "" && tzid != "UTC" {
		l, err := time.LoadLocation(tzid)
		if err != nil {
			return time.Time{}, rcalerr.Newf(rcalerr.Parse, op, "unknown TZID %q: %v", tzid, err)
		}
		loc = l
	}
	t, err := time.ParseInLocation(dtLayoutLocal, value, loc)
	if err != nil {
		return time.Time{}, rcalerr.Newf(rcalerr.Parse, op, "invalid date-time %q: %v", value, err)
	}
	return t.UTC(), nil
}

func parseOrderBy(value string) (OrderBy, error) {
	const op = "query.parseOrderBy"
	parts := strings.Split(value, ";")
	switch strings.ToUpper(parts[0]) {
	case string(OrderDTStart):
		return OrderBy{Kind: OrderDTStart}, nil
	case string(OrderDTStartGeoDist), string(OrderGeoDistDTStart):
		if len(parts) != 3 {
			return OrderBy{}, rcalerr.Newf(rcalerr.Parse, op, "X-ORDER-BY %q requires ;lat;lon", value)
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return OrderBy{}, rcalerr.Newf(rcalerr.Parse, op, "invalid X-ORDER-BY latitude: %v", err)
		}
		lon, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return OrderBy{}, rcalerr.Newf(rcalerr.Parse, op, "invalid X-ORDER-BY longitude: %v", err)
		}
		return OrderBy{Kind: OrderKind(strings.ToUpper(parts[0])), Lat: lat, Lon: lon}, nil
	default:
		return OrderBy{}, rcalerr.Newf(rcalerr.Parse, op, "unknown X-ORDER-BY kind %q", parts[0])
	}
}

func parseGeoLeaf(params map[string]string, value string, defaultRadiusKM float64) (*Leaf, error) {
	const op = "query.parseGeoLeaf"
	parts := strings.SplitN(value, ";", 2)
	if len(parts) != 2 {
		return nil, rcalerr.Newf(rcalerr.Parse, op, "invalid X-GEO value %q", value)
	}
	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return nil, rcalerr.Newf(rcalerr.Parse, op, "invalid X-GEO latitude: %v", err)
	}
	lon, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return nil, rcalerr.Newf(rcalerr.Parse, op, "invalid X-GEO longitude: %v", err)
	}
	radiusKM := defaultRadiusKM
	if dist, ok := params["DIST"]; ok {
		radiusKM, err = parseDistance(dist)
		if err != nil {
			return nil, err
		}
	}
	return &Leaf{Kind: LeafGeo, Lat: lat, Lon: lon, RadiusKM: radiusKM}, nil
}

const milesToKM = 1.609344

func parseDistance(s string) (float64, error) {
	const op = "query.parseDistance"
	upper := strings.ToUpper(s)
	var numPart string
	var km bool
	switch {
	case strings.HasSuffix(upper, "KM"):
		numPart = s[:len(s)-2]
		km = true
	case strings.HasSuffix(upper, "MI"):
		numPart = s[:len(s)-2]
		km = false
	default:
		return 0, rcalerr.Newf(rcalerr.Parse, op, "invalid distance unit in %q (want KM or MI)", s)
	}
	n, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, rcalerr.Newf(rcalerr.Parse, op, "invalid distance %q: %v", s, err)
	}
	if !km {
		n *= milesToKM
	}
	return n, nil
}

// treeParser is a small recursive-descent parser over the leftover
// (non-modifier) tokens: filter leaves, "(", ")", "AND", "OR". Operator
// precedence: AND binds tighter than OR; adjacency with no explicit
// keyword defaults to AND (spec §4.7).
type treeParser struct {
	toks        []string
	pos         int
	deadline    time.Time
	geoRadiusKM float64
}

func (p *treeParser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *treeParser) checkDeadline() error {
	if !p.deadline.IsZero() && time.Now().After(p.deadline) {
		parseTimeoutTotal.Inc()
		return rcalerr.Newf(rcalerr.ParseTimeout, "query.Parse", "parser deadline exceeded")
	}
	return nil
}

func (p *treeParser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	items := []Node{left}
	for p.peek() == "OR" {
		if err := p.checkDeadline(); err != nil {
			return nil, err
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		items = append(items, right)
	}
	if len(items) == 1 {
		return items[0], nil
	}
	return &Or{Children: items}, nil
}

func (p *treeParser) parseAnd() (Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	items := []Node{left}
	for {
		if err := p.checkDeadline(); err != nil {
			return nil, err
		}
		switch p.peek() {
		case "AND":
			p.pos++
			right, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			items = append(items, right)
		case "", ")", "OR":
			if len(items) == 1 {
				return items[0], nil
			}
			return &And{Children: items}, nil
		default:
			// adjacency: another primary with no explicit connective
			right, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			items = append(items, right)
		}
	}
}

func (p *treeParser) parsePrimary() (Node, error) {
	const op = "query.Parse"
	switch p.peek() {
	case "":
		return nil, rcalerr.Newf(rcalerr.Parse, op, "unexpected end of query")
	case "(":
		p.pos++
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, rcalerr.Newf(rcalerr.Parse, op, "unclosed '('")
		}
		p.pos++
		return node, nil
	case ")":
		return nil, rcalerr.Newf(rcalerr.Parse, op, "unexpected ')'")
	default:
		tok := p.toks[p.pos]
		p.pos++
		return parseLeafToken(tok, p.geoRadiusKM)
	}
}

func parseLeafToken(tok string, defaultGeoRadiusKM float64) (Node, error) {
	const op = "query.Parse"
	name, params, value, err := splitToken(tok)
	if err != nil {
		return nil, err
	}
	valOp := OpOR
	if o, ok := params["OP"]; ok {
		valOp = ValueOp(strings.ToUpper(o))
	}
	values := splitValues(value)

	switch strings.ToUpper(name) {
	case "X-CATEGORIES":
		return &Leaf{Kind: LeafCategories, Values: values, ValOp: valOp}, nil
	case "X-LOCATION-TYPE":
		return &Leaf{Kind: LeafLocationType, Values: values, ValOp: valOp}, nil
	case "X-RELATED-TO":
		relType := params["RELTYPE"]
		return &Leaf{Kind: LeafRelatedTo, Values: values, ValOp: valOp, RelType: relType}, nil
	case "X-CLASS":
		return &Leaf{Kind: LeafClass, Values: values, ValOp: valOp}, nil
	case "X-UID":
		// spec §8 boundary: X-UID always ORs across its values,
		// regardless of an OP parameter.
		return &Leaf{Kind: LeafUID, Values: values, ValOp: OpOR}, nil
	case "X-GEO":
		return parseGeoLeaf(params, value, defaultGeoRadiusKM)
	default:
		return nil, rcalerr.Newf(rcalerr.Parse, op, "unknown query property %q", name)
	}
}

func splitValues(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
