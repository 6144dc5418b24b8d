package filter

// Combine composes optional filters in AND:
//
//	combine(user, nil)  = user
//	combine(nil, gen)   = gen
//	combine(nil, nil)   = nil  (caller substitutes the trivial True{} filter)
//	combine(a, b)       = a * b
func Combine(exprs ...Expr) Expr {
	var present []Expr
	for _, e := range exprs {
		if e != nil {
			present = append(present, e)
		}
	}
	switch len(present) {
	case 0:
		return nil
	case 1:
		return present[0]
	default:
		return &And{Terms: present}
	}
}

// CombineStrings parses and combines optional filter-expression strings,
// skipping empty ones. Returns nil (not an error) if all inputs are empty —
// the caller substitutes the trivial accept-everything filter in that case.
func CombineStrings(sources ...string) (Expr, error) {
	var exprs []Expr
	for _, s := range sources {
		if s == "" {
			continue
		}
		e, err := Parse(s)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return Combine(exprs...), nil
}

// OrAll combines row-derived filters with logical OR ("+"), for the Query
// Planner to fold every row's filter into one combined expression.
func OrAll(exprs []Expr) Expr {
	if len(exprs) == 0 {
		return nil
	}
	if len(exprs) == 1 {
		return exprs[0]
	}
	return &Or{Terms: exprs}
}
