package filter

import "testing"

func TestParseBasicComparison(t *testing.T) {
	e, err := Parse(`AccessionNumber.contains("ACC001")`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	get := func(item string) (string, bool) {
		if item == "AccessionNumber" {
			return "XACC001Y", true
		}
		return "", false
	}
	if !e.Eval(get) {
		t.Fatal("expected contains match")
	}
}

func TestParseAndOr(t *testing.T) {
	e, err := Parse(`PatientID.contains("MRN001") * StudyDate.isGreaterThan("20241231") * StudyDate.isLessThan("20250106")`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	get := func(item string) (string, bool) {
		switch item {
		case "PatientID":
			return "MRN001", true
		case "StudyDate":
			return "20250103", true
		}
		return "", false
	}
	if !e.Eval(get) {
		t.Fatal("expected window match")
	}
}

func TestParseOrChainAcrossRows(t *testing.T) {
	e, err := Parse(`AccessionNumber.contains("A") + AccessionNumber.contains("B") + AccessionNumber.contains("C")`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	get := func(item string) (string, bool) { return "B", true }
	if !e.Eval(get) {
		t.Fatal("expected OR chain to match")
	}
}

func TestParseNegation(t *testing.T) {
	e, err := Parse(`!AccessionNumber.equals("X")`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	get := func(string) (string, bool) { return "Y", true }
	if !e.Eval(get) {
		t.Fatal("expected negation to flip to true")
	}
}

func TestParseTrueFalseLiterals(t *testing.T) {
	tr, err := Parse(`true.`)
	if err != nil {
		t.Fatalf("parse true.: %v", err)
	}
	if !tr.Eval(nil) {
		t.Fatal("true. must evaluate true")
	}
	fa, err := Parse(`false.`)
	if err != nil {
		t.Fatalf("parse false.: %v", err)
	}
	if fa.Eval(nil) {
		t.Fatal("false. must evaluate false")
	}
}

func TestParseTagLiteralForm(t *testing.T) {
	e, err := Parse(`[0008,0050].equals("ACC1")`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	get := func(item string) (string, bool) {
		if item == "[0008,0050]" {
			return "ACC1", true
		}
		return "", false
	}
	if !e.Eval(get) {
		t.Fatal("expected tag literal match")
	}
}

func TestParseComment(t *testing.T) {
	e, err := Parse("AccessionNumber.equals(\"A\") // trailing comment\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	get := func(string) (string, bool) { return "A", true }
	if !e.Eval(get) {
		t.Fatal("expected match ignoring comment")
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		`AccessionNumber.contains(ACC001)`, // missing quotes
		`AccessionNumber.unknownMethod("x")`,
		`AccessionNumber.contains("x"`, // missing close paren
		`[0008,00X0].equals("x")`,      // invalid hex
	}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Errorf("expected parse error for %q", c)
		}
	}
}

// TestIsLessThanIsLexicographic documents that ordering is lexicographic,
// not numeric or date-aware.
func TestIsLessThanIsLexicographic(t *testing.T) {
	e, err := Parse(`StudyDate.isLessThan("20250106")`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	get := func(string) (string, bool) { return "20250105", true }
	if !e.Eval(get) {
		t.Fatal("lexicographic comparison of fixed-width date strings should agree with chronological order")
	}
	// Demonstrate the lexicographic nature directly: "9" > "10" as strings.
	get2 := func(string) (string, bool) { return "9", true }
	isLess, err := Parse(`StudyDate.isLessThan("10")`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if isLess.Eval(get2) {
		t.Fatal("lexicographically \"9\" is NOT less than \"10\" (starts with '9' > '1') — confirms string, not numeric, ordering")
	}
}

func TestCombineFilters(t *testing.T) {
	user, _ := Parse(`AccessionNumber.equals("A")`)
	gen, _ := Parse(`PatientID.equals("B")`)

	if Combine(user, nil) != user {
		t.Fatal("combine(user, nil) must be user")
	}
	if Combine(nil, gen) != gen {
		t.Fatal("combine(nil, gen) must be gen")
	}
	if Combine(nil, nil) != nil {
		t.Fatal("combine(nil, nil) must be nil")
	}
	both := Combine(user, gen)
	and, ok := both.(*And)
	if !ok || len(and.Terms) != 2 {
		t.Fatalf("combine(user, gen) must AND both, got %v", both)
	}
}

func TestValidateTagKeyword(t *testing.T) {
	if err := ValidateTagKeyword("AccessionNumber"); err != nil {
		t.Fatalf("expected AccessionNumber to validate: %v", err)
	}
	if err := ValidateTagKeyword("[0008,0050]"); err != nil {
		t.Fatalf("expected tag literal to always validate: %v", err)
	}
	if err := ValidateTagKeyword("NotARealTag"); err == nil {
		t.Fatal("expected unrecognized keyword to fail validation")
	}
}
