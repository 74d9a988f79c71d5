package validate

import (
	"errors"
	"regexp"
	"testing"
)

func TestApplyAccumulatesErrorsInDeclarationOrder(t *testing.T) {
	rx := regexp.MustCompile(`^[a-z]+$`)
	rules := RuleSet{
		Field("userName",
			Length(3, 50, "too short or long"),
			Match(rx, "bad characters"),
		),
		Field("password",
			Length(8, 128, "password too short"),
		),
	}

	errs := rules.Apply(map[string]string{"userName": "A!", "password": "short"})
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}
	if errs[0].Field != "userName" || errs[0].Message != "too short or long" {
		t.Fatalf("unexpected first error %v", errs[0])
	}
	if errs[1].Message != "bad characters" {
		t.Fatalf("unexpected second error %v", errs[1])
	}
	if errs[2].Field != "password" {
		t.Fatalf("unexpected third error %v", errs[2])
	}
}

func TestRangeStaysSilentOnUnparseableValue(t *testing.T) {
	rules := RuleSet{
		Field("pretax",
			Numeric("must be a number"),
			Range(0, 50000, "out of range"),
		),
	}
	errs := rules.Apply(map[string]string{"pretax": "abc"})
	if len(errs) != 1 || errs[0].Message != "must be a number" {
		t.Fatalf("expected single Numeric error, got %v", errs)
	}

	errs = rules.Apply(map[string]string{"pretax": "60000"})
	if len(errs) != 1 || errs[0].Message != "out of range" {
		t.Fatalf("expected single Range error, got %v", errs)
	}
}

func TestGroupCrossFieldPredicate(t *testing.T) {
	rules := RuleSet{
		Group(func(fields map[string]string) []Error {
			if Num(fields, "pretax")+Num(fields, "roth") > 50000 {
				return []Error{{Field: "pretax", Message: "total too high"}}
			}
			return nil
		}),
	}
	if errs := rules.Apply(map[string]string{"pretax": "30000", "roth": "25000"}); len(errs) != 1 {
		t.Fatalf("expected total error, got %v", errs)
	}
	if errs := rules.Apply(map[string]string{"pretax": "30000", "roth": "20000"}); len(errs) != 0 {
		t.Fatalf("expected no error, got %v", errs)
	}
}

func TestEmailRejectsDisplayNamesAndGarbage(t *testing.T) {
	check := Email("bad email")
	if e := check("user@example.com"); e != nil {
		t.Fatalf("valid address rejected: %v", e)
	}
	for _, v := range []string{"not-an-email", "Alice <user@example.com>", "", "user@"} {
		if e := check(v); e == nil {
			t.Fatalf("expected rejection for %q", v)
		}
	}
}

func TestCustomWrapsDomainError(t *testing.T) {
	check := Custom(func(v string) error {
		if v == "bad" {
			return errors.New("value rejected")
		}
		return nil
	})
	if e := check("ok"); e != nil {
		t.Fatalf("unexpected error %v", e)
	}
	if e := check("bad"); e == nil || e.Message != "value rejected" {
		t.Fatalf("expected wrapped message, got %v", e)
	}
}

func TestFieldStringFormatsJSONLeaves(t *testing.T) {
	body := map[string]any{
		"s": "text",
		"n": float64(30000),
		"f": float64(0.5),
		"b": true,
	}
	if got := FieldString(body, "s"); got != "text" {
		t.Fatalf("string leaf: %q", got)
	}
	if got := FieldString(body, "n"); got != "30000" {
		t.Fatalf("integral number leaf: %q", got)
	}
	if got := FieldString(body, "f"); got != "0.5" {
		t.Fatalf("fractional number leaf: %q", got)
	}
	if got := FieldString(body, "b"); got != "true" {
		t.Fatalf("bool leaf: %q", got)
	}
	if got := FieldString(body, "missing"); got != "" {
		t.Fatalf("missing leaf: %q", got)
	}
}
