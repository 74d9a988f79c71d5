package api

import (
	"regexp"

	"nestegg/internal/service"
	"nestegg/internal/validate"
)

var (
	userNameRx = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	nameRx     = regexp.MustCompile(`^[a-zA-Z \-']+$`)
	symbolRx   = regexp.MustCompile(`^[A-Z0-9.-]+$`)
)

const maxContribution = 50000

func loginRules() validate.RuleSet {
	return validate.RuleSet{
		validate.Field("userName",
			validate.Length(3, 50, "Username must be between 3 and 50 characters"),
			validate.Match(userNameRx, "Username contains invalid characters"),
		),
		validate.Field("password",
			validate.Length(8, 128, "Password must be at least 8 characters"),
		),
	}
}

func signupRules(svc *service.Service) validate.RuleSet {
	return validate.RuleSet{
		validate.Field("userName",
			validate.Length(3, 50, "Username must be between 3 and 50 characters"),
			validate.Match(userNameRx, "Username contains invalid characters"),
		),
		validate.Field("firstName",
			validate.Length(1, 50, "First name must be between 1 and 50 characters"),
			validate.Match(nameRx, "First name contains invalid characters"),
		),
		validate.Field("lastName",
			validate.Length(1, 50, "Last name must be between 1 and 50 characters"),
			validate.Match(nameRx, "Last name contains invalid characters"),
		),
		validate.Field("email",
			validate.Email("Invalid email format"),
		),
		validate.Field("password",
			validate.Custom(svc.ValidatePassword),
		),
	}
}

func profileRules() validate.RuleSet {
	return validate.RuleSet{
		validate.Field("firstName",
			validate.Length(1, 50, "First name must be between 1 and 50 characters"),
			validate.Match(nameRx, "First name contains invalid characters"),
		),
		validate.Field("lastName",
			validate.Length(1, 50, "Last name must be between 1 and 50 characters"),
			validate.Match(nameRx, "Last name contains invalid characters"),
		),
	}
}

// The per-field bounds and the total bound are independent checks: a pair of
// individually valid amounts can still fail the combined limit.
func contributionRules() validate.RuleSet {
	return validate.RuleSet{
		validate.Field("pretax",
			validate.Numeric("Pretax contribution must be a number"),
			validate.Range(0, maxContribution, "Pretax contribution must be between 0 and 50000"),
		),
		validate.Field("roth",
			validate.Numeric("Roth contribution must be a number"),
			validate.Range(0, maxContribution, "Roth contribution must be between 0 and 50000"),
		),
		validate.Group(func(fields map[string]string) []validate.Error {
			if validate.Num(fields, "pretax")+validate.Num(fields, "roth") > maxContribution {
				return []validate.Error{{Field: "pretax", Message: "Total contributions cannot exceed $50,000"}}
			}
			return nil
		}),
	}
}

func memoRules() validate.RuleSet {
	return validate.RuleSet{
		validate.Field("memo",
			validate.Length(1, 1000, "Memo must be between 1 and 1000 characters"),
			validate.NotBlank("Memo cannot be empty"),
		),
	}
}

func researchRules() validate.RuleSet {
	return validate.RuleSet{
		validate.Field("symbol",
			validate.Length(1, 10, "Stock symbol must be between 1 and 10 characters"),
			validate.Match(symbolRx, "Stock symbol contains invalid characters"),
		),
	}
}
