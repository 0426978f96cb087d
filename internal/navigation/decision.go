package navigation

import (
	"github.com/devscan/linkshield/internal/core"
)

// Decide maps a verdict and the user's policy to a navigation decision. It
// is a pure function; the per-page click guard must agree with it given the
// same verdict.
//
// Anomalous verdicts always use the anomalous warning page. Malicious
// verdicts use the strict (no-bypass) page only when the user enabled strict
// malicious blocking. In warnings-only mode risky navigations proceed and the
// in-page tooltips carry the warning. Anything that is not affirmatively safe
// fails closed into the cannot-verify flow.
func Decide(verdict core.Verdict, policy core.UserPolicy) core.NavigationDecision {
	switch verdict {
	case core.VerdictSafe:
		return core.NavigationDecision{Action: core.ActionProceed}
	case core.VerdictAnomalous:
		if policy.ShowWarningsOnly {
			return core.NavigationDecision{Action: core.ActionProceed}
		}
		return core.NavigationDecision{
			Action:  core.ActionRedirectWarning,
			Variant: core.WarningAnomalous,
		}
	case core.VerdictMalicious:
		if policy.ShowWarningsOnly {
			return core.NavigationDecision{Action: core.ActionProceed}
		}
		variant := core.WarningStandard
		if policy.StrictMaliciousBlocking {
			variant = core.WarningStrict
		}
		return core.NavigationDecision{
			Action:  core.ActionRedirectWarning,
			Variant: variant,
		}
	default:
		return core.NavigationDecision{Action: core.ActionNotifyScanFailed}
	}
}
