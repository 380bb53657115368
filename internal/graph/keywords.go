package graph

import "strings"

// Issue types produced by the keyword scan.
const (
	IssueTerminalOutOfStock = "terminal_out_of_stock"
	IssueDriverIssue        = "driver_issue"
	IssueOther              = "other"
)

// KeywordMatch is the suggested escalation for an inbound email that the ETA
// parser could not turn into a timestamp.
type KeywordMatch struct {
	IssueType string
	Priority  string
	Matched   string // the phrase that triggered the match
}

// keywordRule maps trigger phrases to an escalation suggestion. Rules are
// checked in order; the first phrase found wins, so the most severe
// conditions come first. Vague wording like "running late" deliberately has
// no entry here: that is the ETA parser's territory, and it must not
// auto-escalate.
type keywordRule struct {
	phrases   []string
	issueType string
	priority  string
}

var keywordRules = []keywordRule{
	{
		phrases:   []string{"out of stock", "ran out of product", "no product", "allocation"},
		issueType: IssueTerminalOutOfStock,
		priority:  "critical",
	},
	{
		phrases:   []string{"accident"},
		issueType: IssueDriverIssue,
		priority:  "critical",
	},
	{
		phrases:   []string{"truck broke", "broke down"},
		issueType: IssueDriverIssue,
		priority:  "high",
	},
	{
		phrases:   []string{"cancelled", "canceled", "refuse"},
		issueType: IssueOther,
		priority:  "high",
	},
	{
		phrases:   []string{"breakdown", "mechanical"},
		issueType: IssueDriverIssue,
		priority:  "medium",
	},
}

// ScanKeywords looks for known trouble phrases in an unparseable carrier
// reply and suggests an escalation. Returns nil when nothing matches.
func ScanKeywords(text string) *KeywordMatch {
	lower := strings.ToLower(text)
	for _, rule := range keywordRules {
		for _, phrase := range rule.phrases {
			if strings.Contains(lower, phrase) {
				return &KeywordMatch{
					IssueType: rule.issueType,
					Priority:  rule.priority,
					Matched:   phrase,
				}
			}
		}
	}
	return nil
}
