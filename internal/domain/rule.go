package domain

// AuthorRuleType classifies per-source author rules.
type AuthorRuleType string

const (
	RuleBlock AuthorRuleType = "block"
	RuleAllow AuthorRuleType = "allow"
	RuleBoost AuthorRuleType = "boost"
)

// AuthorRule is unique per (source, creator). Block rules are applied
// before persistence; allow/boost belong to the API layer.
type AuthorRule struct {
	ID          int64
	SourceID    int64
	CreatorName string
	RuleType    AuthorRuleType
	Memo        string
}
