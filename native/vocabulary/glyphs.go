package vocabulary

// Domain enumerates the semantic grouping of a glyph.
type Domain string

const (
	DomainFoundation Domain = "foundation"
	DomainCrypto     Domain = "crypto"
	DomainAgent      Domain = "agent"
	DomainState      Domain = "state"
	DomainPayment    Domain = "payment"
)

// Definition is the shape shared by built-in, community, and (for display
// purposes only) compound glyphs. Compound glyphs never carry keywords — see
// Vocabulary.Suggest.
type Definition struct {
	ID         string   `json:"id"`
	Meaning    string   `json:"meaning"`
	Pose       string   `json:"pose"`
	Symbol     string   `json:"symbol"`
	Domain     Domain   `json:"domain"`
	Keywords   []string `json:"keywords"`
	VisualHint string   `json:"visualHint"`
}

// builtins is the immutable compile-time glyph table. Order is significant:
// Vocabulary.Match searches it in declaration order before falling back to
// community base glyphs in install order.
var builtins = []Definition{
	{
		ID: "Q01", Meaning: "query", Pose: "open-palm-raised", Symbol: "◉?",
		Domain: DomainFoundation, Keywords: []string{"query", "ask", "lookup", "fetch", "search"},
		VisualHint: "circle-with-question",
	},
	{
		ID: "Q02", Meaning: "respond", Pose: "open-palm-forward", Symbol: "◉!",
		Domain: DomainFoundation, Keywords: []string{"respond", "reply", "answer", "acknowledge"},
		VisualHint: "circle-with-bang",
	},
	{
		ID: "Q03", Meaning: "acknowledge", Pose: "single-nod", Symbol: "◉•",
		Domain: DomainFoundation, Keywords: []string{"acknowledge", "ack", "confirm", "received"},
		VisualHint: "circle-with-dot",
	},
	{
		ID: "Q04", Meaning: "error", Pose: "crossed-arms", Symbol: "◉✕",
		Domain: DomainFoundation, Keywords: []string{"error", "fail", "failure", "problem"},
		VisualHint: "circle-with-cross",
	},
	{
		ID: "Q05", Meaning: "heartbeat", Pose: "steady-pulse", Symbol: "◉♡",
		Domain: DomainFoundation, Keywords: []string{"heartbeat", "ping", "alive", "keepalive"},
		VisualHint: "circle-with-heart",
	},
	{
		ID: "X01", Meaning: "swap", Pose: "crossed-hands", Symbol: "⤫$",
		Domain: DomainCrypto, Keywords: []string{"swap", "exchange", "trade", "convert"},
		VisualHint: "crossed-arrows",
	},
	{
		ID: "X02", Meaning: "transfer", Pose: "outstretched-hand", Symbol: "→$",
		Domain: DomainCrypto, Keywords: []string{"transfer", "send-funds", "pay-out"},
		VisualHint: "arrow-with-coin",
	},
	{
		ID: "X03", Meaning: "escrow", Pose: "two-handed-hold", Symbol: "◫$",
		Domain: DomainCrypto, Keywords: []string{"escrow", "hold", "lock-funds"},
		VisualHint: "box-with-coin",
	},
	{
		ID: "X04", Meaning: "attest", Pose: "raised-fist", Symbol: "◉⚑",
		Domain: DomainCrypto, Keywords: []string{"attest", "attestation", "prove", "verify-chain"},
		VisualHint: "flag-on-circle",
	},
	{
		ID: "X05", Meaning: "stake", Pose: "planted-feet", Symbol: "⚓$",
		Domain: DomainCrypto, Keywords: []string{"stake", "bond", "commit-funds", "deposit"},
		VisualHint: "anchor-with-coin",
	},
	{
		ID: "A01", Meaning: "assign-task", Pose: "pointing-forward", Symbol: "◉→▣",
		Domain: DomainAgent, Keywords: []string{"assign", "task", "delegate", "dispatch"},
		VisualHint: "circle-pointing-square",
	},
	{
		ID: "A02", Meaning: "accept-task", Pose: "palm-up", Symbol: "▣↑",
		Domain: DomainAgent, Keywords: []string{"accept", "take-on", "start-task"},
		VisualHint: "square-rising",
	},
	{
		ID: "A03", Meaning: "complete-task", Pose: "fist-down", Symbol: "▣✓",
		Domain: DomainAgent, Keywords: []string{"complete", "done", "finish", "task-complete"},
		VisualHint: "square-with-check",
	},
	{
		ID: "A04", Meaning: "delegate", Pose: "handoff", Symbol: "▣→▣",
		Domain: DomainAgent, Keywords: []string{"delegate", "handoff", "reassign"},
		VisualHint: "square-to-square",
	},
	{
		ID: "S01", Meaning: "state-snapshot", Pose: "frozen-stance", Symbol: "❄▣",
		Domain: DomainState, Keywords: []string{"snapshot", "checkpoint", "state", "freeze"},
		VisualHint: "snowflake-square",
	},
	{
		ID: "S02", Meaning: "state-diff", Pose: "split-hands", Symbol: "▣Δ",
		Domain: DomainState, Keywords: []string{"diff", "delta", "change", "update"},
		VisualHint: "square-with-delta",
	},
	{
		ID: "S03", Meaning: "rollback", Pose: "step-back", Symbol: "◁▣",
		Domain: DomainState, Keywords: []string{"rollback", "revert", "undo"},
		VisualHint: "square-with-back-arrow",
	},
	{
		ID: "P01", Meaning: "invoice", Pose: "extended-palm", Symbol: "▤$",
		Domain: DomainPayment, Keywords: []string{"invoice", "bill", "charge"},
		VisualHint: "sheet-with-coin",
	},
	{
		ID: "P02", Meaning: "receipt", Pose: "palm-closing", Symbol: "▤✓",
		Domain: DomainPayment, Keywords: []string{"receipt", "paid", "proof-of-payment"},
		VisualHint: "sheet-with-check",
	},
	{
		ID: "P03", Meaning: "refund", Pose: "palm-returning", Symbol: "▤↩",
		Domain: DomainPayment, Keywords: []string{"refund", "reverse-payment", "chargeback"},
		VisualHint: "sheet-with-return-arrow",
	},
}

// Builtins returns a defensive copy of the compile-time glyph table.
func Builtins() []Definition {
	out := make([]Definition, len(builtins))
	copy(out, builtins)
	return out
}
