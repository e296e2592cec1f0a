package config

// Config is the complete, immutable configuration snapshot. Running requests
// keep the snapshot they started with; hot reload swaps the pointer held by
// Store, never mutates a published Config.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Arbiter  ArbiterConfig  `yaml:"arbiter"`
	Branches BranchesConfig `yaml:"branches"`
	PII      PIIConfig      `yaml:"pii"`
	Events   EventsConfig   `yaml:"events"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
}

// ServerConfig holds HTTP ingress settings.
type ServerConfig struct {
	HTTPPort        string `yaml:"http_port"`
	MaxConcurrent   int    `yaml:"max_concurrent"`    // bound on in-flight analyses
	RequestBudgetMs int    `yaml:"request_budget_ms"` // overall wall-clock budget

	// FilteringDisabled is the kill switch: every prompt passes through with
	// the filtering_disabled reason and no branch runs. Hot-reloadable, so a
	// misbehaving pipeline can be bypassed without a restart.
	FilteringDisabled bool `yaml:"filtering_disabled"`
}

// ArbiterConfig holds fusion weights, status thresholds and the boost
// registry. Weights must sum to 1.0.
type ArbiterConfig struct {
	Weights    BranchWeights `yaml:"weights"`
	BlockScore int           `yaml:"block_score"`
	// ConfidenceMin gates the positive boost conditions: a branch reporting
	// below it cannot trigger an override. 0 disables the gate.
	ConfidenceMin float64              `yaml:"confidence_min"`
	Boosts        map[string]BoostRule `yaml:"boosts"`
	// BoostOrder fixes evaluation order; unknown names are a validation error.
	BoostOrder []string `yaml:"boost_order"`
}

// BranchWeights are the per-branch fusion weights.
type BranchWeights struct {
	A float64 `yaml:"a"`
	B float64 `yaml:"b"`
	C float64 `yaml:"c"`
}

// Boost effect kinds.
const (
	BoostEffectAdd      = "add"       // combined += value (saturating at 100)
	BoostEffectRaiseMin = "raise_min" // combined = max(combined, value)
	BoostEffectClampMax = "clamp_max" // combined = min(combined, value)
)

// Boost condition predicate references. The arbiter resolves these names to
// built-in predicates over the three branch results.
const (
	CondBranchScoreHigh = "branch_score_high" // any non-degraded branch score >= 70
	CondHighSimilarity  = "high_similarity"   // Branch B critical signal
	CondModelHighRisk   = "model_high_risk"   // Branch C critical signal, C not degraded
	CondPatternHitHigh  = "pattern_hit_high"  // Branch A critical signal
	CondAllLow          = "all_low"           // all scores <= 30, no critical signal
)

// BoostRule is one named entry of the boost registry.
type BoostRule struct {
	Enabled   bool   `yaml:"enabled"`
	Condition string `yaml:"condition"`
	Effect    string `yaml:"effect"`
	Value     int    `yaml:"value"`
}

// Canonical boost rule names.
const (
	BoostConservativeOverride = "CONSERVATIVE_OVERRIDE"
	BoostHighSimilarity       = "HIGH_SIMILARITY_BOOST"
	BoostLLMGuardVeto         = "LLM_GUARD_VETO"
	BoostPatternHit           = "PATTERN_HIT_BOOST"
	BoostUnanimousLow         = "UNANIMOUS_LOW"
)

// BranchesConfig groups the per-branch settings.
type BranchesConfig struct {
	Heuristics HeuristicsConfig `yaml:"heuristics"`
	Semantic   SemanticConfig   `yaml:"semantic"`
	Safety     SafetyConfig     `yaml:"safety"`
	// JoinGraceMs is added to the largest branch budget for the join barrier.
	JoinGraceMs int `yaml:"join_grace_ms"`
}

// HeuristicsConfig configures Branch A.
type HeuristicsConfig struct {
	BudgetMs      int    `yaml:"budget_ms"`
	CataloguePath string `yaml:"catalogue_path"`
}

// SemanticConfig configures Branch B: the embedding sidecar, the vector
// store and the two-phase rule ladder thresholds.
type SemanticConfig struct {
	BudgetMs         int               `yaml:"budget_ms"`
	EmbedderEndpoint string            `yaml:"embedder_endpoint"`
	MaxTokens        int               `yaml:"max_tokens"`
	VectorStore      VectorStoreConfig `yaml:"vector_store"`
	Thresholds       TwoPhaseConfig    `yaml:"thresholds"`
}

// VectorStoreConfig is the analytical-engine connection for HNSW queries.
// Password comes from the environment via template expansion; it must never
// be placed in the YAML literally.
type VectorStoreConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Database    string `yaml:"database"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	AttackTable string `yaml:"attack_table"`
	SafeTable   string `yaml:"safe_table"`
	TopK        int    `yaml:"top_k"`
	MaxSockets  int    `yaml:"max_sockets"`
}

// TwoPhaseConfig carries every threshold of the twelve-rule classification
// ladder plus the subcategory sets. All values hot-reload with the snapshot.
type TwoPhaseConfig struct {
	// S1: safe wins by margin (margin depends on safe subcategory).
	S1MarginSecurityEducation float64 `yaml:"s1_margin_security_education"`
	S1MarginInstruction       float64 `yaml:"s1_margin_instruction"`
	S1MarginOther             float64 `yaml:"s1_margin_other"`
	S1AttackCeiling           float64 `yaml:"s1_attack_ceiling"`
	// S2: strong security-education match.
	S2SafeMin  float64 `yaml:"s2_safe_min"`
	S2DeltaMax float64 `yaml:"s2_delta_max"`
	// S3: instruction-type with clear negative delta.
	S3DeltaMax      float64 `yaml:"s3_delta_max"`
	S3AttackCeiling float64 `yaml:"s3_attack_ceiling"`
	// S4: strong non-instruction safe match.
	S4SafeMin       float64 `yaml:"s4_safe_min"`
	S4DeltaMax      float64 `yaml:"s4_delta_max"`
	S4AttackCeiling float64 `yaml:"s4_attack_ceiling"`
	// A1: very high attack similarity unless safe strongly overrides.
	A1AttackMin            float64 `yaml:"a1_attack_min"`
	A1SafeOverrideSafeMin  float64 `yaml:"a1_safe_override_safe_min"`
	A1SafeOverrideDeltaMax float64 `yaml:"a1_safe_override_delta_max"`
	// A2: high attack similarity on instruction-type safe context.
	A2AttackMin              float64 `yaml:"a2_attack_min"`
	A2ExceptionSecEduSafeMin float64 `yaml:"a2_exception_secedu_safe_min"`
	A2ExceptionSafeMargin    float64 `yaml:"a2_exception_safe_margin"`
	// A3..A6: attack ladder.
	A3AttackMin  float64 `yaml:"a3_attack_min"`
	A3DeltaMin   float64 `yaml:"a3_delta_min"`
	A4aAttackMin float64 `yaml:"a4a_attack_min"`
	A4aDeltaMin  float64 `yaml:"a4a_delta_min"`
	A4bAttackMin float64 `yaml:"a4b_attack_min"`
	A4bDeltaMin  float64 `yaml:"a4b_delta_min"`
	A5AttackMin  float64 `yaml:"a5_attack_min"`
	A5DeltaMin   float64 `yaml:"a5_delta_min"`
	A6AttackMin  float64 `yaml:"a6_attack_min"`
	A6DeltaMin   float64 `yaml:"a6_delta_min"`
	// B1/B2: borderline bands.
	B1SafeCeiling   float64 `yaml:"b1_safe_ceiling"`
	B1AttackMin     float64 `yaml:"b1_attack_min"`
	B2AttackMin     float64 `yaml:"b2_attack_min"`
	B2AttackCeiling float64 `yaml:"b2_attack_ceiling"`
	B2DeltaMin      float64 `yaml:"b2_delta_min"`
	// InstructionAdjust is added to delta for instruction-type safe matches
	// that are not security education.
	InstructionAdjust float64 `yaml:"instruction_adjust"`
	// HighSimilarity is the critical-signal threshold on attack_max.
	HighSimilarity float64 `yaml:"high_similarity"`
	// InstructionSubcategories are safe subcategories treated as
	// instruction-type; SecurityEducationSubstring marks security education.
	InstructionSubcategories   []string `yaml:"instruction_subcategories"`
	SecurityEducationSubstring string   `yaml:"security_education_substring"`
}

// SafetyConfig configures Branch C.
type SafetyConfig struct {
	BudgetMs    int     `yaml:"budget_ms"`
	Endpoint    string  `yaml:"endpoint"`
	HighRiskMin float64 `yaml:"high_risk_min"`
}

// PIIConfig configures the redaction subsystem.
type PIIConfig struct {
	NEREndpoint   string            `yaml:"ner_endpoint"`
	NERTimeoutMs  int               `yaml:"ner_timeout_ms"`
	ContextBoost  float64           `yaml:"context_boost"`
	ContextWindow int               `yaml:"context_window"` // chars on each side
	MinScore      float64           `yaml:"min_score"`
	Tokens        map[string]string `yaml:"tokens"` // entity type -> replacement token
}

// EventsConfig configures the analytical event sink.
type EventsConfig struct {
	QueueSize      int `yaml:"queue_size"`
	DrainTimeoutMs int `yaml:"drain_timeout_ms"`
}

// DatabaseConfig is the event-store connection. Password comes from the
// environment via template expansion.
type DatabaseConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	Database       string `yaml:"database"`
	SSLMode        string `yaml:"ssl_mode"`
	MaxOpenConns   int    `yaml:"max_open_conns"`
	MaxIdleConns   int    `yaml:"max_idle_conns"`
	ConnMaxLifeMin int    `yaml:"conn_max_life_min"`
	ConnMaxIdleMin int    `yaml:"conn_max_idle_min"`
}

// CacheConfig configures the optional verdict cache keyed by the hash of the
// normalized text. Eviction is deterministic: oldest timestamp first.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size"`
	TTLMs   int  `yaml:"ttl_ms"`
}
