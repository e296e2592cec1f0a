package config

// DefaultConfig returns the built-in configuration. User YAML is merged on
// top of it, so a minimal deployment only has to provide endpoints and
// credentials. The ladder thresholds default to the production values the
// golden dataset was tuned against.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        "8080",
			MaxConcurrent:   64,
			RequestBudgetMs: 100,
		},
		Arbiter: ArbiterConfig{
			Weights:       BranchWeights{A: 0.30, B: 0.35, C: 0.35},
			BlockScore:    50,
			ConfidenceMin: 0.0,
			Boosts: map[string]BoostRule{
				BoostConservativeOverride: {Enabled: true, Condition: CondBranchScoreHigh, Effect: BoostEffectRaiseMin, Value: 70},
				BoostHighSimilarity:       {Enabled: true, Condition: CondHighSimilarity, Effect: BoostEffectAdd, Value: 15},
				BoostLLMGuardVeto:         {Enabled: true, Condition: CondModelHighRisk, Effect: BoostEffectRaiseMin, Value: 90},
				BoostPatternHit:           {Enabled: true, Condition: CondPatternHitHigh, Effect: BoostEffectAdd, Value: 20},
				BoostUnanimousLow:         {Enabled: true, Condition: CondAllLow, Effect: BoostEffectClampMax, Value: 30},
			},
			BoostOrder: []string{
				BoostConservativeOverride,
				BoostHighSimilarity,
				BoostLLMGuardVeto,
				BoostPatternHit,
				BoostUnanimousLow,
			},
		},
		Branches: BranchesConfig{
			Heuristics: HeuristicsConfig{
				BudgetMs:      10,
				CataloguePath: "./deploy/config/catalogue.yaml",
			},
			Semantic: SemanticConfig{
				BudgetMs:         25,
				EmbedderEndpoint: "http://127.0.0.1:8081",
				MaxTokens:        512,
				VectorStore: VectorStoreConfig{
					Port:        8123,
					Database:    "patterns",
					AttackTable: "attack_patterns",
					SafeTable:   "safe_patterns",
					TopK:        5,
					MaxSockets:  32,
				},
				Thresholds: DefaultTwoPhaseConfig(),
			},
			Safety: SafetyConfig{
				BudgetMs:    40,
				Endpoint:    "http://127.0.0.1:8082",
				HighRiskMin: 0.90,
			},
			JoinGraceMs: 5,
		},
		PII: PIIConfig{
			NERTimeoutMs:  200,
			ContextBoost:  0.15,
			ContextWindow: 30,
			MinScore:      0.5,
			Tokens: map[string]string{
				"EMAIL":        "[EMAIL]",
				"PHONE":        "[PHONE]",
				"IBAN":         "[IBAN]",
				"CREDIT_CARD":  "[CREDIT_CARD]",
				"IP":           "[IP]",
				"URL":          "[URL]",
				"PL_NIP":       "[PL_NIP]",
				"PL_PESEL":     "[PL_PESEL]",
				"PL_REGON":     "[PL_REGON]",
				"PERSON":       "[PERSON]",
				"LOCATION":     "[LOCATION]",
				"ORGANIZATION": "[ORGANIZATION]",
			},
		},
		Events: EventsConfig{
			QueueSize:      1024,
			DrainTimeoutMs: 5000,
		},
		Database: DatabaseConfig{
			Port:           5432,
			SSLMode:        "disable",
			MaxOpenConns:   10,
			MaxIdleConns:   5,
			ConnMaxLifeMin: 30,
			ConnMaxIdleMin: 5,
		},
		Cache: CacheConfig{
			Enabled: false,
			Size:    4096,
			TTLMs:   60_000,
		},
	}
}

// DefaultTwoPhaseConfig returns the v2.3 twelve-rule ladder thresholds.
func DefaultTwoPhaseConfig() TwoPhaseConfig {
	return TwoPhaseConfig{
		S1MarginSecurityEducation: 0.04,
		S1MarginInstruction:       0.05,
		S1MarginOther:             0.02,
		S1AttackCeiling:           0.85,

		S2SafeMin:  0.92,
		S2DeltaMax: -0.07,

		S3DeltaMax:      -0.05,
		S3AttackCeiling: 0.82,

		S4SafeMin:       0.88,
		S4DeltaMax:      -0.01,
		S4AttackCeiling: 0.85,

		A1AttackMin:            0.88,
		A1SafeOverrideSafeMin:  0.92,
		A1SafeOverrideDeltaMax: -0.02,

		A2AttackMin:              0.865,
		A2ExceptionSecEduSafeMin: 0.90,
		A2ExceptionSafeMargin:    0.03,

		A3AttackMin: 0.85,
		A3DeltaMin:  -0.022,

		A4aAttackMin: 0.85,
		A4aDeltaMin:  -0.02,
		A4bAttackMin: 0.82,
		A4bDeltaMin:  -0.02,

		A5AttackMin: 0.82,
		A5DeltaMin:  0.02,

		A6AttackMin: 0.78,
		A6DeltaMin:  0.08,

		B1SafeCeiling: 0.92,
		B1AttackMin:   0.82,

		B2AttackMin:     0.78,
		B2AttackCeiling: 0.85,
		B2DeltaMin:      -0.03,

		InstructionAdjust: 0.05,
		HighSimilarity:    0.85,

		InstructionSubcategories:   []string{"programming", "instruction", "alpaca", "code", "general"},
		SecurityEducationSubstring: "security_education",
	}
}
