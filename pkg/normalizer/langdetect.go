package normalizer

import "strings"

// Polish-specific letters are near-conclusive on their own; the stopword
// lists break ties for diacritic-free Polish ("prosze pomoz mi...").
var (
	polishLetters = "ąćęłńóśźżĄĆĘŁŃÓŚŹŻ"

	polishStopwords = []string{
		"nie", "jest", "się", "sie", "jak", "czy", "ale", "dla", "tego",
		"wszystkie", "oraz", "żeby", "zeby", "przez", "jako", "można",
		"mozna", "proszę", "prosze", "instrukcje", "poprzednie", "napisz",
		"zignoruj", "powiedz", "podaj",
	}
	englishStopwords = []string{
		"the", "and", "you", "that", "for", "with", "this", "are", "have",
		"not", "all", "your", "what", "how", "can", "please", "write",
		"ignore", "previous", "instructions", "tell",
	}
)

// InferLanguage guesses "pl" or "en" from character and token frequencies.
// Defaults to "en" on a tie, per contract.
func InferLanguage(text string) string {
	plScore := 0
	enScore := 0

	for _, r := range text {
		if strings.ContainsRune(polishLetters, r) {
			plScore += 3
		}
	}

	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?;:\"'()[]{}")
		for _, w := range polishStopwords {
			if tok == w {
				plScore += 2
				break
			}
		}
		for _, w := range englishStopwords {
			if tok == w {
				enScore += 2
				break
			}
		}
	}

	if plScore > enScore {
		return "pl"
	}
	return "en"
}
