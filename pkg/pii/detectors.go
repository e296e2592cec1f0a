package pii

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sentra-sec/sentra/pkg/models"
)

// Entity type names. They double as keys of the replacement-token map.
const (
	TypeEmail        = "EMAIL"
	TypePhone        = "PHONE"
	TypeIBAN         = "IBAN"
	TypeCreditCard   = "CREDIT_CARD"
	TypeIP           = "IP"
	TypeURL          = "URL"
	TypeNIP          = "PL_NIP"
	TypePESEL        = "PL_PESEL"
	TypeREGON        = "PL_REGON"
	TypePerson       = "PERSON"
	TypeLocation     = "LOCATION"
	TypeOrganization = "ORGANIZATION"
)

// patternRule is one regex detector. validate gates emission; nil means the
// pattern alone is sufficient.
type patternRule struct {
	entityType string
	re         *regexp.Regexp
	baseScore  float64
	validate   func(match string) bool
}

var patternRules = []patternRule{
	{
		entityType: TypeEmail,
		re:         regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
		baseScore:  0.90,
	},
	{
		entityType: TypeURL,
		re:         regexp.MustCompile(`https?://[^\s<>"']+`),
		baseScore:  0.80,
	},
	{
		entityType: TypeIP,
		re:         regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		baseScore:  0.70,
		validate:   validIPv4,
	},
	{
		entityType: TypeIBAN,
		re:         regexp.MustCompile(`\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,3})?\b`),
		baseScore:  0.85,
		validate:   ValidIBAN,
	},
	{
		entityType: TypeCreditCard,
		re:         regexp.MustCompile(`\b\d(?:[ \-]?\d){12,18}\b`),
		baseScore:  0.85,
		validate:   func(m string) bool { return ValidLuhn(digitsOnly(m)) },
	},
	{
		entityType: TypeNIP,
		re:         regexp.MustCompile(`\b\d{3}[\- ]?\d{3}[\- ]?\d{2}[\- ]?\d{2}\b`),
		baseScore:  0.85,
		validate:   func(m string) bool { return ValidNIP(digitsOnly(m)) },
	},
	{
		entityType: TypePESEL,
		re:         regexp.MustCompile(`\b\d{11}\b`),
		baseScore:  0.85,
		validate:   ValidPESEL,
	},
	{
		entityType: TypeREGON,
		re:         regexp.MustCompile(`\b\d{14}\b|\b\d{9}\b`),
		baseScore:  0.85,
		validate:   ValidREGON,
	},
	{
		entityType: TypePhone,
		re:         regexp.MustCompile(`(?:\+\d{1,3}[ \-]?)?\b\d{3}[ \-]?\d{3}[ \-]?\d{3}\b`),
		baseScore:  0.60,
	},
}

// contextKeywords boost a candidate when a label occurs near its span. Both
// English and Polish labels; matched case-insensitively.
var contextKeywords = map[string][]string{
	TypeEmail:      {"email", "e-mail", "mail"},
	TypePhone:      {"phone", "tel", "telefon", "mobile", "komórka"},
	TypeIBAN:       {"iban", "account", "konto", "rachunek"},
	TypeCreditCard: {"card", "karta", "visa", "mastercard"},
	TypeIP:         {"ip", "address", "adres", "host"},
	TypeNIP:        {"nip", "tax", "vat", "podatk"},
	TypePESEL:      {"pesel"},
	TypeREGON:      {"regon"},
}

// detectPatterns runs every regex rule over text and returns checksum-passing
// candidates with rune-based spans. Candidates whose validator fails are
// dropped, not demoted.
func detectPatterns(text string) []models.PIIEntity {
	toRune := buildRuneIndex(text)
	var out []models.PIIEntity
	for _, rule := range patternRules {
		for _, span := range rule.re.FindAllStringIndex(text, -1) {
			match := text[span[0]:span[1]]
			validated := false
			if rule.validate != nil {
				if !rule.validate(match) {
					continue
				}
				validated = true
			}
			out = append(out, models.PIIEntity{
				Type:      rule.entityType,
				Start:     toRune[span[0]],
				End:       toRune[span[1]],
				Score:     rule.baseScore,
				Validated: validated || rule.validate == nil,
			})
		}
	}
	return out
}

func validIPv4(m string) bool {
	for _, part := range strings.Split(m, ".") {
		n, err := strconv.Atoi(part)
		if err != nil || n > 255 {
			return false
		}
	}
	return true
}

// buildRuneIndex maps every byte offset of text (plus len(text)) to its rune
// offset, so regex byte spans convert to the code-point positions the entity
// contract uses.
func buildRuneIndex(text string) []int {
	idx := make([]int, len(text)+1)
	runePos := 0
	for bytePos, r := range text {
		for i := 0; i < utf8.RuneLen(r); i++ {
			idx[bytePos+i] = runePos
		}
		runePos++
	}
	idx[len(text)] = runePos
	return idx
}
