package normalizer

// homoglyphs maps visually-confusable code points to their ASCII
// counterparts. Covers the Cyrillic and Greek letters most often used to
// disguise Latin keywords, plus a few fullwidth stragglers NFKC leaves
// alone. Folding is case-preserving.
var homoglyphs = map[rune]rune{
	// Cyrillic lowercase
	'а': 'a', 'е': 'e', 'о': 'o', 'р': 'p', 'с': 'c', 'у': 'y',
	'х': 'x', 'і': 'i', 'ѕ': 's', 'ј': 'j', 'ԁ': 'd', 'ɡ': 'g',
	'һ': 'h', 'ԛ': 'q', 'ѡ': 'w', 'ʋ': 'v', 'ь': 'b', 'п': 'n',
	'м': 'm', 'т': 't', 'к': 'k',
	// Cyrillic uppercase
	'А': 'A', 'В': 'B', 'Е': 'E', 'К': 'K', 'М': 'M', 'Н': 'H',
	'О': 'O', 'Р': 'P', 'С': 'C', 'Т': 'T', 'Х': 'X', 'І': 'I',
	'Ѕ': 'S', 'Ј': 'J', 'У': 'Y',
	// Greek lowercase
	'α': 'a', 'ο': 'o', 'ν': 'v', 'ι': 'i', 'κ': 'k', 'ρ': 'p',
	'τ': 't', 'υ': 'u', 'χ': 'x', 'ε': 'e',
	// Greek uppercase
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Ζ': 'Z', 'Η': 'H', 'Ι': 'I',
	'Κ': 'K', 'Μ': 'M', 'Ν': 'N', 'Ο': 'O', 'Ρ': 'P', 'Τ': 'T',
	'Υ': 'Y', 'Χ': 'X',
}
