// Package normalizer canonicalizes incoming prompts before detection.
//
// The output Normalized text is a superset of the attacker-visible text:
// the folded original plus any comment bodies and encoded payloads recovered
// from it, so obfuscation cannot hide instructions from the branches.
package normalizer

import (
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sentra-sec/sentra/pkg/models"
)

const (
	// recoveredHeader separates the folded original from recovered hidden
	// layers. A trailing section is dropped before reprocessing only when it
	// is exactly what this pass regenerates from the text before it; that
	// makes the pipeline idempotent without ever cutting input text.
	recoveredHeader = "\n--- recovered ---\n"

	commentOpen  = "[comment] "
	commentClose = " [/comment]"

	maxDecodedLayers = 3
	maxLayerBytes    = 4096
	printableRatio   = 0.80
)

var (
	base64Candidate = regexp.MustCompile(`[A-Za-z0-9+/]{20,}={0,2}`)
	hexCandidate    = regexp.MustCompile(`(?:\\x[0-9a-fA-F]{2}){4,}`)

	htmlComment  = regexp.MustCompile(`(?s)<!--(.*?)-->`)
	blockComment = regexp.MustCompile(`(?s)/\*(.*?)\*/`)
	lineComment  = regexp.MustCompile(`(?m)(?:^|\s)(?://|#|--)\s?(.+)$`)

	// Zero-width and bidi-override code points stripped outright.
	invisibleRunes = map[rune]bool{
		'\u200B': true, // zero width space
		'\u200C': true, // zero width non-joiner
		'\u200D': true, // zero width joiner
		'\uFEFF': true, // zero width no-break space / BOM
		'\u202A': true, // left-to-right embedding
		'\u202B': true, // right-to-left embedding
		'\u202C': true, // pop directional formatting
		'\u202D': true, // left-to-right override
		'\u202E': true, // right-to-left override
	}
)

// Normalizer folds and augments raw prompts. Stateless and safe for
// concurrent use.
type Normalizer struct{}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize runs the full canonicalization pipeline. langHint, when "pl" or
// "en", overrides language inference.
func (n *Normalizer) Normalize(raw, langHint string) models.NormalizedInput {
	// Reprocessing already-normalized text must not stack recovered
	// sections. A trailing section is dropped only when it matches what this
	// pass regenerates from the text before it, so user-written text after a
	// forged sentinel still reaches the branches.
	base := raw
	tail := ""
	if idx := strings.LastIndex(base, recoveredHeader); idx >= 0 {
		base, tail = base[:idx], base[idx+len(recoveredHeader):]
	}

	folded := foldText(base)
	sections, layers := recoverSections(folded)

	if tail != "" && tail != strings.Join(sections, "\n") {
		// Not this pipeline's output: keep the tail, with the user-supplied
		// sentinel reduced to a newline.
		folded = foldText(strings.ReplaceAll(raw, recoveredHeader, "\n"))
		sections, layers = recoverSections(folded)
	}

	normalized := folded
	if len(sections) > 0 {
		normalized += recoveredHeader + strings.Join(sections, "\n")
	}

	lang := langHint
	if lang != "pl" && lang != "en" {
		lang = InferLanguage(folded)
	}

	return models.NormalizedInput{
		Raw:           raw,
		Normalized:    normalized,
		DecodedLayers: layers,
		Lang:          lang,
	}
}

// recoverSections collects the hidden layers of folded text: comment bodies
// and tentatively decoded payloads, each formatted as a sentinel section.
func recoverSections(folded string) ([]string, []models.DecodedLayer) {
	var sections []string
	if comments := recoverComments(folded); comments != "" {
		sections = append(sections, comments)
	}
	layers := peekDecode(folded)
	for _, layer := range layers {
		sections = append(sections, "[decoded:"+layer.Encoding+"] "+layer.Payload+" [/decoded]")
	}
	return sections, layers
}

// foldText applies NFKC, homoglyph folding and invisible-character
// stripping. Idempotent.
func foldText(s string) string {
	s = norm.NFKC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if invisibleRunes[r] {
			continue
		}
		if folded, ok := homoglyphs[r]; ok {
			b.WriteRune(folded)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// recoverComments extracts comment bodies of every recognized syntax and
// concatenates them between sentinel markers. Comment syntax is probed per
// run; the input never declares a language.
func recoverComments(s string) string {
	var bodies []string
	for _, re := range []*regexp.Regexp{htmlComment, blockComment} {
		for _, m := range re.FindAllStringSubmatch(s, -1) {
			if body := strings.TrimSpace(m[1]); body != "" {
				bodies = append(bodies, body)
			}
		}
	}
	for _, m := range lineComment.FindAllStringSubmatch(s, -1) {
		if body := strings.TrimSpace(m[1]); body != "" {
			bodies = append(bodies, body)
		}
	}
	if len(bodies) == 0 {
		return ""
	}
	var b strings.Builder
	for i, body := range bodies {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(commentOpen)
		b.WriteString(body)
		b.WriteString(commentClose)
	}
	return b.String()
}

// peekDecode tentatively decodes base64 and \xNN-hex substrings. A decoded
// payload is kept only when it is at least 80% printable ASCII; nested
// encodings are followed up to maxDecodedLayers total layers, each capped
// at maxLayerBytes.
func peekDecode(s string) []models.DecodedLayer {
	var layers []models.DecodedLayer
	pending := []string{s}

	for len(pending) > 0 && len(layers) < maxDecodedLayers {
		text := pending[0]
		pending = pending[1:]

		for _, candidate := range base64Candidate.FindAllString(text, -1) {
			if len(layers) >= maxDecodedLayers {
				break
			}
			if payload, ok := decodeBase64(candidate); ok {
				layers = append(layers, models.DecodedLayer{Encoding: "base64", Payload: payload})
				pending = append(pending, payload)
			}
		}
		for _, candidate := range hexCandidate.FindAllString(text, -1) {
			if len(layers) >= maxDecodedLayers {
				break
			}
			if payload, ok := decodeHexEscapes(candidate); ok {
				layers = append(layers, models.DecodedLayer{Encoding: "hex", Payload: payload})
				pending = append(pending, payload)
			}
		}
	}
	return layers
}

func decodeBase64(candidate string) (string, bool) {
	decoded, err := base64.StdEncoding.DecodeString(candidate)
	if err != nil {
		// Unpadded payloads are common in obfuscated prompts.
		decoded, err = base64.RawStdEncoding.DecodeString(candidate)
		if err != nil {
			return "", false
		}
	}
	return vetDecoded(decoded)
}

func decodeHexEscapes(candidate string) (string, bool) {
	hexOnly := strings.ReplaceAll(candidate, `\x`, "")
	decoded, err := hex.DecodeString(hexOnly)
	if err != nil {
		return "", false
	}
	return vetDecoded(decoded)
}

// vetDecoded applies the printable-ASCII gate and the per-layer size cap.
func vetDecoded(decoded []byte) (string, bool) {
	if len(decoded) == 0 {
		return "", false
	}
	if len(decoded) > maxLayerBytes {
		decoded = decoded[:maxLayerBytes]
	}
	printable := 0
	for _, c := range decoded {
		if c == '\n' || c == '\t' || (c >= 0x20 && c < 0x7F) {
			printable++
		}
	}
	if float64(printable)/float64(len(decoded)) < printableRatio {
		return "", false
	}
	return string(decoded), true
}
