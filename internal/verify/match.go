package verify

import (
	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/textnorm"
)

var stopWords = func() map[string]bool {
	words := []string{
		// English
		"a", "an", "and", "are", "as", "at", "be", "by", "for", "from", "in", "into", "is", "it",
		"of", "on", "or", "other", "such", "than", "that", "the", "their", "this", "to", "with", "without",
		"not", "nes", "whether", "including", "parts", "thereof", "articles", "kind", "used",
		// Hebrew
		"של", "את", "על", "עם", "או", "גם", "כל", "אשר", "זה", "זו", "לא", "אחרים", "אחרות", "אחר",
		"וכן", "כגון", "למעט", "לרבות", "חלקים", "מוצרים", "מסוג", "בין", "אם",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()

// splitByScript returns the content tokens of text partitioned into
// Latin-script and Hebrew-script sets.
func splitByScript(text string) (en, he map[string]struct{}) {
	en = make(map[string]struct{})
	he = make(map[string]struct{})
	for t := range textnorm.TokenSet(text, stopWords) {
		if textnorm.IsHebrew(t) {
			he[t] = struct{}{}
		} else {
			en[t] = struct{}{}
		}
	}
	return en, he
}

// overlap is |A∩B| / min(|A|,|B|), zero when either set is empty.
func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return float64(n) / float64(len(a))
}

// Match compares a classified description with the reference text of its
// code, per language.
func Match(reference, description model.Bilingual, threshold float64) model.BilingualMatch {
	refEN, refHE := splitByScript(reference.Joined())
	descEN, descHE := splitByScript(description.Joined())

	m := model.BilingualMatch{
		SimilarityEN: overlap(refEN, descEN),
		SimilarityHE: overlap(refHE, descHE),
	}
	m.Matched = m.SimilarityEN >= threshold || m.SimilarityHE >= threshold
	return m
}
