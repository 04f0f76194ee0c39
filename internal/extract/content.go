package extract

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/seo-audit/crawler/internal/storage"
)

// Keyword table size persisted per page.
const topKeywords = 20

var wordPattern = regexp.MustCompile(`[a-zA-Z']+`)

// ContentExtractor computes the text metrics: word count, text-to-HTML
// ratio, Flesch reading ease, keyword frequencies and optional n-grams.
type ContentExtractor struct {
	stopWords map[string]struct{}
	ngrams    bool
}

// NewContentExtractor creates a content extractor with the crawl's stop
// word list.
func NewContentExtractor(stopWords []string, ngrams bool) *ContentExtractor {
	stops := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		stops[strings.ToLower(w)] = struct{}{}
	}
	return &ContentExtractor{stopWords: stops, ngrams: ngrams}
}

func (e *ContentExtractor) Name() string { return "content" }

func (e *ContentExtractor) Extract(doc *goquery.Document, pageURL, baseURL *url.URL, rec *storage.PageRecord) error {
	// Visible text only: scripts and styles are markup, not content.
	clone := doc.Selection.Clone()
	clone.Find("script, style, noscript").Remove()
	text := strings.TrimSpace(clone.Text())

	words := wordPattern.FindAllString(text, -1)
	rec.WordCount = len(words)

	if rec.HTMLSizeBytes > 0 {
		rec.TextRatio = float64(len(text)) / float64(rec.HTMLSizeBytes)
	}

	rec.FleschScore = fleschReadingEase(text, words)

	rec.Keywords = e.keywordTable(words)

	if e.ngrams {
		rec.Ngrams = e.ngramTable(words, 2, 3)
	}

	return nil
}

// keywordTable returns the most frequent non-stop-words, highest first.
func (e *ContentExtractor) keywordTable(words []string) []storage.KeywordCount {
	freq := make(map[string]int)
	for _, w := range words {
		w = strings.ToLower(w)
		if len(w) < 3 {
			continue
		}
		if _, stop := e.stopWords[w]; stop {
			continue
		}
		freq[w]++
	}
	if len(freq) == 0 {
		return nil
	}

	table := make([]storage.KeywordCount, 0, len(freq))
	for w, c := range freq {
		table = append(table, storage.KeywordCount{Word: w, Count: c})
	}
	sort.Slice(table, func(i, j int) bool {
		if table[i].Count != table[j].Count {
			return table[i].Count > table[j].Count
		}
		return table[i].Word < table[j].Word
	})

	if len(table) > topKeywords {
		table = table[:topKeywords]
	}
	return table
}

// ngramTable builds frequency tables for the requested n-gram sizes,
// skipping grams that are entirely stop words.
func (e *ContentExtractor) ngramTable(words []string, sizes ...int) map[string]int {
	lower := make([]string, len(words))
	for i, w := range words {
		lower[i] = strings.ToLower(w)
	}

	grams := make(map[string]int)
	for _, n := range sizes {
		for i := 0; i+n <= len(lower); i++ {
			allStops := true
			for _, w := range lower[i : i+n] {
				if _, stop := e.stopWords[w]; !stop {
					allStops = false
					break
				}
			}
			if allStops {
				continue
			}
			grams[strings.Join(lower[i:i+n], " ")]++
		}
	}

	// Keep the table bounded; singletons dominate and carry no signal.
	for gram, count := range grams {
		if count < 2 {
			delete(grams, gram)
		}
	}
	if len(grams) == 0 {
		return nil
	}
	return grams
}

// fleschReadingEase computes 206.835 - 1.015*(words/sentences)
// - 84.6*(syllables/words). Zero when there is no text to score.
func fleschReadingEase(text string, words []string) float64 {
	if len(words) == 0 {
		return 0
	}

	sentences := 0
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			sentences++
		}
	}
	if sentences == 0 {
		sentences = 1
	}

	syllables := 0
	for _, w := range words {
		syllables += countSyllables(w)
	}

	score := 206.835 -
		1.015*(float64(len(words))/float64(sentences)) -
		84.6*(float64(syllables)/float64(len(words)))

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// countSyllables approximates syllables as vowel groups, with the usual
// silent-e adjustment.
func countSyllables(word string) int {
	word = strings.ToLower(word)
	count := 0
	prevVowel := false
	for _, r := range word {
		vowel := strings.ContainsRune("aeiouy", r)
		if vowel && !prevVowel {
			count++
		}
		prevVowel = vowel
	}
	if strings.HasSuffix(word, "e") && count > 1 {
		count--
	}
	if count == 0 {
		count = 1
	}
	return count
}
