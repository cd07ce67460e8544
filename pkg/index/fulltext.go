package index

import (
	"strings"
	"unicode"

	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/types"
)

// Fulltext tokenizes indexed fields and maintains an inverted posting
// list per token (spec §4.3 "fulltext: tokenize + posting lists").
type Fulltext struct {
	engine         *storage.Engine
	database       string
	collection     string
	name           string
	fields         []string
	minTokenLength int
}

func NewFulltext(e *storage.Engine, database, collection, name string, fields []string, minTokenLength int) *Fulltext {
	if minTokenLength <= 0 {
		minTokenLength = 2
	}
	return &Fulltext{engine: e, database: database, collection: collection, name: name, fields: fields, minTokenLength: minTokenLength}
}

func (f *Fulltext) bucket() string { return bucketName("fulltext", f.database, f.collection, f.name) }

// Tokenize lowercases and splits on non-letter/non-digit runes, dropping
// tokens shorter than minTokenLength.
func (f *Fulltext) Tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() >= f.minTokenLength {
			tokens = append(tokens, cur.String())
		}
		cur.Reset()
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

func (f *Fulltext) docText(doc *types.Document) string {
	var sb strings.Builder
	for _, field := range f.fields {
		if v, ok := fieldValue(doc, field); ok && v.Kind() == types.KindString {
			sb.WriteString(v.AsString())
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}

func postingEntryKey(token, docKey string) []byte {
	return []byte(token + "\x00" + docKey)
}

func (f *Fulltext) OnInsert(doc *types.Document) error {
	for _, tok := range uniqueTokens(f.Tokenize(f.docText(doc))) {
		if err := f.engine.Put(f.database, f.bucket(), postingEntryKey(tok, doc.Key()), []byte{1}); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fulltext) OnDelete(doc *types.Document) error {
	for _, tok := range uniqueTokens(f.Tokenize(f.docText(doc))) {
		if err := f.engine.Delete(f.database, f.bucket(), postingEntryKey(tok, doc.Key())); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fulltext) OnUpdate(old, new *types.Document) error {
	if err := f.OnDelete(old); err != nil {
		return err
	}
	return f.OnInsert(new)
}

func uniqueTokens(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Search returns document keys containing at least one token in query,
// scored by the number of distinct matched query tokens (a simple TF-free
// relevance signal; HYBRID_SCORE in pkg/sdbql blends this with vector
// distance).
func (f *Fulltext) Search(query string) (map[string]int, error) {
	scores := map[string]int{}
	for _, tok := range uniqueTokens(f.Tokenize(query)) {
		prefix := []byte(tok + "\x00")
		err := f.engine.Range(f.database, f.bucket(), prefix, append(append([]byte{}, prefix...), 0xff), func(k, v []byte) error {
			docKey := strings.TrimPrefix(string(k), string(prefix))
			scores[docKey]++
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return scores, nil
}
