package encoder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// bertSpecialTokens are matched verbatim before normalization so framing
// markers survive lower-casing and punctuation splitting.
var bertSpecialTokens = []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "[MASK]"}

// Sugar wraps a sugarme tokenizer as a Tokenizer.
type Sugar struct {
	t *tk.Tokenizer
}

// LoadHF loads a HuggingFace tokenizer.json.
func LoadHF(path string) (*Sugar, error) {
	if path == "" {
		return nil, fmt.Errorf("tokenizer path is required")
	}
	t, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", path, err)
	}
	return &Sugar{t: t}, nil
}

// LoadWordPiece builds an uncased BERT WordPiece tokenizer from vocab.txt.
func LoadWordPiece(vocabPath string) (*Sugar, error) {
	fi, err := os.Stat(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat vocab %s: %w", vocabPath, err)
	}
	if fi.IsDir() {
		vocabPath = filepath.Join(vocabPath, "vocab.txt")
	}

	wp, err := wordpiece.NewWordPieceFromFile(vocabPath, "[UNK]")
	if err != nil {
		return nil, fmt.Errorf("failed to load vocab %s: %w", vocabPath, err)
	}

	t := tk.NewTokenizer(wp)
	t.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, true))
	t.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	special := make([]tk.AddedToken, 0, len(bertSpecialTokens))
	for _, s := range bertSpecialTokens {
		special = append(special, tk.NewAddedToken(s, true))
	}
	t.AddSpecialTokens(special)

	return &Sugar{t: t}, nil
}

// Load picks the loader from the file name: *.json is a HuggingFace
// tokenizer.json, anything else is treated as a WordPiece vocabulary.
func Load(path string) (*Sugar, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return LoadHF(path)
	}
	return LoadWordPiece(path)
}

// Encode returns token ids for text without adding special tokens; the
// Encoder frames the text itself.
func (s *Sugar) Encode(text string) ([]int, error) {
	if s == nil || s.t == nil {
		return nil, fmt.Errorf("tokenizer is not initialized")
	}
	enc, err := s.t.EncodeSingle(text, false)
	if err != nil {
		return nil, err
	}
	return enc.Ids, nil
}

var _ Tokenizer = (*Sugar)(nil)
