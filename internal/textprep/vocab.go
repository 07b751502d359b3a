package textprep

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

const (
	unknownToken     = "[UNK]"
	defaultUnknownID = 100
	continuation     = "##"
	maxWordRunes     = 100
)

// Vocab is a BERT WordPiece vocabulary: token -> id, id being the line number.
type Vocab struct {
	ids   map[string]int
	unkID int
}

// LoadVocab reads a vocab.txt file.
func LoadVocab(path string) (*Vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()
	return ReadVocab(f)
}

// ReadVocab parses one token per line.
func ReadVocab(r io.Reader) (*Vocab, error) {
	v := &Vocab{ids: make(map[string]int), unkID: defaultUnknownID}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	id := 0
	for sc.Scan() {
		tok := strings.TrimRight(sc.Text(), "\r\n")
		if tok != "" {
			if _, dup := v.ids[tok]; !dup {
				v.ids[tok] = id
			}
		}
		id++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}
	if len(v.ids) == 0 {
		return nil, fmt.Errorf("vocab is empty")
	}
	if unk, ok := v.ids[unknownToken]; ok {
		v.unkID = unk
	}
	return v, nil
}

// Size is the number of distinct tokens.
func (v *Vocab) Size() int { return len(v.ids) }

// ID returns the id of an exact vocabulary entry.
func (v *Vocab) ID(tok string) (int, bool) {
	id, ok := v.ids[tok]
	return id, ok
}

// ConvertToIDs maps tokens to vocabulary ids using greedy longest-match-first
// WordPiece. A word that cannot be fully covered becomes a single [UNK].
func (v *Vocab) ConvertToIDs(tokens []string) []int {
	ids := make([]int, 0, len(tokens))
	for _, tok := range tokens {
		ids = append(ids, v.wordPiece(tok)...)
	}
	return ids
}

func (v *Vocab) wordPiece(word string) []int {
	if id, ok := v.ids[word]; ok {
		return []int{id}
	}
	if utf8.RuneCountInString(word) > maxWordRunes {
		return []int{v.unkID}
	}
	runes := []rune(word)
	var pieces []int
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := -1
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = continuation + sub
			}
			if id, ok := v.ids[sub]; ok {
				found = id
				break
			}
			end--
		}
		if found < 0 {
			return []int{v.unkID}
		}
		pieces = append(pieces, found)
		start = end
	}
	return pieces
}
