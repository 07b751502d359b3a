package fasttext

import (
	"fmt"
	"strings"
)

const (
	entryWord  int8 = 0
	entryLabel int8 = 1

	eos      = "</s>"
	bow, eow = "<", ">"
)

type entry struct {
	word     string
	count    int64
	kind     int8
	subwords []int32
}

type dictionary struct {
	args     args
	entries  []entry
	index    map[string]int32
	nwords   int32
	nlabels  int32
	ntokens  int64
	pruneidx map[int32]int32
	pruned   bool
}

func readDictionary(br *binReader, a args) (*dictionary, error) {
	d := &dictionary{args: a}
	size := br.i32()
	d.nwords = br.i32()
	d.nlabels = br.i32()
	d.ntokens = br.i64()
	pruneSize := br.i64()
	if br.err != nil {
		return nil, fmt.Errorf("fasttext: read dictionary header: %w", br.err)
	}
	if size < 0 || d.nwords < 0 || d.nlabels < 0 || d.nwords+d.nlabels != size {
		return nil, fmt.Errorf("fasttext: inconsistent dictionary sizes %d/%d/%d", size, d.nwords, d.nlabels)
	}

	d.entries = make([]entry, size)
	d.index = make(map[string]int32, size)
	for i := int32(0); i < size; i++ {
		e := entry{word: br.cstring(), count: br.i64(), kind: br.i8()}
		if br.err != nil {
			return nil, fmt.Errorf("fasttext: read dictionary entry %d: %w", i, br.err)
		}
		d.entries[i] = e
		d.index[e.word] = i
	}

	if pruneSize > 0 {
		d.pruned = true
		d.pruneidx = make(map[int32]int32, pruneSize)
		for i := int64(0); i < pruneSize; i++ {
			k, v := br.i32(), br.i32()
			d.pruneidx[k] = v
		}
		if br.err != nil {
			return nil, fmt.Errorf("fasttext: read prune index: %w", br.err)
		}
	}

	for i := range d.entries[:d.nwords] {
		e := &d.entries[i]
		e.subwords = []int32{int32(i)}
		if e.word != eos {
			d.charNgrams(bow+e.word+eow, func(id int32) { e.subwords = append(e.subwords, id) })
		}
	}
	return d, nil
}

// hash is fastText's FNV-1a variant; bytes are sign-extended before mixing.
func hash(s string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(int8(s[i]))
		h *= 16777619
	}
	return h
}

// charNgrams emits the bucket ids of every UTF-8 aware character ngram of word
// with length in [minn, maxn].
func (d *dictionary) charNgrams(word string, emit func(int32)) {
	if d.args.maxn <= 0 || d.args.bucket <= 0 {
		return
	}
	for i := 0; i < len(word); i++ {
		if word[i]&0xC0 == 0x80 {
			continue
		}
		var ngram strings.Builder
		for j, n := i, 1; j < len(word) && n <= int(d.args.maxn); n++ {
			ngram.WriteByte(word[j])
			j++
			for j < len(word) && word[j]&0xC0 == 0x80 {
				ngram.WriteByte(word[j])
				j++
			}
			if n >= int(d.args.minn) && !(n == 1 && (i == 0 || j == len(word))) {
				d.pushHash(int32(hash(ngram.String())%uint32(d.args.bucket)), emit)
			}
		}
	}
}

func (d *dictionary) pushHash(id int32, emit func(int32)) {
	if d.pruned && id >= 0 {
		mapped, ok := d.pruneidx[id]
		if !ok {
			return
		}
		id = mapped
	}
	emit(d.nwords + id)
}

// line converts whitespace separated text into input row ids, including the
// end-of-sentence marker, subwords and word ngrams.
func (d *dictionary) line(text string) []int32 {
	tokens := append(strings.Fields(text), eos)
	ids := make([]int32, 0, len(tokens)*2)
	hashes := make([]int32, 0, len(tokens))
	emit := func(id int32) { ids = append(ids, id) }

	for _, tok := range tokens {
		h := hash(tok)
		wid, known := d.index[tok]
		kind := entryWord
		if known {
			kind = d.entries[wid].kind
		} else if strings.HasPrefix(tok, labelPrefix) {
			kind = entryLabel
		}
		if kind != entryWord {
			continue
		}
		switch {
		case !known:
			if tok != eos {
				d.charNgrams(bow+tok+eow, emit)
			}
		case d.args.maxn <= 0:
			ids = append(ids, wid)
		default:
			ids = append(ids, d.entries[wid].subwords...)
		}
		hashes = append(hashes, int32(h))
	}
	d.wordNgrams(hashes, emit)
	return ids
}

func (d *dictionary) wordNgrams(hashes []int32, emit func(int32)) {
	if d.args.bucket <= 0 {
		return
	}
	n := int(d.args.wordNgrams)
	for i := range hashes {
		h := uint64(int64(hashes[i]))
		for j := i + 1; j < len(hashes) && j < i+n; j++ {
			h = h*116049371 + uint64(int64(hashes[j]))
			d.pushHash(int32(h%uint64(d.args.bucket)), emit)
		}
	}
}

const labelPrefix = "__label__"

func (d *dictionary) labels() []string {
	out := make([]string, 0, d.nlabels)
	for _, e := range d.entries[d.nwords:] {
		out = append(out, e.word)
	}
	return out
}

func (d *dictionary) labelCounts() []int64 {
	out := make([]int64, 0, d.nlabels)
	for _, e := range d.entries[d.nwords:] {
		out = append(out, e.count)
	}
	return out
}
