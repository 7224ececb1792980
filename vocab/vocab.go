// Package vocab maps token strings to integer IDs and back. The model core
// never sees token text; a Vocabulary is built once by the caller and handed
// to dataset builders and to whatever decodes generated IDs for display.
package vocab

import "fmt"

// Error reports a failed lookup: either an unknown token or an ID outside
// the vocabulary range.
type Error struct {
	Token string
	ID    int
	Size  int
}

func (e *Error) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("vocab: unknown token %q", e.Token)
	}
	return fmt.Sprintf("vocab: id %d out of range [0,%d)", e.ID, e.Size)
}

// Vocabulary is an immutable bidirectional token <-> ID mapping.
// IDs are assigned in the order tokens were given to New.
type Vocabulary struct {
	tokenToID map[string]int
	idToToken []string
}

// New builds a Vocabulary from an ordered token list. Duplicate or empty
// tokens are rejected.
func New(tokens []string) (*Vocabulary, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("vocab: empty token list")
	}
	v := &Vocabulary{
		tokenToID: make(map[string]int, len(tokens)),
		idToToken: make([]string, len(tokens)),
	}
	for i, tok := range tokens {
		if tok == "" {
			return nil, fmt.Errorf("vocab: empty token at index %d", i)
		}
		if _, ok := v.tokenToID[tok]; ok {
			return nil, fmt.Errorf("vocab: duplicate token %q", tok)
		}
		v.tokenToID[tok] = i
		v.idToToken[i] = tok
	}
	return v, nil
}

func (v *Vocabulary) Size() int { return len(v.idToToken) }

func (v *Vocabulary) ID(tok string) (int, error) {
	id, ok := v.tokenToID[tok]
	if !ok {
		return 0, &Error{Token: tok, Size: v.Size()}
	}
	return id, nil
}

func (v *Vocabulary) Token(id int) (string, error) {
	if id < 0 || id >= len(v.idToToken) {
		return "", &Error{ID: id, Size: v.Size()}
	}
	return v.idToToken[id], nil
}

// IDs maps a token sequence to its ID sequence.
func (v *Vocabulary) IDs(tokens []string) ([]int, error) {
	out := make([]int, len(tokens))
	for i, tok := range tokens {
		id, err := v.ID(tok)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

// Tokens maps an ID sequence back to its token sequence.
func (v *Vocabulary) Tokens(ids []int) ([]string, error) {
	out := make([]string, len(ids))
	for i, id := range ids {
		tok, err := v.Token(id)
		if err != nil {
			return nil, err
		}
		out[i] = tok
	}
	return out, nil
}
