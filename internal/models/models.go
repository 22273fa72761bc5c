// Package models defines the record types stored by the demo program.
package models

import (
	"fmt"
	"strings"
)

// Word is a dictionary entry.
type Word struct {
	Word    string `json:"word" jsonschema:"description=The word being defined"`
	Meaning string `json:"meaning" jsonschema:"description=Meaning of the word"`
}

// Clone returns a copy of the word.
func (w Word) Clone() Word {
	return w
}

// String implements fmt.Stringer.
func (w Word) String() string {
	return fmt.Sprintf("%s: %s", w.Word, w.Meaning)
}

// Matches reports whether the word or its meaning contains substr, case
// insensitively.
func (w Word) Matches(substr string) bool {
	substr = strings.ToLower(substr)
	return strings.Contains(strings.ToLower(w.Word), substr) || strings.Contains(strings.ToLower(w.Meaning), substr)
}

// ParseWords builds words from alternating word/meaning arguments.
func ParseWords(args []string) ([]Word, error) {
	if len(args) == 0 || len(args)%2 != 0 {
		return nil, fmt.Errorf("expected word/meaning pairs, got %d arguments", len(args))
	}
	words := make([]Word, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		if args[i] == "" {
			return nil, fmt.Errorf("argument %d: word is required", i)
		}
		words = append(words, Word{Word: args[i], Meaning: args[i+1]})
	}
	return words, nil
}
