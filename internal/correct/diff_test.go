package correct

import "testing"

func TestCompare(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		corrected string
		wantSubs  int
		wantIns   int
		wantDels  int
		wantWords int
	}{
		{
			name:      "identical",
			raw:       "the cat sat on the mat",
			corrected: "the cat sat on the mat",
			wantWords: 6,
		},
		{
			name:      "one_substitution",
			raw:       "open the cuba toolkit",
			corrected: "open the CUDA toolkit",
			wantSubs:  1,
			wantWords: 4,
		},
		{
			name:      "one_insertion",
			raw:       "the cat sat",
			corrected: "the big cat sat",
			wantIns:   1,
			wantWords: 3,
		},
		{
			name:      "one_deletion",
			raw:       "so um run the tests",
			corrected: "so run the tests",
			wantDels:  1,
			wantWords: 5,
		},
		{
			name:      "case_and_punctuation_ignored",
			raw:       "hello world",
			corrected: "Hello, world!",
			wantWords: 2,
		},
		{
			name:      "empty_corrected",
			raw:       "some words",
			corrected: "",
			wantDels:  2,
			wantWords: 2,
		},
		{
			name:      "empty_raw",
			raw:       "",
			corrected: "two words",
			wantIns:   2,
		},
		{
			name:      "mixed",
			raw:       "the quick brown fox jumps over the lazy dog",
			corrected: "a quick brown cat jumps the lazy dog",
			wantSubs:  2,
			wantDels:  1,
			wantWords: 9,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compare(tt.raw, tt.corrected)
			if got.Substitutions != tt.wantSubs || got.Insertions != tt.wantIns || got.Deletions != tt.wantDels {
				t.Errorf("Compare() = %+v, want subs %d ins %d dels %d", got, tt.wantSubs, tt.wantIns, tt.wantDels)
			}
			if got.Words != tt.wantWords {
				t.Errorf("Words = %d, want %d", got.Words, tt.wantWords)
			}
		})
	}
}

func TestEditStatsRate(t *testing.T) {
	if r := (EditStats{}).Rate(); r != 0 {
		t.Errorf("Rate() of empty = %v, want 0", r)
	}
	s := EditStats{Substitutions: 1, Deletions: 1, Words: 4}
	if s.Edits() != 2 || s.Rate() != 0.5 {
		t.Errorf("Edits() = %d, Rate() = %v", s.Edits(), s.Rate())
	}
}
