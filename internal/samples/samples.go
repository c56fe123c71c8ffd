// Package samples loads the example-question list shown by the chat UI.
package samples

import (
	"bufio"
	"os"
	"strings"
)

// Defaults are used when no sample-question file is configured or the
// file is empty.
var Defaults = []string{
	"Expand and simplify the following polynomial expression: (2x−3)^2(x+4). Please show the steps of your expansion and combination of like terms.",
	"Given the following two data vectors, A = [3, 8, 5, 12] and B = [4, 6, 7, 9], Calculate the dot product of A and B.",
	"I'm looking for a number with the following properties: (1) It is a prime number between 60 and 90. (2) The sum of its digits is 13. (3) If you reverse its digits, the new number is also a prime number. What is the number?",
}

// Load reads one question per non-blank line from path. A missing or
// empty file falls back to Defaults rather than failing: sample
// questions are decoration, not configuration.
func Load(path string) []string {
	if path == "" {
		return Defaults
	}
	f, err := os.Open(path)
	if err != nil {
		return Defaults
	}
	defer f.Close()

	var questions []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		questions = append(questions, line)
	}
	if len(questions) == 0 {
		return Defaults
	}
	return questions
}
