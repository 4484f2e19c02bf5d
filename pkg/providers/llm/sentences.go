package llm

import "regexp"

// sentenceBoundary matches one complete sentence: a run of non-terminator
// characters followed by a terminator, followed by whitespace or end of
// string. Grounded verbatim on original_source/backend/app/services/
// openai_llm.py's _extract_sentences regex (r'([^.!?]*[.!?])(?:\s|$)').
var sentenceBoundary = regexp.MustCompile(`([^.!?]*[.!?])(?:\s|$)`)

// sentenceSplitter buffers streamed text fragments and yields complete
// sentences as soon as a boundary appears, the same incremental
// extraction the original's generate_streaming performs on each
// accumulated delta.
type sentenceSplitter struct {
	buffer string
}

// Feed appends delta to the buffer and returns any complete sentences it
// now contains, removing them from the buffer.
func (s *sentenceSplitter) Feed(delta string) []string {
	s.buffer += delta
	var sentences []string

	for {
		loc := sentenceBoundary.FindStringSubmatchIndex(s.buffer)
		if loc == nil || loc[0] != 0 {
			break
		}
		fullEnd, sentence := loc[1], s.buffer[loc[2]:loc[3]]
		if sentence == "" {
			break
		}
		sentences = append(sentences, sentence)
		s.buffer = s.buffer[fullEnd:]
	}
	return sentences
}

// Flush returns any remaining buffered text as a final sentence-like
// fragment, clearing the buffer. Called once the stream has closed, per
// the original flushing whatever didn't end in a terminator.
func (s *sentenceSplitter) Flush() string {
	remainder := s.buffer
	s.buffer = ""
	return remainder
}
