// Package retrieval builds and queries the guideline passage index: the
// source document is split into overlapping chunks, embedded once, persisted,
// and ranked by cosine similarity at query time.
package retrieval

import (
	"strings"
	"unicode/utf8"
)

// Chunk is one splitter output with its byte offset into the source document.
type Chunk struct {
	Text   string
	Offset int
}

// SplitDocument cuts text into chunks of at most chunkSize bytes, carrying
// overlap bytes into the next chunk. Cut points prefer a paragraph break,
// then a line break, then a sentence end near the chunk boundary so passages
// stay readable.
func SplitDocument(text string, chunkSize, overlap int) []Chunk {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if chunkSize < 1 {
		return nil
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := start + chunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = cutPoint(text, start, end)
		}

		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			chunks = append(chunks, Chunk{Text: piece, Offset: start})
		}

		if end == len(text) {
			break
		}
		next := runeFloor(text, end-overlap)
		// Overlap must never stall the scan.
		if next <= start {
			next = start + 1
			for next < len(text) && !utf8.RuneStart(text[next]) {
				next++
			}
		}
		start = next
	}
	return chunks
}

// cutPoint searches the tail fifth of the window for a natural boundary and
// returns the position just after it, or the hard limit when none exists.
func cutPoint(text string, start, limit int) int {
	window := text[start:limit]
	floor := len(window) - len(window)/5

	if i := strings.LastIndex(window, "\n\n"); i >= floor {
		return start + i + 2
	}
	if i := strings.LastIndex(window, "\n"); i >= floor {
		return start + i + 1
	}
	if i := strings.LastIndex(window, ". "); i >= floor {
		return start + i + 2
	}
	// Hard cut: never split a multibyte rune.
	return runeFloor(text, limit)
}

// runeFloor moves i back to the nearest rune start so byte slicing stays
// valid UTF-8.
func runeFloor(text string, i int) int {
	for i > 0 && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}
