package stream

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	tokenEncoderMu  sync.Mutex
	tokenEncoderMap = map[string]*tiktoken.Tiktoken{}
)

// getTokenEncoder resolves a tokenizer for the model, caching failures as nil
// so an offline environment does not retry the BPE download per request.
func getTokenEncoder(model string) *tiktoken.Tiktoken {
	tokenEncoderMu.Lock()
	defer tokenEncoderMu.Unlock()
	if enc, ok := tokenEncoderMap[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			enc = nil
		}
	}
	tokenEncoderMap[model] = enc
	return enc
}

// CountTokenText estimates the token count of text for the given model. It
// backs the terminal metadata when the upstream summary omits usage; when no
// tokenizer is available the estimate degrades to a character ratio.
func CountTokenText(text string, model string) int {
	if text == "" {
		return 0
	}
	enc := getTokenEncoder(model)
	if enc == nil {
		return int(float64(len(text)) * 0.38)
	}
	return len(enc.Encode(text, nil, nil))
}
