// Package tokens estimates token counts for providers that do not report usage.
package tokens

import (
	"sync"
	"sync/atomic"

	"github.com/pkoukk/tiktoken-go"
	log "github.com/sirupsen/logrus"
)

// DefaultEncoding is cl100k_base, close enough for every chat model we route to
const DefaultEncoding = "cl100k_base"

// Estimator counts tokens with tiktoken, or chars/4 when the encoding is unavailable
type Estimator struct {
	encoding *tiktoken.Tiktoken
	mu       sync.Mutex
}

var (
	global     *Estimator
	globalOnce sync.Once
	ready      atomic.Pointer[Estimator]
)

// Get returns the shared estimator, loading the encoding on first use.
// The first load may download the BPE ranks, so call it at startup.
func Get() *Estimator {
	globalOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			log.WithError(err).Warn("tiktoken unavailable, estimating tokens from length")
			global = &Estimator{}
			return
		}
		global = &Estimator{encoding: enc}
	})
	ready.Store(global)
	return global
}

// Warm loads the shared encoding in the background
func Warm() {
	go func() {
		e := Get()
		log.WithFields(log.Fields{"event": "tokenizer_ready", "tiktoken": e.encoding != nil}).Debug("Token estimator loaded")
	}()
}

// Count returns the token count for text
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	if e == nil || e.encoding == nil {
		return (len(text) + 3) / 4
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.encoding.Encode(text, nil, nil))
}

// Estimate counts with the shared estimator once it has loaded, and from
// length until then. It never loads the encoding itself.
func Estimate(text string) int {
	return ready.Load().Count(text)
}
