package elements

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/livetemplate/pagecraft/internal/document"
)

// idSource mints element ids and keys. ULIDs sort by creation time, which the
// change log relies on when replaying.
type idSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newIDSource() *idSource {
	return &idSource{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (s *idSource) id(now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// key returns "<type>_<position>_<base36 millis>_<5 random base36 chars>".
func (s *idSource) key(t document.ElementType, position int, now time.Time) string {
	suffix := make([]byte, 5)
	radix := big.NewInt(int64(len(base36)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, radix)
		if err != nil {
			n = big.NewInt((now.UnixNano() + int64(i)) % int64(len(base36)))
		}
		suffix[i] = base36[n.Int64()]
	}
	return fmt.Sprintf("%s_%d_%s_%s", t, position, strconv.FormatInt(now.UnixMilli(), 36), suffix)
}

// uniqueKey retries key until it is free in taken.
func (s *idSource) uniqueKey(t document.ElementType, position int, now time.Time, taken map[string]*document.Element) string {
	for {
		k := s.key(t, position, now)
		if _, exists := taken[k]; !exists {
			return k
		}
	}
}
