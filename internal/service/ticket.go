package service

import (
	"crypto/rand"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"busticket/internal/models"
)

const ticketAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// TicketGenerator issues codes of the form BKT<base36 millis><4 random chars>.
// The time component never repeats within a process; storage uniqueness
// covers collisions across processes.
type TicketGenerator struct {
	last    atomic.Int64
	now     func() time.Time
	entropy io.Reader
}

func NewTicketGenerator() *TicketGenerator {
	return &TicketGenerator{now: time.Now, entropy: rand.Reader}
}

// Next returns a fresh ticket code. It fails only when the entropy source does.
func (g *TicketGenerator) Next() (string, error) {
	ms := g.tick()
	suffix, err := g.suffix(4)
	if err != nil {
		return "", err
	}
	return models.TicketPrefix + strings.ToUpper(strconv.FormatInt(ms, 36)) + suffix, nil
}

func (g *TicketGenerator) tick() int64 {
	for {
		prev := g.last.Load()
		ms := g.now().UnixMilli()
		if ms <= prev {
			ms = prev + 1
		}
		if g.last.CompareAndSwap(prev, ms) {
			return ms
		}
	}
}

// unbiasedLimit is the largest multiple of the alphabet size that fits in a
// byte; bytes at or above it are discarded.
const unbiasedLimit = 256 - 256%len(ticketAlphabet)

func (g *TicketGenerator) suffix(n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(g.entropy, buf); err != nil {
			return "", fmt.Errorf("ticket entropy: %w", err)
		}
		for _, b := range buf {
			if int(b) >= unbiasedLimit {
				continue
			}
			out = append(out, ticketAlphabet[int(b)%len(ticketAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
