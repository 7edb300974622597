package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// fallbackBillPrefix is used when the staff's shop has no name on record.
const fallbackBillPrefix = "ss"

var bangkokLocation *time.Location

func init() {
	loc, err := time.LoadLocation("Asia/Bangkok")
	if err != nil {
		loc = time.FixedZone("ICT", 7*60*60)
	}
	bangkokLocation = loc
}

// BillStore defines the database method needed to generate bill numbers.
// Satisfied by *database.Queries.
type BillStore interface {
	GetLastBillNumber(ctx context.Context, pattern string) (string, error)
}

// BillNumberGenerator produces bill numbers of the form
// {prefix}{DDMMYY}{seq}, where the prefix is derived from the shop name, the
// date uses a two-digit Buddhist-era year, and the sequence is four digits
// starting at 0001 each day.
//
// The sequence comes from a read-then-increment on the highest existing bill
// for today with no lock around it, so two concurrent writers can mint the
// same number. Uniqueness is best-effort; callers must tolerate collisions.
type BillNumberGenerator struct {
	store BillStore
	now   func() time.Time
}

// NewBillNumberGenerator creates a generator backed by the given store.
func NewBillNumberGenerator(store BillStore) *BillNumberGenerator {
	return &BillNumberGenerator{
		store: store,
		now:   LocalNow,
	}
}

// LocalNow returns the current time in the shop timezone. Bill dates and
// report windows are anchored to this clock, not the server's.
func LocalNow() time.Time {
	return time.Now().In(bangkokLocation)
}

// Next returns the next bill number for the given shop. It never fails: if
// the lookup errors the bill gets an ERR marker plus three random digits
// instead of a sequence, so the sale itself is not aborted.
func (g *BillNumberGenerator) Next(ctx context.Context, shopName string) string {
	now := g.now()
	dateStr := buddhistDate(now)
	prefix := billPrefix(shopName)

	last, err := g.store.GetLastBillNumber(ctx, prefix+dateStr+"%")
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return prefix + dateStr + "0001"
		}
		log.Printf("ERROR: bill number lookup: %v", err)
		return fmt.Sprintf("%s%sERR%03d", prefix, dateStr, rand.IntN(1000))
	}

	seq := 1
	if len(last) >= 4 {
		if n, err := strconv.Atoi(last[len(last)-4:]); err == nil {
			seq = n + 1
		}
	}
	return fmt.Sprintf("%s%s%04d", prefix, dateStr, seq)
}

// billPrefix derives a two-letter prefix from the shop name:
// "Meow Loan" -> "ml", "Somsri" -> "so". Rune-aware so Thai shop names
// don't get split mid-character.
func billPrefix(shopName string) string {
	parts := strings.Fields(strings.TrimSpace(shopName))
	switch {
	case len(parts) >= 2:
		return strings.ToLower(firstRunes(parts[0], 1) + firstRunes(parts[1], 1))
	case len(parts) == 1:
		return strings.ToLower(firstRunes(parts[0], 2))
	default:
		return fallbackBillPrefix
	}
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

// buddhistDate formats the local date as DDMMYY with a Buddhist-era year
// (CE + 543, last two digits).
func buddhistDate(t time.Time) string {
	yearBE := (t.Year() + 543) % 100
	return fmt.Sprintf("%02d%02d%02d", t.Day(), int(t.Month()), yearBE)
}
