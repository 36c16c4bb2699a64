package ledger

import (
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// StubCategories is the fixed set drawn from when a ledger has no Category column.
var StubCategories = []string{"Electronics", "Fashion", "Books", "Home", "Toys"}

const (
	stubRatingMin = 3.0
	stubRatingMax = 5.0
)

// StubPolicy fills optional columns that are absent from a source. It is a
// synthetic-data policy for demo ledgers and is only consulted when a whole
// column is missing. Its output is not covered by any determinism guarantee
// unless it was built with a fixed seed.
type StubPolicy interface {
	Category() string
	Rating() float64
}

// FakerStubPolicy draws stub values with gofakeit. It is not safe for
// concurrent use.
type FakerStubPolicy struct {
	faker *gofakeit.Faker
}

// NewStubPolicy returns a policy seeded with seed, or with the clock when seed is zero.
func NewStubPolicy(seed uint64) *FakerStubPolicy {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &FakerStubPolicy{faker: gofakeit.New(seed)}
}

func (p *FakerStubPolicy) Category() string {
	return p.faker.RandomString(StubCategories)
}

func (p *FakerStubPolicy) Rating() float64 {
	return p.faker.Float64Range(stubRatingMin, stubRatingMax)
}
