// Package accounts resolves the synthetic participant accounts and the
// admin account used by a run against a target server.
//
// Participant credentials are derived from an indexed pattern ("student{i}")
// rather than stored per user. Index 0 is reserved for the managed admin
// account of non-production targets; production targets never expose a
// managed admin and require explicitly supplied credentials.
package accounts

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/examload/examload/internal/models"
)

// Placeholder is the index marker inside username and password patterns.
const Placeholder = "{i}"

// numberRangeRE matches strings of the form "1-3,5,7-9". No leading zeros,
// all numbers positive.
var numberRangeRE = regexp.MustCompile(`^[1-9]\d*(?:-[1-9]\d*)?(?:,[1-9]\d*(?:-[1-9]\d*)?)*$`)

// ParseNumberRange parses a string of the form "1-3,5,7-9" into a sorted
// list of distinct positive integers. Whitespace is ignored; duplicates are
// allowed and collapsed.
func ParseNumberRange(rangeString string) ([]int, error) {
	cleaned := strings.ReplaceAll(rangeString, " ", "")
	if !numberRangeRE.MatchString(cleaned) {
		return nil, fmt.Errorf("invalid range string %q", rangeString)
	}

	seen := make(map[int]struct{})
	for _, part := range strings.Split(cleaned, ",") {
		from, to, found := strings.Cut(part, "-")
		lo, err := strconv.Atoi(from)
		if err != nil {
			return nil, fmt.Errorf("invalid range string %q", rangeString)
		}
		hi := lo
		if found {
			hi, err = strconv.Atoi(to)
			if err != nil {
				return nil, fmt.Errorf("invalid range string %q", rangeString)
			}
			if lo > hi {
				return nil, fmt.Errorf("invalid range string %q: %d > %d", rangeString, lo, hi)
			}
		}
		for i := lo; i <= hi; i++ {
			seen[i] = struct{}{}
		}
	}

	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}

// Pattern derives indexed credentials from username and password templates.
// Both templates must contain the {i} placeholder.
type Pattern struct {
	Username string
	Password string
}

// Validate checks that both templates carry the index placeholder.
func (p Pattern) Validate() error {
	if !strings.Contains(p.Username, Placeholder) {
		return fmt.Errorf("username pattern %q must contain %s", p.Username, Placeholder)
	}
	if !strings.Contains(p.Password, Placeholder) {
		return fmt.Errorf("password pattern %q must contain %s", p.Password, Placeholder)
	}
	return nil
}

// Account expands the pattern for one participant index.
func (p Pattern) Account(i int) models.Account {
	index := strconv.Itoa(i)
	return models.Account{
		Username: strings.ReplaceAll(p.Username, Placeholder, index),
		Password: strings.ReplaceAll(p.Password, Placeholder, index),
	}
}

// Provider resolves accounts for one target server.
type Provider struct {
	Server     models.TargetServer
	Pattern    Pattern
	Admin      models.Account
	Production bool
}

// ErrProductionAdmin is returned when a run needs the managed admin account
// on a production target. Production runs must supply their own credentials.
var ErrProductionAdmin = errors.New("no managed admin account on production targets")

// ParticipantsFor expands the simulation's user range into concrete
// participant accounts, ordered by index.
func (p *Provider) ParticipantsFor(sim models.Simulation) ([]models.Account, error) {
	if err := p.Pattern.Validate(); err != nil {
		return nil, fmt.Errorf("server %s: %w", p.Server, err)
	}
	indices, err := ParseNumberRange(sim.EffectiveUserRange())
	if err != nil {
		return nil, err
	}
	out := make([]models.Account, 0, len(indices))
	for _, i := range indices {
		out = append(out, p.Pattern.Account(i))
	}
	return out, nil
}

// AdminAccount returns the managed admin account of the target server.
func (p *Provider) AdminAccount() (models.Account, error) {
	if p.Production {
		return models.Account{}, ErrProductionAdmin
	}
	if !p.Admin.Provided() {
		return models.Account{}, fmt.Errorf("no admin account configured for server %s", p.Server)
	}
	return p.Admin, nil
}
